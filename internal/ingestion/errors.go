package ingestion

import "errors"

// ErrFetchTimeout distinguishes an upstream object fetch exceeding its
// bound from other network failures; callers map it to 408 and may
// retry.
var ErrFetchTimeout = errors.New("object fetch timed out")

// ErrObjectTooLarge means the fetched object exceeded the configured
// size cap.
var ErrObjectTooLarge = errors.New("object exceeds size limit")
