package ingestion

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/valgdash/backend/internal/metrics"
	"github.com/valgdash/backend/internal/schema"
	"github.com/valgdash/backend/internal/storage/models"
	"github.com/valgdash/backend/internal/tabular"
	"github.com/valgdash/backend/pkg/logger"
	"github.com/valgdash/backend/pkg/utils"
)

// Store is the mutation surface the pipeline writes through. Each call
// is atomic on its own; calls do not compose into a larger transaction,
// which is why records are processed strictly sequentially.
type Store interface {
	InsertRecord(ctx context.Context, table schema.Table, data tabular.Record) (string, error)
	GetOrCreatePollster(ctx context.Context, name, code string) (string, error)
	CreatePollWithResults(ctx context.Context, pollsterID, conductedAt string, sampleSize int, methodology string, results []models.PollResult) (string, error)
}

// Summary is the per-batch accounting returned to the caller. Errors
// is nil when every record landed; a non-empty Errors with Inserted > 0
// means partial success, not failure.
type Summary struct {
	Success  bool     `json:"success"`
	Inserted int      `json:"inserted"`
	Total    int      `json:"total"`
	Errors   []string `json:"errors,omitempty"`
}

type Processor struct {
	store Store
}

func NewProcessor(store Store) *Processor {
	return &Processor{store: store}
}

// Run drives decoded records through map -> validate -> upsert, one at
// a time. Per-record failures are collected and never abort the batch;
// records the mapper skips (unknown table) count toward Total only.
func (p *Processor) Run(ctx context.Context, table schema.Table, records []tabular.Record) Summary {
	start := time.Now()
	summary := Summary{Success: true, Total: len(records)}

	for i, record := range records {
		mapped, ok := schema.MapRecord(table, record)
		if !ok {
			metrics.RecordsSkipped.WithLabelValues(string(table)).Inc()
			continue
		}

		validated, err := schema.ValidateRecord(table, mapped)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("Failed to insert record %d: %v", i+1, err))
			metrics.RecordsFailed.WithLabelValues(string(table)).Inc()
			continue
		}

		if _, err := p.store.InsertRecord(ctx, table, validated); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("Failed to insert record %d: %v", i+1, err))
			metrics.RecordsFailed.WithLabelValues(string(table)).Inc()
			continue
		}

		summary.Inserted++
		metrics.RecordsInserted.WithLabelValues(string(table)).Inc()
	}

	metrics.BatchDuration.WithLabelValues(string(table)).Observe(time.Since(start).Seconds())
	metrics.BatchTotal.WithLabelValues(string(table), batchStatus(summary)).Inc()

	logger.Info("Ingestion batch complete",
		zap.String("table", string(table)),
		zap.Int("inserted", summary.Inserted),
		zap.Int("total", summary.Total),
		zap.Int("errors", len(summary.Errors)),
	)
	return summary
}

// pollsterCache maps pollster name to id for the lifetime of a single
// import run. It is request-scoped on purpose: concurrent imports each
// get their own and cannot corrupt one another.
type pollsterCache map[string]string

// RunPollImport is the bulk history path: flat rows are grouped into
// unique polls, each group resolving its pollster once (get-or-create,
// cached per run) before the header and results are written.
func (p *Processor) RunPollImport(ctx context.Context, rows []tabular.Record) Summary {
	start := time.Now()

	groups := GroupPollRows(rows)
	summary := Summary{Success: true, Total: groups.Len()}
	cache := make(pollsterCache)

	logger.Info("Poll import started",
		zap.Int("rows", len(rows)),
		zap.Int("polls", groups.Len()),
	)

	for _, key := range groups.Keys() {
		group := groups.Get(key)

		pollsterID, cached := cache[group.Pollster]
		if !cached {
			id, err := p.store.GetOrCreatePollster(ctx, group.Pollster, utils.Slugify(group.Pollster))
			if err != nil {
				summary.Errors = append(summary.Errors, fmt.Sprintf("Failed to import poll %s: %v", key, err))
				continue
			}
			pollsterID = id
			cache[group.Pollster] = id
		}

		// The source feed carries no methodology column.
		_, err := p.store.CreatePollWithResults(ctx, pollsterID, group.PollDate, group.SampleSize, "Unknown", group.Results())
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("Failed to import poll %s: %v", key, err))
			continue
		}

		summary.Inserted++
		metrics.PollsImported.Inc()
	}

	metrics.BatchDuration.WithLabelValues("poll_history").Observe(time.Since(start).Seconds())
	metrics.BatchTotal.WithLabelValues("poll_history", batchStatus(summary)).Inc()

	logger.Info("Poll import complete",
		zap.Int("imported", summary.Inserted),
		zap.Int("total", summary.Total),
		zap.Int("errors", len(summary.Errors)),
	)
	return summary
}

func batchStatus(s Summary) string {
	switch {
	case len(s.Errors) == 0:
		return "ok"
	case s.Inserted > 0:
		return "partial"
	default:
		return "failed"
	}
}
