package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/valgdash/backend/internal/auth"
	"github.com/valgdash/backend/internal/ingestion"
	"github.com/valgdash/backend/internal/metrics"
	"github.com/valgdash/backend/internal/schema"
	"github.com/valgdash/backend/internal/tabular"
	"github.com/valgdash/backend/pkg/logger"
)

// ObjectFetcher pulls raw object bytes from an S3-compatible store.
type ObjectFetcher interface {
	Fetch(ctx context.Context, bucket, key, endpoint string) (string, error)
}

// ViewInvalidator drops cached read-side responses after a write batch.
type ViewInvalidator interface {
	InvalidateViews(ctx context.Context) error
}

type IngestHandler struct {
	processor *ingestion.Processor
	fetcher   ObjectFetcher
	cache     ViewInvalidator
	secret    string
}

// NewIngestHandler wires the ingest endpoints. cache may be nil when
// Redis is disabled.
func NewIngestHandler(processor *ingestion.Processor, fetcher ObjectFetcher, cache ViewInvalidator, secret string) *IngestHandler {
	return &IngestHandler{
		processor: processor,
		fetcher:   fetcher,
		cache:     cache,
		secret:    secret,
	}
}

// IngestFromObjectStore handles POST /api/v1/ingest: fetch a CSV object
// from the configured store and run it through the batch pipeline.
func (h *IngestHandler) IngestFromObjectStore(c *fiber.Ctx) error {
	var req struct {
		Bucket      string `json:"bucket"`
		Key         string `json:"key"`
		Table       string `json:"table"`
		Endpoint    string `json:"endpoint"`
		SecretToken string `json:"secretToken"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := h.authorize(c, req.SecretToken); err != nil {
		return authError(c, err)
	}

	if req.Bucket == "" || req.Key == "" || req.Table == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "bucket, key and table are required",
		})
	}

	table := schema.Table(req.Table)
	if !table.Known() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown table: " + req.Table,
		})
	}

	text, err := h.fetcher.Fetch(c.Context(), req.Bucket, req.Key, req.Endpoint)
	if err != nil {
		return fetchError(c, err)
	}

	records, err := tabular.DecodeCSV(text, tabular.CoerceNumeric)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Malformed CSV",
			"message": err.Error(),
		})
	}

	summary := h.processor.Run(c.Context(), table, records)
	h.invalidate(c.Context())
	return c.JSON(summary)
}

// IngestDirect handles POST /api/v1/ingest/direct: the payload carries
// the rows inline, either as a raw CSV string or as an already-parsed
// array of row objects.
func (h *IngestHandler) IngestDirect(c *fiber.Ctx) error {
	var req struct {
		Table       string `json:"table"`
		Data        any    `json:"data"`
		SecretToken string `json:"secretToken"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := h.authorize(c, req.SecretToken); err != nil {
		return authError(c, err)
	}

	if req.Table == "" || req.Data == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "table and data are required",
		})
	}

	table := schema.Table(req.Table)
	if !table.Known() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown table: " + req.Table,
		})
	}

	records, err := decodePayload(req.Data)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Malformed data",
			"message": err.Error(),
		})
	}

	summary := h.processor.Run(c.Context(), table, records)
	h.invalidate(c.Context())
	return c.JSON(summary)
}

// IngestPolls handles POST /api/v1/ingest/polls: bulk poll-history CSV
// grouped into unique polls rather than upserted row by row. The CSV
// arrives either as a JSON field or as the raw request body.
func (h *IngestHandler) IngestPolls(c *fiber.Ctx) error {
	if err := h.authorize(c, ""); err != nil {
		return authError(c, err)
	}

	text, err := pollCSVFromRequest(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "csvContent is required",
		})
	}

	records, err := tabular.DecodeCSV(text, tabular.CoerceNumeric)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Malformed CSV",
			"message": err.Error(),
		})
	}

	summary := h.processor.RunPollImport(c.Context(), records)
	h.invalidate(c.Context())
	return c.JSON(summary)
}

// authorize accepts the token from the request body field or from the
// Authorization header, whichever is present.
func (h *IngestHandler) authorize(c *fiber.Ctx, bodyToken string) error {
	presented := bodyToken
	if presented == "" {
		presented = auth.TokenFromHeader(c.Get(fiber.HeaderAuthorization))
	}
	return auth.Authenticate(presented, h.secret)
}

func (h *IngestHandler) invalidate(ctx context.Context) {
	if h.cache == nil {
		return
	}
	if err := h.cache.InvalidateViews(ctx); err != nil {
		logger.Warn("Failed to invalidate view cache", zap.Error(err))
	}
}

func authError(c *fiber.Ctx, err error) error {
	if errors.Is(err, auth.ErrNotConfigured) {
		logger.Error("Ingest secret not configured")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Server misconfigured",
		})
	}
	metrics.AuthFailures.Inc()
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": "Unauthorized",
	})
}

func fetchError(c *fiber.Ctx, err error) error {
	if errors.Is(err, ingestion.ErrFetchTimeout) {
		return c.Status(fiber.StatusRequestTimeout).JSON(fiber.Map{
			"error": "Object fetch timed out",
		})
	}
	if errors.Is(err, ingestion.ErrObjectTooLarge) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Object exceeds size limit",
		})
	}
	logger.Error("Failed to fetch object", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to fetch object",
	})
}

// decodePayload accepts the direct-ingest data field in either of its
// two shapes: a CSV string or an array of row objects.
func decodePayload(data any) ([]tabular.Record, error) {
	switch v := data.(type) {
	case string:
		return tabular.DecodeCSV(v, tabular.CoerceNumeric)
	case []any:
		objects := make([]map[string]any, 0, len(v))
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, tabular.ErrMalformedInput
			}
			objects = append(objects, obj)
		}
		return tabular.FromObjects(objects)
	default:
		return nil, tabular.ErrMalformedInput
	}
}

// pollCSVFromRequest extracts the CSV text: raw body for text/csv and
// text/plain requests, otherwise the csvContent (or legacy data) field
// of a JSON body.
func pollCSVFromRequest(c *fiber.Ctx) (string, error) {
	contentType := c.Get(fiber.HeaderContentType)
	if strings.HasPrefix(contentType, "text/csv") || strings.HasPrefix(contentType, "text/plain") {
		body := string(c.Body())
		if strings.TrimSpace(body) == "" {
			return "", tabular.ErrMalformedInput
		}
		return body, nil
	}

	var req struct {
		CSVContent string `json:"csvContent"`
		Data       string `json:"data"`
	}
	if err := c.BodyParser(&req); err != nil {
		return "", err
	}
	if req.CSVContent != "" {
		return req.CSVContent, nil
	}
	if req.Data != "" {
		return req.Data, nil
	}
	return "", tabular.ErrMalformedInput
}
