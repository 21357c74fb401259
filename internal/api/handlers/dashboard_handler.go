package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/valgdash/backend/internal/metrics"
	"github.com/valgdash/backend/internal/storage/models"
	"github.com/valgdash/backend/internal/storage/sqlite"
	"github.com/valgdash/backend/pkg/logger"
)

// ViewCache caches rendered responses keyed by view name.
type ViewCache interface {
	GetView(ctx context.Context, view string, response interface{}) (bool, error)
	SetView(ctx context.Context, view string, response interface{}) error
}

// DashboardHandler serves the normalized data back to the frontend.
type DashboardHandler struct {
	store *sqlite.Client
	cache ViewCache
}

// NewDashboardHandler wires the read endpoints. cache may be nil when
// Redis is disabled; every endpoint then reads straight from SQLite.
func NewDashboardHandler(store *sqlite.Client, cache ViewCache) *DashboardHandler {
	return &DashboardHandler{store: store, cache: cache}
}

// GetNationalOverview returns the singleton overview row, or null when
// nothing has been ingested yet.
func (h *DashboardHandler) GetNationalOverview(c *fiber.Ctx) error {
	var cached *models.NationalOverview
	if h.lookup(c, "national_overview", &cached) {
		return c.JSON(cached)
	}

	overview, err := h.store.GetNationalOverview(c.Context())
	if err != nil {
		return queryError(c, "national overview", err)
	}

	h.remember(c, "national_overview", overview)
	return c.JSON(overview)
}

func (h *DashboardHandler) ListMunicipalities(c *fiber.Ctx) error {
	var cached []models.MunicipalitySnapshot
	if h.lookup(c, "municipalities", &cached) {
		return c.JSON(cached)
	}

	snapshots, err := h.store.ListMunicipalities(c.Context())
	if err != nil {
		return queryError(c, "municipalities", err)
	}
	if snapshots == nil {
		snapshots = []models.MunicipalitySnapshot{}
	}

	h.remember(c, "municipalities", snapshots)
	return c.JSON(snapshots)
}

func (h *DashboardHandler) GetMunicipality(c *fiber.Ctx) error {
	slug := c.Params("slug")

	snapshot, err := h.store.GetMunicipalityBySlug(c.Context(), slug)
	if err != nil {
		return queryError(c, "municipality", err)
	}
	if snapshot == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Municipality not found",
		})
	}

	return c.JSON(snapshot)
}

// ListPolls returns polls newest first, each joined with its pollster
// and per-party results.
func (h *DashboardHandler) ListPolls(c *fiber.Ctx) error {
	var cached []models.PollWithResults
	if h.lookup(c, "polls", &cached) {
		return c.JSON(cached)
	}

	polls, err := h.store.ListPolls(c.Context())
	if err != nil {
		return queryError(c, "polls", err)
	}
	if polls == nil {
		polls = []models.PollWithResults{}
	}

	h.remember(c, "polls", polls)
	return c.JSON(polls)
}

func (h *DashboardHandler) ListPollsters(c *fiber.Ctx) error {
	pollsters, err := h.store.ListPollsters(c.Context())
	if err != nil {
		return queryError(c, "pollsters", err)
	}
	if pollsters == nil {
		pollsters = []models.Pollster{}
	}
	return c.JSON(pollsters)
}

func (h *DashboardHandler) ListParties(c *fiber.Ctx) error {
	parties, err := h.store.ListParties(c.Context())
	if err != nil {
		return queryError(c, "parties", err)
	}
	if parties == nil {
		parties = []models.Party{}
	}
	return c.JSON(parties)
}

func (h *DashboardHandler) ListRegions(c *fiber.Ctx) error {
	regions, err := h.store.ListRegions(c.Context())
	if err != nil {
		return queryError(c, "regions", err)
	}
	if regions == nil {
		regions = []models.Region{}
	}
	return c.JSON(regions)
}

func (h *DashboardHandler) ListScenarios(c *fiber.Ctx) error {
	scenarios, err := h.store.ListScenarios(c.Context())
	if err != nil {
		return queryError(c, "scenarios", err)
	}
	if scenarios == nil {
		scenarios = []models.Scenario{}
	}
	return c.JSON(scenarios)
}

func (h *DashboardHandler) ListCurrentResults(c *fiber.Ctx) error {
	var cached []models.ElectionResult
	if h.lookup(c, "current_results", &cached) {
		return c.JSON(cached)
	}

	results, err := h.store.ListCurrentResults(c.Context())
	if err != nil {
		return queryError(c, "current results", err)
	}
	if results == nil {
		results = []models.ElectionResult{}
	}

	h.remember(c, "current_results", results)
	return c.JSON(results)
}

// lookup reports whether the view was served from cache. Cache errors
// degrade to a miss.
func (h *DashboardHandler) lookup(c *fiber.Ctx, view string, response interface{}) bool {
	if h.cache == nil {
		return false
	}

	found, err := h.cache.GetView(c.Context(), view, response)
	if err != nil {
		logger.Warn("View cache lookup failed", zap.String("view", view), zap.Error(err))
		return false
	}
	if !found {
		metrics.CacheMisses.WithLabelValues(view).Inc()
		return false
	}

	metrics.CacheHits.WithLabelValues(view).Inc()
	return true
}

func (h *DashboardHandler) remember(c *fiber.Ctx, view string, response interface{}) {
	if h.cache == nil {
		return
	}
	if err := h.cache.SetView(c.Context(), view, response); err != nil {
		logger.Warn("View cache store failed", zap.String("view", view), zap.Error(err))
	}
}

func queryError(c *fiber.Ctx, what string, err error) error {
	logger.Error("Query failed", zap.String("query", what), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to load " + what,
	})
}
