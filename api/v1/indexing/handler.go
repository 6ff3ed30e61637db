package indexing

import (
	"context"
	"regexp"
	"time"

	"go_seoindex/internal/httpx"
	"go_seoindex/internal/indexing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const maxReindexSlugs = 1000

var slugPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// Indexer is the orchestrator surface used by the handlers
type Indexer interface {
	OnTenantCreated(ctx context.Context, slug string) indexing.AggregateResult
	OnTenantUpdated(ctx context.Context, slug string) indexing.AggregateResult
	OnProductCreated(ctx context.Context, tenantSlug, productID, productSlug string) indexing.AggregateResult
	OnProductUpdated(ctx context.Context, tenantSlug, productID, productSlug string) indexing.AggregateResult
	OnProductDeleted(ctx context.Context, tenantSlug string) indexing.AggregateResult
	BatchReindex(ctx context.Context, slugs []string) indexing.BatchResult
	Detach(ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context))
	Status(ctx context.Context) (indexing.Status, error)
	DetailedStats(ctx context.Context) (indexing.DetailedStats, error)
}

// SlugSource lists the tenants to reindex; nil when no database is configured
type SlugSource interface {
	ActiveSlugs(ctx context.Context) ([]string, error)
}

// Handler handles indexing requests
type Handler struct {
	indexer Indexer
	tenants SlugSource
	logger  *logrus.Entry
}

// NewHandler creates a new indexing handler
func NewHandler(indexer Indexer, tenants SlugSource, logger *logrus.Entry) *Handler {
	return &Handler{
		indexer: indexer,
		tenants: tenants,
		logger:  logger.WithField("component", "indexing-api"),
	}
}

// TenantEventRequest represents a tenant change notification
type TenantEventRequest struct {
	Slug   string `json:"slug" binding:"required"`
	Action string `json:"action" binding:"required,oneof=created updated"`
}

// ProductEventRequest represents a product change notification
type ProductEventRequest struct {
	TenantSlug  string `json:"tenantSlug" binding:"required"`
	ProductID   string `json:"productId"`
	ProductSlug string `json:"productSlug"`
	Action      string `json:"action" binding:"required,oneof=created updated deleted"`
}

// ReindexRequest represents a batch reindex request
type ReindexRequest struct {
	Slugs []string `json:"slugs" binding:"required,min=1"`
}

// ReindexResponse acknowledges a background reindex job
type ReindexResponse struct {
	JobID string `json:"jobId"`
	Total int    `json:"total"`
}

// Status handles GET /api/v1/indexing/status
func (h *Handler) Status(c *gin.Context) {
	st, err := h.indexer.Status(c.Request.Context())
	if err != nil {
		httpx.FailErr(c, httpx.ErrStoreError("failed to read indexing status", err))
		return
	}
	httpx.OK(c, st)
}

// Stats handles GET /api/v1/indexing/stats
func (h *Handler) Stats(c *gin.Context) {
	ds, err := h.indexer.DetailedStats(c.Request.Context())
	if err != nil {
		httpx.FailErr(c, httpx.ErrStoreError("failed to read indexing stats", err))
		return
	}
	httpx.OK(c, ds)
}

// TenantEvent handles POST /api/v1/indexing/tenants/event
func (h *Handler) TenantEvent(c *gin.Context) {
	var req TenantEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}
	if !slugPattern.MatchString(req.Slug) {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid tenant slug"))
		return
	}

	ctx := c.Request.Context()
	var res indexing.AggregateResult
	if req.Action == "created" {
		res = h.indexer.OnTenantCreated(ctx, req.Slug)
	} else {
		res = h.indexer.OnTenantUpdated(ctx, req.Slug)
	}
	httpx.OK(c, res)
}

// ProductEvent handles POST /api/v1/indexing/products/event
func (h *Handler) ProductEvent(c *gin.Context) {
	var req ProductEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}
	if !slugPattern.MatchString(req.TenantSlug) {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid tenant slug"))
		return
	}
	if req.Action != "deleted" && req.ProductID == "" && req.ProductSlug == "" {
		httpx.FailErr(c, httpx.ErrParamInvalid("productId or productSlug is required"))
		return
	}

	ctx := c.Request.Context()
	var res indexing.AggregateResult
	switch req.Action {
	case "created":
		res = h.indexer.OnProductCreated(ctx, req.TenantSlug, req.ProductID, req.ProductSlug)
	case "updated":
		res = h.indexer.OnProductUpdated(ctx, req.TenantSlug, req.ProductID, req.ProductSlug)
	default:
		res = h.indexer.OnProductDeleted(ctx, req.TenantSlug)
	}
	httpx.OK(c, res)
}

// Reindex handles POST /api/v1/indexing/reindex
func (h *Handler) Reindex(c *gin.Context) {
	var req ReindexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}
	if len(req.Slugs) > maxReindexSlugs {
		httpx.FailErr(c, httpx.ErrParamInvalid("too many slugs"))
		return
	}
	for _, slug := range req.Slugs {
		if !slugPattern.MatchString(slug) {
			httpx.FailErr(c, httpx.ErrParamInvalid("invalid tenant slug: "+slug))
			return
		}
	}

	httpx.Accepted(c, "reindex started", h.startReindex(c.Request.Context(), dedupe(req.Slugs)))
}

// ReindexAll handles POST /api/v1/indexing/reindex-all
func (h *Handler) ReindexAll(c *gin.Context) {
	if h.tenants == nil {
		httpx.FailErr(c, httpx.ErrIndexingUnavailable("tenant database not configured"))
		return
	}

	slugs, err := h.tenants.ActiveSlugs(c.Request.Context())
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to list tenants", err))
		return
	}
	httpx.Accepted(c, "reindex started", h.startReindex(c.Request.Context(), slugs))
}

func (h *Handler) startReindex(ctx context.Context, slugs []string) ReindexResponse {
	jobID := uuid.NewString()
	timeout := time.Duration(len(slugs)/indexing.DefaultChunkSize+1) * time.Minute

	h.indexer.Detach(ctx, "reindex-"+jobID, timeout, func(ctx context.Context) {
		res := h.indexer.BatchReindex(ctx, slugs)
		h.logger.WithFields(logrus.Fields{
			"job":        jobID,
			"total":      res.Total,
			"successful": res.Successful,
			"failed":     res.FailedSlugs,
		}).Info("Reindex job finished")
	})
	return ReindexResponse{JobID: jobID, Total: len(slugs)}
}

func dedupe(slugs []string) []string {
	seen := make(map[string]bool, len(slugs))
	out := make([]string, 0, len(slugs))
	for _, s := range slugs {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
