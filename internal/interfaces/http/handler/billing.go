package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	appbilling "github.com/notaria/backend/internal/application/billing"
	"github.com/notaria/backend/internal/domain/billing"
	"github.com/notaria/backend/internal/infrastructure/feed"
	"github.com/notaria/backend/internal/interfaces/http/dto"
)

// IdempotencyKeyHeader lets the sync agent mark a retried submission
const IdempotencyKeyHeader = "Idempotency-Key"

// DefaultMaxUploadSize caps multipart imports when no limit is configured
const DefaultMaxUploadSize int64 = 50 << 20

// SyncUseCase is the slice of appbilling.SyncService the handler needs
type SyncUseCase interface {
	Sync(ctx context.Context, req appbilling.SyncRequest, idempotencyKey string) (*appbilling.RunSummary, error)
	Status(ctx context.Context, now time.Time) (*appbilling.SyncStatus, error)
	History(ctx context.Context, limit int) ([]appbilling.SyncLogResponse, error)
}

// ImportRunner runs one uploaded export through the batch pipeline
type ImportRunner interface {
	Run(ctx context.Context, file appbilling.FeedFile) (*appbilling.RunSummary, error)
}

// BillingHandler serves the Koinor sync agent and manual imports
type BillingHandler struct {
	BaseHandler
	sync          SyncUseCase
	imports       ImportRunner
	maxUploadSize int64
	now           func() time.Time
}

// NewBillingHandler creates a BillingHandler. maxUploadSize <= 0 uses DefaultMaxUploadSize.
func NewBillingHandler(sync SyncUseCase, imports ImportRunner, maxUploadSize int64) *BillingHandler {
	if maxUploadSize <= 0 {
		maxUploadSize = DefaultMaxUploadSize
	}
	return &BillingHandler{
		sync:          sync,
		imports:       imports,
		maxUploadSize: maxUploadSize,
		now:           time.Now,
	}
}

// Sync godoc
// POST /api/v1/billing/sync
func (h *BillingHandler) Sync(c *gin.Context) {
	var req appbilling.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge, "Request body too large")
			return
		}
		h.Error(c, http.StatusBadRequest, billing.ErrCodeValidation, "Invalid request body: "+err.Error())
		return
	}

	summary, err := h.sync.Sync(c.Request.Context(), req, c.GetHeader(IdempotencyKeyHeader))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}

// Import godoc
// POST /api/v1/billing/imports
func (h *BillingHandler) Import(c *gin.Context) {
	var form dto.ImportForm
	if err := c.ShouldBind(&form); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	kind, err := feed.ParseKind(form.Type)
	if err != nil {
		h.Error(c, http.StatusBadRequest, billing.ErrCodeValidation, err.Error())
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		h.BadRequest(c, "Multipart field \"file\" is required")
		return
	}
	if header.Size > h.maxUploadSize {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge,
			fmt.Sprintf("File exceeds %d bytes", h.maxUploadSize))
		return
	}
	f, err := header.Open()
	if err != nil {
		h.HandleError(c, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.maxUploadSize+1))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if int64(len(data)) > h.maxUploadSize {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge,
			fmt.Sprintf("File exceeds %d bytes", h.maxUploadSize))
		return
	}

	summary, err := h.imports.Run(c.Request.Context(), appbilling.FeedFile{
		Name: filepath.Base(header.Filename),
		Data: data,
		Kind: kind,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}

// Status godoc
// GET /api/v1/billing/sync/status
func (h *BillingHandler) Status(c *gin.Context) {
	status, err := h.sync.Status(c.Request.Context(), h.now())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, status)
}

// History godoc
// GET /api/v1/billing/sync/history
func (h *BillingHandler) History(c *gin.Context) {
	var q dto.HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.Error(c, http.StatusBadRequest, billing.ErrCodeValidation, "limit must be a positive integer")
		return
	}
	logs, err := h.sync.History(c.Request.Context(), q.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, logs)
}
