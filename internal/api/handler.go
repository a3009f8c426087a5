package api

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"assessment-results/internal/config"
	"assessment-results/internal/logger"
	"assessment-results/internal/model"
	"assessment-results/internal/storage"
	"assessment-results/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Session is implemented by results.Service.
type Session interface {
	Load(ctx context.Context, scope model.Scope) ([]model.AssessmentResult, error)
	Rows(ctx context.Context, scope model.Scope) ([]model.AssessmentResult, error)
	Edit(ctx context.Context, editorPartyID int64, req model.EditRequest) (*model.Draft, error)
	Draft(ctx context.Context, key model.DraftKey) (*model.Draft, error)
	Discard(ctx context.Context, key model.DraftKey) error
	Save(ctx context.Context, editorPartyID int64, req model.SaveRequest) (*model.SaveResponse, error)
}

// Records is the slice of db.Repository the handlers read and write.
type Records interface {
	CreateImport(ctx context.Context, imp *model.Import) (int64, error)
	GetImport(ctx context.Context, id int64) (*model.Import, error)
	GetSaveRun(ctx context.Context, id string) (*model.SaveRun, error)
}

type ImportEnqueuer interface {
	EnqueueImportJob(ctx context.Context, job model.ImportJob) error
}

type ChangeFeed interface {
	Subscribe(ctx context.Context, scope model.Scope) (<-chan model.FieldChange, error)
}

type QueueMonitor interface {
	Depths(ctx context.Context) (map[string]int64, error)
}

type Handler struct {
	session  Session
	records  Records
	producer ImportEnqueuer
	feed     ChangeFeed
	storage  storage.Storage
	queues   QueueMonitor
	cfg      *config.Config
	log      zerolog.Logger
}

func NewHandler(
	session Session,
	records Records,
	producer ImportEnqueuer,
	feed ChangeFeed,
	storage storage.Storage,
	queues QueueMonitor,
	cfg *config.Config,
) *Handler {
	return &Handler{
		session:  session,
		records:  records,
		producer: producer,
		feed:     feed,
		storage:  storage,
		queues:   queues,
		cfg:      cfg,
		log:      logger.Component("api"),
	}
}

func (h *Handler) LoadResults(c *gin.Context) {
	var scope model.Scope
	if err := c.ShouldBindJSON(&scope); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	rows, err := h.session.Load(c.Request.Context(), scope)
	if err != nil {
		h.respondError(c, err, "Failed to load results")
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": rows})
}

func (h *Handler) ListResults(c *gin.Context) {
	var scope model.Scope
	if err := c.ShouldBindQuery(&scope); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid scope"})
		return
	}

	rows, err := h.session.Rows(c.Request.Context(), scope)
	if err != nil {
		h.respondError(c, err, "Failed to list results")
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": rows})
}

func (h *Handler) RecordEdit(c *gin.Context) {
	var req model.EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	draft, err := h.session.Edit(c.Request.Context(), actingPartyID(c), req)
	if err != nil {
		h.respondError(c, err, "Failed to record edit")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"edits":        draft.Edits,
		"touched_rows": draft.Edits.Touched(),
	})
}

func (h *Handler) GetDraft(c *gin.Context) {
	var scope model.Scope
	if err := c.ShouldBindQuery(&scope); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid scope"})
		return
	}

	key := model.DraftKey{Scope: scope, EditorPartyID: actingPartyID(c)}
	draft, err := h.session.Draft(c.Request.Context(), key)
	if err != nil {
		h.respondError(c, err, "Failed to load draft")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"edits":        draft.Edits,
		"touched_rows": draft.Edits.Touched(),
	})
}

func (h *Handler) DiscardDraft(c *gin.Context) {
	var scope model.Scope
	if err := c.ShouldBindQuery(&scope); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid scope"})
		return
	}

	key := model.DraftKey{Scope: scope, EditorPartyID: actingPartyID(c)}
	if err := h.session.Discard(c.Request.Context(), key); err != nil {
		h.respondError(c, err, "Failed to discard draft")
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) SaveResults(c *gin.Context) {
	var req model.SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Variant != "" && req.Variant != model.VariantTerm && req.Variant != model.VariantStateCBA {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown assessment variant"})
		return
	}

	resp, err := h.session.Save(c.Request.Context(), actingPartyID(c), req)
	if err != nil {
		h.respondError(c, err, "Failed to save results")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// StreamChanges pushes field-changed events for a scope as server-sent events.
func (h *Handler) StreamChanges(c *gin.Context) {
	var scope model.Scope
	if err := c.ShouldBindQuery(&scope); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid scope"})
		return
	}

	ctx := c.Request.Context()
	changes, err := h.feed.Subscribe(ctx, scope)
	if err != nil {
		h.respondError(c, err, "Failed to subscribe to changes")
		return
	}

	c.Stream(func(w io.Writer) bool {
		select {
		case change, ok := <-changes:
			if !ok {
				return false
			}
			c.SSEvent("field_changed", change)
			return true
		case <-ctx.Done():
			return false
		}
	})
}

func (h *Handler) CreateImport(c *gin.Context) {
	var req model.ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	ctx := c.Request.Context()
	exists, err := h.storage.Exists(ctx, req.S3Path)
	if err != nil {
		h.log.Error().Err(err).Str("s3_path", req.S3Path).Msg("Failed to check sheet")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if !exists {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Sheet not found", "s3_path": req.S3Path})
		return
	}

	imp := &model.Import{
		Scope:         req.Scope,
		EditorPartyID: actingPartyID(c),
		S3Path:        req.S3Path,
		Status:        model.ImportStatusUploaded,
	}
	id, err := h.records.CreateImport(ctx, imp)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create import")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	job := model.ImportJob{ImportID: id}
	if err := h.producer.EnqueueImportJob(ctx, job); err != nil {
		h.log.Error().Err(err).Int64("import_id", id).Msg("Failed to enqueue import job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue import job"})
		return
	}

	h.log.Info().
		Int64("import_id", id).
		Str("scope", req.Scope.String()).
		Str("s3_path", req.S3Path).
		Msg("Import job enqueued")

	c.JSON(http.StatusAccepted, gin.H{
		"message":   "Import queued successfully",
		"import_id": id,
	})
}

func (h *Handler) GetImportStatus(c *gin.Context) {
	importID, err := strconv.ParseInt(c.Param("import_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid import ID"})
		return
	}

	imp, err := h.records.GetImport(c.Request.Context(), importID)
	if err != nil {
		h.respondError(c, err, "Failed to load import")
		return
	}
	if imp.EditorPartyID != actingPartyID(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": errors.ErrImportNotFound.Error()})
		return
	}

	c.JSON(http.StatusOK, model.StatusResponse{
		ImportID:     imp.ID,
		Status:       imp.Status,
		EditedCells:  imp.EditedCells,
		ErrorMessage: imp.ErrorMessage,
		UpdatedAt:    imp.UpdatedAt,
	})
}

// GetSaveRun reports the outcome of one save. Runs of other editors are
// reported as not found.
func (h *Handler) GetSaveRun(c *gin.Context) {
	run, err := h.records.GetSaveRun(c.Request.Context(), c.Param("save_run_id"))
	if err != nil {
		h.respondError(c, err, "Failed to load save run")
		return
	}
	if run.EditorPartyID != actingPartyID(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": errors.ErrSaveRunNotFound.Error()})
		return
	}

	c.JSON(http.StatusOK, run)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	resp := gin.H{
		"status":  "healthy",
		"service": h.cfg.App.Name,
		"version": h.cfg.App.Version,
	}

	if h.queues != nil {
		depths, err := h.queues.Depths(c.Request.Context())
		if err != nil {
			h.log.Warn().Err(err).Msg("Health check could not reach Redis")
			resp["status"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
		resp["queues"] = depths
	}

	c.JSON(http.StatusOK, resp)
}

// respondError maps domain errors to HTTP statuses. Failures of the results
// API are reported with the generic message only.
func (h *Handler) respondError(c *gin.Context, err error, message string) {
	var validationErr errors.ValidationError
	switch {
	case errors.Is(err, errors.ErrMalformedPath),
		errors.Is(err, errors.ErrUnknownField),
		errors.Is(err, errors.ErrDerivedField):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, errors.ErrInvalidValue),
		errors.Is(err, errors.ErrNoActiveCommentBank),
		errors.Is(err, errors.ErrUnknownBankComment),
		errors.As(err, &validationErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, errors.ErrRowNotFound),
		errors.Is(err, errors.ErrDraftNotFound),
		errors.Is(err, errors.ErrImportNotFound),
		errors.Is(err, errors.ErrSaveRunNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, errors.ErrExclusionFailed),
		errors.Is(err, errors.ErrSaveFailed),
		errors.Is(err, errors.ErrExternalAPIError),
		errors.Is(err, errors.ErrAuthenticationFailed):
		h.log.Error().Err(err).Msg(message)
		c.JSON(http.StatusBadGateway, gin.H{"error": message})
	default:
		h.log.Error().Err(err).Msg(message)
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
	}
}
