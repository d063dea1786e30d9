package web

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jimsantora/librarysync/internal/models"
	"github.com/jimsantora/librarysync/internal/progress"
	"github.com/jimsantora/librarysync/internal/queue"
	"github.com/jimsantora/librarysync/internal/storage"
	"github.com/jimsantora/librarysync/internal/sync"
	"github.com/jimsantora/librarysync/internal/syncstate"
)

// Handlers contains every HTTP handler for the §6.1 sync-critical REST
// surface, grounded on the teacher's Handlers struct but retargeted from
// direct repository CRUD to the Catalog Store/Job Queue/Sync State
// collaborators that now own the actual behavior.
type Handlers struct {
	catalog *storage.Catalog
	state   *syncstate.State
	tracker *progress.Tracker
	queue   *queue.Queue
	logger  *logrus.Logger
}

// NewHandlers constructs a Handlers bound to its collaborators.
func NewHandlers(catalog *storage.Catalog, state *syncstate.State, tracker *progress.Tracker, q *queue.Queue, logger *logrus.Logger) *Handlers {
	return &Handlers{catalog: catalog, state: state, tracker: tracker, queue: q, logger: logger}
}

// HealthCheck returns the health status of the application.
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// writeStoreError maps a *storage.StoreError (or any other error) to the
// §6.1/§7 HTTP status/body contract.
func (h *Handlers) writeStoreError(c *gin.Context, err error) {
	var storeErr *storage.StoreError
	if !errors.As(err, &storeErr) {
		h.logger.WithError(err).Error("unclassified error")
		c.JSON(http.StatusInternalServerError, errorBody(c, "INTERNAL_ERROR", "an internal error occurred", nil))
		return
	}

	status := http.StatusInternalServerError
	switch storeErr.Kind {
	case storage.ErrKindValidation:
		status = http.StatusBadRequest
	case storage.ErrKindNotFound:
		status = http.StatusNotFound
	case storage.ErrKindConflict:
		status = http.StatusConflict
	case storage.ErrKindAuth:
		status = http.StatusUnauthorized
	case storage.ErrKindRateLimited:
		status = http.StatusTooManyRequests
	case storage.ErrKindExternal, storage.ErrKindInternal:
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).Error("request failed")
	}
	var details gin.H
	if len(storeErr.Fields) > 0 {
		details = gin.H{"fields": storeErr.Fields}
	}
	c.JSON(status, errorBody(c, string(storeErr.Kind), storeErr.Message, details))
}

// errorBody builds the unified §6.1/§7 error envelope: `code`, `message`,
// `details`, `timestamp`, and `trace_id` (the request ID RequestIDMiddleware
// already stashed in the gin context).
func errorBody(c *gin.Context, code, message string, details gin.H) gin.H {
	traceID, _ := c.Get("request_id")
	return gin.H{"error": gin.H{
		"code":      code,
		"message":   message,
		"details":   details,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"trace_id":  traceID,
	}}
}

func paginationParams(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	return page, limit
}

func pageCount(total int64, limit int) int64 {
	if limit <= 0 {
		return 0
	}
	pages := total / int64(limit)
	if total%int64(limit) != 0 {
		pages++
	}
	return pages
}

// Platform Handlers

// GetPlatforms returns known platforms, optionally filtered to those with
// a reachable API.
func (h *Handlers) GetPlatforms(c *gin.Context) {
	enabled := c.Query("enabled") == "true"
	platforms, err := h.catalog.ListPlatforms(enabled)
	if err != nil {
		h.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"platforms": platforms})
}

// Library Handlers

// GetLibraries returns a page of libraries.
func (h *Handlers) GetLibraries(c *gin.Context) {
	page, limit := paginationParams(c)

	libraries, total, err := h.catalog.ListLibraries(page, limit)
	if err != nil {
		h.writeStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"libraries": libraries,
		"page":      page,
		"pages":     pageCount(total, limit),
		"total":     total,
	})
}

// CreateLibrary registers a new platform/user-identifier pair.
func (h *Handlers) CreateLibrary(c *gin.Context) {
	var body struct {
		PlatformID     uuid.UUID              `json:"platform_id" binding:"required"`
		UserIdentifier string                 `json:"user_identifier" binding:"required"`
		DisplayName    string                 `json:"display_name"`
		Credentials    map[string]interface{} `json:"credentials"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(c, "Validation", err.Error(), nil))
		return
	}

	library := &models.UserLibrary{
		PlatformID:     body.PlatformID,
		UserIdentifier: body.UserIdentifier,
		DisplayName:    body.DisplayName,
		Credentials:    models.JSONMap(body.Credentials),
		SyncEnabled:    true,
		SyncStatus:     models.SyncStatusPending,
	}

	if err := h.catalog.UpsertLibrary(library); err != nil {
		h.writeStoreError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"library": library})
}

func (h *Handlers) parseLibraryID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(c, "Validation", "invalid library id", nil))
		return uuid.Nil, false
	}
	return id, true
}

// GetLibrary returns a specific library by id.
func (h *Handlers) GetLibrary(c *gin.Context) {
	id, ok := h.parseLibraryID(c)
	if !ok {
		return
	}

	library, err := h.catalog.GetLibrary(id)
	if err != nil {
		h.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"library": library})
}

// UpdateLibrary applies a partial update to a library.
func (h *Handlers) UpdateLibrary(c *gin.Context) {
	id, ok := h.parseLibraryID(c)
	if !ok {
		return
	}

	var body struct {
		DisplayName *string `json:"display_name"`
		SyncEnabled *bool   `json:"sync_enabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(c, "Validation", err.Error(), nil))
		return
	}

	updates := map[string]interface{}{}
	if body.DisplayName != nil {
		updates["display_name"] = *body.DisplayName
	}
	if body.SyncEnabled != nil {
		updates["sync_enabled"] = *body.SyncEnabled
	}

	library, err := h.catalog.UpdateLibrary(id, updates)
	if err != nil {
		h.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"library": library})
}

// DeleteLibrary deletes a library and cascades to its UserGames.
func (h *Handlers) DeleteLibrary(c *gin.Context) {
	id, ok := h.parseLibraryID(c)
	if !ok {
		return
	}

	if err := h.catalog.DeleteLibrary(id); err != nil {
		h.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "library deleted"})
}

// SyncLibrary enqueues a sync job for a library: `high` priority for a
// manual/forced request, `default` otherwise (§4.7/§6.1).
func (h *Handlers) SyncLibrary(c *gin.Context) {
	id, ok := h.parseLibraryID(c)
	if !ok {
		return
	}

	library, err := h.catalog.GetLibrary(id)
	if err != nil {
		h.writeStoreError(c, err)
		return
	}

	var body struct {
		Force    bool   `json:"force"`
		SyncType string `json:"sync_type"`
	}
	_ = c.ShouldBindJSON(&body)

	syncType := models.SyncOperationIncremental
	switch body.SyncType {
	case "full":
		syncType = models.SyncOperationFull
	case "manual":
		syncType = models.SyncOperationManual
	case "", "incremental":
		syncType = models.SyncOperationIncremental
	default:
		c.JSON(http.StatusBadRequest, errorBody(c, "Validation", "sync_type must be one of manual, incremental, full", nil))
		return
	}

	if !body.Force {
		syncing, err := h.state.IsSyncing(c.Request.Context(), id)
		if err != nil {
			h.writeStoreError(c, err)
			return
		}
		if syncing {
			details := gin.H{}
			if op, opErr := h.catalog.GetLatestSyncOperation(id); opErr == nil {
				details["operation_id"] = op.ID
			}
			c.JSON(http.StatusConflict, errorBody(c, "SYNC_ALREADY_IN_PROGRESS", "a sync is already running for this library", details))
			return
		}
	} else {
		if err := h.state.ForceReleaseLock(c.Request.Context(), id); err != nil {
			h.logger.WithError(err).Warn("sync: failed to force-release lock before re-enqueue")
		}
	}

	priority := queue.Default
	if body.Force || syncType == models.SyncOperationManual {
		priority = queue.High
	}

	jobID, err := h.queue.Enqueue(c.Request.Context(), priority, "syncLibrary", sync.JobArgs{
		LibraryID: id,
		Force:     body.Force,
		SyncType:  syncType,
	}, nil)
	if err != nil {
		h.logger.WithError(err).Error("sync: failed to enqueue job")
		c.JSON(http.StatusInternalServerError, errorBody(c, "INTERNAL_ERROR", "failed to enqueue sync job", nil))
		return
	}

	_ = h.catalog.SetLibrarySyncStatus(id, models.SyncStatusQueued, "")

	h.logger.WithFields(logrus.Fields{"library_id": id, "job_id": jobID}).Info("sync: job enqueued")

	c.JSON(http.StatusAccepted, gin.H{
		"message":    "library sync queued",
		"job_id":     jobID,
		"library_id": library.ID,
	})
}

// GetSyncStatus returns the latest ProgressEvent for a library, falling
// back to the library's own CS-mirrored fields when no snapshot exists
// (§4.5/§6.1).
func (h *Handlers) GetSyncStatus(c *gin.Context) {
	id, ok := h.parseLibraryID(c)
	if !ok {
		return
	}

	ev, found, err := h.tracker.Latest(c.Request.Context(), id)
	if err != nil {
		h.logger.WithError(err).Warn("sync: failed to read progress snapshot")
	}
	if found {
		c.JSON(http.StatusOK, gin.H{"progress": ev})
		return
	}

	library, err := h.catalog.GetLibrary(id)
	if err != nil {
		h.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"progress": gin.H{
		"libraryId": library.ID,
		"status":    library.SyncStatus,
		"message":   library.SyncError,
	}})
}

// CancelSync deletes the library's sync lock, causing the running worker
// to observe the pause signal on its next checkpoint and stop (§4.4/§6.1).
func (h *Handlers) CancelSync(c *gin.Context) {
	id, ok := h.parseLibraryID(c)
	if !ok {
		return
	}

	if err := h.state.ForceReleaseLock(c.Request.Context(), id); err != nil {
		h.logger.WithError(err).Error("sync: failed to release lock for cancel")
		c.JSON(http.StatusInternalServerError, errorBody(c, "INTERNAL_ERROR", "failed to cancel sync", nil))
		return
	}

	if err := h.state.SetStatus(c.Request.Context(), id, models.SyncStatusCancelled, ""); err != nil {
		h.logger.WithError(err).Warn("sync: failed to mark checkpoint cancelled")
	}
	_ = h.catalog.SetLibrarySyncStatus(id, models.SyncStatusCancelled, "")

	c.JSON(http.StatusAccepted, gin.H{"message": "sync cancelled"})
}

// Game Handlers

// GetGames returns a page of catalog games.
func (h *Handlers) GetGames(c *gin.Context) {
	page, limit := paginationParams(c)

	games, total, err := h.catalog.ListGames(page, limit)
	if err != nil {
		h.writeStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"games": games,
		"page":  page,
		"pages": pageCount(total, limit),
		"total": total,
	})
}

// SearchGames runs the weighted full-text search (§4.3).
func (h *Handlers) SearchGames(c *gin.Context) {
	query := c.Query("q")
	page, limit := paginationParams(c)

	results, err := h.catalog.SearchGames(query, limit, (page-1)*limit)
	if err != nil {
		h.writeStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results, "page": page, "query": query})
}

// GetGame returns a game plus, when library_id is given, the caller's
// UserGame attributes for it.
func (h *Handlers) GetGame(c *gin.Context) {
	gameID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(c, "Validation", "invalid game id", nil))
		return
	}

	var libraryID *uuid.UUID
	if raw := c.Query("library_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody(c, "Validation", "invalid library_id", nil))
			return
		}
		libraryID = &parsed
	}

	game, userGame, err := h.catalog.GetGameDetails(gameID, libraryID)
	if err != nil {
		h.writeStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"game": game, "user_game": userGame})
}
