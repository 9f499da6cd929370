// mediadrop/api/handler.go
package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"mediadrop/config"
	"mediadrop/extract"
	"mediadrop/job"
	"mediadrop/progress"
	"mediadrop/store"
)

type Handler struct {
	coordinator *job.Coordinator
	store       *store.Store
	bus         *progress.Bus
	cfg         *config.Config
	upgrader    websocket.Upgrader
}

func NewHandler(coord *job.Coordinator, st *store.Store, bus *progress.Bus, cfg *config.Config) *Handler {
	return &Handler{
		coordinator: coord,
		store:       st,
		bus:         bus,
		cfg:         cfg,
		upgrader: websocket.Upgrader{
			// Clients connect from arbitrary origins, as the family's
			// Socket.IO predecessors did with cors_allowed_origins="*".
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

type SubmitRequest struct {
	JobID string `json:"jobId" binding:"required"`
	URL   string `json:"url" binding:"required"`
	Kind  string `json:"kind" binding:"required"`
}

// handleSubmitJob accepts a download job. Resubmitting an active job id is
// an idempotent acknowledgment, not an error.
func (h *Handler) handleSubmitJob(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.coordinator.Submit(req.JobID, req.URL, extract.Kind(req.Kind))
	if errors.Is(err, job.ErrAlreadyActive) {
		c.JSON(http.StatusOK, gin.H{"jobId": req.JobID, "status": "already_active"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"jobId": req.JobID, "status": "accepted"})
}

// handleListJobs lists active jobs.
func (h *Handler) handleListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, h.coordinator.List())
}

// handleGetJob returns the snapshot of one active job. Terminal jobs are
// not retained, so a finished id is indistinguishable from an unknown one.
func (h *Handler) handleGetJob(c *gin.Context) {
	j, found := h.coordinator.Get(c.Param("jobId"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active job with that id"})
		return
	}
	c.JSON(http.StatusOK, j)
}

// handleCancelJob requests cancellation of an active job.
func (h *Handler) handleCancelJob(c *gin.Context) {
	if err := h.coordinator.Cancel(c.Param("jobId")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Job cancellation requested"})
}

// handleDownload streams a stored artifact. Unknown names and missing files
// are 404; an entry past its expiry is 410 Gone, matching the source
// family's distinction between never-there and already-reaped.
func (h *Handler) handleDownload(c *gin.Context) {
	// Route params arrive percent-decoded.
	name := c.Param("name")

	art, err := h.store.Lookup(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown artifact"})
		return
	}
	if h.store.IsExpired(name) {
		c.JSON(http.StatusGone, gin.H{"error": "artifact expired"})
		return
	}

	f, err := os.Open(art.Path)
	if err != nil {
		// Index entry without a backing file: not deliverable.
		log.Printf("Artifact %s has no backing file at %s: %v", name, art.Path, err)
		c.JSON(http.StatusNotFound, gin.H{"error": "artifact file missing"})
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not stat artifact"})
		return
	}

	extraHeaders := map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, name),
		"Cache-Control":       "no-store, no-cache, must-revalidate",
	}
	// DataFromReader streams in bounded chunks; the file is never buffered
	// whole. Length comes from the size observed at serve time.
	c.DataFromReader(http.StatusOK, info.Size(), "application/octet-stream", f, extraHeaders)

	if h.cfg.EvictionPolicy == config.EvictionServeOnce {
		// A short grace keeps the file around long enough for a slow
		// client to finish reading before the sweep takes it.
		if err := h.store.MarkForImmediateRemoval(name, h.cfg.ServeGrace); err != nil {
			log.Printf("Could not mark %s for removal after serve: %v", name, err)
		}
	}
}
