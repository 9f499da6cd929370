// mediadrop/api/router.go
package api

import (
	"github.com/gin-gonic/gin"

	"mediadrop/config"
	"mediadrop/job"
	"mediadrop/progress"
	"mediadrop/store"
)

func SetupRouter(coord *job.Coordinator, st *store.Store, bus *progress.Bus, cfg *config.Config) *gin.Engine {
	r := gin.Default()
	h := NewHandler(coord, st, bus, cfg)

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		v1.POST("/jobs", h.handleSubmitJob)
		v1.GET("/jobs", h.handleListJobs)
		v1.GET("/jobs/:jobId", h.handleGetJob)
		v1.PATCH("/jobs/:jobId/cancel", h.handleCancelJob)

		// Progress events stream over a per-job websocket.
		v1.GET("/jobs/:jobId/events", h.handleJobEvents)
	}

	// Delivery lives outside the API group: the completion event hands the
	// client this exact path.
	r.GET("/downloads/:name", h.handleDownload)

	return r
}
