// mediadrop/api/ws.go
package api

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"

	"mediadrop/progress"
)

// handleJobEvents upgrades the request to a websocket and forwards every
// bus event for the job until the stream hits a terminal state or the
// client goes away. There is no replay: a reconnecting client sees the
// current snapshot once, then only events published after it subscribed.
func (h *Handler) handleJobEvents(c *gin.Context) {
	jobID := c.Param("jobId")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade events request for job %s: %v", jobID, err)
		return
	}
	defer conn.Close()

	token, events := h.bus.Subscribe(jobID)
	defer h.bus.Unsubscribe(token)

	// Orient the subscriber: if the job is active, send its current state
	// before the live feed.
	if j, ok := h.coordinator.Get(jobID); ok {
		snapshot := progress.Event{
			JobID:     jobID,
			State:     j.State,
			Percent:   j.Percent,
			Timestamp: time.Now(),
		}
		if err := conn.WriteJSON(snapshot); err != nil {
			return
		}
	}

	// The read pump exists only to notice the peer closing; inbound
	// payloads are ignored.
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-disconnected:
			return
		case ev := <-events:
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
			if ev.State.Terminal() {
				return
			}
		}
	}
}
