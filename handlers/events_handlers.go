package handlers

import (
	"bufio"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"orderdesk/apperr"
	"orderdesk/events"
	"orderdesk/models"
)

// HandleEvents streams a topic as server-sent events until the client goes
// away or the bus stops.
func (h *Handler) HandleEvents(c *fiber.Ctx) error {
	topic := c.Query("topic", models.OrderEventsTopic)
	if topic != models.OrderEventsTopic {
		return apperr.Validation("Unknown topic %q", topic)
	}
	sub, err := h.Bus.Subscribe(topic)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "subscribe to %s", topic)
	}

	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = events.DefaultHeartbeat
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer sub.Close()
		if err := events.WriteHeartbeat(w); err != nil {
			return
		}

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		for {
			select {
			case evt, open := <-sub.C:
				if !open {
					return
				}
				if err := events.WriteSSE(w, evt); err != nil {
					log.Printf("[FEED] client on %s went away: %v", topic, err)
					return
				}
			case <-ticker.C:
				if err := events.WriteHeartbeat(w); err != nil {
					return
				}
			}
		}
	}))
	return nil
}
