package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/gorilla/mux"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

const defaultKeepAliveInterval = 30 * time.Second

// handleEvents streams pipeline progress for one user as server-sent events.
// The stream stays open until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	user := vars["userAddress"]

	if !addressPattern.MatchString(user) {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid user address", map[string]interface{}{
			"userAddress": user,
		})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, ErrCodeNotSupported, "Streaming is not supported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := s.hub.Subscribe(user)
	defer s.hub.Unsubscribe(sub)

	s.logger.WithField("user", sub.User).Info("Progress stream opened")
	defer s.logger.WithField("user", sub.User).Info("Progress stream closed")

	interval := s.config.KeepAliveInterval
	if interval <= 0 {
		interval = defaultKeepAliveInterval
	}
	keepAlive := time.NewTicker(interval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case update, ok := <-sub.C:
			if !ok {
				return
			}
			payload, err := json.Marshal(update)
			if err != nil {
				s.logger.WithError(err).Error("Failed to encode progress update")
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()

		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
