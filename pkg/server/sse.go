package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// handleStream pushes timeline entries to the observer as server-sent
// events until the client disconnects. Each entry is one SSE message whose
// event name is the entry type.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "response writer does not support streaming")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	id, ch := s.timeline.Subscribe()
	defer s.timeline.Unsubscribe(id)

	fmt.Fprintf(w, ": connected %s\n\n", id)
	flusher.Flush()

	for {
		select {
		case entry, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(entry)
			if err != nil {
				s.logger.Warn("stream entry marshal failed", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", entry.Type, data)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
