package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"alertledger/pkg/structlog"
)

// handleLive streams classified events to the caller as server-sent
// events. Subscribers receive only events published after they connect;
// there is no replay. A slow consumer is dropped-from, not waited-on:
// the hub discards events its buffer cannot hold.
func (s *server) handleLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// Subscribe before the headers go out so a client that has seen the
	// 200 is guaranteed to receive everything published afterwards.
	sub := s.hub.Subscribe()
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	s.log.Info("live subscriber connected", structlog.Fields{"remote": r.RemoteAddr})

	// Keepalive comments stop idle proxies from closing the stream.
	keepalive := time.NewTicker(25 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case evt, open := <-sub.C:
			if !open {
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: alert\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
