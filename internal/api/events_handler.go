package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mattjoyce/scflocal/internal/events"
)

// keepAliveInterval spaces SSE comment lines on an idle stream.
const keepAliveInterval = 15 * time.Second

// sseStream frames lifecycle events as server-sent events and remembers the
// last id written so replayed and live events are never sent twice.
type sseStream struct {
	w      io.Writer
	flush  func()
	lastID int64
}

func (s *sseStream) send(ev events.Event) error {
	if ev.ID <= s.lastID {
		return nil
	}
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, ev.Data); err != nil {
		return err
	}
	s.lastID = ev.ID
	return nil
}

func (s *sseStream) keepAlive() error {
	_, err := io.WriteString(s.w, ": keep-alive\n\n")
	return err
}

// handleEvents handles GET /events, a stream of invocation lifecycle events.
// A Last-Event-ID header replays buffered events the client has not seen.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Subscribe before the replay so nothing published in between is lost.
	live, cancel := s.events.Subscribe()
	defer cancel()

	stream := &sseStream{w: w, flush: flusher.Flush, lastID: parseLastEventID(r.Header.Get("Last-Event-ID"))}
	for _, ev := range s.events.Since(stream.lastID) {
		if err := stream.send(ev); err != nil {
			return
		}
	}
	stream.flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-live:
			if !ok {
				return
			}
			err = stream.send(ev)
		case <-ticker.C:
			err = stream.keepAlive()
		}
		if err != nil {
			return
		}
		stream.flush()
	}
}

func parseLastEventID(v string) int64 {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
