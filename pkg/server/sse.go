package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/logflow/poflow/pkg/ingest"
)

// Broker fans import progress out to Server-Sent Events subscribers.
// Publishing never blocks: a slow subscriber misses intermediate events.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan ingest.Progress]struct{}
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subscribers: make(map[string]map[chan ingest.Progress]struct{})}
}

// Subscribe registers a listener for one import.
func (b *Broker) Subscribe(batchID string) chan ingest.Progress {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan ingest.Progress, 16)
	if b.subscribers[batchID] == nil {
		b.subscribers[batchID] = make(map[chan ingest.Progress]struct{})
	}
	b.subscribers[batchID][ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes a listener.
func (b *Broker) Unsubscribe(batchID string, ch chan ingest.Progress) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.subscribers[batchID]; ok {
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(b.subscribers, batchID)
		}
	}
}

// Publish delivers p to the subscribers of its import. It matches the
// signature of ingest.WithProgressHook.
func (b *Broker) Publish(p ingest.Progress) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[p.BatchID] {
		select {
		case ch <- p:
		default:
		}
	}
}

// HasSubscribers reports whether anyone listens to an import.
func (b *Broker) HasSubscribers(batchID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[batchID]) > 0
}

// handleImportEvents streams the job as "init", then "progress" per
// committed batch, then "complete" once it is terminal.
func (s *Server) handleImportEvents(w http.ResponseWriter, r *http.Request) {
	tenant, err := tenantFrom(r)
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	batchID := r.PathValue("id")

	job, err := s.imports.ImportStatus(r.Context(), tenant, batchID)
	if err != nil {
		s.jsonError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.broker.Subscribe(batchID)
	defer s.broker.Unsubscribe(batchID, ch)

	writeEvent(w, "init", job)
	flusher.Flush()
	if job.Status.IsTerminal() {
		writeEvent(w, "complete", job)
		flusher.Flush()
		return
	}

	ticker := time.NewTicker(s.eventPoll)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case p, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, "progress", p)
			flusher.Flush()
		case <-ticker.C:
			job, err := s.imports.ImportStatus(r.Context(), tenant, batchID)
			if err != nil {
				writeEvent(w, "error", map[string]string{"error": err.Error()})
				flusher.Flush()
				return
			}
			if job.Status.IsTerminal() {
				writeEvent(w, "complete", job)
				flusher.Flush()
				return
			}
		}
	}
}

// writeEvent writes one event in SSE format.
func writeEvent(w http.ResponseWriter, event string, data any) {
	fmt.Fprintf(w, "id: %d\n", time.Now().UnixNano())
	fmt.Fprintf(w, "event: %s\n", event)
	payload, _ := json.Marshal(data)
	fmt.Fprintf(w, "data: %s\n\n", payload)
}
