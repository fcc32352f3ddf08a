package audit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agentgate/agentgate/gateway/pkg/contracts"
	"github.com/agentgate/agentgate/gateway/pkg/models"
)

// recentCapacity bounds the query window of already-flushed entries.
const recentCapacity = 1000

// Stream is a bounded in-memory buffer with periodic flush, subscriber
// fan-out, and filtered query. Append is atomic; flush swaps the buffer
// under the lock and emits outside it, so subscribers can never block
// writers.
type Stream struct {
	mu          sync.Mutex
	buffer      []models.AuditEntry
	recent      []models.AuditEntry // flushed entries retained for Query
	subscribers map[int]contracts.AuditHandler
	nextSubID   int

	bufferSize    int
	flushInterval time.Duration
	sink          contracts.AuditSink

	written       int64
	flushes       int64
	handlerErrors int64

	stop chan struct{}
	done chan struct{}
}

// NewStream creates a stream flushing to sink. A nil sink discards
// batches after fan-out.
func NewStream(bufferSize int, flushInterval time.Duration, sink contracts.AuditSink) *Stream {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Stream{
		buffer:        make([]models.AuditEntry, 0, bufferSize),
		subscribers:   make(map[int]contracts.AuditHandler),
		bufferSize:    bufferSize,
		flushInterval: flushInterval,
		sink:          sink,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Write appends an entry. When the buffer reaches capacity the write
// triggers a synchronous flush.
func (s *Stream) Write(entry models.AuditEntry) {
	s.mu.Lock()
	s.buffer = append(s.buffer, entry)
	s.written++
	full := len(s.buffer) >= s.bufferSize
	s.mu.Unlock()

	if full {
		s.Flush(context.Background())
	}
}

// Flush detaches the buffer, fans out to every subscriber, then hands
// the batch to the persistence sink. Handler errors and panics are
// contained per subscriber.
func (s *Stream) Flush(ctx context.Context) {
	s.mu.Lock()
	if len(s.buffer) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.buffer
	s.buffer = make([]models.AuditEntry, 0, s.bufferSize)
	s.recent = append(s.recent, batch...)
	if overflow := len(s.recent) - recentCapacity; overflow > 0 {
		s.recent = append([]models.AuditEntry(nil), s.recent[overflow:]...)
	}
	handlers := make([]contracts.AuditHandler, 0, len(s.subscribers))
	for _, h := range s.subscribers {
		handlers = append(handlers, h)
	}
	s.flushes++
	s.mu.Unlock()

	for _, h := range handlers {
		s.deliver(h, batch)
	}

	if s.sink != nil {
		if err := s.sink.Persist(ctx, batch); err != nil {
			log.Error().Err(err).Int("batch", len(batch)).Str("sink", s.sink.Kind()).
				Msg("Audit sink persist failed")
		}
	}
}

// deliver invokes one handler, containing errors and panics.
func (s *Stream) deliver(h contracts.AuditHandler, batch []models.AuditEntry) {
	defer func() {
		if r := recover(); r != nil {
			s.countHandlerError()
			log.Error().Interface("panic", r).Msg("Audit subscriber panicked")
		}
	}()
	if err := h(batch); err != nil {
		s.countHandlerError()
		log.Warn().Err(err).Msg("Audit subscriber returned error")
	}
}

func (s *Stream) countHandlerError() {
	s.mu.Lock()
	s.handlerErrors++
	s.mu.Unlock()
}

// Subscribe registers a handler for flushed batches and returns its
// unsubscribe handle.
func (s *Stream) Subscribe(handler contracts.AuditHandler) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = handler
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// Query returns buffered and recently flushed entries matching the
// filter, oldest first.
func (s *Stream) Query(filter models.AuditFilter) []models.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.AuditEntry
	for _, e := range s.recent {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	for _, e := range s.buffer {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// StreamStats are the stream's aggregate counters.
type StreamStats struct {
	Buffered      int   `json:"buffered"`
	Written       int64 `json:"written"`
	Flushes       int64 `json:"flushes"`
	HandlerErrors int64 `json:"handler_errors"`
	Subscribers   int   `json:"subscribers"`
}

// Stats snapshots the counters.
func (s *Stream) Stats() StreamStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StreamStats{
		Buffered:      len(s.buffer),
		Written:       s.written,
		Flushes:       s.flushes,
		HandlerErrors: s.handlerErrors,
		Subscribers:   len(s.subscribers),
	}
}

// Start launches the periodic flush loop.
func (s *Stream) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.Flush(context.Background())
				return
			case <-s.stop:
				s.Flush(context.Background())
				return
			case <-ticker.C:
				s.Flush(ctx)
			}
		}
	}()
}

// Stop halts the flush loop after a final flush.
func (s *Stream) Stop() {
	close(s.stop)
	<-s.done
}
