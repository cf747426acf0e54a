// Package server exposes the expression builder and saved drafts over HTTP
// (JSON and SSE) and gRPC.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/kodblock/internal/events"
	"github.com/alfredjeanlab/kodblock/internal/model"
	"github.com/alfredjeanlab/kodblock/internal/store"
)

// KodblockServer holds the dependencies shared by the HTTP and gRPC transports.
type KodblockServer struct {
	store     store.Store
	publisher events.Publisher
	registry  atomic.Pointer[model.Registry]
	sseHub    *sseHub
	metrics   *metrics
}

// NewKodblockServer returns a server backed by the given store, publisher and
// block-type registry. A nil registry selects the built-in one.
func NewKodblockServer(s store.Store, p events.Publisher, reg *model.Registry) *KodblockServer {
	if reg == nil {
		reg = model.DefaultRegistry()
	}
	if p == nil {
		p = &events.NoopPublisher{}
	}
	hub := newSSEHub()
	srv := &KodblockServer{
		store:     s,
		publisher: p,
		sseHub:    hub,
		metrics:   newMetrics(hub),
	}
	srv.registry.Store(reg)
	return srv
}

// Registry returns the block-type registry currently in use.
func (s *KodblockServer) Registry() *model.Registry {
	return s.registry.Load()
}

// SetRegistry replaces the block-type registry. Blocks already stored in
// drafts are unaffected; only subsequent add-block calls see the change.
func (s *KodblockServer) SetRegistry(reg *model.Registry) {
	if reg != nil {
		s.registry.Store(reg)
	}
}

// recordAndPublish persists an event to the store, publishes it to NATS and
// fans it out to SSE clients. All three are best-effort; failures are logged
// but do not block the caller.
func (s *KodblockServer) recordAndPublish(ctx context.Context, topic, draftID, actor string, event any) {
	s.metrics.draftEvents.WithLabelValues(eventOp(event)).Inc()
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Warn("failed to marshal event", "topic", topic, "draft_id", draftID, "error", err)
		return
	}
	if err := s.store.RecordEvent(ctx, &model.Event{
		Topic:   topic,
		DraftID: draftID,
		Actor:   actor,
		Payload: payload,
	}); err != nil {
		slog.Warn("failed to record event", "topic", topic, "draft_id", draftID, "error", err)
	}
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "draft_id", draftID, "error", err)
	}
	s.sseHub.broadcast(topic, payload)
}

// inputError indicates invalid user input.
// Transport layers map this to 400 / InvalidArgument.
type inputError string

func (e inputError) Error() string { return string(e) }

// isInputError reports whether err was caused by the request rather than the
// server: explicit input errors, validation failures, out-of-range indices
// and edits that do not apply to a block's kind.
func isInputError(err error) bool {
	var ie inputError
	var ve *model.ValidationError
	return errors.As(err, &ie) ||
		errors.As(err, &ve) ||
		errors.Is(err, model.ErrIndexOutOfRange) ||
		errors.Is(err, model.ErrNotApplicable)
}

// grpcError maps a service error onto a gRPC status.
func grpcError(err error) error {
	switch {
	case err == nil:
		return nil
	case isInputError(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, "draft not found")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Errorf(codes.Internal, "%v", err)
}
