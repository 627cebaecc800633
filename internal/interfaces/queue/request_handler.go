// Package queue turns enumeration requests read from Kafka into service
// runs.
package queue

import (
	"context"

	"github.com/turtacn/keyip-combinator/internal/application/enumeration"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/keyip-combinator/pkg/errors"
	"github.com/turtacn/keyip-combinator/pkg/types/common"
)

// Lease is held while one request is processed.
type Lease interface {
	Release(ctx context.Context) error
}

// Leaser grants at most one lease per request id across worker replicas.
// false without an error means another replica holds it.
type Leaser interface {
	Acquire(ctx context.Context, requestID string) (Lease, bool, error)
}

// LeaserFunc adapts a function to Leaser.
type LeaserFunc func(ctx context.Context, requestID string) (Lease, bool, error)

func (f LeaserFunc) Acquire(ctx context.Context, requestID string) (Lease, bool, error) {
	return f(ctx, requestID)
}

// RequestHandler runs enumeration.requested events.  A request id already
// being processed elsewhere is skipped, so a redelivered message cannot run
// twice concurrently.
type RequestHandler struct {
	svc          enumeration.Service
	leases       Leaser
	defaultSinks []string
	metrics      *prometheus.EngineMetrics
	logger       logging.Logger
}

type HandlerOption func(*RequestHandler)

// WithLeaser enables cross-replica deduplication.
func WithLeaser(l Leaser) HandlerOption {
	return func(h *RequestHandler) { h.leases = l }
}

// WithDefaultSinks sets the sinks used when a request names none.
func WithDefaultSinks(sinks ...string) HandlerOption {
	return func(h *RequestHandler) { h.defaultSinks = sinks }
}

func WithMetrics(m *prometheus.EngineMetrics) HandlerOption {
	return func(h *RequestHandler) { h.metrics = m }
}

func NewRequestHandler(svc enumeration.Service, logger logging.Logger, opts ...HandlerOption) *RequestHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	h := &RequestHandler{
		svc:     svc,
		metrics: prometheus.NewEngineMetrics(nil),
		logger:  logger.Named("queue"),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Handle is a kafka.MessageHandler.
func (h *RequestHandler) Handle(ctx context.Context, msg *common.ConsumerMessage) (err error) {
	defer func() { prometheus.RecordMessageConsumed(h.metrics, msg.Topic, err) }()

	env, err := kafka.MessageToEventEnvelope(msg)
	if err != nil {
		return err
	}
	if env.EventType != kafka.EventEnumerationRequested {
		h.logger.Warn("ignoring unexpected event",
			logging.String("event_type", env.EventType),
			logging.String("event_id", env.EventID))
		return nil
	}
	var p kafka.EnumerationRequestPayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}

	requestID := p.RequestID
	if requestID == "" {
		requestID = env.EventID
	}
	log := h.logger.With(logging.String(logging.FieldRequestID, requestID))

	if h.leases != nil {
		lease, ok, err := h.leases.Acquire(ctx, requestID)
		if err != nil {
			return err
		}
		if !ok {
			log.Info("request already in progress, skipping")
			return nil
		}
		defer func() {
			if rerr := lease.Release(context.WithoutCancel(ctx)); rerr != nil {
				log.Warn("failed to release request lease", logging.Err(rerr))
			}
		}()
	}

	sinks := p.Sinks
	if len(sinks) == 0 {
		sinks = h.defaultSinks
	}
	res, err := h.svc.Run(ctx, &enumeration.Request{
		Skeleton:     p.Skeleton,
		Substituents: p.Substituents,
		Mode:         p.Mode,
		N:            p.N,
		CarbonOnly:   p.CarbonOnly,
		Unique:       p.Unique,
		Sinks:        sinks,
	})
	if err != nil {
		log.Warn("enumeration request failed", logging.Err(err), logging.Bool("retryable", Retryable(err)))
		return err
	}
	log.Info("enumeration request completed",
		logging.String(logging.FieldRunID, res.RunID),
		logging.Int("variants", res.Count),
		logging.Any("sinks", res.Sinks))
	return nil
}

// Retryable reports whether another attempt could succeed.  Malformed
// requests and other client errors fail the same way every time.
func Retryable(err error) bool {
	return !errors.IsClient(err) && !errors.IsCode(err, errors.ErrCodeSerialization)
}

//Personal.AI order the ending
