package kafka

import (
	"context"
	"fmt"

	"github.com/turtacn/keyip-combinator/internal/config"
	"github.com/turtacn/keyip-combinator/internal/domain/enumeration"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyip-combinator/pkg/errors"
	"github.com/turtacn/keyip-combinator/pkg/types/common"
)

// BatchPublisher is the subset of Producer the sink needs.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, msgs []*common.ProducerMessage) (*common.BatchPublishResult, error)
}

// VariantPublisher streams a run's variants to a topic followed by a
// run.completed event.  Every message of a run is keyed by the run ID so
// they share a partition and keep their order.
type VariantPublisher struct {
	pub       BatchPublisher
	topic     string
	batchSize int
	logger    logging.Logger
}

var _ enumeration.Sink = (*VariantPublisher)(nil)

// NewVariantPublisher creates a sink writing to topic in chunks of
// batchSize messages.
func NewVariantPublisher(pub BatchPublisher, topic string, batchSize int, logger logging.Logger) (*VariantPublisher, error) {
	if pub == nil {
		return nil, errors.InvalidParam("publisher is nil")
	}
	if topic == "" {
		return nil, errors.InvalidParam("topic required")
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &VariantPublisher{pub: pub, topic: topic, batchSize: batchSize, logger: logger}, nil
}

func (s *VariantPublisher) Name() string { return config.SinkKafka }

// Write publishes variants in order, then the completion event.  It stops at
// the first batch with any failed message.
func (s *VariantPublisher) Write(ctx context.Context, run *enumeration.Run, variants []*enumeration.Variant) error {
	if err := run.Validate(); err != nil {
		return err
	}
	key := []byte(run.ID.String())

	batch := make([]*common.ProducerMessage, 0, s.batchSize)
	for _, v := range variants {
		env, err := NewEventEnvelope(EventVariantGenerated, VariantPayload{
			RunID:      run.ID.String(),
			Index:      v.Index,
			SMILES:     v.SMILES,
			Sites:      v.Sites,
			Assignment: v.Assignment,
		})
		if err != nil {
			return err
		}
		msg, err := env.ToMessage(s.topic, key)
		if err != nil {
			return err
		}
		batch = append(batch, msg)
		if len(batch) == s.batchSize {
			if err := s.flush(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}

	env, err := NewEventEnvelope(EventRunCompleted, RunCompletedPayload{
		RunID:        run.ID.String(),
		Status:       string(run.Status),
		VariantCount: int64(len(variants)),
		Error:        run.Error,
	})
	if err != nil {
		return err
	}
	msg, err := env.ToMessage(s.topic, key)
	if err != nil {
		return err
	}
	if err := s.flush(ctx, append(batch, msg)); err != nil {
		return err
	}

	s.logger.Debug("variants published",
		logging.String(logging.FieldRunID, run.ID.String()),
		logging.Int("variants", len(variants)))
	return nil
}

func (s *VariantPublisher) flush(ctx context.Context, batch []*common.ProducerMessage) error {
	res, err := s.pub.PublishBatch(ctx, batch)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodePublishFailed, "publish variants failed")
	}
	if res.Failed > 0 {
		var first error
		if len(res.Errors) > 0 {
			first = res.Errors[0].Error
		}
		return errors.New(errors.ErrCodePublishFailed, "publish variants failed").
			WithDetail(fmt.Sprintf("failed=%d of %d", res.Failed, len(batch))).
			WithCause(first)
	}
	return nil
}

//Personal.AI order the ending
