package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/keyip-combinator/internal/domain/enumeration"
	apperrors "github.com/turtacn/keyip-combinator/pkg/errors"
)

func testRun(n int) (*enumeration.Run, []*enumeration.Variant) {
	run := enumeration.NewRun("CC", []string{"Br"}, "general", 1)
	variants := make([]*enumeration.Variant, n)
	for i := range variants {
		variants[i] = &enumeration.Variant{RunID: run.ID, Index: i, SMILES: "CCBr", Sites: []int{i % 2}, Assignment: []int{0}}
	}
	run.Complete(int64(n))
	return run, variants
}

func TestVariantPublisher_Write(t *testing.T) {
	var batches [][]kafka.Message
	w := &mockKafkaWriter{writeFunc: func(_ context.Context, msgs ...kafka.Message) error {
		batches = append(batches, msgs)
		return nil
	}}
	sink, err := NewVariantPublisher(newTestProducer(w), "combinator.variants", 2, nil)
	require.NoError(t, err)
	assert.Equal(t, "kafka", sink.Name())

	run, variants := testRun(3)
	require.NoError(t, sink.Write(context.Background(), run, variants))

	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[1], 2)

	var all []kafka.Message
	for _, b := range batches {
		all = append(all, b...)
	}
	for i, m := range all {
		assert.Equal(t, run.ID.String(), string(m.Key))
		var env EventEnvelope
		require.NoError(t, json.Unmarshal(m.Value, &env))
		if i < 3 {
			assert.Equal(t, EventVariantGenerated, env.EventType)
			var p VariantPayload
			require.NoError(t, env.DecodePayload(&p))
			assert.Equal(t, i, p.Index)
			assert.Equal(t, "CCBr", p.SMILES)
			continue
		}
		assert.Equal(t, EventRunCompleted, env.EventType)
		var p RunCompletedPayload
		require.NoError(t, env.DecodePayload(&p))
		assert.Equal(t, int64(3), p.VariantCount)
		assert.Equal(t, "completed", p.Status)
	}
}

func TestVariantPublisher_EmptyRunStillCompletes(t *testing.T) {
	calls := 0
	w := &mockKafkaWriter{writeFunc: func(_ context.Context, msgs ...kafka.Message) error {
		calls++
		assert.Len(t, msgs, 1)
		return nil
	}}
	sink, err := NewVariantPublisher(newTestProducer(w), "v", 0, nil)
	require.NoError(t, err)

	run, _ := testRun(0)
	require.NoError(t, sink.Write(context.Background(), run, nil))
	assert.Equal(t, 1, calls)
}

func TestVariantPublisher_PartialFailure(t *testing.T) {
	w := &mockKafkaWriter{writeFunc: func(_ context.Context, msgs ...kafka.Message) error {
		errs := make(kafka.WriteErrors, len(msgs))
		errs[0] = errors.New("leader not available")
		return errs
	}}
	sink, err := NewVariantPublisher(newTestProducer(w), "v", 10, nil)
	require.NoError(t, err)

	run, variants := testRun(2)
	err = sink.Write(context.Background(), run, variants)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodePublishFailed))
}

func TestVariantPublisher_InvalidArgs(t *testing.T) {
	_, err := NewVariantPublisher(nil, "v", 1, nil)
	assert.Error(t, err)
	_, err = NewVariantPublisher(newTestProducer(&mockKafkaWriter{}), "", 1, nil)
	assert.Error(t, err)

	sink, err := NewVariantPublisher(newTestProducer(&mockKafkaWriter{}), "v", 1, nil)
	require.NoError(t, err)
	assert.Error(t, sink.Write(context.Background(), nil, nil))
}

//Personal.AI order the ending
