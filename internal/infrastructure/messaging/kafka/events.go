package kafka

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/keyip-combinator/pkg/errors"
	"github.com/turtacn/keyip-combinator/pkg/types/common"
)

// Event types carried in EventEnvelope.EventType.
const (
	EventEnumerationRequested = "enumeration.requested"
	EventVariantGenerated     = "variant.generated"
	EventRunCompleted         = "run.completed"
)

const (
	sourceService = "keyip-combinator"
	schemaVersion = "v1"
)

// EventEnvelope standardizes event messages.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// EnumerationRequestPayload asks a worker to run one enumeration.
type EnumerationRequestPayload struct {
	RequestID    string   `json:"request_id"`
	Skeleton     string   `json:"skeleton"`
	Substituents []string `json:"substituents"`
	Mode         string   `json:"mode"`
	N            int      `json:"n"`
	CarbonOnly   bool     `json:"carbon_only,omitempty"`
	Unique       bool     `json:"unique,omitempty"`
	// Sinks overrides the worker's configured sinks when non-empty.
	Sinks []string `json:"sinks,omitempty"`
}

// VariantPayload is one generated variant.
type VariantPayload struct {
	RunID      string `json:"run_id"`
	Index      int    `json:"index"`
	SMILES     string `json:"smiles"`
	Sites      []int  `json:"sites"`
	Assignment []int  `json:"assignment"`
}

// RunCompletedPayload closes a run's variant stream.
type RunCompletedPayload struct {
	RunID        string `json:"run_id"`
	Status       string `json:"status"`
	VariantCount int64  `json:"variant_count"`
	Error        string `json:"error,omitempty"`
}

// NewEventEnvelope wraps payload under a fresh event ID.
func NewEventEnvelope(eventType string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal payload")
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Source:        sourceService,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: schemaVersion,
		Payload:       data,
	}, nil
}

// DecodePayload unmarshals the payload into target.
func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return errors.New(errors.ErrCodeValidation, "envelope has no payload").
			WithDetail("event_type=" + e.EventType)
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal payload")
	}
	return nil
}

// ToMessage encodes the envelope for topic under key.
func (e *EventEnvelope) ToMessage(topic string, key []byte) (*common.ProducerMessage, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal envelope")
	}
	return &common.ProducerMessage{
		Topic: topic,
		Key:   key,
		Value: val,
		Headers: map[string]string{
			"event_type":     e.EventType,
			"source_service": e.Source,
			"schema_version": e.SchemaVersion,
		},
		Timestamp: e.Timestamp,
	}, nil
}

// MessageToEventEnvelope decodes a consumed message.
func MessageToEventEnvelope(msg *common.ConsumerMessage) (*EventEnvelope, error) {
	if len(msg.Value) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "empty message value")
	}
	var env EventEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal envelope")
	}
	return &env, nil
}

//Personal.AI order the ending
