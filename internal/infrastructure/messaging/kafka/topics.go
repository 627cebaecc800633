package kafka

import (
	"context"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/keyip-combinator/internal/config"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyip-combinator/pkg/errors"
)

const adminTimeout = 10 * time.Second

// TopicConfig describes a topic TopicManager creates.
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	Retention         time.Duration
	CleanupPolicy     string
}

func (t TopicConfig) validate() error {
	switch {
	case t.Name == "":
		return errors.New(errors.ErrCodeValidation, "topic name required")
	case t.NumPartitions <= 0:
		return errors.New(errors.ErrCodeValidation, "partitions must be > 0").WithDetail("topic=" + t.Name)
	case t.ReplicationFactor <= 0:
		return errors.New(errors.ErrCodeValidation, "replication factor must be > 0").WithDetail("topic=" + t.Name)
	}
	return nil
}

func (t TopicConfig) toKafka() kafka.TopicConfig {
	kc := kafka.TopicConfig{
		Topic:             t.Name,
		NumPartitions:     t.NumPartitions,
		ReplicationFactor: t.ReplicationFactor,
	}
	if t.Retention > 0 {
		kc.ConfigEntries = append(kc.ConfigEntries, kafka.ConfigEntry{
			ConfigName:  "retention.ms",
			ConfigValue: strconv.FormatInt(t.Retention.Milliseconds(), 10),
		})
	}
	if t.CleanupPolicy != "" {
		kc.ConfigEntries = append(kc.ConfigEntries, kafka.ConfigEntry{ConfigName: "cleanup.policy", ConfigValue: t.CleanupPolicy})
	}
	return kc
}

// DefaultTopics lists the variant, request and dead-letter topics.  The
// variant topic carries the most partitions since every run fans out there.
func DefaultTopics(cfg config.KafkaConfig) []TopicConfig {
	const day = 24 * time.Hour
	rf := max(cfg.ReplicationFactor, 1)
	topics := []TopicConfig{
		{Name: cfg.VariantsTopic, NumPartitions: 12, ReplicationFactor: rf, Retention: 7 * day},
		{Name: cfg.RequestsTopic, NumPartitions: 6, ReplicationFactor: rf, Retention: 3 * day},
	}
	if cfg.DeadLetterTopic != "" {
		topics = append(topics, TopicConfig{Name: cfg.DeadLetterTopic, NumPartitions: 3, ReplicationFactor: rf, Retention: 30 * day})
	}
	return topics
}

// AdminClient is the part of kafka.Client TopicManager uses.
type AdminClient interface {
	CreateTopics(ctx context.Context, req *kafka.CreateTopicsRequest) (*kafka.CreateTopicsResponse, error)
	Metadata(ctx context.Context, req *kafka.MetadataRequest) (*kafka.MetadataResponse, error)
}

// TopicManager creates and inspects topics through the cluster controller.
type TopicManager struct {
	admin     AdminClient
	transport *kafka.Transport
	logger    logging.Logger
}

// NewTopicManager builds an admin client for cfg.Brokers, authenticating
// with SASL when enabled.  No connection is made until the first call.
func NewTopicManager(cfg config.KafkaConfig, logger logging.Logger) (*TopicManager, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "brokers required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	transport := &kafka.Transport{DialTimeout: adminTimeout}
	if cfg.SASLEnabled {
		mech, err := saslMechanism(cfg.SASLMechanism, cfg.SASLUsername, cfg.SASLPassword)
		if err != nil {
			return nil, err
		}
		transport.SASL = mech
	}
	admin := &kafka.Client{
		Addr:      kafka.TCP(cfg.Brokers...),
		Timeout:   adminTimeout,
		Transport: transport,
	}
	return NewTopicManagerWithClient(admin, logger.Named("kafka-admin"), transport), nil
}

// NewTopicManagerWithClient wraps an existing admin client.  transport may
// be nil.
func NewTopicManagerWithClient(admin AdminClient, logger logging.Logger, transport *kafka.Transport) *TopicManager {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &TopicManager{admin: admin, transport: transport, logger: logger}
}

// EnsureTopics creates every topic in one request.  Topics that already
// exist are left as they are.  The first per-topic failure is returned.
func (m *TopicManager) EnsureTopics(ctx context.Context, topics []TopicConfig) error {
	if len(topics) == 0 {
		return nil
	}
	req := &kafka.CreateTopicsRequest{Topics: make([]kafka.TopicConfig, 0, len(topics))}
	for _, t := range topics {
		if err := t.validate(); err != nil {
			return err
		}
		req.Topics = append(req.Topics, t.toKafka())
	}

	resp, err := m.admin.CreateTopics(ctx, req)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSinkUnavailable, "create topics failed")
	}

	var failed error
	for _, t := range topics {
		switch err := resp.Errors[t.Name]; {
		case err == nil:
			m.logger.Info("topic created",
				logging.String("topic", t.Name),
				logging.Int("partitions", t.NumPartitions),
				logging.Int("replication_factor", t.ReplicationFactor))
		case errors.Is(err, kafka.TopicAlreadyExists):
			m.logger.Debug("topic exists", logging.String("topic", t.Name))
		default:
			m.logger.Error("topic creation failed", logging.String("topic", t.Name), logging.Err(err))
			if failed == nil {
				failed = errors.Wrap(err, errors.ErrCodeSinkUnavailable, "create topic failed").WithDetail("topic=" + t.Name)
			}
		}
	}
	return failed
}

// MissingTopics returns the names the cluster does not know, in input order.
func (m *TopicManager) MissingTopics(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	resp, err := m.admin.Metadata(ctx, &kafka.MetadataRequest{Topics: names})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSinkUnavailable, "topic metadata failed")
	}
	known := make(map[string]bool, len(resp.Topics))
	for _, t := range resp.Topics {
		if t.Error == nil && len(t.Partitions) > 0 {
			known[t.Name] = true
		}
	}
	var missing []string
	for _, n := range names {
		if !known[n] {
			missing = append(missing, n)
		}
	}
	return missing, nil
}

// Close drops idle admin connections.
func (m *TopicManager) Close() error {
	if m.transport != nil {
		m.transport.CloseIdleConnections()
	}
	return nil
}

//Personal.AI order the ending
