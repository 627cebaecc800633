package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/keyip-combinator/internal/config"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyip-combinator/pkg/errors"
)

type topicAdmin interface {
	EnsureTopics(ctx context.Context, topics []kafka.TopicConfig) error
	MissingTopics(ctx context.Context, names []string) ([]string, error)
	Close() error
}

// openTopicAdmin is replaced in tests.
var openTopicAdmin = func(cfg config.KafkaConfig, logger logging.Logger) (topicAdmin, error) {
	return kafka.NewTopicManager(cfg, logger)
}

// NewTopicsCmd inspects and creates the Kafka topics the service uses.
func NewTopicsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Check or create the Kafka topics",
	}

	check := &cobra.Command{
		Use:   "check",
		Short: "Report which configured topics are missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTopicAdmin(cmd, func(ctx context.Context, admin topicAdmin, topics []kafka.TopicConfig) error {
				names := make([]string, len(topics))
				for i, t := range topics {
					names[i] = t.Name
				}
				missing, err := admin.MissingTopics(ctx, names)
				if err != nil {
					return err
				}
				if err := PrintResult(cmd, topicsOutput{Topics: names, Missing: missing}); err != nil {
					return err
				}
				if len(missing) > 0 {
					return errors.Newf(errors.ErrCodeNotFound, "%d topic(s) missing", len(missing))
				}
				return nil
			})
		},
	}

	ensure := &cobra.Command{
		Use:   "ensure",
		Short: "Create any configured topic that does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTopicAdmin(cmd, func(ctx context.Context, admin topicAdmin, topics []kafka.TopicConfig) error {
				if err := admin.EnsureTopics(ctx, topics); err != nil {
					return err
				}
				names := make([]string, len(topics))
				for i, t := range topics {
					names[i] = t.Name
				}
				return PrintResult(cmd, topicsOutput{Topics: names})
			})
		},
	}

	cmd.AddCommand(check, ensure)
	return cmd
}

func withTopicAdmin(cmd *cobra.Command, fn func(ctx context.Context, admin topicAdmin, topics []kafka.TopicConfig) error) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	admin, err := openTopicAdmin(cliCtx.Config.Kafka, cliCtx.Logger)
	if err != nil {
		return err
	}
	defer admin.Close()
	return fn(ctx, admin, kafka.DefaultTopics(cliCtx.Config.Kafka))
}

type topicsOutput struct {
	Topics  []string `json:"topics"`
	Missing []string `json:"missing"`
}

func (o topicsOutput) String() string {
	if len(o.Missing) == 0 {
		return fmt.Sprintf("all %d topic(s) present: %s\n", len(o.Topics), strings.Join(o.Topics, ", "))
	}
	return fmt.Sprintf("missing %d of %d topic(s): %s\n", len(o.Missing), len(o.Topics), strings.Join(o.Missing, ", "))
}

func (o topicsOutput) TableHeaders() []string { return []string{"TOPIC", "STATUS"} }

func (o topicsOutput) TableRows() [][]string {
	missing := make(map[string]bool, len(o.Missing))
	for _, m := range o.Missing {
		missing[m] = true
	}
	rows := make([][]string, len(o.Topics))
	for i, t := range o.Topics {
		status := "present"
		if missing[t] {
			status = "missing"
		}
		rows[i] = []string{t, status}
	}
	return rows
}

//Personal.AI order the ending
