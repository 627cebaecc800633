package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/keyip-combinator/internal/app"
	"github.com/turtacn/keyip-combinator/internal/application/enumeration"
	"github.com/turtacn/keyip-combinator/internal/config"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyip-combinator/pkg/errors"
)

type purger interface {
	Purge(ctx context.Context, prefix string) (int64, error)
}

// openCache is replaced in tests.
var openCache = func(ctx context.Context, cfg *config.Config, logger logging.Logger) (purger, func() error, error) {
	if !cfg.Redis.Enabled {
		return nil, nil, errors.New(errors.ErrCodeValidation, "redis.enabled is false; there is no result cache")
	}
	c, err := app.Build(ctx, cfg, logger, app.WithSinkNames(), app.WithoutMetrics())
	if err != nil {
		return nil, nil, err
	}
	return c.Cache, func() error { return c.Close(context.Background()) }, nil
}

// NewCacheCmd manages the Redis result cache.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the Redis result cache",
	}

	var prefix string
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Remove cached enumeration results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			p, release, err := openCache(ctx, cliCtx.Config, cliCtx.Logger)
			if err != nil {
				return err
			}
			defer release()

			n, err := p.Purge(ctx, prefix)
			if err != nil {
				return err
			}
			return PrintResult(cmd, purgeOutput{Prefix: prefix, Removed: n})
		},
	}
	purge.Flags().StringVar(&prefix, "prefix", enumeration.CacheKeyPrefix, "key prefix to remove, after redis.key_prefix")

	cmd.AddCommand(purge)
	return cmd
}

type purgeOutput struct {
	Prefix  string `json:"prefix"`
	Removed int64  `json:"removed"`
}

func (o purgeOutput) String() string {
	return fmt.Sprintf("removed %d key(s) under %q\n", o.Removed, o.Prefix)
}

//Personal.AI order the ending
