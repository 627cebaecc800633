package cli

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/keyip-combinator/internal/app"
	"github.com/turtacn/keyip-combinator/internal/application/enumeration"
	"github.com/turtacn/keyip-combinator/internal/config"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyip-combinator/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

type cliContextKey struct{}

// RootOptions holds global CLI flags.
type RootOptions struct {
	ConfigPath   string
	LogLevel     string
	OutputFormat string
	Verbose      bool
	Timeout      time.Duration
}

// ServiceFactory builds the enumeration service for one command.  sinks
// are the sink names the command will request.  The returned func releases
// whatever the factory opened.
type ServiceFactory func(ctx context.Context, cfg *config.Config, logger logging.Logger, sinks []string) (enumeration.Service, func() error, error)

// CLIContext carries initialized dependencies through the command tree.
type CLIContext struct {
	Config       *config.Config
	Logger       logging.Logger
	OutputFormat string
	Verbose      bool
	Timeout      time.Duration

	factory ServiceFactory
}

// Service builds the enumeration service with the named sinks connected.
func (c *CLIContext) Service(ctx context.Context, sinks []string) (enumeration.Service, func() error, error) {
	return c.factory(ctx, c.Config, c.Logger, sinks)
}

// RootOption customises NewRootCommand.
type RootOption func(*rootSettings)

type rootSettings struct {
	factory ServiceFactory
}

// WithServiceFactory replaces the default factory, which connects the
// backends named in the configuration.
func WithServiceFactory(f ServiceFactory) RootOption {
	return func(s *rootSettings) { s.factory = f }
}

// DefaultServiceFactory assembles the service through app.Build without
// metrics.
func DefaultServiceFactory(ctx context.Context, cfg *config.Config, logger logging.Logger, sinks []string) (enumeration.Service, func() error, error) {
	c, err := app.Build(ctx, cfg, logger, app.WithSinkNames(sinks...), app.WithoutMetrics())
	if err != nil {
		return nil, nil, err
	}
	return c.Service, func() error { return c.Close(context.Background()) }, nil
}

// NewRootCommand creates the root command with its global flags and
// subcommands.
func NewRootCommand(options ...RootOption) *cobra.Command {
	settings := rootSettings{factory: DefaultServiceFactory}
	for _, o := range options {
		o(&settings)
	}
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "combinator",
		Short: "Enumerate substitution variants of a molecular skeleton",
		Long: "combinator grafts substituents onto the hydrogen-bearing atoms of a skeleton\n" +
			"and emits one SMILES per distinct placement, optionally publishing the\n" +
			"variants to Kafka, PostgreSQL, Neo4j or MinIO.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPreRun(cmd, opts, settings)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: ./combinator.yaml)")
	pf.StringVar(&opts.LogLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	pf.StringVarP(&opts.OutputFormat, "output", "o", "text", "output format (text, json, table)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable verbose output")
	pf.DurationVar(&opts.Timeout, "timeout", 5*time.Minute, "overall command timeout")

	cmd.AddCommand(
		NewSubstituteCmd(),
		NewCountCmd(),
		NewSitesCmd(),
		NewMigrateCmd(),
		NewCacheCmd(),
		NewTopicsCmd(),
	)
	return cmd
}

func persistentPreRun(cmd *cobra.Command, opts *RootOptions, settings rootSettings) error {
	switch strings.ToLower(opts.OutputFormat) {
	case "text", "json", "table":
	default:
		return errors.Newf(errors.ErrCodeValidation, "unknown output format %q (want text, json or table)", opts.OutputFormat)
	}

	cfg, err := initConfig(opts)
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}
	logger, err := initLogger(opts)
	if err != nil {
		return fmt.Errorf("logger initialization failed: %w", err)
	}

	cliCtx := &CLIContext{
		Config:       cfg,
		Logger:       logger,
		OutputFormat: strings.ToLower(opts.OutputFormat),
		Verbose:      opts.Verbose,
		Timeout:      opts.Timeout,
		factory:      settings.factory,
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cliCtx))
	return nil
}

// initConfig loads the explicit --config file, else the first of the
// default locations, else environment and defaults alone.
func initConfig(opts *RootOptions) (*config.Config, error) {
	if opts.ConfigPath != "" {
		return config.Load(opts.ConfigPath)
	}

	searchPaths := []string{"./combinator.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".combinator", "config.yaml"))
	}
	searchPaths = append(searchPaths, "/etc/combinator/config.yaml")

	cfg, _, err := config.LoadFirst(searchPaths...)
	return cfg, err
}

// initLogger logs to stderr so stdout carries only results.
func initLogger(opts *RootOptions) (logging.Logger, error) {
	level := opts.LogLevel
	if opts.Verbose {
		level = string(logging.LevelDebug)
	}
	return logging.NewLogger(logging.LogConfig{
		Level:            level,
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
}

// GetCLIContext extracts CLIContext from a command's context.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.New(errors.ErrCodeValidation, "command context is nil")
	}
	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, errors.New(errors.ErrCodeValidation, "CLIContext not found in command context")
	}
	return cliCtx, nil
}

// commandContext applies the --timeout flag.
func commandContext(cmd *cobra.Command, cliCtx *CLIContext) (context.Context, context.CancelFunc) {
	if cliCtx.Timeout > 0 {
		return context.WithTimeout(cmd.Context(), cliCtx.Timeout)
	}
	return context.WithCancel(cmd.Context())
}

// Execute runs the root command under ctx and prints any error to stderr.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		PrintError(rootCmd, err)
		return err
	}
	return nil
}

// Process exit statuses returned by ExitCode.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitUsage     = 2
	ExitTimeout   = 124
	ExitCancelled = 130
)

// ExitCode maps a command error to a process exit status.  Rejected input
// exits with ExitUsage so scripts can tell it from a backend failure.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case stderrors.Is(err, context.DeadlineExceeded):
		return ExitTimeout
	case stderrors.Is(err, context.Canceled), errors.IsCode(err, errors.ErrCodeEnumerationCancelled):
		return ExitCancelled
	case errors.IsClient(err):
		return ExitUsage
	default:
		return ExitFailure
	}
}

// PrintResult writes data in the format chosen by --output.
func PrintResult(cmd *cobra.Command, data interface{}) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return printJSON(cmd, data)
	}
	switch cliCtx.OutputFormat {
	case "json":
		return printJSON(cmd, data)
	case "table":
		return printTable(cmd, data)
	default:
		return printText(cmd, data)
	}
}

func printJSON(cmd *cobra.Command, data interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func printText(cmd *cobra.Command, data interface{}) error {
	switch v := data.(type) {
	case string:
		fmt.Fprintln(cmd.OutOrStdout(), v)
	case fmt.Stringer:
		fmt.Fprint(cmd.OutOrStdout(), v.String())
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", v)
	}
	return nil
}

type tableProvider interface {
	TableHeaders() []string
	TableRows() [][]string
}

// printTable falls back to text for data without a table form.
func printTable(cmd *cobra.Command, data interface{}) error {
	if tp, ok := data.(tableProvider); ok {
		fmt.Fprint(cmd.OutOrStdout(), FormatTable(tp.TableHeaders(), tp.TableRows()))
		return nil
	}
	return printText(cmd, data)
}

// PrintError writes err to stderr.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())
}

// FormatTable renders headers and rows as columns separated by two spaces,
// with a dashed rule under the headers.  Missing cells render empty.
func FormatTable(headers []string, rows [][]string) string {
	if len(headers) == 0 {
		return ""
	}

	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	writeRow := func(cells []string) {
		line := make([]string, len(headers))
		copy(line, cells)
		fmt.Fprintln(tw, strings.Join(line, "\t"))
	}

	writeRow(headers)
	rule := make([]string, len(headers))
	for i, h := range headers {
		width := len(h)
		for _, row := range rows {
			if i < len(row) && len(row[i]) > width {
				width = len(row[i])
			}
		}
		rule[i] = strings.Repeat("-", width)
	}
	writeRow(rule)
	for _, row := range rows {
		writeRow(row)
	}
	_ = tw.Flush()
	return sb.String()
}

//Personal.AI order the ending
