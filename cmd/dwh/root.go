package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"dwh/internal/config"
	"dwh/internal/logging"
	"dwh/internal/warehouse"
)

// app carries per-invocation state from the root command's pre-run hook to
// the subcommands.
type app struct {
	verbosity int
	cfgPath   string

	stdout io.Writer
	stderr io.Writer

	cfg     config.Config
	logger  zerolog.Logger
	ready   bool
	runner  *warehouse.Runner
	metrics func()

	newRunner func(zerolog.Logger) *warehouse.Runner
}

// execute runs the command line and returns the process exit status. Every
// failure is reported once, here.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr, newRunner: warehouse.NewDefaultRunner}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if a.metrics != nil {
		a.metrics()
	}
	if err != nil {
		a.fail(err)
		return 1
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "dwh",
		Short: "Load the sales star schema",
		Long: `dwh reloads the Customers, Products and Dates dimensions and the
InternetSales fact table of a sales warehouse from an AdventureWorks-style
OLTP database. Every entry point is a full delete-then-reload and can be rerun.

Configuration comes from defaults, an optional --config file and DWH_*
environment variables, in increasing order of precedence.`,
		PersistentPreRunE: a.setup,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	root.PersistentFlags().CountVarP(&a.verbosity, "verbose", "v", "Increase verbosity (-v DEBUG, -vv TRACE)")
	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "config file (YAML, JSON or TOML)")

	root.AddCommand(
		newLoadDimensionsCmd(a),
		newLoadFactsCmd(a),
		newRunCmd(a),
		newWaitCmd(a),
		newSchemaCmd(a),
		newValidateCmd(a),
	)
	return root
}

// setup loads the configuration, then configures logging and, for commands
// that touch a database, checks the configuration and installs metrics.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.SetupWriter(a.stderr, a.verbosity, cfg.Log.Format).With().Str("job", cfg.Job).Logger()
	a.ready = true
	a.logger.Debug().Str("command", cmd.Name()).Msg("command started")

	if cmd.Name() == validateCmdName {
		return nil
	}

	issues := config.Validate(cfg)
	for _, iss := range issues {
		if iss.Severity == config.SeverityWarning {
			a.logger.Warn().Str("key", iss.Path).Msg(iss.Message)
		}
	}
	if config.HasErrors(issues) {
		return invalidConfig(issues)
	}

	a.metrics = setupMetrics(cmd.Context(), cfg, a.logger)
	a.runner = a.newRunner(logging.Component("warehouse").With().Str("job", cfg.Job).Logger())
	return nil
}

// fail logs err with its stage and kind.
func (a *app) fail(err error) {
	if !a.ready {
		a.logger = logging.SetupWriter(a.stderr, a.verbosity, "console")
	}
	ev := a.logger.Error().Str("kind", string(warehouse.KindOf(err)))
	if stage := warehouse.StageOf(err); stage != "" {
		ev = ev.Str("stage", stage)
	}
	if errors.Is(err, context.Canceled) {
		ev.Msg("interrupted")
		return
	}
	ev.Err(err).Msg("dwh failed")
}

func invalidConfig(issues []config.Issue) error {
	var msgs []string
	for _, iss := range issues {
		if iss.Severity == config.SeverityError {
			msgs = append(msgs, iss.Path+": "+iss.Message)
		}
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
