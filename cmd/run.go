package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pyneda/kensa/db"
	"github.com/pyneda/kensa/internal/config"
	"github.com/pyneda/kensa/lib"
	"github.com/pyneda/kensa/pkg/api/openapi"
	"github.com/pyneda/kensa/pkg/report"
	"github.com/pyneda/kensa/pkg/scan/engine"
	"github.com/pyneda/kensa/pkg/scan/events"
	"github.com/pyneda/kensa/pkg/transport"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runPhases []string

var runCmd = &cobra.Command{
	Use:   "run <schema-path-or-url>",
	Short: "Test an API against its definition",
	Long: `Load an OpenAPI or Swagger definition and run every enabled phase
against the API: probing, schema analysis, examples, coverage, fuzzing and
stateful link testing.

Examples:
  # Run every phase against a local server
  kensa run ./openapi.yaml --base-url http://localhost:8080

  # Only coverage and fuzzing, negative data, stop after 5 failures
  kensa run https://api.example.com/openapi.json --phases coverage,fuzzing \
      --mode negative --max-failures 5

  # Record every interaction
  kensa run ./openapi.yaml --cassette cassette.yaml --seed 42`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("phases") {
			if err := applyPhaseSelection(viper.GetViper(), runPhases); err != nil {
				return err
			}
		}
		code, err := runSchema(cmd.Context(), args[0], cmd.CommandPath()+" "+strings.Join(args, " "))
		if err != nil {
			return err
		}
		os.Exit(code)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	flags := runCmd.Flags()
	flags.String("base-url", "", "Base URL of the API, overrides the servers of the definition")
	flags.IntP("workers", "w", 1, "Number of concurrent workers")
	flags.Int("max-failures", 0, "Stop after this many failed scenarios, 0 for no limit")
	flags.Int64("seed", 0, "Seed for data generation, random when 0")
	flags.StringSlice("mode", []string{"positive", "negative"}, "Generation modes: positive, negative")
	flags.StringSliceVar(&runPhases, "phases", nil, "Phases to run: probing, schema_analysis, examples, coverage, fuzzing, stateful")
	flags.StringSlice("checks", nil, "Checks to run, all when empty")
	flags.Bool("continue-on-failure", false, "Keep testing an operation after its first failure")
	flags.Int("max-examples", 100, "Random cases per operation in the fuzzing phase")
	flags.StringP("format", "f", "pretty", "Report format: pretty, text, table, json, yaml")
	flags.String("cassette", "", "Write every interaction to this YAML cassette")
	flags.String("reproductions-dir", "", "Write one curl script per failing operation to this directory")
	flags.StringToString("header", nil, "Extra header sent with every request, as name=value")

	bindings := map[string]string{
		"base-url":            "network.base_url",
		"workers":             "engine.workers",
		"max-failures":        "engine.max_failures",
		"seed":                "engine.seed",
		"mode":                "engine.generation.modes",
		"checks":              "checks.enabled",
		"continue-on-failure": "engine.continue_on_failure",
		"max-examples":        "engine.fuzzing.max_examples",
		"format":              "report.format",
		"cassette":            "report.cassette_path",
		"reproductions-dir":   "report.reproductions_dir",
		"header":              "network.headers",
	}
	for flag, key := range bindings {
		cobra.CheckErr(viper.BindPFlag(key, flags.Lookup(flag)))
	}
}

// applyPhaseSelection enables exactly the named phases.
func applyPhaseSelection(v *viper.Viper, names []string) error {
	selected := map[events.PhaseName]bool{}
	for _, raw := range names {
		name, ok := events.ParsePhaseName(strings.TrimSpace(raw))
		if !ok {
			return fmt.Errorf("unknown phase: %s", raw)
		}
		selected[name] = true
	}
	for _, name := range events.PhaseNames {
		v.Set(fmt.Sprintf("engine.phases.%s.enabled", name), selected[name])
	}
	return nil
}

func runSchema(ctx context.Context, location, command string) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	format, err := lib.ParseFormatType(viper.GetString("report.format"))
	if err != nil {
		return 0, err
	}
	cfg, err := config.EngineConfigFromViper(viper.GetViper())
	if err != nil {
		return 0, err
	}
	transportOpts := config.TransportOptionsFromViper(viper.GetViper())

	spec, err := openapi.NewParser().WithBaseURL(cfg.BaseURL).Load(ctx, location, transport.CreateHttpClient(transportOpts))
	if err != nil {
		return 0, err
	}
	log.Info().Str("definition", spec.String()).Int("operations", spec.Operations.Count()).Int("errors", len(spec.Errors)).Msg("Loaded API definition")

	eng, err := engine.New(spec, cfg, transport.New(transportOpts))
	if err != nil {
		return 0, err
	}

	title := spec.Title
	if title == "" {
		title = location
	}
	collector := report.NewCollector(title).OnEvent(logProgress)

	if path := viper.GetString("report.cassette_path"); path != "" {
		cassette, err := report.CreateCassette(path, command, cfg.Seed)
		if err != nil {
			return 0, err
		}
		defer func() {
			if err := cassette.Close(); err != nil {
				log.Error().Err(err).Str("path", path).Msg("Failed to write cassette")
			}
		}()
		collector.OnEvent(cassette.Handle)
	}

	var store *db.Store
	if dsn := viper.GetString("db.dsn"); dsn != "" {
		conn, err := db.Open(dsn, db.PoolOptions{
			MaxIdleConns:    viper.GetInt("db.max_idle_conns"),
			MaxOpenConns:    viper.GetInt("db.max_open_conns"),
			ConnMaxLifetime: viper.GetDuration("db.conn_max_lifetime"),
		})
		if err != nil {
			return 0, err
		}
		defer conn.Close()
		store, err = conn.StartRun(title, cfg.Seed, cfg)
		if err != nil {
			return 0, err
		}
		collector.OnEvent(store.Handle)
	}

	ctx, cancel := lib.SetupCloseHandler(ctx)
	defer cancel()
	stream := eng.Execute(ctx)
	defer stream.Close()

	result := collector.Consume(stream.All())
	result.LogSummary()
	if err := result.Render(os.Stdout, format); err != nil {
		return 0, err
	}

	if dir := viper.GetString("report.reproductions_dir"); dir != "" {
		paths, err := result.WriteReproductions(dir)
		if err != nil {
			log.Error().Err(err).Msg("Failed to write reproduction scripts")
		} else if len(paths) > 0 {
			log.Info().Int("files", len(paths)).Str("dir", dir).Msg("Wrote reproduction scripts")
		}
	}

	code := result.ExitCode()
	if store != nil {
		if err := store.SetExitCode(code); err != nil {
			log.Error().Err(err).Msg("Failed to save run exit code")
		}
		if err := store.Err(); err != nil {
			log.Error().Err(err).Msg("Some results could not be saved")
		} else {
			log.Info().Str("run", store.RunID().String()).Msg("Results saved")
		}
	}
	return code, nil
}

func logProgress(event events.Event) {
	switch ev := event.(type) {
	case *events.PhaseStarted:
		if ev.Phase.ShouldExecute() {
			log.Info().Str("phase", string(ev.Phase.Name)).Msg("Phase started")
		}
	case *events.PhaseFinished:
		log.Info().Str("phase", string(ev.Phase.Name)).Str("status", ev.Status.String()).Msg("Phase finished")
	case *events.ScenarioFinished:
		log.Debug().Str("phase", string(ev.Phase)).Str("operation", ev.Label).Str("status", ev.Status.String()).Dur("elapsed", ev.Elapsed).Msg("Scenario finished")
	case *events.NonFatalError:
		log.Warn().Err(ev.Err).Str("operation", ev.Label).Str("kind", ev.Title()).Msg("Operation error")
	case *events.FatalError:
		log.Error().Err(ev.Err).Msg("Fatal error")
	case *events.Interrupted:
		log.Warn().Str("phase", string(ev.Phase)).Msg("Run interrupted")
	}
}
