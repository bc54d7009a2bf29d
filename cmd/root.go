package cmd

import (
	"github.com/pyneda/kensa/internal/config"
	"github.com/pyneda/kensa/lib"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string
var debugLogging bool
var logFormat string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kensa",
	Short: "Schema driven API testing",
	Long: `kensa reads an OpenAPI or Swagger definition and tests the API behind it.

It generates examples, boundary and invalid values for every operation,
follows links between operations, and checks each response against the
definition.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is config.yaml in /etc/kensa/ or the working directory)")
	rootCmd.PersistentFlags().BoolVar(&debugLogging, "debug", false, "Use debug level logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Console log format: pretty, auto or json")
	rootCmd.PersistentFlags().String("dsn", "", "Database to store results in, a postgres DSN or a sqlite file")
	cobra.CheckErr(viper.BindPFlag("db.dsn", rootCmd.PersistentFlags().Lookup("dsn")))

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := config.LoadConfig(cfgFile); err != nil {
			return err
		}
		return setupLogging()
	}
}

func setupLogging() error {
	level := lib.ParseLogLevel(viper.GetString("logging.console.level"))
	if debugLogging {
		level = zerolog.DebugLevel
	}
	format := viper.GetString("logging.console.format")
	if logFormat != "" {
		format = logFormat
	}
	if viper.GetBool("logging.file.enabled") {
		if err := lib.ZeroConsoleAndFileLog(viper.GetString("logging.file.path"), level, format); err != nil {
			log.Warn().Err(err).Msg("Could not set up file logging")
		}
		return nil
	}
	lib.ZeroConsoleLog(level, format)
	return nil
}
