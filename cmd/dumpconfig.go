package cmd

import (
	"fmt"
	"sort"

	"github.com/pyneda/kensa/lib"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var dumpconfigOutput string
var dumpconfigPrint bool

// dumpconfigCmd represents the dumpconfig command
var dumpconfigCmd = &cobra.Command{
	Use:   "dumpconfig",
	Short: "Dumps the effective configuration",
	Long:  `Writes the effective configuration, defaults included, to a YAML file, or prints it with --print.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if dumpconfigPrint {
			output, err := lib.FormatOutput(configValues(viper.GetViper()), lib.Table)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), output)
			return nil
		}
		if err := viper.SafeWriteConfigAs(dumpconfigOutput); err != nil {
			return fmt.Errorf("could not write config file: %w", err)
		}
		log.Info().Str("path", dumpconfigOutput).Msg("Config file written")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dumpconfigCmd)
	dumpconfigCmd.Flags().StringVarP(&dumpconfigOutput, "output", "o", "config.yaml", "File to write")
	dumpconfigCmd.Flags().BoolVar(&dumpconfigPrint, "print", false, "Print the configuration instead of writing it")
}

func configValues(v *viper.Viper) []lib.KeyValue {
	keys := v.AllKeys()
	sort.Strings(keys)
	values := make([]lib.KeyValue, 0, len(keys))
	for _, key := range keys {
		values = append(values, lib.KeyValue{Key: key, Value: fmt.Sprintf("%v", v.Get(key))})
	}
	return values
}
