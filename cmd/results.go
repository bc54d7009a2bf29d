package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pyneda/kensa/db"
	"github.com/pyneda/kensa/lib"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	resultsFormat   string
	resultsTitle    string
	resultsStatus   string
	resultsPage     int
	resultsPageSize int
	resultsOutput   string
)

var resultsCmd = &cobra.Command{
	Use:   "results [run-id]",
	Short: "List stored runs, or show one run",
	Long:  `Reads the runs saved to the database configured with db.dsn.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn := viper.GetString("db.dsn")
		if dsn == "" {
			return fmt.Errorf("no database configured, set db.dsn")
		}
		format, err := lib.ParseFormatType(resultsFormat)
		if err != nil {
			return err
		}
		conn, err := db.Open(dsn, db.PoolOptions{})
		if err != nil {
			return err
		}
		defer conn.Close()

		var runs []*db.Run
		if len(args) == 1 {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id: %w", err)
			}
			run, err := conn.GetRun(id)
			if err != nil {
				return err
			}
			runs = append(runs, run)
		} else {
			runs, _, err = conn.ListRuns(db.RunFilter{
				Title:      resultsTitle,
				Status:     resultsStatus,
				Pagination: db.Pagination{Page: resultsPage, PageSize: resultsPageSize},
			})
			if err != nil {
				return err
			}
		}
		if resultsOutput != "" {
			return lib.FormatOutputToFile(runs, format, resultsOutput)
		}
		output, err := lib.FormatOutput(runs, format)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), output)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resultsCmd)
	resultsCmd.Flags().StringVarP(&resultsFormat, "format", "f", "table", "Output format: pretty, text, table, json, yaml")
	resultsCmd.Flags().StringVar(&resultsTitle, "title", "", "Only runs with this title")
	resultsCmd.Flags().StringVar(&resultsStatus, "status", "", "Only runs with this status")
	resultsCmd.Flags().IntVar(&resultsPage, "page", 1, "Page number")
	resultsCmd.Flags().IntVar(&resultsPageSize, "page-size", 25, "Runs per page")
	resultsCmd.Flags().StringVarP(&resultsOutput, "output", "o", "", "Write the output to this file instead of stdout")
}
