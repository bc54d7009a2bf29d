package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/pyneda/kensa/lib"
	"github.com/pyneda/kensa/pkg/generation"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	coverLocation string
	coverModes    []string
	coverSeed     int64
	coverFormat   string
	coverLimit    int
)

// coverValue is one generated value as printed by the cover command.
type coverValue struct {
	Mode        string `json:"mode" yaml:"mode"`
	Description string `json:"description" yaml:"description"`
	Value       any    `json:"value" yaml:"value"`
	Location    string `json:"location,omitempty" yaml:"location,omitempty"`
}

func (v coverValue) encoded() string {
	raw, err := json.Marshal(v.Value)
	if err != nil {
		return fmt.Sprintf("%v", v.Value)
	}
	return string(raw)
}

func (v coverValue) String() string {
	return fmt.Sprintf("%s\t%s\t%s", v.Mode, v.Description, v.encoded())
}

func (v coverValue) Pretty() string {
	mode := color.GreenString(v.Mode)
	if v.Mode == string(generation.Negative) {
		mode = color.RedString(v.Mode)
	}
	return fmt.Sprintf("[%s] %s: %s", mode, v.Description, v.encoded())
}

func (v coverValue) TableHeaders() []string {
	return []string{"Mode", "Description", "Value", "Location"}
}

func (v coverValue) TableRow() []string {
	return []string{v.Mode, v.Description, v.encoded(), v.Location}
}

var coverCmd = &cobra.Command{
	Use:   "cover <schema-file>",
	Short: "Print the coverage values generated for a JSON Schema",
	Long: `Print every positive and negative value the coverage phase generates for
a JSON Schema file (JSON or YAML). Useful to see how a schema is exercised.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		node, err := readSchemaFile(args[0])
		if err != nil {
			return err
		}
		format, err := lib.ParseFormatType(coverFormat)
		if err != nil {
			return err
		}
		values, err := coverSchemaValues(node, coverLocation, coverModes, coverSeed, coverLimit)
		if err != nil {
			return err
		}
		output, err := lib.FormatOutput(values, format)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), output)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(coverCmd)
	coverCmd.Flags().StringVarP(&coverLocation, "location", "l", "body", "Where the value is sent: body, query, path, header or cookie")
	coverCmd.Flags().StringSliceVar(&coverModes, "mode", []string{"positive", "negative"}, "Generation modes")
	coverCmd.Flags().Int64Var(&coverSeed, "seed", 0, "Seed for drawn values")
	coverCmd.Flags().StringVarP(&coverFormat, "format", "f", "pretty", "Output format: pretty, text, table, json, yaml")
	coverCmd.Flags().IntVar(&coverLimit, "limit", 0, "Stop after this many values, 0 for all")
}

func readSchemaFile(path string) (any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	var node any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &node)
	default:
		err = json.Unmarshal(raw, &node)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}
	return node, nil
}

func coverSchemaValues(node any, location string, rawModes []string, seed int64, limit int) ([]coverValue, error) {
	modes := make(generation.Modes, 0, len(rawModes))
	for _, raw := range rawModes {
		mode, err := generation.ParseMode(raw)
		if err != nil {
			return nil, err
		}
		modes = append(modes, mode)
	}
	ctx := generation.NewContext(location, modes, generation.NewRapidDrawer(seed))
	var values []coverValue
	for value, err := range generation.Cover(ctx, node) {
		if err != nil {
			return values, err
		}
		values = append(values, coverValue{
			Mode:        string(value.Mode),
			Description: value.Description,
			Value:       value.Value,
			Location:    value.Location,
		})
		if limit > 0 && len(values) >= limit {
			break
		}
	}
	return values, nil
}
