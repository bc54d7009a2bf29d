package lib

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

type FormatType string

const (
	Pretty FormatType = "pretty"
	Text   FormatType = "text"
	JSON   FormatType = "json"
	YAML   FormatType = "yaml"
	Table  FormatType = "table"
)

// Formattable is implemented by anything that can be listed in command output.
type Formattable interface {
	String() string
	Pretty() string
	TableHeaders() []string
	TableRow() []string
}

func FormatOutput[T Formattable](data []T, format FormatType) (string, error) {
	switch format {
	case Text, Pretty:
		lines := make([]string, 0, len(data))
		for _, item := range data {
			if format == Pretty {
				lines = append(lines, item.Pretty())
			} else {
				lines = append(lines, item.String())
			}
		}
		return strings.Join(lines, "\n"), nil
	case JSON:
		j, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return "", err
		}
		return string(j), nil
	case YAML:
		y, err := yaml.Marshal(data)
		if err != nil {
			return "", err
		}
		return string(y), nil
	case Table:
		if len(data) == 0 {
			return "", nil
		}
		rows := make([][]string, 0, len(data))
		for _, item := range data {
			rows = append(rows, item.TableRow())
		}
		return renderTable(data[0].TableHeaders(), rows), nil
	}
	return "", fmt.Errorf("unknown format: %v", format)
}

func renderTable(headers []string, rows [][]string) string {
	buffer := new(bytes.Buffer)
	table := tablewriter.NewWriter(buffer)
	table.SetHeader(headers)
	table.SetBorder(true)
	table.SetAutoWrapText(false)
	table.AppendBulk(rows)
	table.Render()
	return buffer.String()
}

// KeyValue is a single named value for tabular output.
type KeyValue struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

func (kv KeyValue) String() string         { return kv.Key + "=" + kv.Value }
func (kv KeyValue) Pretty() string         { return color.BlueString(kv.Key+":") + " " + kv.Value }
func (kv KeyValue) TableHeaders() []string { return []string{"Key", "Value"} }
func (kv KeyValue) TableRow() []string     { return []string{kv.Key, kv.Value} }

func FormatOutputToFile[T Formattable](data []T, format FormatType, filepath string) error {
	formattedData, err := FormatOutput(data, format)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath, []byte(formattedData), 0o644)
}

// ParseFormatType converts a string format to a FormatType.
func ParseFormatType(format string) (FormatType, error) {
	switch FormatType(strings.ToLower(format)) {
	case Pretty:
		return Pretty, nil
	case Text:
		return Text, nil
	case JSON:
		return JSON, nil
	case YAML:
		return YAML, nil
	case Table:
		return Table, nil
	}
	return "", fmt.Errorf("unknown format: %s", format)
}
