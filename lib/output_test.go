package lib

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestFormatOutput(t *testing.T) {
	color.NoColor = true
	data := []KeyValue{{Key: "engine.workers", Value: "4"}, {Key: "engine.seed", Value: "1"}}

	tests := []struct {
		format FormatType
		output string
		hasErr bool
	}{
		{Text, "engine.workers=4\nengine.seed=1", false},
		{Pretty, "engine.workers: 4\nengine.seed: 1", false},
		{JSON, `[
  {
    "key": "engine.workers",
    "value": "4"
  },
  {
    "key": "engine.seed",
    "value": "1"
  }
]`, false},
		{YAML, "- key: engine.workers\n  value: \"4\"\n- key: engine.seed\n  value: \"1\"\n", false},
		{FormatType("unknown"), "", true},
	}

	for _, tt := range tests {
		result, err := FormatOutput(data, tt.format)
		if (err != nil) != tt.hasErr {
			t.Errorf("%s: expected error %v, got %v", tt.format, tt.hasErr, err)
		}
		if result != tt.output {
			t.Errorf("%s: expected output %q, got %q", tt.format, tt.output, result)
		}
	}
}

func TestFormatOutputTable(t *testing.T) {
	result, err := FormatOutput([]KeyValue{{Key: "network.base_url", Value: "http://localhost"}}, Table)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"KEY", "VALUE", "network.base_url", "http://localhost"} {
		if !strings.Contains(result, want) {
			t.Errorf("expected table to contain %q, got:\n%s", want, result)
		}
	}

	empty, err := FormatOutput([]KeyValue{}, Table)
	if err != nil || empty != "" {
		t.Errorf("expected empty table output, got %q (%v)", empty, err)
	}
}

func TestFormatOutputToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	if err := FormatOutputToFile([]KeyValue{{Key: "a", Value: "b"}}, Text, path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(content) != "a=b" {
		t.Errorf("expected %q, got %q", "a=b", string(content))
	}
}

func TestParseFormatType(t *testing.T) {
	for _, name := range []string{"pretty", "TEXT", "json", "Yaml", "table"} {
		if _, err := ParseFormatType(name); err != nil {
			t.Errorf("expected %s to parse: %v", name, err)
		}
	}
	if _, err := ParseFormatType("html"); err == nil {
		t.Error("expected html to be rejected")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]string{"debug": "debug", " WARN ": "warn", "bogus": "info", "": "info"}
	for input, want := range tests {
		if got := ParseLogLevel(input).String(); got != want {
			t.Errorf("ParseLogLevel(%q) = %s, want %s", input, got, want)
		}
	}
}

func TestSliceContains(t *testing.T) {
	if !SliceContains([]string{"a", "b"}, "b") || SliceContains([]string{"a"}, "c") || SliceContains(nil, "") {
		t.Error("unexpected SliceContains result")
	}
}
