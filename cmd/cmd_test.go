package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/pyneda/kensa/internal/config"
	"github.com/pyneda/kensa/pkg/generation"
	"github.com/pyneda/kensa/pkg/report"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const tagsSpec = `{
	"openapi": "3.0.3",
	"info": {"title": "Tags", "version": "1.0.0"},
	"paths": {
		"/tags": {
			"get": {
				"responses": {"200": {"description": "OK"}}
			}
		}
	}
}`

func TestApplyPhaseSelection(t *testing.T) {
	v := viper.New()
	require.NoError(t, applyPhaseSelection(v, []string{"coverage", " Fuzzing "}))
	assert.True(t, v.GetBool("engine.phases.coverage.enabled"))
	assert.True(t, v.GetBool("engine.phases.fuzzing.enabled"))
	assert.False(t, v.GetBool("engine.phases.probing.enabled"))
	assert.False(t, v.GetBool("engine.phases.stateful.enabled"))

	assert.Error(t, applyPhaseSelection(v, []string{"warmup"}))
}

func TestCoverSchemaValues(t *testing.T) {
	node := map[string]any{"type": "integer", "minimum": 1, "maximum": 3}

	values, err := coverSchemaValues(node, "body", []string{"positive"}, 0, 0)
	require.NoError(t, err)
	require.NotEmpty(t, values)
	for _, value := range values {
		assert.Equal(t, string(generation.Positive), value.Mode)
	}

	limited, err := coverSchemaValues(node, "body", []string{"positive", "negative"}, 0, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = coverSchemaValues(node, "body", []string{"sideways"}, 0, 0)
	assert.Error(t, err)
}

func TestReadSchemaFile(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "schema.json")
	yamlPath := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"type": "string", "minLength": 2}`), 0o644))
	require.NoError(t, os.WriteFile(yamlPath, []byte("type: string\nminLength: 2\n"), 0o644))

	for _, path := range []string{jsonPath, yamlPath} {
		node, err := readSchemaFile(path)
		require.NoError(t, err, path)
		assert.Equal(t, "string", node.(map[string]any)["type"], path)
	}

	_, err := readSchemaFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestRunSchemaReportsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	dir := t.TempDir()
	specPath := filepath.Join(dir, "openapi.json")
	require.NoError(t, os.WriteFile(specPath, []byte(tagsSpec), 0o644))
	cassettePath := filepath.Join(dir, "cassette.yaml")
	reproDir := filepath.Join(dir, "repro")

	t.Cleanup(viper.Reset)
	config.SetDefaultConfig()
	require.NoError(t, applyPhaseSelection(viper.GetViper(), []string{"coverage"}))
	viper.Set("network.base_url", server.URL)
	viper.Set("engine.seed", 1)
	viper.Set("checks.enabled", []string{"not_a_server_error"})
	viper.Set("report.format", "json")
	viper.Set("report.cassette_path", cassettePath)
	viper.Set("report.reproductions_dir", reproDir)

	code, err := runSchema(context.Background(), specPath, "kensa run openapi.json")
	require.NoError(t, err)
	assert.Equal(t, report.ExitFailures, code)

	raw, err := os.ReadFile(cassettePath)
	require.NoError(t, err)
	var cassette struct {
		Interactions []report.CassetteInteraction `yaml:"http_interactions"`
	}
	require.NoError(t, yaml.Unmarshal(raw, &cassette))
	require.NotEmpty(t, cassette.Interactions)
	assert.Equal(t, http.StatusInternalServerError, cassette.Interactions[0].Response.Status.Code)

	_, err = os.Stat(filepath.Join(reproDir, "get-tags.sh"))
	assert.NoError(t, err)
}
