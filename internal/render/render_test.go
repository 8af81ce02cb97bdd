package render

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func report() *Report {
	r := &Report{Title: "G-formula", RunID: "run-1", Columns: []string{"plan", "marginal"}, Decimal: 3}
	r.Append("all", 0.73105)
	r.Append("none", math.NaN())
	return r
}

func TestWrite_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, report(), "table"))
	s := buf.String()
	assert.Contains(t, s, "G-formula")
	assert.Contains(t, s, "0.731")
	assert.Contains(t, s, "NaN")
	assert.Contains(t, s, "run run-1")
	assert.Contains(t, s, "marginal")
	assert.NotContains(t, s, "MARGINAL")
}

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, report(), "json"))

	var got struct {
		Title string           `json:"title"`
		RunID string           `json:"run_id"`
		Rows  []map[string]any `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "G-formula", got.Title)
	assert.Equal(t, "run-1", got.RunID)
	require.Len(t, got.Rows, 2)
	assert.Equal(t, "all", got.Rows[0]["plan"])
	assert.InDelta(t, 0.73105, got.Rows[0]["marginal"], 1e-12)
	assert.Nil(t, got.Rows[1]["marginal"])
}

func TestWrite_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, report(), "yaml"))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "G-formula", got["title"])
	assert.Len(t, got["rows"], 2)
}

func TestResolve(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, "json", Resolve("auto", &buf))
	assert.Equal(t, "yaml", Resolve("yaml", &buf))
	assert.Error(t, Write(&buf, report(), "xml"))
}
