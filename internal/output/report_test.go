package output

import (
	"bytes"
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{"yml", FormatYAML, false},
		{"junit", FormatJUnit, false},
		{"xml", FormatJUnit, false},
		{"html", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatFromPath("out/report.json"))
	assert.Equal(t, FormatYAML, FormatFromPath("report.YML"))
	assert.Equal(t, FormatJUnit, FormatFromPath("junit.xml"))
	assert.Equal(t, FormatText, FormatFromPath("report"))
}

func TestWriteReport_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, sampleResult(), FormatJSON))

	doc := buf.String()
	require.True(t, gjson.Valid(doc))
	assert.Equal(t, "orders", gjson.Get(doc, "name").String())
	assert.False(t, gjson.Get(doc, "passed").Bool())
	assert.Equal(t, int64(7), gjson.Get(doc, "scenarios.post.iterations.passed").Int())
	assert.Equal(t, "create-and-post-sales-order", gjson.Get(doc, "scenarios.post.scenario").String())
	assert.Equal(t, int64(1234), gjson.Get(doc, "metrics.transactions.total").Int())
	assert.Equal(t, "Post", gjson.Get(doc, "transactions.1.name").String())
	assert.Equal(t, int64(1), gjson.Get(doc, `transactions.#(name=="Post").outcomes.inconclusive`).Int())
	assert.Equal(t, "transaction_failed", gjson.Get(doc, `thresholds.#(expression=="rate < 0.01").metric`).String())
	assert.False(t, gjson.Get(doc, "error").Exists())
}

func TestWriteReport_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, sampleResult(), FormatYAML))

	assert.True(t, strings.HasPrefix(buf.String(), "runId: run-1\n"), "keys keep report order")
	assert.NotContains(t, buf.String(), "{", "block style")

	var doc struct {
		Name      string `yaml:"name"`
		Passed    bool   `yaml:"passed"`
		Scenarios map[string]struct {
			Executor   string `yaml:"executor"`
			Iterations struct {
				Failed int `yaml:"failed"`
			} `yaml:"iterations"`
		} `yaml:"scenarios"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "orders", doc.Name)
	assert.False(t, doc.Passed)
	assert.Equal(t, "per-vu-iterations", doc.Scenarios["browse"].Executor)
	assert.Equal(t, 2, doc.Scenarios["post"].Iterations.Failed)
}

func TestWriteReport_JUnit(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, sampleResult(), FormatJUnit))

	var suites junitTestSuites
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &suites))

	assert.Equal(t, "orders", suites.Name)
	require.Len(t, suites.Suites, 2)
	assert.Equal(t, 4, suites.Tests)
	assert.Equal(t, 2, suites.Failures)

	groups := suites.Suites[0]
	require.Len(t, groups.Cases, 2)
	assert.Equal(t, "browse", groups.Cases[0].Name)
	assert.Nil(t, groups.Cases[0].Failure)
	assert.Equal(t, "post", groups.Cases[1].Name)
	require.NotNil(t, groups.Cases[1].Failure)
	assert.Equal(t, "2 of 10 iterations failed", groups.Cases[1].Failure.Message)

	thresholds := suites.Suites[1]
	assert.Equal(t, 1, thresholds.Failures)
	assert.Equal(t, "transaction_failed: rate < 0.01", thresholds.Cases[1].Name)
}

func TestWriteReport_JUnit_Inconclusive(t *testing.T) {
	result := sampleResult()
	result.Thresholds = nil
	result.Scenarios["post"].Iterations.Failed = 0
	result.Scenarios["post"].Iterations.Passed = 0
	result.Scenarios["post"].Iterations.Inconclusive = 10

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, result, FormatJUnit))

	var suites junitTestSuites
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &suites))
	require.Len(t, suites.Suites, 1)
	assert.Equal(t, 0, suites.Failures)
	assert.Equal(t, 1, suites.Suites[0].Skipped)
	assert.NotNil(t, suites.Suites[0].Cases[1].Skipped)
}

func TestWriteReport_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, sampleResult(), FormatText))

	assert.Contains(t, buf.String(), "orders - Failed ✗")
	assert.NotContains(t, buf.String(), "\033[")
}

func TestWriteReport_Errors(t *testing.T) {
	assert.Error(t, WriteReport(&bytes.Buffer{}, nil, FormatJSON))
	assert.Error(t, WriteReport(&bytes.Buffer{}, sampleResult(), Format("html")))
}

func TestWriteReportFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "run.json")

	require.NoError(t, WriteReportFile(path, sampleResult(), FormatJSON))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "run-1", gjson.GetBytes(data, "runId").String())
}
