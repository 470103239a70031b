package output

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/formload/internal/loadtest/engine"
)

// Format is a report format.
type Format string

const (
	FormatText  Format = "text"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatJUnit Format = "junit"
)

// Formats lists the supported report formats.
func Formats() []Format {
	return []Format{FormatText, FormatJSON, FormatYAML, FormatJUnit}
}

// ParseFormat parses a format name. The empty string means text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "junit", "xml":
		return FormatJUnit, nil
	}
	return "", fmt.Errorf("unknown report format %q (want one of text, json, yaml, junit)", s)
}

// FormatFromPath guesses the format from a file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	case ".xml":
		return FormatJUnit
	}
	return FormatText
}

// WriteReport writes result to w in the given format.
func WriteReport(w io.Writer, result *engine.TestResult, format Format) error {
	if result == nil {
		return fmt.Errorf("no result to report")
	}

	switch format {
	case FormatText:
		NewConsoleOutput(ConsoleOutputConfig{Writer: w, NoColor: true}).PrintSummary(result)
		return nil
	case FormatJSON:
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal json report: %w", err)
		}
		_, err = w.Write(append(data, '\n'))
		return err
	case FormatYAML:
		return writeYAML(w, result)
	case FormatJUnit:
		return writeJUnit(w, result)
	}
	return fmt.Errorf("unknown report format %q", format)
}

// WriteReportFile writes result to path, creating parent directories.
func WriteReportFile(path string, result *engine.TestResult, format Format) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := WriteReport(&buf, result, format); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// writeYAML goes through the JSON form so both reports share field names
// and key order.
func writeYAML(w io.Writer, result *engine.TestResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal yaml report: %w", err)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return fmt.Errorf("convert yaml report: %w", err)
	}
	clearStyle(&node)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return fmt.Errorf("encode yaml report: %w", err)
	}
	return enc.Close()
}

// clearStyle turns JSON flow style into block style.
func clearStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle
	if n.Kind == yaml.ScalarNode && n.Style&yaml.DoubleQuotedStyle != 0 {
		n.Style &^= yaml.DoubleQuotedStyle
	}
	for _, c := range n.Content {
		clearStyle(c)
	}
}

type junitTestSuites struct {
	XMLName  xml.Name         `xml:"testsuites"`
	Name     string           `xml:"name,attr"`
	Tests    int              `xml:"tests,attr"`
	Failures int              `xml:"failures,attr"`
	Time     string           `xml:"time,attr"`
	Suites   []junitTestSuite `xml:"testsuite"`
}

type junitTestSuite struct {
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Skipped   int             `xml:"skipped,attr"`
	Time      string          `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr,omitempty"`
	Cases     []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Skipped   *junitSkipped `xml:"skipped,omitempty"`
	SystemOut string        `xml:"system-out,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Text    string `xml:",chardata"`
}

type junitSkipped struct {
	Message string `xml:"message,attr"`
}

// writeJUnit writes one suite of scenario groups and one of thresholds.
// A group fails when it errored or any of its iterations failed; a group
// with only inconclusive iterations is reported as skipped.
func writeJUnit(w io.Writer, result *engine.TestResult) error {
	groups := junitTestSuite{
		Name:      result.Name + ".scenarios",
		Time:      seconds(result.Duration.Seconds()),
		Timestamp: result.StartTime.UTC().Format("2006-01-02T15:04:05"),
	}

	names := make([]string, 0, len(result.Scenarios))
	for name := range result.Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		s := result.Scenarios[name]
		tc := junitTestCase{
			Name:      name,
			Classname: s.Scenario,
			Time:      seconds(s.Duration.Seconds()),
			SystemOut: fmt.Sprintf("executor=%s iterations=%d passed=%d failed=%d inconclusive=%d maxVUs=%d",
				s.Executor, s.Iterations.Total, s.Iterations.Passed, s.Iterations.Failed, s.Iterations.Inconclusive, s.MaxVUs),
		}
		switch {
		case s.ErrorMessage != "":
			tc.Failure = &junitFailure{Message: s.ErrorMessage, Type: "error", Text: s.ErrorMessage}
		case s.Iterations.Failed > 0:
			msg := fmt.Sprintf("%d of %d iterations failed", s.Iterations.Failed, s.Iterations.Total)
			tc.Failure = &junitFailure{Message: msg, Type: "fail", Text: msg}
		case s.Iterations.Total > 0 && s.Iterations.Inconclusive == s.Iterations.Total:
			tc.Skipped = &junitSkipped{Message: "all iterations inconclusive"}
		}
		groups.add(tc)
	}

	suites := junitTestSuites{Name: result.Name, Time: groups.Time, Suites: []junitTestSuite{groups}}

	if len(result.Thresholds) > 0 {
		thresholds := junitTestSuite{Name: result.Name + ".thresholds", Time: "0"}
		for _, t := range result.Thresholds {
			tc := junitTestCase{
				Name:      t.Metric + ": " + t.Expression,
				Classname: "thresholds",
				Time:      "0",
				SystemOut: "actual: " + t.Value,
			}
			if !t.Passed {
				tc.Failure = &junitFailure{Message: t.Message, Type: "threshold", Text: t.Message}
			}
			thresholds.add(tc)
		}
		suites.Suites = append(suites.Suites, thresholds)
	}

	for _, s := range suites.Suites {
		suites.Tests += s.Tests
		suites.Failures += s.Failures
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(suites); err != nil {
		return fmt.Errorf("encode junit report: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func (s *junitTestSuite) add(tc junitTestCase) {
	s.Tests++
	if tc.Failure != nil {
		s.Failures++
	}
	if tc.Skipped != nil {
		s.Skipped++
	}
	s.Cases = append(s.Cases, tc)
}

func seconds(s float64) string {
	return fmt.Sprintf("%.3f", s)
}
