// Package output renders load test progress and results for people and for
// other tools.
package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/wesleyorama2/formload/internal/loadtest/engine"
	"github.com/wesleyorama2/formload/internal/metrics"
	"github.com/wesleyorama2/formload/internal/transaction"
)

// ANSI escape codes for cursor control
const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"

	boxHorizontal  = "━"
	boxVertical    = "│"
	boxTopLeft     = "┌"
	boxTopRight    = "┐"
	boxBottomLeft  = "└"
	boxBottomRight = "┘"

	progressFilled = "█"
	progressEmpty  = "░"
)

// LiveStats contains real-time statistics for display.
type LiveStats struct {
	// Progress tracking
	Progress  float64       // 0.0 to 1.0
	Elapsed   time.Duration // Time elapsed since test start
	Remaining time.Duration // Estimated time remaining

	// VU stats
	ActiveVUs int
	TargetVUs int

	// Transaction stats
	TPS          float64
	Transactions int64
	Failed       int64
	Inconclusive int64
	FailureRate  float64

	// Iterations finished
	Iterations int64

	// Latency stats
	LatencyP95 time.Duration
	LatencyAvg time.Duration

	// Phase info
	CurrentPhase string
	CurrentStage int // 1-indexed
	TotalStages  int
}

// ConsoleOutput manages live console output during test execution.
type ConsoleOutput struct {
	testName       string
	totalDuration  time.Duration
	updateInterval time.Duration
	writer         io.Writer
	isTTY          bool
	quiet          bool
	colors         *ColorScheme

	mu          sync.Mutex
	linesOutput int // Number of lines in the live display
}

// ConsoleOutputConfig contains configuration for ConsoleOutput.
type ConsoleOutputConfig struct {
	TestName       string
	TotalDuration  time.Duration
	UpdateInterval time.Duration
	Writer         io.Writer
	Quiet          bool
	NoColor        bool
	ForceColors    bool
	ForceTTY       bool
}

// NewConsoleOutput creates a new console output handler.
func NewConsoleOutput(config ConsoleOutputConfig) *ConsoleOutput {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}
	if config.UpdateInterval == 0 {
		config.UpdateInterval = time.Second
	}

	isTTY := config.ForceTTY || isTerminal(config.Writer)
	useColors := !config.NoColor && (config.ForceColors || (isTTY && supportsColors()))

	colors := NoColorScheme()
	if useColors {
		colors = ForcedColorScheme()
	}

	return &ConsoleOutput{
		testName:       config.TestName,
		totalDuration:  config.TotalDuration,
		updateInterval: config.UpdateInterval,
		writer:         config.Writer,
		isTTY:          isTTY,
		quiet:          config.Quiet,
		colors:         colors,
	}
}

// UpdateInterval returns how often the caller should refresh the display.
func (c *ConsoleOutput) UpdateInterval() time.Duration {
	return c.updateInterval
}

// IsTTY returns whether the output is a terminal.
func (c *ConsoleOutput) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the test header.
func (c *ConsoleOutput) PrintHeader(groups map[string]string) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	line := strings.Repeat(boxHorizontal, 56)
	c.writeln(c.colors.Border.Sprint(line))
	c.writeln(c.colors.Title.Sprintf("%s - Running", c.testName))
	c.writeln(c.colors.Border.Sprint(line))

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c.writeln(fmt.Sprintf("  %s %s", c.colors.Label.Sprint(name), c.colors.Dim.Sprint(groups[name])))
	}
	if c.totalDuration > 0 {
		c.writeln(fmt.Sprintf("  planned: %s", formatDuration(c.totalDuration)))
	}
	c.writeln("")
}

// Refresh renders stats live on a terminal or as one line otherwise.
func (c *ConsoleOutput) Refresh(stats *LiveStats) {
	if c.isTTY {
		c.Update(stats)
		return
	}
	c.PrintNonInteractiveUpdate(stats)
}

// Update updates the live display with new statistics.
func (c *ConsoleOutput) Update(stats *LiveStats) {
	if c.quiet || !c.isTTY {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLive(false)
	lines := c.renderLiveStats(stats)
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

// clearLive erases the previous live display.
func (c *ConsoleOutput) clearLive(reset bool) {
	if c.linesOutput == 0 {
		return
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	for i := 0; i < c.linesOutput; i++ {
		c.write(clearLine)
		if i < c.linesOutput-1 || reset {
			c.write("\n")
		}
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	if reset {
		c.linesOutput = 0
	}
}

// renderLiveStats renders the live statistics display.
func (c *ConsoleOutput) renderLiveStats(stats *LiveStats) []string {
	var lines []string

	progressBar := renderProgressBar(stats.Progress, 40)
	timeInfo := fmt.Sprintf("%s / %s", formatDuration(stats.Elapsed), formatDuration(stats.Elapsed+stats.Remaining))
	lines = append(lines, fmt.Sprintf("Progress: %s %s | %s",
		c.colors.Pass.Sprint(progressBar),
		c.colors.Title.Sprintf("%.0f%%", stats.Progress*100),
		c.colors.Dim.Sprint(timeInfo)))

	phaseInfo := stats.CurrentPhase
	if stats.TotalStages > 0 {
		phaseInfo = fmt.Sprintf("%s (%d/%d)", stats.CurrentPhase, stats.CurrentStage, stats.TotalStages)
	}
	lines = append(lines, fmt.Sprintf("Stage:    %s", c.colors.Phase.Sprint(phaseInfo)))
	lines = append(lines, "")

	boxWidth := 59
	lines = append(lines, c.colors.Dim.Sprint(boxTopLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxTopRight))

	vus := fmt.Sprintf("VUs:     %s / %d", c.colors.Value.Sprint(stats.ActiveVUs), stats.TargetVUs)
	txs := fmt.Sprintf("Transactions: %s", c.colors.Value.Sprint(formatNumber(stats.Transactions)))
	lines = append(lines, c.formatBoxRow(vus, txs, boxWidth))

	rate := c.colors.Rate(stats.FailureRate)
	tps := fmt.Sprintf("TPS:     %s", c.colors.Pass.Sprintf("%.1f", stats.TPS))
	failed := fmt.Sprintf("Failed:       %s (%s)",
		rate.Sprint(stats.Failed), rate.Sprintf("%.1f%%", stats.FailureRate*100))
	lines = append(lines, c.formatBoxRow(tps, failed, boxWidth))

	iters := fmt.Sprintf("Iters:   %s", c.colors.Value.Sprint(formatNumber(stats.Iterations)))
	inconclusive := fmt.Sprintf("Inconclusive: %s", c.colors.Inconclusive.Sprint(stats.Inconclusive))
	lines = append(lines, c.formatBoxRow(iters, inconclusive, boxWidth))

	p95 := fmt.Sprintf("P95:     %s", c.colors.Latency.Sprint(formatDurationShort(stats.LatencyP95)))
	avg := fmt.Sprintf("Avg:          %s", c.colors.Latency.Sprint(formatDurationShort(stats.LatencyAvg)))
	lines = append(lines, c.formatBoxRow(p95, avg, boxWidth))

	lines = append(lines, c.colors.Dim.Sprint(boxBottomLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxBottomRight))
	return lines
}

// formatBoxRow formats a row inside the stats box with two columns.
func (c *ConsoleOutput) formatBoxRow(left, right string, boxWidth int) string {
	colWidth := (boxWidth - 4) / 2

	leftPadding := colWidth - visibleLen(left)
	if leftPadding < 0 {
		leftPadding = 0
	}
	rightPadding := colWidth - visibleLen(right)
	if rightPadding < 0 {
		rightPadding = 0
	}

	border := c.colors.Dim.Sprint(boxVertical)
	return fmt.Sprintf("%s %s%s%s %s%s %s",
		border, left, strings.Repeat(" ", leftPadding),
		border, right, strings.Repeat(" ", rightPadding),
		border)
}

// PrintNonInteractiveUpdate prints a non-interactive status update.
// Used when output is not a TTY (e.g., piped to a file or CI/CD).
func (c *ConsoleOutput) PrintNonInteractiveUpdate(stats *LiveStats) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln(fmt.Sprintf("[%s] Progress: %.0f%% | VUs: %d | Tx: %d | TPS: %.1f | Failed: %d (%.1f%%) | Inconclusive: %d | Iters: %d | P95: %s",
		formatDuration(stats.Elapsed),
		stats.Progress*100,
		stats.ActiveVUs,
		stats.Transactions,
		stats.TPS,
		stats.Failed,
		stats.FailureRate*100,
		stats.Inconclusive,
		stats.Iterations,
		formatDurationShort(stats.LatencyP95)))
}

// PrintSummary prints the final test summary.
func (c *ConsoleOutput) PrintSummary(result *engine.TestResult) {
	if c.quiet {
		if result.Passed {
			c.writeln(c.colors.Pass.Sprint("PASSED"))
		} else {
			c.writeln(c.colors.Fail.Sprint("FAILED"))
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isTTY {
		c.clearLive(true)
	}

	line := strings.Repeat(boxHorizontal, 56)
	status := c.colors.Pass.Sprint("Completed ✓")
	if !result.Passed {
		status = c.colors.Fail.Sprint("Failed ✗")
	}

	c.writeln("")
	c.writeln(c.colors.Border.Sprint(line))
	c.writeln(fmt.Sprintf("%s - %s", c.colors.Title.Sprint(result.Name), status))
	c.writeln(c.colors.Border.Sprint(line))
	c.writeln("")

	c.writeln(fmt.Sprintf("Run:           %s", c.colors.Dim.Sprint(result.RunID)))
	c.writeln(fmt.Sprintf("Duration:      %s", c.colors.Value.Sprint(formatDuration(result.Duration))))
	if m := result.Metrics; m != nil {
		c.writeln(fmt.Sprintf("Transactions:  %s", c.colors.Value.Sprint(formatNumber(m.Transactions.Total))))
		c.writeln(fmt.Sprintf("Iterations:    %s", c.outcomeCounts(m.Iterations)))
		c.writeln(fmt.Sprintf("Failure Rate:  %s", c.colors.Rate(m.FailureRate).Sprintf("%.1f%%", m.FailureRate*100)))
		c.writeln(fmt.Sprintf("Throughput:    %s", c.colors.Value.Sprintf("%.2f tx/s", m.TPS)))
	}
	c.writeln("")

	if len(result.Scenarios) > 0 {
		c.writeln(c.colors.Label.Sprint("Scenarios:"))
		names := make([]string, 0, len(result.Scenarios))
		for name := range result.Scenarios {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			s := result.Scenarios[name]
			c.writeln(fmt.Sprintf("  %-20s %-28s %-18s %s",
				name, s.Scenario, s.Executor, c.outcomeCounts(s.Iterations)))
			if s.ErrorMessage != "" {
				c.writeln(fmt.Sprintf("  %s %s", c.colors.Fail.Sprint("error:"), s.ErrorMessage))
			}
		}
		c.writeln("")
	}

	if m := result.Metrics; m != nil && m.Latency.Count > 0 {
		c.writeln(c.colors.Label.Sprint("Latency Distribution:"))
		c.writeln(fmt.Sprintf("  Min:       %s", formatDurationShort(m.Latency.Min)))
		c.writeln(fmt.Sprintf("  P50:       %s", formatDurationShort(m.Latency.P50)))
		c.writeln(fmt.Sprintf("  P90:       %s", formatDurationShort(m.Latency.P90)))
		c.writeln(fmt.Sprintf("  P95:       %s", formatDurationShort(m.Latency.P95)))
		c.writeln(fmt.Sprintf("  P99:       %s", formatDurationShort(m.Latency.P99)))
		c.writeln(fmt.Sprintf("  Max:       %s", formatDurationShort(m.Latency.Max)))
		c.writeln("")
	}

	if len(result.Transactions) > 0 {
		c.writeln(c.colors.Label.Sprint("Transactions:"))
		c.writeln(c.colors.Dim.Sprintf("  %-26s %8s %8s %8s %8s %9s %9s %9s",
			"name", "count", "pass", "fail", "incon.", "avg", "p95", "max"))
		for _, tx := range result.Transactions {
			c.writeln(c.transactionRow(tx))
		}
		c.writeln("")
	}

	if len(result.Thresholds) > 0 {
		c.writeln(c.colors.Label.Sprint("Thresholds:"))
		for _, t := range result.Thresholds {
			mark := c.colors.Pass.Sprint("✓")
			if !t.Passed {
				mark = c.colors.Fail.Sprint("✗")
			}
			c.writeln(fmt.Sprintf("  %s %s %s (actual: %s)", mark, t.Metric, t.Expression, t.Value))
			if !t.Passed && t.Message != "" {
				c.writeln(fmt.Sprintf("      %s", c.colors.Dim.Sprint(t.Message)))
			}
		}
		c.writeln("")
	}

	if result.ErrorMessage != "" {
		c.writeln(fmt.Sprintf("%s %s", c.colors.Fail.Sprint("Error:"), result.ErrorMessage))
		c.writeln("")
	}
}

func (c *ConsoleOutput) transactionRow(tx metrics.TransactionStats) string {
	row := fmt.Sprintf("  %-26s %8d %8d %8d %8d %9s %9s %9s",
		truncate(tx.Name, 26),
		tx.Outcomes.Total,
		tx.Outcomes.Passed,
		tx.Outcomes.Failed,
		tx.Outcomes.Inconclusive,
		formatDurationShort(tx.Latency.Mean),
		formatDurationShort(tx.Latency.P95),
		formatDurationShort(tx.Latency.Max))

	var col *color.Color
	switch {
	case tx.Outcomes.Failed > 0:
		col = c.colors.Fail
	case tx.Outcomes.Inconclusive > 0:
		col = c.colors.Inconclusive
	default:
		return row
	}
	return col.Sprint(row)
}

// outcomeCounts renders "12 ✓ 1 ✗ 2 ?" with each part in its outcome color.
func (c *ConsoleOutput) outcomeCounts(oc metrics.OutcomeCounts) string {
	return fmt.Sprintf("%s %s %s",
		c.colors.Outcome(transaction.OutcomePass).Sprintf("%d %s", oc.Passed, OutcomeIcon(transaction.OutcomePass)),
		c.colors.Outcome(transaction.OutcomeFail).Sprintf("%d %s", oc.Failed, OutcomeIcon(transaction.OutcomeFail)),
		c.colors.Outcome(transaction.OutcomeInconclusive).Sprintf("%d %s", oc.Inconclusive, OutcomeIcon(transaction.OutcomeInconclusive)))
}

// write writes to the output without a newline.
func (c *ConsoleOutput) write(s string) {
	fmt.Fprint(c.writer, s)
}

// writeln writes to the output with a newline.
func (c *ConsoleOutput) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

// renderProgressBar renders a progress bar.
func renderProgressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	filled := int(progress * float64(width))
	return "[" + strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, width-filled) + "]"
}

// StatsFromMetrics creates LiveStats from engine metrics.
func StatsFromMetrics(
	snapshot *metrics.Snapshot,
	progress float64,
	totalDuration time.Duration,
	targetVUs int,
	currentStage, totalStages int,
) *LiveStats {
	if snapshot == nil {
		return &LiveStats{
			Progress:     progress,
			TargetVUs:    targetVUs,
			CurrentStage: currentStage,
			TotalStages:  totalStages,
			CurrentPhase: "initializing",
		}
	}

	elapsed := snapshot.Elapsed
	remaining := time.Duration(0)
	if progress > 0 && progress < 1 {
		remaining = time.Duration(float64(elapsed) * (1 - progress) / progress)
	} else if totalDuration > 0 {
		remaining = totalDuration - elapsed
		if remaining < 0 {
			remaining = 0
		}
	}

	return &LiveStats{
		Progress:     progress,
		Elapsed:      elapsed,
		Remaining:    remaining,
		ActiveVUs:    snapshot.ActiveVUs,
		TargetVUs:    targetVUs,
		TPS:          snapshot.TPS,
		Transactions: snapshot.Transactions.Total,
		Failed:       snapshot.Transactions.Failed,
		Inconclusive: snapshot.Transactions.Inconclusive,
		FailureRate:  snapshot.FailureRate,
		Iterations:   snapshot.Iterations.Total,
		LatencyP95:   snapshot.Latency.P95,
		LatencyAvg:   snapshot.Latency.Mean,
		CurrentPhase: string(snapshot.CurrentPhase),
		CurrentStage: currentStage,
		TotalStages:  totalStages,
	}
}
