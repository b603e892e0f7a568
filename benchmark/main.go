// Package main provides a performance benchmarking tool for the covagg CLI.
// It measures execution times of covagg commands against already-built Maven projects,
// running each command multiple times, treating the first successful run as cold and averaging the rest as warm,
// generating CSV output for performance analysis and documentation.
//
// Prerequisites:
// - covagg binary installed and available in PATH
// - Test projects built with tests run under the JaCoCo agent (target/classes and target/jacoco.exec present)
// - Projects: commons-lang, jackson-databind, spring-petclinic-microservices
//
// Usage: go run benchmark/main.go [project-base-dir]
//
//	project-base-dir: Directory containing the test projects
package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// BenchmarkResult holds the timing of one command against one project.
type BenchmarkResult struct {
	Project       string
	Command       string
	NoHistoryTime string
	ColdTime      string
	WarmTime      string
}

// BenchmarkConfig holds configuration for the benchmark run.
type BenchmarkConfig struct {
	ProjectBase    string
	Timeout        time.Duration
	Workers        int
	NoHistoryRuns  int
	HistoryRuns    int
	TestProjects   []string
	ReportModules  map[string]string
	CommandsToTime map[string][]string
}

func main() {
	if len(os.Args) != 2 {
		fmt.Printf("Usage: %s [project-base-dir]\n", os.Args[0])
		os.Exit(1)
	}

	config := BenchmarkConfig{
		ProjectBase:   os.Args[1],
		Timeout:       5 * time.Minute,
		Workers:       8,
		NoHistoryRuns: 3,
		HistoryRuns:   4,
		TestProjects:  []string{"commons-lang", "jackson-databind", "spring-petclinic-microservices"},
		ReportModules: map[string]string{
			"commons-lang":                   ".",
			"jackson-databind":               ".",
			"spring-petclinic-microservices": "spring-petclinic-api-gateway",
		},
		CommandsToTime: map[string][]string{
			"report":  {"report", "--quiet"},
			"check":   {"check", "--limits", "bundle:instruction:0.0"},
			"modules": {"modules"},
		},
	}

	if err := checkPrerequisites(config); err != nil {
		fmt.Printf("Prerequisites check failed: %v\n", err)
		os.Exit(1)
	}

	historyFile := filepath.Join(os.TempDir(), "covagg_benchmark_history.db")
	_ = os.Remove(historyFile)
	defer func() { _ = os.Remove(historyFile) }()

	results := runBenchmarks(config, historyFile)

	if err := saveResults(results); err != nil {
		fmt.Printf("Failed to save results: %v\n", err)
		os.Exit(1)
	}

	printSummary(results)
}

// checkPrerequisites verifies that covagg binary and test projects exist
func checkPrerequisites(config BenchmarkConfig) error {
	if _, err := exec.LookPath("covagg"); err != nil {
		return fmt.Errorf("covagg binary not found in PATH")
	}

	for _, project := range config.TestProjects {
		pomPath := filepath.Join(config.ProjectBase, project, "pom.xml")
		if _, err := os.Stat(pomPath); os.IsNotExist(err) {
			return fmt.Errorf("project %s not found at %s", project, pomPath)
		}
	}

	return nil
}

// runBenchmarks executes every command against every configured project
func runBenchmarks(config BenchmarkConfig, historyFile string) []BenchmarkResult {
	var results []BenchmarkResult

	fmt.Printf("Starting benchmark: %d projects, %v timeout, %d workers, no-history: %d runs, history: %d runs\n",
		len(config.TestProjects), config.Timeout, config.Workers, config.NoHistoryRuns, config.HistoryRuns)

	for _, project := range config.TestProjects {
		fmt.Printf("Benchmarking %s\n", project)
		projectDir := filepath.Join(config.ProjectBase, project, config.ReportModules[project])

		for _, command := range []string{"modules", "report", "check"} {
			result := runBenchmarkSuite(config, project, projectDir, command, historyFile)
			results = append(results, result)
		}
	}

	return results
}

// runBenchmarkSuite times a command without history and then with sqlite history
func runBenchmarkSuite(config BenchmarkConfig, project, projectDir, command, historyFile string) BenchmarkResult {
	fmt.Printf("Running %s on %s\n", command, project)

	runPhase := func(env []string, numRuns int, phaseName string) (coldTime float64, avgTime string) {
		fmt.Printf("  %s phase (%d runs)\n", phaseName, numRuns)
		cold, times := runBenchmark(config, projectDir, command, env, numRuns)
		if len(times) == 0 {
			return cold, "TIMEOUT"
		}
		var sum float64
		for _, t := range times {
			sum += t
		}
		return cold, fmt.Sprintf("%.3fs", sum/float64(len(times)))
	}

	_, noHistoryAvg := runPhase([]string{"COVAGG_HISTORY_BACKEND=none"}, config.NoHistoryRuns, "No-history")
	coldTime, warmAvg := runPhase([]string{
		"COVAGG_HISTORY_BACKEND=sqlite",
		"COVAGG_HISTORY_DB_CONNECT=" + historyFile,
	}, config.HistoryRuns, "History")

	coldTimeStr := "TIMEOUT"
	if coldTime > 0 {
		coldTimeStr = fmt.Sprintf("%.3fs", coldTime)
	}

	fmt.Printf("  No-history average: %s, Cold time: %s, Warm average: %s\n", noHistoryAvg, coldTimeStr, warmAvg)

	return BenchmarkResult{
		Project:       project,
		Command:       command,
		NoHistoryTime: noHistoryAvg,
		ColdTime:      coldTimeStr,
		WarmTime:      warmAvg,
	}
}

// runBenchmark executes a covagg command multiple times and returns cold time and warm times
func runBenchmark(config BenchmarkConfig, projectDir, command string, env []string, numRuns int) (coldTime float64, warmTimes []float64) {
	args := append([]string{}, config.CommandsToTime[command]...)
	args = append(args, "--workers", fmt.Sprint(config.Workers))

	var times []float64
	for range numRuns {
		start := time.Now()

		cmd := exec.Command("covagg", args...)
		cmd.Dir = projectDir
		cmd.Env = append(os.Environ(), env...)

		done := make(chan error, 1)
		go func() {
			_, err := cmd.CombinedOutput()
			done <- err
		}()

		select {
		case err := <-done:
			if err == nil {
				times = append(times, time.Since(start).Seconds())
			}
		case <-time.After(config.Timeout):
			_ = cmd.Process.Kill()
		}
	}

	if len(times) > 0 {
		coldTime = times[0]
		warmTimes = times[1:]
	}
	return
}

// saveResults writes benchmark results to a timestamped CSV file
func saveResults(results []BenchmarkResult) error {
	timestamp := time.Now().Format("20060102_150405")
	filename := filepath.Join(os.TempDir(), fmt.Sprintf("covagg_benchmark_%s.csv", timestamp))

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			fmt.Printf("Warning: failed to close file %s: %v\n", filename, closeErr)
		}
	}()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"project", "cmd", "no_history_avg", "cold_time", "warm_avg"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, result := range results {
		if err := writer.Write([]string{result.Project, result.Command, result.NoHistoryTime, result.ColdTime, result.WarmTime}); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	fmt.Printf("Results saved to %s\n", filename)
	return nil
}

// printSummary displays the final benchmark results summary
func printSummary(results []BenchmarkResult) {
	fmt.Printf("Benchmark complete\n")
	for _, command := range []string{"modules", "report", "check"} {
		fmt.Printf("%s:\n", command)
		for _, result := range results {
			if result.Command == command {
				fmt.Printf("  %-32s: No-history: %s, Cold: %s, Warm: %s\n", result.Project, result.NoHistoryTime, result.ColdTime, result.WarmTime)
			}
		}
	}
}
