package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/ifzcore/goz/zmachine"
)

// maxSupportedVersion mirrors this core's non-goal: versions 6-8
// introduce a graphics/window model this interpreter doesn't implement.
const maxSupportedVersion = 5

// TestResult captures the outcome of running a single game
type TestResult struct {
	Filename       string         `json:"filename"`
	Version        uint8          `json:"version"`
	Success        bool           `json:"success"`
	Skipped        bool           `json:"skipped,omitempty"`
	PanicMessage   string         `json:"panic_message,omitempty"`
	StackTrace     string         `json:"stack_trace,omitempty"`
	FirstScreen    []string       `json:"first_screen,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	OpcodeCoverage map[string]int `json:"opcode_coverage,omitempty"`
}

func main() {
	storiesDir := flag.String("stories", "stories", "Directory containing Z-machine story files")
	outputDir := flag.String("output", "testdata", "Directory to write results to")
	singleGame := flag.String("game", "", "Test a single game file instead of all games")
	flag.Parse()

	if *singleGame != "" {
		runSingleGame(*singleGame)
		return
	}

	runAllGames(*storiesDir, *outputDir)
}

func runAllGames(storiesDir, outputDir string) {
	// Check if stories directory exists
	if _, err := os.Stat(storiesDir); os.IsNotExist(err) {
		fmt.Printf("Stories directory not found: %s\n", storiesDir)
		fmt.Println("Run 'go run ./cmd/scraper' first to download games.")
		os.Exit(1)
	}

	// Find all game files
	entries, err := os.ReadDir(storiesDir)
	if err != nil {
		fmt.Printf("Failed to read stories directory: %v\n", err)
		os.Exit(1)
	}

	var games []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".z1") || strings.HasSuffix(name, ".z2") ||
			strings.HasSuffix(name, ".z3") || strings.HasSuffix(name, ".z4") ||
			strings.HasSuffix(name, ".z5") || strings.HasSuffix(name, ".z6") ||
			strings.HasSuffix(name, ".z7") || strings.HasSuffix(name, ".z8") {
			games = append(games, filepath.Join(storiesDir, name))
		}
	}

	if len(games) == 0 {
		fmt.Printf("No game files found in %s\n", storiesDir)
		os.Exit(1)
	}

	fmt.Printf("Found %d games to test\n", len(games))

	var results []TestResult

	for i, gamePath := range games {
		filename := filepath.Base(gamePath)
		result := runGameTest(gamePath)
		results = append(results, result)

		status := "✓"
		if result.Skipped {
			status = "-"
		} else if !result.Success {
			status = "✗"
		}
		fmt.Printf("[%d/%d] %s %s\n", i+1, len(games), status, filename)
		if result.Skipped {
			fmt.Printf("        Skipped: %s\n", result.ErrorMessage)
		} else if !result.Success && result.ErrorMessage != "" {
			fmt.Printf("        Error: %s\n", result.ErrorMessage)
		}
	}

	// Ensure output directory exists
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		fmt.Printf("Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	// Write results to JSON file
	resultsPath := filepath.Join(outputDir, "test_results.json")
	resultsJSON, _ := json.MarshalIndent(results, "", "  ")
	if err := os.WriteFile(resultsPath, resultsJSON, 0644); err != nil {
		fmt.Printf("Failed to write results: %v\n", err)
	} else {
		fmt.Printf("\nResults written to %s\n", resultsPath)
	}

	// Write summary
	passed := 0
	failed := 0
	skipped := 0
	coverage := make(map[string]int)
	for _, r := range results {
		switch {
		case r.Skipped:
			skipped++
		case r.Success:
			passed++
			for opcode, count := range r.OpcodeCoverage {
				coverage[opcode] += count
			}
		default:
			failed++
		}
	}
	fmt.Printf("\n=== SUMMARY ===\nPassed: %d\nFailed: %d\nSkipped: %d\nTotal: %d\nOpcodes covered: %d\n",
		passed, failed, skipped, len(results), len(coverage))

	// Write screenshots to a separate file
	screenshotsPath := filepath.Join(outputDir, "screenshots.txt")
	var screenshots strings.Builder
	for _, r := range results {
		fmt.Fprintf(&screenshots, "=== %s (v%d) ===\n", r.Filename, r.Version)
		if r.Success {
			for _, line := range r.FirstScreen {
				screenshots.WriteString(line + "\n")
			}
		} else {
			fmt.Fprintf(&screenshots, "ERROR: %s\n", r.ErrorMessage)
			if r.PanicMessage != "" {
				fmt.Fprintf(&screenshots, "PANIC: %s\n", r.PanicMessage)
			}
		}
		screenshots.WriteString("\n")
	}
	os.WriteFile(screenshotsPath, []byte(screenshots.String()), 0644)
}

func runSingleGame(gamePath string) {
	if _, err := os.Stat(gamePath); os.IsNotExist(err) {
		fmt.Printf("Game file not found: %s\n", gamePath)
		os.Exit(1)
	}

	result := runGameTest(gamePath)

	fmt.Printf("Game: %s\n", result.Filename)
	fmt.Printf("Version: %d\n", result.Version)
	fmt.Printf("Success: %v\n", result.Success)

	if result.PanicMessage != "" {
		fmt.Printf("Panic: %s\n", result.PanicMessage)
		fmt.Printf("Stack: %s\n", result.StackTrace)
	}

	if result.ErrorMessage != "" {
		fmt.Printf("Error: %s\n", result.ErrorMessage)
	}

	fmt.Printf("First Screen:\n%s\n", strings.Join(result.FirstScreen, "\n"))
}

// maxInstructions bounds a single run: a story that never reaches an
// input prompt (an infinite loop in its own logic, or one this core
// mishandles) would otherwise hang the harness indefinitely.
const maxInstructions = 200_000

func runGameTest(gamePath string) (result TestResult) {
	filename := filepath.Base(gamePath)
	result.Filename = filename

	// Recover from panics
	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.PanicMessage = fmt.Sprintf("%v", r)
			result.StackTrace = string(debug.Stack())
		}
	}()

	// Load the game file
	storyBytes, err := os.ReadFile(gamePath)
	if err != nil {
		result.Success = false
		result.ErrorMessage = fmt.Sprintf("Failed to read file: %v", err)
		return
	}

	// Basic validation - check minimum size for header
	if len(storyBytes) < 64 {
		result.Success = false
		result.ErrorMessage = "File too small to be a valid Z-machine file"
		return
	}

	result.Version = storyBytes[0]
	if result.Version < 1 || result.Version > maxSupportedVersion {
		result.Skipped = true
		result.ErrorMessage = fmt.Sprintf("version %d unsupported (this core covers versions 1-%d)", result.Version, maxSupportedVersion)
		return
	}

	// Create channels. Nothing in this harness ever answers a save or
	// restore prompt - a story that issues one just sees a failure
	// response, same as a real interpreter with no persistent storage.
	outputChannel := make(chan any, 4096)
	inputChannel := make(chan zmachine.InputResponse)
	saveRestoreChannel := make(chan zmachine.SaveRestoreResponse)

	z := zmachine.LoadRom(storyBytes, inputChannel, saveRestoreChannel, outputChannel)

	var stepFault *zmachine.Fault
	done := make(chan bool, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				stepFault = &zmachine.Fault{Message: fmt.Sprintf("panic in Step: %v", r)}
			}
			done <- true
		}()
		for i := 0; i < maxInstructions; i++ {
			cont, fault := z.Step()
			if fault != nil {
				stepFault = fault
				return
			}
			if !cont {
				return
			}
		}
	}()

	var screenOutput []string
	timeout := time.After(30 * time.Second)

	collecting := true
	for collecting {
		select {
		case msg := <-outputChannel:
			switch v := msg.(type) {
			case string:
				screenOutput = append(screenOutput, strings.Split(v, "\n")...)
			case zmachine.InputRequest:
				inputChannel <- zmachine.InputResponse{Text: "quit", TerminatingKey: '\n'}
			case zmachine.StateChangeRequest:
				if v == zmachine.WaitForCharacter {
					inputChannel <- zmachine.InputResponse{TerminatingKey: '\n'}
				}
			case zmachine.Save:
				saveRestoreChannel <- zmachine.SaveResponse{Success: false}
			case zmachine.Restore:
				saveRestoreChannel <- zmachine.RestoreResponse{Success: false}
			}
		case <-done:
			collecting = false
		case <-timeout:
			result.ErrorMessage = "timed out waiting for the story to reach an input prompt or quit"
			result.FirstScreen = screenOutput
			return
		}
	}

	// The step goroutine only signals done after every send to
	// outputChannel is already queued, but select doesn't prefer done
	// over a simultaneously-ready message - drain what's left.
drainRemaining:
	for {
		select {
		case msg := <-outputChannel:
			if text, ok := msg.(string); ok {
				screenOutput = append(screenOutput, strings.Split(text, "\n")...)
			}
		default:
			break drainRemaining
		}
	}

	if stepFault != nil {
		result.ErrorMessage = stepFault.Message
		result.FirstScreen = screenOutput
		return
	}

	result.Success = true
	result.FirstScreen = screenOutput
	result.OpcodeCoverage = z.OpcodeCoverage()
	return
}
