// Command gametest runs every story file in a directory through the
// executor headlessly and reports which ones load, decode their first
// screen and reach an input wait without panicking or hitting a fatal
// runtime error. It exists for regression-testing the interpreter against
// a corpus of real story files without a terminal attached.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/gozork/zvm/internal/host"
	"github.com/gozork/zvm/internal/vm"
)

// TestResult captures the outcome of running a single game.
type TestResult struct {
	Filename     string   `json:"filename"`
	Version      uint8    `json:"version"`
	Success      bool     `json:"success"`
	PanicMessage string   `json:"panic_message,omitempty"`
	StackTrace   string   `json:"stack_trace,omitempty"`
	FirstScreen  []string `json:"first_screen,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`
}

// recordingScreen is a host.Screen that just appends everything printed
// to the lower window, which is all a headless conformance pass needs.
type recordingScreen struct {
	lines []string
	cur   strings.Builder
}

func (s *recordingScreen) Print(_ host.Window, text string) {
	for _, r := range text {
		if r == '\n' {
			s.lines = append(s.lines, s.cur.String())
			s.cur.Reset()
			continue
		}
		s.cur.WriteRune(r)
	}
}
func (s *recordingScreen) flush() {
	if s.cur.Len() > 0 {
		s.lines = append(s.lines, s.cur.String())
		s.cur.Reset()
	}
}
func (*recordingScreen) SplitWindow(int)                             {}
func (*recordingScreen) SetWindow(host.Window)                       {}
func (*recordingScreen) SetCursor(host.Window, int, int)             {}
func (*recordingScreen) EraseWindow(host.Window)                     {}
func (*recordingScreen) EraseLine(host.Window)                       {}
func (*recordingScreen) SetTextStyle(host.Window, host.TextStyle)    {}
func (*recordingScreen) SetColor(host.Window, host.Color, host.Color) {}
func (*recordingScreen) SetStatusBar(string, string)                 {}
func (*recordingScreen) Ring()                                       {}

// haltingInput never actually supplies a line; reaching an input request
// is itself the success condition for this tool, so it just leaves the
// machine suspended rather than resuming it.
type haltingInput struct{}

func (haltingInput) RequestLine(host.InputRequest) {}
func (haltingInput) RequestChar(host.InputRequest) {}

// nopStorage refuses every save/restore, which is fine for a first-screen
// smoke test that never reaches them.
type nopStorage struct{}

func (nopStorage) Save(string, host.Snapshot) error      { return fmt.Errorf("save unsupported") }
func (nopStorage) Restore(string) (host.Snapshot, error) { return nil, fmt.Errorf("restore unsupported") }

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
	if _, err := os.Stat(storiesDir); os.IsNotExist(err) {
		fmt.Printf("Stories directory not found: %s\n", storiesDir)
		os.Exit(1)
	}

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

		status := "pass"
		if !result.Success {
			status = "FAIL"
		}
		fmt.Printf("[%d/%d] %s %s\n", i+1, len(games), status, filename)
		if !result.Success && result.ErrorMessage != "" {
			fmt.Printf("        Error: %s\n", result.ErrorMessage)
		}
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		fmt.Printf("Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	resultsPath := filepath.Join(outputDir, "test_results.json")
	resultsJSON, _ := json.MarshalIndent(results, "", "  ")
	if err := os.WriteFile(resultsPath, resultsJSON, 0644); err != nil {
		fmt.Printf("Failed to write results: %v\n", err)
	} else {
		fmt.Printf("\nResults written to %s\n", resultsPath)
	}

	passed, failed := 0, 0
	for _, r := range results {
		if r.Success {
			passed++
		} else {
			failed++
		}
	}
	fmt.Printf("\n=== SUMMARY ===\nPassed: %d\nFailed: %d\nTotal: %d\n", passed, failed, len(results))

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

func runGameTest(gamePath string) (result TestResult) {
	filename := filepath.Base(gamePath)
	result.Filename = filename

	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.PanicMessage = fmt.Sprintf("%v", r)
			result.StackTrace = string(debug.Stack())
		}
	}()

	storyBytes, err := os.ReadFile(gamePath)
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("failed to read file: %v", err)
		return
	}
	if len(storyBytes) < 64 {
		result.ErrorMessage = "file too small to be a valid Z-machine file"
		return
	}
	result.Version = storyBytes[0]

	screen := &recordingScreen{}
	m, err := vm.New(storyBytes, vm.Config{}, screen, haltingInput{}, nopStorage{}, host.NopLogger{})
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("failed to load story: %v", err)
		return
	}

	if rerr := m.Run(); rerr != nil {
		result.ErrorMessage = rerr.Error()
		return
	}

	screen.flush()
	result.Success = true
	result.FirstScreen = screen.lines
	return
}
