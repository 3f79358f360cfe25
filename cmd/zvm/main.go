// Command zvm is the terminal front-end for the interpreter: it wires a
// bubbletea screen/input model to internal/vm.Machine, backed by a
// filesystem-based internal/storage/file.Store for save games.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v2"

	"github.com/gozork/zvm/internal/host"
	"github.com/gozork/zvm/internal/storage/file"
	"github.com/gozork/zvm/internal/vm"
)

// stderrLogger is the default host.Logger for the terminal front-end:
// diagnostics go to stderr so they don't corrupt the bubbletea-rendered
// screen on stdout.
type stderrLogger struct {
	min host.LogLevel
}

func (l stderrLogger) Log(level host.LogLevel, format string, args ...any) {
	if level < l.min {
		return
	}
	fmt.Fprintf(os.Stderr, "[%s] %s\n", levelName(level), fmt.Sprintf(format, args...))
}

func levelName(l host.LogLevel) string {
	switch l {
	case host.LevelDebug:
		return "debug"
	case host.LevelInfo:
		return "info"
	case host.LevelWarn:
		return "warn"
	default:
		return "error"
	}
}

func parseLevel(name string) host.LogLevel {
	switch strings.ToLower(name) {
	case "debug":
		return host.LevelDebug
	case "warn", "warning":
		return host.LevelWarn
	case "error":
		return host.LevelError
	default:
		return host.LevelInfo
	}
}

func main() {
	app := &cli.App{
		Name:  "zvm",
		Usage: "a Z-Machine interpreter for interactive fiction story files",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "story", Usage: "path to a .z1-.z8 story file; omit to browse the current directory"},
			&cli.StringFlag{Name: "save-dir", Value: ".", Usage: "directory save games are read from and written to"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn, or error"},
			&cli.IntFlag{Name: "rows", Value: 25, Usage: "terminal rows to report to the story"},
			&cli.IntFlag{Name: "cols", Value: 80, Usage: "terminal columns to report to the story"},
			&cli.StringFlag{Name: "config", Usage: "path to a TOML config file"},
			&cli.IntFlag{Name: "undo-capacity", Value: 10, Usage: "number of save_undo snapshots retained"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	fcfg, err := loadConfig(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Errorf("zvm: reading config: %w", err), 3)
	}

	rows, cols := c.Int("rows"), c.Int("cols")
	if fcfg.Screen.Rows != 0 && !c.IsSet("rows") {
		rows = fcfg.Screen.Rows
	}
	if fcfg.Screen.Cols != 0 && !c.IsSet("cols") {
		cols = fcfg.Screen.Cols
	}
	undoCapacity := c.Int("undo-capacity")
	if fcfg.Undo.Capacity != 0 && !c.IsSet("undo-capacity") {
		undoCapacity = fcfg.Undo.Capacity
	}
	strictWrites := fcfg.Memory.StrictWrites

	cfg := vm.Config{
		StrictWrites: strictWrites,
		UndoCapacity: undoCapacity,
		Caps: host.Capabilities{
			Colors: true, Bold: true, Italic: true, SplitScreen: true,
			Rows: rows, Cols: cols,
		},
		Seed: time.Now().UnixNano(),
	}

	logger := stderrLogger{min: parseLevel(c.String("log-level"))}
	storage, err := file.New(c.String("save-dir"))
	if err != nil {
		return cli.Exit(fmt.Errorf("zvm: %w", err), 3)
	}

	var model tea.Model
	if storyPath := c.String("story"); storyPath != "" {
		data, err := os.ReadFile(storyPath)
		if err != nil {
			return cli.Exit(fmt.Errorf("zvm: reading story: %w", err), 3)
		}
		m, err := newStoryModel(data, storyPath, cfg, storage, logger)
		if err != nil {
			return cli.Exit(fmt.Errorf("zvm: loading story: %w", err), 2)
		}
		model = m
	} else {
		model = newPickerModel(".", cfg, storage, logger)
	}

	program := tea.NewProgram(model, tea.WithAltScreen())
	final, err := program.Run()
	if err != nil {
		return err
	}
	if sm, ok := final.(storyModel); ok && sm.runtimeErr != "" {
		return cli.Exit("zvm: "+sm.runtimeErr, 1)
	}
	return nil
}
