// Package host defines the capability contracts the executor talks to:
// Screen, Input, Storage and Logger. These are interfaces, not a class
// hierarchy, because the Z-Machine's screen model, input source and save
// mechanism vary independently by front-end (a terminal UI, a headless
// conformance runner, a future graphical client) and the core should never
// assume which one it is wired to.
package host

import "time"

// TextStyle mirrors the Z-Machine's four style bits (set_text_style).
type TextStyle uint8

const (
	StyleRoman      TextStyle = 0
	StyleReverse    TextStyle = 1 << 0
	StyleBold       TextStyle = 1 << 1
	StyleItalic     TextStyle = 1 << 2
	StyleFixedPitch TextStyle = 1 << 3
)

// Color is an RGB true-colour value; named Z-Machine colours (1-12) are
// translated to one of these by the caller before reaching Screen.
type Color struct {
	R, G, B uint8
}

// Window identifies the Z-Machine's lower (0) or upper (1) window, or -3
// for the current window (split_window's own selector semantics live in
// the executor, not here).
type Window int

const (
	LowerWindow Window = 0
	UpperWindow Window = 1
)

// Screen is the output side of the host contract: everything the Z-Machine
// can do to the display short of reading it back.
type Screen interface {
	Print(window Window, text string)
	SplitWindow(upperHeight int)
	SetWindow(window Window)
	SetCursor(window Window, row, col int)
	EraseWindow(window Window)
	EraseLine(window Window)
	SetTextStyle(window Window, style TextStyle)
	SetColor(window Window, fg, bg Color)
	SetStatusBar(left, right string)
	Ring()
}

// InputRequest describes what kind of input the executor is waiting for:
// a full line (sread) or a single keystroke (read_char), with an optional
// timeout after which the host must deliver a Timeout.
type InputRequest struct {
	Line     bool
	Timeout  time.Duration
	Preloaded string
}

// Input is the input side of the host contract. RequestLine/RequestChar
// are non-blocking from the executor's point of view: they describe what
// is being asked for, and the host delivers the answer later by resuming
// the executor (see vm.Machine.Resume), which is what makes execution
// suspendable instead of exception-based.
type Input interface {
	RequestLine(req InputRequest)
	RequestChar(req InputRequest)
}

// Snapshot is an opaque, fully self-contained machine state as produced by
// vm's save/undo machinery; Storage never inspects its bytes.
type Snapshot []byte

// Storage is the persistence side of the host contract: saving/restoring
// a named snapshot (the `save`/`restore` opcodes) independent of the
// in-memory undo ring the executor keeps for `save_undo`/`restore_undo`.
type Storage interface {
	Save(name string, snap Snapshot) error
	Restore(name string) (Snapshot, error)
}

// LogLevel orders Logger's severities from least to most urgent.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger receives non-fatal diagnostics. The core never assumes a sink:
// tests pass a no-op Logger, cmd/zvm wires a stderr-backed one.
type Logger interface {
	Log(level LogLevel, format string, args ...any)
}

// NopLogger discards everything; used by tests and anywhere a caller has
// no interest in diagnostics.
type NopLogger struct{}

func (NopLogger) Log(LogLevel, string, ...any) {}

// Capabilities describes what this host can actually do, so the executor
// can answer opcodes like `verify`'s cousin capability checks and header
// renegotiation (§4.11) without hard-coding a single front-end's feature
// set.
type Capabilities struct {
	Colors     bool
	Bold       bool
	Italic     bool
	SplitScreen bool
	TimedInput bool
	Rows, Cols int
}
