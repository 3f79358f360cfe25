package vm

import (
	"fmt"
	"strings"
	"testing"

	"github.com/gozork/zvm/internal/host"
)

// recordingScreen is a minimal host.Screen that only keeps the lower
// window's text and the most recent status bar, which is all these tests
// need to assert against.
type recordingScreen struct {
	lower                    strings.Builder
	statusLeft, statusRight string
}

func (s *recordingScreen) Print(window host.Window, text string) {
	if window == host.LowerWindow {
		s.lower.WriteString(text)
	}
}
func (s *recordingScreen) SplitWindow(int)                          {}
func (s *recordingScreen) SetWindow(host.Window)                    {}
func (s *recordingScreen) SetCursor(host.Window, int, int)          {}
func (s *recordingScreen) EraseWindow(host.Window)                  {}
func (s *recordingScreen) EraseLine(host.Window)                    {}
func (s *recordingScreen) SetTextStyle(host.Window, host.TextStyle) {}
func (s *recordingScreen) SetColor(host.Window, host.Color, host.Color) {}
func (s *recordingScreen) SetStatusBar(left, right string)          { s.statusLeft, s.statusRight = left, right }
func (s *recordingScreen) Ring()                                    {}

// recordingInput records what it was asked for; resuming the machine is up
// to the test itself.
type recordingInput struct {
	lastLineRequest, lastCharRequest bool
}

func (in *recordingInput) RequestLine(host.InputRequest) { in.lastLineRequest = true }
func (in *recordingInput) RequestChar(host.InputRequest) { in.lastCharRequest = true }

// memStorage is an in-memory host.Storage, standing in for the real
// filesystem-backed store the terminal front-end wires up.
type memStorage struct {
	saves map[string]host.Snapshot
}

func newMemStorage() *memStorage { return &memStorage{saves: map[string]host.Snapshot{}} }

func (s *memStorage) Save(name string, snap host.Snapshot) error {
	s.saves[name] = snap
	return nil
}

func (s *memStorage) Restore(name string) (host.Snapshot, error) {
	snap, ok := s.saves[name]
	if !ok {
		return nil, fmt.Errorf("no save named %q", name)
	}
	return snap, nil
}

// buildCallReturnStory assembles a tiny synthetic v3 story: a main routine
// that calls a subroutine returning 42, prints the result and quits. Byte
// offsets are chosen by hand against the Standard's instruction encoding
// rather than produced by an assembler, since the only inputs this
// interpreter ever sees are raw story bytes.
func buildCallReturnStory() []byte {
	img := make([]byte, 0x400)
	img[0x00] = 3 // version

	img[0x06], img[0x07] = 0x02, 0x10 // first instruction at 0x0210
	img[0x0c], img[0x0d] = 0x00, 0x40 // global variable table at 0x0040
	img[0x0e], img[0x0f] = 0x03, 0x00 // static memory base at 0x0300

	main := []byte{
		0xE0, 0x3F, 0x01, 0x28, 16, // call routine(packed 0x0128) -> store into global 0 (var 16)
		0xE6, 0xBF, 16, // print_num <global 0>
		0xBA, // quit
	}
	copy(img[0x210:], main)

	routine := []byte{
		0x00,       // 0 locals
		0x9B, 0x2A, // ret 42
	}
	copy(img[0x250:], routine) // packed address 0x250/2 = 0x0128

	return img
}

func TestMachineCallReturnAndPrintNum(t *testing.T) {
	img := buildCallReturnStory()
	screen := &recordingScreen{}
	m, err := New(img, Config{}, screen, &recordingInput{}, newMemStorage(), host.NopLogger{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if rerr := m.Run(); rerr != nil {
		t.Fatalf("Run: %v", rerr)
	}
	if m.State != Halted {
		t.Fatalf("State = %v, want Halted", m.State)
	}
	if got := screen.lower.String(); got != "42" {
		t.Errorf("lower window = %q, want %q", got, "42")
	}
}

func TestMachinePushPopUndo(t *testing.T) {
	img := buildCallReturnStory()
	m, err := New(img, Config{UndoCapacity: 2}, &recordingScreen{}, &recordingInput{}, newMemStorage(), host.NopLogger{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	global0 := uint32(m.Mem.GlobalVariableBase)
	if err := m.Mem.WriteWord(global0, 7); err != nil {
		t.Fatalf("WriteWord: %v", err)
	}
	m.pushUndo()
	if err := m.Mem.WriteWord(global0, 99); err != nil {
		t.Fatalf("WriteWord: %v", err)
	}

	if !m.popUndo() {
		t.Fatalf("popUndo reported no saved state")
	}
	if got := m.Mem.ReadWord(global0); got != 7 {
		t.Errorf("global 0 after restore_undo = %d, want 7", got)
	}
	if m.popUndo() {
		t.Errorf("popUndo should report false once the ring is empty")
	}
}

func TestMachineSnapshotRestoreRoundTrip(t *testing.T) {
	img := buildCallReturnStory()
	m, err := New(img, Config{}, &recordingScreen{}, &recordingInput{}, newMemStorage(), host.NopLogger{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	global0 := uint32(m.Mem.GlobalVariableBase)
	if err := m.Mem.WriteWord(global0, 123); err != nil {
		t.Fatalf("WriteWord: %v", err)
	}
	snap := m.Snapshot()

	if err := m.Mem.WriteWord(global0, 999); err != nil {
		t.Fatalf("WriteWord: %v", err)
	}

	if err := m.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := m.Mem.ReadWord(global0); got != 123 {
		t.Errorf("global 0 after restore = %d, want 123", got)
	}
	if m.State != Running {
		t.Errorf("State after restore = %v, want Running", m.State)
	}
}

func TestMachineSnapshotRestoreRejectsMismatchedStory(t *testing.T) {
	img1 := buildCallReturnStory()
	m1, err := New(img1, Config{}, &recordingScreen{}, &recordingInput{}, newMemStorage(), host.NopLogger{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	snap := m1.Snapshot()

	img2 := buildCallReturnStory()
	img2[0x0e], img2[0x0f] = 0x02, 0x00 // different static memory base
	m2, err := New(img2, Config{}, &recordingScreen{}, &recordingInput{}, newMemStorage(), host.NopLogger{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := m2.Restore(snap); err == nil {
		t.Fatalf("Restore should reject a snapshot from a different story")
	}
}

// buildSreadStory is a v3 story whose single instruction is sread into a
// buffer with room for 10 characters, followed by quit.
func buildSreadStory() []byte {
	img := make([]byte, 0x400)
	img[0x00] = 3 // version

	img[0x06], img[0x07] = 0x02, 0x10 // first instruction
	img[0x0c], img[0x0d] = 0x00, 0x40
	img[0x0e], img[0x0f] = 0x03, 0x00

	main := []byte{
		0xE4, 0x3F, 0x02, 0x90, // sread <text buffer @0x0290>
		0xBA, // quit
	}
	copy(img[0x210:], main)

	img[0x290] = 10 // max input length

	return img
}

func TestMachineSreadSuspendResume(t *testing.T) {
	img := buildSreadStory()
	input := &recordingInput{}
	m, err := New(img, Config{}, &recordingScreen{}, input, newMemStorage(), host.NopLogger{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if rerr := m.Run(); rerr != nil {
		t.Fatalf("Run: %v", rerr)
	}
	if m.State != WaitingForLine {
		t.Fatalf("State = %v, want WaitingForLine", m.State)
	}
	if !input.lastLineRequest {
		t.Errorf("sread did not ask the host for a line")
	}

	m.Resume("look", 0)
	if m.State != Running {
		t.Fatalf("State after Resume = %v, want Running", m.State)
	}

	got := string(m.Mem.ReadSlice(0x291, 0x291+4))
	if got != "look" {
		t.Errorf("text buffer = %q, want %q", got, "look")
	}
	if term := m.Mem.ReadByte(0x291 + 4); term != 0 {
		t.Errorf("text buffer terminator = %d, want 0", term)
	}

	if rerr := m.Run(); rerr != nil {
		t.Fatalf("Run after Resume: %v", rerr)
	}
	if m.State != Halted {
		t.Errorf("State = %v, want Halted", m.State)
	}
}
