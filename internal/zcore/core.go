// Package zcore implements the Z-Machine memory map: header parsing,
// dynamic/static/high region bookkeeping and packed-address translation.
package zcore

import (
	"encoding/binary"
	"fmt"
)

// Config controls how permissively a Memory tolerates a story that
// misbehaves at runtime. It is read from the host's TOML config file or
// CLI flags and never touched by the core itself.
type Config struct {
	// StrictWrites turns a static-region write into a fatal error; when it
	// is off such writes are allowed and only counted (StaticWriteWarnings).
	// Writes into high memory are fatal either way.
	StrictWrites bool
}

// Memory is the Z-Machine's addressable story image plus the parsed header
// fields games consult directly (screen dimensions, table bases, capability
// flags). Everything below StaticMemoryBase is dynamic and freely
// read/writable; everything from StaticMemoryBase up is read-only to the
// story except through the header-negotiation fields the interpreter itself
// owns.
type Memory struct {
	bytes  []uint8
	config Config

	Version                          uint8
	FlagByte1                        uint8
	StatusBarTimeBased               bool
	ReleaseNumber                    uint16
	PagedMemoryBase                  uint16
	FirstInstruction                 uint16
	DictionaryBase                   uint16
	ObjectTableBase                  uint16
	GlobalVariableBase               uint16
	StaticMemoryBase                 uint16
	AbbreviationTableBase            uint16
	FileChecksum                     uint16
	InterpreterNumber                uint8
	InterpreterVersion               uint8
	ScreenHeightLines                uint8
	ScreenWidthChars                 uint8
	ScreenWidthUnits                 uint16
	ScreenHeightUnits                uint16
	FontHeight                       uint8
	FontWidth                        uint8
	RoutinesOffset                   uint16
	StringOffset                     uint16
	DefaultBackgroundColorNumber     uint8
	DefaultForegroundColorNumber     uint8
	TerminatingCharTableBase         uint16
	OutputStream3Width               uint16
	StandardRevisionNumber           uint16
	AlternativeCharSetBaseAddress    uint16
	ExtensionTableBaseAddress        uint16
	PlayerLoginName                  []uint8
	UnicodeExtensionTableBaseAddress uint16

	staticWriteWarnings uint64
}

const headerSize = 0x40

// Load parses a story image's header and returns a ready Memory, or a
// malformed-story error if the image is too small to hold a header or
// declares a version this interpreter does not understand.
func Load(storyBytes []uint8, cfg Config) (*Memory, error) {
	if len(storyBytes) < headerSize {
		return nil, fmt.Errorf("zcore: story image is %d bytes, shorter than the %d byte header", len(storyBytes), headerSize)
	}

	version := storyBytes[0x00]
	if version < 1 || version > 8 {
		return nil, fmt.Errorf("zcore: unsupported story version %d", version)
	}

	bytes := make([]uint8, len(storyBytes))
	copy(bytes, storyBytes)

	m := &Memory{bytes: bytes, config: cfg}
	m.negotiateHeader()
	m.readHeader()

	if int(m.StaticMemoryBase) > len(bytes) {
		return nil, fmt.Errorf("zcore: static memory base 0x%04x beyond end of image (%d bytes)", m.StaticMemoryBase, len(bytes))
	}

	return m, nil
}

// negotiateHeader writes the interpreter's capability flags and display
// geometry into the header, as required at load time and again after a
// restart or restore (§4.11). It never touches bytes the game has already
// written at runtime (e.g. the flags the game sets for itself).
func (m *Memory) negotiateHeader() {
	b := m.bytes

	b[0x1e] = 0x06 // Interpreter number: IBM PC, the most neutral default.
	b[0x1f] = 0x01 // Interpreter version.

	b[0x20] = 25
	b[0x21] = 80
	b[0x22] = 0
	b[0x23] = 80
	b[0x24] = 0
	b[0x25] = 25
	b[0x26] = 1
	b[0x27] = 1

	b[0x32] = 0x01
	b[0x33] = 0x02

	if b[0] <= 3 {
		b[1] |= 0b0010_0000 // split screen available
	} else {
		b[1] |= 0b0010_1101 // colours, bold, italic, split screen
	}
}

// Renegotiate re-applies header capability flags and geometry after a
// restart or restore brings in a fresh or rolled-back copy of dynamic
// memory (§4.11); the interpreter's own idea of the world never survives a
// restore otherwise, since restore overwrites the header along with the
// rest of dynamic memory. A zero rows or cols keeps the 25x80 default.
func (m *Memory) Renegotiate(rows, cols uint8) {
	m.negotiateHeader()
	if rows != 0 {
		m.bytes[0x20] = rows
		m.bytes[0x25] = rows
	}
	if cols != 0 {
		m.bytes[0x21] = cols
		m.bytes[0x23] = cols
	}
	m.readHeader()
}

func (m *Memory) readHeader() {
	b := m.bytes

	extensionTableBaseAddress := binary.BigEndian.Uint16(b[0x36:0x38])
	unicodeExtensionTableBaseAddress := uint16(0)
	if extensionTableBaseAddress != 0 && int(extensionTableBaseAddress)+8 <= len(b) {
		unicodeExtensionTableBaseAddress = binary.BigEndian.Uint16(b[extensionTableBaseAddress+6 : extensionTableBaseAddress+8])
	}

	m.Version = b[0x00]
	m.FlagByte1 = b[0x01]
	m.StatusBarTimeBased = b[0x01]&0b0000_0010 != 0
	m.ReleaseNumber = binary.BigEndian.Uint16(b[0x02:0x04])
	m.PagedMemoryBase = binary.BigEndian.Uint16(b[0x04:0x06])
	m.FirstInstruction = binary.BigEndian.Uint16(b[0x06:0x08])
	m.DictionaryBase = binary.BigEndian.Uint16(b[0x08:0x0a])
	m.ObjectTableBase = binary.BigEndian.Uint16(b[0x0a:0x0c])
	m.GlobalVariableBase = binary.BigEndian.Uint16(b[0x0c:0x0e])
	m.StaticMemoryBase = binary.BigEndian.Uint16(b[0x0e:0x10])
	m.AbbreviationTableBase = binary.BigEndian.Uint16(b[0x18:0x1a])
	m.FileChecksum = binary.BigEndian.Uint16(b[0x1c:0x1e])
	m.InterpreterNumber = b[0x1e]
	m.InterpreterVersion = b[0x1f]
	m.ScreenHeightLines = b[0x20]
	m.ScreenWidthChars = b[0x21]
	m.ScreenWidthUnits = binary.BigEndian.Uint16(b[0x22:0x24])
	m.ScreenHeightUnits = binary.BigEndian.Uint16(b[0x24:0x26])
	m.FontHeight = b[0x26]
	m.FontWidth = b[0x27]
	m.RoutinesOffset = binary.BigEndian.Uint16(b[0x28:0x2a])
	m.StringOffset = binary.BigEndian.Uint16(b[0x2a:0x2c])
	m.DefaultBackgroundColorNumber = b[0x2c]
	m.DefaultForegroundColorNumber = b[0x2d]
	m.TerminatingCharTableBase = binary.BigEndian.Uint16(b[0x2e:0x30])
	m.OutputStream3Width = binary.BigEndian.Uint16(b[0x30:0x32])
	m.StandardRevisionNumber = binary.BigEndian.Uint16(b[0x32:0x34])
	m.AlternativeCharSetBaseAddress = binary.BigEndian.Uint16(b[0x34:0x36])
	m.ExtensionTableBaseAddress = extensionTableBaseAddress
	m.PlayerLoginName = b[0x38:0x40]
	m.UnicodeExtensionTableBaseAddress = unicodeExtensionTableBaseAddress
}

// FileLength returns the story's declared length in bytes, per the
// version-dependent multiplier applied to the header's length word.
func (m *Memory) FileLength() uint32 {
	var divisor uint32
	switch {
	case m.Version <= 3:
		divisor = 2
	case m.Version <= 5:
		divisor = 4
	default:
		divisor = 8
	}
	return uint32(binary.BigEndian.Uint16(m.bytes[0x1a:0x1c])) * divisor
}

// Checksum sums every byte from 0x40 to FileLength (mod 65536), the value
// the `verify` opcode compares against the header's declared checksum.
func (m *Memory) Checksum() uint16 {
	length := int(m.FileLength())
	if length == 0 || length > len(m.bytes) {
		length = len(m.bytes)
	}
	var sum uint32
	for i := headerSize; i < length; i++ {
		sum += uint32(m.bytes[i])
	}
	return uint16(sum)
}

func (m *Memory) SetDefaultBackgroundColorNumber(color uint8) {
	m.bytes[0x2c] = color
	m.DefaultBackgroundColorNumber = color
}

func (m *Memory) SetDefaultForegroundColorNumber(color uint8) {
	m.bytes[0x2d] = color
	m.DefaultForegroundColorNumber = color
}

func (m *Memory) ReadByte(address uint32) uint8 {
	return m.bytes[address]
}

func (m *Memory) ReadWord(address uint32) uint16 {
	return binary.BigEndian.Uint16(m.bytes[address : address+2])
}

func (m *Memory) ReadLong(address uint32) uint64 {
	return binary.BigEndian.Uint64(m.bytes[address : address+8])
}

func (m *Memory) ReadSlice(start, end uint32) []uint8 {
	return m.bytes[start:end]
}

// IsDynamic reports whether address falls in the writable region of the
// story (below StaticMemoryBase).
func (m *Memory) IsDynamic(address uint32) bool {
	return address < uint32(m.StaticMemoryBase)
}

// IsHigh reports whether address falls in high memory (at or above the
// header's high-memory base), which holds packed routine/string targets and
// is never writable regardless of the static-write policy.
func (m *Memory) IsHigh(address uint32) bool {
	return address >= uint32(m.PagedMemoryBase)
}

// StaticWriteWarnings returns the number of writes to static memory that
// have been allowed through (permissive mode) since load.
func (m *Memory) StaticWriteWarnings() uint64 {
	return m.staticWriteWarnings
}

// checkWrite enforces the region-write policy from §4.1/§7: a write into
// high memory is always fatal; a write into static memory is warn-and-allow
// by default and fatal only when StrictWrites is set (some real stories
// write near the static boundary, so permissive is the default).
func (m *Memory) checkWrite(address uint32) error {
	if m.IsDynamic(address) {
		return nil
	}
	if m.IsHigh(address) {
		return fmt.Errorf("zcore: write to high memory address 0x%04x", address)
	}
	m.staticWriteWarnings++
	if m.config.StrictWrites {
		return fmt.Errorf("zcore: write to static memory address 0x%04x", address)
	}
	return nil
}

func (m *Memory) WriteByte(address uint32, value uint8) error {
	if err := m.checkWrite(address); err != nil {
		return err
	}
	m.bytes[address] = value
	return nil
}

func (m *Memory) WriteWord(address uint32, value uint16) error {
	if err := m.checkWrite(address); err != nil {
		return err
	}
	binary.BigEndian.PutUint16(m.bytes[address:address+2], value)
	return nil
}

func (m *Memory) MemoryLength() uint32 {
	return uint32(len(m.bytes))
}

// PackedAddress unpacks a routine or string packed address per §3.1. V6/V7
// stories keep separate routine and string offsets that must be added after
// the version-dependent scale factor; earlier and later versions scale
// alone.
func (m *Memory) PackedAddress(packed uint16, isString bool) uint32 {
	switch {
	case m.Version <= 3:
		return uint32(packed) * 2
	case m.Version <= 5:
		return uint32(packed) * 4
	case m.Version <= 7:
		if isString {
			return uint32(packed)*4 + uint32(m.StringOffset)*8
		}
		return uint32(packed)*4 + uint32(m.RoutinesOffset)*8
	default: // 8
		return uint32(packed) * 8
	}
}

// packedDivisor is the scale factor PackedAddress applies before adding any
// v6/v7 routine/string offset; a valid packed routine target must also be a
// multiple of it (§3.1, §4.1 check_alignment).
func (m *Memory) packedDivisor() uint32 {
	switch {
	case m.Version <= 3:
		return 2
	case m.Version <= 7:
		return 4
	default:
		return 8
	}
}

// inHighMemory reports whether addr is both inside the image and in high
// memory, the region packed routine and string targets must resolve into.
func (m *Memory) inHighMemory(addr uint32) bool {
	return addr < m.MemoryLength() && m.IsHigh(addr)
}

// CheckAlignment reports whether addr is a valid packed-address target for
// this version's scale factor (§4.1).
func (m *Memory) CheckAlignment(addr uint32) bool {
	return addr%m.packedDivisor() == 0
}

// IsValidRoutine reports whether addr is a plausible routine start: in
// bounds, in high memory, and aligned per version.
func (m *Memory) IsValidRoutine(addr uint32) bool {
	return m.inHighMemory(addr) && m.CheckAlignment(addr)
}

// ValidateRoutineHeader reports whether addr looks like a well-formed
// routine header: a locals count of at most 15, with room in the image for
// the v1-4 default-value words that follow it.
func (m *Memory) ValidateRoutineHeader(addr uint32) bool {
	if addr >= m.MemoryLength() {
		return false
	}
	l := m.bytes[addr]
	if l > 15 {
		return false
	}
	if m.Version <= 4 {
		return addr+1+uint32(l)*2 <= m.MemoryLength()
	}
	return true
}

// UnpackRoutine turns a packed routine address into a validated byte
// address, or an error if it fails any of §3.1's routine-target checks
// (fatal at runtime per §7).
func (m *Memory) UnpackRoutine(packed uint16) (uint32, error) {
	addr := m.PackedAddress(packed, false)
	if !m.IsValidRoutine(addr) {
		return 0, fmt.Errorf("zcore: packed routine address 0x%05x is not a valid high-memory target", addr)
	}
	if !m.ValidateRoutineHeader(addr) {
		return 0, fmt.Errorf("zcore: malformed routine header at 0x%05x", addr)
	}
	return addr, nil
}

// UnpackString turns a packed string address into a validated byte address.
// Strings carry no alignment requirement beyond falling in high memory.
func (m *Memory) UnpackString(packed uint16) (uint32, error) {
	addr := m.PackedAddress(packed, true)
	if !m.inHighMemory(addr) {
		return 0, fmt.Errorf("zcore: packed string address 0x%05x is not a valid high-memory target", addr)
	}
	return addr, nil
}
