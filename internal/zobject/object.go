// Package zobject implements the Z-Machine object tree: attribute flags,
// parent/sibling/child links and property tables, and tree-surgery
// operations (insert_obj/remove_obj) as pure functions of story memory.
package zobject

import (
	"fmt"

	"github.com/gozork/zvm/internal/zcore"
	"github.com/gozork/zvm/internal/zstring"
)

// entrySize and attributeBytes differ at version 4: earlier stories use a
// 9-byte object entry with 32 attribute flags and byte-sized tree links;
// version 4 and later use 14 bytes, 48 flags and word-sized links.
func entrySize(version uint8) uint32 {
	if version <= 3 {
		return 9
	}
	return 14
}

func attributeBytes(version uint8) uint32 {
	if version <= 3 {
		return 4
	}
	return 6
}

func defaultsTableWords(version uint8) uint32 {
	if version <= 3 {
		return 31
	}
	return 63
}

// objectAddress returns the byte address of object id's entry.
func objectAddress(mem *zcore.Memory, version uint8, objectTableBase uint32, id uint16) uint32 {
	base := objectTableBase + defaultsTableWords(version)*2
	return base + uint32(id-1)*entrySize(version)
}

// Object is a decoded view of one entry in the object tree.
type Object struct {
	Id         uint16
	Attributes uint64
	Parent     uint16
	Sibling    uint16
	Child      uint16
	PropsAddr  uint32
	ShortName  string

	version         uint8
	objectTableBase uint32
}

// Get reads and decodes object id. Object 0 is not a valid object (it means
// "no object" in parent/sibling/child fields) and reading it panics, since
// every opcode that surfaces an object id is expected to have already
// guarded against 0 per §4.3's invariant.
func Get(mem *zcore.Memory, version uint8, objectTableBase uint32, alphabets *zstring.Alphabets, abbreviationTableBase uint32, id uint16) Object {
	if id == 0 {
		panic(fmt.Sprintf("zobject: object 0 is not addressable (version %d)", version))
	}

	addr := objectAddress(mem, version, objectTableBase, id)
	nBytes := attributeBytes(version)

	var attrs uint64
	for i := uint32(0); i < nBytes; i++ {
		attrs = attrs<<8 | uint64(mem.ReadByte(addr+i))
	}

	var parent, sibling, child uint16
	var propsAddr uint32
	if version <= 3 {
		parent = uint16(mem.ReadByte(addr + 4))
		sibling = uint16(mem.ReadByte(addr + 5))
		child = uint16(mem.ReadByte(addr + 6))
		propsAddr = uint32(mem.ReadWord(addr + 7))
	} else {
		parent = mem.ReadWord(addr + 6)
		sibling = mem.ReadWord(addr + 8)
		child = mem.ReadWord(addr + 10)
		propsAddr = uint32(mem.ReadWord(addr + 12))
	}

	shortName := ""
	if propsAddr != 0 {
		nameLen := mem.ReadByte(propsAddr)
		if nameLen > 0 {
			shortName, _ = zstring.Decode(mem, propsAddr+1, version, alphabets, abbreviationTableBase)
		}
	}

	return Object{
		Id: id, Attributes: attrs, Parent: parent, Sibling: sibling, Child: child,
		PropsAddr: propsAddr, ShortName: shortName,
		version: version, objectTableBase: objectTableBase,
	}
}

func attributeCount(version uint8) int {
	if version <= 3 {
		return 32
	}
	return 48
}

// TestAttribute reports whether attribute is set on object id.
func TestAttribute(mem *zcore.Memory, version uint8, objectTableBase uint32, id uint16, attribute uint8) bool {
	obj := rawObject(mem, version, objectTableBase, id)
	mask := attributeMask(version, attribute)
	return obj.Attributes&mask != 0
}

func attributeMask(version uint8, attribute uint8) uint64 {
	n := attributeCount(version)
	return uint64(1) << uint(n-1-int(attribute))
}

// rawObject reads parent/sibling/child/attrs without decoding the name,
// for call sites (attribute test/set, tree surgery) that don't need it.
func rawObject(mem *zcore.Memory, version uint8, objectTableBase uint32, id uint16) Object {
	return Get(mem, version, objectTableBase, zstring.DefaultAlphabets(version), 0, id)
}

// SetAttribute sets attribute on object id.
func SetAttribute(mem *zcore.Memory, version uint8, objectTableBase uint32, id uint16, attribute uint8) error {
	return writeAttributes(mem, version, objectTableBase, id, attributeMask(version, attribute), true)
}

// ClearAttribute clears attribute on object id.
func ClearAttribute(mem *zcore.Memory, version uint8, objectTableBase uint32, id uint16, attribute uint8) error {
	return writeAttributes(mem, version, objectTableBase, id, attributeMask(version, attribute), false)
}

func writeAttributes(mem *zcore.Memory, version uint8, objectTableBase uint32, id uint16, mask uint64, set bool) error {
	addr := objectAddress(mem, version, objectTableBase, id)
	nBytes := attributeBytes(version)
	var attrs uint64
	for i := uint32(0); i < nBytes; i++ {
		attrs = attrs<<8 | uint64(mem.ReadByte(addr+i))
	}
	if set {
		attrs |= mask
	} else {
		attrs &^= mask
	}
	for i := uint32(0); i < nBytes; i++ {
		shift := (nBytes - 1 - i) * 8
		if err := mem.WriteByte(addr+i, uint8(attrs>>shift)); err != nil {
			return err
		}
	}
	return nil
}

// SetParent/SetSibling/SetChild write the corresponding tree link, using
// byte fields pre-v4 and word fields from v4 on.
func SetParent(mem *zcore.Memory, version uint8, objectTableBase uint32, id, parent uint16) error {
	return setLink(mem, version, objectTableBase, id, linkParent, parent)
}

func SetSibling(mem *zcore.Memory, version uint8, objectTableBase uint32, id, sibling uint16) error {
	return setLink(mem, version, objectTableBase, id, linkSibling, sibling)
}

func SetChild(mem *zcore.Memory, version uint8, objectTableBase uint32, id, child uint16) error {
	return setLink(mem, version, objectTableBase, id, linkChild, child)
}

type linkKind int

const (
	linkParent linkKind = iota
	linkSibling
	linkChild
)

func setLink(mem *zcore.Memory, version uint8, objectTableBase uint32, id uint16, kind linkKind, value uint16) error {
	addr := objectAddress(mem, version, objectTableBase, id)
	if version <= 3 {
		offset := map[linkKind]uint32{linkParent: 4, linkSibling: 5, linkChild: 6}[kind]
		return mem.WriteByte(addr+offset, uint8(value))
	}
	offset := map[linkKind]uint32{linkParent: 6, linkSibling: 8, linkChild: 10}[kind]
	return mem.WriteWord(addr+offset, value)
}

// Unlink removes id from its parent's child list, relinking its former
// siblings around it. It is a no-op if id has no parent (§4.3 remove_obj
// on an already-detached object).
func Unlink(mem *zcore.Memory, version uint8, objectTableBase uint32, id uint16) error {
	obj := rawObject(mem, version, objectTableBase, id)
	if obj.Parent == 0 {
		return nil
	}
	parent := rawObject(mem, version, objectTableBase, obj.Parent)

	if parent.Child == id {
		return SetChild(mem, version, objectTableBase, obj.Parent, obj.Sibling)
	}

	sibling := rawObject(mem, version, objectTableBase, parent.Child)
	for sibling.Sibling != id {
		if sibling.Sibling == 0 {
			return fmt.Errorf("zobject: object %d not found in parent %d's child chain", id, obj.Parent)
		}
		sibling = rawObject(mem, version, objectTableBase, sibling.Sibling)
	}
	return SetSibling(mem, version, objectTableBase, sibling.Id, obj.Sibling)
}

// Insert detaches id from wherever it is and makes it the first child of
// newParent, implementing insert_obj (§4.3).
func Insert(mem *zcore.Memory, version uint8, objectTableBase uint32, id, newParent uint16) error {
	if err := Unlink(mem, version, objectTableBase, id); err != nil {
		return err
	}
	parent := rawObject(mem, version, objectTableBase, newParent)
	if err := SetSibling(mem, version, objectTableBase, id, parent.Child); err != nil {
		return err
	}
	if err := SetChild(mem, version, objectTableBase, newParent, id); err != nil {
		return err
	}
	return SetParent(mem, version, objectTableBase, id, newParent)
}
