// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package superblock implements the poolfs on-disk superblock codec.
//
// Every member device of a pool carries one superblock: a 512-byte little-endian
// structure at byte offset 4096. The layout is:
//
//	0x000 magic      [16]byte  fixed signature
//	0x010 csum       uint64    checksum of bytes [0x018,0x200)
//	0x018 version    uint16    format version
//	0x01a csum_type  uint8     checksum algorithm
//	0x01b dev_index  uint8     member index within the pool
//	0x01c nr_devices uint8     member count, 0 if not recorded
//	0x01d flags      uint8     bit 0: encryption required
//	0x01e block_size uint16    block size in 512-byte sectors
//	0x020 uuid       [16]byte  filesystem identifier
//	0x030 user_uuid  [16]byte  user-facing UUID
//	0x040 seq        uint64    superblock write sequence
//	0x048 label      [32]byte  NUL-padded label (version 2+)
//	0x068 reserved   [408]byte
package superblock

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

const (
	// Offset is the byte offset of the superblock on a member device.
	Offset = 4096
	// Size is the encoded size of the superblock in bytes.
	Size = 512
	// SectorSize is the unit of the block_size field.
	SectorSize = 512
	// LabelSize is the maximum label length in bytes.
	LabelSize = 32
	// MaxBlockSize is the largest allowed block size in sectors (64 KiB).
	MaxBlockSize = 128

	// VersionMin is the oldest format version this package understands.
	VersionMin = 1
	// VersionLabel is the first version that records a label.
	VersionLabel = 2
	// VersionCurrent is the newest format version this package understands.
	VersionCurrent = 2
)

// Checksum algorithms selectable via the csum_type field.
const (
	ChecksumCRC32C uint8 = iota
	ChecksumXXHash64
)

// Magic identifies a poolfs superblock. It is stored verbatim at offset 0.
var Magic = uuid.MustParse("9a2b7e3c-5f41-4d98-b1a6-3f0c2d8e5a71")

// Flag bits of the flags field.
const (
	// FlagEncrypted is set when mounting the pool requires a passphrase.
	FlagEncrypted uint8 = 1 << 0
)

var (
	// ErrNotMember indicates the byte region does not carry a poolfs superblock.
	ErrNotMember = errors.New("not a poolfs member")
	// ErrCorrupt indicates the magic matched but the contents failed validation.
	ErrCorrupt = errors.New("superblock corrupt")
	// ErrUnsupportedVersion indicates a format version newer than this implementation.
	ErrUnsupportedVersion = errors.New("unsupported superblock version")
)

// SuperBlock is a decoded poolfs superblock.
//
// It is a plain value: no raw layout leaks out of this package, and a decoded
// superblock is never written back implicitly.
type SuperBlock struct {
	Version   uint16
	CsumType  uint8
	DevIndex  uint8
	NrDevices uint8 // 0 when the pool does not record its member count
	Flags     uint8
	BlockSize uint16 // in 512-byte sectors
	UUID      uuid.UUID
	UserUUID  uuid.UUID
	Seq       uint64
	Label     string // empty below version 2
}

// decoders maps each supported format version to its decode function.
//
// The version tag is validated before any version-specific field is trusted.
var decoders = map[uint16]func([]byte) (*SuperBlock, error){
	1: decodeV1,
	2: decodeV2,
}

// Decode interprets raw as the superblock region of a member device.
//
// Decode is pure and does not retain raw. A region shorter than Size bytes
// cannot hold a superblock, so it is reported as ErrNotMember, same as a magic
// mismatch. A matching magic with a failing checksum or out-of-range fields is
// ErrCorrupt. A valid superblock with a version newer than VersionCurrent is
// ErrUnsupportedVersion, as mounting it could corrupt data.
func Decode(raw []byte) (*SuperBlock, error) {
	if len(raw) < Size {
		return nil, fmt.Errorf("%w: region is %d bytes, need %d", ErrNotMember, len(raw), Size)
	}

	raw = raw[:Size]

	if !bytes.Equal(raw[0x00:0x10], Magic[:]) {
		return nil, ErrNotMember
	}

	if err := verifyChecksum(raw); err != nil {
		return nil, err
	}

	version := binary.LittleEndian.Uint16(raw[0x18:0x1a])

	decode, ok := decoders[version]
	if !ok {
		if version < VersionMin {
			return nil, fmt.Errorf("%w: version field is zero", ErrCorrupt)
		}

		return nil, fmt.Errorf("%w: version %d, while up to %d is understood", ErrUnsupportedVersion, version, VersionCurrent)
	}

	return decode(raw)
}

func decodeV1(raw []byte) (*SuperBlock, error) {
	sb := &SuperBlock{
		Version:   binary.LittleEndian.Uint16(raw[0x18:0x1a]),
		CsumType:  raw[0x1a],
		DevIndex:  raw[0x1b],
		NrDevices: raw[0x1c],
		Flags:     raw[0x1d],
		BlockSize: binary.LittleEndian.Uint16(raw[0x1e:0x20]),
		Seq:       binary.LittleEndian.Uint64(raw[0x40:0x48]),
	}

	copy(sb.UUID[:], raw[0x20:0x30])
	copy(sb.UserUUID[:], raw[0x30:0x40])

	if err := sb.validate(); err != nil {
		return nil, err
	}

	return sb, nil
}

func decodeV2(raw []byte) (*SuperBlock, error) {
	sb, err := decodeV1(raw)
	if err != nil {
		return nil, err
	}

	sb.Label = string(bytes.TrimRight(raw[0x48:0x68], "\x00"))

	return sb, nil
}

// Encode serializes the superblock, recomputing its checksum.
func (sb *SuperBlock) Encode() ([]byte, error) {
	switch {
	case sb.Version < VersionMin || sb.Version > VersionCurrent:
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, sb.Version)
	case sb.Version < VersionLabel && sb.Label != "":
		return nil, fmt.Errorf("version %d does not record a label", sb.Version)
	case len(sb.Label) > LabelSize:
		return nil, fmt.Errorf("label %q exceeds %d bytes", sb.Label, LabelSize)
	}

	if err := sb.validate(); err != nil {
		return nil, err
	}

	raw := make([]byte, Size)

	copy(raw[0x00:0x10], Magic[:])
	binary.LittleEndian.PutUint16(raw[0x18:0x1a], sb.Version)
	raw[0x1a] = sb.CsumType
	raw[0x1b] = sb.DevIndex
	raw[0x1c] = sb.NrDevices
	raw[0x1d] = sb.Flags
	binary.LittleEndian.PutUint16(raw[0x1e:0x20], sb.BlockSize)
	copy(raw[0x20:0x30], sb.UUID[:])
	copy(raw[0x30:0x40], sb.UserUUID[:])
	binary.LittleEndian.PutUint64(raw[0x40:0x48], sb.Seq)

	if sb.Version >= VersionLabel {
		copy(raw[0x48:0x68], sb.Label)
	}

	sum, err := checksum(sb.CsumType, raw[0x18:Size])
	if err != nil {
		return nil, err
	}

	binary.LittleEndian.PutUint64(raw[0x10:0x18], sum)

	return raw, nil
}

// Equal reports whether two superblocks describe the same filesystem state.
//
// Identity covers the filesystem identifier, user UUID, block size, format
// version and write sequence. The checksum pair is derived and excluded.
func (sb *SuperBlock) Equal(other *SuperBlock) bool {
	return sb.UUID == other.UUID &&
		sb.UserUUID == other.UserUUID &&
		sb.BlockSize == other.BlockSize &&
		sb.Version == other.Version &&
		sb.Seq == other.Seq
}

// Encrypted reports whether mounting the pool requires a passphrase.
func (sb *SuperBlock) Encrypted() bool {
	return sb.Flags&FlagEncrypted != 0
}

// BlockSizeBytes returns the filesystem block size in bytes.
func (sb *SuperBlock) BlockSizeBytes() uint32 {
	return uint32(sb.BlockSize) * SectorSize
}

func (sb *SuperBlock) validate() error {
	switch {
	case sb.BlockSize == 0 || sb.BlockSize > MaxBlockSize || sb.BlockSize&(sb.BlockSize-1) != 0:
		return fmt.Errorf("%w: block size %d sectors", ErrCorrupt, sb.BlockSize)
	case sb.NrDevices > 0 && sb.DevIndex >= sb.NrDevices:
		return fmt.Errorf("%w: device index %d out of range for %d devices", ErrCorrupt, sb.DevIndex, sb.NrDevices)
	}

	return nil
}

func verifyChecksum(raw []byte) error {
	stored := binary.LittleEndian.Uint64(raw[0x10:0x18])

	computed, err := checksum(raw[0x1a], raw[0x18:Size])
	if err != nil {
		return err
	}

	if stored != computed {
		return fmt.Errorf("%w: checksum mismatch: read %#016x, computed %#016x", ErrCorrupt, stored, computed)
	}

	return nil
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func checksum(typ uint8, data []byte) (uint64, error) {
	switch typ {
	case ChecksumCRC32C:
		return uint64(crc32.Checksum(data, castagnoli)), nil
	case ChecksumXXHash64:
		return xxhash.Sum64(data), nil
	default:
		return 0, fmt.Errorf("%w: unknown checksum type %d", ErrCorrupt, typ)
	}
}
