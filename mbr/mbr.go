// Package mbr builds and parses the master boot record placed in front of a
// partitioned disk image.
package mbr

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dargueta/vvfat/errors"
	"github.com/noxer/bytewriter"
)

const SectorSize = 512

// partitionTableOffset is where the disk signature starts. The four partition
// entries follow it after two reserved bytes.
const partitionTableOffset = 0x1B8

// DefaultDiskSignature is the Windows NT disk signature written when none is
// given.
const DefaultDiskSignature = 0xBE1AFDFA

// Partition types.
const (
	TypeEmpty     = 0x00
	TypeFAT12     = 0x01
	TypeFAT16     = 0x06
	TypeFAT32     = 0x0B
	TypeFAT32LBA  = 0x0C
	TypeFAT16LBA  = 0x0E
	statusActive  = 0x80
	statusInvalid = 0x00
)

// CHS is a cylinder/head/sector address in the packed three-byte form stored
// in a partition entry. The top two bits of the ten-bit cylinder number live in
// the top two bits of Sector.
type CHS struct {
	Head     uint8
	Sector   uint8
	Cylinder uint8
}

// overflowCHS is stored for addresses the geometry can't represent.
var overflowCHS = CHS{Head: 0xFF, Sector: 0xFF, Cylinder: 0xFF}

// Geometry is the CHS geometry used to encode partition boundaries.
type Geometry struct {
	Cylinders       uint
	Heads           uint
	SectorsPerTrack uint
}

// LBAToCHS converts a linear sector address to CHS form. If the address is
// beyond the last cylinder, it returns the all-ones address and false.
func LBAToCHS(lba uint32, geometry Geometry) (CHS, bool) {
	if geometry.Heads == 0 || geometry.SectorsPerTrack == 0 {
		return overflowCHS, false
	}

	position := uint(lba)
	sector := position % geometry.SectorsPerTrack
	position /= geometry.SectorsPerTrack
	head := position % geometry.Heads
	cylinder := position / geometry.Heads

	if cylinder >= geometry.Cylinders || cylinder > 1023 {
		return overflowCHS, false
	}

	return CHS{
		Head:     uint8(head),
		Sector:   uint8((sector + 1) | ((cylinder >> 8) << 6)),
		Cylinder: uint8(cylinder),
	}, true
}

// CylinderNumber returns the full ten-bit cylinder number.
func (c CHS) CylinderNumber() uint {
	return uint(c.Cylinder) | (uint(c.Sector&0xC0) << 2)
}

// SectorNumber returns the one-based sector number within the track.
func (c CHS) SectorNumber() uint {
	return uint(c.Sector & 0x3F)
}

type PartitionEntry struct {
	Bootable     bool
	Type         uint8
	Start        CHS
	End          CHS
	FirstLBA     uint32
	TotalSectors uint32
}

type rawPartitionEntry struct {
	Status       uint8
	Start        CHS
	Type         uint8
	End          CHS
	FirstLBA     uint32
	TotalSectors uint32
}

type rawPartitionTable struct {
	DiskSignature uint32
	Reserved      uint16
	Partitions    [4]rawPartitionEntry
	Signature     [2]byte
}

// MBR is a master boot record with no boot code.
type MBR struct {
	DiskSignature uint32
	Partitions    [4]PartitionEntry
}

// NewSinglePartition creates an MBR with one bootable partition covering
// `totalSectors` sectors starting at `firstLBA`. The partition type depends on
// the FAT version and on whether the partition fits in the CHS geometry;
// partitions that don't are marked as LBA types.
func NewSinglePartition(
	firstLBA uint32, totalSectors uint32, fatVersion int, geometry Geometry,
) (*MBR, error) {
	if totalSectors == 0 {
		return nil, errors.ErrInvalidArgument.WithMessage("partition can't be empty")
	}

	start, startFits := LBAToCHS(firstLBA, geometry)
	end, endFits := LBAToCHS(firstLBA+totalSectors-1, geometry)
	needsLBA := !startFits || !endFits

	var partitionType uint8
	switch fatVersion {
	case 12:
		partitionType = TypeFAT12
	case 16:
		if needsLBA {
			partitionType = TypeFAT16LBA
		} else {
			partitionType = TypeFAT16
		}
	case 32:
		if needsLBA {
			partitionType = TypeFAT32LBA
		} else {
			partitionType = TypeFAT32
		}
	default:
		return nil, errors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("unsupported FAT version: %d", fatVersion))
	}

	record := &MBR{DiskSignature: DefaultDiskSignature}
	record.Partitions[0] = PartitionEntry{
		Bootable:     true,
		Type:         partitionType,
		Start:        start,
		End:          end,
		FirstLBA:     firstLBA,
		TotalSectors: totalSectors,
	}
	return record, nil
}

// MarshalTo writes the MBR into the first [SectorSize] bytes of `output`. The
// boot code area is zeroed.
func (m *MBR) MarshalTo(output []byte) error {
	if len(output) < SectorSize {
		return errors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("MBR needs %d bytes, buffer has %d", SectorSize, len(output)))
	}

	sector := output[:SectorSize]
	for i := range sector {
		sector[i] = 0
	}

	table := rawPartitionTable{
		DiskSignature: m.DiskSignature,
		Signature:     [2]byte{0x55, 0xAA},
	}
	for i, partition := range m.Partitions {
		status := uint8(statusInvalid)
		if partition.Bootable {
			status = statusActive
		}
		table.Partitions[i] = rawPartitionEntry{
			Status:       status,
			Start:        partition.Start,
			Type:         partition.Type,
			End:          partition.End,
			FirstLBA:     partition.FirstLBA,
			TotalSectors: partition.TotalSectors,
		}
	}

	writer := bytewriter.New(sector[partitionTableOffset:])
	err := binary.Write(writer, binary.LittleEndian, &table)
	if err != nil {
		return errors.ErrIOFailed.Wrap(err)
	}
	return nil
}

func (m *MBR) MarshalBinary() ([]byte, error) {
	output := make([]byte, SectorSize)
	err := m.MarshalTo(output)
	if err != nil {
		return nil, err
	}
	return output, nil
}

// Read parses the MBR in the first sector read from `reader`.
func Read(reader io.Reader) (*MBR, error) {
	sector := make([]byte, SectorSize)
	_, err := io.ReadFull(reader, sector)
	if err != nil {
		return nil, errors.ErrIOFailed.Wrap(err)
	}
	if sector[0x1FE] != 0x55 || sector[0x1FF] != 0xAA {
		return nil, errors.ErrFileSystemCorrupted.WithMessage(
			"sector doesn't contain a valid MBR")
	}

	table := rawPartitionTable{}
	err = binary.Read(
		bytes.NewReader(sector[partitionTableOffset:]), binary.LittleEndian, &table)
	if err != nil {
		return nil, errors.ErrIOFailed.Wrap(err)
	}

	record := &MBR{DiskSignature: table.DiskSignature}
	for i, raw := range table.Partitions {
		record.Partitions[i] = PartitionEntry{
			Bootable:     raw.Status == statusActive,
			Type:         raw.Type,
			Start:        raw.Start,
			End:          raw.End,
			FirstLBA:     raw.FirstLBA,
			TotalSectors: raw.TotalSectors,
		}
	}
	return record, nil
}
