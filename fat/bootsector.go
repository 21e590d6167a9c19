package fat

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dargueta/vvfat/errors"
	"github.com/noxer/bytewriter"
)

// SectorSize is the only sector size this package produces.
const SectorSize = 512

// rawBootSector is the on-disk layout of the first 62 bytes of a FAT12/16 boot
// sector: the BIOS parameter block followed by the extended boot record.
type rawBootSector struct {
	JmpBoot           [3]byte
	OEMName           [8]byte
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	TotalSectors16    uint16
	Media             uint8
	SectorsPerFAT     uint16
	SectorsPerTrack   uint16
	NumHeads          uint16
	HiddenSectors     uint32
	TotalSectors32    uint32
	DriveNumber       uint8
	Reserved          uint8
	BootSignature     uint8
	VolumeID          uint32
	VolumeLabel       [11]byte
	FileSystemType    [8]byte
}

// extendedBootSignature marks the presence of the volume ID, label, and file
// system type fields.
const extendedBootSignature = 0x29

var jmpBoot = [3]byte{0xEB, 0x3E, 0x90}

// BootSector holds the fields of a FAT12/16 boot sector that this package
// reads and writes.
type BootSector struct {
	OEMName           [8]byte
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	Media             uint8
	SectorsPerFAT     uint16
	SectorsPerTrack   uint16
	NumHeads          uint16
	HiddenSectors     uint32
	// TotalSectors is the size of the volume, not counting hidden sectors.
	TotalSectors uint32
	DriveNumber  uint8
	VolumeID     uint32
	VolumeLabel  [11]byte
	// FATVersion is 12, 16, or 32, and only determines the file system type
	// string. Readers must derive the real version from the cluster count.
	FATVersion int
}

// DetermineFATVersion determines the version of the FAT file system based on the number
// of clusters on the system. (This is the only proper way to do so.)
func DetermineFATVersion(totalClusters uint) int {
	// These cluster counts, while odd-looking, are correct. They're taken directly from
	// Microsoft's FAT documentation, v1.03, page 14.
	if totalClusters < 4085 {
		return 12
	}
	if totalClusters < 65525 {
		return 16
	}
	return 32
}

func fileSystemType(version int) [8]byte {
	var tag [8]byte
	copy(tag[:], fmt.Sprintf("FAT%-5d", version))
	return tag
}

// RootDirSectors returns the number of sectors taken up by the root directory.
func (b *BootSector) RootDirSectors() uint {
	bytesPerSector := uint(b.BytesPerSector)
	return (uint(b.RootEntryCount)*DirentSize + bytesPerSector - 1) / bytesPerSector
}

// FirstDataSector returns the sector of cluster 2, relative to the start of the
// volume.
func (b *BootSector) FirstDataSector() uint {
	return uint(b.ReservedSectors) +
		uint(b.NumFATs)*uint(b.SectorsPerFAT) +
		b.RootDirSectors()
}

// TotalClusters returns the number of data clusters in the volume.
func (b *BootSector) TotalClusters() uint {
	firstDataSector := b.FirstDataSector()
	if uint(b.TotalSectors) <= firstDataSector || b.SectorsPerCluster == 0 {
		return 0
	}
	return (uint(b.TotalSectors) - firstDataSector) / uint(b.SectorsPerCluster)
}

// MarshalTo serializes the boot sector into the first [SectorSize] bytes of
// `output`, including the 0x55 0xAA signature.
func (b *BootSector) MarshalTo(output []byte) error {
	if len(output) < SectorSize {
		return errors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("boot sector needs %d bytes, buffer has %d", SectorSize, len(output)))
	}

	raw := rawBootSector{
		JmpBoot:           jmpBoot,
		OEMName:           b.OEMName,
		BytesPerSector:    b.BytesPerSector,
		SectorsPerCluster: b.SectorsPerCluster,
		ReservedSectors:   b.ReservedSectors,
		NumFATs:           b.NumFATs,
		RootEntryCount:    b.RootEntryCount,
		Media:             b.Media,
		SectorsPerFAT:     b.SectorsPerFAT,
		SectorsPerTrack:   b.SectorsPerTrack,
		NumHeads:          b.NumHeads,
		HiddenSectors:     b.HiddenSectors,
		TotalSectors32:    b.TotalSectors,
		DriveNumber:       b.DriveNumber,
		BootSignature:     extendedBootSignature,
		VolumeID:          b.VolumeID,
		VolumeLabel:       b.VolumeLabel,
		FileSystemType:    fileSystemType(b.FATVersion),
	}

	sector := output[:SectorSize]
	for i := range sector {
		sector[i] = 0
	}

	writer := bytewriter.New(sector)
	err := binary.Write(writer, binary.LittleEndian, &raw)
	if err != nil {
		return errors.ErrIOFailed.Wrap(err)
	}

	sector[510] = 0x55
	sector[511] = 0xAA
	return nil
}

// MarshalBinary implements [encoding.BinaryMarshaler].
func (b *BootSector) MarshalBinary() ([]byte, error) {
	output := make([]byte, SectorSize)
	err := b.MarshalTo(output)
	if err != nil {
		return nil, err
	}
	return output, nil
}

// ReadBootSector reads one sector from `reader` and parses it as a FAT12/16
// boot sector.
func ReadBootSector(reader io.Reader) (*BootSector, error) {
	sector := make([]byte, SectorSize)
	_, err := io.ReadFull(reader, sector)
	if err != nil {
		return nil, errors.ErrIOFailed.Wrap(err)
	}

	if sector[510] != 0x55 || sector[511] != 0xAA {
		return nil, errors.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf(
				"corruption detected: boot signature is %02x %02x, expected 55 aa",
				sector[510],
				sector[511]))
	}

	raw := rawBootSector{}
	err = binary.Read(bytes.NewReader(sector), binary.LittleEndian, &raw)
	if err != nil {
		return nil, errors.ErrIOFailed.Wrap(err)
	}

	switch raw.BytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		message := fmt.Sprintf(
			"corruption detected: BytesPerSector must be 512, 1024, 2048, or 4096, got %d",
			raw.BytesPerSector)
		return nil, errors.ErrFileSystemCorrupted.WithMessage(message)
	}

	switch raw.SectorsPerCluster {
	case 1, 2, 4, 8, 16, 32, 64, 128:
	default:
		message := fmt.Sprintf(
			"corruption detected: SectorsPerCluster must be a power of 2 in 1-128, got %d",
			raw.SectorsPerCluster)
		return nil, errors.ErrFileSystemCorrupted.WithMessage(message)
	}

	totalSectors := uint32(raw.TotalSectors16)
	if totalSectors == 0 {
		totalSectors = raw.TotalSectors32
	}

	bootSector := &BootSector{
		OEMName:           raw.OEMName,
		BytesPerSector:    raw.BytesPerSector,
		SectorsPerCluster: raw.SectorsPerCluster,
		ReservedSectors:   raw.ReservedSectors,
		NumFATs:           raw.NumFATs,
		RootEntryCount:    raw.RootEntryCount,
		Media:             raw.Media,
		SectorsPerFAT:     raw.SectorsPerFAT,
		SectorsPerTrack:   raw.SectorsPerTrack,
		NumHeads:          raw.NumHeads,
		HiddenSectors:     raw.HiddenSectors,
		TotalSectors:      totalSectors,
		DriveNumber:       raw.DriveNumber,
		VolumeID:          raw.VolumeID,
		VolumeLabel:       raw.VolumeLabel,
	}
	bootSector.FATVersion = DetermineFATVersion(bootSector.TotalClusters())
	return bootSector, nil
}
