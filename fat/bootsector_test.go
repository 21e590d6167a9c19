package fat_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/vvfat/errors"
	"github.com/dargueta/vvfat/fat"
)

func newHardDiskBootSector() fat.BootSector {
	return fat.BootSector{
		OEMName:           [8]byte{'Q', 'E', 'M', 'U', ' ', ' ', ' ', ' '},
		BytesPerSector:    512,
		SectorsPerCluster: 16,
		ReservedSectors:   1,
		NumFATs:           2,
		RootEntryCount:    512,
		Media:             0xF8,
		SectorsPerFAT:     0xFC,
		SectorsPerTrack:   0x3F,
		NumHeads:          0x10,
		HiddenSectors:     0x3F,
		TotalSectors:      0xEC000,
		DriveNumber:       0x80,
		VolumeID:          0xFABE1AFD,
		VolumeLabel:       fat.PadLabel("QEMU VVFAT"),
		FATVersion:        16,
	}
}

func TestBootSector__Layout(t *testing.T) {
	bootSector := newHardDiskBootSector()
	raw, err := bootSector.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, raw, fat.SectorSize)

	assert.Equal(t, []byte{0xEB, 0x3E, 0x90}, raw[0:3])
	assert.Equal(t, "QEMU    ", string(raw[3:11]))
	assert.Equal(t, []byte{0x00, 0x02}, raw[11:13])
	assert.EqualValues(t, 16, raw[13])
	assert.Equal(t, []byte{0x01, 0x00}, raw[14:16])
	assert.EqualValues(t, 2, raw[16])
	assert.Equal(t, []byte{0x00, 0x02}, raw[17:19])
	assert.Equal(t, []byte{0x00, 0x00}, raw[19:21], "16-bit total must be zero")
	assert.EqualValues(t, 0xF8, raw[21])
	assert.Equal(t, []byte{0xFC, 0x00}, raw[22:24])
	assert.Equal(t, []byte{0x3F, 0x00, 0x00, 0x00}, raw[28:32])
	assert.Equal(t, []byte{0x00, 0xC0, 0x0E, 0x00}, raw[32:36])
	assert.EqualValues(t, 0x80, raw[36])
	assert.EqualValues(t, 0x29, raw[38])
	assert.Equal(t, []byte{0xFD, 0x1A, 0xBE, 0xFA}, raw[39:43])
	assert.Equal(t, "QEMU VVFAT ", string(raw[43:54]))
	assert.Equal(t, "FAT16   ", string(raw[54:62]))
	assert.Equal(t, []byte{0x55, 0xAA}, raw[510:512])
}

func TestBootSector__RoundTrip(t *testing.T) {
	bootSector := newHardDiskBootSector()
	raw, err := bootSector.MarshalBinary()
	require.NoError(t, err)

	parsed, err := fat.ReadBootSector(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, bootSector, *parsed)
}

func TestBootSector__Floppy(t *testing.T) {
	bootSector := fat.BootSector{
		BytesPerSector:    512,
		SectorsPerCluster: 1,
		ReservedSectors:   1,
		NumFATs:           2,
		RootEntryCount:    224,
		Media:             0xF0,
		SectorsPerFAT:     9,
		SectorsPerTrack:   18,
		NumHeads:          2,
		TotalSectors:      2880,
		FATVersion:        12,
	}
	raw, err := bootSector.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, "FAT12   ", string(raw[54:62]))

	parsed, err := fat.ReadBootSector(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.EqualValues(t, 33, parsed.FirstDataSector())
	assert.EqualValues(t, 2847, parsed.TotalClusters())
	assert.Equal(t, 12, parsed.FATVersion)
}

func TestReadBootSector__BadSignature(t *testing.T) {
	raw := make([]byte, fat.SectorSize)
	_, err := fat.ReadBootSector(bytes.NewReader(raw))
	assert.ErrorIs(t, err, errors.ErrFileSystemCorrupted)
}

func TestReadBootSector__Short(t *testing.T) {
	_, err := fat.ReadBootSector(bytes.NewReader(make([]byte, 100)))
	assert.ErrorIs(t, err, errors.ErrIOFailed)
}

func TestBootSector__MarshalToSmallBuffer(t *testing.T) {
	bootSector := newHardDiskBootSector()
	err := bootSector.MarshalTo(make([]byte, 100))
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestDetermineFATVersion(t *testing.T) {
	assert.Equal(t, 12, fat.DetermineFATVersion(4084))
	assert.Equal(t, 16, fat.DetermineFATVersion(4085))
	assert.Equal(t, 16, fat.DetermineFATVersion(65524))
	assert.Equal(t, 32, fat.DetermineFATVersion(65525))
}
