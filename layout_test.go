package vvfat

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/vvfat/disks"
	"github.com/dargueta/vvfat/errors"
	"github.com/dargueta/vvfat/fat"
	"github.com/dargueta/vvfat/mbr"
	vvfattest "github.com/dargueta/vvfat/testing"
)

func TestLayout__Presets(t *testing.T) {
	cases := []struct {
		spec     string
		expected Layout
	}{
		{
			spec: "fat:floppy:",
			expected: Layout{
				SectorsPerCluster: 1,
				ClusterSize:       512,
				HiddenSectors:     0,
				FATStart:          1,
				SectorsPerFAT:     9,
				RootStart:         19,
				RootEntries:       224,
				DataStart:         33,
				FakedSectors:      33,
				FirstFileCluster:  2,
				ClusterCount:      2847,
				VolumeSectors:     2880,
				TotalSectors:      2880,
				FATType:           12,
			},
		},
		{
			spec: "fat:floppy28:",
			expected: Layout{
				SectorsPerCluster: 2,
				ClusterSize:       1024,
				HiddenSectors:     0,
				FATStart:          1,
				SectorsPerFAT:     9,
				RootStart:         19,
				RootEntries:       256,
				DataStart:         35,
				FakedSectors:      35,
				FirstFileCluster:  2,
				ClusterCount:      2862,
				VolumeSectors:     35 + 2862*2,
				TotalSectors:      5760,
				FATType:           12,
			},
		},
		{
			spec: "fat:",
			expected: Layout{
				SectorsPerCluster: 16,
				ClusterSize:       8192,
				HiddenSectors:     63,
				FATStart:          64,
				SectorsPerFAT:     252,
				RootStart:         568,
				RootEntries:       512,
				DataStart:         600,
				FakedSectors:      600,
				FirstFileCluster:  2,
				ClusterCount:      60383,
				VolumeSectors:     600 - 63 + 60383*16,
				TotalSectors:      966735,
				FATType:           16,
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.spec, func(t *testing.T) {
			disk, _ := openTestDisk(t, tc.spec, vvfattest.HostTree{}, nil)
			assert.Equal(t, tc.expected, disk.Layout())
			assert.Equal(t, tc.expected.TotalSectors, disk.TotalSectors())
		})
	}
}

func TestLayout__Geometry32M(t *testing.T) {
	disk, _ := openTestDisk(t, "fat:", vvfattest.HostTree{}, &Options{Geometry: "hd-32m"})
	layout := disk.Layout()
	assert.EqualValues(t, 224, layout.DataStart)
	assert.EqualValues(t, 16328, layout.ClusterCount)
	assert.Equal(t, 16, layout.FATType)
	assert.Equal(t, "hd-32m", disk.Geometry().Slug)
}

func TestLayout__Regions(t *testing.T) {
	disk, _ := openTestDisk(t, "fat:floppy:", vvfattest.HostTree{}, nil)
	layout := disk.Layout()

	cases := []struct {
		sector   uint32
		expected diskRegion
	}{
		{0, diskRegionBoot},
		{1, diskRegionFAT},
		{9, diskRegionFAT},
		{10, diskRegionBackupFAT},
		{18, diskRegionBackupFAT},
		{19, diskRegionDirectory},
		{32, diskRegionDirectory},
		{33, diskRegionData},
		{2879, diskRegionData},
		{2880, diskRegionOutside},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.expected, layout.regionOf(tc.sector), "sector %d", tc.sector)
	}

	cluster, inCluster := layout.ClusterOfSector(40)
	assert.EqualValues(t, 9, cluster)
	assert.EqualValues(t, 0, inCluster)
	assert.EqualValues(t, 40, layout.SectorOfCluster(9))
	assert.EqualValues(t, 2849, layout.ClusterLimit())
}

func TestLayout__SubdirectoriesMoveFirstFileCluster(t *testing.T) {
	disk, _ := openTestDisk(t, "fat:floppy:", vvfattest.HostTree{
		"one":         nil,
		"two":         nil,
		"two/nested":  nil,
		"two/file.md": []byte("hello"),
	}, nil)
	layout := disk.Layout()

	// Each subdirectory gets a cluster for its entries and one spare.
	assert.EqualValues(t, 2+2+2+2, layout.FirstFileCluster)
	assert.Equal(t, layout.SectorOfCluster(layout.FirstFileCluster), layout.FakedSectors)
}

func TestBootSector__Floppy(t *testing.T) {
	disk, _ := openTestDisk(t, "fat:floppy:", vvfattest.HostTree{}, &Options{VolumeLabel: "my disk"})

	sector := readSector(t, disk, 0)
	boot, err := fat.ReadBootSector(bytes.NewReader(sector))
	require.NoError(t, err)

	assert.EqualValues(t, 512, boot.BytesPerSector)
	assert.EqualValues(t, 1, boot.SectorsPerCluster)
	assert.EqualValues(t, 1, boot.ReservedSectors)
	assert.EqualValues(t, 2, boot.NumFATs)
	assert.EqualValues(t, 224, boot.RootEntryCount)
	assert.EqualValues(t, 0xF0, boot.Media)
	assert.EqualValues(t, 9, boot.SectorsPerFAT)
	assert.EqualValues(t, 18, boot.SectorsPerTrack)
	assert.EqualValues(t, 2, boot.NumHeads)
	assert.EqualValues(t, 0, boot.HiddenSectors)
	assert.EqualValues(t, 2880, boot.TotalSectors)
	assert.EqualValues(t, 0, boot.DriveNumber)
	assert.EqualValues(t, uint32(0xFABE1AFD), boot.VolumeID)
	assert.Equal(t, fat.PadLabel("my disk"), boot.VolumeLabel)
	assert.Equal(t, 12, boot.FATVersion)
	assert.EqualValues(t, 33, boot.FirstDataSector())
	assert.EqualValues(t, 2847, boot.TotalClusters())

	label := readDirent(t, disk, 0)
	assert.True(t, label.IsVolumeLabel())
	assert.Equal(t, fat.PadLabel("my disk"), label.ShortName())
}

func TestBootSector__PartitionedDisk(t *testing.T) {
	disk, _ := openTestDisk(t, "fat:", vvfattest.HostTree{}, nil)
	layout := disk.Layout()

	record, err := mbr.Read(bytes.NewReader(readSector(t, disk, 0)))
	require.NoError(t, err)
	partition := record.Partitions[0]
	assert.True(t, partition.Bootable)
	assert.EqualValues(t, mbr.TypeFAT16, partition.Type)
	assert.EqualValues(t, 63, partition.FirstLBA)
	assert.Equal(t, layout.VolumeSectors, partition.TotalSectors)
	assert.Zero(t, record.Partitions[1].Type)

	// Everything between the MBR and the boot sector is empty.
	hidden := vvfattest.ReadSectors(t, disk, 1, 62)
	assert.Equal(t, make([]byte, len(hidden)), hidden)

	boot, err := fat.ReadBootSector(bytes.NewReader(readSector(t, disk, 63)))
	require.NoError(t, err)
	assert.EqualValues(t, 63, boot.HiddenSectors)
	assert.EqualValues(t, 0x80, boot.DriveNumber)
	assert.EqualValues(t, 0xF8, boot.Media)
	assert.EqualValues(t, 16, boot.SectorsPerCluster)
	assert.EqualValues(t, 512, boot.RootEntryCount)
	assert.Equal(t, 16, boot.FATVersion)
	assert.Equal(t, fat.PadLabel(DefaultVolumeLabel), boot.VolumeLabel)
	assert.EqualValues(t, layout.ClusterCount, boot.TotalClusters())
	assert.EqualValues(t, layout.DataStart-layout.HiddenSectors, boot.FirstDataSector())
}

func TestNewLayout__FATTypeMismatch(t *testing.T) {
	geometry, err := disks.GetPredefinedDiskGeometry("floppy-1440")
	require.NoError(t, err)
	geometry.FATType = 16

	_, err = newLayout(geometry, 224, 14)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestNewLayout__TooManyRootEntries(t *testing.T) {
	geometry, err := disks.GetPredefinedDiskGeometry("hd-504m")
	require.NoError(t, err)

	_, err = newLayout(geometry, 0x10000, 0x1000)
	assert.ErrorIs(t, err, errors.ErrNoSpaceOnDevice)
}

func TestNewLayout__MetadataLargerThanDisk(t *testing.T) {
	geometry, err := disks.GetPredefinedDiskGeometry("floppy-1440")
	require.NoError(t, err)

	_, err = newLayout(geometry, 0xF000, 0xF00)
	assert.ErrorIs(t, err, errors.ErrNoSpaceOnDevice)
}
