package vvfat

import (
	"fmt"

	"github.com/dargueta/vvfat/disks"
	"github.com/dargueta/vvfat/errors"
	"github.com/dargueta/vvfat/fat"
	"github.com/dargueta/vvfat/mbr"
)

// SectorSize is the size of every sector of a synthesized disk.
const SectorSize = 512

const direntsPerSector = SectorSize / fat.DirentSize

// partitionOffset is the number of hidden sectors in front of the boot sector
// of a partitioned disk, i.e. one full track of the usual hard disk geometry.
const partitionOffset = 0x3F

// volumeID is the serial number written to the boot sector.
const volumeID = 0xFABE1AFD

// Layout gives the position of every region of a synthesized disk. All sector
// numbers are absolute.
type Layout struct {
	SectorsPerCluster uint32
	ClusterSize       uint32
	// HiddenSectors is the number of sectors in front of the boot sector: the
	// MBR and the rest of the first track on a partitioned disk, 0 otherwise.
	HiddenSectors uint32
	FATStart      uint32
	SectorsPerFAT uint32
	RootStart     uint32
	RootEntries   uint32
	// DataStart is the first sector of cluster 2.
	DataStart uint32
	// FakedSectors is the end of the directory region. Everything before it is
	// served from memory.
	FakedSectors     uint32
	FirstFileCluster fat.ClusterID
	ClusterCount     uint32
	// VolumeSectors is the size of the FAT volume as declared in the boot
	// sector, not counting hidden sectors.
	VolumeSectors uint32
	TotalSectors  uint32
	FATType       int
}

// ClusterLimit returns one past the highest valid cluster number.
func (l *Layout) ClusterLimit() fat.ClusterID {
	return fat.FirstDataCluster + l.ClusterCount
}

// SectorOfCluster returns the first sector of `cluster`.
func (l *Layout) SectorOfCluster(cluster fat.ClusterID) uint32 {
	return l.DataStart + (cluster-fat.FirstDataCluster)*l.SectorsPerCluster
}

// ClusterOfSector returns the cluster containing `sector` and the sector's
// index within that cluster. `sector` must be at or past DataStart.
func (l *Layout) ClusterOfSector(sector uint32) (fat.ClusterID, uint32) {
	relative := sector - l.DataStart
	return relative/l.SectorsPerCluster + fat.FirstDataCluster, relative % l.SectorsPerCluster
}

func (l *Layout) entriesPerCluster() uint32 {
	return l.ClusterSize / fat.DirentSize
}

type diskRegion int

const (
	diskRegionBoot diskRegion = iota
	diskRegionFAT
	diskRegionBackupFAT
	diskRegionDirectory
	diskRegionData
	diskRegionOutside
)

func (l *Layout) regionOf(sector uint32) diskRegion {
	switch {
	case sector < l.FATStart:
		return diskRegionBoot
	case sector < l.FATStart+l.SectorsPerFAT:
		return diskRegionFAT
	case sector < l.RootStart:
		return diskRegionBackupFAT
	case sector < l.FakedSectors:
		return diskRegionDirectory
	case sector < l.SectorOfCluster(l.ClusterLimit()):
		return diskRegionData
	default:
		return diskRegionOutside
	}
}

func maxClustersForFAT(fatType int) uint32 {
	if fatType == 12 {
		return 4084
	}
	return 65524
}

// newLayout places the regions of a disk with `geometry` whose root directory
// holds `rootEntries` entries and whose directories take up `directorySectors`
// sectors in total, root included.
func newLayout(
	geometry disks.DiskGeometry, rootEntries uint32, directorySectors uint32,
) (Layout, error) {
	layout := Layout{
		SectorsPerCluster: uint32(geometry.SectorsPerCluster),
		ClusterSize:       uint32(geometry.SectorsPerCluster) * SectorSize,
		SectorsPerFAT:     uint32(geometry.SectorsPerFAT),
		RootEntries:       rootEntries,
		TotalSectors:      uint32(geometry.TotalSectors),
		FATType:           int(geometry.FATType),
	}
	if geometry.Partitioned() {
		layout.HiddenSectors = partitionOffset
	}

	if rootEntries > 0xFFFF {
		return layout, errors.ErrNoSpaceOnDevice.WithMessage(
			fmt.Sprintf("root directory needs %d entries, at most 65535 fit", rootEntries))
	}

	layout.FATStart = layout.HiddenSectors + 1
	layout.RootStart = layout.FATStart + 2*layout.SectorsPerFAT
	layout.DataStart = layout.RootStart + rootEntries/direntsPerSector
	layout.FakedSectors = layout.RootStart + directorySectors
	layout.FirstFileCluster = fat.FirstDataCluster +
		(layout.FakedSectors-layout.DataStart)/layout.SectorsPerCluster

	if layout.DataStart >= layout.TotalSectors {
		return layout, errors.ErrNoSpaceOnDevice.WithMessage(
			fmt.Sprintf(
				"metadata needs %d sectors, disk only has %d",
				layout.DataStart,
				layout.TotalSectors))
	}

	clusterCount := (layout.TotalSectors - layout.DataStart) / layout.SectorsPerCluster
	fatEntries := layout.SectorsPerFAT * SectorSize * 8 / uint32(layout.FATType)
	if fatEntries-2 < clusterCount {
		clusterCount = fatEntries - 2
	}
	if maxClusters := maxClustersForFAT(layout.FATType); maxClusters < clusterCount {
		clusterCount = maxClusters
	}
	layout.ClusterCount = clusterCount

	detected := fat.DetermineFATVersion(uint(clusterCount))
	if detected != layout.FATType {
		return layout, errors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"geometry %q declares FAT%d but its %d clusters make it FAT%d",
				geometry.Slug,
				layout.FATType,
				clusterCount,
				detected))
	}

	if layout.FirstFileCluster > layout.ClusterLimit() {
		return layout, errors.ErrNoSpaceOnDevice.WithMessage(
			fmt.Sprintf(
				"directories need %d clusters, disk only has %d",
				layout.FirstFileCluster-fat.FirstDataCluster,
				clusterCount))
	}

	layout.VolumeSectors = layout.DataStart - layout.HiddenSectors +
		clusterCount*layout.SectorsPerCluster
	return layout, nil
}

// buildBootArea serializes the MBR (for partitioned disks) and the boot
// sector into a buffer covering every sector before the first FAT.
func buildBootArea(
	layout *Layout, geometry disks.DiskGeometry, label [11]byte,
) ([]byte, error) {
	bootArea := make([]byte, layout.FATStart*SectorSize)

	if geometry.Partitioned() {
		record, err := mbr.NewSinglePartition(
			layout.HiddenSectors,
			layout.VolumeSectors,
			layout.FATType,
			mbr.Geometry{
				Cylinders:       geometry.Cylinders,
				Heads:           geometry.Heads,
				SectorsPerTrack: geometry.SectorsPerTrack,
			},
		)
		if err != nil {
			return nil, err
		}
		err = record.MarshalTo(bootArea)
		if err != nil {
			return nil, err
		}
	}

	var driveNumber uint8
	if geometry.Partitioned() {
		driveNumber = 0x80
	}

	bootSector := fat.BootSector{
		OEMName:           [8]byte{'Q', 'E', 'M', 'U', ' ', ' ', ' ', ' '},
		BytesPerSector:    SectorSize,
		SectorsPerCluster: uint8(layout.SectorsPerCluster),
		ReservedSectors:   1,
		NumFATs:           2,
		RootEntryCount:    uint16(layout.RootEntries),
		Media:             uint8(geometry.Media),
		SectorsPerFAT:     uint16(layout.SectorsPerFAT),
		SectorsPerTrack:   uint16(geometry.SectorsPerTrack),
		NumHeads:          uint16(geometry.Heads),
		HiddenSectors:     layout.HiddenSectors,
		TotalSectors:      layout.VolumeSectors,
		DriveNumber:       driveNumber,
		VolumeID:          volumeID,
		VolumeLabel:       label,
		FATVersion:        layout.FATType,
	}
	err := bootSector.MarshalTo(bootArea[layout.HiddenSectors*SectorSize:])
	if err != nil {
		return nil, err
	}
	return bootArea, nil
}
