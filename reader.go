package vvfat

import (
	"log/slog"

	"github.com/dargueta/vvfat/fat"
)

// clusterCache holds the last cluster read from a host file.
type clusterCache struct {
	cluster fat.ClusterID
	valid   bool
	data    []byte
}

func (d *Disk) invalidateReadCache() {
	d.cache.valid = false
}

// readSector copies one sector of the synthesized image into `buffer`.
func (d *Disk) readSector(sector uint32, buffer []byte) {
	layout := &d.layout

	switch layout.regionOf(sector) {
	case diskRegionBoot:
		copy(buffer, d.bootArea[sector*SectorSize:])
	case diskRegionFAT:
		d.copyFATSector(sector-layout.FATStart, buffer)
	case diskRegionBackupFAT:
		d.copyFATSector(sector-layout.FATStart-layout.SectorsPerFAT, buffer)
	case diskRegionDirectory:
		d.copyDirectorySector(sector-layout.RootStart, buffer)
	case diskRegionData:
		d.readDataSector(sector, buffer)
	default:
		zero(buffer)
	}
}

func (d *Disk) copyFATSector(index uint32, buffer []byte) {
	start := index * SectorSize
	copy(buffer, d.fat.Bytes()[start:start+SectorSize])
}

func (d *Disk) copyDirectorySector(index uint32, buffer []byte) {
	entries := d.dirents.Items()[index*direntsPerSector : (index+1)*direntsPerSector]
	for i := range entries {
		copy(buffer[i*fat.DirentSize:], entries[i][:])
	}
}

func (d *Disk) readDataSector(sector uint32, buffer []byte) {
	cluster, inCluster := d.layout.ClusterOfSector(sector)
	start := inCluster * SectorSize

	if data := d.commits.get(cluster); data != nil {
		copy(buffer, data[start:start+SectorSize])
		return
	}

	if !d.cache.valid || d.cache.cluster != cluster {
		mi := d.mappings.find(cluster)
		if mi < 0 || d.mappings.At(mi).Mode == ModeDirectory {
			zero(buffer)
			return
		}

		if d.cache.data == nil {
			d.cache.data = make([]byte, d.layout.ClusterSize)
		}
		err := d.readCluster(mi, cluster, d.cache.data)
		if err != nil {
			d.debug(
				"host read failed, returning zeros",
				slog.Uint64("cluster", uint64(cluster)),
				slog.String("error", err.Error()))
			d.invalidateReadCache()
			zero(buffer)
			return
		}
		d.cache.cluster = cluster
		d.cache.valid = true
	}
	copy(buffer, d.cache.data[start:start+SectorSize])
}

func zero(buffer []byte) {
	for i := range buffer {
		buffer[i] = 0
	}
}
