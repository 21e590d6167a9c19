package vvfat

import (
	"fmt"

	"github.com/dargueta/vvfat/errors"
)

// writeSectors dispatches each sector of `data` to the handler for its region.
// Consecutive sectors of the primary FAT are handled as one write so that
// entries straddling a sector boundary are seen whole.
func (d *Disk) writeSectors(sector uint32, data []byte) error {
	d.invalidateReadCache()
	layout := &d.layout
	count := uint32(len(data) / SectorSize)

	for i := uint32(0); i < count; {
		current := sector + i
		chunk := data[i*SectorSize : (i+1)*SectorSize]
		var err error

		switch layout.regionOf(current) {
		case diskRegionBoot:
			return ErrBootAreaWrite.WithMessage(fmt.Sprintf("sector %d", current))
		case diskRegionFAT:
			run := uint32(1)
			for i+run < count && layout.regionOf(current+run) == diskRegionFAT {
				run++
			}
			err = d.writeFAT(
				int(current-layout.FATStart)*SectorSize,
				data[i*SectorSize:(i+run)*SectorSize])
			if err != nil {
				return err
			}
			i += run
			continue
		case diskRegionBackupFAT:
			err = d.writeBackupFAT(current-layout.FATStart-layout.SectorsPerFAT, chunk)
		case diskRegionDirectory:
			err = d.writeDirectorySector(current-layout.RootStart, chunk)
		case diskRegionData:
			err = d.writeDataSector(current, chunk)
		default:
			return errors.ErrArgumentOutOfRange.WithMessage(
				fmt.Sprintf(
					"sector %d is past the end of the disk (%d sectors)",
					current,
					layout.TotalSectors))
		}
		if err != nil {
			return err
		}
		i++
	}
	return nil
}

func (d *Disk) writeDataSector(sector uint32, data []byte) error {
	cluster, inCluster := d.layout.ClusterOfSector(sector)

	mi := d.mappings.find(cluster)
	if mi >= 0 && d.mappings.At(mi).Mode == ModeDeleted {
		return ErrDeletedCluster.WithMessage(
			fmt.Sprintf("cluster %d of %q", cluster, d.mappings.At(mi).Path))
	}

	buffer, err := d.pendingCommitFor(cluster)
	if err != nil {
		return err
	}
	copy(buffer[inCluster*SectorSize:], data)

	if mi < 0 {
		return nil
	}
	m := d.mappings.At(mi)
	m.written.add(regionData)
	if m.Mode == ModeNormal {
		m.Mode = ModeModified
	}
	return d.commitIfConsistent(m.DirIndex)
}
