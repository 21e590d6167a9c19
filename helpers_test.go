package vvfat

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/vvfat/fat"
	vvfattest "github.com/dargueta/vvfat/testing"
)

const hostRoot = "/host"

// openTestDisk builds `tree` in memory and opens it with `spec`, which is
// everything before the directory, e.g. "fatrw:floppy:".
func openTestDisk(
	t *testing.T, spec string, tree vvfattest.HostTree, options *Options,
) (*Disk, afero.Fs) {
	fs := vvfattest.BuildHostTree(t, hostRoot, tree)
	if options == nil {
		options = &Options{CheckConsistency: true}
	}

	disk, err := Open(fs, spec+hostRoot, options)
	require.NoError(t, err)
	t.Cleanup(func() { _ = disk.Close() })
	return disk, fs
}

func openWritableFloppy(t *testing.T, tree vvfattest.HostTree) (*Disk, afero.Fs) {
	return openTestDisk(t, "fatrw:floppy:", tree, nil)
}

func readSector(t *testing.T, disk *Disk, sector uint32) []byte {
	return vvfattest.ReadSectors(t, disk, sector, 1)
}

// readFAT returns a copy of the primary FAT as the guest sees it.
func readFAT(t *testing.T, disk *Disk) *fat.Table {
	layout := disk.Layout()
	raw := vvfattest.ReadSectors(t, disk, layout.FATStart, layout.SectorsPerFAT)

	table, err := fat.NewTable(layout.FATType, len(raw))
	require.NoError(t, err)
	copy(table.Bytes(), raw)
	return table
}

// writeFATEntries changes the given entries of the FAT the way a guest would:
// the whole primary FAT, then the backup.
func writeFATEntries(t *testing.T, disk *Disk, entries map[fat.ClusterID]uint32) error {
	layout := disk.Layout()
	table := readFAT(t, disk)
	for cluster, value := range entries {
		table.Set(cluster, value)
	}

	err := disk.WriteSectors(layout.FATStart, table.Bytes())
	if err != nil {
		return err
	}
	return disk.WriteSectors(layout.FATStart+layout.SectorsPerFAT, table.Bytes())
}

// writeFATEntriesBySector is like [writeFATEntries] but writes one sector per
// call, the way Linux flushes its FAT buffers.
func writeFATEntriesBySector(t *testing.T, disk *Disk, entries map[fat.ClusterID]uint32) error {
	layout := disk.Layout()
	table := readFAT(t, disk)
	for cluster, value := range entries {
		table.Set(cluster, value)
	}

	raw := table.Bytes()
	for _, start := range []uint32{layout.FATStart, layout.FATStart + layout.SectorsPerFAT} {
		for i := uint32(0); i < layout.SectorsPerFAT; i++ {
			err := disk.WriteSectors(start+i, raw[i*SectorSize:(i+1)*SectorSize])
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// readDirent returns directory entry `index` as the guest sees it.
func readDirent(t *testing.T, disk *Disk, index int) fat.Dirent {
	layout := disk.Layout()
	sector := readSector(t, disk, layout.RootStart+uint32(index/direntsPerSector))

	var entry fat.Dirent
	offset := (index % direntsPerSector) * fat.DirentSize
	copy(entry[:], sector[offset:offset+fat.DirentSize])
	return entry
}

// writeDirents stores `entries` starting at directory entry `index`, which
// must all be in the same sector.
func writeDirents(t *testing.T, disk *Disk, index int, entries ...fat.Dirent) error {
	layout := disk.Layout()
	sectorNumber := layout.RootStart + uint32(index/direntsPerSector)
	sector := readSector(t, disk, sectorNumber)

	offset := (index % direntsPerSector) * fat.DirentSize
	require.LessOrEqual(t, offset+len(entries)*fat.DirentSize, SectorSize)
	for i := range entries {
		copy(sector[offset+i*fat.DirentSize:], entries[i][:])
	}
	return disk.WriteSectors(sectorNumber, sector)
}

// shortNameOf pads `name`, which must already be in "NAME    EXT" form, to
// eleven bytes with spaces.
func shortNameOf(name string) [11]byte {
	raw := [11]byte{' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
	copy(raw[:], name)
	return raw
}

func newFileEntry(name string, begin fat.ClusterID, size uint32) fat.Dirent {
	var entry fat.Dirent
	entry.SetShortName(shortNameOf(name))
	entry.SetAttributes(fat.AttrArchived)
	entry.SetFirstCluster(begin)
	entry.SetSize(size)
	return entry
}

// writeGuestCluster writes `data`, padded with zeros, to the sectors of `cluster`.
func writeGuestCluster(t *testing.T, disk *Disk, cluster fat.ClusterID, data []byte) error {
	layout := disk.Layout()
	require.LessOrEqual(t, len(data), int(layout.ClusterSize))
	buffer := make([]byte, layout.ClusterSize)
	copy(buffer, data)
	return disk.WriteSectors(layout.SectorOfCluster(cluster), buffer)
}

func readGuestCluster(t *testing.T, disk *Disk, cluster fat.ClusterID) []byte {
	layout := disk.Layout()
	return vvfattest.ReadSectors(
		t, disk, layout.SectorOfCluster(cluster), layout.SectorsPerCluster)
}
