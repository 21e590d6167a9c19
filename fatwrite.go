package vvfat

import (
	"bytes"
	"fmt"

	"github.com/dargueta/vvfat/errors"
	"github.com/dargueta/vvfat/fat"
)

func (d *Disk) writeBackupFAT(index uint32, data []byte) error {
	start := index * SectorSize
	if !bytes.Equal(d.fat.Bytes()[start:start+SectorSize], data) {
		return ErrBackupFATMismatch.WithMessage(fmt.Sprintf("FAT sector %d", index))
	}
	return nil
}

// entryHalves records which bytes of a straddling 12-bit entry have been
// written.
type entryHalves uint8

const (
	lowHalf entryHalves = 1 << iota
	highHalf
	bothHalves = lowHalf | highHalf
)

// entryHalvesIn returns the bytes of the entry for `cluster` that fall inside
// [start, end) of the table.
func (d *Disk) entryHalvesIn(cluster fat.ClusterID, start, end int) entryHalves {
	bits := d.fat.Bits()
	first := int(cluster) * bits / 8
	last := (int(cluster)*bits + bits - 1) / 8

	var halves entryHalves
	if first >= start && first < end {
		halves |= lowHalf
	}
	if last >= start && last < end {
		halves |= highHalf
	}
	return halves
}

// writeFAT copies `data` into the primary FAT at byte `offset` and updates the
// mappings for every entry whose value differs from the one last applied.
// An entry split across two writes is held back until both halves arrive.
func (d *Disk) writeFAT(offset int, data []byte) error {
	table := d.fat.Bytes()
	end := offset + len(data)
	first, last, ok := d.fat.ClustersInByteRange(offset, end)
	if !ok {
		copy(table[offset:], data)
		return nil
	}

	saved := make([]byte, len(data))
	copy(saved, table[offset:end])
	copy(table[offset:end], data)

	limit := d.layout.ClusterLimit()
	held := make(map[fat.ClusterID]entryHalves)
	var completed []fat.ClusterID
	var changed []fat.ClusterID

	reject := func(err error) error {
		copy(table[offset:end], saved)
		for _, c := range completed {
			d.fat.Set(c, d.applied.Get(c))
		}
		return err
	}

	for c := first; c <= last; c++ {
		// Entries 0 and 1 are reserved. Guests use entry 1 for dirty flags.
		if c < fat.FirstDataCluster || c >= limit {
			continue
		}

		halves := d.entryHalvesIn(c, offset, end)
		if halves != bothHalves {
			halves |= d.halfWritten[c]
			if halves != bothHalves {
				held[c] = halves
				continue
			}
			completed = append(completed, c)
		}

		value := d.fat.Get(c)
		if value == d.applied.Get(c) {
			continue
		}
		if c < d.layout.FirstFileCluster {
			return reject(ErrDirectoryChainChange.WithMessage(fmt.Sprintf("cluster %d", c)))
		}
		if d.fat.IsNextCluster(value) && value >= limit {
			return reject(errors.ErrArgumentOutOfRange.WithMessage(
				fmt.Sprintf(
					"cluster %d points to %d, disk only has %d clusters",
					c,
					value,
					d.layout.ClusterCount)))
		}
		changed = append(changed, c)
	}

	for c := first; c <= last; c++ {
		delete(d.halfWritten, c)
	}
	for c, halves := range held {
		d.halfWritten[c] = halves
	}

	for _, c := range changed {
		err := d.applyFATEntry(c)
		if err != nil {
			return err
		}
		d.applied.Set(c, d.fat.Get(c))
	}
	return nil
}

func (d *Disk) applyFATEntry(cluster fat.ClusterID) error {
	value := d.fat.Get(cluster)
	mi := d.mappings.find(cluster)

	switch {
	case d.fat.IsNextCluster(value):
		return d.linkCluster(mi, cluster, value)
	case d.fat.IsEndOfChain(value):
		return d.endChainAt(mi, cluster)
	default:
		return d.freeCluster(mi, cluster)
	}
}

func (d *Disk) isClusterFree(cluster fat.ClusterID) bool {
	value := d.appliedEntry(cluster)
	return !d.fat.IsNextCluster(value) && !d.fat.IsEndOfChain(value)
}

// freeCluster handles a FAT entry set to free, bad, or reserved.
func (d *Disk) freeCluster(mi int, cluster fat.ClusterID) error {
	err := d.commits.drop(cluster)
	if err != nil {
		return err
	}
	if mi < 0 {
		return nil
	}

	m := d.mappings.At(mi)
	switch {
	case m.Mode == ModeDeleted:
		return d.reapDeleted(m.Path)
	case m.isLiveFile():
		dirIndex := m.DirIndex
		if cluster == m.Begin {
			err = d.mappings.remove(mi)
			if err != nil {
				return err
			}
		} else {
			m.End = cluster
			m.Mode = ModeModified
			m.written.add(regionFAT)
		}
		return d.commitIfConsistent(dirIndex)
	}
	return nil
}

// endChainAt handles a FAT entry set to the end-of-chain marker.
func (d *Disk) endChainAt(mi int, cluster fat.ClusterID) error {
	if mi < 0 {
		return nil
	}
	m := d.mappings.At(mi)
	if !m.isLiveFile() {
		return nil
	}

	m.End = cluster + 1
	m.Mode = ModeModified
	m.written.add(regionFAT)
	return d.commitIfConsistent(m.DirIndex)
}

// linkCluster handles a FAT entry pointing `cluster` at `next`.
func (d *Disk) linkCluster(mi int, cluster, next fat.ClusterID) error {
	if mi < 0 {
		return nil
	}
	m := d.mappings.At(mi)
	if !m.isLiveFile() {
		return nil
	}
	dirIndex := m.DirIndex
	path := m.Path

	if next >= m.Begin && next <= cluster {
		return ErrChainConflict.WithMessage(
			fmt.Sprintf("cluster %d of %q points back to %d", cluster, path, next))
	}
	if next < d.layout.FirstFileCluster {
		return ErrChainConflict.WithMessage(
			fmt.Sprintf("cluster %d of %q points into the directories", cluster, path))
	}

	nextOffset := m.Offset + (cluster + 1 - m.Begin)
	if next == cluster+1 && next < m.End {
		m.Mode = ModeModified
		m.written.add(regionFAT)
		return d.commitIfConsistent(dirIndex)
	}

	// A target inside the rest of this mapping is about to be cut off, so it
	// counts as unowned.
	owner := d.mappings.find(next)
	if owner == mi {
		owner = -1
	}
	if owner >= 0 {
		o := d.mappings.At(owner)
		if o.DirIndex != dirIndex || !o.isLiveFile() || o.Begin != next || o.Offset != nextOffset {
			return ErrChainConflict.WithMessage(
				fmt.Sprintf(
					"cluster %d of %q points to %d, which belongs to %q",
					cluster,
					path,
					next,
					o.Path))
		}
	}

	m.End = cluster + 1
	m.Mode = ModeModified
	m.written.add(regionFAT)

	if owner >= 0 {
		if next == cluster+1 {
			o := *d.mappings.At(owner)
			m.End = o.End
			m.written |= o.written
			m.resized = m.resized || o.resized
			err := d.mappings.remove(owner)
			if err != nil {
				return err
			}
		}
		return d.commitIfConsistent(dirIndex)
	}

	if next == cluster+1 {
		m.End++
	} else {
		_, err := d.mappings.insert(Mapping{
			Begin:    next,
			End:      next + 1,
			Offset:   nextOffset,
			Path:     path,
			DirIndex: dirIndex,
			Mode:     ModeModified,
			written:  regionSet(regionFAT),
		})
		if err != nil {
			return err
		}
	}

	err := d.followChain(next)
	if err != nil {
		return err
	}
	return d.commitIfConsistent(dirIndex)
}

// followChain extends the mapping ending at `cluster` along the FAT until the
// chain ends or reaches a cluster that's already owned.
func (d *Disk) followChain(cluster fat.ClusterID) error {
	limit := d.layout.ClusterLimit()

	for steps := uint32(0); steps < d.layout.ClusterCount; steps++ {
		mi := d.mappings.find(cluster)
		if mi < 0 {
			return nil
		}
		next := d.appliedEntry(cluster)
		if !d.fat.IsNextCluster(next) || next >= limit || next < d.layout.FirstFileCluster {
			return nil
		}
		if d.mappings.find(next) >= 0 {
			return nil
		}

		m := d.mappings.At(mi)
		if next == cluster+1 && m.End == next {
			m.End++
		} else {
			_, err := d.mappings.insert(Mapping{
				Begin:    next,
				End:      next + 1,
				Offset:   m.Offset + (cluster + 1 - m.Begin),
				Path:     m.Path,
				DirIndex: m.DirIndex,
				Mode:     ModeModified,
				written:  regionSet(regionFAT),
			})
			if err != nil {
				return err
			}
		}
		cluster = next
	}
	return nil
}
