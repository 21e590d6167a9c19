package vvfat

import (
	"fmt"

	"github.com/boljen/go-bitmap"
	"github.com/hashicorp/go-multierror"

	"github.com/dargueta/vvfat/errors"
	"github.com/dargueta/vvfat/fat"
)

// CheckConsistency verifies the invariants tying the mapping table, the FAT,
// the directory entries, and the pending commits together. It returns every
// violation found, each an [errors.ErrFileSystemCorrupted], or nil.
//
// Only committed state is checked. Files with uncommitted changes are expected
// to disagree with their directory entries for a while.
func (d *Disk) CheckConsistency() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	return d.checkConsistency()
}

func corrupted(format string, args ...any) error {
	return errors.ErrFileSystemCorrupted.WithMessage(fmt.Sprintf(format, args...))
}

// appliedEntry returns the FAT entry for `cluster` as the mappings see it. A
// 12-bit entry with only one half written still has its old value.
func (d *Disk) appliedEntry(cluster fat.ClusterID) uint32 {
	if _, held := d.halfWritten[cluster]; held {
		return d.applied.Get(cluster)
	}
	return d.fat.Get(cluster)
}

func (d *Disk) checkConsistency() error {
	var result *multierror.Error

	err := d.mappings.checkSorted()
	if err != nil {
		result = multierror.Append(result, err)
	}

	limit := d.layout.ClusterLimit()
	owned := bitmap.New(int(limit))
	chainEnds := map[int]int{}
	settled := map[int]bool{}

	items := d.mappings.items.Items()
	for i := 1; i < len(items); i++ {
		m := &items[i]
		if m.Begin >= m.End || m.End > limit || m.Begin < fat.FirstDataCluster {
			result = multierror.Append(
				result,
				corrupted("mapping %d of %q has invalid range [%d, %d)", i, m.Path, m.Begin, m.End))
			continue
		}

		for c := m.Begin; c < m.End; c++ {
			if owned.Get(int(c)) {
				result = multierror.Append(
					result,
					corrupted("cluster %d is claimed twice, last by %q", c, m.Path))
			}
			owned.Set(int(c), true)
		}

		if m.isFile() && m.Mode != ModeDeleted {
			if _, ok := settled[m.DirIndex]; !ok {
				settled[m.DirIndex] = true
			}
			if m.Mode != ModeNormal {
				settled[m.DirIndex] = false
			}
		}

		if m.isLiveFile() {
			if m.DirIndex < 0 || m.DirIndex >= d.dirents.Len() {
				result = multierror.Append(
					result,
					corrupted("mapping %d of %q refers to missing entry %d", i, m.Path, m.DirIndex))
				continue
			}
			entry := d.dirents.At(m.DirIndex)
			if !entry.IsLive() || entry.IsDirectory() {
				result = multierror.Append(
					result,
					corrupted(
						"mapping %d of %q refers to entry %d, which isn't a live file",
						i,
						m.Path,
						m.DirIndex))
			}
		}

		if m.Mode != ModeNormal && m.Mode != ModeDirectory {
			continue
		}

		for c := m.Begin; c < m.End-1; c++ {
			if next := d.appliedEntry(c); next != c+1 {
				result = multierror.Append(
					result,
					corrupted("FAT entry of cluster %d in %q is %#x, not %d", c, m.Path, next, c+1))
			}
		}

		last := d.appliedEntry(m.End - 1)
		switch {
		case d.fat.IsEndOfChain(last):
			chainEnds[m.DirIndex]++
		case m.Mode == ModeDirectory:
			result = multierror.Append(
				result,
				corrupted("chain of directory %q doesn't end at cluster %d", m.Path, m.End-1))
		case !d.fat.IsNextCluster(last):
			result = multierror.Append(
				result,
				corrupted("chain of %q breaks at cluster %d with %#x", m.Path, m.End-1, last))
		default:
			successor := d.mappings.find(last)
			if successor < 0 {
				result = multierror.Append(
					result,
					corrupted("chain of %q continues into unmapped cluster %d", m.Path, last))
				break
			}
			s := &items[successor]
			if s.DirIndex != m.DirIndex || s.Begin != last || s.Offset != m.Offset+m.length() {
				result = multierror.Append(
					result,
					corrupted(
						"chain of %q continues into cluster %d, which doesn't follow it in %q",
						m.Path,
						last,
						s.Path))
			}
		}

		if m.Mode == ModeNormal {
			for c := m.Begin; c < m.End; c++ {
				if d.commits.has(c) {
					result = multierror.Append(
						result,
						corrupted("committed file %q still has pending data for cluster %d", m.Path, c))
				}
			}
		}

		entry := d.dirents.At(m.DirIndex)
		if m.Mode == ModeDirectory {
			if !entry.IsDirectory() || entry.FirstCluster() != m.Begin {
				result = multierror.Append(
					result,
					corrupted("entry %d doesn't describe directory %q", m.DirIndex, m.Path))
			}
		} else if m.Offset == 0 && entry.FirstCluster() != m.Begin {
			result = multierror.Append(
				result,
				corrupted(
					"entry %d of %q starts at cluster %d, mapping starts at %d",
					m.DirIndex,
					m.Path,
					entry.FirstCluster(),
					m.Begin))
		}
	}

	for dirIndex, isSettled := range settled {
		if isSettled && chainEnds[dirIndex] != 1 {
			result = multierror.Append(
				result,
				corrupted("file at entry %d has %d chain ends", dirIndex, chainEnds[dirIndex]))
		}
	}

	return result.ErrorOrNil()
}
