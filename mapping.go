package vvfat

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dargueta/vvfat/array"
	"github.com/dargueta/vvfat/errors"
	"github.com/dargueta/vvfat/fat"
)

// Mode is the state of a mapping.
type Mode int

const (
	// ModeNormal mappings back committed file contents with a host file.
	ModeNormal Mode = iota
	// ModeUndefined mappings exist only while the directory walk runs, before
	// clusters are assigned.
	ModeUndefined
	// ModeModified mappings were created or changed by the guest and haven't
	// been committed to the host yet.
	ModeModified
	// ModeDeleted mappings belong to a file whose directory entry was freed.
	// The host file is removed once all of them are gone.
	ModeDeleted
	// ModeDirectory mappings hold a directory's entries.
	ModeDirectory
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeUndefined:
		return "undefined"
	case ModeModified:
		return "modified"
	case ModeDeleted:
		return "deleted"
	case ModeDirectory:
		return "directory"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// region is one of the three areas of the disk the guest can write to.
type region uint8

const (
	regionFAT region = 1 << iota
	regionDirectory
	regionData
)

// regionSet records which regions the guest has written since a mapping was
// last committed.
type regionSet uint8

func (s regionSet) has(r region) bool {
	return uint8(s)&uint8(r) != 0
}

func (s *regionSet) add(r region) {
	*s |= regionSet(r)
}

func (s regionSet) String() string {
	var parts []string
	if s.has(regionFAT) {
		parts = append(parts, "fat")
	}
	if s.has(regionDirectory) {
		parts = append(parts, "directory")
	}
	if s.has(regionData) {
		parts = append(parts, "data")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Mapping ties a contiguous run of clusters [Begin, End) to a host file or
// directory.
//
// A file whose chain isn't contiguous is split into several mappings with the
// same DirIndex; Offset gives the position of Begin within the file, in
// clusters.
type Mapping struct {
	Begin  fat.ClusterID
	End    fat.ClusterID
	Offset uint32
	Path   string
	// DirIndex is the index of the short directory entry describing the file
	// or directory. It's -1 for the root directory.
	DirIndex int
	// DirStart is the index of the first directory entry stored in the
	// directory's clusters. Only used for directories.
	DirStart int
	Mode     Mode

	written regionSet
	resized bool
}

func (m *Mapping) isFile() bool {
	return m.Mode != ModeDirectory
}

// isLiveFile determines if this mapping belongs to a file that still has a
// directory entry.
func (m *Mapping) isLiveFile() bool {
	return m.Mode == ModeNormal || m.Mode == ModeModified || m.Mode == ModeUndefined
}

func (m *Mapping) length() uint32 {
	return m.End - m.Begin
}

// mappingTable is the list of mappings, sorted by Begin, with no two mappings
// sharing a cluster.
type mappingTable struct {
	items *array.Array[Mapping]
}

func newMappingTable() mappingTable {
	return mappingTable{items: array.New[Mapping](0)}
}

func (t mappingTable) Len() int {
	return t.items.Len()
}

func (t mappingTable) At(index int) *Mapping {
	return t.items.At(index)
}

// find returns the index of the mapping containing `cluster`, or -1.
func (t mappingTable) find(cluster fat.ClusterID) int {
	items := t.items.Items()
	index := sort.Search(len(items), func(i int) bool {
		return items[i].End > cluster
	})
	if index < len(items) && items[index].Begin <= cluster {
		return index
	}
	return -1
}

// insert adds `mapping` at the position that keeps the table sorted and
// returns its index.
func (t mappingTable) insert(mapping Mapping) (int, error) {
	items := t.items.Items()
	index := sort.Search(len(items), func(i int) bool {
		return items[i].Begin > mapping.Begin
	})

	slot, err := t.items.Insert(index, 1)
	if err != nil {
		return -1, err
	}
	*slot = mapping
	return index, nil
}

func (t mappingTable) remove(index int) error {
	return t.items.Remove(index)
}

// fileMappings returns the indices of the live mappings of the file described
// by directory entry `dirIndex`, in table order.
func (t mappingTable) fileMappings(dirIndex int) []int {
	var indices []int
	for i, m := range t.items.Items() {
		if m.DirIndex == dirIndex && m.isLiveFile() {
			indices = append(indices, i)
		}
	}
	return indices
}

// head returns the index of the first mapping of a live file, or -1.
func (t mappingTable) head(dirIndex int) int {
	for i, m := range t.items.Items() {
		if m.DirIndex == dirIndex && m.isLiveFile() && m.Offset == 0 {
			return i
		}
	}
	return -1
}

// directoryByIndex returns the index of the directory mapping whose directory
// entry is at `dirIndex`, or -1.
func (t mappingTable) directoryByIndex(dirIndex int) int {
	for i, m := range t.items.Items() {
		if m.Mode == ModeDirectory && m.DirIndex == dirIndex {
			return i
		}
	}
	return -1
}

// snapshot copies the table.
func (t mappingTable) snapshot() []Mapping {
	items := t.items.Items()
	out := make([]Mapping, len(items))
	copy(out, items)
	return out
}

// checkSorted returns an error if the table isn't sorted or has overlapping
// mappings.
func (t mappingTable) checkSorted() error {
	items := t.items.Items()
	for i := 1; i < len(items); i++ {
		if items[i].Begin < items[i-1].End {
			return errors.ErrFileSystemCorrupted.WithMessage(
				fmt.Sprintf(
					"mapping %d [%d, %d) starts before mapping %d [%d, %d) ends",
					i,
					items[i].Begin,
					items[i].End,
					i-1,
					items[i-1].Begin,
					items[i-1].End))
		}
	}
	return nil
}
