package vvfat

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/dargueta/vvfat/errors"
	"github.com/dargueta/vvfat/fat"
)

// maxHostFileSize is the largest file a FAT directory entry can describe.
const maxHostFileSize = 0xFFFFFFFF

// directoryWalker builds the directory entries and the mapping table from the
// host tree. It runs in two passes: enumerate appends directory entries in
// depth-first order and leaves directory mappings almost sorted, then
// sortDirectories puts them in the order their entries were written.
type directoryWalker struct {
	d                 *Disk
	entriesPerCluster int
	minRootEntries    int
	// firstFileMapping is the index of the first file mapping. Directory
	// mappings are inserted before it, file mappings appended after it.
	firstFileMapping int
	rootEntries      int
}

func newDirectoryWalker(d *Disk, clusterSize uint32, minRootEntries uint) *directoryWalker {
	return &directoryWalker{
		d:                 d,
		entriesPerCluster: int(clusterSize) / fat.DirentSize,
		minRootEntries:    int(minRootEntries),
		firstFileMapping:  1,
	}
}

// clustersForSize returns the number of clusters needed to hold `size` bytes.
func clustersForSize(size, clusterSize uint32) uint32 {
	return uint32((uint64(size) + uint64(clusterSize) - 1) / uint64(clusterSize))
}

func roundUp(value, multiple int) int {
	return (value + multiple - 1) / multiple * multiple
}

// enumerate synthesizes the entries of the root directory and everything
// below it. The root mapping must already be at index 0 of the table, and the
// volume label at directory entry 0.
func (w *directoryWalker) enumerate() error {
	return w.readDirectory(0)
}

// readDirectory appends the entries of the directory described by mapping
// `mi`, pads them, and then descends into its subdirectories. Until the walk
// is finalized, a directory mapping's End holds its size in clusters and a
// file mapping's End holds its size in bytes.
func (w *directoryWalker) readDirectory(mi int) error {
	d := w.d
	isRoot := mi == 0

	// The root's DirStart stays 0 since the volume label is part of it.
	current := d.mappings.At(mi)
	dirPath := current.Path
	if !isRoot {
		current.DirStart = d.dirents.Len()
	}
	dirStart := current.DirStart

	if !isRoot {
		err := w.addDotEntries(dirPath)
		if err != nil {
			return err
		}
	}

	infos, err := afero.ReadDir(d.fs, dirPath)
	if err != nil {
		if isRoot {
			return errors.ErrIOFailed.Wrap(err)
		}
		d.warn(
			"skipping unreadable directory",
			slog.String("path", dirPath),
			slog.String("error", err.Error()))
		infos = nil
	}

	childStart := w.firstFileMapping
	for _, info := range infos {
		hostPath := filepath.Join(dirPath, info.Name())

		if !info.IsDir() && !info.Mode().IsRegular() {
			d.warn("skipping special file", slog.String("path", hostPath))
			continue
		}
		if !info.IsDir() && info.Size() > maxHostFileSize {
			d.warn(
				"skipping file too large for FAT",
				slog.String("path", hostPath),
				slog.Int64("size", info.Size()))
			continue
		}

		index, err := w.addEntry(dirStart, info)
		if err != nil {
			return err
		}

		if info.IsDir() {
			slot, err := d.mappings.items.Insert(w.firstFileMapping, 1)
			if err != nil {
				return err
			}
			*slot = Mapping{Path: hostPath, DirIndex: index, Mode: ModeDirectory}
			w.firstFileMapping++
		} else if info.Size() > 0 {
			slot, err := d.mappings.items.Append()
			if err != nil {
				return err
			}
			*slot = Mapping{
				End:      fat.ClusterID(info.Size()),
				Path:     hostPath,
				DirIndex: index,
				Mode:     ModeUndefined,
			}
		}
	}
	childEnd := w.firstFileMapping

	// Pad to a full cluster, then leave one more free cluster of entries for
	// files the guest creates.
	used := d.dirents.Len() - dirStart
	padded := roundUp(used, w.entriesPerCluster) + w.entriesPerCluster
	if isRoot {
		minimum := roundUp(w.minRootEntries, w.entriesPerCluster)
		if minimum > padded {
			padded = minimum
		}
		w.rootEntries = padded
	} else {
		d.mappings.At(mi).End = fat.ClusterID(padded / w.entriesPerCluster)
	}

	_, err = d.dirents.GetOrGrow(dirStart + padded - 1)
	if err != nil {
		return err
	}

	for i := childStart; i < childEnd; i++ {
		err = w.readDirectory(i)
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *directoryWalker) addDotEntries(dirPath string) error {
	info, err := w.d.fs.Stat(dirPath)
	if err != nil {
		return errors.ErrIOFailed.Wrap(err)
	}

	for _, name := range [][11]byte{fat.DotName, fat.DotDotName} {
		entry, err := w.d.dirents.Append()
		if err != nil {
			return err
		}
		entry.SetShortName(name)
		entry.SetAttributes(fat.AttrDirectory)
		setEntryTimes(entry, info)
	}
	return nil
}

// addEntry appends the long name fragments and the short entry for `info`,
// and returns the index of the short entry. `dirStart` is the index of the
// first entry of the directory, used to keep short names unique.
func (w *directoryWalker) addEntry(dirStart int, info os.FileInfo) (int, error) {
	dirents := w.d.dirents

	shortName, err := fat.ShortName(info.Name(), func(name [11]byte) bool {
		for _, entry := range dirents.Items()[dirStart:] {
			if !entry.IsLongName() && entry.ShortName() == name {
				return true
			}
		}
		return false
	})
	if err != nil {
		return -1, err
	}

	fragments, err := fat.LongNameEntries(info.Name(), fat.Checksum(shortName))
	if err != nil {
		return -1, err
	}
	for _, fragment := range fragments {
		slot, err := dirents.Append()
		if err != nil {
			return -1, err
		}
		*slot = fragment
	}

	entry, err := dirents.Append()
	if err != nil {
		return -1, err
	}
	entry.SetShortName(shortName)
	if info.IsDir() {
		entry.SetAttributes(fat.AttrDirectory)
	} else {
		entry.SetAttributes(fat.AttrArchived)
		entry.SetSize(uint32(info.Size()))
	}
	setEntryTimes(entry, info)
	return dirents.Len() - 1, nil
}

func setEntryTimes(entry *fat.Dirent, info os.FileInfo) {
	created, accessed, modified := hostTimes(info)
	entry.SetCreatedAt(created)
	entry.SetLastAccessedAt(accessed)
	entry.SetLastModifiedAt(modified)
}

// sortDirectories orders the directory mappings by the position of their
// entries. Enumeration leaves a subdirectory's children after its later
// siblings; an insertion sort rolls each of them back into place.
func (w *directoryWalker) sortDirectories() error {
	items := w.d.mappings.items
	for i := 2; i < w.firstFileMapping; i++ {
		target := i
		dirStart := items.At(i).DirStart
		for target > 1 && items.At(target-1).DirStart > dirStart {
			target--
		}
		if target != i {
			err := items.Roll(target, i, 1)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// finalize assigns clusters to every mapping, back-fills the starting clusters
// of the directory entries, and links the FAT chains.
func (w *directoryWalker) finalize() error {
	d := w.d
	layout := &d.layout
	epc := int(layout.entriesPerCluster())
	cluster := fat.FirstDataCluster

	for i := 1; i < w.firstFileMapping; i++ {
		m := d.mappings.At(i)
		expected := layout.RootEntries + (cluster-fat.FirstDataCluster)*uint32(epc)
		if uint32(m.DirStart) != expected {
			return errors.ErrFileSystemCorrupted.WithMessage(
				fmt.Sprintf(
					"entries of %q start at %d, expected %d",
					m.Path,
					m.DirStart,
					expected))
		}

		m.Begin = cluster
		m.End = cluster + m.End
		cluster = m.End

		// The root's Begin is 0, which is what ".." holds for its children.
		parentBegin := fat.ClusterID(0)
		if parent := d.directoryOf(m.DirIndex); parent >= 0 {
			parentBegin = d.mappings.At(parent).Begin
		}

		d.dirents.At(m.DirIndex).SetFirstCluster(m.Begin)
		d.dirents.At(m.DirStart).SetFirstCluster(m.Begin)
		d.dirents.At(m.DirStart + 1).SetFirstCluster(parentBegin)
		d.fat.LinkChain(m.Begin, m.End)
	}

	if cluster != layout.FirstFileCluster {
		return errors.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf(
				"directories end at cluster %d, expected %d",
				cluster,
				layout.FirstFileCluster))
	}

	for i := w.firstFileMapping; i < d.mappings.Len(); i++ {
		m := d.mappings.At(i)
		clusters := clustersForSize(m.End, layout.ClusterSize)
		if uint64(cluster)+uint64(clusters) > uint64(layout.ClusterLimit()) {
			return errors.ErrNoSpaceOnDevice.WithMessage(
				fmt.Sprintf(
					"%q doesn't fit, disk only has %d clusters",
					m.Path,
					layout.ClusterCount))
		}

		m.Begin = cluster
		m.End = cluster + clusters
		m.Mode = ModeNormal
		cluster = m.End

		d.dirents.At(m.DirIndex).SetFirstCluster(m.Begin)
		d.fat.LinkChain(m.Begin, m.End)
	}
	return nil
}
