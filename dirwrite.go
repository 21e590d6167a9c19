package vvfat

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dargueta/vvfat/errors"
	"github.com/dargueta/vvfat/fat"
)

// directoryOf returns the index of the directory mapping whose entries include
// directory entry `index`: 0 for the root, or -1 if there's none.
func (d *Disk) directoryOf(index int) int {
	if index < 0 {
		return -1
	}
	if index < int(d.layout.RootEntries) {
		return 0
	}

	epc := int(d.layout.entriesPerCluster())
	for i := 1; i < d.mappings.Len(); i++ {
		m := d.mappings.At(i)
		if m.Mode != ModeDirectory {
			continue
		}
		if index >= m.DirStart && index < m.DirStart+int(m.End-m.Begin)*epc {
			return i
		}
	}
	return -1
}

// directoryBounds returns the range of directory entries belonging to the
// directory that holds entry `index`.
func (d *Disk) directoryBounds(index int) (int, int, error) {
	dir := d.directoryOf(index)
	if dir < 0 {
		return 0, 0, errors.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf("directory entry %d isn't in any directory", index))
	}
	if dir == 0 {
		return 0, int(d.layout.RootEntries), nil
	}
	m := d.mappings.At(dir)
	return m.DirStart, m.DirStart + int(m.End-m.Begin)*int(d.layout.entriesPerCluster()), nil
}

// entryPath returns the host path of an entry named `name` in the directory
// holding entry `index`.
func (d *Disk) entryPath(index int, name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\") {
		return "", errors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("%q can't be used as a host file name", name))
	}
	dir := d.directoryOf(index)
	if dir < 0 {
		return "", errors.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf("directory entry %d isn't in any directory", index))
	}
	return filepath.Join(d.mappings.At(dir).Path, name), nil
}

// pathOf returns the host path of the file or directory at entry `index`.
func (d *Disk) pathOf(index int) (string, error) {
	for _, m := range d.mappings.items.Items() {
		if m.DirIndex == index && (m.isLiveFile() || m.Mode == ModeDirectory) {
			return m.Path, nil
		}
	}

	lower, _, err := d.directoryBounds(index)
	if err != nil {
		return "", err
	}
	return d.entryPath(index, fat.EntryName(d.dirents.Items(), index, lower))
}

// writeDirectorySector stores a sector of directory entries and applies the
// creations, deletions, and modifications it contains.
func (d *Disk) writeDirectorySector(index uint32, data []byte) error {
	first := int(index) * direntsPerSector
	lower, upper, err := d.directoryBounds(first)
	if err != nil {
		return err
	}

	before := make([]fat.Dirent, upper-lower)
	copy(before, d.dirents.Items()[lower:upper])
	for k := 0; k < direntsPerSector; k++ {
		copy(d.dirents.At(first + k)[:], data[k*fat.DirentSize:])
	}
	after := d.dirents.Items()[lower:upper]

	touched := map[int]bool{}
	for i := first; i < first+direntsPerSector; i++ {
		old := &before[i-lower]
		current := &after[i-lower]
		if old.Equal(current) {
			continue
		}
		if !old.IsLongName() || !current.IsLongName() {
			touched[i] = true
		}
		if old.IsLongName() || current.IsLongName() {
			// A changed long name fragment changes the name of the short entry
			// following it.
			for _, view := range [][]fat.Dirent{before, after} {
				owner := i - lower
				for owner < len(view) && view[owner].IsLongName() {
					owner++
				}
				if owner < len(view) {
					touched[owner+lower] = true
				}
			}
		}
	}

	order := make([]int, 0, len(touched))
	for i := range touched {
		order = append(order, i)
	}
	sort.Ints(order)

	// Reject the whole sector before touching the host if any entry can't
	// be mapped back to it.
	for _, i := range order {
		err = d.checkDirectoryEntry(i, before, lower)
		if err != nil {
			copy(d.dirents.Items()[first:first+direntsPerSector], before[first-lower:])
			return err
		}
	}

	for _, i := range order {
		err = d.applyDirectoryEntry(i, before, lower)
		if err != nil {
			copy(d.dirents.Items()[first:first+direntsPerSector], before[first-lower:])
			return err
		}
	}
	return nil
}

// checkDirectoryEntry returns the error [Disk.applyDirectoryEntry] would
// fail with for reasons other than host I/O, without side effects.
func (d *Disk) checkDirectoryEntry(index int, before []fat.Dirent, lower int) error {
	old := before[index-lower]
	current := d.dirents.At(index)
	oldLive := old.IsLive()
	currentLive := current.IsLive()

	switch {
	case !oldLive && currentLive:
		name := fat.EntryName(d.dirents.Items(), index, lower)
		if current.IsDirectory() {
			if d.directoryStartingAt(current.FirstCluster()) < 0 {
				return ErrMkdirUnsupported.WithMessage(name)
			}
			return nil
		}
		return d.checkStartCluster(name, current.FirstCluster())
	case oldLive && !currentLive:
		if old.IsDirectory() &&
			d.mappings.directoryByIndex(index) >= 0 &&
			!d.directoryMovedFrom(index, old.FirstCluster()) {
			return ErrRmdirUnsupported.WithMessage(fat.EntryName(before, index-lower, 0))
		}
	case oldLive && currentLive:
		oldName := fat.EntryName(before, index-lower, 0)
		if old.IsDirectory() != current.IsDirectory() {
			return errors.ErrNotSupported.WithMessage(
				fmt.Sprintf("changing %q between file and directory", oldName))
		}
		if current.FirstCluster() == old.FirstCluster() {
			return nil
		}
		if current.IsDirectory() {
			return ErrDirectoryChainChange.WithMessage(oldName)
		}
		return d.checkStartCluster(oldName, current.FirstCluster())
	}
	return nil
}

func (d *Disk) checkStartCluster(name string, begin fat.ClusterID) error {
	if begin == 0 {
		return nil
	}
	if begin < d.layout.FirstFileCluster || begin >= d.layout.ClusterLimit() {
		return errors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("%q starts at invalid cluster %d", name, begin))
	}
	return nil
}

// directoryStartingAt returns the index of the subdirectory mapping beginning
// at `begin`, or -1.
func (d *Disk) directoryStartingAt(begin fat.ClusterID) int {
	for i := 1; i < d.mappings.Len(); i++ {
		m := d.mappings.At(i)
		if m.Mode == ModeDirectory && m.Begin == begin {
			return i
		}
	}
	return -1
}

// directoryMovedFrom determines if a live entry other than `index` describes
// the directory starting at `begin`, i.e. the directory freed at `index` is
// being moved there.
func (d *Disk) directoryMovedFrom(index int, begin fat.ClusterID) bool {
	for i, entry := range d.dirents.Items() {
		if i != index && entry.IsLive() && entry.IsDirectory() && entry.FirstCluster() == begin {
			return true
		}
	}
	return false
}

func (d *Disk) applyDirectoryEntry(index int, before []fat.Dirent, lower int) error {
	old := before[index-lower]
	current := *d.dirents.At(index)
	oldLive := old.IsLive()
	currentLive := current.IsLive()

	switch {
	case !oldLive && currentLive:
		return d.createEntry(index, fat.EntryName(d.dirents.Items(), index, lower))
	case oldLive && !currentLive:
		return d.removeEntry(index, &old, fat.EntryName(before, index-lower, 0))
	case oldLive && currentLive:
		return d.modifyEntry(
			index,
			&old,
			fat.EntryName(before, index-lower, 0),
			fat.EntryName(d.dirents.Items(), index, lower))
	}
	return nil
}

// createEntry handles a free slot becoming a live entry. It's either a new
// file or the destination of a move.
func (d *Disk) createEntry(index int, name string) error {
	entry := *d.dirents.At(index)
	begin := entry.FirstCluster()

	newPath, err := d.entryPath(index, name)
	if err != nil {
		return err
	}

	if entry.IsDirectory() {
		mi := d.directoryStartingAt(begin)
		if mi < 0 {
			return ErrMkdirUnsupported.WithMessage(newPath)
		}
		return d.moveDirectory(mi, index, newPath)
	}

	if begin != 0 {
		if begin < d.layout.FirstFileCluster || begin >= d.layout.ClusterLimit() {
			return errors.ErrInvalidArgument.WithMessage(
				fmt.Sprintf("%q starts at invalid cluster %d", newPath, begin))
		}
		for i := 0; i < d.mappings.Len(); i++ {
			m := d.mappings.At(i)
			if m.isFile() && m.Offset == 0 && m.Begin == begin {
				return d.moveFile(i, index, newPath)
			}
		}
	}

	err = d.evictDeleted(newPath)
	if err != nil {
		return err
	}
	file, err := d.fs.OpenFile(newPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return errors.ErrIOFailed.Wrap(err)
	}
	err = file.Close()
	if err != nil {
		return errors.ErrIOFailed.Wrap(err)
	}
	d.info("created host file", slog.String("path", newPath))

	if begin == 0 {
		return nil
	}
	return d.attachChain(index, newPath, begin)
}

// attachChain creates the head mapping of the file at entry `index`, which
// starts at cluster `begin`, and picks up whatever chain the FAT already has.
func (d *Disk) attachChain(index int, path string, begin fat.ClusterID) error {
	if begin < d.layout.FirstFileCluster || begin >= d.layout.ClusterLimit() {
		return errors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("%q starts at invalid cluster %d", path, begin))
	}
	if owner := d.mappings.find(begin); owner >= 0 {
		return ErrChainConflict.WithMessage(
			fmt.Sprintf(
				"%q starts at cluster %d, which belongs to %q",
				path,
				begin,
				d.mappings.At(owner).Path))
	}

	_, err := d.mappings.insert(Mapping{
		Begin:    begin,
		End:      begin + 1,
		Path:     path,
		DirIndex: index,
		Mode:     ModeModified,
		written:  regionSet(regionDirectory),
		resized:  true,
	})
	if err != nil {
		return err
	}

	err = d.followChain(begin)
	if err != nil {
		return err
	}
	return d.commitIfConsistent(index)
}

// moveFile re-points the file whose head mapping is `head` to the entry at
// `index`, renaming the host file to `newPath`.
func (d *Disk) moveFile(head int, index int, newPath string) error {
	m := d.mappings.At(head)
	oldPath := m.Path
	oldIndex := m.DirIndex

	if oldPath != newPath {
		err := d.evictDeleted(newPath)
		if err != nil {
			return err
		}
		err = d.renameHost(oldPath, newPath)
		if err != nil {
			return err
		}
	}

	for i := 0; i < d.mappings.Len(); i++ {
		m := d.mappings.At(i)
		if !m.isFile() || m.DirIndex != oldIndex || m.Path != oldPath {
			continue
		}
		m.DirIndex = index
		m.Path = newPath
		m.written.add(regionDirectory)
		if m.Mode == ModeDeleted {
			m.Mode = ModeModified
		}
	}

	d.info("moved file", slog.String("from", oldPath), slog.String("to", newPath))
	return d.commitIfConsistent(index)
}

// moveDirectory points directory mapping `mi` at the entry at `index` and
// renames the host directory to `newPath`.
func (d *Disk) moveDirectory(mi int, index int, newPath string) error {
	oldPath := d.mappings.At(mi).Path
	if oldPath != newPath {
		err := d.closeHostFile()
		if err != nil {
			return err
		}
		err = d.renameHost(oldPath, newPath)
		if err != nil {
			return err
		}

		prefix := oldPath + string(filepath.Separator)
		for i := 0; i < d.mappings.Len(); i++ {
			m := d.mappings.At(i)
			if m.Path == oldPath {
				m.Path = newPath
			} else if strings.HasPrefix(m.Path, prefix) {
				m.Path = filepath.Join(newPath, m.Path[len(prefix):])
			}
		}
		d.info("moved directory", slog.String("from", oldPath), slog.String("to", newPath))
	}

	d.mappings.At(mi).DirIndex = index
	return nil
}

func (d *Disk) renameHost(oldPath, newPath string) error {
	err := d.closeHostFileIfPath(oldPath)
	if err != nil {
		return err
	}
	err = d.fs.Rename(oldPath, newPath)
	if err != nil {
		return errors.ErrIOFailed.Wrap(err)
	}
	d.invalidateReadCache()
	return nil
}

// removeEntry handles a live entry being freed. The host file is removed once
// its clusters are freed too, or when the disk is closed; until then the
// entry may reappear elsewhere as a move.
func (d *Disk) removeEntry(index int, old *fat.Dirent, oldName string) error {
	if old.IsDirectory() {
		if d.mappings.directoryByIndex(index) < 0 || d.directoryMovedFrom(index, old.FirstCluster()) {
			// Moved elsewhere, already or later in this write.
			return nil
		}
		return ErrRmdirUnsupported.WithMessage(oldName)
	}

	indices := d.mappings.fileMappings(index)
	if len(indices) == 0 {
		path, err := d.entryPath(index, oldName)
		if err != nil {
			return err
		}
		if d.pathInUse(path) {
			// Moved to another slot under the same name.
			return nil
		}
		return d.removeHostFile(path)
	}

	path := d.mappings.At(indices[0]).Path
	for _, i := range indices {
		m := d.mappings.At(i)
		m.Mode = ModeDeleted
		m.written.add(regionDirectory)
	}
	d.debug("file marked deleted", slog.String("path", path))
	return d.reapDeleted(path)
}

func (d *Disk) pathInUse(path string) bool {
	for _, m := range d.mappings.items.Items() {
		if m.isLiveFile() && m.Path == path {
			return true
		}
	}
	return false
}

// removeHostFile removes the regular file at `path`, if there is one.
func (d *Disk) removeHostFile(path string) error {
	info, err := d.fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.ErrIOFailed.Wrap(err)
	}
	if info.IsDir() {
		return nil
	}

	err = d.closeHostFileIfPath(path)
	if err != nil {
		return err
	}
	err = d.fs.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return errors.ErrIOFailed.Wrap(err)
	}
	d.info("deleted host file", slog.String("path", path))
	return nil
}

// reapDeleted shrinks the deleted mappings of `path` past every cluster the
// FAT has freed, and removes the host file once none are left.
func (d *Disk) reapDeleted(path string) error {
	for i := d.mappings.Len() - 1; i >= 0; i-- {
		m := d.mappings.At(i)
		if m.Mode != ModeDeleted || m.Path != path {
			continue
		}
		for m.Begin < m.End && d.isClusterFree(m.Begin) {
			err := d.commits.drop(m.Begin)
			if err != nil {
				return err
			}
			m.Begin++
			m.Offset++
		}
		for m.End > m.Begin && d.isClusterFree(m.End-1) {
			err := d.commits.drop(m.End - 1)
			if err != nil {
				return err
			}
			m.End--
		}
		if m.Begin == m.End {
			err := d.mappings.remove(i)
			if err != nil {
				return err
			}
		}
	}
	return d.finalizeDeletion(path)
}

// evictDeleted removes the host file at `path` right away if it belongs to a
// deleted file, so a new file can take its name. The deleted mappings stay
// until the FAT frees their clusters.
func (d *Disk) evictDeleted(path string) error {
	found := false
	for i := 0; i < d.mappings.Len(); i++ {
		m := d.mappings.At(i)
		if m.Mode == ModeDeleted && m.Path == path {
			m.Path = ""
			found = true
		}
	}
	if !found {
		return nil
	}
	return d.finalizeDeletion(path)
}

// modifyEntry handles an entry that's live before and after the write.
func (d *Disk) modifyEntry(index int, old *fat.Dirent, oldName, newName string) error {
	current := *d.dirents.At(index)

	if old.IsDirectory() != current.IsDirectory() {
		return errors.ErrNotSupported.WithMessage(
			fmt.Sprintf("changing %q between file and directory", oldName))
	}

	if current.IsDirectory() {
		if current.FirstCluster() != old.FirstCluster() {
			return ErrDirectoryChainChange.WithMessage(oldName)
		}
		mi := d.mappings.directoryByIndex(index)
		if mi < 0 || oldName == newName {
			return nil
		}
		newPath, err := d.entryPath(index, newName)
		if err != nil {
			return err
		}
		return d.moveDirectory(mi, index, newPath)
	}

	indices := d.mappings.fileMappings(index)
	if oldName != newName {
		var oldPath string
		var err error
		if len(indices) > 0 {
			oldPath = d.mappings.At(indices[0]).Path
		} else {
			oldPath, err = d.entryPath(index, oldName)
			if err != nil {
				return err
			}
		}
		newPath, err := d.entryPath(index, newName)
		if err != nil {
			return err
		}

		if oldPath != newPath {
			err = d.evictDeleted(newPath)
			if err != nil {
				return err
			}
			err = d.renameHost(oldPath, newPath)
			if err != nil {
				return err
			}
			for _, i := range indices {
				d.mappings.At(i).Path = newPath
			}
			d.info("renamed file", slog.String("from", oldPath), slog.String("to", newPath))
		}
	}

	beginChanged := current.FirstCluster() != old.FirstCluster()
	sizeChanged := current.Size() != old.Size()
	if !beginChanged && !sizeChanged {
		return nil
	}

	if beginChanged {
		return d.rebuildFile(index)
	}
	for _, i := range indices {
		m := d.mappings.At(i)
		m.Mode = ModeModified
		m.resized = true
		m.written.add(regionDirectory)
	}
	return d.commitIfConsistent(index)
}

// rebuildFile drops the mappings of the file at entry `index` and recreates
// them from its new starting cluster.
func (d *Disk) rebuildFile(index int) error {
	path, err := d.pathOf(index)
	if err != nil {
		return err
	}

	for i := d.mappings.Len() - 1; i >= 0; i-- {
		m := d.mappings.At(i)
		if m.DirIndex == index && m.isLiveFile() {
			err = d.mappings.remove(i)
			if err != nil {
				return err
			}
		}
	}

	begin := d.dirents.At(index).FirstCluster()
	if begin == 0 {
		return d.commitIfConsistent(index)
	}
	return d.attachChain(index, path, begin)
}
