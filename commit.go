package vvfat

import (
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/boljen/go-bitmap"
	"github.com/spf13/afero"

	"github.com/dargueta/vvfat/array"
	"github.com/dargueta/vvfat/errors"
	"github.com/dargueta/vvfat/fat"
)

// pendingCommit is one cluster of guest data waiting for its file to become
// consistent.
type pendingCommit struct {
	cluster fat.ClusterID
	data    []byte
}

// pendingCommits holds the buffered clusters. The bitmap answers "is there a
// commit for this cluster" without scanning the list.
type pendingCommits struct {
	items *array.Array[pendingCommit]
	index bitmap.Bitmap
	size  int
}

func newPendingCommits(limit int, clusterLimit fat.ClusterID) *pendingCommits {
	return &pendingCommits{
		items: array.New[pendingCommit](limit),
		index: bitmap.New(int(clusterLimit)),
		size:  int(clusterLimit),
	}
}

func (p *pendingCommits) Len() int {
	return p.items.Len()
}

func (p *pendingCommits) has(cluster fat.ClusterID) bool {
	return int(cluster) < p.size && p.index.Get(int(cluster))
}

func (p *pendingCommits) position(cluster fat.ClusterID) int {
	if !p.has(cluster) {
		return -1
	}
	for i, commit := range p.items.Items() {
		if commit.cluster == cluster {
			return i
		}
	}
	return -1
}

// get returns the buffered data for `cluster`, or nil.
func (p *pendingCommits) get(cluster fat.ClusterID) []byte {
	i := p.position(cluster)
	if i < 0 {
		return nil
	}
	return p.items.At(i).data
}

// add buffers `data` for `cluster`. It fails with [errors.ErrNoBufferSpace]
// if the list is full.
func (p *pendingCommits) add(cluster fat.ClusterID, data []byte) error {
	slot, err := p.items.Append()
	if err != nil {
		return err
	}
	slot.cluster = cluster
	slot.data = data
	p.index.Set(int(cluster), true)
	return nil
}

// drop discards the buffered data for `cluster`, if any.
func (p *pendingCommits) drop(cluster fat.ClusterID) error {
	i := p.position(cluster)
	if i < 0 {
		return nil
	}
	err := p.items.Remove(i)
	if err != nil {
		return err
	}
	p.index.Set(int(cluster), false)
	return nil
}

// clusters returns the buffered cluster numbers in ascending order.
func (p *pendingCommits) clusters() []fat.ClusterID {
	result := make([]fat.ClusterID, 0, p.items.Len())
	for _, commit := range p.items.Items() {
		result = append(result, commit.cluster)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// hostFile is the single host file kept open between calls.
type hostFile struct {
	path     string
	file     afero.File
	writable bool
}

// openHostFile returns the host file at `path`, reusing the open one if it's
// the same file and was opened with enough access. Any other open file is
// closed first.
func (d *Disk) openHostFile(path string, writable bool) (afero.File, error) {
	if d.host.file != nil && d.host.path == path && (d.host.writable || !writable) {
		return d.host.file, nil
	}

	err := d.closeHostFile()
	if err != nil {
		return nil, err
	}

	flags := os.O_RDONLY
	if writable {
		flags = os.O_RDWR
	}
	file, err := d.fs.OpenFile(path, flags, 0)
	if err != nil {
		return nil, errors.ErrIOFailed.Wrap(err)
	}
	d.host = hostFile{path: path, file: file, writable: writable}
	return file, nil
}

func (d *Disk) closeHostFile() error {
	if d.host.file == nil {
		return nil
	}
	err := d.host.file.Close()
	d.host = hostFile{}
	if err != nil {
		return errors.ErrIOFailed.Wrap(err)
	}
	return nil
}

// closeHostFileIfPath closes the open host file if it's `path`.
func (d *Disk) closeHostFileIfPath(path string) error {
	if d.host.file != nil && d.host.path == path {
		return d.closeHostFile()
	}
	return nil
}

// readCluster reads the host contents of `cluster`, which belongs to mapping
// `mi`, into `buffer`. Bytes past the end of the host file read as zeros.
func (d *Disk) readCluster(mi int, cluster fat.ClusterID, buffer []byte) error {
	m := d.mappings.At(mi)
	offset := int64(cluster-m.Begin+m.Offset) * int64(d.layout.ClusterSize)

	file, err := d.openHostFile(m.Path, false)
	if err != nil {
		return err
	}

	n, err := file.ReadAt(buffer, offset)
	for i := n; i < len(buffer); i++ {
		buffer[i] = 0
	}
	if err != nil && err != io.EOF {
		return errors.ErrIOFailed.Wrap(err)
	}
	return nil
}

// pendingCommitFor returns the buffer for `cluster`, creating it if needed.
// A new buffer starts out with the host contents of the cluster, if any.
func (d *Disk) pendingCommitFor(cluster fat.ClusterID) ([]byte, error) {
	data := d.commits.get(cluster)
	if data != nil {
		return data, nil
	}

	data = make([]byte, d.layout.ClusterSize)
	if mi := d.mappings.find(cluster); mi >= 0 && d.mappings.At(mi).isLiveFile() {
		err := d.readCluster(mi, cluster, data)
		if err != nil {
			d.warn(
				"couldn't prefill cluster from host",
				slog.Uint64("cluster", uint64(cluster)),
				slog.String("error", err.Error()))
		}
	}

	err := d.commits.add(cluster, data)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// commitIfConsistent flushes the file described by directory entry
// `dirIndex` to the host once its FAT chain, its mappings and its directory
// entry agree. It does nothing if they don't agree yet.
func (d *Disk) commitIfConsistent(dirIndex int) error {
	entry := d.dirents.At(dirIndex)
	size := entry.Size()
	begin := entry.FirstCluster()

	headIndex := d.mappings.head(dirIndex)
	if headIndex < 0 {
		if begin == 0 && size == 0 {
			return d.truncateEmptyFile(dirIndex)
		}
		return nil
	}

	head := d.mappings.At(headIndex)
	if head.Begin != begin {
		return nil
	}
	path := head.Path

	needed := clustersForSize(size, d.layout.ClusterSize)
	chain, ok := d.walkChain(dirIndex, begin, needed)
	if !ok {
		return nil
	}

	indices := d.mappings.fileMappings(dirIndex)
	var resized, changed bool
	var written regionSet
	for _, i := range indices {
		m := d.mappings.At(i)
		resized = resized || m.resized
		changed = changed || m.Mode != ModeNormal
		written |= m.written
	}
	pending := d.anyPending(chain)
	if !resized && !changed && !pending {
		return nil
	}

	var flushed int
	if resized || pending {
		file, err := d.openHostFile(path, true)
		if err != nil {
			return err
		}

		// Size the file first. Writing past EOF isn't portable across afero
		// backends.
		err = file.Truncate(int64(size))
		if err != nil {
			return errors.ErrIOFailed.Wrap(err)
		}

		clusterSize := int64(d.layout.ClusterSize)
		for k, cluster := range chain {
			data := d.commits.get(cluster)
			if data == nil {
				continue
			}
			start := int64(k) * clusterSize
			length := int64(size) - start
			if length > clusterSize {
				length = clusterSize
			}
			_, err = file.WriteAt(data[:length], start)
			if err != nil {
				return errors.ErrIOFailed.Wrap(err)
			}
			err = d.commits.drop(cluster)
			if err != nil {
				return err
			}
			flushed++
		}

		err = file.Truncate(int64(size))
		if err != nil {
			return errors.ErrIOFailed.Wrap(err)
		}
		err = d.closeHostFile()
		if err != nil {
			return err
		}
	}

	for _, i := range indices {
		m := d.mappings.At(i)
		m.Mode = ModeNormal
		m.written = 0
		m.resized = false
	}
	d.invalidateReadCache()

	d.info(
		"committed file",
		slog.String("path", path),
		slog.Int("clusters", len(chain)),
		slog.Int("flushed", flushed),
		slog.String("regions", written.String()))
	return nil
}

// walkChain follows the FAT chain from `begin` and returns its clusters if it
// has exactly `needed` clusters, every one of them owned by a live mapping of
// the file at `dirIndex` at the right offset, and the file has no other
// mappings.
func (d *Disk) walkChain(dirIndex int, begin fat.ClusterID, needed uint32) ([]fat.ClusterID, bool) {
	if needed == 0 {
		return nil, false
	}

	limit := d.layout.ClusterLimit()
	chain := make([]fat.ClusterID, 0, needed)
	cluster := begin
	for k := uint32(0); k < needed; k++ {
		if cluster < d.layout.FirstFileCluster || cluster >= limit {
			return nil, false
		}
		mi := d.mappings.find(cluster)
		if mi < 0 {
			return nil, false
		}
		m := d.mappings.At(mi)
		if m.DirIndex != dirIndex || !m.isLiveFile() || cluster-m.Begin+m.Offset != k {
			return nil, false
		}
		chain = append(chain, cluster)

		next := d.appliedEntry(cluster)
		if k == needed-1 {
			if !d.fat.IsEndOfChain(next) {
				return nil, false
			}
		} else {
			if !d.fat.IsNextCluster(next) {
				return nil, false
			}
			cluster = next
		}
	}

	var total uint32
	for _, i := range d.mappings.fileMappings(dirIndex) {
		total += d.mappings.At(i).length()
	}
	if total != needed {
		return nil, false
	}
	return chain, true
}

func (d *Disk) anyPending(chain []fat.ClusterID) bool {
	for _, cluster := range chain {
		if d.commits.has(cluster) {
			return true
		}
	}
	return false
}

// truncateEmptyFile makes sure the host file of an entry with no clusters is
// empty.
func (d *Disk) truncateEmptyFile(dirIndex int) error {
	path, err := d.pathOf(dirIndex)
	if err != nil {
		return err
	}
	info, err := d.fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.ErrIOFailed.Wrap(err)
	}
	if info.IsDir() || info.Size() == 0 {
		return nil
	}

	file, err := d.openHostFile(path, true)
	if err != nil {
		return err
	}
	err = file.Truncate(0)
	if err != nil {
		return errors.ErrIOFailed.Wrap(err)
	}
	err = d.closeHostFile()
	if err != nil {
		return err
	}
	d.info("truncated file to zero length", slog.String("path", path))
	return nil
}

// finalizeDeletion removes the host file at `path` once no deleted mapping
// refers to it anymore.
func (d *Disk) finalizeDeletion(path string) error {
	// Evicted files have no host path left.
	if path == "" {
		return nil
	}
	for _, m := range d.mappings.items.Items() {
		if m.Mode == ModeDeleted && m.Path == path {
			return nil
		}
	}

	err := d.closeHostFileIfPath(path)
	if err != nil {
		return err
	}
	err = d.fs.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return errors.ErrIOFailed.Wrap(err)
	}
	d.invalidateReadCache()
	d.info("deleted host file", slog.String("path", path))
	return nil
}

// deletedPaths returns the host paths of every file with deleted mappings.
func (d *Disk) deletedPaths() []string {
	seen := make(map[string]bool)
	var paths []string
	for _, m := range d.mappings.items.Items() {
		if m.Mode == ModeDeleted && !seen[m.Path] {
			seen[m.Path] = true
			paths = append(paths, m.Path)
		}
	}
	return paths
}

// dropDeletedMappings removes every deleted mapping of `path`.
func (d *Disk) dropDeletedMappings(path string) error {
	for i := d.mappings.Len() - 1; i >= 0; i-- {
		m := d.mappings.At(i)
		if m.Mode == ModeDeleted && m.Path == path {
			err := d.mappings.remove(i)
			if err != nil {
				return err
			}
		}
	}
	return nil
}
