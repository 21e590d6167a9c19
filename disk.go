// Package vvfat presents a host directory to a guest as a FAT12 or FAT16 disk
// image, synthesized on the fly.
//
// The boot sector, both copies of the FAT, and every directory entry live in
// memory; file data is read from the host files as the guest asks for it. In
// read-write mode, sectors the guest writes are interpreted as changes to the
// file system and written back to the host once a file's FAT chain, directory
// entry, and data agree with each other.
package vvfat

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"

	"github.com/dargueta/vvfat/array"
	"github.com/dargueta/vvfat/disks"
	"github.com/dargueta/vvfat/errors"
	"github.com/dargueta/vvfat/fat"
)

// Disk is a synthesized FAT disk backed by a host directory. All methods are
// safe for concurrent use; each call holds the disk's lock until it's done.
type Disk struct {
	mu sync.Mutex

	fs              afero.Fs
	root            string
	geometry        disks.DiskGeometry
	layout          Layout
	readOnly        bool
	checkEveryWrite bool
	logger          *slog.Logger
	closed          bool

	bootArea []byte
	fat      *fat.Table
	// applied holds the FAT values the mappings currently reflect.
	applied *fat.Table
	// halfWritten tracks 12-bit entries split across two writes, with the
	// halves seen so far.
	halfWritten map[fat.ClusterID]entryHalves
	dirents  *array.Array[fat.Dirent]
	mappings mappingTable
	commits  *pendingCommits
	host     hostFile
	cache    clusterCache
}

// Open builds a disk from the directory named in `spec`, which is either
// "fat:<dir>" for a read-only disk or "fatrw:<dir>" for a writable one,
// optionally with a geometry modifier such as "fat:floppy:<dir>". `options`
// may be nil.
//
// Any failure is returned wrapped in [ErrCouldNotOpen].
func Open(fs afero.Fs, spec string, options *Options) (*Disk, error) {
	var opts Options
	if options != nil {
		opts = *options
	}
	opts = opts.withDefaults()

	disk, err := open(fs, spec, opts)
	if err != nil {
		return nil, ErrCouldNotOpen.Wrap(err)
	}
	return disk, nil
}

func open(fs afero.Fs, spec string, opts Options) (*Disk, error) {
	parsed, err := parseSpec(spec)
	if err != nil {
		return nil, err
	}

	slug := opts.Geometry
	if parsed.geometry != "" {
		slug = parsed.geometry
	}
	geometry, err := disks.GetPredefinedDiskGeometry(slug)
	if err != nil {
		return nil, err
	}

	info, err := fs.Stat(parsed.dir)
	if err != nil {
		return nil, errors.ErrNotFound.Wrap(err)
	}
	if !info.IsDir() {
		return nil, errors.ErrNotADirectory.WithMessage(parsed.dir)
	}

	d := &Disk{
		fs:              fs,
		root:            parsed.dir,
		geometry:        geometry,
		readOnly:        !parsed.writable || opts.ReadOnly,
		checkEveryWrite: opts.CheckConsistency,
		logger:          opts.Logger,
		dirents:         array.New[fat.Dirent](opts.MaxDirectoryEntries),
		mappings:        newMappingTable(),
	}

	err = d.build(opts)
	if err != nil {
		return nil, err
	}

	d.info(
		"opened disk",
		slog.String("dir", d.root),
		slog.String("geometry", geometry.Slug),
		slog.Bool("read_only", d.readOnly),
		slog.Uint64("clusters", uint64(d.layout.ClusterCount)),
		slog.Int("mappings", d.mappings.Len()))
	return d, nil
}

// build walks the host tree and lays out the disk.
func (d *Disk) build(opts Options) error {
	label, err := d.dirents.Append()
	if err != nil {
		return err
	}
	label.SetShortName(fat.PadLabel(opts.VolumeLabel))
	label.SetAttributes(fat.AttrVolumeLabel)

	root, err := d.mappings.items.Append()
	if err != nil {
		return err
	}
	*root = Mapping{
		Begin:    0,
		End:      fat.FirstDataCluster,
		Path:     d.root,
		DirIndex: -1,
		Mode:     ModeDirectory,
	}

	clusterSize := uint32(d.geometry.SectorsPerCluster) * SectorSize
	walker := newDirectoryWalker(d, clusterSize, d.geometry.RootEntries)
	err = walker.enumerate()
	if err != nil {
		return err
	}
	err = walker.sortDirectories()
	if err != nil {
		return err
	}

	d.layout, err = newLayout(
		d.geometry,
		uint32(walker.rootEntries),
		uint32(d.dirents.Len()/direntsPerSector))
	if err != nil {
		return err
	}

	d.fat, err = fat.NewTable(d.layout.FATType, int(d.layout.SectorsPerFAT)*SectorSize)
	if err != nil {
		return err
	}
	d.fat.Init(uint8(d.geometry.Media))

	err = walker.finalize()
	if err != nil {
		return err
	}
	d.applied, err = d.fat.Clone()
	if err != nil {
		return err
	}
	d.halfWritten = make(map[fat.ClusterID]entryHalves)

	d.bootArea, err = buildBootArea(&d.layout, d.geometry, fat.PadLabel(opts.VolumeLabel))
	if err != nil {
		return err
	}
	d.commits = newPendingCommits(opts.MaxPendingCommits, d.layout.ClusterLimit())
	return nil
}

// ReadSectors fills `buffer` with consecutive sectors starting at `sector`.
// The buffer's length must be a multiple of [SectorSize]. Sectors past the end
// of the disk, and sectors whose host file can't be read, read as zeros.
func (d *Disk) ReadSectors(sector uint32, buffer []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if len(buffer)%SectorSize != 0 {
		return errors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("buffer size %d isn't a multiple of %d", len(buffer), SectorSize))
	}

	for i := 0; i < len(buffer)/SectorSize; i++ {
		d.readSector(sector+uint32(i), buffer[i*SectorSize:(i+1)*SectorSize])
	}
	return nil
}

// WriteSectors writes `data` to consecutive sectors starting at `sector`. The
// length of `data` must be a multiple of [SectorSize].
//
// Writes are interpreted as file system operations. Anything that can't be
// mapped back to the host is rejected: writes to the boot area, to directory
// chains, a backup FAT that doesn't match the primary, creating or removing
// directories.
func (d *Disk) WriteSectors(sector uint32, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if d.readOnly {
		return errors.ErrReadOnlyFileSystem
	}
	if len(data)%SectorSize != 0 {
		return errors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("data size %d isn't a multiple of %d", len(data), SectorSize))
	}

	err := d.writeSectors(sector, data)
	if err != nil {
		d.logerror(
			"write rejected",
			slog.Uint64("sector", uint64(sector)),
			slog.Int("count", len(data)/SectorSize),
			slog.String("error", err.Error()))
		return err
	}

	if d.checkEveryWrite {
		return d.checkConsistency()
	}
	return nil
}

// Close removes the host files of deleted files that are still pending,
// discards data that was never committed, and releases the open host file.
// The disk can't be used afterwards.
func (d *Disk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	d.closed = true

	var result *multierror.Error
	for _, path := range d.deletedPaths() {
		err := d.dropDeletedMappings(path)
		if err == nil {
			err = d.finalizeDeletion(path)
		}
		if err != nil {
			result = multierror.Append(result, err)
		}
	}

	if leftover := d.commits.clusters(); len(leftover) > 0 {
		d.warn("discarding uncommitted data", slog.Int("clusters", len(leftover)))
		for _, cluster := range leftover {
			err := d.commits.drop(cluster)
			if err != nil {
				result = multierror.Append(result, err)
			}
		}
	}

	err := d.closeHostFile()
	if err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// ReadOnly determines if writes to the disk are rejected.
func (d *Disk) ReadOnly() bool {
	return d.readOnly
}

// TotalSectors returns the size of the disk in sectors.
func (d *Disk) TotalSectors() uint32 {
	return d.layout.TotalSectors
}

// Geometry returns the preset the disk was built from.
func (d *Disk) Geometry() disks.DiskGeometry {
	return d.geometry
}

// Layout returns the positions of the disk's regions.
func (d *Disk) Layout() Layout {
	return d.layout
}

// Mappings returns a copy of the mapping table, sorted by first cluster. The
// first mapping is always the root directory.
func (d *Disk) Mappings() []Mapping {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mappings.snapshot()
}

// PendingCommits returns the clusters holding guest data that hasn't been
// written to the host yet.
func (d *Disk) PendingCommits() []fat.ClusterID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.commits.clusters()
}
