package disks

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"

	"github.com/dargueta/vvfat/errors"
	"github.com/gocarina/gocsv"
)

////////////////////////////////////////////////////////////////////////////////
// Geometry

// DiskGeometry describes the size and layout of a synthesized disk.
type DiskGeometry struct {
	Name string `csv:"name"`
	Slug string `csv:"slug"`

	// FATType is 12 or 16. It must agree with the number of clusters the
	// geometry ends up with.
	FATType uint `csv:"fat_type"`

	// TotalSectors gives the size of the entire disk, including the MBR and
	// hidden sectors of partitioned disks.
	TotalSectors      uint `csv:"total_sectors"`
	SectorsPerCluster uint `csv:"sectors_per_cluster"`
	SectorsPerFAT     uint `csv:"sectors_per_fat"`
	RootEntries       uint `csv:"root_entries"`
	Media             uint `csv:"media"`

	Cylinders       uint `csv:"cylinders"`
	Heads           uint `csv:"heads"`
	SectorsPerTrack uint `csv:"sectors_per_track"`

	// IsPartitioned is 1 if the disk has an MBR and a single partition, 0 if
	// the boot sector is the first sector of the disk, like on a floppy.
	IsPartitioned uint   `csv:"is_partitioned"`
	Notes         string `csv:"notes"`
}

// SectorSize is the size of a sector on every predefined disk.
const SectorSize = 512

// TotalSizeBytes gives the size of the storage device in bytes.
func (g *DiskGeometry) TotalSizeBytes() int64 {
	return int64(g.TotalSectors) * SectorSize
}

func (g *DiskGeometry) Partitioned() bool {
	return g.IsPartitioned != 0
}

////////////////////////////////////////////////////////////////////////////////

//go:embed disk-geometries.csv
var diskGeometriesRawCSV string
var diskGeometries map[string]DiskGeometry

// GetPredefinedDiskGeometry returns the geometry with the given slug.
func GetPredefinedDiskGeometry(slug string) (DiskGeometry, error) {
	geometry, ok := diskGeometries[slug]
	if ok {
		return geometry, nil
	}

	return DiskGeometry{}, errors.ErrNotFound.WithMessage(
		fmt.Sprintf("no predefined disk geometry exists with slug %q", slug))
}

// List returns all predefined geometries, sorted by slug.
func List() []DiskGeometry {
	geometries := make([]DiskGeometry, 0, len(diskGeometries))
	for _, geometry := range diskGeometries {
		geometries = append(geometries, geometry)
	}
	sort.Slice(geometries, func(i, j int) bool {
		return geometries[i].Slug < geometries[j].Slug
	})
	return geometries
}

func init() {
	reader := strings.NewReader(diskGeometriesRawCSV)
	csvReader := csv.NewReader(reader)
	csvReader.Comma = '|'

	var rows []DiskGeometry
	err := gocsv.UnmarshalCSV(csvReader, &rows)
	if err != nil {
		panic(fmt.Errorf("failed to decode disk geometries: %w", err))
	}

	diskGeometries = make(map[string]DiskGeometry, len(rows))
	for i, row := range rows {
		_, exists := diskGeometries[row.Slug]
		if exists {
			message := fmt.Errorf(
				"duplicate definition for disk %q found on row %d", row.Slug, i+1)
			panic(message)
		}
		diskGeometries[row.Slug] = row
	}
}
