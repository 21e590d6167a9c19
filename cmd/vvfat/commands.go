package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/gocarina/gocsv"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
	"github.com/xaionaro-go/bytesextra"

	"github.com/dargueta/vvfat"
	"github.com/dargueta/vvfat/disks"
	"github.com/dargueta/vvfat/fat"
)

// dumpChunkSectors is the number of sectors copied per read when dumping.
const dumpChunkSectors = 256

func showInfo(context *cli.Context) error {
	disk, err := openDisk(context)
	if err != nil {
		return err
	}
	defer disk.Close()

	layout := disk.Layout()
	bootArea := make([]byte, (layout.HiddenSectors+1)*vvfat.SectorSize)
	err = disk.ReadSectors(0, bootArea)
	if err != nil {
		return err
	}

	stream := bytesextra.NewReadWriteSeeker(bootArea)
	_, err = stream.Seek(int64(layout.HiddenSectors)*vvfat.SectorSize, io.SeekStart)
	if err != nil {
		return err
	}
	boot, err := fat.ReadBootSector(stream)
	if err != nil {
		return err
	}

	geometry := disk.Geometry()
	w := tabwriter.NewWriter(context.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Geometry:\t%s (%s)\n", geometry.Slug, geometry.Name)
	fmt.Fprintf(w, "File system:\tFAT%d\n", layout.FATType)
	fmt.Fprintf(w, "Volume label:\t%q\n", string(boot.VolumeLabel[:]))
	fmt.Fprintf(w, "Volume ID:\t%08X\n", boot.VolumeID)
	fmt.Fprintf(w, "Media descriptor:\t%#02x\n", boot.Media)
	fmt.Fprintf(w, "Total sectors:\t%d\n", layout.TotalSectors)
	fmt.Fprintf(w, "Hidden sectors:\t%d\n", layout.HiddenSectors)
	fmt.Fprintf(w, "Cluster size:\t%d bytes (%d sectors)\n", layout.ClusterSize, layout.SectorsPerCluster)
	fmt.Fprintf(w, "FATs:\t%d x %d sectors at %d\n", boot.NumFATs, layout.SectorsPerFAT, layout.FATStart)
	fmt.Fprintf(w, "Root directory:\t%d entries at %d\n", layout.RootEntries, layout.RootStart)
	fmt.Fprintf(w, "First data sector:\t%d\n", layout.DataStart)
	fmt.Fprintf(w, "Clusters:\t%d\n", layout.ClusterCount)
	fmt.Fprintf(w, "First file cluster:\t%d\n", layout.FirstFileCluster)
	fmt.Fprintf(w, "Mappings:\t%d\n", len(disk.Mappings()))
	return w.Flush()
}

// mappingRow is one line of the `mappings` output.
type mappingRow struct {
	Begin    uint32 `csv:"begin"`
	End      uint32 `csv:"end"`
	Offset   uint32 `csv:"offset"`
	Mode     string `csv:"mode"`
	DirIndex int    `csv:"dir_index"`
	Path     string `csv:"path"`
}

func listMappings(context *cli.Context) error {
	disk, err := openDisk(context)
	if err != nil {
		return err
	}
	defer disk.Close()

	mappings := disk.Mappings()
	rows := make([]mappingRow, len(mappings))
	for i, m := range mappings {
		rows[i] = mappingRow{
			Begin:    m.Begin,
			End:      m.End,
			Offset:   m.Offset,
			Mode:     m.Mode.String(),
			DirIndex: m.DirIndex,
			Path:     m.Path,
		}
	}

	if context.Bool("csv") {
		return gocsv.Marshal(rows, context.App.Writer)
	}

	w := tabwriter.NewWriter(context.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BEGIN\tEND\tOFFSET\tMODE\tENTRY\tPATH")
	for _, row := range rows {
		fmt.Fprintf(
			w,
			"%d\t%d\t%d\t%s\t%d\t%s\n",
			row.Begin,
			row.End,
			row.Offset,
			row.Mode,
			row.DirIndex,
			row.Path)
	}
	return w.Flush()
}

func dumpImage(context *cli.Context) error {
	if context.NArg() != 2 {
		return cli.Exit("expected SPEC and OUTPUT_FILE", 2)
	}

	disk, err := openDisk(context)
	if err != nil {
		return err
	}
	defer disk.Close()

	output, err := afero.NewOsFs().Create(context.Args().Get(1))
	if err != nil {
		return err
	}
	defer output.Close()

	written, err := copyImage(disk, output)
	if err != nil {
		return err
	}
	fmt.Fprintf(context.App.Writer, "Wrote %d bytes.\n", written)
	return output.Close()
}

// copyImage writes every sector of `disk` to `output`.
func copyImage(disk *vvfat.Disk, output io.Writer) (int64, error) {
	var written int64
	buffer := make([]byte, dumpChunkSectors*vvfat.SectorSize)
	total := disk.TotalSectors()

	for sector := uint32(0); sector < total; sector += dumpChunkSectors {
		count := total - sector
		if count > dumpChunkSectors {
			count = dumpChunkSectors
		}
		chunk := buffer[:count*vvfat.SectorSize]

		err := disk.ReadSectors(sector, chunk)
		if err != nil {
			return written, err
		}
		n, err := output.Write(chunk)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

func listPresets(context *cli.Context) error {
	geometries := disks.List()
	if context.Bool("csv") {
		return gocsv.Marshal(geometries, context.App.Writer)
	}

	w := tabwriter.NewWriter(context.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SLUG\tFAT\tSIZE\tNAME")
	for _, geometry := range geometries {
		fmt.Fprintf(
			w,
			"%s\t%d\t%d KiB\t%s\n",
			geometry.Slug,
			geometry.FATType,
			geometry.TotalSizeBytes()/1024,
			geometry.Name)
	}
	return w.Flush()
}
