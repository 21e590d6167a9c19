package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"github.com/dargueta/vvfat"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "vvfat",
		Usage: "Inspect and export FAT disk images synthesized from host directories",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "geometry",
				Aliases: []string{"g"},
				Usage:   "disk geometry preset, overridden by a modifier in SPEC",
				Value:   vvfat.DefaultGeometry,
			},
			&cli.StringFlag{
				Name:  "label",
				Usage: "volume label",
				Value: vvfat.DefaultVolumeLabel,
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log diagnostics to stderr",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "info",
				Usage:     "Show the layout and boot sector of a disk",
				Action:    showInfo,
				ArgsUsage: "SPEC",
			},
			{
				Name:   "mappings",
				Usage:  "List the clusters backed by each host file and directory",
				Action: listMappings,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "csv", Usage: "print CSV instead of a table"},
				},
				ArgsUsage: "SPEC",
			},
			{
				Name:      "dump",
				Usage:     "Write the synthesized image to a raw file",
				Action:    dumpImage,
				ArgsUsage: "SPEC  OUTPUT_FILE",
			},
			{
				Name:   "presets",
				Usage:  "List the available disk geometries",
				Action: listPresets,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "csv", Usage: "print CSV instead of a table"},
				},
			},
		},
	}
}

func main() {
	err := newApp().Run(os.Args)
	if err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

// openDisk opens the disk named by the first argument read-only, whatever
// the spec says.
func openDisk(context *cli.Context) (*vvfat.Disk, error) {
	if context.NArg() < 1 {
		return nil, cli.Exit("missing SPEC, e.g. fat:floppy:/some/dir", 2)
	}

	options := vvfat.Options{
		Geometry:    context.String("geometry"),
		VolumeLabel: context.String("label"),
		ReadOnly:    true,
	}
	if context.Bool("verbose") {
		options.Logger = slog.New(
			slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return vvfat.Open(afero.NewOsFs(), context.Args().Get(0), &options)
}
