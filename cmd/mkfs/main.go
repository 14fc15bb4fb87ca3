// Command mkfs formats an extentfs image file.
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/arourke/extentfs/image"
	"github.com/arourke/extentfs/mkfs"
)

func main() {
	app := cli.App{
		Usage:     "Format an extentfs image file",
		ArgsUsage: "IMAGE_FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "preset",
				Usage: "named size preset (see --list-presets)",
			},
			&cli.StringFlag{
				Name:  "size",
				Usage: "image size, e.g. 16M, 2G (ignored if --preset is set)",
			},
			&cli.UintFlag{
				Name:  "inodes",
				Usage: "inode count (ignored if --preset is set)",
				Value: 1024,
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "overwrite IMAGE_FILE if it already exists",
			},
			&cli.BoolFlag{
				Name:  "zero",
				Usage: "zero-truncate IMAGE_FILE before formatting instead of erroring if it exists",
			},
			&cli.BoolFlag{
				Name:  "list-presets",
				Usage: "print the named size presets and exit",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("mkfs: %s", err)
	}
}

func run(c *cli.Context) error {
	if c.Bool("list-presets") {
		return listPresets()
	}

	if c.Args().Len() != 1 {
		return cli.Exit("expected exactly one argument: IMAGE_FILE", 1)
	}
	path := c.Args().Get(0)

	size, inodeCount, err := resolveGeometry(c)
	if err != nil {
		return err
	}

	buf, err := mkfs.Format(size, inodeCount)
	if err != nil {
		return err
	}

	flags := os.O_WRONLY | os.O_CREATE
	switch {
	case c.Bool("zero"):
		flags |= os.O_TRUNC
	case c.Bool("force"):
		flags |= os.O_TRUNC
	default:
		flags |= os.O_EXCL
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return cli.Exit(fmt.Sprintf("%s already exists; pass --force or --zero to overwrite", path), 1)
		}
		return err
	}
	defer f.Close()

	if _, err := f.Write(buf); err != nil {
		return err
	}

	fmt.Printf("formatted %s: %d bytes, %d inodes\n", path, size, inodeCount)
	return nil
}

func listPresets() error {
	presets, err := mkfs.Presets()
	if err != nil {
		return err
	}
	for _, p := range presets {
		fmt.Printf("%-10s %12d bytes  %6d inodes\n", p.Name, p.SizeBytes, p.InodeCount)
	}
	return nil
}

func resolveGeometry(c *cli.Context) (uint64, uint32, error) {
	if name := c.String("preset"); name != "" {
		p, ok := mkfs.LookupPreset(name)
		if !ok {
			return 0, 0, cli.Exit(fmt.Sprintf("unknown preset %q; see --list-presets", name), 1)
		}
		return p.SizeBytes, p.InodeCount, nil
	}

	sizeStr := c.String("size")
	if sizeStr == "" {
		return 0, 0, cli.Exit("one of --preset or --size is required", 1)
	}
	size, err := parseSize(sizeStr)
	if err != nil {
		return 0, 0, err
	}
	return size, uint32(c.Uint("inodes")), nil
}

func parseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	multiplier := uint64(1)
	switch {
	case strings.HasSuffix(s, "G"):
		multiplier = 1 << 30
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "M"):
		multiplier = 1 << 20
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "K"):
		multiplier = 1 << 10
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	total := n * multiplier
	if total%image.BlockSize != 0 {
		return 0, fmt.Errorf("size %q is not a multiple of the %d-byte block size", s, image.BlockSize)
	}
	return total, nil
}
