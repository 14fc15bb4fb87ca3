// Command fsck checks an extentfs image's structural invariants without
// modifying it.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/arourke/extentfs/fsck"
	"github.com/arourke/extentfs/image"
)

func main() {
	app := cli.App{
		Usage:     "Check an extentfs image for structural inconsistencies",
		ArgsUsage: "IMAGE_FILE",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "csv",
				Usage: "print violations as CSV instead of one-per-line text",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fsck: %s", err)
	}
}

func run(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return cli.Exit("expected exactly one argument: IMAGE_FILE", 1)
	}
	path := c.Args().Get(0)

	img, err := image.Open(path, false)
	if err != nil {
		return err
	}
	defer img.Close()

	if c.Bool("csv") {
		report, err := fsck.Report(img)
		if err != nil {
			return err
		}
		fmt.Print(report)
		return nil
	}

	if err := fsck.Check(img); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println("clean")
	return nil
}
