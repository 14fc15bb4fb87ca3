// Command mountfs mounts an extentfs image at a directory using FUSE. It
// owns the image's mmap lifecycle end to end: it acquires the mapping
// before serving and releases (syncing first) it on unmount.
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/hanwen/go-fuse/v2/nodefs"
	"github.com/hanwen/go-fuse/v2/pathfs"
	"github.com/urfave/cli/v2"

	"github.com/arourke/extentfs/fs"
	"github.com/arourke/extentfs/image"
	"github.com/arourke/extentfs/internal/fuseglue"
)

func main() {
	app := cli.App{
		Usage:     "Mount an extentfs image over FUSE",
		ArgsUsage: "IMAGE_FILE MOUNTPOINT",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "log every FUSE callback",
			},
			&cli.BoolFlag{
				Name:  "sync",
				Usage: "msync the image mapping on unmount",
				Value: true,
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("mountfs: %s", err)
	}
}

func run(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return cli.Exit("expected two arguments: IMAGE_FILE MOUNTPOINT", 1)
	}
	imagePath := c.Args().Get(0)
	mountpoint := c.Args().Get(1)

	img, err := image.Open(imagePath, c.Bool("sync"))
	if err != nil {
		return err
	}

	core := fs.New(img)
	adapter := fuseglue.New(core)

	nfs := pathfs.NewPathNodeFs(adapter, nil)
	conn := nodefs.NewFileSystemConnector(nfs.Root(), nodefs.NewOptions())
	server, err := fuse.NewServer(conn.RawFS(), mountpoint, &fuse.MountOptions{
		Name:  "extentfs",
		Debug: c.Bool("debug"),
	})
	if err != nil {
		core.Close()
		return err
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		log.Println("mountfs: signal received, unmounting")
		server.Unmount()
	}()

	log.Printf("mountfs: serving %s at %s", imagePath, mountpoint)
	server.Serve()

	// adapter.OnUnmount already closed the image by the time Serve returns;
	// Close is idempotent, so this only matters if the host skipped that hook.
	return core.Close()
}
