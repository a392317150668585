// Command worldd runs a world server, or inspects the NBT files it writes.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/df-mc/worldcore/server"
	"github.com/df-mc/worldcore/server/console"
	"github.com/df-mc/worldcore/server/nbt"
	gnbt "github.com/sandertv/gophertunnel/minecraft/nbt"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "worldd",
		Usage: "run a voxel world server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "config.toml", Usage: "path of the TOML or YAML configuration file"},
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
			&cli.BoolFlag{Name: "no-console", Usage: "do not read commands from standard input"},
		},
		Action: run,
		Commands: []*cli.Command{{
			Name:      "dump",
			Usage:     "print the tag tree of an NBT file",
			ArgsUsage: "<file>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "dotted path of the tag to print, such as .Data.SpawnX"},
				&cli.BoolFlag{Name: "verify", Usage: "check that the file survives re-encoding"},
			},
			Action: func(c *cli.Context) error {
				if c.NArg() != 1 {
					return cli.Exit("dump expects exactly one file", 2)
				}
				return dump(c.App.Writer, c.Args().First(), c.String("path"), c.Bool("verify"))
			},
		}},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	level := slog.LevelInfo
	if c.Bool("debug") {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	uc, err := server.LoadUserConfig(c.String("config"))
	if err != nil {
		return err
	}
	conf, err := uc.Config(log)
	if err != nil {
		return err
	}
	srv, err := conf.New()
	if err != nil {
		return err
	}
	srv.CloseOnProgramEnd()
	srv.Start()

	if !c.Bool("no-console") {
		ctx, cancel := context.WithCancel(c.Context)
		defer cancel()
		go console.New(srv, log.With("subsystem", "console")).Run(ctx)
	}
	<-srv.Done()
	return nil
}

// dump writes the tree of the NBT file at path, or of the tag found at tagPath
// within it, to w.
func dump(w io.Writer, path, tagPath string, verify bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return &nbt.IOError{Op: "read", Path: path, Err: err}
	}
	data, err := nbt.Decompress(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	root, err := nbt.Parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if verify {
		if err := roundTrip(root, data); err != nil {
			return fmt.Errorf("verify %s: %w", path, err)
		}
		if _, err := fmt.Fprintln(w, "Verified", path); err != nil {
			return err
		}
	}
	n, err := root.Find(tagPath)
	if err != nil {
		return err
	}
	return nbt.Dump(w, n)
}

// roundTrip checks that re-encoding root reproduces data, the decompressed
// bytes root was parsed from, and that gophertunnel's decoder accepts them as
// well.
func roundTrip(root *nbt.Node, data []byte) error {
	b, err := nbt.Serialize(root)
	if err != nil {
		return fmt.Errorf("serialize: %w", err)
	}
	if !bytes.Equal(b, data) {
		return fmt.Errorf("re-encoded tree differs from the input at byte %d", mismatch(b, data))
	}
	if root.Kind() != nbt.TagCompound {
		return nil
	}
	var m map[string]any
	if err := gnbt.UnmarshalEncoding(b, &m, gnbt.BigEndian); err != nil {
		return fmt.Errorf("gophertunnel decode: %w", err)
	}
	if len(m) != root.Len() {
		return fmt.Errorf("gophertunnel decoded %d tags, want %d", len(m), root.Len())
	}
	return nil
}

// mismatch returns the offset of the first byte in which a and b differ.
func mismatch(a, b []byte) int {
	n := min(len(a), len(b))
	for i := range n {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
