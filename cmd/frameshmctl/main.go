// frameshmctl is a CLI for creating, publishing to, and reading from
// frameshm segments.
//
// Usage:
//
//	frameshmctl create  --name <name> --width <w> --height <h> --depth <d> [opts]
//	frameshmctl publish --name <name> --file <path> [--time <ns>]
//	frameshmctl watch   --name <name> [--blocking]
//	frameshmctl status  --name <name>
//	frameshmctl destroy --name <name>
//	frameshmctl repl    --name <name>
//	frameshmctl config  get|set <key> <value>
//
// Options shared across commands:
//
//	--dir         anchor-file directory (default from config, else /dev/shm)
//	--prefix      anchor-file name prefix (default from config, else buffer-)
//	--ring-depth  ring depth, create only (default from config, else 3)
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/lattice-io/frameshm/internal/frameshmcfg"
	"github.com/lattice-io/frameshm/internal/frameshmlog"
	"github.com/lattice-io/frameshm/pkg/frameshm"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "frameshmctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage()
		return errors.New("missing command")
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "create":
		return runCreate(rest)
	case "publish":
		return runPublish(rest)
	case "watch":
		return runWatch(rest)
	case "status":
		return runStatus(rest)
	case "destroy":
		return runDestroy(rest)
	case "repl":
		return runRepl(rest)
	case "config":
		return runConfig(rest)
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  frameshmctl create  --name <n> --width <w> --height <h> --depth <d> [opts]")
	fmt.Fprintln(os.Stderr, "  frameshmctl publish --name <n> --file <path> [--time <ns>]")
	fmt.Fprintln(os.Stderr, "  frameshmctl watch   --name <n> [--blocking]")
	fmt.Fprintln(os.Stderr, "  frameshmctl status  --name <n>")
	fmt.Fprintln(os.Stderr, "  frameshmctl destroy --name <n>")
	fmt.Fprintln(os.Stderr, "  frameshmctl repl    --name <n>")
	fmt.Fprintln(os.Stderr, "  frameshmctl config  get|set <key> <value>")
}

// commonFlags holds the --dir/--prefix pair every command accepts, seeded
// from the config file and overridable per-invocation.
type commonFlags struct {
	dir    string
	prefix string
}

func bindCommon(fs *flag.FlagSet, cfg frameshmcfg.Config) *commonFlags {
	cf := &commonFlags{}
	fs.StringVar(&cf.dir, "dir", cfg.Dir, "anchor file directory")
	fs.StringVar(&cf.prefix, "prefix", cfg.Prefix, "anchor file name prefix")
	return cf
}

func (cf *commonFlags) openOpts() []frameshm.Option {
	return []frameshm.Option{frameshm.WithDir(cf.dir), frameshm.WithPrefix(cf.prefix)}
}

func runCreate(args []string) error {
	cfg, err := frameshmcfg.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	name := fs.String("name", "", "segment name")
	width := fs.Int("width", cfg.Width, "frame width")
	height := fs.Int("height", cfg.Height, "frame height")
	depth := fs.Int("depth", cfg.Depth, "frame depth (bytes per pixel)")
	ringDepth := fs.Int("ring-depth", cfg.RingDepth, "ring depth")
	cf := bindCommon(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return errors.New("--name is required")
	}

	// The owning handle is intentionally left mapped: the segment is meant
	// to outlive this process (some other process calls Destroy, or a
	// consumer recovers it via IsPoisoned/DestroyByName once this process
	// exits). Owner handles refuse Close - only Destroy tears the segment
	// down - so there is nothing for this short-lived invocation to do
	// with the handle once Create succeeds.
	if _, err := frameshm.Create(frameshm.CreateOptions{
		Name:      *name,
		Width:     *width,
		Height:    *height,
		Depth:     *depth,
		RingDepth: *ringDepth,
		Dir:       cf.dir,
		Prefix:    cf.prefix,
	}); err != nil {
		return err
	}

	fmt.Printf("created segment %q (%dx%dx%d, ring depth %d)\n", *name, *width, *height, *depth, *ringDepth)
	return nil
}

func runPublish(args []string) error {
	cfg, err := frameshmcfg.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	name := fs.String("name", "", "segment name")
	file := fs.String("file", "", "path to raw pixel data (width*height*depth bytes)")
	width := fs.Int("width", cfg.Width, "frame width")
	height := fs.Int("height", cfg.Height, "frame height")
	depth := fs.Int("depth", cfg.Depth, "frame depth")
	acqTime := fs.Int64("time", 0, "acquisition time (ns); 0 uses the current time")
	cf := bindCommon(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" || *file == "" {
		return errors.New("--name and --file are required")
	}

	pixels, err := os.ReadFile(*file)
	if err != nil {
		return err
	}

	h, err := frameshm.Open(*name, cf.openOpts()...)
	if err != nil {
		return err
	}
	defer h.Close()

	t := uint64(*acqTime)
	if t == 0 {
		t = uint64(time.Now().UnixNano())
	}

	if err := h.Publish(*width, *height, *depth, t, pixels); err != nil {
		return err
	}
	fmt.Printf("published %d bytes to %q at t=%d\n", len(pixels), *name, t)
	return nil
}

func runWatch(args []string) error {
	cfg, err := frameshmcfg.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	name := fs.String("name", "", "segment name")
	blocking := fs.Bool("blocking", true, "block for the next frame instead of polling")
	cf := bindCommon(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return errors.New("--name is required")
	}

	h, err := frameshm.Open(*name, cf.openOpts()...)
	if err != nil {
		return err
	}
	defer h.Close()

	log := frameshmlog.Default()
	rec := frameshm.NewFrameRecord()
	for {
		err := h.Read(rec, *blocking)
		switch {
		case err == nil:
			fmt.Printf("frame_uid=%d acquisition_time=%d bytes=%d\n", rec.FrameUID, rec.AcquisitionTime, len(rec.Pixels))
		case errors.Is(err, frameshm.ErrNoNewFrame):
			time.Sleep(10 * time.Millisecond)
		case errors.Is(err, frameshm.ErrBlockNotActive):
			log.Info("segment torn down, exiting watch", "name", *name)
			return nil
		default:
			return err
		}
	}
}

func runStatus(args []string) error {
	cfg, err := frameshmcfg.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	name := fs.String("name", "", "segment name")
	cf := bindCommon(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return errors.New("--name is required")
	}

	h, err := frameshm.Open(*name, cf.openOpts()...)
	if err != nil {
		return err
	}
	defer h.Close()

	stats := h.Stats()
	poisoned, err := h.IsPoisoned()
	if err != nil {
		return err
	}
	fmt.Printf("alive=%t frame_cnt=%d active_readers=%d poisoned=%t\n",
		stats.IsAlive, stats.FrameCnt, stats.ActiveReaders, poisoned)

	if err := frameshmcfg.WriteStatusBreadcrumb(frameshmcfg.StatusBreadcrumb{
		Name:          *name,
		OwnerPID:      h.OwnerPID(),
		Alive:         stats.IsAlive,
		Poisoned:      poisoned,
		FrameCnt:      stats.FrameCnt,
		ActiveReaders: stats.ActiveReaders,
	}); err != nil {
		frameshmlog.Default().Warn("status: writing breadcrumb failed", "name", *name, "err", err)
	}
	return nil
}

func runDestroy(args []string) error {
	cfg, err := frameshmcfg.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("destroy", flag.ContinueOnError)
	name := fs.String("name", "", "segment name")
	cf := bindCommon(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return errors.New("--name is required")
	}

	return frameshm.DestroyByName(*name, cf.openOpts()...)
}

func runConfig(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: frameshmctl config get|set <key> [value]")
	}
	cfg, err := frameshmcfg.Load()
	if err != nil {
		return err
	}

	switch args[0] {
	case "get":
		fmt.Printf("dir=%s prefix=%s ring_depth=%d width=%d height=%d depth=%d\n",
			cfg.Dir, cfg.Prefix, cfg.RingDepth, cfg.Width, cfg.Height, cfg.Depth)
		return nil
	case "set":
		if len(args) != 3 {
			return errors.New("usage: frameshmctl config set <key> <value>")
		}
		if err := setConfigField(&cfg, args[1], args[2]); err != nil {
			return err
		}
		if err := frameshmcfg.Save(cfg); err != nil {
			return err
		}
		fmt.Printf("saved %s to %s\n", args[1], frameshmcfg.Path())
		return nil
	default:
		return fmt.Errorf("unknown config subcommand %q", args[0])
	}
}

func setConfigField(cfg *frameshmcfg.Config, key, value string) error {
	switch key {
	case "dir":
		cfg.Dir = value
	case "prefix":
		cfg.Prefix = value
	case "ring_depth", "width", "height", "depth":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		switch key {
		case "ring_depth":
			cfg.RingDepth = n
		case "width":
			cfg.Width = n
		case "height":
			cfg.Height = n
		case "depth":
			cfg.Depth = n
		}
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}

func runRepl(args []string) error {
	cfg, err := frameshmcfg.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("repl", flag.ContinueOnError)
	name := fs.String("name", "", "segment name")
	cf := bindCommon(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return errors.New("--name is required")
	}

	h, err := frameshm.Open(*name, cf.openOpts()...)
	if err != nil {
		return err
	}
	defer h.Close()

	r := newReplSession(*name, h)
	return r.run()
}
