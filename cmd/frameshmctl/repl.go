package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/lattice-io/frameshm/pkg/frameshm"
)

// replSession is the interactive command loop for `frameshmctl repl`:
// liner state, a history file, a completer, and a command-switch loop.
type replSession struct {
	name  string
	h     *frameshm.Handle
	rec   *frameshm.FrameRecord
	liner *liner.State
}

func newReplSession(name string, h *frameshm.Handle) *replSession {
	return &replSession{name: name, h: h, rec: frameshm.NewFrameRecord()}
}

var replCommands = []string{"publish", "read", "status", "poisoned", "destroy", "help", "exit", "quit"}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".frameshmctl_history")
}

func (r *replSession) run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(func(line string) []string {
		var matches []string
		for _, c := range replCommands {
			if strings.HasPrefix(c, line) {
				matches = append(matches, c)
			}
		}
		return matches
	})

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("frameshmctl - frameshm REPL (segment %q)\n", r.name)
	fmt.Println("Type 'help' for available commands.")

	for {
		line, err := r.liner.Prompt("frameshm> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println("\nBye!")
				r.saveHistory()
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.liner.AppendHistory(line)

		if quit := r.dispatch(strings.Fields(line)); quit {
			r.saveHistory()
			return nil
		}
	}
}

func (r *replSession) saveHistory() {
	path := historyFile()
	if path == "" {
		return
	}
	if f, err := os.Create(path); err == nil {
		_, _ = r.liner.WriteHistory(f)
		f.Close()
	}
}

func (r *replSession) dispatch(parts []string) (quit bool) {
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "exit", "quit", "q":
		fmt.Println("Bye!")
		return true

	case "help", "?":
		r.printHelp()

	case "publish":
		r.cmdPublish(args)

	case "read":
		r.cmdRead(args)

	case "status":
		r.cmdStatus()

	case "poisoned":
		r.cmdPoisoned()

	case "destroy":
		if err := r.h.Destroy(); err != nil {
			fmt.Printf("error: %v\n", err)
			return false
		}
		fmt.Println("segment destroyed")
		return true

	default:
		fmt.Printf("unknown command %q, type 'help'\n", cmd)
	}
	return false
}

func (r *replSession) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  publish <file> [time]   Publish pixel bytes read from file")
	fmt.Println("  read [blocking]         Read the next frame (blocking defaults to true)")
	fmt.Println("  status                  Show liveness/frame_cnt/active_readers")
	fmt.Println("  poisoned                Check whether the owner has died without destroying")
	fmt.Println("  destroy                 Tear down the segment and exit")
	fmt.Println("  help                    Show this help")
	fmt.Println("  exit / quit / q         Exit without destroying the segment")
}

func (r *replSession) cmdPublish(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: publish <file> [time]")
		return
	}
	pixels, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	t := uint64(time.Now().UnixNano())
	if len(args) >= 2 {
		v, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			fmt.Printf("error: invalid time: %v\n", err)
			return
		}
		t = v
	}
	width, height, depth := r.h.Geometry()
	if err := r.h.Publish(width, height, depth, t, pixels); err != nil {
		fmt.Printf("error: %v\n", err)
	}
}

func (r *replSession) cmdRead(args []string) {
	blocking := true
	if len(args) >= 1 {
		v, err := strconv.ParseBool(args[0])
		if err != nil {
			fmt.Printf("error: invalid blocking flag: %v\n", err)
			return
		}
		blocking = v
	}
	if err := r.h.Read(r.rec, blocking); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("frame_uid=%d acquisition_time=%d bytes=%d\n", r.rec.FrameUID, r.rec.AcquisitionTime, len(r.rec.Pixels))
}

func (r *replSession) cmdStatus() {
	s := r.h.Stats()
	fmt.Printf("alive=%t frame_cnt=%d active_readers=%d\n", s.IsAlive, s.FrameCnt, s.ActiveReaders)
}

func (r *replSession) cmdPoisoned() {
	poisoned, err := r.h.IsPoisoned()
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("poisoned=%t\n", poisoned)
}
