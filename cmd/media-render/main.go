package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"media-render/internal/codec"
	"media-render/internal/codec/libav"
	"media-render/internal/startup"
)

// Exit codes
const (
	exitOK       = 0
	exitError    = 1
	exitUsage    = 2
	exitCanceled = 130
)

// app carries what every command needs. Tests swap the backend and writers.
type app struct {
	backend func() codec.Backend
	stdout  io.Writer
	stderr  io.Writer
	// tty enables the in-place progress line.
	tty bool
}

func main() {
	// Create a context that cancels on interrupt signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		startup.LogShutdownInitiated(sig.String())
		fmt.Fprintln(os.Stderr, "Interrupted, finishing the output...")
		cancel()
	}()

	a := &app{
		backend: func() codec.Backend { return libav.New() },
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		tty:     term.IsTerminal(int(os.Stdout.Fd())),
	}
	code := a.run(ctx, os.Args[1:])
	cancel()
	os.Exit(code)
}

func (a *app) run(ctx context.Context, args []string) int {
	if len(args) < 1 {
		a.printUsage()
		return exitUsage
	}

	command, rest := args[0], args[1:]
	switch command {
	case "render":
		if len(rest) < 1 || len(rest) > 2 {
			fmt.Fprintln(a.stderr, "Usage: media-render render <profile.json> [output]")
			return exitUsage
		}
		output := ""
		if len(rest) == 2 {
			output = rest[1]
		}
		return a.render(ctx, rest[0], output)
	case "probe":
		if len(rest) != 1 {
			fmt.Fprintln(a.stderr, "Usage: media-render probe <media>")
			return exitUsage
		}
		return a.probe(ctx, rest[0])
	case "history":
		return a.history(ctx, rest)
	case "version", "--version", "-v":
		a.printVersion()
		return exitOK
	case "help", "--help", "-h":
		a.printUsage()
		return exitOK
	default:
		fmt.Fprintf(a.stderr, "Unknown command: %s\n", sanitizeCommand(command))
		a.printUsage()
		return exitUsage
	}
}

// sanitizeCommand returns a safe representation of a command string for display.
// It uses an allowlist approach, replacing any character that is not alphanumeric,
// a hyphen, or an underscore with '_'.
func sanitizeCommand(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for _, r := range cmd {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func (a *app) printUsage() {
	w := a.stdout
	fmt.Fprintln(w, "Media Render")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage: media-render <command> [arguments]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  render <profile.json> [output]  - Render a timeline profile")
	fmt.Fprintln(w, "  probe <media>                   - List the streams of a media file")
	fmt.Fprintln(w, "  history [limit]                 - Show recent render jobs")
	fmt.Fprintln(w, "  version                         - Print build information")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Configuration is read from the environment; see RENDER_*, VIDEO_*, AUDIO_*,")
	fmt.Fprintln(w, "HW_ACCEL, HW_MODE, QUEUE_CAPACITY, DRAIN_ON_CANCEL, DATABASE_DIR and METRICS_ADDR.")
}

func (a *app) printVersion() {
	info := startup.GetBuildInfo()
	fmt.Fprintf(a.stdout, "media-render %s\n", info.Version)
	fmt.Fprintf(a.stdout, "  commit:  %s\n", info.Commit)
	fmt.Fprintf(a.stdout, "  built:   %s\n", info.BuildTime)
	fmt.Fprintf(a.stdout, "  go:      %s %s/%s\n", info.GoVersion, info.OS, info.Arch)
}
