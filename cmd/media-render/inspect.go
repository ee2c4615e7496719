package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"media-render/internal/codec"
	"media-render/internal/jobstore"
	"media-render/internal/logging"
	"media-render/internal/startup"
)

// defaultHistory is the number of jobs history lists without an argument.
const defaultHistory = 20

// probe lists the streams of a media file.
func (a *app) probe(ctx context.Context, path string) int {
	in, err := a.backend().OpenInput(ctx, path)
	if err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return exitError
	}
	defer func() {
		if err := in.Close(); err != nil {
			logging.Warn("failed to close %s: %v", path, err)
		}
	}()

	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tKIND\tCODEC\tDURATION\tFORMAT")
	for _, s := range in.Streams() {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.3fs\t%s\n", s.Index, streamKind(s.Kind), s.Codec, s.Duration.Float64(), streamFormat(s))
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return exitError
	}
	return exitOK
}

func streamKind(k codec.MediaKind) string {
	switch k {
	case codec.KindVideo, codec.KindAudio:
		return k.String()
	default:
		return "other"
	}
}

func streamFormat(s codec.StreamInfo) string {
	switch s.Kind {
	case codec.KindVideo:
		if s.FrameRate.IsZero() {
			return s.Video.String()
		}
		return fmt.Sprintf("%s @ %s fps", s.Video, s.FrameRate)
	case codec.KindAudio:
		return s.Audio.String()
	default:
		return "-"
	}
}

// history prints the most recent jobs, newest first.
func (a *app) history(ctx context.Context, args []string) int {
	limit := defaultHistory
	if len(args) > 1 {
		fmt.Fprintln(a.stderr, "Usage: media-render history [limit]")
		return exitUsage
	}
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			fmt.Fprintf(a.stderr, "Invalid limit: %s\n", sanitizeCommand(args[0]))
			return exitUsage
		}
		limit = n
	}

	cfg := startup.LoadConfig()
	store, err := jobstore.Open(ctx, cfg.DatabasePath)
	if err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return exitError
	}
	defer store.Close()

	records, err := store.List(ctx, limit)
	if err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return exitError
	}
	if len(records) == 0 {
		fmt.Fprintln(a.stdout, "No jobs recorded")
		return exitOK
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tPROFILE\tSTATUS\tMODE\tFRAMES\tDURATION\tOUTPUT")
	for _, r := range records {
		mode := r.Mode
		if mode == "" {
			mode = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%v\t%s\n",
			r.StartedAt.Local().Format(time.DateTime), r.ProfileID, r.Status, mode,
			r.Frames, r.Duration().Round(time.Millisecond), r.Output)
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return exitError
	}
	return exitOK
}
