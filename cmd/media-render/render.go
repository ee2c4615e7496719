package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"media-render/internal/filesystem"
	"media-render/internal/jobstore"
	"media-render/internal/logging"
	"media-render/internal/mediatypes"
	"media-render/internal/memory"
	"media-render/internal/metrics"
	"media-render/internal/pipeline"
	"media-render/internal/profile"
	"media-render/internal/startup"
)

// collectInterval is how often job history gauges are refreshed while a
// render runs.
const collectInterval = 15 * time.Second

func (a *app) render(ctx context.Context, profilePath, output string) int {
	cfg := startup.LoadConfig()
	if output != "" {
		cfg.Output = output
	}
	cfg.PrepareDatabaseDir()
	startup.LogConfig(cfg)
	startup.LogMemoryConfig(memory.ConfigureFromEnv())

	metrics.InitializeMetrics()
	info := startup.GetBuildInfo()
	metrics.SetAppInfo(info.Version, info.Commit, info.GoVersion)
	filesystem.SetObserver(metrics.NewFilesystemObserver())

	r, err := profile.Load(profilePath)
	if err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return exitError
	}
	digest, err := r.Digest()
	if err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return exitError
	}
	resolveSources(r, filepath.Dir(profilePath))
	for _, src := range r.Sources() {
		if mediatypes.GetFileType(src) == mediatypes.FileTypeOther {
			logging.Warn("Source %s has an unrecognized extension", src)
		}
	}

	outPath := cfg.OutputPath(profilePath, r)
	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"sources":  filepath.Dir(profilePath),
		"output":   filepath.Dir(outPath),
		"database": cfg.DatabaseDir,
	}))
	if err := filesystem.CheckSources(r.Sources(), filesystem.DefaultRetryConfig()); err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return exitError
	}
	if err := filesystem.EnsureOutputDir(outPath); err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return exitError
	}

	store := a.openHistory(ctx, cfg)
	if store != nil {
		defer func() {
			if err := store.Close(); err != nil {
				logging.Warn("failed to close job database: %v", err)
			}
		}()
		collector := metrics.NewCollector(store, collectInterval)
		collector.Start()
		defer collector.Stop()
	}

	if cfg.MetricsAddr != "" {
		srv, err := metrics.Listen(cfg.MetricsAddr)
		if err != nil {
			logging.Warn("Metrics server disabled: %v", err)
		} else {
			srvCtx, stop := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				defer close(done)
				if err := srv.Serve(srvCtx); err != nil {
					logging.Warn("Metrics server error: %v", err)
				}
			}()
			defer func() {
				stop()
				<-done
			}()
		}
	}

	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()
	defer monitor.Stop()

	bar := newProgress(a.stdout, a.tty)
	job, err := pipeline.NewJob(pipeline.Config{
		Profile:       r,
		Backend:       a.backend(),
		Output:        cfg.EncoderConfig(outPath, r),
		HWAccel:       cfg.HWAccel,
		QueueCapacity: cfg.QueueCapacity,
		DrainPolicy:   cfg.DrainPolicy,
		Start:         cfg.Start,
		Progress:      bar.Update,
		Monitor:       monitor,
	})
	if err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return exitError
	}

	var id string
	if store != nil {
		if id, err = store.Begin(ctx, r.ID, digest, outPath); err != nil {
			logging.Warn("Job will not be recorded: %v", err)
		}
	}
	startup.LogJobStarted(id, r.ID, outPath)

	sum, runErr := job.Run(ctx)
	bar.Done()

	status := jobstore.StatusFor(runErr)
	if store != nil && id != "" {
		outcome := jobstore.Outcome{
			Frames:      sum.Frames,
			AudioChunks: sum.AudioChunks,
			Discarded:   sum.UnitsDiscarded,
			Mode:        sum.Mode.String(),
			Err:         runErr,
		}
		// The render context may be cancelled; the record must still land.
		if err := store.Finish(context.Background(), id, outcome); err != nil {
			logging.Warn("Failed to record job %s: %v", id, err)
		}
	}
	startup.LogJobFinished(status, sum.Frames, sum.Duration)

	switch status {
	case jobstore.StatusSuccess:
		fmt.Fprintf(a.stdout, "%s\n", outPath)
		return exitOK
	case jobstore.StatusCanceled:
		fmt.Fprintf(a.stderr, "Cancelled after %d frames; %s was finalized\n", sum.Frames, outPath)
		return exitCanceled
	default:
		fmt.Fprintf(a.stderr, "Error: %v\n", runErr)
		if errors.Is(runErr, pipeline.ErrAborted) {
			fmt.Fprintf(a.stderr, "%s is incomplete\n", outPath)
		}
		return exitError
	}
}

// openHistory opens the job database, or returns nil when history is
// unavailable. History never blocks a render.
func (a *app) openHistory(ctx context.Context, cfg *startup.Config) *jobstore.Store {
	if !cfg.HistoryEnabled {
		return nil
	}
	store, err := jobstore.Open(ctx, cfg.DatabasePath)
	if err != nil {
		logging.Warn("Job history disabled: %v", err)
		return nil
	}
	return store
}

// resolveSources makes relative layer sources relative to dir.
func resolveSources(r *profile.Render, dir string) {
	for i := range r.Atoms {
		for j := range r.Atoms[i].Layers {
			l := &r.Atoms[i].Layers[j]
			if l.Source != "" && !filepath.IsAbs(l.Source) {
				l.Source = filepath.Join(dir, l.Source)
			}
		}
	}
}
