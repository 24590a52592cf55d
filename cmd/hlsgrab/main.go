package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/heyjunin/HLSgrab/pkg/acquire"
	"github.com/heyjunin/HLSgrab/pkg/config"
	"github.com/heyjunin/HLSgrab/pkg/downloader"
	"github.com/heyjunin/HLSgrab/pkg/errors"
	"github.com/heyjunin/HLSgrab/pkg/history"
	"github.com/heyjunin/HLSgrab/pkg/logger"
	"github.com/heyjunin/HLSgrab/pkg/metrics"
	"github.com/heyjunin/HLSgrab/pkg/progress"
	"github.com/heyjunin/HLSgrab/pkg/remux"
	"github.com/heyjunin/HLSgrab/pkg/saver"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// Exit codes.
const (
	exitOK        = 0
	exitFailed    = 1
	exitCancelled = 130
)

var (
	// Config file and logging
	configPath string
	logLevel   string
	logFormat  string

	// Output options
	outputDir  string
	outputName string
	overwrite  bool
	workDir    string

	// Network options
	batchSize      int
	segmentTimeout time.Duration
	rps            float64
	userAgent      string

	// Remux options
	ffmpegBinary  string
	ffprobeBinary string
	skipRemux     bool

	// Progress options
	progressFile       string
	progressFileFormat string
	quiet              bool

	// Observability and history
	metricsAddr string
	historyDB   string
	noHistory   bool

	exitCode = exitOK
)

func main() {
	logger.Init()

	rootCmd := &cobra.Command{
		Use:   "hlsgrab <url>",
		Short: "hlsgrab - save an HLS stream as a single local media file",
		Long: `hlsgrab fetches an HLS playlist, picks a variant and saves the stream as one file.
It remuxes the whole stream with ffmpeg (stream copy) and, when that operation is
stopped, downloads every segment and concatenates them in order instead.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		Run:           runAcquire,
	}

	// Persistent flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a JSON config file (default: user config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "Log format: 'json' or 'console'")
	rootCmd.PersistentFlags().StringVar(&userAgent, "user-agent", downloader.DefaultUserAgent, "User-Agent sent with every request")
	rootCmd.PersistentFlags().StringVar(&historyDB, "history-db", "", "Path to the job history database")

	// Output flags
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Directory to save the file in (default: ~/Downloads)")
	rootCmd.Flags().StringVar(&outputName, "name", "", "Output file name (default: derived from the playlist URL)")
	rootCmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite an existing file instead of picking a free name")
	rootCmd.Flags().StringVar(&workDir, "work-dir", "", "Directory for temporary job files")

	// Network flags
	rootCmd.Flags().IntVar(&batchSize, "batch-size", 8, "Number of segments downloaded concurrently")
	rootCmd.Flags().DurationVar(&segmentTimeout, "segment-timeout", downloader.DefaultSegmentTimeout, "Timeout for a single segment request")
	rootCmd.Flags().Float64Var(&rps, "rps", 0, "Maximum requests per second (0 = unlimited)")

	// Remux flags
	rootCmd.Flags().StringVar(&ffmpegBinary, "ffmpeg", "ffmpeg", "Path to ffmpeg binary")
	rootCmd.Flags().StringVar(&ffprobeBinary, "ffprobe", "ffprobe", "Path to ffprobe binary")
	rootCmd.Flags().BoolVar(&skipRemux, "skip-remux", false, "Skip the ffmpeg remux and download segments directly")

	// Progress flags
	rootCmd.Flags().StringVar(&progressFile, "progress-file", "", "File to write progress updates to")
	rootCmd.Flags().StringVar(&progressFileFormat, "progress-file-format", "text", "Progress file format: 'text' (percentage) or 'json'")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not draw the console progress bar")

	// Observability and history flags
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	rootCmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record the job in the history database")

	rootCmd.AddCommand(newInspectCmd(), newHistoryCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(exitFailed)
	}
	os.Exit(exitCode)
}

// loadConfig layers the config file, HLSGRAB_* variables and explicitly set flags,
// then configures the global logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()

	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Lookup(name) != nil && flags.Changed(name) {
			apply()
		}
	}
	set("log-level", func() { cfg.LogLevel = logLevel })
	set("log-format", func() { cfg.LogFormat = logFormat })
	set("user-agent", func() { cfg.UserAgent = userAgent })
	set("history-db", func() { cfg.HistoryDB = historyDB })
	set("output", func() { cfg.OutputDir = outputDir })
	set("overwrite", func() { cfg.Overwrite = overwrite })
	set("work-dir", func() { cfg.WorkDir = workDir })
	set("batch-size", func() { cfg.BatchSize = batchSize })
	set("segment-timeout", func() { cfg.SegmentTimeout = config.Duration(segmentTimeout) })
	set("rps", func() { cfg.RequestsPerSecond = rps })
	set("ffmpeg", func() { cfg.FFmpegPath = ffmpegBinary })
	set("ffprobe", func() { cfg.FFprobePath = ffprobeBinary })
	set("skip-remux", func() { cfg.SkipRemux = skipRemux })
	set("progress-file", func() { cfg.ProgressFile = progressFile })
	set("progress-file-format", func() { cfg.ProgressFileFormat = progressFileFormat })
	set("metrics-addr", func() { cfg.MetricsAddr = metricsAddr })
	set("no-history", func() { cfg.NoHistory = noHistory })

	logger.Configure(logger.Options{
		Level:   logger.LogLevel(cfg.LogLevel),
		Console: cfg.LogFormat == "console",
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-signalChan:
			logger.Info("Received signal, cancelling", "main", map[string]interface{}{
				"signal": sig.String(),
			})
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signalChan)
	}()
	return ctx, cancel
}

func runAcquire(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fail(err)
		return
	}

	ctx, cancel := signalContext()
	defer cancel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, reg); err != nil {
				logger.Error("Metrics server failed", "main", map[string]interface{}{
					"addr":  cfg.MetricsAddr,
					"error": err.Error(),
				})
			}
		}()
	}

	client := downloader.New(cfg.DownloaderOptions(m))

	var service remux.Service
	if !cfg.SkipRemux {
		ff := remux.NewFFmpeg(remux.FFmpegOptions{
			Binary:      cfg.FFmpegPath,
			ProbeBinary: cfg.FFprobePath,
			UserAgent:   cfg.UserAgent,
		})
		if err := ff.Check(ctx); err != nil {
			logger.Warn("FFmpeg not available, downloading segments directly", "main", map[string]interface{}{
				"ffmpeg": cfg.FFmpegPath,
				"error":  err.Error(),
			})
		} else {
			service = ff
		}
	}

	orchestrator := acquire.New(client, client, service, acquire.Options{
		SkipPrimary: cfg.SkipRemux,
		WorkDir:     cfg.WorkDir,
		BatchSize:   cfg.BatchSize,
		Metrics:     m,
	})

	var store *history.Store
	if !cfg.NoHistory {
		store, err = history.Open(ctx, cfg.HistoryDB)
		if err != nil {
			logger.Warn("History disabled", "main", map[string]interface{}{
				"path":  cfg.HistoryDB,
				"error": err.Error(),
			})
		} else {
			defer store.Close()
		}
	}

	var opts []progress.Option
	if !quiet {
		opts = append(opts, progress.WithSink(progress.NewBarSink(os.Stderr, "hlsgrab")))
	}
	if cfg.ProgressFile != "" {
		opts = append(opts, progress.WithSink(progress.NewFileSink(cfg.ProgressFile, cfg.ProgressFileFormat)))
	}

	var final acquire.Notification
	session := acquire.NewSession(orchestrator, func(n acquire.Notification) {
		final = n
	})

	logger.Info("Starting job", "main", map[string]interface{}{
		"url":        args[0],
		"output_dir": cfg.OutputDir,
		"skip_remux": service == nil,
	})
	session.Start(ctx, args[0], opts...)
	session.Wait()

	dest := ""
	if final.Err == nil {
		dest, err = saveResult(final.Result, cfg)
		if err != nil {
			final.Err = err
			final.Outcome = acquire.OutcomeFailed
		}
	}

	if store != nil {
		entry := history.Entry{
			ID:           final.JobID,
			URL:          final.URL,
			MediaURL:     final.MediaURL,
			Path:         dest,
			Outcome:      string(final.Outcome),
			UsedFallback: final.UsedFallback,
			Segments:     final.Segments,
			Bytes:        final.Bytes,
			StartedAt:    final.StartedAt,
			FinishedAt:   final.FinishedAt,
		}
		if final.Err != nil {
			entry.Error = final.Err.Error()
		}
		if err := store.Record(context.Background(), entry); err != nil {
			logger.Warn("Failed to record job", "main", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	switch final.Outcome {
	case acquire.OutcomeSucceeded:
		fmt.Println(dest)
	case acquire.OutcomeCancelled:
		fmt.Println("cancelled")
		exitCode = exitCancelled
	default:
		fail(final.Err)
	}
}

// saveResult moves the job output into the output directory and removes the job's temp files.
func saveResult(res *acquire.Result, cfg *config.Config) (string, error) {
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Warn("Failed to remove job directory", "main", map[string]interface{}{
				"job":   res.JobID,
				"error": err.Error(),
			})
		}
	}()

	name := res.SuggestedName
	if outputName != "" {
		name = outputName
		if filepath.Ext(name) == "" {
			name += filepath.Ext(res.Path)
		}
	}
	// ctx may already be cancelled by a late signal
	return saver.Save(context.Background(), res.Path, cfg.OutputDir, name, cfg.Overwrite)
}

// fail prints the single failure line and sets a non-zero exit code.
func fail(err error) {
	exitCode = exitFailed
	if errors.IsType(err, errors.Cancelled) {
		exitCode = exitCancelled
		fmt.Println("cancelled")
		return
	}
	fmt.Printf("failed: %v\n", err)
}
