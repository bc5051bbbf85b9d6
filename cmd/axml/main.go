package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	axml "github.com/cbegin/axml-go"
	"github.com/cbegin/axml-go/internal/config"
	"github.com/cbegin/axml-go/internal/samples"
	"github.com/cbegin/axml-go/internal/server"
)

var version = "0.1.0"

var (
	cfg    *config.Config
	logger *slog.Logger

	outputPath string
	seed       int64
	masterGain float64
	volume     float64
	port       int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "axml",
	Short: "Play and render AXML songs",
	Long: `axml plays songs written in AXML, an XML music notation with
synthesized instruments, reusable patterns and tracks.

Pipeline: parse → flatten → schedule → synthesize`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var playCmd = &cobra.Command{
	Use:   "play FILE",
	Short: "Play a song on the default audio device",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlay,
}

var renderCmd = &cobra.Command{
	Use:   "render FILE",
	Short: "Render a song to a 16-bit stereo WAV file",
	Long: `Render a song offline at 44.1 kHz with a two second tail.

Examples:
  axml render song.axml
  axml render song.axml -o out.wav --seed 7`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect FILE",
	Short: "Summarize a song's metadata, instruments and tracks",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the parse and render HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(serveCmd)

	playCmd.Flags().Float64VarP(&volume, "volume", "v", 1.0, "Master volume scalar")

	renderCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output WAV file (default: derived from the title)")
	renderCmd.Flags().Int64Var(&seed, "seed", 0, "Seed for noise and reverb (default: random)")
	renderCmd.Flags().Float64Var(&masterGain, "gain", 1.0, "Master gain")

	serveCmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on (default: AXML_PORT)")
}

// setup loads the environment, configuration and logger shared by every
// subcommand.
func setup(cmd *cobra.Command, _ []string) error {
	// a missing .env is fine
	_ = godotenv.Load()
	cfg = config.Load()
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)
	return nil
}

func readSong(path string) (*axml.Document, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", path, err)
	}
	doc, err := axml.Parse(string(text))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func runPlay(cmd *cobra.Command, args []string) error {
	text, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %q: %w", args[0], err)
	}
	pl, err := axml.NewPlayer(
		axml.WithSampleRate(cfg.SampleRate),
		axml.WithLogger(logger),
		axml.WithMaxPatternDepth(cfg.MaxPatternDepth),
		axml.WithSampleTimeout(cfg.SampleTimeout),
	)
	if err != nil {
		return err
	}
	defer pl.Close()

	doc, err := pl.LoadText(string(text))
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	pl.SetMasterGain(volume)
	if err := pl.LoadSamples(cmd.Context()); err != nil {
		logger.Warn("some samples failed to load", "error", err)
	}

	ch := pl.Watch()
	if err := pl.Play(); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	fmt.Printf("playing %q (%.1fs)\n", doc.Metadata.Title, pl.Duration())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	for {
		select {
		case ev := <-ch:
			fmt.Printf("event=%s\n", ev.Kind)
			if ev.Kind == axml.EventPlaybackEnded {
				pl.Wait()
				return nil
			}
		case <-sigCh:
			pl.Stop()
		}
	}
}

func runRender(cmd *cobra.Command, args []string) error {
	doc, err := readSong(args[0])
	if err != nil {
		return err
	}

	bank := samples.NewBank(axml.OfflineSampleRate,
		samples.WithTimeout(cfg.SampleTimeout),
		samples.WithLogger(logger))
	if err := bank.Load(cmd.Context(), doc.SampleSources()); err != nil {
		logger.Warn("some samples failed to load", "error", err)
	}

	opts := []axml.RenderOption{
		axml.WithSampleBank(bank),
		axml.WithPatternDepth(cfg.MaxPatternDepth),
		axml.WithMasterGain(masterGain),
		axml.WithMaxSeconds(cfg.MaxRenderLength.Seconds()),
	}
	if cmd.Flags().Changed("seed") {
		opts = append(opts, axml.WithSeed(seed))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	buf, err := axml.Render(ctx, doc, opts...)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	out := outputPath
	if out == "" {
		out = axml.SuggestedFileName(doc.Metadata)
	}
	if err := os.WriteFile(out, axml.EncodeWAV(buf), 0o644); err != nil {
		return fmt.Errorf("write %q: %w", out, err)
	}
	logger.Info("song rendered",
		"file", out,
		"duration", buf.Seconds(),
		"elapsed_ms", time.Since(start).Milliseconds())
	fmt.Println(out)
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	doc, err := readSong(args[0])
	if err != nil {
		return err
	}
	fmt.Println(renderSummary(doc, cfg.MaxPatternDepth))
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	if cmd.Flags().Changed("port") {
		cfg.Port = strconv.Itoa(port)
	}

	opts := []server.Option{server.WithLogger(logger)}
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			Release:          "axml@" + version,
			EnableTracing:    true,
			TracesSampleRate: 1.0,
			Debug:            !cfg.IsProduction(),
		}); err != nil {
			logger.Error("sentry initialization failed", "error", err)
		} else {
			logger.Info("sentry initialized", "env", cfg.Environment)
			opts = append(opts, server.WithSentry())
			defer sentry.Flush(2 * time.Second)
		}
	}

	return server.New(cfg, opts...).Run()
}
