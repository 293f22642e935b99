package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bamsammich/beamsync/internal/config"
	"github.com/bamsammich/beamsync/internal/engine"
	"github.com/bamsammich/beamsync/internal/event"
	"github.com/bamsammich/beamsync/internal/logging"
	"github.com/bamsammich/beamsync/internal/manifest"
	"github.com/bamsammich/beamsync/internal/proto"
	"github.com/bamsammich/beamsync/internal/stats"
)

var version = "dev"

// statusEvery is how often a running node logs its counters.
const statusEvery = 30 * time.Second

func main() {
	os.Exit(run())
}

// syncFlags holds every flag of the root command.
type syncFlags struct {
	listen      string
	tlsCert     string
	tlsKey      string
	caFile      string
	knownPeers  string
	store       string
	bwLimitStr  string
	logFile     string
	timeout     time.Duration
	interval    time.Duration
	tofu        bool
	watch       bool
	compress    bool
	once        bool
	verbose     bool
	quiet       bool
	showVersion bool
}

func run() int {
	var f syncFlags
	rootCmd := newRootCmd(&f)

	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	return 0
}

func newRootCmd(f *syncFlags) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "beamsync [flags] <folder> [host:port[,host:port...]]",
		Short: "Peer-to-peer folder sync over mutual TLS",
		Long: `beamsync keeps a folder consistent across a static set of peers.

Each peer tracks a versioned manifest of its folder. When two peers connect
they exchange manifests and transfer every file whose version is newer on
one side. Peers authenticate each other with TLS certificates: pin peer
fingerprints in the known_peers file, trust a CA bundle with --ca, or accept
new peers on first contact with --tofu.

With no peer list the node only listens.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if f.showVersion {
				return nil
			}
			return cobra.RangeArgs(1, 2)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.showVersion {
				fmt.Fprintf(os.Stdout, "beamsync %s\n", version)
				return nil
			}
			closeLog, err := logging.Setup(logging.Options{File: f.logFile, Verbose: f.verbose, Quiet: f.quiet})
			if err != nil {
				return err
			}
			defer closeLog() //nolint:errcheck // log file close on exit

			cfg, err := config.Load()
			if err != nil {
				slog.Warn("failed to load config", "path", config.ConfigPath(), "error", err)
			}
			if err := applyConfigDefaults(cmd, cfg.Defaults, f); err != nil {
				return err
			}

			peerList := ""
			if len(args) > 1 {
				peerList = args[1]
			}
			return runSync(cmd.Context(), args[0], peerList, *f)
		},
	}

	rootCmd.Flags().BoolVar(&f.showVersion, "version", false, "print version and exit")

	rootCmd.Flags().
		StringVar(&f.listen, "listen", fmt.Sprintf(":%d", engine.DefaultPort), "listen address (host:port)")
	rootCmd.Flags().StringVar(&f.tlsCert, "tls-cert", "", "TLS certificate file (default: generated in the config dir)")
	rootCmd.Flags().StringVar(&f.tlsKey, "tls-key", "", "TLS private key file")
	rootCmd.Flags().StringVar(&f.caFile, "ca", "", "trust peers whose certificates chain to this PEM CA bundle")
	rootCmd.Flags().
		StringVar(&f.knownPeers, "known-peers", "", "pinned peer fingerprints (default: known_peers in the config dir)")
	rootCmd.Flags().BoolVar(&f.tofu, "tofu", false, "accept and pin unknown peers on first contact")
	rootCmd.Flags().
		DurationVar(&f.timeout, "timeout", proto.DefaultTimeout, "dial, handshake and per-message timeout")
	rootCmd.Flags().
		DurationVar(&f.interval, "interval", 0, "resync with peers this often (0: once at startup)")
	rootCmd.Flags().BoolVar(&f.watch, "watch", false, "resync after local changes")
	rootCmd.Flags().BoolVar(&f.compress, "compress", false, "offer zstd compression to peers")
	rootCmd.Flags().StringVar(&f.bwLimitStr, "bwlimit", "", "outbound bandwidth limit per second (e.g. 10MB)")
	rootCmd.Flags().
		StringVar(&f.store, "store", manifest.BackendJSON, "manifest backend (json or sqlite)")
	rootCmd.Flags().BoolVar(&f.once, "once", false, "sync with every peer once, then exit")
	rootCmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "verbose output")
	rootCmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "suppress all output except warnings and errors")
	rootCmd.Flags().StringVar(&f.logFile, "log", "", "also write a structured JSON log to FILE")
	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(fingerprintCmd)
	rootCmd.AddCommand(statusCmd)
	return rootCmd
}

//nolint:revive // cognitive-complexity: wires store, identity, trust and node
func runSync(parent context.Context, folder, peerList string, f syncFlags) error {
	if parent == nil {
		parent = context.Background()
	}

	peers, err := engine.ParsePeers(peerList)
	if err != nil {
		return err
	}
	if f.once && len(peers) == 0 {
		return errors.New("--once needs at least one peer")
	}

	var bwLimit int64
	if f.bwLimitStr != "" {
		n, err := humanize.ParseBytes(f.bwLimitStr)
		if err != nil {
			return fmt.Errorf("invalid --bwlimit: %w", err)
		}
		bwLimit = int64(n) //nolint:gosec // G115: parsed limits are far below MaxInt64
	}

	store, err := manifest.Open(folder, manifest.Options{Backend: f.store})
	if err != nil {
		return err
	}
	defer store.Close()

	res, err := store.Reconcile(parent)
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", store.Root(), err)
	}
	for _, e := range res.Errors {
		slog.Warn("scan error", "error", e)
	}
	slog.Info("folder reconciled",
		"folder", store.Root(),
		"files", res.Files,
		"changed", len(res.Changed),
		"manifest", store.BackendPath(),
	)

	cert, fingerprint, err := proto.LoadOrGenerateCert(f.tlsCert, f.tlsKey)
	if err != nil {
		return fmt.Errorf("TLS identity: %w", err)
	}
	slog.Info("TLS identity", "fingerprint", fingerprint)

	trust, err := loadTrust(f)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer engine.CleanupTmpFiles()

	collector := stats.NewCollector()
	events := make(chan event.Event, 256)
	go logEvents(events)
	defer close(events)

	node, err := engine.New(engine.Config{
		Store:       store,
		Trust:       trust,
		Stats:       collector,
		Events:      events,
		ListenAddr:  f.listen,
		Peers:       peers,
		Certificate: cert,
		Timeout:     f.timeout,
		Interval:    f.interval,
		BWLimit:     bwLimit,
		Compress:    f.compress,
		Watch:       f.watch,
	})
	if err != nil {
		return err
	}

	if f.once {
		return syncOnce(ctx, node, collector)
	}

	if err := node.Listen(); err != nil {
		return err
	}
	metaDir := filepath.Join(store.Root(), manifest.MetaDir)
	if err := config.WriteRuntimeInfo(metaDir, config.RuntimeInfo{
		NodeID:      node.ID(),
		Listen:      node.Addr().String(),
		Fingerprint: fingerprint,
		PID:         os.Getpid(),
	}); err != nil {
		slog.Warn("failed to write runtime file", "error", err)
	}
	defer config.RemoveRuntimeInfo(metaDir)

	go reportStatus(ctx, collector)

	if err := node.Run(ctx); err != nil {
		return err
	}
	slog.Info("shutting down", "stats", collector.Snapshot())
	return nil
}

// syncOnce runs a single round with every peer and maps failures to exit
// code 1.
func syncOnce(ctx context.Context, node *engine.Node, collector *stats.Collector) error {
	results := node.SyncPeers(ctx)

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			continue
		}
		if r.Rejected > 0 || r.SendFailed > 0 {
			slog.Warn("session completed with file errors",
				"peer", r.Peer, "rejected", r.Rejected, "send_failed", r.SendFailed)
		}
	}

	slog.Info("sync round complete", "peers", len(results), "failed", failed, "stats", collector.Snapshot())
	if failed > 0 {
		return &exitError{code: 1}
	}
	return nil
}

func loadTrust(f syncFlags) (*proto.Trust, error) {
	trust := &proto.Trust{TOFU: f.tofu}

	if f.caFile != "" {
		pool, err := proto.LoadCAPool(f.caFile)
		if err != nil {
			return nil, err
		}
		trust.CAs = pool
		return trust, nil
	}

	known, err := proto.LoadKnownPeers(f.knownPeers)
	if err != nil {
		return nil, fmt.Errorf("load known peers: %w", err)
	}
	trust.Known = known

	if known.Len() == 0 && !f.tofu {
		slog.Warn("no trusted peers configured; every connection will be rejected",
			"hint", "pin fingerprints in known_peers, pass --ca, or use --tofu")
	}
	if f.tofu {
		slog.Warn("trust on first use enabled; unknown peers will be pinned on first contact")
	}
	return trust, nil
}

// logEvents records session events at debug level until events is closed.
func logEvents(events <-chan event.Event) {
	for ev := range events {
		attrs := []slog.Attr{
			slog.String("type", ev.Type.String()),
			slog.String("session", shortID(ev.Session)),
			slog.String("peer", ev.Peer),
		}
		if ev.Path != "" {
			attrs = append(attrs, slog.String("path", ev.Path), slog.Uint64("version", ev.Version))
		}
		if ev.Error != nil {
			attrs = append(attrs, slog.String("error", ev.Error.Error()))
		}
		slog.LogAttrs(context.Background(), slog.LevelDebug, "beamsync.event", attrs...)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// reportStatus ticks the collector every second and logs counters and
// rolling transfer rates whenever they changed.
func reportStatus(ctx context.Context, collector *stats.Collector) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var last stats.Snapshot
	lastReport := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			collector.Tick()
			if time.Since(lastReport) < statusEvery {
				continue
			}
			lastReport = time.Now()

			snap := collector.Snapshot()
			snap.Elapsed = 0
			if snap == last {
				continue
			}
			last = snap
			slog.Info("status",
				"stats", snap,
				"send_rate", stats.FormatRate(collector.RollingSendSpeed(int(statusEvery/time.Second))),
				"recv_rate", stats.FormatRate(collector.RollingReceiveSpeed(int(statusEvery/time.Second))),
			)
		}
	}
}

// applyConfigDefaults applies config file defaults for flags not explicitly
// set on the CLI.
func applyConfigDefaults(cmd *cobra.Command, d config.DefaultsConfig, f *syncFlags) error {
	set := func(name string) bool { return !cmd.Flags().Changed(name) }

	if set("listen") && d.Listen != nil {
		f.listen = *d.Listen
	}
	if set("compress") && d.Compress != nil {
		f.compress = *d.Compress
	}
	if set("bwlimit") && d.BWLimit != nil {
		f.bwLimitStr = *d.BWLimit
	}
	if set("store") && d.Store != nil {
		f.store = *d.Store
	}
	if set("known-peers") && d.KnownPeers != nil {
		f.knownPeers = *d.KnownPeers
	}
	if set("tofu") && d.TOFU != nil {
		f.tofu = *d.TOFU
	}
	if set("timeout") && d.Timeout != nil {
		v, err := time.ParseDuration(*d.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		f.timeout = v
	}
	if set("interval") && d.Interval != nil {
		v, err := time.ParseDuration(*d.Interval)
		if err != nil {
			return fmt.Errorf("config interval: %w", err)
		}
		f.interval = v
	}
	return nil
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
