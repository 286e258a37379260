// Command ammd runs the exchange: it owns the pool registry and the ledger,
// executes operations atomically and serves quotes and the state stream over
// JSON-RPC (HTTP and WebSocket).
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/defistate/defistate-amm-go/cmd/ammd/config"
	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/executor"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/defistate/defistate-amm-go/periphery"
	"github.com/defistate/defistate-amm-go/protocols/assetpoolregistry"
	"github.com/defistate/defistate-amm-go/protocols/assetregistry"
	"github.com/defistate/defistate-amm-go/protocols/poolregistry"
	"github.com/defistate/defistate-amm-go/storage/pebble"
	"github.com/defistate/defistate-amm-go/streams/jsonrpc/server"
	"github.com/defistate/defistate-amm-go/streams/jsonrpc/stateops"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/natefinch/lumberjack.v2"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	rootLogger, logCloser := newLogger(cfg.Log)
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, rootLogger); err != nil {
		rootLogger.Error("ammd stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.DaemonConfig, rootLogger *slog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// --- 1. ASSETS ---
	assets := assetregistry.NewRegistry()
	configured, err := cfg.AssetList()
	if err != nil {
		return err
	}
	for _, a := range configured {
		if err := assets.Register(a); err != nil {
			return err
		}
	}

	// --- 2. STORAGE ---
	backend, err := openBackend(cfg.Storage)
	if err != nil {
		return err
	}
	defer backend.close()

	pools, err := poolregistry.New(backend.pools)
	if err != nil {
		return err
	}
	book := ledger.New()
	if backend.balances != nil {
		if book, err = ledger.Open(backend.balances); err != nil {
			return err
		}
	}
	rootLogger.Info("Storage loaded", "pools", pools.Len(), "backend", cfg.Storage.Backend)

	// --- 3. ENGINE & EXECUTOR ---
	eng, err := engine.New(engine.Config{
		Contract:   cfg.ContractID(),
		Fees:       cfg.Fees,
		Pools:      pools,
		Assets:     assets,
		LPAssets:   assets,
		Ledger:     book,
		Logger:     rootLogger.With("component", "engine"),
		LPSymbol:   cfg.LPSymbol,
		Registerer: registry,
	})
	if err != nil {
		return err
	}
	if err := eng.Restore(pools.View()); err != nil {
		return err
	}

	// The store's batch is written after every journal has staged into it.
	journals := []executor.Journal{pools, book}
	if backend.batch != nil {
		journals = append(journals, backend.batch)
	}
	exec, err := executor.New(&executor.Config{
		Journals: journals,
		Logger:   rootLogger.With("component", "executor"),
		Registry: registry,
	})
	if err != nil {
		return err
	}

	periph, err := periphery.New(&periphery.Config{
		Engine:   eng,
		Ledger:   book,
		Executor: exec,
		Logger:   rootLogger.With("component", "periphery"),
	})
	if err != nil {
		return err
	}

	// --- 4. STATE STREAM ---
	ops, err := stateops.NewStateOps(rootLogger.With("component", "stateops"), registry)
	if err != nil {
		return err
	}
	graph := assetpoolregistry.NewAssetPoolSystem()
	stream, err := server.New(&server.Config{
		Pools:      pools,
		Assets:     assets,
		Graph:      graph,
		Differ:     ops,
		Fees:       cfg.Fees,
		Logger:     rootLogger.With("component", "jsonrpc-server"),
		Registry:   registry,
		BufferSize: cfg.Stream.BufferSize,
	})
	if err != nil {
		return err
	}
	exec.OnCommit(stream.Publish)

	// --- 5. RPC ---
	rpcServer := rpc.NewServer()
	defer rpcServer.Stop()
	if err := rpcServer.RegisterName(server.RpcNamespace, server.NewAPI(stream)); err != nil {
		return err
	}
	if cfg.EnableOps {
		if err := rpcServer.RegisterName(server.OpsNamespace, server.NewOpsAPI(periph, book, exec)); err != nil {
			return err
		}
		// Callers name the account they act for; nothing authenticates them.
		warn := rootLogger.Warn
		if cfg.OpsExposed() {
			warn = rootLogger.Error
		}
		warn("Operations API enabled: any client can move any account's funds, never expose it to an untrusted network",
			"namespace", server.OpsNamespace, "listen", cfg.ListenAddr, "exposed", cfg.OpsExposed())
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", rpcServer.WebsocketHandler([]string{"*"}))
	mux.Handle("/", rpcServer)

	servers := []*http.Server{{Addr: cfg.ListenAddr, Handler: mux}}
	if cfg.MetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		servers = append(servers, &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			rootLogger.Info("Listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}(srv)
	}

	var runErr error
	select {
	case <-ctx.Done():
		rootLogger.Info("Shutting down")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			rootLogger.Warn("HTTP shutdown failed", "addr", srv.Addr, "error", err)
		}
	}
	return runErr
}

// storageBackend is the storage selected by the config. balances and batch are nil
// for the memory backend.
type storageBackend struct {
	pools    poolregistry.Store
	balances ledger.Store
	batch    executor.Journal
	close    func()
}

func openBackend(cfg config.StorageConfig) (*storageBackend, error) {
	if cfg.Backend == config.StoragePebble {
		s, err := pebble.New(cfg.Dir, cfg.Pebble)
		if err != nil {
			return nil, err
		}
		return &storageBackend{pools: s, balances: s, batch: s, close: func() { s.Close() }}, nil
	}
	return &storageBackend{pools: poolregistry.NewMemoryStore(), close: func() {}}, nil
}

// newLogger writes JSON logs to stdout and, when a file is configured, to a
// rotating log file as well.
func newLogger(cfg config.LogConfig) (*slog.Logger, io.Closer) {
	level, _ := cfg.SlogLevel()
	var (
		out    io.Writer = os.Stdout
		closer io.Closer = io.NopCloser(nil)
	)
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,  // megabytes
			MaxBackups: cfg.MaxBackups, // files
			MaxAge:     cfg.MaxAgeDays, // days
			Compress:   cfg.Compress,
		}
		out = io.MultiWriter(os.Stdout, file)
		closer = file
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})), closer
}

func loadConfig() (*config.DaemonConfig, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)
	return config.LoadConfig(*configPath)
}
