// Command bizastd is the bizast node daemon: it joins the DHT, serves the
// local HTTP gateway, and keeps the operator's own records alive via
// periodic republication.
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Rendaw/bizast/internal/config"
	"github.com/Rendaw/bizast/internal/gateway"
	"github.com/Rendaw/bizast/internal/logging"
	"github.com/Rendaw/bizast/internal/record"
	"github.com/Rendaw/bizast/internal/republish"
	"github.com/Rendaw/bizast/internal/routing"
	"github.com/Rendaw/bizast/internal/state"
	"github.com/Rendaw/bizast/internal/store"
	"github.com/Rendaw/bizast/internal/validate"
)

// StorageMaxItems bounds the popularity and future-popularity queues,
// matching bizast's historical max_len of 5000 entries.
const StorageMaxItems = 5000

// PopularityStep is the virtual-time bump a single lookup gives a key's
// score: one week, matching the republish grace period.
const PopularityStep = 7 * 24 * time.Hour

// NodeSeedBytes is the size of the random seed generated once and persisted
// to derive this node's stable DHT identity across restarts.
const NodeSeedBytes = 32

func main() {
	fs := pflag.NewFlagSet("bizastd", pflag.ExitOnError)
	v := viper.New()
	config.BindFlags(fs, v)
	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "bizastd: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bizastd: failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	level := "info"
	if cfg.Verbose {
		level = "debug"
	}
	logger, err := logging.New(level, "console")
	if err != nil {
		fmt.Fprintf(os.Stderr, "bizastd: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("bizastd: fatal error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	statePath, err := cfg.StatePath()
	if err != nil {
		return err
	}
	stateStore := state.Load(statePath)

	pidPath := filepath.Join(filepath.Dir(statePath), "bizastd.pid")
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("bizastd: failed to write PID file", zap.Error(err))
	}
	defer removePIDFile(pidPath)

	adapterLogger := logging.NewZapAdapter(logger)

	validator := func(key string, newValue, oldValue []byte) error {
		newRec, err := record.Decode(newValue)
		if err != nil {
			return err
		}
		var prev *record.Record
		if oldValue != nil {
			if p, err := record.Decode(oldValue); err == nil {
				prev = p
			}
		}
		var expectedStorageKey [record.StorageKeySize]byte
		copy(expectedStorageKey[:], key)
		_, err = validate.Validate(newRec, &expectedStorageKey, prev)
		return err
	}

	storage := store.New(store.Options{
		MaxItems: StorageMaxItems,
		Step:     PopularityStep,
		Validate: validator,
	})

	var nodeSeed []byte
	var kSize, alpha int
	var bootstrap []string
	stateStore.Update(func(st *state.State) {
		if st.Seed == "" {
			seed := make([]byte, NodeSeedBytes)
			if _, err := rand.Read(seed); err == nil {
				st.SetSeed(seed)
			}
		}
		seed, err := st.SeedBytes()
		if err == nil {
			nodeSeed = seed
		}
		kSize, alpha = st.KSize, st.Alpha
		bootstrap = mergeBootstrap(cfg.Bootstrap, st.Bootstrap)
	})
	if err := stateStore.Save(); err != nil {
		logger.Warn("bizastd: failed to persist DHT identity seed", zap.Error(err))
	}

	adapter := routing.New(routing.Config{
		Port:           cfg.DHTPort,
		BootstrapNodes: bootstrap,
		NodeIDSeed:     nodeSeed,
		KSize:          kSize,
		Alpha:          alpha,
		Logger:         adapterLogger,
		Inbound: func(storageKey [20]byte, value []byte) error {
			return storage.Put(string(storageKey[:]), value)
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := adapter.Start(ctx); err != nil {
		return fmt.Errorf("bizastd: failed to start routing adapter: %w", err)
	}
	defer adapter.Stop()

	stateStore.Update(func(st *state.State) {
		st.Bootstrap = parseBootstrap(adapter.Stats().Bootstrap)
	})
	if err := stateStore.Save(); err != nil {
		logger.Warn("bizastd: failed to persist bootstrap hints", zap.Error(err))
	}

	repub := republish.New(republish.Options{
		Source: func() map[string][]byte {
			var out map[string][]byte
			stateStore.View(func(st *state.State) {
				out = make(map[string][]byte, len(st.Republish))
				for k, v := range st.Republish {
					out[k] = []byte(v)
				}
			})
			return out
		},
		Set: func(ctx context.Context, recordKey string, value []byte) error {
			storageKey := record.StorageKey(recordKey)
			return adapter.Set(ctx, storageKey, value)
		},
		Logger: adapterLogger,
	})
	repub.Start(ctx)
	defer repub.Stop()

	gw := gateway.New(gateway.Config{
		Store:   storage,
		State:   stateStore,
		Routing: adapter,
		Logger:  logger,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.WebPort),
		Handler:      gw.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	serveErrs := make(chan error, 1)
	go func() {
		logger.Info("bizastd: gateway listening", zap.Int("port", cfg.WebPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrs <- err
		}
	}()

	logger.Info("bizastd: node started",
		zap.String("instance", cfg.InstanceName),
		zap.Int("dhtport", cfg.DHTPort),
		zap.Int("webport", cfg.WebPort),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("bizastd: received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-serveErrs:
		logger.Error("bizastd: gateway server failed", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("bizastd: gateway shutdown error", zap.Error(err))
	}

	if err := stateStore.Save(); err != nil {
		logger.Warn("bizastd: failed to persist state on shutdown", zap.Error(err))
	}

	return nil
}

// mergeBootstrap combines the bootstrap hosts from configuration with the
// ones the node last persisted, so a host dropped from the config file is
// still tried, and a fresh config entry is always included. run persists the
// merged list again after start, so a persisted host is never dropped. Order
// is configured-first, then persisted, de-duplicated.
func mergeBootstrap(configured []string, persisted []state.BootstrapNode) []string {
	seen := make(map[string]bool, len(configured)+len(persisted))
	merged := make([]string, 0, len(configured)+len(persisted))

	for _, addr := range configured {
		if !seen[addr] {
			seen[addr] = true
			merged = append(merged, addr)
		}
	}
	for _, node := range persisted {
		addr := net.JoinHostPort(node.Host, strconv.Itoa(node.Port))
		if !seen[addr] {
			seen[addr] = true
			merged = append(merged, addr)
		}
	}
	return merged
}

// parseBootstrap converts host:port strings back into the persisted
// BootstrapNode form, skipping anything that doesn't split cleanly.
func parseBootstrap(addrs []string) []state.BootstrapNode {
	nodes := make([]state.BootstrapNode, 0, len(addrs))
	for _, addr := range addrs {
		host, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			continue
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			continue
		}
		nodes = append(nodes, state.BootstrapNode{Host: host, Port: port})
	}
	return nodes
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create pid directory: %w", err)
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644)
}

func removePIDFile(path string) {
	_ = os.Remove(path)
}
