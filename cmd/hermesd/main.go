package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/pyth-network/hermes-go/internal/aggregate"
	"github.com/pyth-network/hermes-go/internal/bus"
	"github.com/pyth-network/hermes-go/internal/cache"
	"github.com/pyth-network/hermes-go/internal/config"
	"github.com/pyth-network/hermes-go/internal/ingest"
	ingestkafka "github.com/pyth-network/hermes-go/internal/ingest/kafka"
	ingestnats "github.com/pyth-network/hermes-go/internal/ingest/nats"
	"github.com/pyth-network/hermes-go/internal/monitoring"
	"github.com/pyth-network/hermes-go/internal/vaa"
	"github.com/pyth-network/hermes-go/internal/ws"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	flag.Parse()

	startupLogger := log.New(os.Stdout, "[hermesd] ", log.LstdFlags)

	// automaxprocs rounds GOMAXPROCS down to the container's integer CPU
	// allocation; this is correct for the Go scheduler.
	startupLogger.Printf("GOMAXPROCS: %d", runtime.GOMAXPROCS(0))

	cfg, err := config.Load(nil)
	if err != nil {
		startupLogger.Fatalf("failed to load configuration: %v", err)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := monitoring.NewLogger(monitoring.LoggerConfig{
		Level:  monitoring.LogLevel(cfg.LogLevel),
		Format: monitoring.LogFormat(cfg.LogFormat),
	})
	cfg.LogConfig(logger)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("hermesd exited with error")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	guardianSets := vaa.NewGuardianSetStore()
	if err := vaa.LoadGuardianSetFile(cfg.GuardianSetPath, guardianSets); err != nil {
		return fmt.Errorf("hermesd: bootstrap guardian set: %w", err)
	}
	if cfg.GuardianSetPath == "" {
		logger.Warn().Msg("no guardian set file configured; waiting on a governance VAA to populate the guardian set")
	}

	pythnetSource, err := parseSource(cfg.PythnetChainID, cfg.PythnetEmitterAddress)
	if err != nil {
		return fmt.Errorf("hermesd: pythnet source: %w", err)
	}
	governanceSource, err := parseSource(cfg.GovernanceChainID, cfg.GovernanceEmitterAddress)
	if err != nil {
		return fmt.Errorf("hermesd: governance source: %w", err)
	}
	verifier := vaa.NewVerifier(guardianSets, []vaa.Source{pythnetSource, governanceSource})

	priceCache := cache.New(cache.Config{
		AccumulatorCacheSize: cfg.CachePerFeedCapacity,
		MerkleStateCacheSize: cfg.CachePerFeedCapacity,
		MessageCacheSize:     cfg.CachePerFeedCapacity,
	})

	events := bus.New[aggregate.AggregationEvent](1000)
	aggregator := aggregate.NewAggregator(priceCache, verifier, guardianSets, events, nil, logger)
	aggregator.SetReadiness(aggregate.ReadinessConfig{MaxStaleness: cfg.MaxStaleness, MaxSlotLag: cfg.MaxSlotLag})

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)

	memLimit := cfg.MemoryLimit
	if memLimit == 0 {
		if detected, err := monitoring.MemoryLimit(); err == nil {
			memLimit = detected
		}
	}
	maxConnections := cfg.MaxConnections
	if maxConnections == 0 {
		maxConnections = monitoring.MaxConnectionsForMemory(memLimit)
	}

	wsServer := ws.NewServer(ws.Config{
		MaxConnections: maxConnections,
		BytesPerSecond: cfg.BytesPerSecond,
		ClientIPHeader: cfg.ClientIPHeader,
	}, aggregator, logger)

	wg := runGroup{}
	wg.go_(func() error {
		_, eventsCh := events.Subscribe()
		wsServer.Run(ctx, eventsCh)
		return nil
	})
	wg.go_(func() error {
		return runIngestion(ctx, cfg, aggregator, metrics, logger)
	})
	wg.go_(func() error {
		return serveHTTP(ctx, cfg, wsServer, aggregator, logger)
	})

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("websocket server shutdown reported an error")
	}

	return wg.wait()
}

func parseSource(chainID uint16, emitterHex string) (vaa.Source, error) {
	b, err := hex.DecodeString(emitterHex)
	if err != nil || len(b) != 32 {
		return vaa.Source{}, fmt.Errorf("invalid emitter address %q", emitterHex)
	}
	var addr [32]byte
	copy(addr[:], b)
	return vaa.Source{EmitterChain: chainID, EmitterAddress: addr}, nil
}

func runIngestion(ctx context.Context, cfg *config.Config, aggregator *aggregate.Aggregator, metrics *monitoring.Metrics, logger zerolog.Logger) error {
	updates := make(chan aggregate.Update, 1024)

	pool := ingest.NewWorkerPool(cfg.IngestWorkers, cfg.IngestQueueCap, logger)
	pool.Start(ctx)
	defer pool.Wait()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case u := <-updates:
				u := u
				before := pool.Dropped()
				pool.Submit(func() {
					if err := aggregator.StoreUpdate(ctx, u); err != nil {
						metrics.Errors.WithLabelValues("aggregate", monitoring.SeverityWarning).Inc()
						logger.Warn().Err(err).Msg("failed to store update")
					}
				})
				if pool.Dropped() > before {
					metrics.IngestBackpressure.WithLabelValues(cfg.IngestTransport, "queue_full").Inc()
				}
			}
		}
	}()

	switch cfg.IngestTransport {
	case "nats":
		source := ingestnats.New(ingestnats.Config{
			URL:                cfg.NATSURL,
			VAASubject:         cfg.NATSSubject + ".vaa",
			AccumulatorSubject: cfg.NATSSubject + ".accumulator",
		}, logger)
		metrics.IngestConnected.WithLabelValues("nats").Set(1)
		defer metrics.IngestConnected.WithLabelValues("nats").Set(0)
		return source.Run(ctx, updates)
	case "kafka":
		source := ingestkafka.New(ingestkafka.Config{
			Brokers:          splitCSV(cfg.KafkaBrokers),
			ConsumerGroup:    cfg.KafkaGroup,
			VAATopic:         cfg.KafkaTopic + "-vaa",
			AccumulatorTopic: cfg.KafkaTopic + "-accumulator",
		}, logger)
		metrics.IngestConnected.WithLabelValues("kafka").Set(1)
		defer metrics.IngestConnected.WithLabelValues("kafka").Set(0)
		return source.Run(ctx, updates)
	default:
		return fmt.Errorf("hermesd: unknown ingestion transport %q", cfg.IngestTransport)
	}
}

func serveHTTP(ctx context.Context, cfg *config.Config, wsServer *ws.Server, aggregator *aggregate.Aggregator, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsServer.HandleWebSocket)
	mux.Handle("/metrics", monitoring.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if aggregator.IsReady() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready"))
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", cfg.HTTPAddr).Msg("http surface listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("hermesd: http server: %w", err)
	}
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// runGroup runs a fixed set of goroutines and collects their first error,
// mirroring the teacher's pattern of a handful of supervised long-running
// loops under one process.
type runGroup struct {
	errs chan error
	n    int
}

func (g *runGroup) go_(fn func() error) {
	if g.errs == nil {
		g.errs = make(chan error, 8)
	}
	g.n++
	go func() { g.errs <- fn() }()
}

func (g *runGroup) wait() error {
	var first error
	for i := 0; i < g.n; i++ {
		if err := <-g.errs; err != nil && first == nil {
			first = err
		}
	}
	return first
}
