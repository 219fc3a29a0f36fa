package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/indexer/consumer"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/inverted-index/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/ingestion/loader"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/ledger"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/rpcapi"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/rpc"
)

const snapshotInterval = time.Minute

var serveFiles []string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the collection and search HTTP API",
	Long: `Starts the HTTP API. Collections listed under ingest.files or passed
with --file are indexed at startup. Redis, Kafka and PostgreSQL are used
when configured and skipped otherwise.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringArrayVarP(&serveFiles, "file", "f", nil, "collection file to index at startup (repeatable)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	engine := indexer.NewEngine(m)
	checker := health.NewChecker()
	checker.Register("index_engine", health.CountCheck("collections", func() int {
		return len(engine.Collections())
	}))

	slog.Info("starting inverted index service", "port", cfg.Server.Port)

	var pg *postgres.Client
	if cfg.Postgres.Host != "" {
		err := resilience.Retry(ctx, "postgres-connect", resilience.RetryConfig{MaxAttempts: 5, InitialDelay: 500 * time.Millisecond}, func() error {
			var err error
			pg, err = postgres.New(ctx, cfg.Postgres)
			return err
		})
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer pg.Close()
		checker.Register("postgres", health.PingCheck("postgres", pg.Ping))
		slog.Info("postgres connected", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	}
	var keys apikey.Validator
	if cfg.Auth.Enabled {
		store := apikey.NewStore(pg)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		keys = store
		slog.Info("api key auth enabled for mutating routes")
	}
	led := ledger.New(pg)
	if err := led.EnsureSchema(ctx); err != nil {
		return err
	}

	agg := analytics.NewAggregator()
	collector := analytics.NewCollector(agg, 10000)
	collector.Start(ctx)
	defer collector.Close()
	var snapshots *aggregator.Store
	if pg != nil {
		store := aggregator.NewStore(pg, aggregator.DefaultRetain)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		if prev, err := store.LatestSnapshot(ctx); err != nil {
			slog.Warn("reading previous analytics snapshot failed", "error", err)
		} else if prev != nil {
			slog.Info("previous analytics snapshot",
				"total_searches", prev.TotalSearches,
				"collections_indexed", prev.CollectionsIndexed,
				"docs_indexed", prev.DocsIndexed,
			)
		}
		snapshots = store
	}

	var queryCache *cache.QueryCache
	if cfg.Redis.Addr != "" {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			checker.Register("redis", health.PingCheck("redis", redisClient.Ping))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	// onIndexed keeps the cache and analytics in step with collections
	// indexed outside the HTTP handler. Startup files go through it too,
	// since Redis may still hold entries from an earlier run.
	onIndexed := func(source string) func(context.Context, indexer.CollectionInfo) {
		return func(ctx context.Context, info indexer.CollectionInfo) {
			if queryCache != nil {
				if err := queryCache.Invalidate(ctx, info.Name); err != nil {
					slog.Warn("cache invalidation failed", "collection", info.Name, "error", err)
				}
			}
			collector.Track(analytics.IndexEvent{
				Collection: info.Name,
				Documents:  info.Documents,
				Terms:      info.Terms,
				Source:     source,
				Timestamp:  time.Now().UTC(),
			})
		}
	}

	files := append(append([]string{}, cfg.Ingest.Files...), serveFiles...)
	if len(files) > 0 {
		infos, err := loader.LoadAll(ctx, engine, files)
		if err != nil {
			return err
		}
		for _, info := range infos {
			if err := led.RecordIndexed(ctx, info, "file"); err != nil {
				slog.Warn("ledger update failed", "collection", info.Name, "error", err)
			}
			onIndexed("file")(ctx, info)
		}
		slog.Info("startup collections indexed", "count", len(infos))
	}

	mux := http.NewServeMux()
	handler.New(engine, handler.Options{
		Cache:        queryCache,
		Collector:    collector,
		Ledger:       led,
		Metrics:      m,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		MaxTerms:     cfg.Search.MaxTerms,
	}).Register(mux)
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(agg).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())


	if cfg.Metrics.Enabled {
		shutdownMetrics, err := metrics.StartServer(cfg.Metrics.Port, reg)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			shutdownMetrics(shutdownCtx)
		}()
	}

	g, gctx := errgroup.WithContext(ctx)

	if snapshots != nil {
		g.Go(func() error { return snapshots.Run(gctx, agg, snapshotInterval) })
	}

	if cfg.Server.RPCPort > 0 {
		rpcServer := rpc.NewServer(rpc.WithMaxFrameBytes(cfg.Server.MaxBodyBytes))
		svc := rpcapi.NewService(engine)
		svc.Keys = keys
		svc.MaxTerms = cfg.Search.MaxTerms
		svc.OnIndexed = func(ctx context.Context, info indexer.CollectionInfo) {
			if err := led.RecordIndexed(ctx, info, "rpc"); err != nil {
				slog.Warn("ledger update failed", "collection", info.Name, "error", err)
			}
			onIndexed("rpc")(ctx, info)
		}
		svc.OnFailed = func(ctx context.Context, name string, cause error) {
			if err := led.RecordFailed(ctx, name, "rpc", cause); err != nil {
				slog.Warn("ledger update failed", "collection", name, "error", err)
			}
		}
		svc.Register(rpcServer)
		slog.Info("rpc enabled", "port", cfg.Server.RPCPort, "methods", rpcServer.MethodCount())
		g.Go(func() error {
			return rpcServer.ListenAndServe(fmt.Sprintf(":%d", cfg.Server.RPCPort))
		})
		g.Go(func() error {
			<-gctx.Done()
			rpcServer.Stop()
			return nil
		})
	}

	if len(cfg.Kafka.Brokers) > 0 {
		topic := cfg.Kafka.Topics.CollectionIngest
		producer := kafka.NewProducer(cfg.Kafka, topic)
		defer producer.Close()
		pub := publisher.New(producer, resilience.RetryConfig{})
		ingesthandler.New(pub, cfg.Server.MaxBodyBytes).Register(mux)
		checker.Register("ingest_publisher", health.BreakerCheck(pub.BreakerState))

		indexConsumer := consumer.New(kafka.NewConsumer(cfg.Kafka, topic, consumer.HandleMessage(engine, led, m, onIndexed("kafka"))))
		checker.Register("kafka", health.PingCheck("kafka", func(ctx context.Context) error {
			return kafka.Ping(ctx, cfg.Kafka.Brokers)
		}))
		g.Go(func() error {
			defer indexConsumer.Close()
			return indexConsumer.Start(gctx)
		})
		slog.Info("kafka ingest enabled", "topic", topic, "group", cfg.Kafka.ConsumerGroup)
	}

	chain, stopChain := buildChain(mux, cfg.Server, m, keys)
	defer stopChain()
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	slog.Info("readiness checks registered", "checks", checker.Names())
	g.Go(func() error {
		slog.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	slog.Info("inverted index service stopped")
	return err
}

// buildChain wraps mux with the middleware chain, outermost first:
// RequestID, CORS, RateLimit, Auth, Metrics, Timeout. A nil keys validator
// leaves every route open. The returned stop func releases the rate
// limiter and must be called once the server has shut down.
func buildChain(mux http.Handler, sc config.ServerConfig, m *metrics.Metrics, keys apikey.Validator) (http.Handler, func()) {
	stop := func() {}
	chain := mux
	chain = middleware.Timeout(sc.WriteTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	if keys != nil {
		chain = apikey.Middleware(keys, apikey.Mutating)(chain)
	}
	if sc.RateLimit > 0 {
		limiter := ratelimit.New(sc.RateLimit, time.Minute)
		stop = limiter.Close
		chain = middleware.RateLimit(limiter)(chain)
	}
	if len(sc.CORSOrigins) > 0 {
		chain = middleware.CORS(middleware.DefaultCORSConfig(sc.CORSOrigins))(chain)
	}
	return middleware.RequestID(chain), stop
}
