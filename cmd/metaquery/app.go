package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"

	"github.com/c360/metaquery/bridge"
	"github.com/c360/metaquery/config"
	"github.com/c360/metaquery/docstore"
	"github.com/c360/metaquery/docstore/elastic"
	"github.com/c360/metaquery/docstore/kvstore"
	"github.com/c360/metaquery/gateway"
	"github.com/c360/metaquery/health"
	"github.com/c360/metaquery/metadata"
	"github.com/c360/metaquery/metric"
	"github.com/c360/metaquery/natsclient"
	"github.com/c360/metaquery/pkg/tlsutil"
	"github.com/c360/metaquery/schema"
)

const connectTimeout = 10 * time.Second

// app is the wired gateway: store, schema, bridge, HTTP servers.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metric.MetricsRegistry
	monitor *health.Monitor

	client  docstore.Client
	closers []func(context.Context) error // released in reverse order

	gateway       *gateway.Server
	metricsServer *metric.Server
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metric.NewMetricsRegistry(),
		monitor: health.NewMonitor(),
	}

	if err := a.setupStore(ctx); err != nil {
		a.close(5 * time.Second)
		return nil, err
	}

	core := a.metrics.CoreMetrics()
	store, err := metadata.NewStore(a.client, cfg.Storage.MetadataConfig(),
		metadata.WithLogger(logger),
		metadata.WithIndexResolver(docstore.NamespaceResolver{Namespace: cfg.Storage.Namespace}),
		metadata.WithQueryObserver(core.RecordStoreQuery),
	)
	if err != nil {
		a.close(5 * time.Second)
		return nil, fmt.Errorf("create metadata store: %w", err)
	}

	s, err := schema.New(store, Version)
	if err != nil {
		a.close(5 * time.Second)
		return nil, fmt.Errorf("build schema: %w", err)
	}

	b := bridge.New(bridge.NewGraphQLExecutor(s),
		bridge.WithLogger(logger),
		bridge.WithMaxDepth(cfg.Gateway.MaxQueryDepth),
	)

	tlsConfig, stopTLS, err := tlsutil.ServerTLS(ctx, cfg.Gateway.TLS, logger)
	if err != nil {
		a.close(5 * time.Second)
		return nil, fmt.Errorf("load gateway TLS: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error {
		stopTLS()
		return nil
	})

	a.gateway, err = gateway.NewServer(cfg.Gateway, b,
		gateway.WithLogger(logger),
		gateway.WithMetrics(core),
		gateway.WithHealthMonitor(a.monitor),
		gateway.WithTLSConfig(tlsConfig),
	)
	if err != nil {
		a.close(5 * time.Second)
		return nil, fmt.Errorf("create gateway: %w", err)
	}

	if cfg.Metrics.Enabled {
		a.metricsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, a.metrics)
	}
	return a, nil
}

// setupStore connects the configured backend and registers its health.
func (a *app) setupStore(ctx context.Context) error {
	core := a.metrics.CoreMetrics()
	storage := a.cfg.Storage

	switch storage.Backend {
	case config.BackendElasticsearch:
		es, err := elastic.New(storage.Elasticsearch, elastic.WithLogger(a.logger))
		if err != nil {
			return fmt.Errorf("create elasticsearch client: %w", err)
		}
		a.monitor.Register(storage.Backend, health.CheckFunc(storage.Backend, es.Ping))

		pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		err = es.Ping(pingCtx)
		cancel()
		core.RecordStoreConnected(err == nil)
		if err != nil {
			// The breaker and /health report the outage; queries fail until the cluster answers.
			a.logger.Warn("Elasticsearch not reachable at startup", "error", err)
		}
		a.client = es

	case config.BackendNATSKV:
		connOpts, err := storage.NATS.ClientOptions()
		if err != nil {
			return fmt.Errorf("configure NATS connection: %w", err)
		}
		nc, err := natsclient.NewClient(storage.NATS.URL, append(connOpts,
			natsclient.WithLogger(a.logger),
			natsclient.WithName(appName),
			natsclient.OnConnectionChange(func(healthy bool) {
				core.RecordStoreConnected(healthy)
				if healthy {
					a.monitor.UpdateHealthy(storage.Backend, "connected")
				} else {
					a.monitor.UpdateUnhealthy(storage.Backend, "disconnected")
				}
			}),
		)...)
		if err != nil {
			return fmt.Errorf("create NATS client: %w", err)
		}

		connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		if err := nc.Connect(connCtx); err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		a.closers = append(a.closers, nc.Close)

		kv, err := kvstore.New(nc, storage.NATS, a.logger)
		if err != nil {
			return fmt.Errorf("create KV store: %w", err)
		}
		a.client = kv

	case config.BackendMemory:
		a.logger.Warn("Using the in-memory store; it starts empty and is not persisted")
		a.monitor.UpdateHealthy(storage.Backend, "in-process store")
		core.RecordStoreConnected(true)
		a.client = docstore.NewMemoryStore()

	default:
		return fmt.Errorf("unknown storage backend %q", storage.Backend)
	}

	if storage.Breaker.Enabled {
		name := storage.Backend
		a.monitor.Update(name+"-breaker", health.FromBreakerState(name, gobreaker.StateClosed))
		core.RecordBreakerState(name, int(gobreaker.StateClosed))
		a.client = docstore.NewGuard(name, a.client, storage.Breaker, a.logger,
			func(name string, _, to gobreaker.State) {
				core.RecordBreakerState(name, int(to))
				a.monitor.Update(name+"-breaker", health.FromBreakerState(name, to))
			})
	}
	return nil
}

// run serves until ctx is cancelled or a server fails.
func (a *app) run(ctx context.Context, shutdownTimeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.gateway.Start(gctx, nil)
	})

	if a.metricsServer != nil {
		g.Go(func() error {
			a.logger.Info("Metrics server starting", "port", a.cfg.Metrics.Port, "path", a.cfg.Metrics.Path)
			return a.metricsServer.Start()
		})
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return a.metricsServer.Stop(stopCtx)
		})
	}

	return g.Wait()
}

// close releases store connections in reverse order.
func (a *app) close(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("Error closing store connection", "error", err)
		}
	}
	a.closers = nil
}
