package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	apihttp "swapguard/internal/api/http"
	"swapguard/internal/api/http/handlers"
	"swapguard/internal/api/http/mw"
	"swapguard/internal/avs"
	"swapguard/internal/config"
	"swapguard/internal/dedupe"
	rdbdedupe "swapguard/internal/dedupe/redis"
	"swapguard/internal/events"
	"swapguard/internal/hook"
	"swapguard/internal/metrics"
	"swapguard/internal/poolengine"
	natsps "swapguard/internal/pubsub/nats"
	"swapguard/internal/security"
	"swapguard/internal/service"
	"swapguard/internal/stores/clickhouse"
	rdstore "swapguard/internal/stores/redis"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/go-chi/chi/v5"
	"github.com/grafana/pyroscope-go"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	lgcfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"
)

const defaultBroadcastPrefix = "hook"

type Container struct {
	app *App

	// infra
	redis *rdstore.Client
	ch    *clickhouse.Conn
	nc    *natsps.Client
	sub   *nats.Subscription

	// services
	hook    *hook.Hook
	service *service.HookService

	// servers
	httpSrv *apihttp.Server

	// metrics
	profiler *pyroscope.Profiler
}

func (c *Container) Start() error {
	return c.app.Start()
}

func (c *Container) Stop(ctx context.Context) error {
	if err := c.app.Shutdown(ctx); err != nil {
		return fmt.Errorf("app shutdown is failed, error=%w", err)
	}
	return nil
}

// closers runs registered close funcs in reverse order
type closers []func()

func (c *closers) add(f func()) { *c = append(*c, f) }

func (c closers) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// Build constructs the container. The returned cleanup releases every opened client;
// on error everything opened so far is already released.
func Build(ctx context.Context, cfg *config.Config) (_ *Container, _ func(), err error) {
	lg := logger.New(lgcfg.LoggerCfg{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	lg.Info("Successfully initialize logger")

	var cl closers
	defer func() {
		if err != nil {
			cl.run()
		}
	}()

	profiler, err := metrics.InitProfiler(&cfg.Metrics.Pyroscope, cfg.App.InstanceID)
	if err != nil {
		return nil, nil, fmt.Errorf("pyroscope initialize failed: %w", err)
	}
	if profiler != nil {
		lg.Infof("Successfully initialize Pyroscope to %s", cfg.Metrics.Pyroscope.ServerAddr)
		cl.add(func() {
			if err := profiler.Stop(); err != nil {
				lg.Errorf("Failed to stop profiler: %v", err)
			}
		})
	}

	// Redis client
	rdb, err := rdstore.New(ctx, lg, &cfg.Stores.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize redis client: %w", err)
	}
	cl.add(func() {
		if err := rdb.Close(); err != nil {
			lg.Errorf("Failed to close redis client: %v", err)
		}
	})

	snapshots, err := rdstore.NewSnapshotStore(lg, rdb, cfg.Hook.SnapshotKey)
	if err != nil {
		return nil, nil, err
	}

	deduper, err := buildDeduper(ctx, lg, cfg, rdb, &cl)
	if err != nil {
		return nil, nil, err
	}

	engine, err := buildEngine(ctx, lg, &cfg.Engine, &cl)
	if err != nil {
		return nil, nil, err
	}

	// NATS: inbound notifications and outbound signals
	nc, err := natsps.New(lg, &cfg.PubSub.NATS)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize nats client: %w", err)
	}
	cl.add(func() {
		if err := nc.Close(); err != nil {
			lg.Errorf("Failed to close nats client: %v", err)
		}
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	hm := metrics.New(cfg.Metrics.Namespace, reg)

	prefix := cfg.PubSub.NATS.BroadcastPrefix
	if prefix == "" {
		prefix = defaultBroadcastPrefix
	}
	sinks := events.Multi{events.NewLogSink(lg), hm, events.NewBroadcastSink(nc, prefix, lg)}
	health := map[string]service.HealthChecker{"redis": rdb, "nats": nc}

	// ClickHouse signal journal
	var ch *clickhouse.Conn
	if cfg.Stores.ClickHouse.Enabled {
		if ch, err = clickhouse.New(ctx, &cfg.Stores.ClickHouse); err != nil {
			return nil, nil, fmt.Errorf("failed to initialize clickhouse client: %w", err)
		}
		cl.add(func() {
			if err := ch.Close(); err != nil {
				lg.Errorf("Failed to close clickhouse client: %v", err)
			}
		})
		lg.Infof("Successfully initialize clickhouse client, url=%s", strings.Split(cfg.Stores.ClickHouse.DSN, "?")[0])

		if err = ch.EnsureSchema(ctx, cfg.Stores.ClickHouse.Table); err != nil {
			return nil, nil, err
		}

		chWriter, err := clickhouse.NewWriter(lg, &cfg.Stores.ClickHouse, ch)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize clickhouse writer: %w", err)
		}
		cl.add(func() {
			ctxClose, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := chWriter.Close(ctxClose); err != nil {
				lg.Errorf("Failed to close clickhouse writer: %v", err)
			}
		})
		sinks = append(sinks, chWriter)
		health["clickhouse"] = ch
	}

	opts := []hook.Option{hook.WithEmitter(sinks)}
	if cfg.AVS.Enabled {
		ops := make([]common.Address, 0, len(cfg.AVS.Operators))
		for _, op := range cfg.AVS.Operators {
			ops = append(ops, common.HexToAddress(op))
		}
		v, err := avs.NewQuorumValidator(ops, cfg.AVS.Quorum)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize avs validator: %w", err)
		}
		opts = append(opts, hook.WithValidator(v))
		lg.Infof("Successfully initialize AVS validator, operators=%d quorum=%d", len(ops), v.Quorum())
	}

	h, err := hook.New(lg, &cfg.Hook, engine, opts...)
	if err != nil {
		return nil, nil, err
	}

	svc, err := service.NewHookService(lg, h, service.Deps{
		Deduper:   deduper,
		Snapshots: snapshots,
		Observer:  hm,
		Prices:    engine,
		Health:    health,
	})
	if err != nil {
		return nil, nil, err
	}
	if err = svc.Restore(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to restore hook state: %w", err)
	}

	inbound := cfg.PubSub.NATS.InboundSubject
	if inbound == "" {
		inbound = prefix + ".in.>"
	}
	sub, err := nc.Subscribe(inbound, svc.HandleMessage)
	if err != nil {
		return nil, nil, err
	}

	router, err := buildRouter(lg, cfg, rdb, hm, reg, svc)
	if err != nil {
		return nil, nil, err
	}

	httpSrv, err := apihttp.NewServer(lg, &cfg.API.HTTP, router)
	if err != nil {
		return nil, nil, err
	}
	lg.Infof("Successfully initialize HTTP server, addr=%s", httpSrv.Addr())

	c := &Container{
		app:      New(lg, httpSrv, sub),
		redis:    rdb,
		ch:       ch,
		nc:       nc,
		sub:      sub,
		hook:     h,
		service:  svc,
		httpSrv:  httpSrv,
		profiler: profiler,
	}

	cleanupF := func() {
		ctxClean, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpSrv.Shutdown(ctxClean); err != nil {
			lg.Errorf("Failed to shutdown by cleanupF HTTP server: %v", err)
		}
		cl.run()

		lg.Info("Successfully cleaned up dependency")
	}

	lg.Info("Successfully initialize Wiring")
	return c, cleanupF, nil
}

func buildDeduper(ctx context.Context, lg logger.Logger, cfg *config.Config, rdb *rdstore.Client, cl *closers) (dedupe.Deduper, error) {
	if cfg.Dedupe.Backend == "memory" {
		m := dedupe.NewMemory(lg, cfg.Dedupe.TTL, cfg.Dedupe.Janitor)
		cl.add(m.Close)
		lg.Info("Successfully initialize in-memory deduper")
		return m, nil
	}

	var bloom *rdbdedupe.Bloom
	if cfg.Dedupe.Bloom.Enabled {
		b, err := rdbdedupe.NewBloom(&cfg.Dedupe.Bloom, rdb)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize bloom: %w", err)
		}
		// without the RedisBloom module the deduper runs on SETNX alone
		if err = b.Ensure(ctx); err != nil {
			lg.Warnf("Bloom filter disabled, error=%v", err)
		} else {
			bloom = b
			lg.Infof("Successfully initialize Bloom by key=%s, cap=%d, errRate=%f", b.Key, b.Capacity, b.ErrRate)
		}
	}

	d, err := rdbdedupe.NewDeduper(lg, &cfg.Dedupe, rdb, bloom)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis deduper: %w", err)
	}
	lg.Infof("Successfully initialize Deduper redis_client by prefix %s", cfg.Dedupe.Prefix)
	return d, nil
}

// buildEngine returns the simulated engine, reading prices from the chain when an RPC endpoint is set
func buildEngine(ctx context.Context, lg logger.Logger, cfg *config.EngineConfig, cl *closers) (*poolengine.Simulated, error) {
	if cfg.RPCURL == "" {
		lg.Info("Successfully initialize simulated pool engine, prices from notifications")
		return poolengine.NewSimulated(cfg.FeePips), nil
	}
	if !common.IsHexAddress(cfg.StateView) {
		return nil, fmt.Errorf("engine.state_view must be a hex address when engine.rpc_url is set, got %q", cfg.StateView)
	}

	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc: %w", err)
	}
	cl.add(ec.Close)

	pricer, err := poolengine.NewChainPricer(ec, common.HexToAddress(cfg.StateView))
	if err != nil {
		return nil, err
	}
	lg.Infof("Successfully initialize chain pricer, state_view=%s", cfg.StateView)
	return poolengine.NewSimulated(cfg.FeePips, poolengine.WithPriceSource(pricer)), nil
}

func buildRouter(lg logger.Logger, cfg *config.Config, rdb *rdstore.Client, hm *metrics.HookMetrics, reg *prometheus.Registry, svc *service.HookService) (chi.Router, error) {
	m := apihttp.Middlewares{
		Logging: mw.NewLogging(lg, hm),
		Gzip:    mw.NewGzip(cfg.API.HTTP.GzipLevel, lg),
	}
	if cfg.API.HTTP.CORS.Enabled {
		m.CORS = mw.NewCORS(&cfg.API.HTTP.CORS)
	}

	var verifier *security.RS256Verifier
	if cfg.Security.JWT.Enabled {
		v, err := security.NewRS256Verifier(&cfg.Security.JWT)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize JWT verifier: %w", err)
		}
		auth, err := mw.NewJWTMiddleware(v)
		if err != nil {
			return nil, err
		}
		verifier, m.Auth = v, auth
		lg.Info("Successfully initialize JWT-Verifier")
	} else {
		m.Auth = mw.NewHeaderIdentity("")
		lg.Warnf("JWT disabled, callers are identified by the %s header", mw.DefaultAccountHeader)
	}

	if cfg.RateLimit.Enabled {
		m.RateLimit = mw.NewRateLimit(&cfg.RateLimit, rdb, verifier)
	}

	return apihttp.BuildRouter(handlers.NewHandler(lg, svc), metrics.Handler(reg), m), nil
}
