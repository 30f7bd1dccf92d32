package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	auditlogHandler "casetrail/internal/auditlog/handler"
	auditlogService "casetrail/internal/auditlog/service"
	caseworkHandler "casetrail/internal/casework/handler"
	caseworkService "casetrail/internal/casework/service"
	caseworkStore "casetrail/internal/casework/store"
	"casetrail/internal/changetrack/event"
	"casetrail/internal/changetrack/handler"
	changeMetrics "casetrail/internal/changetrack/metrics"
	"casetrail/internal/changetrack/tree"
	"casetrail/internal/platform/config"
	"casetrail/internal/platform/httpserver"
	kafkaconsumer "casetrail/internal/platform/kafka/consumer"
	"casetrail/internal/platform/kafka/producer"
	"casetrail/internal/platform/logger"
	"casetrail/internal/platform/metrics"
	redisclient "casetrail/internal/platform/redis"
	"casetrail/migrations"
	audit "casetrail/pkg/platform/audit"
	auditconsumer "casetrail/pkg/platform/audit/consumer"
	"casetrail/pkg/platform/audit/publisher"
	"casetrail/pkg/platform/audit/publishers/ops"
	"casetrail/pkg/platform/audit/store/memory"
	"casetrail/pkg/platform/audit/store/postgres"
	"casetrail/pkg/platform/audit/store/redisstream"
	"casetrail/pkg/platform/audit/worker"
	"casetrail/pkg/platform/httputil"
	"casetrail/pkg/platform/tx"
)

const shutdownTimeout = 10 * time.Second

// infra holds the external connections. Every field is optional and nil when
// the corresponding setting is empty.
type infra struct {
	db       *sql.DB
	redis    *redisclient.Client
	producer *producer.Producer
}

func (i *infra) close() {
	if i.producer != nil {
		i.producer.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.db != nil {
		_ = i.db.Close()
	}
}

// sinkChain is the audit sink handlers publish to, plus the store the admin
// API reads from when the configured sink has one.
type sinkChain struct {
	sink      audit.Sink
	store     audit.Store
	publisher *publisher.Publisher
	outbox    *postgres.Store
}

func serve(ctx context.Context, cfg config.Config) error {
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	reg := metrics.New()

	deps, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.close()

	chain, err := buildSinkChain(cfg, deps, log, reg)
	if err != nil {
		return err
	}
	if chain.publisher != nil {
		defer chain.publisher.Close()
	}

	var schema *tree.Schema
	if cfg.Server.SchemaPath != "" {
		schema, err = tree.LoadSchemaFile(cfg.Server.SchemaPath)
		if err != nil {
			return fmt.Errorf("load dynamic data schema: %w", err)
		}
	}

	tracker := handler.NewTracker(
		event.NewAssembler(chain.sink),
		handler.WithLogger(log),
		handler.WithMetrics(changeMetrics.New(reg)),
	)
	opts := []caseworkService.Option{caseworkService.WithSchema(schema)}
	if deps.db != nil {
		opts = append(opts, caseworkService.WithUnitOfWork(tx.NewRunner(deps.db, 0)))
	}
	cases, err := caseworkService.New(caseworkStore.NewInMemory(), tracker, opts...)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Get("/healthz", healthHandler(deps))
	r.Handle("/metrics", reg.Handler())
	caseworkHandler.New(cases, log).Register(r)
	if chain.store != nil {
		auditSvc, err := auditlogService.New(chain.store)
		if err != nil {
			return err
		}
		auditlogHandler.New(auditSvc, log, cfg.Server.AdminToken).Register(r)
	} else {
		log.Info("audit query API disabled; the configured sink is write-only", "sink", cfg.Audit.Sink)
	}

	srv := httpserver.New(cfg.Server.Addr, r)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting casetrail", "addr", cfg.Server.Addr, "sink", cfg.Audit.Sink)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if chain.outbox != nil {
		if err := startAuditPipeline(gctx, g, cfg, deps, chain.outbox, log, reg); err != nil {
			return err
		}
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("casetrail stopped")
	return nil
}

func connect(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	deps := &infra{}
	if cfg.Database.URL != "" {
		db, err := openDB(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		deps.db = db
		if err := migrations.Apply(ctx, db); err != nil {
			deps.close()
			return nil, err
		}
		log.Info("database ready")
	}

	client, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		deps.close()
		return nil, err
	}
	deps.redis = client

	if cfg.Kafka.Enabled() {
		if err := producer.EnsureTopics(ctx, cfg.Kafka.Brokers, 1, cfg.Kafka.ComplianceTopic, cfg.Kafka.OperationsTopic); err != nil {
			deps.close()
			return nil, err
		}
		p, err := producer.New(cfg.Kafka.Brokers)
		if err != nil {
			deps.close()
			return nil, err
		}
		deps.producer = p
	}
	return deps, nil
}

func buildSinkChain(cfg config.Config, deps *infra, log *slog.Logger, reg *metrics.Registry) (*sinkChain, error) {
	chain := &sinkChain{}
	var base audit.Sink

	switch cfg.Audit.Sink {
	case config.SinkMemory:
		chain.store = memory.NewInMemoryStore()
	case config.SinkPostgres:
		if deps.db == nil {
			return nil, errors.New("postgres audit sink requires a database")
		}
		chain.outbox = postgres.New(deps.db)
		chain.store = chain.outbox
	case config.SinkRedisStream:
		if deps.redis == nil {
			return nil, errors.New("redis_stream audit sink requires redis")
		}
		base = redisstream.New(deps.redis, cfg.Redis.Stream, cfg.Redis.StreamMaxLen)
	default:
		return nil, fmt.Errorf("unknown audit sink %q", cfg.Audit.Sink)
	}

	if chain.store != nil {
		var opts []publisher.Option
		if cfg.Audit.AsyncBufferSize > 0 {
			opts = append(opts, publisher.WithAsyncBuffer(cfg.Audit.AsyncBufferSize), publisher.WithLogger(log))
		}
		chain.publisher = publisher.NewPublisher(chain.store, opts...)
		base = chain.publisher
	}

	chain.sink = ops.NewGuardedSink(base,
		ops.WithBreaker(ops.NewCircuitBreaker(cfg.Audit.BreakerThreshold, cfg.Audit.BreakerCooldown)),
		ops.WithMetrics(ops.NewMetrics(reg)),
		ops.WithLogger(log),
	)
	return chain, nil
}

// startAuditPipeline relays the outbox and materializes relayed events. With
// Kafka configured the two halves meet at the broker; without it the relay
// hands entries straight to the materializer.
func startAuditPipeline(ctx context.Context, g *errgroup.Group, cfg config.Config, deps *infra, outbox *postgres.Store, log *slog.Logger, reg *metrics.Registry) error {
	materializer := auditconsumer.NewMaterializeHandler(outbox, log)
	topics := worker.Topics{
		audit.CategoryCompliance: cfg.Kafka.ComplianceTopic,
		audit.CategoryOperations: cfg.Kafka.OperationsTopic,
	}

	var pub worker.Publisher = worker.NewLoopback(materializer)
	if deps.producer != nil {
		pub = deps.producer

		router := auditconsumer.NewRouter(log, nil)
		router.Register(cfg.Kafka.ComplianceTopic, materializer)
		router.Register(cfg.Kafka.OperationsTopic, materializer)
		c, err := kafkaconsumer.New(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, router.Topics(), log)
		if err != nil {
			return err
		}
		g.Go(func() error {
			defer c.Close()
			return c.Run(ctx, router)
		})
	}

	relay := worker.NewRelay(outbox, pub, topics,
		worker.WithInterval(cfg.Audit.RelayInterval),
		worker.WithBatchSize(cfg.Audit.RelayBatchSize),
		worker.WithLogger(log),
		worker.WithRegisterer(reg),
	)
	g.Go(func() error {
		return relay.Run(ctx)
	})
	return nil
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(deps *infra) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{}
		healthy := true
		check := func(name string, err error) {
			if err != nil {
				healthy = false
				checks[name] = err.Error()
				return
			}
			checks[name] = "ok"
		}
		if deps.db != nil {
			check("postgres", deps.db.PingContext(ctx))
		}
		if deps.redis != nil {
			check("redis", deps.redis.Health(ctx))
		}
		if deps.producer != nil {
			check("kafka", deps.producer.Health(ctx))
		}

		if !healthy {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Checks: checks})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok", Checks: checks})
	}
}
