package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/coda/internal/cache"
	"github.com/felixgeelhaar/coda/internal/coda"
	"github.com/felixgeelhaar/coda/internal/concept"
	"github.com/felixgeelhaar/coda/internal/config"
	"github.com/felixgeelhaar/coda/internal/difficulty"
	"github.com/felixgeelhaar/coda/internal/engine"
	"github.com/felixgeelhaar/coda/internal/factory"
	"github.com/felixgeelhaar/coda/internal/generator"
	"github.com/felixgeelhaar/coda/internal/metrics"
	"github.com/felixgeelhaar/coda/internal/queue"
	"github.com/felixgeelhaar/coda/internal/storage/local"
	"github.com/felixgeelhaar/coda/internal/storage/redis"
	"github.com/felixgeelhaar/coda/internal/storage/sqlite"
	"github.com/felixgeelhaar/coda/internal/strategy"
)

// purgeInterval is how often expired exercises are deleted from sqlite
const purgeInterval = time.Hour

// stores are the persistence backends selected by configuration
type stores struct {
	exercises engine.ExerciseStore
	codas     coda.Store
	listeners []engine.Listener
}

func (s *Server) build(ctx context.Context, cfg ServerConfig) error {
	provider := cfg.Provider
	if provider == nil {
		p, err := s.buildProvider(ctx)
		if err != nil {
			return err
		}
		provider = p
	}
	s.provider = provider

	st, err := s.buildStores(ctx)
	if err != nil {
		return err
	}

	var rnd strategy.Rand
	if seed := s.cfg.Scoring.Seed; seed != 0 {
		rnd = strategy.NewRand(seed)
	} else {
		rnd = strategy.NewRandomRand()
	}
	strategies := strategy.NewSet(rnd)

	f := factory.New(factory.Config{
		CacheEnabled:    s.cfg.Factory.CacheEnabled,
		MaxCacheSize:    s.cfg.Factory.MaxCacheSize,
		DefaultStrategy: factory.Strategy(s.cfg.Factory.DefaultStrategy),
		NewDefault: func(context.Context) (generator.Generator, error) {
			return generator.NewConceptGenerator(provider, strategies, generator.Config{
				Name:    "default",
				Version: s.version,
				Rand:    rnd,
			}), nil
		},
		Rand:     rnd,
		Observer: s.metrics,
	})

	gen := generator.NewConceptGenerator(provider, strategies, generator.Config{
		Name:    generator.DefaultName,
		Version: s.version,
		Rand:    rnd,
	})
	for _, t := range gen.SupportedTypes() {
		if err := f.RegisterGenerator(ctx, t, generator.DefaultName, gen, factory.DefaultGeneratorConfig()); err != nil {
			return fmt.Errorf("register generator for %s: %w", t, err)
		}
	}

	c := cache.New(cache.Config{
		MaxSize: s.cfg.Cache.MaxSize,
		MaxAge:  s.cfg.Cache.MaxAge,
	})
	if s.cfg.Cache.CleanupInterval > 0 {
		c.StartAutoCleanup(s.cfg.Cache.CleanupInterval)
	}

	eng, err := engine.New(engine.Config{
		Factory: f,
		Adapter: difficulty.NewAdapter(strategies),
		Cache:   c,
		Store:   st.exercises,
	})
	if err != nil {
		c.Destroy()
		return fmt.Errorf("create engine: %w", err)
	}
	s.engine = eng
	metrics.RegisterCache(s.metrics.Registry(), eng.CacheStats)

	s.codas = coda.NewService(st.codas, nil)
	publishers := coda.Publishers{s.metrics}

	eng.AddListener(s.metrics)
	for _, l := range st.listeners {
		eng.AddListener(l)
	}

	if producer := s.buildQueue(ctx); producer != nil {
		eng.AddListener(producer)
		publishers = append(publishers, producer)
	}
	s.codas.SetPublisher(publishers)

	return nil
}

// buildProvider picks Postgres, a catalog file or the embedded catalog
func (s *Server) buildProvider(ctx context.Context) (concept.Provider, error) {
	cc := s.cfg.Catalog

	if cc.PostgresURL != "" {
		pg, err := concept.NewPostgresProvider(ctx, cc.PostgresURL)
		if err != nil {
			return nil, err
		}
		s.onClose(func() error { pg.Close(); return nil })

		if err := pg.Migrate(ctx); err != nil {
			return nil, err
		}
		if cc.Path != "" {
			cat, err := concept.LoadFile(cc.Path)
			if err != nil {
				return nil, err
			}
			if err := pg.Import(ctx, cat); err != nil {
				return nil, fmt.Errorf("import catalog: %w", err)
			}
			slog.Info("imported catalog into postgres", "path", cc.Path, "concepts", cat.Len())
		}

		if !cc.Resilience.Enabled {
			return pg, nil
		}
		rc := concept.DefaultResilientConfig()
		rc.MaxAttempts = cc.Resilience.MaxAttempts
		rc.InitialDelay = cc.Resilience.InitialDelay
		rc.MaxConcurrent = cc.Resilience.MaxConcurrent
		rc.RatePerSecond = cc.Resilience.RatePerSecond
		rc.EnableRateLimit = cc.Resilience.RatePerSecond > 0
		rp := concept.NewResilientProvider(pg, rc)
		s.onClose(rp.Close)
		return rp, nil
	}

	var (
		cat *concept.Catalog
		err error
	)
	if cc.Path != "" {
		cat, err = concept.LoadFile(cc.Path)
	} else {
		cat, err = concept.DefaultCatalog()
	}
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	mem := concept.NewMemoryProvider(cat)
	slog.Info("loaded concept catalog", "path", cc.Path, "concepts", cat.Len())

	if cc.Path != "" && cc.Watch {
		w, err := concept.NewWatcher(cc.Path, mem, cc.Debounce)
		if err != nil {
			return nil, err
		}
		if err := w.Start(ctx); err != nil {
			return nil, fmt.Errorf("watch catalog: %w", err)
		}
		s.watcher = w
		s.onClose(func() error { w.Stop(); return nil })
	}
	return mem, nil
}

// buildStores opens the configured backend and, when set, Redis for
// exercises shared between instances
func (s *Server) buildStores(ctx context.Context) (stores, error) {
	sc := s.cfg.Storage
	var st stores

	switch sc.Backend {
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(sc.SQLitePath), 0755); err != nil {
			return st, fmt.Errorf("create data dir: %w", err)
		}
		db, err := sqlite.Open(sc.SQLitePath)
		if err != nil {
			return st, err
		}
		s.onClose(db.Close)
		if err := db.Migrate(ctx); err != nil {
			return st, err
		}
		s.evaluations = sqlite.NewEvaluationStore(db)
		exercises := sqlite.NewExerciseStore(db)
		if sc.ExerciseRetention > 0 {
			s.startPurge(exercises, sc.ExerciseRetention)
		}
		st.exercises = exercises
		st.codas = sqlite.NewCodaStore(db)
		st.listeners = append(st.listeners, s.evaluations)

	case config.BackendLocal:
		ls, err := local.NewStore(sc.LocalDir)
		if err != nil {
			return st, err
		}
		st.exercises = local.NewExerciseStore(ls)
		fs, err := coda.NewFileStore(filepath.Join(sc.LocalDir, "learners"))
		if err != nil {
			return st, err
		}
		st.codas = fs

	default:
		return st, fmt.Errorf("unknown storage backend %q", sc.Backend)
	}

	if sc.RedisAddr != "" {
		rs, err := redis.Open(ctx, redis.Config{
			Addr:     sc.RedisAddr,
			Password: sc.RedisPassword,
			DB:       sc.RedisDB,
			TTL:      sc.RedisTTL,
		})
		if err != nil {
			return st, err
		}
		s.onClose(rs.Close)
		st.exercises = rs
		slog.Info("sharing exercises through redis", "addr", sc.RedisAddr)
	}

	return st, nil
}

// startPurge expires stored exercises in the background until shutdown
func (s *Server) startPurge(exercises *sqlite.ExerciseStore, retention time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		exercises.RunPurge(ctx, retention, purgeInterval)
	}()
	s.onClose(func() error {
		cancel()
		<-done
		return nil
	})
}

// buildQueue connects to RabbitMQ when configured. A broker that cannot be
// reached is logged and the daemon runs without events.
func (s *Server) buildQueue(ctx context.Context) *queue.Producer {
	qc := s.cfg.Queue
	if qc.URL == "" {
		return nil
	}

	conn, err := queue.NewConnection(qc.URL)
	if err != nil {
		slog.Warn("RabbitMQ not available, events disabled", "error", err)
		return nil
	}
	s.onClose(conn.Close)

	consumer := queue.NewConsumer(conn, queue.ServiceHandler(s.codas), queue.ConsumerConfig{
		Workers:  qc.Workers,
		Prefetch: qc.Prefetch,
		Timeout:  qc.Timeout,
	})
	if err := consumer.Start(ctx); err != nil {
		slog.Warn("interaction consumer not started", "error", err)
	} else {
		s.consumer = consumer
		s.onClose(func() error { consumer.Stop(); return nil })
	}

	return queue.NewProducer(conn)
}

