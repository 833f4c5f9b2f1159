package cli

import (
	"context"
	"os"

	appmatching "github.com/turtacn/BOMMesh/internal/application/matching"
	"github.com/turtacn/BOMMesh/internal/config"
	"github.com/turtacn/BOMMesh/internal/infrastructure/database/postgres"
	"github.com/turtacn/BOMMesh/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/BOMMesh/internal/infrastructure/database/redis"
	"github.com/turtacn/BOMMesh/internal/infrastructure/geometry/glb"
	"github.com/turtacn/BOMMesh/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/BOMMesh/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BOMMesh/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/BOMMesh/internal/infrastructure/storage/minio"
	"github.com/turtacn/BOMMesh/internal/intelligence/bomtext"
	"github.com/turtacn/BOMMesh/internal/intelligence/fallback"
	"github.com/turtacn/BOMMesh/internal/interfaces/http/handlers"
	"github.com/turtacn/BOMMesh/pkg/errors"
)

// Runtime is the set of collaborators wired from one Config.
type Runtime struct {
	Service   appmatching.Service
	Metrics   *prometheus.MatchingMetrics
	Collector prometheus.MetricsCollector
	Checkers  []handlers.HealthChecker

	logger  logging.Logger
	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// Close releases connections in reverse order of acquisition.
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		c := r.closers[i]
		if err := c.close(); err != nil {
			r.logger.Warn("Failed to close dependency", logging.String("dependency", c.name), logging.Err(err))
		}
	}
	r.closers = nil
}

func (r *Runtime) onClose(name string, fn func() error) {
	r.closers = append(r.closers, namedCloser{name: name, close: fn})
}

// BuildRuntime connects every enabled dependency of cfg and builds the
// matching service. Model files resolve against modelRoot. The Redis cache
// degrades to no cache when unreachable; every other enabled dependency
// must connect.
func BuildRuntime(ctx context.Context, cfg *config.Config, modelRoot string, log logging.Logger) (_ *Runtime, err error) {
	rt := &Runtime{logger: log}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	deps := appmatching.Dependencies{
		Meshes: glb.NewFileSource(modelRoot, log),
		Logger: log,
	}
	rt.Checkers = append(rt.Checkers, handlers.NewChecker("model_root", func(context.Context) error {
		return checkModelRoot(modelRoot)
	}))

	text, err := bomtext.NewExtractor(bomtext.ExtractorConfig{ExtraCodePatterns: cfg.Matching.ExtraCodePatterns})
	if err != nil {
		return nil, err
	}
	deps.Text = text

	if cfg.Metrics.Enabled {
		collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:            cfg.Metrics.Namespace,
			EnableGoMetrics:      true,
			EnableProcessMetrics: true,
		}, log)
		if err != nil {
			return nil, err
		}
		rt.Collector = collector
		rt.Metrics = prometheus.NewMatchingMetrics(collector)
		deps.Metrics = rt.Metrics
	}

	var cache redis.Cache
	if cfg.Redis.Enabled {
		client, err := redis.NewClient(cfg.Redis, log)
		if err != nil {
			log.Warn("Redis unavailable, continuing without fallback cache", logging.Err(err))
		} else {
			rt.onClose("redis", client.Close)
			rt.Checkers = append(rt.Checkers, handlers.NewOptionalChecker("redis", client.Ping))
			cache = redis.NewRedisCache(client, log,
				redis.WithPrefix(cfg.Redis.KeyPrefix),
				redis.WithDefaultTTL(cfg.Fallback.CacheTTL))
		}
	}

	if cfg.Fallback.Enabled {
		matcher, err := buildFallback(cfg.Fallback, cache, rt.Metrics, log)
		if err != nil {
			return nil, err
		}
		deps.Fallback = matcher
	}

	if cfg.Database.Enabled {
		conn, err := postgres.NewConnection(cfg.Database, log)
		if err != nil {
			return nil, err
		}
		rt.onClose("postgres", conn.Close)
		if cfg.Database.AutoMigrate {
			if err := conn.RunMigrations(); err != nil {
				return nil, err
			}
		}
		rt.Checkers = append(rt.Checkers, handlers.NewChecker("postgres", conn.HealthCheck))
		deps.Repository = repositories.NewPostgresMappingRepo(conn, log)
	}

	if cfg.MinIO.Enabled {
		client, err := minio.NewClient(cfg.MinIO, log)
		if err != nil {
			return nil, err
		}
		rt.Checkers = append(rt.Checkers, handlers.NewChecker("minio", client.HealthCheck))
		deps.Reports = minio.NewReportStore(client, log)
	}

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(cfg.Kafka, log)
		if err != nil {
			return nil, err
		}
		rt.onClose("kafka", producer.Close)
		deps.Events = kafka.NewEventPublisher(producer, log)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rt.Service, err = appmatching.NewService(cfg.Matching, deps)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

func buildFallback(cfg config.FallbackConfig, cache redis.Cache, metrics *prometheus.MatchingMetrics, log logging.Logger) (*fallback.Matcher, error) {
	client, err := fallback.NewOpenAIClient(cfg, log)
	if err != nil {
		return nil, err
	}
	prompts, err := fallback.NewPromptBuilder(cfg.MaxBOMItems)
	if err != nil {
		return nil, err
	}

	opts := []fallback.Option{
		fallback.WithMinConfidence(cfg.MinConfidence),
		fallback.WithTimeout(cfg.Timeout),
	}
	if cache != nil && cfg.CacheEnabled {
		opts = append(opts, fallback.WithCache(cache, cfg.CacheTTL))
	}
	if metrics != nil {
		opts = append(opts, fallback.WithRecorder(metrics))
	}
	return fallback.NewMatcher(client, prompts, log, opts...), nil
}

func checkModelRoot(dir string) error {
	if dir == "" {
		return nil
	}
	fi, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return errors.Newf(errors.ErrCodeModelFileNotFound, "model root %s is not a directory", dir)
	}
	return nil
}
