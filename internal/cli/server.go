package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"battle-quiz-service/internal/app"
	"battle-quiz-service/internal/config"
	"battle-quiz-service/internal/infra/memory"
	"battle-quiz-service/internal/infra/postgres"
	infraredis "battle-quiz-service/internal/infra/redis"
	transport "battle-quiz-service/internal/transport/http"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the battle server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// eventBus publishes room events for the engine and streams them to sockets.
type eventBus interface {
	app.Publisher
	transport.Subscriber
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log); err != nil {
			return err
		}
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	redisTTL := config.Duration(cfg.Redis.TTL, time.Hour)

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = postgres.NewQuizLoader(pool)
	}

	quizTTL := config.Duration(cfg.Quiz.TTL, 10*time.Minute)
	var bank app.QuestionBank
	if redisClient != nil {
		bank = infraredis.NewQuestionBank(redisClient, loader, quizTTL)
	} else {
		bank = memory.NewQuestionBank(loader, quizTTL, nil)
	}

	var store app.Store
	switch {
	case pool != nil:
		store = postgres.NewStore(pool)
	case redisClient != nil:
		store = infraredis.NewStore(redisClient, redisTTL)
	default:
		store = memory.NewStore()
	}

	var events eventBus
	if redisClient != nil {
		events = infraredis.NewBroadcaster(redisClient, cfg.Battle.SubscriberBuffer, log)
	} else {
		events = memory.NewBroadcaster(cfg.Battle.SubscriberBuffer)
	}

	policy := app.DefaultRetryPolicy()
	policy.InitialInterval = config.Duration(cfg.Battle.RetryInitial, policy.InitialInterval)
	policy.MaxElapsedTime = config.Duration(cfg.Battle.RetryMaxElapsed, policy.MaxElapsedTime)

	opts := []app.Option{
		app.WithLogger(log),
		app.WithRetryPolicy(policy),
		app.WithQuestionBank(bank),
	}
	// With a shared Redis several instances may serve the same rooms; the lease
	// keeps each room on one of them.
	if redisClient != nil {
		owner := uuid.NewString()
		leaseTTL := config.Duration(cfg.Battle.LeaseTTL, 30*time.Second)
		opts = append(opts, app.WithRoomLeaser(infraredis.NewLeaser(redisClient, owner, leaseTTL), leaseTTL))
		log.WithFields(logrus.Fields{"instance": owner, "lease_ttl": leaseTTL}).Info("room leases enabled")
	}

	service := app.NewBattleService(store, events, opts...)
	defer service.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	transport.NewRoomsHandler(service, log).Register(mux)
	mux.HandleFunc("/ws", transport.NewWSHandler(service, events, log).ServeWS)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("port", finalPort).Info("starting battle service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if p, ok := store.(purger); ok {
		retention := config.Duration(cfg.Battle.Retention, 24*time.Hour)
		g.Go(func() error {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			purgeLoop(gctx, p, retention, ticker.C, log)
			return nil
		})
	}
	return g.Wait()
}

// purger is implemented by stores that keep finished rooms until told to drop
// them; the Redis store expires them itself.
type purger interface {
	PurgeCompleted(ctx context.Context, before time.Time) (int64, error)
}

// purgeLoop drops finished rooms older than retention on every tick until ctx ends.
func purgeLoop(ctx context.Context, store purger, retention time.Duration, ticks <-chan time.Time, log logrus.FieldLogger) {
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticks:
			n, err := store.PurgeCompleted(ctx, now.Add(-retention))
			if err != nil {
				log.WithError(err).Warn("purge completed rooms failed")
				continue
			}
			if n > 0 {
				log.WithField("rooms", n).Info("purged completed rooms")
			}
		}
	}
}
