package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/infra/postgres"
	infraredis "live-quiz-service/internal/infra/redis"
	"live-quiz-service/internal/logger"
	"live-quiz-service/internal/realtime"
	transport "live-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the live quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Logging.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var registry app.Registry
	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log); err != nil {
			return err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		registry = postgres.NewRegistry(pool)
	} else {
		mem := memory.NewRegistry()
		if err := seedSampleQuiz(ctx, mem, log); err != nil {
			return err
		}
		registry = mem
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.Duration(cfg.Redis.TTL, 10*time.Minute)
	quizTTL := config.Duration(cfg.Quiz.TTL, 10*time.Minute)

	var questions app.QuestionSource
	if redisClient != nil {
		questions = infraredis.NewQuestionCache(redisClient, registry, quizTTL, log)
	} else {
		questions = memory.NewQuestionCache(registry, quizTTL)
	}

	var groupOpts []realtime.GroupOption
	var fanout *infraredis.Fanout
	var presenceStore *infraredis.PresenceStore
	if redisClient != nil {
		presenceStore = infraredis.NewPresenceStore(redisClient, redisTTL, log)
		groupOpts = append(groupOpts, realtime.WithObserver(presenceStore))
		if cfg.Redis.Fanout {
			fanout = infraredis.NewFanout(redisClient, cfg.Redis.Channel, log)
			groupOpts = append(groupOpts, realtime.WithFanout(fanout))
		}
	}
	groups := realtime.NewGroups(log, groupOpts...)
	if fanout != nil {
		if err := fanout.Start(ctx, func(pin string, payload []byte) { groups.Deliver(pin, payload) }); err != nil {
			return err
		}
	}

	var presence transport.Presence = groups
	if presenceStore != nil {
		presence = presenceStore
		go presenceStore.Keepalive(ctx, redisTTL/2, groups.PINs)
	}

	tokens := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	ledger := app.NewLedger(registry, log)
	scoreboards := app.NewScoreboardBuilder(registry)
	sessions := app.NewSessionService(registry, cfg.Sessions.PINAttempts, log)

	engine := realtime.NewEngine(realtime.EngineDeps{
		Groups:          groups,
		Sessions:        registry,
		Ledger:          ledger,
		Scoreboards:     scoreboards,
		Ownership:       sessions,
		Questions:       questions,
		Tokens:          tokens,
		RequireHostPush: cfg.Realtime.RequireHostPush,
		Logger:          log,
	})

	if cfg.Logging.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := transport.NewRouter(transport.RouterConfig{
		WS: transport.NewWSHandler(engine, cfg.Realtime.SendBuffer, config.Duration(cfg.Realtime.PongWait, 60*time.Second), log),
		API: transport.NewAPIHandler(
			app.NewQuizService(registry, questions, log),
			sessions,
			app.NewJoinService(registry, cfg.Sessions.JoinAttempts, log),
			ledger,
			scoreboards,
			presence,
			log,
		),
		Tokens: tokens,
	})

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  config.Duration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.Duration(cfg.Server.WriteTimeout, 15*time.Second),
	}

	go func() {
		log.Info("starting live quiz service", "port", finalPort, "postgres", cfg.Postgres.URL != "", "redis", redisClient != nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", "error", err)
			cancel()
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

// seedSampleQuiz gives the in-memory registry a quiz to play when no database is configured.
func seedSampleQuiz(ctx context.Context, registry *memory.Registry, log *logger.Logger) error {
	quiz, err := registry.CreateQuiz(ctx, domain.Quiz{Title: "Math", Description: "Warm-up arithmetic", OwnerID: 1})
	if err != nil {
		return err
	}
	question, err := registry.CreateQuestion(ctx, domain.Question{
		QuizID:    quiz.ID,
		Text:      "2+2?",
		TimeLimit: 30,
		Choices: []domain.Choice{
			{Text: "3"},
			{Text: "4", IsCorrect: true},
			{Text: "5"},
		},
	})
	if err != nil {
		return err
	}
	log.Info("seeded sample quiz", "quiz", quiz.ID, "question", question.ID, "owner", quiz.OwnerID)
	return nil
}
