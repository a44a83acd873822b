package main

import (
	"context"
	"log"
	"time"

	"casebridge/config"
	"casebridge/internal/auth"
	"casebridge/internal/broadcast"
	"casebridge/internal/handler"
	"casebridge/internal/middleware"
	"casebridge/internal/notification"
	"casebridge/internal/presence"
	"casebridge/internal/redis"
	"casebridge/internal/repository"
	"casebridge/internal/server"
	"casebridge/internal/services"
	"casebridge/internal/storage"
	"casebridge/internal/typing"
	"casebridge/internal/websocket"
	"casebridge/pkg/database"
	"casebridge/pkg/logger"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()

	l := logger.New(cfg.AppMode)
	logger.SetGlobalLogger(l)
	defer l.Sync()

	if err := run(cfg, l); err != nil {
		log.Fatalf("casebridge: %v", err)
	}
}

func run(cfg *config.Config, l *logger.Logger) error {
	ctx := context.Background()

	db, err := database.Open(cfg)
	if err != nil {
		return err
	}
	defer database.Close(db)

	if err := repository.InitSchema(db); err != nil {
		return err
	}
	store := repository.NewStore(db)

	registry := presence.NewRegistry(store.Conversations, l.Named("presence"))
	defer registry.Close()

	engine := broadcast.NewEngine(registry, l.Named("broadcast"))

	tracker := typing.NewManager(engine, cfg.TypingTTL, l.Named("typing"))
	defer tracker.Stop()

	var email notification.EmailSender = notification.NewLogEmailSender(l.Named("email"))
	if cfg.SMTPEnabled() {
		smtp, err := notification.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom, l.Named("email"))
		if err != nil {
			return err
		}
		email = smtp
	}
	var sms notification.SMSSender = notification.NewLogSMSSender(l.Named("sms"))
	if cfg.TwilioEnabled() {
		sms = notification.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, l.Named("sms"))
	}

	orchestrator := notification.NewOrchestrator(store, engine, email, sms, l.Named("notification"))

	dispatcher, stopDispatcher, err := newDispatcher(cfg, orchestrator, l.Named("dispatch"))
	if err != nil {
		return err
	}
	defer stopDispatcher()

	scheduler := notification.NewScheduler(store, orchestrator, l.Named("scheduler"))
	defer scheduler.Stop()
	recovered, err := scheduler.Recover(ctx)
	if err != nil {
		return err
	}
	l.Infof("Recovered %d pending scheduled notifications", recovered)

	conversations := services.NewConversationService(store, registry, engine, dispatcher, l.Named("conversation"))
	templates := services.NewTemplateService(store.Templates)

	var limiter middleware.MessageLimiter
	if cfg.RedisEnabled() {
		client, err := redis.NewClient(ctx, redisConfig(cfg), 5*time.Second)
		if err != nil {
			return err
		}
		defer client.Close()
		limiter = redis.NewRateLimiter(client, redis.RateLimitConfig{
			MessageLimit:  cfg.MessageRateLimit,
			MessageWindow: cfg.MessageRateWindow,
		})
	} else {
		l.Warnf("REDIS_HOST not set, message rate limiting disabled")
	}

	// Interfaces stay nil unless storage is configured so the handlers can tell.
	var signer handler.URLSigner
	var presigner handler.Presigner
	if cfg.S3Enabled() {
		s3Client, err := storage.NewClient(ctx, storage.S3Config{
			Region:     cfg.S3Region,
			Bucket:     cfg.S3Bucket,
			AccessKey:  cfg.S3AccessKey,
			SecretKey:  cfg.S3SecretKey,
			Endpoint:   cfg.S3Endpoint,
			PresignTTL: cfg.S3PresignTTL,
		})
		if err != nil {
			return err
		}
		signer, presigner = s3Client, s3Client
	}

	verifier := auth.NewJWTVerifier(cfg.JWTSecret)

	srv := server.New(cfg, l, db)
	srv.SetupRoutes(&server.Handlers{
		Conversations: handler.NewConversationHandler(conversations, signer, l.Named("http")),
		Notifications: handler.NewNotificationHandler(orchestrator, scheduler),
		Templates:     handler.NewTemplateHandler(templates),
		Attachments:   handler.NewAttachmentHandler(presigner, conversations),
		Realtime:      websocket.NewHandler(verifier, registry, conversations, tracker, engine, l.Named("websocket")),
	}, verifier, limiter)

	return srv.Start()
}

// newDispatcher builds the delivery path selected by DISPATCH_MODE and returns its shutdown hook.
func newDispatcher(cfg *config.Config, n notification.Notifier, logger *zap.Logger) (notification.Dispatcher, func(), error) {
	switch cfg.DispatchMode {
	case config.DispatchInline:
		return notification.NewInlineDispatcher(n, logger), func() {}, nil

	case config.DispatchAsynq:
		if !cfg.RedisEnabled() {
			logger.Warn("asynq dispatch requires redis, falling back to pool")
			break
		}
		opt := asynq.RedisClientOpt{
			Addr:     redisConfig(cfg).Addr(),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}
		worker := notification.NewAsynqWorker(opt, cfg.DispatchWorkers, notification.DefaultQueue, n, logger)
		if err := worker.Start(); err != nil {
			return nil, nil, err
		}
		d := notification.NewAsynqDispatcher(opt, notification.DefaultQueue, logger)
		return d, func() {
			worker.Shutdown()
			if err := d.Close(); err != nil {
				logger.Warn("close asynq client", zap.Error(err))
			}
		}, nil
	}

	pool := notification.NewPoolDispatcher(n, cfg.DispatchWorkers, cfg.DispatchQueue, logger)
	pool.Start()
	return pool, pool.Stop, nil
}

func redisConfig(cfg *config.Config) redis.Config {
	return redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}
