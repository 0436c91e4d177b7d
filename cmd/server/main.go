package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jmiconnect/portal/internal/config"
	"github.com/jmiconnect/portal/internal/handlers"
	"github.com/jmiconnect/portal/internal/middleware"
	"github.com/jmiconnect/portal/internal/notification"
	"github.com/jmiconnect/portal/internal/repository"
	"github.com/jmiconnect/portal/internal/service"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.WithField("level", cfg.LogLevel).Warn("Unknown log level, keeping info")
	}

	dynamoClient, err := initDynamoDB(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize DynamoDB")
	}

	redisClient, err := initRedis(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(dynamoClient, cfg.DynamoDB.TableName, cfg.DynamoDB.EmailIndex, logger)
	sessionRepo := repository.NewSessionRepository(dynamoClient, cfg.DynamoDB.TableName, logger)
	otpStore := newOTPStore(cfg, dynamoClient, redisClient, logger)

	// Initialize services
	jwtService, err := service.NewJWTService(&cfg.Session, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize JWT service")
	}

	mailer := notification.NewSMTPMailer(cfg.SMTP, logger)
	otpService := service.NewOTPService(otpStore, &cfg.OTP, logger)
	resetService := service.NewPasswordResetService(otpService, userRepo, mailer, logger)
	sessionService := service.NewSessionService(userRepo, sessionRepo, jwtService, cfg.Session.MaxAge, logger)
	settingsService := service.NewSettingsService(userRepo, sessionRepo, logger)

	deps := handlers.RouterDeps{
		PasswordReset:  handlers.NewPasswordResetHandlers(resetService, logger),
		Auth:           handlers.NewAuthHandlers(sessionService, cfg.Session, logger),
		Settings:       handlers.NewSettingsHandlers(settingsService, logger),
		AuthMiddleware: middleware.NewAuthMiddleware(sessionService, cfg.Session.CookieName, logger),
		AllowOrigin:    cfg.Server.AllowOrigin,
		Logger:         logger,
	}
	if redisClient != nil {
		deps.RequestLimiter = middleware.RequestRateLimit(redisClient, cfg.OTP.RequestsPerMinute, cfg.OTP.RequestKeyPrefix, cfg.Server.TrustProxy, logger)
	}
	router := handlers.NewRouter(deps)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":      cfg.Server.Port,
			"otp_store": cfg.OTP.StoreBackend,
		}).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

func initDynamoDB(cfg *config.Config, logger *logrus.Logger) (*dynamodb.Client, error) {
	var awsCfg aws.Config
	var err error

	if cfg.DynamoDB.Endpoint != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO(),
			awsconfig.WithRegion(cfg.DynamoDB.Region),
			awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
				func(service, region string, options ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{
						URL:           cfg.DynamoDB.Endpoint,
						SigningRegion: cfg.DynamoDB.Region,
					}, nil
				})),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO(), awsconfig.WithRegion(cfg.DynamoDB.Region))
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg)
	logger.Info("DynamoDB client initialized")
	return client, nil
}

// initRedis returns nil when no endpoint is configured. Redis backs the
// rate limiter and, optionally, the OTP store.
func initRedis(cfg *config.Config, logger *logrus.Logger) (*redis.Client, error) {
	if cfg.Redis.Endpoint == "" {
		logger.Info("Redis not configured, OTP request rate limiting disabled")
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Endpoint,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.WithField("endpoint", cfg.Redis.Endpoint).Info("Redis client initialized")
	return client, nil
}

func newOTPStore(cfg *config.Config, dynamoClient *dynamodb.Client, redisClient *redis.Client, logger *logrus.Logger) service.OTPStore {
	switch cfg.OTP.StoreBackend {
	case config.OTPStoreRedis:
		return repository.NewRedisOTPRepository(redisClient, logger)
	case config.OTPStoreDynamoDB:
		return repository.NewOTPRepository(dynamoClient, cfg.DynamoDB.TableName, logger)
	default:
		return repository.NewMemoryOTPRepository()
	}
}
