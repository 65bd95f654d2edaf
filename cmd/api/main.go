package main

import (
	"expvar"
	"fmt"
	"log"
	"os"
	"runtime"
	"strconv"
	"time"

	"kalda/internal/db"
	"kalda/internal/domain/storage"
	"kalda/internal/mailer"
	"kalda/internal/notifications"
	"kalda/internal/payments"
	"kalda/internal/ratelimiter"
	"kalda/internal/sms"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var version = "1.0.0"

func envString(key, fallback string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
		fmt.Println("Invalid", key, "defaulting to", fallback)
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if val, exists := os.LookupEnv(key); exists {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		fmt.Println("Invalid", key, "defaulting to", fallback)
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
		fmt.Println("Invalid", key, "defaulting to", fallback)
	}
	return fallback
}

// LoadRateLimiterConfig retrieves rate limiter settings from environment variables
func LoadRateLimiterConfig() ratelimiter.Config {
	return ratelimiter.Config{
		RequestsPerTimeFrame: envInt("RATELIMITER_REQUESTS_COUNT", 60),
		TimeFrame:            envDuration("RATELIMITER_TIMEFRAME", 5*time.Second),
		Enabled:              envBool("RATE_LIMITER_ENABLED", true),
	}
}

// NewLogger creates a new zap logger with color.
func NewLogger() (*zap.SugaredLogger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)
	level := zapcore.InfoLevel

	core := zapcore.NewCore(consoleEncoder, zapcore.NewMultiWriteSyncer(zapcore.AddSync(os.Stdout)), level)

	return zap.New(core).Sugar(), nil
}

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg := config{
		addr:   envString("ADDR", ":8080"),
		env:    envString("ENV", "development"),
		apiURL: envString("EXTERNAL_URL", "localhost:8080"),
		db: dbConfig{
			addr:        os.Getenv("DB_ADDR"),
			maxConns:    envInt("DB_MAX_CONNS", 25),
			maxIdleTime: envString("DB_MAX_IDLE_TIME", "15m"),
		},
		auth: authConfig{
			basic: basicConfig{
				user: os.Getenv("AUTH_BASIC_USER"),
				pass: os.Getenv("AUTH_BASIC_PASS"),
			},
		},
		daraja: darajaConfig{
			consumerKey:    os.Getenv("DARAJA_CONSUMER_KEY"),
			consumerSecret: os.Getenv("DARAJA_CONSUMER_SECRET"),
			shortCode:      os.Getenv("DARAJA_SHORTCODE"),
			passkey:        os.Getenv("DARAJA_PASSKEY"),
			callbackURL:    os.Getenv("DARAJA_CALLBACK_URL"),
			callbackToken:  os.Getenv("DARAJA_CALLBACK_TOKEN"),
			production:     envBool("DARAJA_PRODUCTION", false),
		},
		payment: payments.Config{
			MaxPushAttempts: envInt("DARAJA_MAX_PUSH_ATTEMPTS", 3),
			BackoffBase:     envDuration("DARAJA_PUSH_BACKOFF", 500*time.Millisecond),
			StuckAfter:      envDuration("RECONCILE_STUCK_AFTER", 3*time.Minute),
			UnknownGrace:    envDuration("RECONCILE_UNKNOWN_GRACE", 15*time.Minute),
			Currency:        envString("PAYMENT_CURRENCY", "KES"),
			RenewalMonths:   envInt("MEMBERSHIP_RENEWAL_MONTHS", 12),
		},
		mail: mailConfig{
			host:      os.Getenv("SMTP_HOST"),
			port:      envInt("SMTP_PORT", 587),
			username:  os.Getenv("SMTP_USERNAME"),
			password:  os.Getenv("SMTP_PASSWORD"),
			fromEmail: os.Getenv("SMTP_FROM_EMAIL"),
		},
		sms: smsConfig{
			username: envString("AT_USERNAME", "sandbox"),
			apiKey:   os.Getenv("AT_API_KEY"),
			senderID: os.Getenv("AT_SENDER_ID"),
		},
		referenceSecret:   os.Getenv("PAYMENT_REFERENCE_SECRET"),
		receiptSalt:       os.Getenv("RECEIPT_NUMBER_SALT"),
		reconcileInterval: envDuration("RECONCILE_INTERVAL", 2*time.Minute),
		rateLimiter:       LoadRateLimiterConfig(),
	}

	logger, err := NewLogger()
	if err != nil {
		fmt.Println("Error creating logger:", err)
		return
	}
	defer logger.Sync()

	// Database
	pool, err := db.New(cfg.db.addr, int32(cfg.db.maxConns), cfg.db.maxIdleTime)
	if err != nil {
		logger.Fatal(err)
	}
	defer pool.Close()
	logger.Info("database connection pool established")

	store, err := storage.NewContainer(pool, cfg.receiptSalt)
	if err != nil {
		logger.Fatal(err)
	}

	// Member notification channels
	smtp, err := mailer.NewSMTPClient(cfg.mail.host, cfg.mail.port, cfg.mail.username, cfg.mail.password, cfg.mail.fromEmail)
	if err != nil {
		logger.Fatal(err)
	}
	smsClient := sms.NewAfricasTalkingClient(cfg.sms.username, cfg.sms.apiKey, cfg.sms.senderID)
	notifier := notifications.NewDispatcher(smtp, smsClient, logger)

	// Gateway
	daraja := payments.NewDarajaAdapter(
		cfg.daraja.consumerKey,
		cfg.daraja.consumerSecret,
		cfg.daraja.shortCode,
		cfg.daraja.passkey,
		fmt.Sprintf("%s?token=%s", cfg.daraja.callbackURL, cfg.daraja.callbackToken),
		cfg.daraja.production,
	)

	paymentService := payments.NewService(
		store.Payments,
		store.PayLogs,
		store.Members,
		store.Receipts,
		daraja,
		notifier,
		payments.NewReferenceGenerator(cfg.referenceSecret),
		logger,
		cfg.payment,
	)

	rateLimiter := ratelimiter.NewFixedWindowLimiter(
		cfg.rateLimiter.RequestsPerTimeFrame,
		cfg.rateLimiter.TimeFrame,
	)

	app := &application{
		config:      cfg,
		logger:      logger,
		store:       store,
		payments:    paymentService,
		rateLimiter: rateLimiter,
	}

	// Metrics collected at /v1/debug/vars
	expvar.NewString("version").Set(version)
	expvar.Publish("database", expvar.Func(func() any {
		s := pool.Stat()
		return map[string]any{
			"total_conns":    s.TotalConns(),
			"idle_conns":     s.IdleConns(),
			"acquired_conns": s.AcquiredConns(),
		}
	}))
	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	app.reconcilePendingPayments(cfg.reconcileInterval)

	mux := app.mount()

	logger.Fatal(app.run(mux))
}
