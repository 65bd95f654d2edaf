package main

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kalda/internal/domain/storage"
	"kalda/internal/payments"
	"kalda/internal/ratelimiter"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

type application struct {
	config      config
	store       *storage.Container
	logger      *zap.SugaredLogger
	payments    *payments.Service
	rateLimiter *ratelimiter.FixedWindowRateLimiter
}

type config struct {
	addr              string
	env               string
	apiURL            string
	db                dbConfig
	auth              authConfig
	daraja            darajaConfig
	payment           payments.Config
	mail              mailConfig
	sms               smsConfig
	referenceSecret   string
	receiptSalt       string
	reconcileInterval time.Duration
	rateLimiter       ratelimiter.Config
}

type dbConfig struct {
	addr        string
	maxConns    int
	maxIdleTime string
}

type authConfig struct {
	basic basicConfig
}

type basicConfig struct {
	user string
	pass string
}

type darajaConfig struct {
	consumerKey    string
	consumerSecret string
	shortCode      string
	passkey        string
	callbackURL    string
	callbackToken  string
	production     bool
}

type mailConfig struct {
	host      string
	port      int
	username  string
	password  string
	fromEmail string
}

type smsConfig struct {
	username string
	apiKey   string
	senderID string
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Request context deadline; handlers that talk to the gateway set tighter ones.
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.With(app.BasicAuthMiddleware()).Get("/health", app.healthCheckHandler)
		r.With(app.BasicAuthMiddleware()).Get("/debug/vars", expvar.Handler().ServeHTTP)

		r.Route("/payments", func(r chi.Router) {
			r.Post("/", app.initiatePaymentHandler)
			r.With(app.BasicAuthMiddleware()).Get("/", app.listPaymentsHandler)
			r.Get("/{reference}", app.getPaymentHandler)

			// Safaricom calls this one; everything else is ours.
			r.With(app.RateLimiterMiddleware).Post("/mpesa/callback", app.mpesaCallbackHandler)
		})
	})
	return r
}

func (app *application) run(mux http.Handler) error {
	srv := &http.Server{
		Addr:         app.config.addr,
		Handler:      mux,
		WriteTimeout: time.Second * 30,
		ReadTimeout:  time.Second * 10,
		IdleTimeout:  time.Minute,
	}

	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.logger.Infow("signal caught", "signal", s.String())

		shutdown <- srv.Shutdown(ctx)
	}()

	app.logger.Infow("server has started", "addr", app.config.addr, "env", app.config.env)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Infow("server has stopped", "addr", app.config.addr, "env", app.config.env)

	return nil
}
