package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/common-nighthawk/go-figure"
	"github.com/pharmalens/dashauth"
	"github.com/pharmalens/dashauth/internal/httpapi"
	"github.com/pharmalens/dashauth/internal/logging"
	"github.com/pharmalens/dashauth/mail"
	"github.com/pharmalens/dashauth/metrics/export/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dashauth: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig(".env.local", ".env")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	displayAppname(cfg.AppName)
	logger := logging.New(logging.Config{
		Level:   cfg.LogLevel,
		Pretty:  !cfg.production(),
		Service: "dashauth",
	})

	client, closeRedis, err := openRedis(cfg, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	engine, err := dashauth.New().
		WithConfig(cfg.Auth).
		WithRedis(client).
		WithMailer(newMailer(cfg, logger)).
		WithLogger(logging.Component(logger, "engine")).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	report := engine.SecurityReport()
	for _, w := range report.Warnings {
		logger.Warn().Str("check", "security").Msg(w)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = engine.Ping(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	server := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.NewRouter(engine, httpapi.Options{
			Logger:  logging.Component(logger, "http"),
			Metrics: prometheus.NewExporter(engine).Handler(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return shutdown(server)
}

// openRedis connects to REDIS_URL, or starts an in-process server for local
// development when it is unset.
func openRedis(cfg serverConfig, logger zerolog.Logger) (redis.UniversalClient, func(), error) {
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		return client, func() { _ = client.Close() }, nil
	}

	if cfg.production() {
		return nil, nil, errors.New("REDIS_URL is required in production")
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start in-memory redis: %w", err)
	}
	logger.Warn().Str("addr", mr.Addr()).Msg("REDIS_URL not set, using in-memory redis; data is lost on exit")

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func newMailer(cfg serverConfig, logger zerolog.Logger) mail.Sender {
	if !cfg.smtpEnabled() {
		logger.Warn().Msg("SMTP credentials not set, emails are logged instead of sent")
		return mail.LogSender{Logger: logging.Component(logger, "mail")}
	}
	return mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPAccount,
		Password: cfg.SMTPPassword,
	})
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
