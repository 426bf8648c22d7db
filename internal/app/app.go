// Package app builds the pieces shared by the server and the admin CLI from
// a loaded config.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"puzzlehunt/internal/config"
	"puzzlehunt/internal/metrics"
	"puzzlehunt/internal/notify"
)

// NewLogger returns a JSON logger in production and a console logger
// otherwise, at the configured level.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}

	var zc zap.Config
	if cfg.IsProduction() {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// OpenDB connects to Postgres through pgx and checks the connection.
func OpenDB(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	db, err := sqlx.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(2 * time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// NewSender picks the mail transport named by MAIL_TRANSPORT.
func NewSender(cfg *config.Config, logger *zap.Logger) (notify.Sender, error) {
	m := cfg.Mail
	switch m.Transport {
	case "log":
		return notify.NewLogSender(logger), nil
	case "smtp":
		return notify.NewSMTPSender(notify.SMTPConfig{
			Host:     m.Server,
			Port:     m.Port,
			Username: m.Username,
			Password: m.Password,
			UseTLS:   m.UseTLS,
			From:     m.DefaultSender,
		})
	case "http":
		return notify.NewHTTPAPISender(logger, notify.HTTPAPIConfig{
			URL:           m.APIURL,
			APIKey:        m.APIKey,
			From:          m.DefaultSender,
			Timeout:       m.SendTimeout,
			RatePerSecond: m.APIRatePerSec,
		})
	default:
		return nil, fmt.Errorf("unknown mail transport %q", m.Transport)
	}
}

// NewDispatcher wires the configured transport and templates into a
// dispatcher. The caller starts and closes it.
func NewDispatcher(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*notify.Dispatcher, error) {
	sender, err := NewSender(cfg, logger)
	if err != nil {
		return nil, err
	}
	renderer, err := notify.NewRenderer(cfg.SiteName, cfg.SiteURL)
	if err != nil {
		return nil, err
	}
	return notify.NewDispatcher(logger, sender, renderer, m, notify.DispatcherOptions{
		Workers:     cfg.Mail.Workers,
		QueueSize:   cfg.Mail.QueueSize,
		SendTimeout: cfg.Mail.SendTimeout,
	}), nil
}
