package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"cloud.google.com/go/storage"

	"github.com/a3tai/asset-form-generator/internal/asset"
	"github.com/a3tai/asset-form-generator/internal/config"
	"github.com/a3tai/asset-form-generator/internal/delivery"
	"github.com/a3tai/asset-form-generator/internal/logger"
)

// NewFromConfig builds a service with the photo resolver and mail sender the
// configuration asks for. The returned cleanup closes external clients.
func NewFromConfig(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Service, func(), error) {
	if log == nil {
		log = logger.NewNop()
	}
	var (
		opts    []Option
		closers []func() error
	)
	cleanup := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warn("cleanup failed", "error", err)
			}
		}
	}

	if cfg.ImagesEnabled {
		resolver, closeGCS, err := newResolver(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		if closeGCS != nil {
			closers = append(closers, closeGCS)
		}
		opts = append(opts, WithResolver(resolver))
	}

	if cfg.EmailEnabled {
		sender, err := newSender(cfg, log)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		from := delivery.Address{Email: cfg.MailFrom, Name: cfg.MailFromName}
		opts = append(opts, WithDispatcher(delivery.NewDispatcher(sender, from, cfg.MailSubject, log)))
	}

	return New(cfg, log, opts...), cleanup, nil
}

func newResolver(ctx context.Context, cfg *config.Config, log *logger.Logger) (*asset.Resolver, func() error, error) {
	if cfg.ImageCacheDir != "" {
		if err := os.MkdirAll(cfg.ImageCacheDir, config.DefaultDirPerm); err != nil {
			return nil, nil, fmt.Errorf("cannot create image cache directory: %w", err)
		}
	}
	httpClient := &http.Client{Timeout: cfg.FetchTimeout}

	var (
		gcs      *storage.Client
		closeGCS func() error
	)
	if cfg.GCSImages {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create cloud storage client: %w", err)
		}
		gcs = client
		closeGCS = client.Close
	}

	strategies := asset.DefaultStrategies(httpClient, gcs, cfg.MaxImageBytes)
	resolver := asset.NewResolver(asset.Options{
		CacheDir:     cfg.ImageCacheDir,
		MaxDimension: cfg.ImageMaxDim,
		FetchTimeout: cfg.FetchTimeout,
	}, log, strategies...)
	return resolver, closeGCS, nil
}

func newSender(cfg *config.Config, log *logger.Logger) (delivery.Sender, error) {
	if cfg.DryRun {
		return delivery.NewDryRunSender(log), nil
	}
	switch cfg.MailTransport {
	case config.TransportSendGrid:
		return delivery.NewSendGridSender(delivery.SendGridConfig{APIKey: cfg.SendGridAPIKey})
	case config.TransportSMTP:
		return delivery.NewSMTPSender(delivery.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
		})
	default:
		return nil, fmt.Errorf("unknown mail transport %q", cfg.MailTransport)
	}
}
