package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forecourt/forecourt/internal/customers"
	"github.com/forecourt/forecourt/internal/dealers"
	"github.com/forecourt/forecourt/internal/invoices"
	"github.com/forecourt/forecourt/internal/invoices/export"
	"github.com/forecourt/forecourt/internal/stock"
	"github.com/forecourt/forecourt/internal/storage"
	"github.com/forecourt/forecourt/report"
)

// Queue schedules the background work the domain services hand off.
// jobs.Client implements it.
type Queue interface {
	stock.ThumbnailQueue
	invoices.PDFQueue
}

// Services are the domain services shared by the web server and the worker.
type Services struct {
	Store     storage.Store
	Dealers   *dealers.Service
	Customers *customers.Service
	Stock     *stock.Service
	Invoices  *invoices.Service
	PDF       *report.Client

	closers []func() error
}

// NewStore opens the GCS bucket, or an in-process store when no bucket is
// configured.
func NewStore(ctx context.Context, cfg *Config, logger *slog.Logger) (storage.Store, func() error, error) {
	if cfg.GCSBucket == "" {
		logger.Warn("GCS_BUCKET not set, storing files in memory")
		return storage.NewMemoryStore(cfg.StoragePublicURL), func() error { return nil }, nil
	}
	store, err := storage.NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSCredentialsFile, cfg.StoragePublicURL)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// NewServices builds the domain services over pool.
func NewServices(ctx context.Context, cfg *Config, pool *pgxpool.Pool, queue Queue, logger *slog.Logger) (*Services, error) {
	store, closeStore, err := NewStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	pdfClient := report.NewClient(cfg.GotenbergURL)
	htmlRenderer, err := export.NewHTMLRenderer(pdfClient)
	if err != nil {
		_ = closeStore()
		return nil, err
	}

	dealerService := dealers.NewService(dealers.NewRepository(pool))
	customerService := customers.NewService(customers.NewRepository(pool))
	stockService := stock.NewService(stock.NewRepository(pool), store, queue, cfg.UploadMaxBytes, logger)
	invoiceService := invoices.NewService(invoices.NewRepository(pool), invoices.Deps{
		Dealers:    dealerService,
		Vehicles:   stockService,
		Customers:  customerService,
		Store:      store,
		Queue:      queue,
		Renderers:  []invoices.Renderer{htmlRenderer, export.NewNativeRenderer()},
		Logger:     logger,
		DefaultVAT: cfg.VATRate,
	})

	return &Services{
		Store:     store,
		Dealers:   dealerService,
		Customers: customerService,
		Stock:     stockService,
		Invoices:  invoiceService,
		PDF:       pdfClient,
		closers:   []func() error{closeStore},
	}, nil
}

// Close releases storage clients.
func (s *Services) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
