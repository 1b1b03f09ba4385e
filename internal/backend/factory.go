package backend

import (
	"context"
	"fmt"

	"expenditures/internal/amqp"
	"expenditures/internal/feed"
	"expenditures/internal/log"
	"expenditures/internal/services"
	gsheet "expenditures/internal/sheets/google"
	"expenditures/internal/source/memory"
	"expenditures/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	return &DefaultFactory{
		logger: log.OrDiscard(logger).WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

// changeBus is both ends of the change notification channel.
type changeBus interface {
	services.ChangePublisher
	feed.ChangeConsumer
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, storage.WithLogger(f.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	// AMQP is optional; a single process works with the in-process bus.
	var (
		bus        changeBus = feed.NewBroadcaster()
		amqpClient *amqp.Client
	)
	if config.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.Collection, f.logger)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, using in-process notifications", log.FieldError, err)
		} else {
			bus = amqpClient
			f.logger.InfoContext(ctx, "Initialized AMQP client", "exchange", config.AMQPExchange)
		}
	}

	svc := services.NewRecordService(repo, bus, config.Collection, f.logger)
	f.logger.InfoContext(ctx, "Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", amqpClient != nil)

	return &BackendResult{
		Source:  feed.NewSource(repo, bus, f.logger),
		Mutator: svc,
		Ready: func(ctx context.Context) error {
			if err := repo.Ping(ctx); err != nil {
				return fmt.Errorf("sqlite: %w", err)
			}
			if amqpClient != nil {
				if err := amqpClient.Ping(); err != nil {
					return fmt.Errorf("amqp: %w", err)
				}
			}
			return nil
		},
		Cleanup: svc.Close,
	}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	cli, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:      config.GoogleSpreadsheetID,
		SheetName:          config.GoogleSheetName,
		ServiceAccountFile: config.GoogleServiceAccountFile,
		ServiceAccountJSON: config.GoogleServiceAccountJSON,
		Location:           config.Location,
	}, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized Google Sheets backend (read-only)",
		"poll_interval", config.PollInterval.String())

	return &BackendResult{
		Source: feed.NewPollingSource(cli, feed.PollingConfig{Interval: config.PollInterval}, f.logger),
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store := memory.New(memory.WithLogger(f.logger))
	svc := services.NewRecordService(store, nil, config.Collection, f.logger)

	f.logger.InfoContext(ctx, "Initialized memory backend")

	return &BackendResult{
		Source:  store,
		Mutator: svc,
		Cleanup: svc.Close,
	}, nil
}
