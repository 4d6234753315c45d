// Package server initializes and runs the record server: it opens the
// metadata, content and notification backends, wires the ingestion pipeline,
// and serves it over gRPC next to a metrics and health endpoint.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/recordkeeper/internal/logging"
	"github.com/dmitrijs2005/recordkeeper/internal/server/blobstore"
	"github.com/dmitrijs2005/recordkeeper/internal/server/config"
	"github.com/dmitrijs2005/recordkeeper/internal/server/entitlements"
	"github.com/dmitrijs2005/recordkeeper/internal/server/legal"
	"github.com/dmitrijs2005/recordkeeper/internal/server/messagebus"
	"github.com/dmitrijs2005/recordkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/recordkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/recordkeeper/internal/server/services"
	"github.com/dmitrijs2005/recordkeeper/internal/server/validation"
	"github.com/dmitrijs2005/recordkeeper/internal/workerpool"

	gs "github.com/dmitrijs2005/recordkeeper/internal/server/grpc"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	repos   repomanager.RepositoryManager
	bus     messagebus.Bus
	grpc    *gs.GRPCServer
	metrics *metrics.Server
}

// Backends are the external stores the pipeline runs against.
type Backends struct {
	Repos   repomanager.RepositoryManager
	Content blobstore.Store
	Bus     messagebus.Bus
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	b, err := openBackends(ctx, c)
	if err != nil {
		return nil, err
	}
	return NewAppWithBackends(c, logger, b), nil
}

func openBackends(ctx context.Context, c *config.Config) (*Backends, error) {
	rm, err := repomanager.NewPostgresRepositoryManager(c.DatabaseDSN, c.MetadataWriteBatchSize)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := rm.RunMigrations(ctx); err != nil {
		rm.Close()
		return nil, fmt.Errorf("db migrations error: %w", err)
	}

	store, err := blobstore.NewS3Store(ctx, blobstore.S3Config{
		User:     c.S3RootUser,
		Password: c.S3RootPassword,
		Bucket:   c.S3Bucket,
		Region:   c.S3Region,
		Endpoint: c.S3BaseEndpoint,
	})
	if err != nil {
		rm.Close()
		return nil, fmt.Errorf("s3 init error: %w", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		rm.Close()
		return nil, fmt.Errorf("s3 bucket error: %w", err)
	}

	bus, err := messagebus.NewKafkaBus(c.KafkaBrokers, c.KafkaTopic)
	if err != nil {
		rm.Close()
		return nil, fmt.Errorf("message bus init error: %w", err)
	}

	return &Backends{Repos: rm, Content: store, Bus: bus}, nil
}

// NewAppWithBackends wires the pipeline over already opened backends.
func NewAppWithBackends(c *config.Config, logger logging.Logger, b *Backends) *App {
	ctx := context.Background()
	if c.WorkerThreads <= 0 {
		logger.Error(ctx, "worker_threads must be positive, using default",
			"value", c.WorkerThreads, "default", workerpool.DefaultSize)
	}
	pool := workerpool.New(c.WorkerThreads, c.StoreCallTimeout)

	repo := b.Repos.Metadata()
	auth := entitlements.NewGroupAuthorizer(c.AclDomain)
	lc := legal.NewCachedChecker(
		legal.NewStaticSource(c.ValidLegalTags, c.ValidCountries),
		legal.NewCache(c.LegalCacheSize, c.LegalCacheTTL),
	)
	validator := validation.New(c.TenantName, auth, lc, repo, pool, c.MetadataReadBatchSize, logger)

	publisher := services.NewChangePublisher(b.Bus, c.PublishBatchSize, logger)
	writer := services.NewPersistenceService(b.Content, repo, pool, c.MetadataWriteBatchSize, publisher, logger)
	ingestion := services.NewIngestionService(validator, auth, repo, b.Content, writer, pool, c.MetadataReadBatchSize, logger)
	bulk := services.NewBulkUpdateService(auth, lc, repo, writer, publisher, pool, c.MetadataReadBatchSize, logger)
	records := services.NewRecordService(auth, repo, b.Content, publisher, pool, logger)

	logger.Info(ctx, "pipeline ready", "workers", pool.Size(), "tenant", c.TenantName)

	return &App{
		config:  c,
		logger:  logger,
		repos:   b.Repos,
		bus:     b.Bus,
		grpc:    gs.NewGRPCServer(c.EndpointAddrGRPC, logger, c.SecretKey, ingestion, bulk, records),
		metrics: metrics.NewServer(c.MetricsAddr, logger, b.Repos),
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until ctx is done, a signal arrives or a server fails, then
// releases the backends.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.grpc.Run(gctx)
	})
	g.Go(func() error {
		return app.metrics.Run(gctx)
	})

	err := g.Wait()
	if err != nil {
		app.logger.Error(ctx, "server stopped", "error", err)
	}

	if cerr := app.bus.Close(); cerr != nil {
		app.logger.Error(ctx, "closing message bus", "error", cerr)
	}
	if cerr := app.repos.Close(); cerr != nil {
		app.logger.Error(ctx, "closing database", "error", cerr)
	}
	app.logger.Info(ctx, "App stopped")
	return err
}
