package mediator

import (
	"context"
	"errors"

	"stablebatch/config"
	"stablebatch/internal/clients/stable"
	"stablebatch/internal/clients/uploadcare"
	"stablebatch/internal/metrics"
	"stablebatch/internal/services"
	"stablebatch/internal/store"
	"stablebatch/internal/uploads"
	"stablebatch/types"
)

type App struct {
	api        *services.Api
	batch      *services.Batch
	reconciler *services.Reconciler
	classifier *services.Classifier
	// settings
	Config config.Config
}

func NewApp(config config.Config) (*App, error) {
	if config.Stable.ApiKey == "" {
		return nil, errors.New("error creating newapp: stable.api_key is not set")
	}

	m := metrics.New()

	stableClient := stable.NewClient(config.Stable, config.Breaker)
	uploader := uploadcare.NewClient(config.Upload)

	results := store.NewResultLog(config.Batch.ResultsPath())
	pending := store.NewPendingQueue(config.Batch.PendingPath())
	meta := store.NewMetaStore(config.Batch.OutputDir)

	resolver := uploads.NewResolver(uploads.NewRecord(config.Upload.RecordPath), uploader, m)
	dispatcher := services.NewDispatcher(stableClient, config.Stable.TemplatesDir, stableClient.ApiKey())
	downloader := services.NewDownloader(config.Batch, m)
	classifier := services.NewClassifier(results, pending, meta, downloader, m)

	batch := services.NewBatch(resolver, dispatcher, classifier, config.Batch.Delay())
	reconciler := services.NewReconciler(stableClient, pending, classifier, config.Batch.Delay())
	api := services.NewApi(config.Api, batch, reconciler, classifier, pending, m)

	return &App{
		api:        api,
		batch:      batch,
		reconciler: reconciler,
		classifier: classifier,
		Config:     config,
	}, nil
}

func (a *App) Run(ctx context.Context, optionsPath string) (types.BatchSummary, error) {
	return a.batch.RunFile(ctx, optionsPath)
}

func (a *App) Fetch(ctx context.Context) (types.ReconcileSummary, error) {
	return a.reconciler.Reconcile(ctx)
}

func (a *App) Sync(ctx context.Context) (types.SyncSummary, error) {
	return a.classifier.Resync(ctx)
}

// Serve runs the control API until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- a.api.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return a.Shutdown()
	}
}

func (a *App) Shutdown() error {
	if a.api != nil {
		return a.api.Shutdown()
	}
	return nil
}
