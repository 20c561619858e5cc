package app

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/trado/internal/common"
	"github.com/ternarybob/trado/internal/handlers"
	"github.com/ternarybob/trado/internal/interfaces"
	"github.com/ternarybob/trado/internal/services/connectors"
	"github.com/ternarybob/trado/internal/services/events"
	"github.com/ternarybob/trado/internal/services/export"
	"github.com/ternarybob/trado/internal/services/generation"
	"github.com/ternarybob/trado/internal/services/llm"
	"github.com/ternarybob/trado/internal/services/scheduler"
	"github.com/ternarybob/trado/internal/services/templates"
	"github.com/ternarybob/trado/internal/services/tokens"
	"github.com/ternarybob/trado/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager
	EventService   interfaces.EventService

	// Source access
	TokenProvider interfaces.TokenProvider
	Aggregator    *connectors.Aggregator

	// Core services
	LLMService        interfaces.LLMService
	GenerationService interfaces.GenerationService
	TemplateService   interfaces.TemplateService
	ExportService     interfaces.ExportService

	// Background housekeeping
	Reaper *scheduler.Reaper

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	DocumentHandler *handlers.DocumentHandler
	ProposalHandler *handlers.ProposalHandler
	JobHandler      *handlers.JobHandler
	TemplateHandler *handlers.TemplateHandler
	WSHandler       *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	storageManager, err := badger.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.StorageManager = storageManager

	app.EventService = events.NewService(logger)

	// WebSocket handler subscribes to the event bus before any publisher
	// starts, so the first checkpoint of a job is already deliverable.
	app.WSHandler = handlers.NewWebSocketHandler(app.EventService, logger)

	llmService, err := llm.NewLLMService(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AI service: %w", err)
	}
	app.LLMService = llmService

	tokenProvider, err := tokens.NewProvider(&cfg.Tokens, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token provider: %w", err)
	}
	app.TokenProvider = tokenProvider

	calendar, err := connectors.NewCalendarConnector(&cfg.Connectors.Calendar, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize calendar connector: %w", err)
	}
	messaging, err := connectors.NewMessagingConnector(&cfg.Connectors.Messaging, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize messaging connector: %w", err)
	}
	spreadsheet, err := connectors.NewSpreadsheetConnector(&cfg.Connectors.Spreadsheet, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize spreadsheet connector: %w", err)
	}
	app.Aggregator = connectors.NewAggregator(tokenProvider, logger, calendar, messaging, spreadsheet)

	generationService, err := generation.NewService(cfg, logger, app.StorageManager, app.Aggregator, app.LLMService, app.EventService)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generation service: %w", err)
	}
	app.GenerationService = generationService

	templateService, err := templates.NewService(app.StorageManager.TemplateStorage(), app.EventService, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize template service: %w", err)
	}
	app.TemplateService = templateService

	exportService, err := export.NewService(app.StorageManager, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize export service: %w", err)
	}
	app.ExportService = exportService

	reaper, err := scheduler.NewReaper(cfg, app.StorageManager, app.EventService, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize job reaper: %w", err)
	}
	app.Reaper = reaper

	app.APIHandler = handlers.NewAPIHandler()
	app.DocumentHandler = handlers.NewDocumentHandler(app.StorageManager, app.GenerationService, app.ExportService, logger)
	app.ProposalHandler = handlers.NewProposalHandler(app.StorageManager.ProposalStorage(), logger)
	app.JobHandler = handlers.NewJobHandler(app.StorageManager.JobStorage(), logger)
	app.TemplateHandler = handlers.NewTemplateHandler(app.TemplateService, logger)

	logger.Info().Msg("Application initialized")

	return app, nil
}

// Start launches background services
func (a *App) Start() error {
	if err := a.Reaper.Start(); err != nil {
		return fmt.Errorf("failed to start job reaper: %w", err)
	}
	return nil
}

// Close shuts down background services and releases resources
func (a *App) Close() error {
	if a.Reaper != nil {
		a.Reaper.Stop()
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
	}

	a.Logger.Info().Msg("Application stopped")
	return nil
}
