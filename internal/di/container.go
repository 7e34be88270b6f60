package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/adapters/extract"
	"github.com/mikey/mail-triage/internal/adapters/httpapi"
	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/factory"
	"github.com/mikey/mail-triage/internal/logging"
	"github.com/mikey/mail-triage/internal/metrics"
	"github.com/mikey/mail-triage/internal/ports"
	"github.com/mikey/mail-triage/internal/triage"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := container.Provide(factory.NewCheckpointFactory); err != nil {
		return nil, err
	}

	if err := provideTriage(container); err != nil {
		return nil, err
	}

	// Register admin HTTP API, nil when disabled
	if err := container.Provide(func(
		cfg *config.Config,
		service *core.TriageService,
		engine *triage.Engine,
		logger *zap.Logger,
	) *httpapi.Server {
		hc := cfg.GetHTTP()
		if !hc.Enabled {
			return nil
		}
		return httpapi.New(hc.ListenAddress, service, engine, logger)
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// provideTriage registers everything from the engine up to the email filter
func provideTriage(container *dig.Container) error {
	// Register metrics recorder
	if err := container.Provide(metrics.NewRecorder); err != nil {
		return err
	}
	if err := container.Provide(func(r *metrics.Recorder) core.ClassificationObserver { return r }); err != nil {
		return err
	}

	// Register factories
	if err := container.Provide(factory.NewEngineFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewExtractorFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewFilterFactory); err != nil {
		return err
	}

	// Register engine
	if err := container.Provide(func(f *factory.EngineFactory) (*triage.Engine, error) {
		return f.CreateEngine()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(e *triage.Engine) core.Classifier { return e }); err != nil {
		return err
	}

	// Register feature extractor
	if err := container.Provide(func(f *factory.ExtractorFactory) *extract.Extractor {
		return f.CreateExtractor()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(e *extract.Extractor) core.FeatureExtractor { return e }); err != nil {
		return err
	}

	// Register triage service
	if err := container.Provide(core.NewTriageService); err != nil {
		return err
	}

	// Register email filter
	return container.Provide(func(f *factory.FilterFactory) (ports.EmailFilter, error) {
		return f.CreateEmailFilter()
	})
}
