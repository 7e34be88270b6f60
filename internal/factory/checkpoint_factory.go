package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/adapters/checkpoint"
	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/ports"
)

// CheckpointFactory creates checkpoint repositories based on configuration
type CheckpointFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewCheckpointFactory creates a new checkpoint factory
func NewCheckpointFactory(cfg *config.Config, logger *zap.Logger) *CheckpointFactory {
	return &CheckpointFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateCheckpointRepository creates a checkpoint repository based on the configuration
func (f *CheckpointFactory) CreateCheckpointRepository() (ports.CheckpointRepository, error) {
	cc, err := f.cfg.GetCheckpoint()
	if err != nil {
		return nil, err
	}

	switch cc.Type {
	case "memory":
		return checkpoint.NewMemoryStore(f.logger, cc.TTL, cc.CleanupFrequency), nil
	case "sqlite":
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(cc.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return checkpoint.NewSQLiteStore(cc.SQLitePath, f.logger, cc.TTL, cc.CleanupFrequency)
	case "mysql":
		return checkpoint.NewMySQLStore(cc.MySQLDSN, f.logger, cc.TTL, cc.CleanupFrequency)
	default:
		return nil, fmt.Errorf("unsupported checkpoint type: %s", cc.Type)
	}
}
