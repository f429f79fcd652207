package mlfilter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/nitinkhare/cryptopaper/internal/config"
)

// Registry resolves the Filter to use for each strategy: a LinearModel
// when an artifact file exists for it, PassThrough otherwise.
type Registry struct {
	filters map[config.StrategyName]Filter
	logger  *zap.Logger
}

// artifactFilename maps a strategy to its expected artifact file, e.g.
// "dca.json" under modelDir.
func artifactFilename(name config.StrategyName) string {
	switch name {
	case config.StrategyDCA:
		return "dca.json"
	case config.StrategySwing:
		return "swing.json"
	case config.StrategyChannel:
		return "channel.json"
	default:
		return ""
	}
}

// LoadRegistry loads whatever model artifacts are present under modelDir,
// and falls back to PassThrough for any strategy without one. An empty
// or missing modelDir yields an all-PassThrough registry.
func LoadRegistry(modelDir string, logger *zap.Logger) (*Registry, error) {
	r := &Registry{
		filters: map[config.StrategyName]Filter{
			config.StrategyDCA:     PassThrough{},
			config.StrategySwing:   PassThrough{},
			config.StrategyChannel: PassThrough{},
		},
		logger: logger,
	}
	if modelDir == "" {
		return r, nil
	}

	for _, name := range []config.StrategyName{config.StrategyDCA, config.StrategySwing, config.StrategyChannel} {
		path := filepath.Join(modelDir, artifactFilename(name))
		artifact, err := LoadModelArtifact(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("mlfilter: loading %s: %w", name, err)
		}
		r.filters[name] = NewLinearModel(artifact)
		logger.Info("mlfilter: loaded model artifact", zap.String("strategy", string(name)), zap.String("version", artifact.Version))
	}
	return r, nil
}

// For resolves the Filter to use for a given strategy.
func (r *Registry) For(name config.StrategyName) Filter {
	if f, ok := r.filters[name]; ok {
		return f
	}
	return PassThrough{}
}
