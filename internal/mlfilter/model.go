package mlfilter

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/nitinkhare/cryptopaper/internal/config"
	"github.com/nitinkhare/cryptopaper/internal/features"
	"github.com/nitinkhare/cryptopaper/internal/strategy"
)

// ModelArtifact is the on-disk shape of a trained model: a logistic
// regression over the named features produced by Features.ToMap, plus
// the setup's own SetupData values. One artifact file per strategy.
type ModelArtifact struct {
	Strategy  config.StrategyName `json:"strategy"`
	Version   string              `json:"version"`
	Weights   map[string]float64  `json:"weights"`
	Intercept float64             `json:"intercept"`
}

// LoadModelArtifact reads and parses a model artifact from disk.
func LoadModelArtifact(path string) (*ModelArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mlfilter: read artifact %s: %w", path, err)
	}
	var artifact ModelArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("mlfilter: parse artifact %s: %w", path, err)
	}
	if len(artifact.Weights) == 0 {
		return nil, fmt.Errorf("mlfilter: artifact %s has no weights", path)
	}
	return &artifact, nil
}

// LinearModel scores a Setup with a logistic-regression artifact loaded
// once at construction. Deterministic and side-effect free thereafter.
type LinearModel struct {
	artifact *ModelArtifact
}

// NewLinearModel wraps an already-loaded artifact.
func NewLinearModel(artifact *ModelArtifact) *LinearModel {
	return &LinearModel{artifact: artifact}
}

func (m *LinearModel) Score(setup *strategy.Setup, feats features.Features, exits config.ExitParams) (Result, error) {
	inputs := feats.ToMap()
	for k, v := range setup.SetupData {
		inputs[k] = v
	}

	z := m.artifact.Intercept
	for name, weight := range m.artifact.Weights {
		if v, ok := inputs[name]; ok {
			z += weight * v
		}
	}
	confidence := 1 / (1 + math.Exp(-z))

	// Position sizing scales directly with confidence across its full
	// range; the stop-loss and hold-window stay at the tier default so a
	// confident model cannot widen the hard risk floor.
	takeProfitScale := 0.8 + 0.4*confidence
	return Result{
		Confidence:             confidence,
		PredictedTakeProfit:    exits.TakeProfit * takeProfitScale,
		PredictedStopLoss:      exits.StopLoss,
		PredictedHoldHours:     exits.HoldHours,
		PositionSizeMultiplier: clampMultiplier(0.5 + confidence),
	}, nil
}
