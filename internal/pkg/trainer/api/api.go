package api

import (
	"context"

	papi "github.com/vocalalchemy/forge/internal/pkg/pipeline/api"
)

// SegmentData is one labeled clip handed to the training engine
type SegmentData struct {
	File     string `json:"file"`
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// TrainConfig are hyperparameters for one training run
type TrainConfig struct {
	Epochs       int     `json:"epochs"`
	BatchSize    int     `json:"batchSize"`
	SaveEvery    int     `json:"saveEvery"`
	TextLRWeight float64 `json:"textLrWeight,omitempty"`
	DPO          bool    `json:"dpo,omitempty"`
}

// Trainer runs dataset preparation and model training on one engine
// instance. Training for a job must stay on the same instance -
// extracted features live on its disk
type Trainer interface {
	ExtractFeatures(ctx context.Context, ID string, segments []SegmentData, tick papi.TickFunc) error
	TrainAcoustic(ctx context.Context, ID string, cfg TrainConfig, tick papi.TickFunc) (string, error)
	TrainProsody(ctx context.Context, ID string, cfg TrainConfig, tick papi.TickFunc) (string, error)
}
