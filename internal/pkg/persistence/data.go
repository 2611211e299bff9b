package persistence

import (
	"database/sql"
	"time"
)

type (

	// Job - voice character training job table
	Job struct {
		ID              string
		Name            string
		Language        string
		Email           sql.NullString
		Status          string
		Progress        int32
		CurrentStep     sql.NullString
		Params          *Params
		FileNames       []string
		Error           sql.NullString
		ErrorCode       sql.NullString
		CancelRequested bool
		AcousticModel   sql.NullString
		ProsodyModel    sql.NullString
		Trainer         sql.NullString
		Created         time.Time
		Started         sql.NullTime
		Completed       sql.NullTime
		Version         int32
	}

	// Segment - one labeled audio clip of a job, the atomic unit of training data
	Segment struct {
		ID           string
		JobID        string
		File         string
		Text         string
		Language     string
		DurationSecs float64
		Created      time.Time
		Updated      sql.NullTime
	}

	// Character - ready to use trained voice, created from a completed job
	Character struct {
		ID            string
		Name          string
		Language      string
		AcousticModel string
		ProsodyModel  string
		Created       time.Time
	}
)

// Params is the job configuration blob, stored as jsonb
type Params struct {
	RemoveBGM      bool `json:"removeBgm"`
	Denoise        bool `json:"denoise"`
	AutoSlice      bool `json:"autoSlice"`
	AutoTranscribe bool `json:"autoTranscribe"`

	Slice    SliceParams `json:"slice"`
	Acoustic TrainParams `json:"acoustic"`
	Prosody  TrainParams `json:"prosody"`
}

// SliceParams are silence detection thresholds passed to the slicer
type SliceParams struct {
	ThresholdDB      int `json:"thresholdDb"`
	MinLengthMs      int `json:"minLengthMs"`
	MinIntervalMs    int `json:"minIntervalMs"`
	HopSizeMs        int `json:"hopSizeMs"`
	MaxSilenceKeptMs int `json:"maxSilenceKeptMs"`
}

// TrainParams are hyperparameters for one of the two trained models
type TrainParams struct {
	Epochs       int     `json:"epochs"`
	BatchSize    int     `json:"batchSize"`
	SaveEvery    int     `json:"saveEvery"`
	TextLRWeight float64 `json:"textLrWeight,omitempty"`
	DPO          bool    `json:"dpo,omitempty"`
}

// DefaultParams returns the engine's recommended configuration
func DefaultParams() *Params {
	return &Params{
		RemoveBGM:      true,
		Denoise:        true,
		AutoSlice:      true,
		AutoTranscribe: true,
		Slice: SliceParams{ThresholdDB: -40, MinLengthMs: 4000, MinIntervalMs: 300,
			HopSizeMs: 10, MaxSilenceKeptMs: 500},
		Acoustic: TrainParams{Epochs: 8, BatchSize: 2, SaveEvery: 4, TextLRWeight: 0.4},
		Prosody:  TrainParams{Epochs: 10, BatchSize: 2, SaveEvery: 5},
	}
}
