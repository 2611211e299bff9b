package mocks

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/vocalalchemy/forge/internal/pkg/persistence"
	papi "github.com/vocalalchemy/forge/internal/pkg/pipeline/api"
	"github.com/vocalalchemy/forge/internal/pkg/synthesizer"
	tapi "github.com/vocalalchemy/forge/internal/pkg/trainer/api"
)

// Filer is minio mock
type Filer struct{ mock.Mock }

func (m *Filer) SaveFile(ctx context.Context, name string, r io.Reader, fileSize int64) error {
	args := m.Called(ctx, name, r, fileSize)
	return args.Error(0)
}

func (m *Filer) LoadFile(ctx context.Context, fileName string) (io.ReadSeekCloser, error) {
	args := m.Called(ctx, fileName)
	return To[io.ReadSeekCloser](args.Get(0)), args.Error(1)
}

func (m *Filer) RemovePrefix(ctx context.Context, prefix string) error {
	args := m.Called(ctx, prefix)
	return args.Error(0)
}

// DB is postgres DB mock
type DB struct{ mock.Mock }

func (m *DB) InsertJob(ctx context.Context, job *persistence.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *DB) LoadJob(ctx context.Context, id string) (*persistence.Job, error) {
	args := m.Called(ctx, id)
	return To[*persistence.Job](args.Get(0)), args.Error(1)
}

func (m *DB) ListJobs(ctx context.Context) ([]*persistence.Job, error) {
	args := m.Called(ctx)
	return To[[]*persistence.Job](args.Get(0)), args.Error(1)
}

func (m *DB) UpdateStatus(ctx context.Context, job *persistence.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *DB) UpdateProgress(ctx context.Context, id string, progress int32) error {
	args := m.Called(ctx, id, progress)
	return args.Error(0)
}

func (m *DB) UpdateFileNames(ctx context.Context, id string, fileNames []string) error {
	args := m.Called(ctx, id, fileNames)
	return args.Error(0)
}

func (m *DB) RequestCancel(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *DB) CancelRequested(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *DB) DeleteJob(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *DB) ListSegments(ctx context.Context, jobID string) ([]*persistence.Segment, error) {
	args := m.Called(ctx, jobID)
	return To[[]*persistence.Segment](args.Get(0)), args.Error(1)
}

func (m *DB) ReplaceSegments(ctx context.Context, job *persistence.Job, segments []*persistence.Segment) error {
	args := m.Called(ctx, job, segments)
	return args.Error(0)
}

func (m *DB) UpdateSegment(ctx context.Context, jobID, segmentID, text, language string) error {
	args := m.Called(ctx, jobID, segmentID, text, language)
	return args.Error(0)
}

func (m *DB) BatchUpdateSegments(ctx context.Context, jobID string, patches []*persistence.Segment) error {
	args := m.Called(ctx, jobID, patches)
	return args.Error(0)
}

func (m *DB) DeleteSegment(ctx context.Context, jobID, segmentID string) error {
	args := m.Called(ctx, jobID, segmentID)
	return args.Error(0)
}

func (m *DB) CommitTraining(ctx context.Context, jobID string, override func(*persistence.Params)) (*persistence.Job, bool, error) {
	args := m.Called(ctx, jobID, override)
	return To[*persistence.Job](args.Get(0)), args.Bool(1), args.Error(2)
}

func (m *DB) LoadSegment(ctx context.Context, jobID, segmentID string) (*persistence.Segment, error) {
	args := m.Called(ctx, jobID, segmentID)
	return To[*persistence.Segment](args.Get(0)), args.Error(1)
}

func (m *DB) ResetToLabeling(ctx context.Context, jobID string) (*persistence.Job, error) {
	args := m.Called(ctx, jobID)
	return To[*persistence.Job](args.Get(0)), args.Error(1)
}

func (m *DB) InsertCharacter(ctx context.Context, ch *persistence.Character) error {
	args := m.Called(ctx, ch)
	return args.Error(0)
}

func (m *DB) LoadCharacter(ctx context.Context, id string) (*persistence.Character, error) {
	args := m.Called(ctx, id)
	return To[*persistence.Character](args.Get(0)), args.Error(1)
}

func (m *DB) ListCharacters(ctx context.Context) ([]*persistence.Character, error) {
	args := m.Called(ctx)
	return To[[]*persistence.Character](args.Get(0)), args.Error(1)
}

func (m *DB) ListInterrupted(ctx context.Context) ([]*persistence.Job, error) {
	args := m.Called(ctx)
	return To[[]*persistence.Job](args.Get(0)), args.Error(1)
}

func (m *DB) HasQueuedMessage(ctx context.Context, queue, id string) (bool, error) {
	args := m.Called(ctx, queue, id)
	return args.Bool(0), args.Error(1)
}

func (m *DB) LockEmailTable(ctx context.Context, id, msgType string) error {
	args := m.Called(ctx, id, msgType)
	return args.Error(0)
}

func (m *DB) UnLockEmailTable(ctx context.Context, id, msgType string, value *int) error {
	args := m.Called(ctx, id, msgType, value)
	return args.Error(0)
}

func (m *DB) Live(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Sender is postgres queue mock
type Sender struct{ mock.Mock }

func (m *Sender) SendMessage(ctx context.Context, msg interface{}, queue, msgType string) error {
	args := m.Called(ctx, msg, queue, msgType)
	return args.Error(0)
}

func (m *Sender) SendMessageAt(ctx context.Context, msg interface{}, queue, msgType string, runAt time.Time) error {
	args := m.Called(ctx, msg, queue, msgType, runAt)
	return args.Error(0)
}

// DSP is preprocessing client mock
type DSP struct{ mock.Mock }

func (m *DSP) SeparateVocals(ctx context.Context, ID string, files []string, tick papi.TickFunc) ([]string, error) {
	args := m.Called(ctx, ID, files, tick)
	return To[[]string](args.Get(0)), args.Error(1)
}

func (m *DSP) Denoise(ctx context.Context, ID string, files []string, tick papi.TickFunc) ([]string, error) {
	args := m.Called(ctx, ID, files, tick)
	return To[[]string](args.Get(0)), args.Error(1)
}

func (m *DSP) Slice(ctx context.Context, ID string, files []string, prm persistence.SliceParams, tick papi.TickFunc) ([]papi.ClipData, error) {
	args := m.Called(ctx, ID, files, prm, tick)
	return To[[]papi.ClipData](args.Get(0)), args.Error(1)
}

// Recognizer is transcription client mock
type Recognizer struct{ mock.Mock }

func (m *Recognizer) Transcribe(ctx context.Context, clips []papi.ClipData, language string, tick papi.TickFunc) ([]papi.TranscriptData, error) {
	args := m.Called(ctx, clips, language, tick)
	return To[[]papi.TranscriptData](args.Get(0)), args.Error(1)
}

// Trainer is training engine client mock
type Trainer struct{ mock.Mock }

func (m *Trainer) ExtractFeatures(ctx context.Context, ID string, segments []tapi.SegmentData, tick papi.TickFunc) error {
	args := m.Called(ctx, ID, segments, tick)
	return args.Error(0)
}

func (m *Trainer) TrainAcoustic(ctx context.Context, ID string, cfg tapi.TrainConfig, tick papi.TickFunc) (string, error) {
	args := m.Called(ctx, ID, cfg, tick)
	return args.String(0), args.Error(1)
}

func (m *Trainer) TrainProsody(ctx context.Context, ID string, cfg tapi.TrainConfig, tick papi.TickFunc) (string, error) {
	args := m.Called(ctx, ID, cfg, tick)
	return args.String(0), args.Error(1)
}

// TrainerProvider is consul provider mock
type TrainerProvider struct{ mock.Mock }

func (m *TrainerProvider) Get(srv string, allowNew bool) (tapi.Trainer, string, error) {
	args := m.Called(srv, allowNew)
	return To[tapi.Trainer](args.Get(0)), args.String(1), args.Error(2)
}

// Synthesizer is inference proxy mock
type Synthesizer struct{ mock.Mock }

func (m *Synthesizer) Synthesize(ctx context.Context, in *synthesizer.Input) ([]byte, string, error) {
	args := m.Called(ctx, in)
	return To[[]byte](args.Get(0)), args.String(1), args.Error(2)
}

// To casts a possibly nil mock return value
func To[T interface{}](val interface{}) T {
	if val == nil {
		var res T
		return res
	}
	return val.(T)
}
