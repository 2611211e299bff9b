package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/vgarvardt/gue/v5"

	"github.com/vocalalchemy/forge/internal/pkg/messages"
	"github.com/vocalalchemy/forge/internal/pkg/persistence"
	papi "github.com/vocalalchemy/forge/internal/pkg/pipeline/api"
	"github.com/vocalalchemy/forge/internal/pkg/status"
	tapi "github.com/vocalalchemy/forge/internal/pkg/trainer/api"
	"github.com/vocalalchemy/forge/internal/pkg/utils"
	"github.com/vocalalchemy/forge/internal/pkg/utils/handler"
)

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(ctx context.Context, msg interface{}, queue, msgType string) error
	SendMessageAt(ctx context.Context, msg interface{}, queue, msgType string, runAt time.Time) error
}

// DB provides job persistence functionality
type DB interface {
	LoadJob(ctx context.Context, id string) (*persistence.Job, error)
	UpdateStatus(ctx context.Context, job *persistence.Job) error
	UpdateProgress(ctx context.Context, id string, progress int32) error
	ReplaceSegments(ctx context.Context, job *persistence.Job, segments []*persistence.Segment) error
	ListSegments(ctx context.Context, jobID string) ([]*persistence.Segment, error)
	CancelRequested(ctx context.Context, id string) (bool, error)
	InsertCharacter(ctx context.Context, ch *persistence.Character) error
	ListInterrupted(ctx context.Context) ([]*persistence.Job, error)
	HasQueuedMessage(ctx context.Context, queue, id string) (bool, error)
}

// Filer removes stage output from the object store
type Filer interface {
	RemovePrefix(ctx context.Context, prefix string) error
}

// DSP provides audio preprocessing
type DSP interface {
	SeparateVocals(ctx context.Context, ID string, files []string, tick papi.TickFunc) ([]string, error)
	Denoise(ctx context.Context, ID string, files []string, tick papi.TickFunc) ([]string, error)
	Slice(ctx context.Context, ID string, files []string, prm persistence.SliceParams, tick papi.TickFunc) ([]papi.ClipData, error)
}

// Recognizer provides transcription of sliced clips
type Recognizer interface {
	Transcribe(ctx context.Context, clips []papi.ClipData, language string, tick papi.TickFunc) ([]papi.TranscriptData, error)
}

// TrainerProvider returns a training engine instance
type TrainerProvider interface {
	Get(srv string, allowNew bool) (tapi.Trainer, string, error)
}

// ServiceData keeps data required for service work
type ServiceData struct {
	GueClient       *gue.Client
	WorkerCount     int
	MsgSender       MsgSender
	DB              DB
	Filer           Filer
	DSP             DSP
	Recognizer      Recognizer
	TrainerProvider TrainerProvider
	Testing         bool
}

var cancelPollInterval = time.Second * 3

// StartWorkerService starts the pipeline worker pool. The pool size is the
// concurrency cap - a job in labeling holds no worker slot, its handler has
// already returned. Returns channel closed when all workers are finished
func StartWorkerService(ctx context.Context, data *ServiceData) (chan struct{}, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	goapp.Log.Info().Int("workers", data.WorkerCount).Msg("Starting listen for messages")
	if data.Testing {
		goapp.Log.Warn().Msg("SERVICE IN TEST MODE")
	}

	wm := gue.WorkMap{
		messages.MsgPreprocess: handler.Create(data, handlePreprocess, handler.DefaultOpts[messages.JobMessage]().
			WithFailure(makeFailureHandler(data)).WithTimeout(time.Minute*120).
			WithBackoff(handler.DefaultBackoffOrTest(data.Testing))),
		messages.MsgTrain: handler.Create(data, handleTrain, handler.DefaultOpts[messages.JobMessage]().
			WithFailure(makeFailureHandler(data)).WithTimeout(time.Minute*240).
			WithBackoff(handler.DefaultBackoffOrTest(data.Testing))),
		messages.MsgFail: handler.Create(data, handleFailure, handler.DefaultOpts[messages.JobMessage]().
			WithBackoff(handler.DefaultBackoffOrTest(data.Testing))),
	}

	pool, err := gue.NewWorkerPool(
		data.GueClient, wm, data.WorkerCount,
		gue.WithPoolQueue(messages.Work),
		gue.WithPoolLogger(utils.NewGueLoggerAdapter()),
		gue.WithPoolPollInterval(500*time.Millisecond),
		gue.WithPoolPollStrategy(gue.RunAtPollStrategy),
		gue.WithPoolID("forge-worker"),
	)
	if err != nil {
		return nil, fmt.Errorf("could not build gue workers pool: %w", err)
	}
	res := make(chan struct{}, 1)
	go func() {
		goapp.Log.Info().Msg("Starting workers")
		if err := pool.Run(ctx); err != nil {
			goapp.Log.Error().Err(err).Msg("pool error")
		}
		goapp.Log.Info().Msg("Pool workers finished")
		res <- struct{}{}
	}()
	return res, nil
}

// ResumeInterrupted re-enqueues jobs left in a processing state by a crashed
// worker. The message keeps the job's original start time as runAt, so
// resumed jobs overtake freshly created ones in the FIFO queue
func ResumeInterrupted(ctx context.Context, data *ServiceData) error {
	jobs, err := data.DB.ListInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("can't list interrupted jobs: %w", err)
	}
	for _, job := range jobs {
		queued, err := data.DB.HasQueuedMessage(ctx, messages.Work, job.ID)
		if err != nil {
			return fmt.Errorf("can't check queue: %w", err)
		}
		if queued {
			goapp.Log.Info().Str("ID", job.ID).Msg("message survived, skip resume")
			continue
		}
		msgType := messages.MsgPreprocess
		if status.From(job.Status).Training() {
			msgType = messages.MsgTrain
		}
		runAt := job.Created
		if job.Started.Valid {
			runAt = job.Started.Time
		}
		if err := data.MsgSender.SendMessageAt(ctx, &messages.JobMessage{ID: job.ID},
			messages.Work, msgType, runAt); err != nil {
			return fmt.Errorf("can't send msg: %w", err)
		}
		goapp.Log.Info().Str("ID", job.ID).Str("status", job.Status).Msg("resumed")
	}
	return nil
}

func handlePreprocess(ctx context.Context, m *messages.JobMessage, data *ServiceData) error {
	goapp.Log.Info().Str("ID", m.ID).Msg("handling preprocess")
	job, err := data.DB.LoadJob(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("can't load job: %w", err)
	}
	st := status.From(job.Status)
	if st.Terminal() || st == status.Labeling || st.Training() {
		goapp.Log.Info().Str("ID", m.ID).Str("status", job.Status).Msg("nothing to do")
		return nil
	}
	if st == status.Pending || st == status.Uploading {
		if err := sendInform(ctx, data, m.ID, messages.InformStarted); err != nil {
			return err
		}
		job.Started = utils.ToSQLTime(time.Now())
	}

	ctx, stop, cancelled := watchCancel(ctx, data, job.ID)
	defer stop()
	prm := job.Params
	if prm == nil {
		prm = persistence.DefaultParams()
	}
	if st == status.Transcribing && prm.AutoSlice {
		// the clip list lives only in handler memory, a resumed transcription
		// has none - step back and re-run slicing, it overwrites its output
		job.Status = status.Slicing.String()
	}

	// input prefix of the next stage depends only on the flags, so a
	// resumed handler derives it without re-running finished stages
	input := utils.RawPrefix(job.ID)
	err = runStage(ctx, data, job, status.SeparatingVocals, !prm.RemoveBGM, func(ctx context.Context, tick papi.TickFunc) error {
		_, err := data.DSP.SeparateVocals(ctx, job.ID, []string{input}, tick)
		return err
	})
	if err != nil {
		return finishOnErr(ctx, data, job, err, cancelled)
	}
	if prm.RemoveBGM {
		input = utils.VocalsPrefix(job.ID)
	}
	err = runStage(ctx, data, job, status.Denoising, !prm.Denoise, func(ctx context.Context, tick papi.TickFunc) error {
		_, err := data.DSP.Denoise(ctx, job.ID, []string{input}, tick)
		return err
	})
	if err != nil {
		return finishOnErr(ctx, data, job, err, cancelled)
	}
	if prm.Denoise {
		input = utils.DenoisedPrefix(job.ID)
	}

	var clips []papi.ClipData
	err = runStage(ctx, data, job, status.Slicing, !prm.AutoSlice, func(ctx context.Context, tick papi.TickFunc) error {
		var err error
		clips, err = data.DSP.Slice(ctx, job.ID, []string{input}, prm.Slice, tick)
		return err
	})
	if err != nil {
		return finishOnErr(ctx, data, job, err, cancelled)
	}
	if !prm.AutoSlice {
		// whole files become clips, same base names under the last prefix
		for _, f := range job.FileNames {
			clips = append(clips, papi.ClipData{File: input + f})
		}
	}

	var transcripts []papi.TranscriptData
	err = runStage(ctx, data, job, status.Transcribing, !prm.AutoTranscribe, func(ctx context.Context, tick papi.TickFunc) error {
		var err error
		transcripts, err = data.Recognizer.Transcribe(ctx, clips, job.Language, tick)
		return err
	})
	if err != nil {
		return finishOnErr(ctx, data, job, err, cancelled)
	}
	if !prm.AutoTranscribe {
		// empty transcripts, the user fills them during labeling
		for _, c := range clips {
			transcripts = append(transcripts, papi.TranscriptData{File: c.File, DurationSecs: c.DurationSecs})
		}
	}

	segments := make([]*persistence.Segment, 0, len(transcripts))
	now := time.Now()
	for _, t := range transcripts {
		lang := t.Language
		if lang == "" {
			lang = job.Language
		}
		segments = append(segments, &persistence.Segment{ID: uuid.NewString(), JobID: job.ID,
			File: t.File, Text: t.Text, Language: lang, DurationSecs: t.DurationSecs, Created: now})
	}
	job.Status = status.Labeling.String()
	job.Progress = status.Progress(status.Labeling, 1)
	job.CurrentStep = utils.ToSQLStr("")
	if err := data.DB.ReplaceSegments(ctx, job, segments); err != nil {
		return fmt.Errorf("can't save segments: %w", err)
	}
	if err := sendInform(ctx, data, m.ID, messages.InformLabeling); err != nil {
		return err
	}
	goapp.Log.Info().Str("ID", m.ID).Int("segments", len(segments)).Msg("preprocess completed, waiting for labeling")
	return nil
}

func handleTrain(ctx context.Context, m *messages.JobMessage, data *ServiceData) error {
	goapp.Log.Info().Str("ID", m.ID).Msg("handling train")
	job, err := data.DB.LoadJob(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("can't load job: %w", err)
	}
	st := status.From(job.Status)
	if st.Terminal() || !st.Training() {
		goapp.Log.Info().Str("ID", m.ID).Str("status", job.Status).Msg("nothing to do")
		return nil
	}

	ctx, stop, cancelled := watchCancel(ctx, data, job.ID)
	defer stop()
	trainer, srv, err := data.TrainerProvider.Get(utils.FromSQLStr(job.Trainer), !job.Trainer.Valid)
	if err != nil {
		return papi.NewErrTransient(fmt.Errorf("can't get trainer: %w", err))
	}
	if trainer == nil {
		return papi.NewErrTransient(fmt.Errorf("no training engine available"))
	}
	if utils.FromSQLStr(job.Trainer) != srv {
		job.Trainer = utils.ToSQLStr(srv)
		if err := data.DB.UpdateStatus(ctx, job); err != nil {
			return fmt.Errorf("can't save trainer: %w", err)
		}
	}
	prm := job.Params
	if prm == nil {
		prm = persistence.DefaultParams()
	}

	if st == status.Preparing {
		err = runStage(ctx, data, job, status.Preparing, false, func(ctx context.Context, tick papi.TickFunc) error {
			segments, err := data.DB.ListSegments(ctx, job.ID)
			if err != nil {
				return fmt.Errorf("can't load segments: %w", err)
			}
			in := make([]tapi.SegmentData, 0, len(segments))
			for _, s := range segments {
				in = append(in, tapi.SegmentData{File: s.File, Text: s.Text, Language: s.Language})
			}
			return trainer.ExtractFeatures(ctx, job.ID, in, tick)
		})
		if err != nil {
			return finishOnErr(ctx, data, job, err, cancelled)
		}
		st = status.TrainingAcoustic
	}

	if st == status.TrainingAcoustic {
		err = runStage(ctx, data, job, status.TrainingAcoustic, false, func(ctx context.Context, tick papi.TickFunc) error {
			model, err := trainer.TrainAcoustic(ctx, job.ID, trainConfig(prm.Acoustic), tick)
			if err == nil {
				job.AcousticModel = utils.ToSQLStr(model)
			}
			return err
		})
		if err != nil {
			return finishOnErr(ctx, data, job, err, cancelled)
		}
	}

	err = runStage(ctx, data, job, status.TrainingProsody, false, func(ctx context.Context, tick papi.TickFunc) error {
		model, err := trainer.TrainProsody(ctx, job.ID, trainConfig(prm.Prosody), tick)
		if err == nil {
			job.ProsodyModel = utils.ToSQLStr(model)
		}
		return err
	})
	if err != nil {
		return finishOnErr(ctx, data, job, err, cancelled)
	}

	job.Status = status.Completed.String()
	job.Progress = status.Progress(status.Completed, 1)
	job.CurrentStep = utils.ToSQLStr("")
	job.Completed = utils.ToSQLTime(time.Now())
	if err := data.DB.UpdateStatus(ctx, job); err != nil {
		return fmt.Errorf("can't update job: %w", err)
	}
	if err := data.DB.InsertCharacter(ctx, &persistence.Character{ID: job.ID, Name: job.Name,
		Language: job.Language, AcousticModel: utils.FromSQLStr(job.AcousticModel),
		ProsodyModel: utils.FromSQLStr(job.ProsodyModel), Created: time.Now()}); err != nil {
		return fmt.Errorf("can't insert character: %w", err)
	}
	cleanIntermediate(ctx, data, job.ID)
	if err := sendInform(ctx, data, m.ID, messages.InformFinished); err != nil {
		return err
	}
	goapp.Log.Info().Str("ID", m.ID).Msg("training completed")
	return nil
}

func handleFailure(ctx context.Context, m *messages.JobMessage, data *ServiceData) error {
	goapp.Log.Info().Str("ID", m.ID).Msg("handling failure")
	job, err := data.DB.LoadJob(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("can't load job: %w", err)
	}
	if status.From(job.Status).Terminal() {
		goapp.Log.Info().Str("ID", m.ID).Str("status", job.Status).Msg("already terminal - ignore")
		return nil
	}
	job.Status = status.Failed.String()
	job.Error = utils.ToSQLStr(m.Error)
	job.ErrorCode = utils.ToSQLStr(status.ECStageFailed.String())
	if err := data.DB.UpdateStatus(ctx, job); err != nil {
		return fmt.Errorf("can't update job: %w", err)
	}
	return sendInform(ctx, data, m.ID, messages.InformFailed)
}

// runStage drives one pipeline stage: persist the entry transition, run the
// work with progress ticks, done. A stage the job is already past is skipped
// silently so a resumed handler fast-forwards to where it crashed
func runStage(ctx context.Context, data *ServiceData, job *persistence.Job, st status.Status,
	skip bool, f func(ctx context.Context, tick papi.TickFunc) error) error {
	cur := status.From(job.Status)
	if cur > st {
		goapp.Log.Info().Str("ID", job.ID).Str("stage", st.String()).Msg("already done - skip")
		return nil
	}
	job.Status = st.String()
	job.CurrentStep = utils.ToSQLStr(st.String())
	if skip {
		// skipped stages jump to their upper bound so progress stays monotonic
		job.Progress = status.Progress(st, 1)
		return data.DB.UpdateStatus(ctx, job)
	}
	job.Progress = status.Progress(st, 0)
	if err := data.DB.UpdateStatus(ctx, job); err != nil {
		return err
	}
	tick := func(t papi.Tick) {
		if err := data.DB.UpdateProgress(ctx, job.ID, status.Progress(st, t.Fraction)); err != nil {
			goapp.Log.Warn().Err(err).Str("ID", job.ID).Msg("can't save progress")
		}
	}
	op := func() error {
		err := f(ctx, tick)
		if err != nil && !papi.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx))
	if err != nil {
		return fmt.Errorf("stage %s: %w", st.String(), err)
	}
	job.Progress = status.Progress(st, 1)
	return data.DB.UpdateProgress(ctx, job.ID, job.Progress)
}

// finishOnErr sorts a stage error out: a user cancellation marks the job
// cancelled and succeeds, everything else goes to the gue failure handler
func finishOnErr(ctx context.Context, data *ServiceData, job *persistence.Job, err error, cancelled func() bool) error {
	if cancelled() {
		// the watcher killed the stage context, not an error
		nCtx, cf := context.WithTimeout(context.Background(), time.Second*10)
		defer cf()
		job.Status = status.Cancelled.String()
		job.CurrentStep = utils.ToSQLStr("")
		if err := data.DB.UpdateStatus(nCtx, job); err != nil {
			return fmt.Errorf("can't mark cancelled: %w", err)
		}
		cleanIntermediate(nCtx, data, job.ID)
		goapp.Log.Info().Str("ID", job.ID).Msg("cancelled")
		return nil
	}
	return err
}

// watchCancel polls the job's cancellation flag and kills the stage context
// when it is raised. stop ends the watcher, cancelled tells if the flag fired
func watchCancel(ctx context.Context, data *ServiceData, id string) (resCtx context.Context, stop func(), cancelled func() bool) {
	resCtx, cf := context.WithCancel(ctx)
	var flag atomic.Bool
	go func() {
		defer cf()
		ticker := time.NewTicker(cancelPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-resCtx.Done():
				return
			case <-ticker.C:
			}
			is, err := data.DB.CancelRequested(resCtx, id)
			if err != nil {
				goapp.Log.Warn().Err(err).Str("ID", id).Msg("can't check cancel flag")
				continue
			}
			if is {
				goapp.Log.Info().Str("ID", id).Msg("cancel requested")
				flag.Store(true)
				return
			}
		}
	}()
	return resCtx, cf, flag.Load
}

func cleanIntermediate(ctx context.Context, data *ServiceData, id string) {
	// clips stay - they are played back in the UI and serve as synthesis reference
	for _, prefix := range []string{utils.VocalsPrefix(id), utils.DenoisedPrefix(id)} {
		if err := data.Filer.RemovePrefix(ctx, prefix); err != nil {
			goapp.Log.Warn().Err(err).Str("prefix", prefix).Msg("can't clean")
		}
	}
}

func sendInform(ctx context.Context, data *ServiceData, id, informType string) error {
	err := data.MsgSender.SendMessage(ctx, &messages.InformMessage{ID: id,
		Type: informType, At: time.Now()}, messages.Inform, messages.MsgInform)
	if err != nil {
		return fmt.Errorf("can't send msg: %w", err)
	}
	return nil
}

func trainConfig(p persistence.TrainParams) tapi.TrainConfig {
	return tapi.TrainConfig{Epochs: p.Epochs, BatchSize: p.BatchSize, SaveEvery: p.SaveEvery,
		TextLRWeight: p.TextLRWeight, DPO: p.DPO}
}

// makeFailureHandler routes exhausted or fatal stage errors to the fail
// queue. Transient errors keep retrying with backoff for a while
func makeFailureHandler(data *ServiceData) func(context.Context, *messages.JobMessage, error, *gue.Job) (bool, time.Duration, error) {
	return func(ctx context.Context, m *messages.JobMessage, err error, j *gue.Job) (bool, time.Duration, error) {
		if papi.IsTransient(err) && j.ErrorCount < 3 {
			return true, 0, nil
		}
		sendErr := data.MsgSender.SendMessage(ctx, &messages.JobMessage{ID: m.ID, Error: err.Error()},
			messages.Work, messages.MsgFail)
		if sendErr != nil {
			return true, 0, fmt.Errorf("can't send fail msg: %w", sendErr)
		}
		return false, 0, nil
	}
}

func validate(data *ServiceData) error {
	if data.GueClient == nil {
		return fmt.Errorf("no gue client")
	}
	if data.WorkerCount < 1 {
		return fmt.Errorf("no worker count provided")
	}
	if data.MsgSender == nil {
		return fmt.Errorf("no msg sender")
	}
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	if data.Filer == nil {
		return fmt.Errorf("no Filer")
	}
	if data.DSP == nil {
		return fmt.Errorf("no DSP")
	}
	if data.Recognizer == nil {
		return fmt.Errorf("no Recognizer")
	}
	if data.TrainerProvider == nil {
		return fmt.Errorf("no TrainerProvider")
	}
	return nil
}
