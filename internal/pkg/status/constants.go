package status

// Status represents a job's position in the training pipeline
type Status int

const (
	// Pending - created, waiting for audio or for a worker slot
	Pending Status = iota + 1
	// Uploading - audio files are being received
	Uploading
	// SeparatingVocals step
	SeparatingVocals
	// Denoising step
	Denoising
	// Slicing step
	Slicing
	// Transcribing step
	Transcribing
	// Labeling - pipeline paused, user reviews transcripts
	Labeling
	// Preparing - feature extraction for training
	Preparing
	// TrainingAcoustic model step
	TrainingAcoustic
	// TrainingProsody model step
	TrainingProsody
	// Completed - final step
	Completed
	// Failed - terminal error state
	Failed
	// Cancelled by user
	Cancelled
)

var (
	statusName = map[Status]string{Pending: "PENDING", Uploading: "UPLOADING",
		SeparatingVocals: "SEPARATING_VOCALS", Denoising: "DENOISING", Slicing: "SLICING",
		Transcribing: "TRANSCRIBING", Labeling: "LABELING", Preparing: "PREPARING",
		TrainingAcoustic: "TRAINING_ACOUSTIC", TrainingProsody: "TRAINING_PROSODY",
		Completed: "COMPLETED", Failed: "FAILED", Cancelled: "CANCELLED"}
	nameStatus = map[string]Status{}
)

func init() {
	for k, v := range statusName {
		nameStatus[v] = k
	}
}

func (st Status) String() string {
	return statusName[st]
}

// From returns status obj from string
func From(st string) Status {
	return nameStatus[st]
}

// Terminal - no automatic progression after these
func (st Status) Terminal() bool {
	return st == Completed || st == Failed || st == Cancelled
}

// Preprocessing - states driven by the preprocess worker phase
func (st Status) Preprocessing() bool {
	return st == Uploading || (st >= SeparatingVocals && st <= Transcribing)
}

// Training - states driven by the training worker phase
func (st Status) Training() bool {
	return st == Preparing || st == TrainingAcoustic || st == TrainingProsody
}

// Active - a worker currently drives the job
func (st Status) Active() bool {
	return (st >= SeparatingVocals && st <= Transcribing) || st.Training()
}

// progress weights per stage, a fixed policy:
// preprocessing fills 0-50, feature extraction 50-70, training 70-100.
// Skipped stages jump to their upper bound so progress stays comparable
// and monotonic for any configuration.
var progressRange = map[Status][2]int32{
	Pending:          {0, 0},
	Uploading:        {0, 0},
	SeparatingVocals: {0, 15},
	Denoising:        {15, 25},
	Slicing:          {25, 35},
	Transcribing:     {35, 50},
	Labeling:         {50, 50},
	Preparing:        {50, 70},
	TrainingAcoustic: {70, 85},
	TrainingProsody:  {85, 100},
	Completed:        {100, 100},
}

// Progress maps (stage, within-stage fraction) to a global percentage
func Progress(st Status, frac float64) int32 {
	r, ok := progressRange[st]
	if !ok {
		return 0
	}
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return r[0] + int32(frac*float64(r[1]-r[0]))
}

// ErrCode indicates failure reason
type ErrCode int

const (
	// ECServiceError - some unexpected service error
	ECServiceError ErrCode = iota + 1
	// ECStageFailed - a pipeline stage executor reported a fatal error
	ECStageFailed
	// ECNotFound error
	ECNotFound
)

var errCodeName = map[ErrCode]string{ECServiceError: "SERVICE_ERROR",
	ECStageFailed: "STAGE_FAILED", ECNotFound: "NOT_FOUND"}

func (ec ErrCode) String() string {
	return errCodeName[ec]
}
