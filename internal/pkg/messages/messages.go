package messages

import "time"

const (
	st = "FORGE/"
	// Work queue name - drained by the pipeline worker pool
	Work = st + "Work"
	// Inform queue name - drained by the email notifier
	Inform = st + "Inform"

	// MsgPreprocess drives a job from upload to labeling
	MsgPreprocess = "preprocess"
	// MsgTrain drives a job from labeling commit to completion
	MsgTrain = "train"
	// MsgFail marks a job failed after retries are exhausted
	MsgFail = "fail"
	// MsgInform sends an email notification
	MsgInform = "inform"
)

// Inform message types
const (
	InformStarted  = "started"
	InformLabeling = "labeling"
	InformFinished = "finished"
	InformFailed   = "failed"
)

// JobMessage is the main message passing through the forge pipeline
type JobMessage struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

// InformMessage asks the notifier to mail the job owner
type InformMessage struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	At   time.Time `json:"at"`
}

// NewMessageFrom creates a copy of a message
func NewMessageFrom(m *JobMessage) *JobMessage {
	return &JobMessage{ID: m.ID, Error: m.Error}
}
