package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"
)

// Sender performs messages sending using postgres gue
type Sender struct {
	gc *gue.Client
}

// NewSender initializes gue sender
func NewSender(pool *pgxpool.Pool) (*Sender, error) {
	gc, err := gue.NewClient(pgxv5.NewConnPool(pool))
	if err != nil {
		return nil, fmt.Errorf("can't init gue: %w", err)
	}
	return &Sender{gc: gc}, nil
}

// SendMessage puts the message on a queue
func (sender *Sender) SendMessage(ctx context.Context, msg interface{}, queue, msgType string) error {
	return sender.SendMessageAt(ctx, msg, queue, msgType, time.Time{})
}

// SendMessageAt puts the message on a queue with the wanted run time.
// An old runAt lets resumed jobs overtake freshly created ones
func (sender *Sender) SendMessageAt(ctx context.Context, msg interface{}, queue, msgType string, runAt time.Time) error {
	goapp.Log.Debug().Str("queue", queue).Str("type", msgType).Msg("Sending message")
	args, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("can't marshal msg: %w", err)
	}

	j := &gue.Job{
		Type:  msgType,
		Queue: queue,
		Args:  args,
		RunAt: runAt,
	}
	if err := sender.gc.Enqueue(ctx, j); err != nil {
		return fmt.Errorf("can't send msg to %s: %w", queue, err)
	}
	goapp.Log.Debug().Msg("Sent")
	return nil
}
