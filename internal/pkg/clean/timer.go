package clean

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"go.uber.org/multierr"
)

// IDsProvider returns expired job IDs
type IDsProvider interface {
	GetExpired(ctx context.Context) ([]string, error)
}

// Group runs several cleaners as one
type Group struct {
	Jobs []Cleaner
}

// Clean invokes all cleaners, collects errors
func (g *Group) Clean(ctx context.Context, id string) error {
	var res error
	for _, c := range g.Jobs {
		res = multierr.Append(res, c.Clean(ctx, id))
	}
	return res
}

// TimerData keeps data for the retention timer
type TimerData struct {
	RunEvery    time.Duration
	IDsProvider IDsProvider
	Cleaner     Cleaner
}

// StartCleanTimer periodically drops expired jobs.
// Returns channel closed when the loop exits
func StartCleanTimer(ctx context.Context, data *TimerData) (<-chan struct{}, error) {
	if data.IDsProvider == nil {
		return nil, fmt.Errorf("no IDs provider")
	}
	if data.Cleaner == nil {
		return nil, fmt.Errorf("no cleaner")
	}
	if data.RunEvery < time.Second {
		return nil, fmt.Errorf("wrong runEvery %v", data.RunEvery)
	}
	goapp.Log.Info().Dur("runEvery", data.RunEvery).Msg("Starting clean timer")
	res := make(chan struct{})
	go func() {
		defer close(res)
		timerLoop(ctx, data)
	}()
	return res, nil
}

func timerLoop(ctx context.Context, data *TimerData) {
	ticker := time.NewTicker(data.RunEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			goapp.Log.Info().Msg("Stopping clean timer")
			return
		case <-ticker.C:
			if err := doClean(ctx, data); err != nil {
				goapp.Log.Error().Err(err).Msg("clean failed")
			}
		}
	}
}

func doClean(ctx context.Context, data *TimerData) error {
	ids, err := data.IDsProvider.GetExpired(ctx)
	if err != nil {
		return fmt.Errorf("can't get expired IDs: %w", err)
	}
	var res error
	for _, id := range ids {
		if err := data.Cleaner.Clean(ctx, id); err != nil {
			res = multierr.Append(res, fmt.Errorf("can't clean %s: %w", id, err))
		}
	}
	return res
}
