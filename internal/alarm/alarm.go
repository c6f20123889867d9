package alarm

import (
	"context"
	"fmt"
	log "log/slog"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/robfig/cron/v3"

	"sia/internal/tasks"
)

const defaultLabel = "Time’s up!"

// Announcer logs and speaks assistant output.
type Announcer interface {
	Say(text string)
	SayDistinct(text, speech string)
}

// NotifyFunc raises a desktop notification.
type NotifyFunc func(title, message string) error

// DesktopNotify shows a notification through the platform notifier.
func DesktopNotify(title, message string) error {
	return beeep.Notify(title, message, "")
}

// Sweeper fires due alarms. It must only be used from the goroutine that
// owns the task store.
type Sweeper struct {
	store  *tasks.Store
	out    Announcer
	notify NotifyFunc
	log    *log.Logger
}

func NewSweeper(store *tasks.Store, out Announcer, notify NotifyFunc, logger *log.Logger) *Sweeper {
	if logger == nil {
		logger = log.Default()
	}
	return &Sweeper{store: store, out: out, notify: notify, log: logger}
}

// Text is the announcement for an alarm.
func Text(a tasks.Alarm) string {
	label := a.Label
	if label == "" {
		label = defaultLabel
	}
	return "Alarm: " + label
}

// Sweep announces every untriggered alarm whose time has passed and marks it
// triggered. It returns the alarms fired on this tick.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (fired []tasks.Alarm) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Alarm sweep panicked", "panic", r)
			s.out.Say(fmt.Sprintf("Error checking alarms: %v", r))
		}
	}()

	fired, err := s.store.FireDue(ctx, now)

	for _, a := range fired {
		text := Text(a)
		s.out.Say(text)
		if s.notify != nil {
			if nerr := s.notify("Sia", text); nerr != nil {
				s.log.Debug("Desktop notification failed", "err", nerr)
			}
		}
	}

	if err != nil {
		s.log.Warn("Failed to persist fired alarms", "err", err)
		s.out.SayDistinct(tasks.SaveFailedText, tasks.SaveFailedSpeech)
	}
	return fired
}

// Schedule runs fn every period on a cron scheduler. The returned stop
// function waits for a running job to finish.
func Schedule(period time.Duration, fn func()) (stop func(), err error) {
	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", period), fn); err != nil {
		return nil, fmt.Errorf("schedule sweep: %w", err)
	}
	c.Start()

	return func() {
		<-c.Stop().Done()
	}, nil
}
