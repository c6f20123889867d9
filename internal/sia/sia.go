package sia

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"time"

	"sia/internal/alarm"
	"sia/internal/capture"
	"sia/internal/device"
	"sia/internal/metrics"
	"sia/internal/nlu"
	"sia/internal/presenter"
	"sia/internal/skills"
	"sia/internal/tasks"
)

const (
	Greeting       = `Hello! I am Sia, your voice assistant. Try saying "Search for cats", "Open YouTube", "Check weather in Delhi", "Post hello world", or "Set timer for 10 seconds".`
	GreetingSpeech = "Hello! I am Sia, your voice assistant. Click the microphone to start."

	TimerFinished = "Timer finished!"
)

const (
	eventBuffer  = 64
	fetchTimeout = 15 * time.Second
)

var ErrStopped = errors.New("assistant stopped")

type Weather interface {
	Lookup(ctx context.Context, city string) (string, error)
}

type News interface {
	Headline(ctx context.Context) (string, error)
}

type Config struct {
	Device *device.State
	// Store defaults to an in-memory store.
	Store  *tasks.Store
	Skills *skills.Registry

	Voice presenter.Voice
	Sinks []presenter.Sink

	Weather Weather
	News    News
	// Navigate opens a URL. Nil disables navigation.
	Navigate func(url string) error

	// NewRecognizer builds the capture engine reporting to ev. pb is the
	// speech queue it should let drain before recording.
	NewRecognizer func(ev capture.Events, pb capture.Playback) capture.Recognizer
	// Transcriber and Decode serve ListenFile.
	Transcriber capture.Transcriber
	Decode      func(ctx context.Context, path string) ([]float32, error)

	Notify        alarm.NotifyFunc
	Now           func() time.Time
	AlarmLocation *time.Location
	Logger        *log.Logger
}

// Assistant owns the device state, task store and interpreter and mutates
// them only from the goroutine running Run. Other goroutines hand work to
// the loop with Post or Call.
type Assistant struct {
	ctx context.Context
	cfg Config
	log *log.Logger

	dev     *device.State
	store   *tasks.Store
	out     *presenter.Presenter
	in      *nlu.Interpreter
	ctl     *capture.Controller
	sweeper *alarm.Sweeper

	// widgets open in the transcript, loop-owned
	widgets map[string]bool

	events chan func()
	done   chan struct{}
}

func New(ctx context.Context, cfg Config) (*Assistant, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Device == nil {
		cfg.Device = device.Default()
	}
	if cfg.Skills == nil {
		cfg.Skills = skills.NewRegistry()
	}
	if cfg.Store == nil {
		store, err := tasks.Open(ctx, tasks.NewMemory())
		if err != nil {
			return nil, fmt.Errorf("open memory store: %w", err)
		}
		cfg.Store = store
	}
	if cfg.NewRecognizer == nil {
		return nil, errors.New("no recognizer configured")
	}

	a := &Assistant{
		ctx:     ctx,
		cfg:     cfg,
		log:     cfg.Logger,
		dev:     cfg.Device,
		store:   cfg.Store,
		widgets: make(map[string]bool),
		events:  make(chan func(), eventBuffer),
		done:    make(chan struct{}),
	}

	a.out = presenter.New(presenter.Options{
		Voice:  cfg.Voice,
		Volume: a.dev.SpeechVolume,
		Sinks:  cfg.Sinks,
		Logger: cfg.Logger.With("component", "presenter"),
		Now:    cfg.Now,
	})
	a.in = nlu.NewInterpreter(a.dev, a.store, cfg.Skills, nlu.Options{
		Now:           cfg.Now,
		AlarmLocation: cfg.AlarmLocation,
	})
	rec := cfg.NewRecognizer(loopEvents{a}, a.out)
	a.ctl = capture.NewController(ctx, rec, a.out, a.HandleTranscript, cfg.Logger.With("component", "capture"))
	a.sweeper = alarm.NewSweeper(a.store, a.out, cfg.Notify, cfg.Logger.With("component", "alarm"))

	return a, nil
}

// Presenter exposes the transcript for read-only use.
func (a *Assistant) Presenter() *presenter.Presenter {
	return a.out
}

// Run greets and then executes posted work until ctx is done.
func (a *Assistant) Run(ctx context.Context) {
	defer close(a.done)

	go a.out.Run(ctx)

	a.out.Banner(Greeting, GreetingSpeech)
	a.out.Status(capture.StatusOff, false)
	a.log.Info("Assistant ready", "rules", len(a.in.Rules()))

	for {
		select {
		case <-ctx.Done():
			a.log.Info("Assistant stopped")
			return
		case fn := <-a.events:
			fn()
		}
	}
}

// Post queues fn on the loop. It reports false once the loop has stopped.
func (a *Assistant) Post(fn func()) bool {
	select {
	case a.events <- fn:
		return true
	case <-a.done:
		return false
	}
}

// Call runs fn on the loop and waits for it to return.
func (a *Assistant) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !a.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-a.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleTranscript dispatches one transcript. Loop only.
func (a *Assistant) HandleTranscript(text string) {
	a.out.User(text)

	res := a.in.Interpret(a.ctx, text)
	metrics.Commands.WithLabelValues(res.Rule).Inc()
	a.log.Debug("Interpreted", "rule", res.Rule, "effects", len(res.Effects))

	for _, n := range res.Notices {
		speech := n.Speech
		if speech == "" {
			speech = n.Text
		}
		a.out.SayDistinct(n.Text, speech)
	}
	a.out.SayDistinct(res.Response, res.Spoken())

	for _, e := range res.Effects {
		a.execute(e)
	}
}

// Toggle flips the listening intent. Loop only.
func (a *Assistant) Toggle() {
	a.ctl.Toggle()
}

// Sweep fires due alarms. Loop only.
func (a *Assistant) Sweep(now time.Time) {
	fired := a.sweeper.Sweep(a.ctx, now)
	metrics.AlarmsFired.Add(float64(len(fired)))
}

// Attach mirrors device changes to m. Loop only.
func (a *Assistant) Attach(m device.Mirror) {
	a.dev.Attach(m)
}

// loopEvents forwards recognizer callbacks onto the loop.
type loopEvents struct {
	a *Assistant
}

func (e loopEvents) OnResult(text string) {
	e.a.Post(func() { e.a.ctl.OnResult(text) })
}

func (e loopEvents) OnError(code capture.ErrorCode, err error) {
	metrics.CaptureErrors.WithLabelValues(string(code)).Inc()
	e.a.Post(func() { e.a.ctl.OnError(code, err) })
}

func (e loopEvents) OnEnd() {
	e.a.Post(e.a.ctl.OnEnd)
}
