package capture

import (
	"context"
	"fmt"
	log "log/slog"
)

type State int

const (
	Idle State = iota
	Listening
)

func (s State) String() string {
	if s == Listening {
		return "listening"
	}
	return "idle"
}

const (
	StatusListening = "Listening..."
	StatusOff       = "Microphone is off. Click to start listening..."
)

// Recognizer is a speech capture engine. Start begins one capture session;
// the engine reports its outcome through Events and always finishes a
// session with End. Stop ends the current session early.
type Recognizer interface {
	Start(ctx context.Context) error
	Stop()
}

// Events receives recognizer callbacks. Implementations are expected to be
// invoked on the owner's event loop.
type Events interface {
	OnResult(text string)
	OnError(code ErrorCode, err error)
	OnEnd()
}

// Reporter presents controller output.
type Reporter interface {
	Status(msg string, isError bool)
	Say(text string)
	SayDistinct(text, speech string)
}

// Controller tracks the listening intent and restarts the recognizer after
// every session while that intent holds. It is not safe for concurrent use.
type Controller struct {
	ctx        context.Context
	rec        Recognizer
	out        Reporter
	transcript func(text string)
	log        *log.Logger

	listening bool
}

func NewController(ctx context.Context, rec Recognizer, out Reporter, transcript func(string), logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{ctx: ctx, rec: rec, out: out, transcript: transcript, log: logger}
}

func (c *Controller) State() State {
	if c.listening {
		return Listening
	}
	return Idle
}

func (c *Controller) Listening() bool {
	return c.listening
}

// Toggle starts capture when idle and stops it when listening.
func (c *Controller) Toggle() {
	if c.listening {
		c.rec.Stop()
		c.listening = false
		c.out.Status(StatusOff, false)
		c.log.Info("Capture stopped")
		return
	}

	if err := c.rec.Start(c.ctx); err != nil {
		c.log.Error("Failed to start recognition", "err", err)
		c.out.Status("Error starting recognition: "+err.Error(), true)
		c.out.SayDistinct("Failed to start speech recognition. Check microphone permissions.", "Failed to start speech recognition.")
		return
	}
	c.listening = true
	c.out.Status(StatusListening, false)
	c.log.Info("Capture started")
}

func (c *Controller) OnResult(text string) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Transcript handler panicked", "panic", r)
			c.out.SayDistinct(fmt.Sprintf("Error processing speech result: %v", r), "Error processing speech result.")
		}
	}()
	c.transcript(text)
}

// OnError reports a classified capture failure and forces Idle.
func (c *Controller) OnError(code ErrorCode, err error) {
	c.listening = false
	msg := code.Message()
	c.log.Warn("Recognition error", "code", code, "err", err)
	c.out.Status(msg, true)
	c.out.Say(msg)
}

// OnEnd restarts capture while the listening intent is set.
func (c *Controller) OnEnd() {
	if !c.listening {
		c.out.Status(StatusOff, false)
		return
	}

	if err := c.rec.Start(c.ctx); err != nil {
		c.listening = false
		c.log.Error("Failed to restart recognition", "err", err)
		c.out.Status("Error restarting recognition: "+err.Error(), true)
		c.out.Say("Failed to restart speech recognition.")
	}
}
