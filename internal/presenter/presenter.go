package presenter

import (
	"context"
	"errors"
	log "log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindMessage Kind = "message"
	KindStatus  Kind = "status"
	KindWidget  Kind = "widget"
)

const (
	SpeakerUser = "You"
	SpeakerSia  = "Sia"
)

// Entry is one line of the visible transcript.
type Entry struct {
	ID      string    `json:"id"`
	At      time.Time `json:"at"`
	Kind    Kind      `json:"kind"`
	Speaker string    `json:"speaker,omitempty"`
	Text    string    `json:"text"`
	Widget  string    `json:"widget,omitempty"`
	Error   bool      `json:"error,omitempty"`
}

// Sink receives every entry as it is appended.
type Sink interface {
	Publish(e Entry)
}

// Utterance is a request to the speech playback engine.
type Utterance struct {
	Text   string
	Lang   string
	Volume float64
	Rate   float64
	Pitch  float64
}

// Voice plays an utterance to completion.
type Voice interface {
	Speak(ctx context.Context, u Utterance) error
}

const queueSize = 32

var errQueueFull = errors.New("playback queue is full")

type Options struct {
	Voice Voice
	// Volume returns the current playback volume in [0,1].
	Volume func() float64
	Sinks  []Sink
	Logger *log.Logger
	Now    func() time.Time
}

// Presenter appends to the transcript and hands speech to a single playback
// worker. Speech is fire-and-forget.
type Presenter struct {
	mu      sync.Mutex
	entries []Entry
	status  Entry

	voice  Voice
	volume func() float64
	sinks  []Sink
	log    *log.Logger
	now    func() time.Time

	queue chan Utterance
	// pending counts queued or playing utterances; idle is closed when it
	// drops to zero.
	pending int
	idle    chan struct{}
}

func New(opts Options) *Presenter {
	p := &Presenter{
		voice:  opts.Voice,
		volume: opts.Volume,
		sinks:  opts.Sinks,
		log:    opts.Logger,
		now:    opts.Now,
		queue:  make(chan Utterance, queueSize),
	}
	if p.volume == nil {
		p.volume = func() float64 { return 1 }
	}
	if p.log == nil {
		p.log = log.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Run plays queued utterances until ctx is done.
func (p *Presenter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-p.queue:
			if p.voice != nil {
				if err := p.voice.Speak(ctx, u); err != nil {
					p.speechFailed(err)
				}
			}
			p.played()
		}
	}
}

// WaitIdle blocks until nothing is queued or playing.
func (p *Presenter) WaitIdle(ctx context.Context) error {
	p.mu.Lock()
	idle := p.idle
	p.mu.Unlock()
	if idle == nil {
		return nil
	}

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Say logs text as the assistant and speaks it.
func (p *Presenter) Say(text string) {
	p.SayDistinct(text, text)
}

// SayDistinct logs text and speaks a different phrase.
func (p *Presenter) SayDistinct(text, speech string) {
	p.append(Entry{Kind: KindMessage, Speaker: SpeakerSia, Text: text})
	p.Speak(speech)
}

// Banner logs untagged text and speaks speech.
func (p *Presenter) Banner(text, speech string) {
	p.append(Entry{Kind: KindMessage, Text: text})
	p.Speak(speech)
}

// User logs a transcript from the speaker.
func (p *Presenter) User(text string) {
	p.append(Entry{Kind: KindMessage, Speaker: SpeakerUser, Text: text})
}

// Status replaces the status line.
func (p *Presenter) Status(msg string, isError bool) {
	e := p.append(Entry{Kind: KindStatus, Text: msg, Error: isError})
	p.mu.Lock()
	p.status = e
	p.mu.Unlock()
}

// Widget renders an in-place widget with optional body text.
func (p *Presenter) Widget(name, body string) {
	p.append(Entry{Kind: KindWidget, Widget: name, Text: body})
}

// Speak queues text for playback at the current volume.
func (p *Presenter) Speak(text string) {
	if text == "" {
		return
	}
	u := Utterance{
		Text:   text,
		Lang:   "en-US",
		Volume: p.volume(),
		Rate:   1,
		Pitch:  1,
	}
	p.mu.Lock()
	if p.pending == 0 {
		p.idle = make(chan struct{})
	}
	p.pending++
	p.mu.Unlock()

	select {
	case p.queue <- u:
	default:
		p.played()
		p.speechFailed(errQueueFull)
	}
}

func (p *Presenter) played() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending--
	if p.pending == 0 {
		close(p.idle)
		p.idle = nil
	}
}

// Transcript returns a copy of the message and widget entries.
func (p *Presenter) Transcript() []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Entry, 0, len(p.entries))
	for _, e := range p.entries {
		if e.Kind != KindStatus {
			out = append(out, e)
		}
	}
	return out
}

// CurrentStatus returns the latest status line.
func (p *Presenter) CurrentStatus() (msg string, isError bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status.Text, p.status.Error
}

func (p *Presenter) speechFailed(err error) {
	p.log.Warn("Speech playback failed", "err", err)
	p.append(Entry{Kind: KindMessage, Speaker: SpeakerSia, Text: "Error with speech synthesis: " + err.Error()})
}

func (p *Presenter) append(e Entry) Entry {
	e.ID = uuid.NewString()
	e.At = p.now()

	p.mu.Lock()
	p.entries = append(p.entries, e)
	sinks := p.sinks
	p.mu.Unlock()

	if e.Speaker != "" {
		p.log.Info(e.Speaker+": "+e.Text, "kind", e.Kind)
	} else {
		p.log.Debug(e.Text, "kind", e.Kind, "widget", e.Widget)
	}

	for _, s := range sinks {
		s.Publish(e)
	}
	return e
}
