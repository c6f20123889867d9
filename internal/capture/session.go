package capture

import (
	"context"
	log "log/slog"
	"strings"
	"sync"
	"time"
)

// Recorder captures one utterance of 16 kHz mono audio.
type Recorder interface {
	Record(ctx context.Context) ([]float32, error)
}

// Transcriber turns 16 kHz mono samples into text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []float32) (string, error)
}

// Ducker lowers other audio streams while recording.
type Ducker interface {
	DuckOthers(ctx context.Context, factor float64, d time.Duration) error
	UnduckOthers(ctx context.Context, d time.Duration) error
}

// Playback reports when queued speech has finished playing.
type Playback interface {
	WaitIdle(ctx context.Context) error
}

type SessionConfig struct {
	Recorder    Recorder
	Transcriber Transcriber
	Events      Events
	// Optional.
	Ducker Ducker
	// Playback holds recording until the assistant stops talking, so the
	// microphone does not pick up its own replies.
	Playback Playback
	Cue      func()
	Logger *log.Logger
	// Timeout bounds transcription of one utterance.
	Timeout time.Duration
}

const (
	duckFactor = 0.3
	duckFade   = 150 * time.Millisecond
)

// Session is a Recognizer backed by a microphone recorder and a transcriber.
// Each Start records one utterance in the background.
type Session struct {
	cfg SessionConfig
	log *log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewSession(cfg SessionConfig) *Session {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Session{cfg: cfg, log: cfg.Logger}
}

func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrAlreadyStarted
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.run(sctx)
	return nil
}

func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Session) run(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.cancel()
		s.cancel = nil
		s.mu.Unlock()
		s.cfg.Events.OnEnd()
	}()

	if pb := s.cfg.Playback; pb != nil {
		if err := pb.WaitIdle(ctx); err != nil {
			return
		}
	}
	if s.cfg.Cue != nil {
		s.cfg.Cue()
	}

	pcm, err := s.record(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.cfg.Events.OnError(classifyRecord(err), err)
		return
	}
	if len(pcm) == 0 {
		s.cfg.Events.OnError(NoSpeech, ErrNoSpeech)
		return
	}
	s.log.Debug("Recorded utterance", "samples", len(pcm))

	tctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	text, err := s.cfg.Transcriber.Transcribe(tctx, pcm)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.cfg.Events.OnError(classifyTranscribe(err), err)
		return
	}

	text = strings.TrimSpace(text)
	if text == "" {
		s.cfg.Events.OnError(NoSpeech, ErrNoSpeech)
		return
	}
	s.cfg.Events.OnResult(text)
}

func (s *Session) record(ctx context.Context) ([]float32, error) {
	if d := s.cfg.Ducker; d != nil {
		if err := d.DuckOthers(ctx, duckFactor, duckFade); err != nil {
			s.log.Debug("Failed to duck other streams", "err", err)
		}
		defer func() {
			if err := d.UnduckOthers(context.WithoutCancel(ctx), duckFade); err != nil {
				s.log.Debug("Failed to restore other streams", "err", err)
			}
		}()
	}
	return s.cfg.Recorder.Record(ctx)
}

// TranscribeOnce transcribes pre-recorded samples as one utterance. Failures
// are returned as *Error.
func TranscribeOnce(ctx context.Context, tr Transcriber, pcm []float32) (string, error) {
	if len(pcm) == 0 {
		return "", &Error{Code: NoSpeech, Err: ErrNoSpeech}
	}
	text, err := tr.Transcribe(ctx, pcm)
	if err != nil {
		return "", &Error{Code: classifyTranscribe(err), Err: err}
	}
	if text = strings.TrimSpace(text); text == "" {
		return "", &Error{Code: NoSpeech, Err: ErrNoSpeech}
	}
	return text, nil
}
