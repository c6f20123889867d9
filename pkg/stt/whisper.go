package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

type Options struct {
	Language      string // "en" unless set
	Threads       int    // <=0 => NumCPU()
	InitialPrompt string
	BeamSize      int // 0 = greedy
	SplitOnWord   bool
}

type Segment struct {
	Text     string
	StartSec float64
	EndSec   float64
}

type Result struct {
	Text     string
	Segments []Segment
	Language string
}

// Whisper transcribes with a local whisper.cpp model. A model context is
// not reentrant, so calls are serialized.
type Whisper struct {
	mu    sync.Mutex
	model whisper.Model
	opt   Options
}

func NewWhisper(modelPath string, opt Options) (*Whisper, error) {
	if modelPath == "" {
		return nil, errors.New("empty model path")
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	if opt.Language == "" {
		opt.Language = "en"
	}
	return &Whisper{model: m, opt: opt}, nil
}

func (w *Whisper) Close() error {
	if w.model == nil {
		return nil
	}
	return w.model.Close()
}

// Transcribe returns the text of 16 kHz mono samples in [-1, 1].
func (w *Whisper) Transcribe(ctx context.Context, pcm []float32) (string, error) {
	res, err := w.TranscribePCM(ctx, pcm)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

func (w *Whisper) TranscribePCM(ctx context.Context, pcm16k []float32) (Result, error) {
	if w.model == nil {
		return Result{}, errors.New("nil model")
	}
	if len(pcm16k) == 0 {
		return Result{}, errors.New("no audio samples provided")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	wctx, err := w.model.NewContext()
	if err != nil {
		return Result{}, fmt.Errorf("new context: %w", err)
	}
	if err := wctx.SetLanguage(w.opt.Language); err != nil {
		return Result{}, fmt.Errorf("set language: %w", err)
	}
	wctx.SetTranslate(false)

	threads := w.opt.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	wctx.SetThreads(uint(threads))

	if w.opt.SplitOnWord {
		wctx.SetSplitOnWord(true)
	}
	if w.opt.BeamSize > 0 {
		wctx.SetBeamSize(w.opt.BeamSize)
	}
	if w.opt.InitialPrompt != "" {
		wctx.SetInitialPrompt(w.opt.InitialPrompt)
	}

	if err := wctx.Process(pcm16k, nil, nil, nil); err != nil {
		return Result{}, fmt.Errorf("process: %w", err)
	}

	var (
		segs  []Segment
		texts []string
	)
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		s, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("next segment: %w", err)
		}
		segs = append(segs, Segment{
			Text:     s.Text,
			StartSec: s.Start.Seconds(),
			EndSec:   s.End.Seconds(),
		})
		if t := strings.TrimSpace(s.Text); !isMarker(t) {
			texts = append(texts, t)
		}
	}

	return Result{
		Text:     strings.Join(texts, " "),
		Segments: segs,
		Language: wctx.Language(),
	}, nil
}

// isMarker reports non-speech annotations such as [BLANK_AUDIO].
func isMarker(t string) bool {
	return t == "" || (strings.HasPrefix(t, "[") && strings.HasSuffix(t, "]")) ||
		(strings.HasPrefix(t, "(") && strings.HasSuffix(t, ")"))
}
