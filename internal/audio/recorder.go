package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gordonklaus/portaudio"
)

const SampleRate = 16000

// Endpoint tunes utterance detection.
type Endpoint struct {
	// Threshold is the frame RMS above which a frame counts as speech.
	Threshold float64
	// Silence ends the utterance once speech has started.
	Silence time.Duration
	// Wait is how long to wait for speech to start.
	Wait time.Duration
	// Max caps the utterance length.
	Max time.Duration
}

func DefaultEndpoint() Endpoint {
	return Endpoint{
		Threshold: 0.015,
		Silence:   800 * time.Millisecond,
		Wait:      8 * time.Second,
		Max:       15 * time.Second,
	}
}

var ErrNotInitialized = errors.New("audio not initialized")

type Recorder struct {
	ep    Endpoint
	ready bool
}

func NewRecorder(ep Endpoint) *Recorder { return &Recorder{ep: ep} }

func (r *Recorder) Init() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}
	if _, err := portaudio.DefaultInputDevice(); err != nil {
		portaudio.Terminate()
		return fmt.Errorf("no input device: %w", err)
	}
	r.ready = true
	return nil
}

func (r *Recorder) Close() {
	if r.ready {
		portaudio.Terminate()
		r.ready = false
	}
}

// Record captures one utterance from the default input device. It returns
// nil samples if nobody spoke before Wait elapsed, and ctx.Err() when
// cancelled.
func (r *Recorder) Record(ctx context.Context) ([]float32, error) {
	if !r.ready {
		return nil, ErrNotInitialized
	}

	const frameSize = 320 // 20ms
	frameDur := time.Second * frameSize / SampleRate

	buf := make([]float32, frameSize)
	out := make([]float32, 0, SampleRate*3)

	stream, err := portaudio.OpenDefaultStream(1, 0, SampleRate, len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("start stream: %w", err)
	}
	defer stream.Stop()

	var (
		speaking bool
		silent   time.Duration
		elapsed  time.Duration
	)

	for elapsed < r.ep.Max {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := stream.Read(); err != nil {
			return nil, fmt.Errorf("read stream: %w", err)
		}
		elapsed += frameDur

		if frameRMS(buf) > r.ep.Threshold {
			speaking = true
			silent = 0
			out = append(out, buf...)
			continue
		}

		if !speaking {
			if elapsed >= r.ep.Wait {
				return nil, nil
			}
			continue
		}

		silent += frameDur
		if silent >= r.ep.Silence {
			break
		}
		out = append(out, buf...)
	}

	return out, nil
}

func frameRMS(f []float32) float64 {
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
