package notify

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

// Beeper plays a short mp3 cue, typically when a capture session starts.
type Beeper struct {
	path string
	// Gain is the volume change in halvings; 0 leaves the file as is.
	Gain float64

	once    sync.Once
	initErr error
	rate    beep.SampleRate
}

func NewBeeper(path string) *Beeper {
	return &Beeper{path: path}
}

// Play blocks until the cue has finished.
func (b *Beeper) Play() error {
	f, err := os.Open(b.path)
	if err != nil {
		return fmt.Errorf("open cue: %w", err)
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("decode cue: %w", err)
	}
	defer streamer.Close()

	b.once.Do(func() {
		b.rate = format.SampleRate
		b.initErr = speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10))
	})
	if b.initErr != nil {
		return fmt.Errorf("init speaker: %w", b.initErr)
	}

	var s beep.Streamer = streamer
	if format.SampleRate != b.rate {
		s = beep.Resample(4, format.SampleRate, b.rate, s)
	}
	if b.Gain != 0 {
		s = &effects.Volume{Streamer: s, Base: 2, Volume: b.Gain}
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() {
		close(done)
	})))
	<-done
	return nil
}
