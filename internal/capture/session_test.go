package capture

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type event struct {
	kind string
	text string
	code ErrorCode
}

type chanEvents chan event

func (c chanEvents) OnResult(text string) { c <- event{kind: "result", text: text} }
func (c chanEvents) OnError(code ErrorCode, _ error) { c <- event{kind: "error", code: code} }
func (c chanEvents) OnEnd() { c <- event{kind: "end"} }

func (c chanEvents) next(t *testing.T) event {
	t.Helper()
	select {
	case e := <-c:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no recognizer event")
		return event{}
	}
}

type recorderFunc func(ctx context.Context) ([]float32, error)

func (f recorderFunc) Record(ctx context.Context) ([]float32, error) { return f(ctx) }

type transcriberFunc func(ctx context.Context, pcm []float32) (string, error)

func (f transcriberFunc) Transcribe(ctx context.Context, pcm []float32) (string, error) {
	return f(ctx, pcm)
}

func samples(context.Context) ([]float32, error) { return []float32{0.1, 0.2}, nil }

type fakeDucker struct {
	mu           sync.Mutex
	duck, unduck int
}

func (d *fakeDucker) DuckOthers(context.Context, float64, time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.duck++
	return nil
}

func (d *fakeDucker) UnduckOthers(context.Context, time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unduck++
	return errors.New("pactl missing")
}

func TestSession_Result(t *testing.T) {
	ev := make(chanEvents, 4)
	duck := &fakeDucker{}
	cued := make(chan struct{}, 1)
	s := NewSession(SessionConfig{
		Recorder:    recorderFunc(samples),
		Transcriber: transcriberFunc(func(context.Context, []float32) (string, error) { return "  Open YouTube ", nil }),
		Events:      ev,
		Ducker:      duck,
		Cue:         func() { cued <- struct{}{} },
	})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, event{kind: "result", text: "Open YouTube"}, ev.next(t))
	assert.Equal(t, "end", ev.next(t).kind)
	assert.Len(t, cued, 1)

	duck.mu.Lock()
	assert.Equal(t, 1, duck.duck)
	assert.Equal(t, 1, duck.unduck)
	duck.mu.Unlock()

	require.NoError(t, s.Start(context.Background()), "a finished session can be restarted")
	ev.next(t)
	ev.next(t)
}

func TestSession_Errors(t *testing.T) {
	cases := []struct {
		name string
		rec  recorderFunc
		tr   transcriberFunc
		want ErrorCode
	}{
		{
			name: "silence",
			rec:  func(context.Context) ([]float32, error) { return nil, nil },
			want: NoSpeech,
		},
		{
			name: "device",
			rec:  func(context.Context) ([]float32, error) { return nil, errors.New("PortAudio: invalid device") },
			want: AudioCapture,
		},
		{
			name: "permission",
			rec:  func(context.Context) ([]float32, error) { return nil, os.ErrPermission },
			want: NotAllowed,
		},
		{
			name: "network",
			rec:  samples,
			tr: func(context.Context, []float32) (string, error) {
				return "", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
			},
			want: Network,
		},
		{
			name: "empty transcript",
			rec:  samples,
			tr:   func(context.Context, []float32) (string, error) { return " ", nil },
			want: NoSpeech,
		},
		{
			name: "model",
			rec:  samples,
			tr:   func(context.Context, []float32) (string, error) { return "", errors.New("model failed") },
			want: ServiceError,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := make(chanEvents, 4)
			s := NewSession(SessionConfig{Recorder: tc.rec, Transcriber: tc.tr, Events: ev})

			require.NoError(t, s.Start(context.Background()))
			e := ev.next(t)
			assert.Equal(t, "error", e.kind)
			assert.Equal(t, tc.want, e.code)
			assert.Equal(t, "end", ev.next(t).kind)
		})
	}
}

func TestSession_StopEndsQuietly(t *testing.T) {
	ev := make(chanEvents, 4)
	recording := make(chan struct{})
	s := NewSession(SessionConfig{
		Recorder: recorderFunc(func(ctx context.Context) ([]float32, error) {
			close(recording)
			<-ctx.Done()
			return nil, ctx.Err()
		}),
		Events: ev,
	})

	require.NoError(t, s.Start(context.Background()))
	<-recording
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)

	s.Stop()
	assert.Equal(t, "end", ev.next(t).kind)
}

type playbackFunc func(ctx context.Context) error

func (f playbackFunc) WaitIdle(ctx context.Context) error { return f(ctx) }

func TestSession_WaitsForPlayback(t *testing.T) {
	ev := make(chanEvents, 4)
	speaking := make(chan struct{})
	recorded := make(chan struct{}, 1)
	s := NewSession(SessionConfig{
		Recorder: recorderFunc(func(ctx context.Context) ([]float32, error) {
			recorded <- struct{}{}
			return samples(ctx)
		}),
		Transcriber: transcriberFunc(func(context.Context, []float32) (string, error) { return "tell joke", nil }),
		Events:      ev,
		Playback: playbackFunc(func(ctx context.Context) error {
			select {
			case <-speaking:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}),
	})

	require.NoError(t, s.Start(context.Background()))
	select {
	case <-recorded:
		t.Fatal("recording started while a reply was still playing")
	case <-time.After(100 * time.Millisecond):
	}

	close(speaking)
	assert.Equal(t, event{kind: "result", text: "tell joke"}, ev.next(t))
	assert.Equal(t, "end", ev.next(t).kind)
	assert.Len(t, recorded, 1)
}

func TestSession_StopWhileWaitingForPlayback(t *testing.T) {
	ev := make(chanEvents, 4)
	waiting := make(chan struct{})
	s := NewSession(SessionConfig{
		Recorder: recorderFunc(func(context.Context) ([]float32, error) {
			t.Error("recorded after stop")
			return nil, nil
		}),
		Events: ev,
		Playback: playbackFunc(func(ctx context.Context) error {
			close(waiting)
			<-ctx.Done()
			return ctx.Err()
		}),
	})

	require.NoError(t, s.Start(context.Background()))
	<-waiting
	s.Stop()
	assert.Equal(t, "end", ev.next(t).kind)
}

func TestTranscribeOnce(t *testing.T) {
	tr := transcriberFunc(func(context.Context, []float32) (string, error) { return "turn on lights", nil })
	text, err := TranscribeOnce(context.Background(), tr, []float32{1})
	require.NoError(t, err)
	assert.Equal(t, "turn on lights", text)

	_, err = TranscribeOnce(context.Background(), tr, nil)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, NoSpeech, cerr.Code)
}
