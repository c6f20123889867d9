package capture

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecognizer struct {
	starts int
	stops  int
	failOn map[int]error
}

func (r *fakeRecognizer) Start(context.Context) error {
	r.starts++
	if err := r.failOn[r.starts]; err != nil {
		return err
	}
	return nil
}

func (r *fakeRecognizer) Stop() { r.stops++ }

type status struct {
	msg   string
	isErr bool
}

type fakeReporter struct {
	statuses []status
	said     []string
	spoken   []string
}

func (f *fakeReporter) Status(msg string, isErr bool) {
	f.statuses = append(f.statuses, status{msg, isErr})
}

func (f *fakeReporter) Say(text string) { f.SayDistinct(text, text) }

func (f *fakeReporter) SayDistinct(text, speech string) {
	f.said = append(f.said, text)
	f.spoken = append(f.spoken, speech)
}

func (f *fakeReporter) lastStatus() status {
	if len(f.statuses) == 0 {
		return status{}
	}
	return f.statuses[len(f.statuses)-1]
}

func newController(rec *fakeRecognizer) (*Controller, *fakeReporter, *[]string) {
	out := &fakeReporter{}
	var got []string
	c := NewController(context.Background(), rec, out, func(text string) { got = append(got, text) }, nil)
	return c, out, &got
}

func TestToggleStartsAndStops(t *testing.T) {
	rec := &fakeRecognizer{}
	c, out, _ := newController(rec)

	c.Toggle()
	assert.Equal(t, Listening, c.State())
	assert.Equal(t, 1, rec.starts)
	assert.Equal(t, status{StatusListening, false}, out.lastStatus())

	c.Toggle()
	assert.Equal(t, Idle, c.State())
	assert.Equal(t, 1, rec.stops)
	assert.Equal(t, status{StatusOff, false}, out.lastStatus())

	c.OnEnd()
	assert.Equal(t, 1, rec.starts, "no restart after an explicit stop")
	assert.Equal(t, status{StatusOff, false}, out.lastStatus())
}

func TestToggleStartFailureStaysIdle(t *testing.T) {
	rec := &fakeRecognizer{failOn: map[int]error{1: errors.New("device busy")}}
	c, out, _ := newController(rec)

	c.Toggle()
	assert.Equal(t, Idle, c.State())
	assert.Equal(t, status{"Error starting recognition: device busy", true}, out.lastStatus())
	assert.Equal(t, []string{"Failed to start speech recognition. Check microphone permissions."}, out.said)
	assert.Equal(t, []string{"Failed to start speech recognition."}, out.spoken)
}

func TestAutoRestartIsUnbounded(t *testing.T) {
	rec := &fakeRecognizer{}
	c, _, got := newController(rec)
	c.Toggle()

	for i := 0; i < 100; i++ {
		c.OnResult("hello")
		c.OnEnd()
	}

	assert.Equal(t, 101, rec.starts)
	assert.True(t, c.Listening())
	assert.Len(t, *got, 100)
}

func TestRestartFailureForcesIdle(t *testing.T) {
	rec := &fakeRecognizer{failOn: map[int]error{2: errors.New("gone")}}
	c, out, _ := newController(rec)
	c.Toggle()

	c.OnEnd()
	assert.Equal(t, Idle, c.State())
	assert.Equal(t, status{"Error restarting recognition: gone", true}, out.lastStatus())
	assert.Equal(t, []string{"Failed to restart speech recognition."}, out.said)
}

func TestErrorsAreClassified(t *testing.T) {
	cases := []struct {
		code ErrorCode
		want string
	}{
		{NoSpeech, "No speech detected. Please try speaking again."},
		{AudioCapture, "Microphone not found or not accessible. Please check your device."},
		{NotAllowed, "Microphone access denied. Please allow microphone permissions."},
		{Network, "Network error with speech recognition. Please check your connection."},
		{ErrorCode("bad-grammar"), "Speech recognition error: bad-grammar"},
	}

	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			rec := &fakeRecognizer{}
			c, out, _ := newController(rec)
			c.Toggle()

			c.OnError(tc.code, errors.New("x"))
			assert.Equal(t, Idle, c.State())
			assert.Equal(t, status{tc.want, true}, out.lastStatus())
			assert.Equal(t, []string{tc.want}, out.said)

			c.OnEnd()
			assert.Equal(t, 1, rec.starts)
			assert.Equal(t, status{StatusOff, false}, out.lastStatus())
		})
	}
}

func TestResultHandlerPanicIsReported(t *testing.T) {
	out := &fakeReporter{}
	c := NewController(context.Background(), &fakeRecognizer{}, out, func(string) { panic("bad transcript") }, nil)

	require.NotPanics(t, func() { c.OnResult("x") })
	assert.Equal(t, []string{"Error processing speech result: bad transcript"}, out.said)
	assert.Equal(t, []string{"Error processing speech result."}, out.spoken)
}
