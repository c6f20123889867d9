package sia

import (
	"context"
	"errors"
	log "log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sia/internal/capture"
	"sia/internal/nlu"
	"sia/internal/presenter"
	"sia/internal/tasks"
	"sia/pkg/protocol"
)

var epoch = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

type fakeRecognizer struct {
	mu     sync.Mutex
	ev       capture.Events
	playback capture.Playback
	starts   int
	stops  int
}

func (r *fakeRecognizer) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	return nil
}

func (r *fakeRecognizer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
}

type recordingVoice struct {
	mu     sync.Mutex
	spoken []presenter.Utterance
}

func (v *recordingVoice) Speak(_ context.Context, u presenter.Utterance) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.spoken = append(v.spoken, u)
	return nil
}

func (v *recordingVoice) texts() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, 0, len(v.spoken))
	for _, u := range v.spoken {
		out = append(out, u.Text)
	}
	return out
}

type stubWeather struct{ text string }

func (w stubWeather) Lookup(_ context.Context, city string) (string, error) {
	return w.text + " " + city, nil
}

type gatedNews struct {
	release chan struct{}
}

func (n gatedNews) Headline(ctx context.Context) (string, error) {
	select {
	case <-n.release:
		return "Top headline: Gated.", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	a      *Assistant
	rec    *fakeRecognizer
	voice  *recordingVoice
	navMu  sync.Mutex
	opened []string
}

func newFixture(t *testing.T, mod func(*Config)) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	f := &fixture{t: t, ctx: ctx, rec: &fakeRecognizer{}, voice: &recordingVoice{}}
	cfg := Config{
		Voice: f.voice,
		NewRecognizer: func(ev capture.Events, pb capture.Playback) capture.Recognizer {
			f.rec.ev = ev
			f.rec.playback = pb
			return f.rec
		},
		Navigate: func(url string) error {
			f.navMu.Lock()
			defer f.navMu.Unlock()
			f.opened = append(f.opened, url)
			return nil
		},
		Now:           func() time.Time { return epoch },
		AlarmLocation: time.UTC,
		Logger:        log.New(log.DiscardHandler),
	}
	if mod != nil {
		mod(&cfg)
	}

	a, err := New(ctx, cfg)
	require.NoError(t, err)
	f.a = a
	go a.Run(ctx)
	return f
}

func (f *fixture) do(fn func()) {
	f.t.Helper()
	require.NoError(f.t, f.a.Call(f.ctx, fn))
}

func (f *fixture) say(text string) {
	f.t.Helper()
	f.do(func() { f.a.HandleTranscript(text) })
}

// lines renders message entries as "Speaker: text".
func (f *fixture) lines() []string {
	var out []string
	for _, e := range f.a.Presenter().Transcript() {
		if e.Kind != presenter.KindMessage {
			continue
		}
		if e.Speaker == "" {
			out = append(out, e.Text)
			continue
		}
		out = append(out, e.Speaker+": "+e.Text)
	}
	return out
}

func (f *fixture) last() string {
	l := f.lines()
	if len(l) == 0 {
		return ""
	}
	return l[len(l)-1]
}

func (f *fixture) urls() []string {
	f.navMu.Lock()
	defer f.navMu.Unlock()
	return append([]string(nil), f.opened...)
}

func TestGreeting(t *testing.T) {
	f := newFixture(t, nil)
	f.do(func() {})

	lines := f.lines()
	require.NotEmpty(t, lines)
	assert.Equal(t, Greeting, lines[0])

	assert.Eventually(t, func() bool {
		spoken := f.voice.texts()
		return len(spoken) > 0 && spoken[0] == GreetingSpeech
	}, time.Second, 10*time.Millisecond)

	f.do(func() {
		st := f.a.Status()
		assert.Equal(t, capture.StatusOff, st.Line)
		assert.False(t, st.Listening)
	})
}

func TestHandleTranscriptLogsAndNavigates(t *testing.T) {
	f := newFixture(t, nil)

	f.say("Open YouTube")

	lines := f.lines()
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Equal(t, "You: Open YouTube", lines[len(lines)-2])
	assert.True(t, strings.HasPrefix(lines[len(lines)-1], "Sia: "))
	assert.Equal(t, []string{"https://www.youtube.com"}, f.urls())
}

func TestNavigationDisabled(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Navigate = nil })

	f.say("search for cats")
	assert.Equal(t, "You: search for cats", f.lines()[len(f.lines())-2])
}

func TestSpeechFollowsDeviceVolume(t *testing.T) {
	f := newFixture(t, nil)

	f.say("turn up volume")
	assert.Equal(t, "Sia: Volume increased to 60%.", f.last())

	assert.Eventually(t, func() bool {
		f.voice.mu.Lock()
		defer f.voice.mu.Unlock()
		n := len(f.voice.spoken)
		return n > 0 && f.voice.spoken[n-1].Volume == 0.6
	}, time.Second, 10*time.Millisecond)
}

func TestTimerFiresAfterLaterCommands(t *testing.T) {
	f := newFixture(t, nil)

	f.say("set timer for 1 seconds")
	f.say("turn on lights")
	assert.Equal(t, "Sia: Turning on the lights...", f.last())

	assert.Eventually(t, func() bool {
		return f.last() == "Sia: "+TimerFinished
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWeatherLandsAsynchronously(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.Weather = stubWeather{text: "Sunny in"}
	})

	f.say("check weather in Delhi")

	assert.Eventually(t, func() bool {
		return strings.HasPrefix(f.last(), "Sia: Sunny in")
	}, time.Second, 10*time.Millisecond)
}

func TestNewsMayLandOutOfOrder(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, func(c *Config) {
		c.News = gatedNews{release: release}
	})

	f.say("check news")
	f.say("turn off wifi")
	close(release)

	assert.Eventually(t, func() bool {
		return f.last() == "Sia: Top headline: Gated."
	}, time.Second, 10*time.Millisecond)

	lines := f.lines()
	assert.Equal(t, "Sia: Wi-Fi turned off.", lines[len(lines)-2])
}

func TestRecognizerWaitsOnPresenter(t *testing.T) {
	f := newFixture(t, nil)
	assert.Same(t, f.a.Presenter(), f.rec.playback)
}

func TestCaptureEventsRunOnLoop(t *testing.T) {
	f := newFixture(t, nil)

	f.do(f.a.Toggle)
	f.do(func() {
		assert.Equal(t, capture.StatusListening, f.a.Status().Line)
	})

	f.rec.ev.OnResult("turn on lights")
	f.rec.ev.OnEnd()
	f.do(func() {
		st := f.a.Status()
		assert.True(t, st.Device.Lights)
		assert.True(t, st.Listening)
	})
	assert.Equal(t, 2, f.rec.starts, "restarted after end")

	f.rec.ev.OnError(capture.NotAllowed, errors.New("denied"))
	f.do(func() {
		st := f.a.Status()
		assert.False(t, st.Listening)
		assert.True(t, st.LineError)
		assert.Equal(t, capture.NotAllowed.Message(), st.Line)
	})
}

func TestSweepAnnouncesDueAlarms(t *testing.T) {
	ctx := context.Background()
	store, err := tasks.Open(ctx, tasks.NewMemory())
	require.NoError(t, err)
	require.NoError(t, store.AddAlarm(ctx, "standup", epoch.Add(time.Minute)))

	f := newFixture(t, func(c *Config) { c.Store = store })

	f.do(func() {
		assert.Equal(t, 1, f.a.Status().AlarmsArmed)
		f.a.Sweep(epoch)
	})
	assert.NotEqual(t, "Sia: Alarm: standup", f.last())

	f.do(func() { f.a.Sweep(epoch.Add(2 * time.Minute)) })
	assert.Equal(t, "Sia: Alarm: standup", f.last())
	f.do(func() {
		assert.Equal(t, 0, f.a.Status().AlarmsArmed)
	})
}

func TestStatusCountsTasks(t *testing.T) {
	f := newFixture(t, nil)

	f.say("set reminder call mom")
	f.say("add todo buy milk")
	f.say("open calculator")

	f.do(func() {
		st := f.a.Status()
		assert.Equal(t, 1, st.Reminders)
		assert.Equal(t, 1, st.Todos)
		assert.Equal(t, []string{nlu.WidgetCalculator}, st.Widgets)
	})
}

func TestCallAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a, err := New(ctx, Config{
		NewRecognizer: func(capture.Events, capture.Playback) capture.Recognizer { return &fakeRecognizer{} },
		Logger:        log.New(log.DiscardHandler),
	})
	require.NoError(t, err)

	stopped := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	assert.ErrorIs(t, a.Call(context.Background(), func() {}), ErrStopped)
	assert.False(t, a.Post(func() {}))
}

func TestNewRequiresRecognizer(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}

func writeFile(t *testing.T, name string, body []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, body, 0o644))
	return path
}

func TestReadFileRequiresWidget(t *testing.T) {
	f := newFixture(t, nil)
	path := writeFile(t, "notes.txt", []byte("hello"))

	var err error
	f.do(func() { err = f.a.ReadFile(path) })
	assert.ErrorIs(t, err, ErrNoFileReader)
	assert.Equal(t, `Sia: File reader not initialized. Say "read file" to open it.`, f.last())
}

func TestReadFile(t *testing.T) {
	f := newFixture(t, nil)
	f.say("read file")

	tests := []struct {
		name    string
		path    func() string
		wantErr error
		want    string
	}{
		{
			name:    "no file",
			path:    func() string { return "" },
			wantErr: ErrNoFile,
			want:    "Sia: Please select a text file first.",
		},
		{
			name:    "binary",
			path:    func() string { return writeFile(t, "img.png", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")) },
			wantErr: ErrNotText,
			want:    "Sia: Please select a valid text file under 1MB.",
		},
		{
			name:    "too large",
			path:    func() string { return writeFile(t, "big.txt", []byte(strings.Repeat("a", maxFileSize+1))) },
			wantErr: ErrNotText,
			want:    "Sia: Please select a valid text file under 1MB.",
		},
		{
			name:    "missing",
			path:    func() string { return filepath.Join(t.TempDir(), "nope.txt") },
			wantErr: os.ErrNotExist,
			want:    "Sia: Error reading file.",
		},
		{
			name: "text",
			path: func() string { return writeFile(t, "notes.txt", []byte("buy milk\n")) },
			want: "Sia: File content loaded.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.path()
			var err error
			f.do(func() { err = f.a.ReadFile(path) })
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, f.last())
		})
	}

	entries := f.a.Presenter().Transcript()
	var body string
	for _, e := range entries {
		if e.Kind == presenter.KindWidget && e.Widget == nlu.WidgetFileReader {
			body = e.Text
		}
	}
	assert.Equal(t, "buy milk\n", body)
}

type stubTranscriber struct {
	text string
	err  error
}

func (s stubTranscriber) Transcribe(context.Context, []float32) (string, error) {
	return s.text, s.err
}

func decodeStub(context.Context, string) ([]float32, error) {
	return make([]float32, 1600), nil
}

func TestListenFileDispatches(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.Transcriber = stubTranscriber{text: " turn on lights "}
		c.Decode = decodeStub
	})

	text, err := f.a.ListenFile(f.ctx, "utterance.wav")
	require.NoError(t, err)
	assert.Equal(t, "turn on lights", text)

	f.do(func() {
		assert.True(t, f.a.Status().Device.Lights)
	})
	assert.Equal(t, "Sia: Turning on the lights...", f.last())
}

func TestListenFileNoSpeech(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.Transcriber = stubTranscriber{}
		c.Decode = decodeStub
	})

	_, err := f.a.ListenFile(f.ctx, "silence.wav")
	var cerr *capture.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, capture.NoSpeech, cerr.Code)

	f.do(func() {})
	assert.Equal(t, "Sia: "+capture.NoSpeech.Message(), f.last())
}

func TestListenFileNotConfigured(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.a.ListenFile(f.ctx, "x.wav")
	assert.ErrorIs(t, err, ErrNoTranscriber)
}

type recordingTx struct {
	mu     sync.Mutex
	frames []string
}

func (r *recordingTx) Transmit(v any) error {
	msg, ok := v.(protocol.Message)
	if !ok {
		return errors.New("unexpected frame type")
	}
	msg.From = "SIA"
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, msg.String())
	return nil
}

func (r *recordingTx) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.frames...)
}

func TestBusMirrorsChangesAndAnswersQueries(t *testing.T) {
	f := newFixture(t, nil)
	tx := &recordingTx{}
	bus := NewBus(f.a, log.New(log.DiscardHandler))
	bus.Connect(tx)

	f.say("set thermostat to 24")
	f.say("turn on lights")
	assert.Equal(t, []string{"HOME:SET:THERMOSTAT:24:SIA", "HOME:SET:LIGHTS:ON:SIA"}, tx.sent())

	bus.Handle(&protocol.Message{To: "SIA", Verb: "GET", Noun: "VOLUME", From: "PANEL"})
	bus.Handle(&protocol.Message{To: "SIA", Verb: "GET", Noun: "TOASTER", From: "PANEL"})
	f.do(func() {})

	sent := tx.sent()
	require.Len(t, sent, 4)
	assert.Equal(t, "PANEL:OK:VOLUME:50:SIA", sent[2])
	assert.Equal(t, "PANEL:ERR:UNKNOWN:TOASTER:SIA", sent[3])
}
