package sia

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"sia/internal/capture"
	"sia/internal/device"
	"sia/internal/metrics"
	"sia/internal/nlu"
)

const maxFileSize = 1 << 20

var (
	ErrNoFileReader  = errors.New("file reader is not open")
	ErrNoFile        = errors.New("no file selected")
	ErrNotText       = errors.New("not a text file under 1 MiB")
	ErrNoTranscriber = errors.New("file transcription is not configured")
)

// ReadFile loads a text file into the open file reader widget. The outcome
// is always reported in the transcript. Loop only.
func (a *Assistant) ReadFile(path string) error {
	if !a.widgets[nlu.WidgetFileReader] {
		a.out.SayDistinct(`File reader not initialized. Say "read file" to open it.`, "File reader not initialized.")
		return ErrNoFileReader
	}
	if strings.TrimSpace(path) == "" {
		a.out.Say("Please select a text file first.")
		return ErrNoFile
	}

	info, err := os.Stat(path)
	if err != nil {
		a.log.Warn("Failed to stat file", "path", path, "err", err)
		a.out.Say("Error reading file.")
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() || info.Size() > maxFileSize {
		a.invalidFile()
		return ErrNotText
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		a.log.Warn("Failed to sniff file", "path", path, "err", err)
		a.out.Say("Error reading file.")
		return fmt.Errorf("detect %s: %w", path, err)
	}
	if !strings.Contains(mt.String(), "text") {
		a.log.Debug("Rejected file", "path", path, "mime", mt.String())
		a.invalidFile()
		return ErrNotText
	}

	body, err := os.ReadFile(path)
	if err != nil {
		a.log.Warn("Failed to read file", "path", path, "err", err)
		a.out.Say("Error reading file.")
		return fmt.Errorf("read %s: %w", path, err)
	}

	a.out.Widget(nlu.WidgetFileReader, string(body))
	a.out.Say("File content loaded.")
	return nil
}

func (a *Assistant) invalidFile() {
	a.out.SayDistinct("Please select a valid text file under 1MB.", "Please select a valid text file.")
}

// ListenFile transcribes a recorded utterance and dispatches it as if it
// had been spoken. It blocks while decoding and transcribing, so it must
// not be called from the loop.
func (a *Assistant) ListenFile(ctx context.Context, path string) (string, error) {
	if a.cfg.Decode == nil || a.cfg.Transcriber == nil {
		return "", ErrNoTranscriber
	}

	pcm, err := a.cfg.Decode(ctx, path)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", path, err)
	}

	text, err := capture.TranscribeOnce(ctx, a.cfg.Transcriber, pcm)
	if err != nil {
		var cerr *capture.Error
		if errors.As(err, &cerr) {
			metrics.CaptureErrors.WithLabelValues(string(cerr.Code)).Inc()
			msg := cerr.Code.Message()
			a.Post(func() {
				a.out.Status(msg, true)
				a.out.Say(msg)
			})
		}
		return "", err
	}

	if !a.Post(func() { a.HandleTranscript(text) }) {
		return "", ErrStopped
	}
	return text, nil
}

// Status is a point-in-time view of the assistant.
type Status struct {
	Listening   bool         `json:"listening"`
	Line        string       `json:"status"`
	LineError   bool         `json:"status_error,omitempty"`
	Device      device.State `json:"device"`
	Reminders   int          `json:"reminders"`
	Todos       int          `json:"todos"`
	AlarmsArmed int          `json:"alarms_armed"`
	Widgets     []string     `json:"widgets,omitempty"`
}

// Status snapshots the assistant. Loop only.
func (a *Assistant) Status() Status {
	t := a.store.Snapshot()
	line, isErr := a.out.CurrentStatus()

	st := Status{
		Listening: a.ctl.Listening(),
		Line:      line,
		LineError: isErr,
		Device:    a.dev.Snapshot(),
		Reminders: len(t.Reminders),
		Todos:     len(t.Todos),
		Widgets:   slices.Sorted(maps.Keys(a.widgets)),
	}
	for _, al := range t.Alarms {
		if !al.Triggered {
			st.AlarmsArmed++
		}
	}
	return st
}
