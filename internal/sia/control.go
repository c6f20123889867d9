package sia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"sia/internal/ipc"
	"sia/internal/presenter"
)

// Control answers control socket requests. It runs on the socket's
// goroutine and reaches loop state through Call.
func (a *Assistant) Control(ctx context.Context, req ipc.Request) ipc.Reply {
	switch req.Cmd {
	case ipc.CmdToggle:
		var listening bool
		if err := a.Call(ctx, func() {
			a.Toggle()
			listening = a.ctl.Listening()
		}); err != nil {
			return failed(err)
		}
		if listening {
			return ipc.Reply{OK: true, Message: "listening"}
		}
		return ipc.Reply{OK: true, Message: "idle"}

	case ipc.CmdSay:
		text := strings.TrimSpace(req.Arg)
		if text == "" {
			return failed(errors.New("nothing to say"))
		}
		var said []string
		if err := a.Call(ctx, func() {
			n := len(a.out.Transcript())
			a.HandleTranscript(text)
			said = replies(a.out.Transcript()[n:])
		}); err != nil {
			return failed(err)
		}
		return ipc.Reply{OK: true, Message: strings.Join(said, "\n")}

	case ipc.CmdStatus:
		var st Status
		if err := a.Call(ctx, func() { st = a.Status() }); err != nil {
			return failed(err)
		}
		raw, err := json.Marshal(st)
		if err != nil {
			return failed(fmt.Errorf("encode status: %w", err))
		}
		return ipc.Reply{OK: true, Status: raw}

	case ipc.CmdReadFile:
		var rerr error
		if err := a.Call(ctx, func() { rerr = a.ReadFile(req.Arg) }); err != nil {
			return failed(err)
		}
		if rerr != nil {
			return failed(rerr)
		}
		return ipc.Reply{OK: true, Message: "File content loaded."}

	case ipc.CmdListenFile:
		text, err := a.ListenFile(ctx, req.Arg)
		if err != nil {
			return failed(err)
		}
		return ipc.Reply{OK: true, Message: "Heard: " + text}

	default:
		return failed(fmt.Errorf("unknown command %s", req.Cmd))
	}
}

func failed(err error) ipc.Reply {
	return ipc.Reply{Message: err.Error()}
}

// replies picks the assistant's messages out of entries.
func replies(entries []presenter.Entry) []string {
	var out []string
	for _, e := range entries {
		if e.Kind == presenter.KindMessage && e.Speaker == presenter.SpeakerSia {
			out = append(out, e.Text)
		}
	}
	return out
}
