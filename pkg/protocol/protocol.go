package protocol

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"regexp"
	"strings"
	"time"
)

type PtclConfig struct {
	Shard   string
	Url     string
	Reconn  time.Duration
	EmitOut func(*Message)
}

// Protocol speaks colon-delimited frames TO:VERB:NOUN[:ARGS...]:FROM over a
// websocket bus. Frames addressed to other shards are ignored.
type Protocol struct {
	ws *WebSocket

	shard   string
	emitOut func(*Message)
}

func NewProtocol(ctx context.Context, cfg PtclConfig) (*Protocol, error) {
	ws, err := NewWebSocket(ctx, cfg.Url, cfg.Reconn)
	if err != nil {
		return nil, fmt.Errorf("bus connect: %w", err)
	}

	return &Protocol{
		shard:   cfg.Shard,
		ws:      ws,
		emitOut: cfg.EmitOut,
	}, nil
}

func (ptcl *Protocol) Shard() string { return ptcl.shard }

// Transmit sends a Message, a raw "TO:VERB:NOUN..." string or its parts.
// The sender shard is appended.
func (ptcl *Protocol) Transmit(v any) error {
	var msg string

	switch m := v.(type) {
	case Message:
		m.From = ptcl.shard
		msg = m.String()
	case *Message:
		cp := *m
		cp.From = ptcl.shard
		msg = cp.String()
	case string:
		msg = fmt.Sprintf("%s:%s", m, ptcl.shard)
	case []string:
		msg = fmt.Sprintf("%s:%s", strings.Join(m, ":"), ptcl.shard)
	default:
		return fmt.Errorf("unsupported frame type %T", v)
	}

	if err := ptcl.ws.Write([]byte(msg)); err != nil {
		log.Error("Failed to transmit", "msg", msg, "err", err)
		return err
	}
	return nil
}

// Run reads frames until ctx is done, reconnecting on close.
func (ptcl *Protocol) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		ptcl.ws.Close()
	}()

	for {
		in := ptcl.ws.Read()
		if ctx.Err() != nil {
			return
		}

		switch in.kind {
		case CONN_CLOSE, READ_FAILURE:
			log.Warn("Bus connection lost, reconnecting", "url", ptcl.ws.url, "err", in.err)
			if err := ptcl.ws.TryReconn(ctx); err != nil {
				return
			}
			log.Info("Reconnected to bus")

		case READ_OK:
			if !ptcl.checkRecipient(in.msg) {
				continue
			}

			msg, err := Parse(string(in.msg))
			if err != nil {
				log.Warn("Failed to parse", "msg", string(in.msg), "err", err)
				continue
			}
			if ptcl.emitOut != nil {
				ptcl.emitOut(msg)
			}
		}
	}
}

func (ptcl *Protocol) checkRecipient(msg []byte) bool {
	to, _, _ := strings.Cut(string(msg), ":")
	return to == ptcl.shard || to == "ALL"
}

// Parse decodes one frame.
func Parse(line string) (*Message, error) {
	s := strings.TrimSpace(line)
	if s == "" {
		return nil, errors.New("empty message")
	}
	if strings.ContainsAny(s, " \t\r\n") {
		// frames are single-line
		return nil, fmt.Errorf("invalid whitespace present")
	}
	parts := strings.Split(s, ":")
	if len(parts) < 4 {
		return nil, fmt.Errorf("too few fields: got %d, want >= 4", len(parts))
	}

	to := parts[0]
	verb := parts[1]
	noun := parts[2]
	from := parts[len(parts)-1]
	args := append([]string(nil), parts[3:len(parts)-1]...)

	if !isToken(to) && !isHexID(to) && to != "ALL" {
		return nil, fmt.Errorf("invalid TO token: %q", to)
	}
	if !isToken(from) && !isHexID(from) {
		return nil, fmt.Errorf("invalid FROM token: %q", from)
	}
	if !isToken(noun) || !isToken(verb) {
		return nil, fmt.Errorf("invalid NOUN/VERB: %q %q", noun, verb)
	}
	for i, a := range args {
		if !isToken(a) {
			return nil, fmt.Errorf("invalid ARG[%d]: %q", i, a)
		}
	}

	return &Message{
		To:   to,
		Verb: strings.ToUpper(verb),
		Noun: strings.ToUpper(noun),
		Args: args,
		From: from,
	}, nil
}

var (
	tokenRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	hexIDRe = regexp.MustCompile(`^[0-9A-F]{2}$`)
)

func isToken(s string) bool {
	return tokenRe.MatchString(s)
}

func isHexID(s string) bool {
	return hexIDRe.MatchString(strings.ToUpper(s))
}

type Message struct {
	To   string
	Verb string
	Noun string
	Args []string
	From string
}

func (m *Message) String() string {
	parts := make([]string, 0, 4+len(m.Args))
	parts = append(parts, m.To, m.Verb, m.Noun)
	parts = append(parts, m.Args...)
	parts = append(parts, m.From)
	return strings.Join(parts, ":")
}

// Reply builds a response frame addressed back to the sender.
func (m *Message) Reply() *Message {
	return &Message{To: m.From, Noun: m.Noun}
}

func (m *Message) Error(reason string, args ...string) {
	m.Verb = "ERR"
	m.Noun = reason
	m.Args = args
}

func (m *Message) Ok(reason string, args ...string) {
	m.Verb = "OK"
	m.Noun = reason
	m.Args = args
}
