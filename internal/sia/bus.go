package sia

import (
	log "log/slog"
	"strconv"
	"sync"

	"sia/internal/device"
	"sia/pkg/protocol"
)

// BusHome is the shard that receives device changes.
const BusHome = "HOME"

// Transmitter sends frames on the home bus.
type Transmitter interface {
	Transmit(v any) error
}

// Bus mirrors device changes onto the home bus and answers GET queries
// for device values.
type Bus struct {
	a   *Assistant
	log *log.Logger

	mu sync.Mutex
	tx Transmitter
}

func NewBus(a *Assistant, logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.Default()
	}
	return &Bus{a: a, log: logger}
}

// Connect starts mirroring device changes through tx.
func (b *Bus) Connect(tx Transmitter) {
	b.mu.Lock()
	b.tx = tx
	b.mu.Unlock()
	b.a.Post(func() { b.a.Attach(b) })
}

// Publish implements device.Mirror.
func (b *Bus) Publish(c device.Change) {
	msg := protocol.Message{To: BusHome, Verb: "SET", Noun: c.Noun, Args: []string{c.Value}}
	if err := b.transmit(msg); err != nil {
		b.log.Warn("Failed to mirror device change", "noun", c.Noun, "err", err)
	}
}

// Handle receives frames addressed to this shard. It is safe to call from
// the protocol reader goroutine.
func (b *Bus) Handle(msg *protocol.Message) {
	b.log.Debug("Bus frame", "frame", msg.String())

	switch msg.Verb {
	case "GET":
		b.a.Post(func() {
			reply := msg.Reply()
			if v, ok := deviceValue(b.a.dev.Snapshot(), msg.Noun); ok {
				reply.Ok(msg.Noun, v)
			} else {
				reply.Error("UNKNOWN", msg.Noun)
			}
			if err := b.transmit(*reply); err != nil {
				b.log.Warn("Failed to answer bus query", "noun", msg.Noun, "err", err)
			}
		})
	case "OK", "ERR":
	default:
		b.log.Debug("Ignoring bus verb", "verb", msg.Verb)
	}
}

func (b *Bus) transmit(msg protocol.Message) error {
	b.mu.Lock()
	tx := b.tx
	b.mu.Unlock()
	if tx == nil {
		return nil
	}
	return tx.Transmit(msg)
}

func deviceValue(s device.State, noun string) (string, bool) {
	switch noun {
	case "LIGHTS":
		return onOff(s.Lights), true
	case "WIFI":
		return onOff(s.WiFi), true
	case "BRIGHTNESS":
		return strconv.Itoa(s.Brightness), true
	case "VOLUME":
		return strconv.Itoa(s.Volume), true
	case "THERMOSTAT":
		return strconv.Itoa(s.Thermostat), true
	default:
		return "", false
	}
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
