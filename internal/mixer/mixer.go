package mixer

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxVolume = 150

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

type stream struct {
	ID      int
	Volume  int
	AppName string
}

type fade struct {
	id   int
	from int
	to   int
}

// Runner executes a pactl subcommand and returns its stdout.
type Runner func(ctx context.Context, args ...string) ([]byte, error)

func pactl(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "pactl", args...).Output()
}

// Ducker fades PulseAudio sink inputs down while the assistant listens and
// restores them afterwards. Streams owned by the assistant are left alone.
type Ducker struct {
	mu        sync.Mutex
	active    bool
	self      []string
	original  map[int]int
	minVolume int

	run   Runner
	sleep func(time.Duration)
}

// New returns a ducker that skips streams whose application.name is in self
// and never lowers others below minVolume percent.
func New(self []string, minVolume int) *Ducker {
	return &Ducker{
		self:      append([]string(nil), self...),
		original:  make(map[int]int),
		minVolume: clampVolume(minVolume),
		run:       pactl,
		sleep:     time.Sleep,
	}
}

// DuckOthers fades every foreign stream to factor times its volume.
func (d *Ducker) DuckOthers(ctx context.Context, factor float64, dur time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return nil
	}

	streams, err := d.list(ctx)
	if err != nil {
		return err
	}

	d.original = make(map[int]int)
	var fades []fade

	for _, s := range streams {
		if d.isSelf(s) {
			continue
		}
		target := math.Max(float64(s.Volume)*factor, float64(d.minVolume))
		d.original[s.ID] = s.Volume
		fades = append(fades, fade{id: s.ID, from: s.Volume, to: clampVolume(int(math.Round(target)))})
	}

	if err := d.apply(ctx, fades, dur); err != nil {
		return err
	}
	d.active = true
	return nil
}

// UnduckOthers fades ducked streams back to their original volume. Streams
// that appeared after ducking are not touched.
func (d *Ducker) UnduckOthers(ctx context.Context, dur time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return nil
	}

	streams, err := d.list(ctx)
	if err != nil {
		return err
	}

	var fades []fade
	for _, s := range streams {
		orig, ok := d.original[s.ID]
		if !ok || d.isSelf(s) {
			continue
		}
		fades = append(fades, fade{id: s.ID, from: s.Volume, to: orig})
	}

	if err := d.apply(ctx, fades, dur); err != nil {
		return err
	}
	d.original = make(map[int]int)
	d.active = false
	return nil
}

func (d *Ducker) isSelf(s stream) bool {
	for _, name := range d.self {
		if s.AppName == name {
			return true
		}
	}
	return false
}

func (d *Ducker) list(ctx context.Context) ([]stream, error) {
	out, err := d.run(ctx, "list", "sink-inputs")
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}
	return parseSinkInputs(string(out)), nil
}

// apply steps every fade from its start to its target volume over dur.
func (d *Ducker) apply(ctx context.Context, fades []fade, dur time.Duration) error {
	if len(fades) == 0 {
		return nil
	}

	const minStep = 10 * time.Millisecond

	steps := 1
	if dur > 0 {
		steps = max(int(dur/minStep), 1)
	}

	for i := 0; i <= steps; i++ {
		if dur <= 0 && i == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		frac := float64(i) / float64(steps)
		for _, f := range fades {
			v := int(math.Round(float64(f.from) + float64(f.to-f.from)*frac))
			if err := d.set(ctx, f.id, v); err != nil {
				return err
			}
		}

		if i < steps && dur > 0 {
			d.sleep(dur / time.Duration(steps))
		}
	}
	return nil
}

func (d *Ducker) set(ctx context.Context, id, percent int) error {
	arg := fmt.Sprintf("%d%%", clampVolume(percent))
	if _, err := d.run(ctx, "set-sink-input-volume", strconv.Itoa(id), arg); err != nil {
		return fmt.Errorf("set volume id=%d: %w", id, err)
	}
	return nil
}

// parseSinkInputs reads `pactl list sink-inputs` output.
func parseSinkInputs(text string) []stream {
	parts := strings.Split(text, "Sink Input #")
	var res []stream

	for _, block := range parts[1:] {
		nl := strings.IndexByte(block, '\n')
		if nl <= 0 {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(block[:nl]))
		if err != nil {
			continue
		}

		s := stream{ID: id}
		for _, line := range strings.Split(block[nl+1:], "\n") {
			line = strings.TrimSpace(line)

			if strings.HasPrefix(line, "Volume:") && s.Volume == 0 {
				if m := percentRe.FindStringSubmatch(line); m != nil {
					s.Volume, _ = strconv.Atoi(m[1])
				}
			}
			if name, ok := strings.CutPrefix(line, "application.name = "); ok && s.AppName == "" {
				s.AppName = strings.Trim(name, `"`)
			}
		}

		if s.Volume == 0 && s.AppName == "" {
			continue
		}
		res = append(res, s)
	}
	return res
}

func clampVolume(v int) int {
	return min(max(v, 0), maxVolume)
}
