package nlu

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"

	"sia/internal/device"
	"sia/internal/skills"
	"sia/internal/tasks"
)

// Result is the outcome of interpreting one transcript.
type Result struct {
	Rule     string
	Response string
	// Speech replaces Response for playback when set.
	Speech  string
	Notices []Notice
	Effects []Effect
}

// Spoken is the text handed to speech playback.
func (r Result) Spoken() string {
	if r.Speech != "" {
		return r.Speech
	}
	return r.Response
}

// Notice is an extra message reported ahead of the response.
type Notice struct {
	Text   string
	Speech string
}

type EffectKind int

const (
	Navigate EffectKind = iota + 1
	OpenWidget
	FetchWeather
	FetchNews
	StartTimer
)

func (k EffectKind) String() string {
	switch k {
	case Navigate:
		return "navigate"
	case OpenWidget:
		return "widget"
	case FetchWeather:
		return "weather"
	case FetchNews:
		return "news"
	case StartTimer:
		return "timer"
	default:
		return fmt.Sprintf("effect(%d)", int(k))
	}
}

// Effect is a side effect the caller executes after dispatch.
type Effect struct {
	Kind   EffectKind
	URL    string
	Widget string
	City   string
	Delay  time.Duration
}

// Rule pairs a pattern with its handler. Patterns are tested with
// contains semantics against the lower-cased command.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Handle  func(ctx context.Context, m Match) (Result, error)
}

// Match carries the command a rule matched and its submatch indexes.
type Match struct {
	cmd  string
	text string
	idx  []int
}

// Group returns submatch i of the lower-cased command.
func (m Match) Group(i int) string {
	return m.slice(m.cmd, i)
}

// Raw returns submatch i with the speaker's original casing.
func (m Match) Raw(i int) string {
	return m.slice(m.text, i)
}

func (m Match) slice(s string, i int) string {
	if 2*i+1 >= len(m.idx) || m.idx[2*i] < 0 {
		return ""
	}
	return s[m.idx[2*i]:m.idx[2*i+1]]
}

type Options struct {
	Now func() time.Time
	// AlarmLocation is used for absolute alarm times without a zone.
	AlarmLocation *time.Location
}

type Interpreter struct {
	device *device.State
	tasks  *tasks.Store
	skills *skills.Registry

	now      func() time.Time
	alarmLoc *time.Location
	rules    []Rule
}

func NewInterpreter(dev *device.State, store *tasks.Store, reg *skills.Registry, opts Options) *Interpreter {
	in := &Interpreter{
		device:   dev,
		tasks:    store,
		skills:   reg,
		now:      opts.Now,
		alarmLoc: opts.AlarmLocation,
	}
	if in.now == nil {
		in.now = time.Now
	}
	if in.alarmLoc == nil {
		in.alarmLoc = time.Local
	}
	in.rules = in.buildRules()
	return in
}

// Rules lists rule names in evaluation order.
func (in *Interpreter) Rules() []string {
	names := make([]string, len(in.rules))
	for i, r := range in.rules {
		names[i] = r.Name
	}
	return names
}

// Interpret normalizes raw and runs the first matching rule. Failures never
// escape: they become an error response.
func (in *Interpreter) Interpret(ctx context.Context, raw string) (res Result) {
	cmd, text := Normalize(raw)

	defer func() {
		if r := recover(); r != nil {
			res = failure(fmt.Errorf("%v", r))
		}
	}()

	for _, rule := range in.rules {
		idx := rule.Pattern.FindStringSubmatchIndex(cmd)
		if idx == nil {
			continue
		}
		out, err := rule.Handle(ctx, Match{cmd: cmd, text: text, idx: idx})
		if err != nil {
			return failure(err)
		}
		out.Rule = rule.Name
		return out
	}

	return in.fallback(text)
}

var spaceRe = regexp.MustCompile(`[\s\p{Zs}]+`)

// hindiCommands maps whole spoken phrases to their English command.
var hindiCommands = map[string]string{
	"कैलकुलेटर खोलो":  "open calculator",
	"नोटपैड खोलो":     "open notepad",
	"यूट्यूब खोलो":    "open youtube",
	"वॉल्यूम बढ़ाओ":   "increase volume",
	"वॉल्यूम कम करो":  "decrease volume",
	"खोजो":            "search",
}

// Normalize trims, collapses whitespace and lower-cases raw. text is the
// same command with its casing preserved, when byte offsets still line up.
func Normalize(raw string) (cmd, text string) {
	text = spaceRe.ReplaceAllString(strings.TrimSpace(raw), " ")
	cmd = strings.ToLower(text)

	if alias, ok := hindiCommands[cmd]; ok {
		return alias, alias
	}
	if len(cmd) != len(text) {
		text = cmd
	}
	return cmd, text
}

func failure(err error) Result {
	return Result{
		Rule:     "error",
		Response: "Error processing command: " + err.Error(),
		Speech:   "Error processing command.",
	}
}

var ist = mustLoadLocation("Asia/Kolkata")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("load location %s: %v", name, err))
	}
	return loc
}

// istClock formats t as an en-US wall clock in Indian Standard Time.
func istClock(t time.Time) string {
	return t.In(ist).Format("3:04:05 PM")
}
