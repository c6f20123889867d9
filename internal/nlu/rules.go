package nlu

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"sia/internal/device"
	"sia/internal/skills"
	"sia/internal/tasks"
)

var saveFailed = Notice{Text: tasks.SaveFailedText, Speech: tasks.SaveFailedSpeech}

// buildRules returns the dispatch table. Order is part of the contract:
// a later rule never sees input an earlier rule matched, so e.g. "open mail"
// belongs to the open rule and "read file" is the only way to reach the
// file-reader rule.
func (in *Interpreter) buildRules() []Rule {
	re := regexp.MustCompile
	return []Rule{
		{"general", re(`(general|general queries)`), in.general},
		{"realtime", re(`(realtime|realtime queries)`), in.realtime},
		{"automate", re(`(automate|automate queries)`), in.automate},
		{"search", re(`(search|find|look up)\s+(?:for\s+)?(.+)`), in.search},
		{"open", re(`(open|go to|start|launch|visit)\s+(.+)`), in.open},
		{"weather", re(`(check|show) weather (in )?(.+)`), in.weather},
		{"news-fetch", re(`(check|show) news`), in.newsFetch},
		{"post", re(`(post|tweet|share) (.+)`), in.post},
		{"email", re(`(check|open) (email|mail)`), in.email},
		{"video", re(`(play|watch) (.+) (video|movie)`), in.video},
		{"translate", re(`(translate) (.+) (to|into) (.+)`), in.translate},
		{"lights", re(`turn (on|off) lights`), in.lights},
		{"thermostat", re(`set thermostat to (\d+)`), in.thermostat},
		{"brightness-up", re(`(increase|turn up) brightness`), in.brightness(+device.Step)},
		{"brightness-down", re(`(decrease|turn down) brightness`), in.brightness(-device.Step)},
		{"volume-up", re(`(increase|turn up) volume`), in.volume(+device.Step)},
		{"volume-down", re(`(decrease|turn down) volume`), in.volume(-device.Step)},
		{"wifi", re(`turn (on|off) wifi`), in.wifi},
		{"reminder", re(`set reminder (.+)`), in.reminder},
		{"todo", re(`add (to do|todo) (.+)`), in.todo},
		{"alarm", re(`set alarm (.+?) (in (\d+) minutes|at (.+))`), in.alarm},
		{"play-music", re(`(play music|play song)`), in.playMusic},
		{"good-morning", re(`good morning`), in.goodMorning},
		{"timer", re(`set timer for (\d+) seconds`), in.timer},
		{"trivia", re(`(play trivia|trivia)`), in.skill(skills.Trivia)},
		{"joke", re(`(tell joke|joke)`), in.skill(skills.Joke)},
		{"fact", re(`(tell fact|fact)`), in.skill(skills.Fact)},
		{"news-skill", re(`(get news|news)`), in.skill(skills.News)},
		{"file-reader", re(`(read file|open file)`), in.fileReader},
	}
}

func (in *Interpreter) general(context.Context, Match) (Result, error) {
	return say("I can answer general questions or perform internet tasks. Try searching or opening a website!"), nil
}

func (in *Interpreter) realtime(context.Context, Match) (Result, error) {
	return say(fmt.Sprintf("The current time is %s. What's next?", istClock(in.now()))), nil
}

func (in *Interpreter) automate(context.Context, Match) (Result, error) {
	return say("I can automate internet tasks. Try opening a website, searching, or setting a reminder."), nil
}

func (in *Interpreter) search(_ context.Context, m Match) (Result, error) {
	query := strings.TrimSpace(m.Raw(2))
	return say(fmt.Sprintf("Searching for %s...", query), navigate(searchURL+escape(query))), nil
}

func (in *Interpreter) open(_ context.Context, m Match) (Result, error) {
	app := appKey(m.Group(2))

	if u, ok := appURLs[app]; ok {
		return say(fmt.Sprintf("Opening %s...", app), navigate(u)), nil
	}
	if text, ok := appWidgets[app]; ok {
		return say(text, widget(app)), nil
	}
	return say(fmt.Sprintf("Trying to open %s...", app), navigate(guessURL(app))), nil
}

func (in *Interpreter) weather(_ context.Context, m Match) (Result, error) {
	city := strings.TrimSpace(m.Raw(3))
	return say(fmt.Sprintf("Fetching weather for %s...", city), Effect{Kind: FetchWeather, City: city}), nil
}

func (in *Interpreter) newsFetch(context.Context, Match) (Result, error) {
	return say("Fetching top news...", Effect{Kind: FetchNews}), nil
}

func (in *Interpreter) post(_ context.Context, m Match) (Result, error) {
	content := strings.TrimSpace(m.Raw(2))
	return say(fmt.Sprintf("Opening Twitter to post: \"%s\"...", content), navigate(tweetURL+escape(content))), nil
}

func (in *Interpreter) email(context.Context, Match) (Result, error) {
	return say("Opening Gmail...", navigate(mailURL)), nil
}

func (in *Interpreter) video(_ context.Context, m Match) (Result, error) {
	query := strings.TrimSpace(m.Raw(2))
	return say(fmt.Sprintf("Searching for %s on YouTube...", query), navigate(videoURL+escape(query))), nil
}

func (in *Interpreter) translate(_ context.Context, m Match) (Result, error) {
	text := strings.TrimSpace(m.Raw(2))
	lang := strings.TrimSpace(m.Group(4))
	u := fmt.Sprintf(translateURL, escape(lang), escape(text))
	return say(fmt.Sprintf("Translating \"%s\" to %s...", text, lang), navigate(u)), nil
}

func (in *Interpreter) lights(_ context.Context, m Match) (Result, error) {
	state := m.Group(1)
	in.device.SetLights(state == "on")
	return say(fmt.Sprintf("Turning %s the lights...", state)), nil
}

func (in *Interpreter) thermostat(_ context.Context, m Match) (Result, error) {
	deg, err := strconv.Atoi(m.Group(1))
	if err != nil {
		return Result{}, fmt.Errorf("thermostat value: %w", err)
	}
	in.device.SetThermostat(deg)
	return say(fmt.Sprintf("Setting thermostat to %d degrees...", deg)), nil
}

func (in *Interpreter) brightness(delta int) func(context.Context, Match) (Result, error) {
	return func(context.Context, Match) (Result, error) {
		v := in.device.AdjustBrightness(delta)
		return say(fmt.Sprintf("Brightness %s to %d%%.", direction(delta), v)), nil
	}
}

func (in *Interpreter) volume(delta int) func(context.Context, Match) (Result, error) {
	return func(context.Context, Match) (Result, error) {
		v := in.device.AdjustVolume(delta)
		return say(fmt.Sprintf("Volume %s to %d%%.", direction(delta), v)), nil
	}
}

func (in *Interpreter) wifi(_ context.Context, m Match) (Result, error) {
	state := m.Group(1)
	in.device.SetWiFi(state == "on")
	return say(fmt.Sprintf("Wi-Fi turned %s.", state)), nil
}

func (in *Interpreter) reminder(ctx context.Context, m Match) (Result, error) {
	text := strings.TrimSpace(m.Raw(1))
	res := say("Reminder set: " + text)
	if err := in.tasks.AddReminder(ctx, text, in.now()); err != nil {
		res.Notices = append(res.Notices, saveFailed)
	}
	return res, nil
}

func (in *Interpreter) todo(ctx context.Context, m Match) (Result, error) {
	text := strings.TrimSpace(m.Raw(2))
	res := say("Added to your to-do list: " + text)
	if err := in.tasks.AddTodo(ctx, text); err != nil {
		res.Notices = append(res.Notices, saveFailed)
	}
	return res, nil
}

const invalidAlarmTime = `Invalid time format. Please say "set alarm [label] in [X] minutes".`

// maxAlarmMinutes keeps now+N minutes within time.Duration.
const maxAlarmMinutes = math.MaxInt64 / int64(time.Minute)

func (in *Interpreter) alarm(ctx context.Context, m Match) (Result, error) {
	label := strings.TrimSpace(m.Raw(1))

	var fireAt time.Time
	if mins := m.Group(3); mins != "" {
		n, err := strconv.Atoi(mins)
		if err != nil {
			return Result{}, fmt.Errorf("alarm minutes: %w", err)
		}
		if int64(n) > maxAlarmMinutes {
			return Result{}, fmt.Errorf("alarm minutes: %d out of range", n)
		}
		fireAt = in.now().Add(time.Duration(n) * time.Minute)
	} else {
		t, err := dateparse.ParseIn(strings.TrimSpace(m.Raw(4)), in.alarmLoc)
		if err != nil {
			return say(invalidAlarmTime), nil
		}
		fireAt = t
	}

	res := say(fmt.Sprintf("Alarm set for %s %s.", label, m.Raw(2)))
	if err := in.tasks.AddAlarm(ctx, label, fireAt); err != nil {
		res.Notices = append(res.Notices, saveFailed)
	}
	return res, nil
}

func (in *Interpreter) playMusic(context.Context, Match) (Result, error) {
	return say("Opening Spotify web player...", navigate(spotifyURL)), nil
}

func (in *Interpreter) goodMorning(context.Context, Match) (Result, error) {
	in.device.SetLights(true)
	return say(fmt.Sprintf("Good morning! The time is %s. Lights are on.", istClock(in.now()))), nil
}

func (in *Interpreter) timer(_ context.Context, m Match) (Result, error) {
	seconds, err := strconv.Atoi(m.Group(1))
	if err != nil {
		return Result{}, fmt.Errorf("timer seconds: %w", err)
	}
	text, err := in.skills.Run(skills.Timer, seconds)
	if err != nil {
		return Result{}, err
	}
	return say(text, Effect{Kind: StartTimer, Delay: time.Duration(seconds) * time.Second}), nil
}

func (in *Interpreter) skill(name string) func(context.Context, Match) (Result, error) {
	return func(context.Context, Match) (Result, error) {
		text, err := in.skills.Run(name, 0)
		if err != nil {
			return Result{}, err
		}
		return say(text), nil
	}
}

func (in *Interpreter) fileReader(context.Context, Match) (Result, error) {
	return say(appWidgets[WidgetFileReader], widget(WidgetFileReader)), nil
}

func (in *Interpreter) fallback(text string) Result {
	res := say(fmt.Sprintf("I didn't understand \"%s\". Searching for it...", text), navigate(searchURL+escape(text)))
	res.Rule = "fallback"
	return res
}

func say(text string, effects ...Effect) Result {
	return Result{Response: text, Effects: effects}
}

func navigate(u string) Effect {
	return Effect{Kind: Navigate, URL: u}
}

func widget(name string) Effect {
	return Effect{Kind: OpenWidget, Widget: name}
}

func direction(delta int) string {
	if delta < 0 {
		return "decreased"
	}
	return "increased"
}
