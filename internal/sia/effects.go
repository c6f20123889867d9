package sia

import (
	"context"
	"time"

	"sia/internal/metrics"
	"sia/internal/nlu"
)

func (a *Assistant) execute(e nlu.Effect) {
	switch e.Kind {
	case nlu.Navigate:
		if a.cfg.Navigate == nil {
			a.log.Info("Navigation disabled", "url", e.URL)
			return
		}
		if err := a.cfg.Navigate(e.URL); err != nil {
			a.log.Warn("Failed to open URL", "url", e.URL, "err", err)
		}

	case nlu.OpenWidget:
		a.widgets[e.Widget] = true
		a.out.Widget(e.Widget, "")

	case nlu.FetchWeather:
		if a.cfg.Weather == nil {
			a.log.Warn("No weather source configured")
			return
		}
		city := e.City
		a.fetch("weather", func(ctx context.Context) (string, error) {
			return a.cfg.Weather.Lookup(ctx, city)
		})

	case nlu.FetchNews:
		if a.cfg.News == nil {
			a.log.Warn("No news source configured")
			return
		}
		a.fetch("news", a.cfg.News.Headline)

	case nlu.StartTimer:
		time.AfterFunc(e.Delay, func() {
			a.Post(func() { a.out.Say(TimerFinished) })
		})

	default:
		a.log.Warn("Unknown effect", "kind", e.Kind)
	}
}

// fetch runs lookup off the loop and posts its sentence back. Results may
// land after later commands.
func (a *Assistant) fetch(kind string, lookup func(ctx context.Context) (string, error)) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, fetchTimeout)
		defer cancel()

		start := time.Now()
		text, err := lookup(ctx)
		metrics.FetchLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		if err != nil {
			a.log.Warn("Lookup failed", "kind", kind, "err", err)
		}
		if text == "" {
			return
		}
		a.Post(func() { a.out.Say(text) })
	}()
}
