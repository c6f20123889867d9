package main

import (
	"context"
	"fmt"
	log "log/slog"
	"os"
	"os/signal"

	"github.com/charmbracelet/lipgloss"
	"github.com/lmittmann/tint"
	cli "github.com/spf13/pflag"

	"sia/internal/feed"
	"sia/internal/presenter"
)

var (
	userStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2563EB"))
	siaStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	statusStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#6B7280"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	widgetStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func main() {
	url := cli.StringP("url", "u", "ws://127.0.0.1:8093/ws", "Transcript feed url")
	showStatus := cli.Bool("status", true, "Show status line changes")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stderr, &tint.Options{Level: log.LevelInfo})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c, err := feed.Dial(ctx, *url)
	if err != nil {
		log.Error("Failed to connect to feed", "url", *url, "err", err)
		os.Exit(1)
	}
	go func() {
		<-ctx.Done()
		c.Close()
	}()

	for {
		e, err := c.Read()
		if err != nil {
			if ctx.Err() == nil {
				log.Error("Feed closed", "err", err)
				os.Exit(1)
			}
			return
		}
		if e.Kind == presenter.KindStatus && !*showStatus {
			continue
		}
		fmt.Println(render(e))
	}
}

func render(e presenter.Entry) string {
	stamp := e.At.Local().Format("15:04:05")

	switch e.Kind {
	case presenter.KindStatus:
		if e.Error {
			return stamp + " " + errStyle.Render(e.Text)
		}
		return stamp + " " + statusStyle.Render(e.Text)

	case presenter.KindWidget:
		body := "[" + e.Widget + "]"
		if e.Text != "" {
			body += "\n" + e.Text
		}
		return stamp + "\n" + widgetStyle.Render(body)

	default:
		switch e.Speaker {
		case presenter.SpeakerUser:
			return stamp + " " + userStyle.Render(e.Speaker+":") + " " + e.Text
		case presenter.SpeakerSia:
			return stamp + " " + siaStyle.Render(e.Speaker+":") + " " + e.Text
		default:
			return stamp + " " + e.Text
		}
	}
}
