package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	log "log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/browser"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	cli "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"sia/internal/alarm"
	"sia/internal/audio"
	"sia/internal/capture"
	"sia/internal/feed"
	"sia/internal/fetch"
	"sia/internal/ipc"
	"sia/internal/mixer"
	"sia/internal/notify"
	"sia/internal/presenter"
	"sia/internal/proxy"
	"sia/internal/sia"
	"sia/internal/tasks"
	"sia/internal/tts"
	"sia/pkg/audioconv"
	"sia/pkg/protocol"
	"sia/pkg/stt"
)

const (
	sweepPeriod = time.Second
	busShard    = "SIA"
	busReconn   = 5 * time.Second
)

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	logFile := cli.String("log-file", "", "Also write JSON logs to this rotating file")
	dbPath := cli.String("db", "sia.db", "SQLite task store, empty keeps tasks in memory")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks proxy address for outbound HTTP")
	sttKind := cli.String("stt", "whisper", "Transcriber: whisper or openai")
	modelPath := cli.StringP("model", "m", "third_party/whisper.cpp/models/ggml-base.en.bin", "Whisper model path")
	beepPath := cli.String("beep", "assets/beep.mp3", "Listening cue, empty disables")
	socket := cli.StringP("socket", "s", ipc.DefaultSocket, "Control socket path")
	feedAddr := cli.String("feed", "127.0.0.1:8093", "Transcript feed and metrics listen address, empty disables")
	busURL := cli.StringP("bus-url", "u", "", "Home bus websocket url, empty disables")
	alarmTZ := cli.String("alarm-tz", "Local", "Time zone for absolute alarm times")
	stdin := cli.Bool("stdin", false, "Read typed transcripts from stdin")
	noBrowser := cli.Bool("no-browser", false, "Log navigation instead of opening a browser")
	cli.Parse()

	logger, logCloser := newLogger(*logLevel, *logFile)
	defer logCloser.Close()
	log.SetDefault(logger)

	log.Info("Booting up")

	if err := godotenv.Load(*envFile); err != nil {
		log.Debug("No env file loaded", "path", *envFile, "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := time.LoadLocation(*alarmTZ)
	if err != nil {
		log.Error("Unknown alarm time zone", "tz", *alarmTZ, "err", err)
		os.Exit(1)
	}

	httpClient, err := proxy.NewClient(*proxyAddr)
	if err != nil {
		log.Error("Failed to dial socks proxy", "proxy", *proxyAddr, "err", err)
		os.Exit(1)
	}

	store, storeCloser, err := openStore(ctx, *dbPath)
	if err != nil {
		log.Warn("Task store unavailable, continuing in memory", "err", err)
	}
	defer func() {
		if err := storeCloser.Close(); err != nil {
			log.Warn("Failed to close task store", "err", err)
		}
	}()

	rec := audio.NewRecorder(audio.DefaultEndpoint())
	if err := rec.Init(); err != nil {
		log.Error("Failed to init audio", "err", err)
		os.Exit(1)
	}
	defer rec.Close()
	log.Debug("Loaded recorder")

	tr, closeTr, err := newTranscriber(*sttKind, *modelPath, httpClient)
	if err != nil {
		log.Error("Failed to init transcriber", "stt", *sttKind, "err", err)
		os.Exit(1)
	}
	defer closeTr()
	log.Debug("Loaded transcriber", "stt", *sttKind)

	var cue func()
	if *beepPath != "" {
		beeper := notify.NewBeeper(*beepPath)
		cue = func() {
			if err := beeper.Play(); err != nil {
				log.Debug("Cue failed", "err", err)
			}
		}
	}

	navigate := browser.OpenURL
	if *noBrowser {
		navigate = nil
	}

	hub := feed.NewHub(feed.DefaultBacklog, logger.With("component", "feed"))
	ducker := mixer.New([]string{"sia", "espeak-ng"}, 10)

	assistant, err := sia.New(ctx, sia.Config{
		Store:    store,
		Voice:    tts.New(),
		Sinks:    []presenter.Sink{hub},
		Weather:  fetch.NewWeather(httpClient, os.Getenv("OPENWEATHER_API_KEY")),
		News:     fetch.NewNews(httpClient, os.Getenv("NEWSAPI_KEY")),
		Navigate: navigate,
		NewRecognizer: func(ev capture.Events, pb capture.Playback) capture.Recognizer {
			return capture.NewSession(capture.SessionConfig{
				Recorder:    rec,
				Transcriber: tr,
				Events:      ev,
				Ducker:      ducker,
				Playback:    pb,
				Cue:         cue,
				Logger:      logger.With("component", "session"),
			})
		},
		Transcriber: tr,
		Decode: func(ctx context.Context, path string) ([]float32, error) {
			return audioconv.DecodeFile(ctx, path, audioconv.Options{MaxSamples: 60 * audioconv.TargetRate})
		},
		Notify:        alarm.DesktopNotify,
		AlarmLocation: loc,
		Logger:        logger,
	})
	if err != nil {
		log.Error("Failed to build assistant", "err", err)
		os.Exit(1)
	}

	control, err := ipc.Listen(*socket, assistant.Control, logger.With("component", "ipc"))
	if err != nil {
		log.Error("Failed ipc server", "socket", *socket, "err", err)
		os.Exit(1)
	}

	stopSweep, err := alarm.Schedule(sweepPeriod, func() {
		assistant.Post(func() { assistant.Sweep(time.Now()) })
	})
	if err != nil {
		log.Error("Failed to schedule alarm sweep", "err", err)
		os.Exit(1)
	}
	defer stopSweep()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		assistant.Run(gctx)
		return nil
	})
	g.Go(func() error { return control.Serve(gctx) })

	if *feedAddr != "" {
		serveFeed(gctx, g, *feedAddr, hub)
	}
	if *busURL != "" {
		connectBus(gctx, g, *busURL, assistant, logger)
	}
	if *stdin {
		go readTranscripts(gctx, assistant)
	}

	log.Info("Boot up - successful", "socket", *socket, "feed", *feedAddr)

	if err := g.Wait(); err != nil {
		log.Error("Daemon failed", "err", err)
		os.Exit(1)
	}
	log.Info("Shut down")
}

// openStore returns a usable store even on error. The closer releases the
// database, checkpointing its WAL.
func openStore(ctx context.Context, path string) (*tasks.Store, io.Closer, error) {
	noop := io.NopCloser(nil)
	if path == "" {
		store, err := tasks.Open(ctx, tasks.NewMemory())
		return store, noop, err
	}
	db, err := tasks.OpenDB(path)
	if err != nil {
		store, _ := tasks.Open(ctx, tasks.NewMemory())
		return store, noop, err
	}
	store, err := tasks.Open(ctx, tasks.NewSQLite(db))
	return store, db, err
}

func newTranscriber(kind, modelPath string, httpClient *http.Client) (capture.Transcriber, func(), error) {
	switch kind {
	case "whisper":
		w, err := stt.NewWhisper(modelPath, stt.Options{Language: "en"})
		if err != nil {
			return nil, nil, err
		}
		return w, func() { w.Close() }, nil
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, nil, errors.New("OPENAI_API_KEY not set")
		}
		return capture.NewCloud(apiKey, httpClient), func() {}, nil
	default:
		return nil, nil, errors.New("unknown transcriber " + kind)
	}
}

func serveFeed(ctx context.Context, g *errgroup.Group, addr string, hub *feed.Hub) {
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
}

// connectBus mirrors device state onto the home bus. The bus is optional:
// failing to reach it only disables mirroring.
func connectBus(ctx context.Context, g *errgroup.Group, url string, a *sia.Assistant, logger *log.Logger) {
	bus := sia.NewBus(a, logger.With("component", "bus"))
	ptcl, err := protocol.NewProtocol(ctx, protocol.PtclConfig{
		Shard:   busShard,
		Url:     url,
		Reconn:  busReconn,
		EmitOut: bus.Handle,
	})
	if err != nil {
		log.Warn("Home bus unavailable", "url", url, "err", err)
		return
	}
	bus.Connect(ptcl)
	log.Info("Connected to home bus", "url", url)

	g.Go(func() error {
		ptcl.Run(ctx)
		return nil
	})
}

// readTranscripts dispatches every stdin line as a typed transcript.
func readTranscripts(ctx context.Context, a *sia.Assistant) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if ctx.Err() != nil || !a.Post(func() { a.HandleTranscript(line) }) {
			return
		}
	}
	if err := sc.Err(); err != nil {
		log.Warn("Stdin read failed", "err", err)
	}
}
