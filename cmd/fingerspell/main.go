package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/ayusman/fingerspell/internal/app"
	"github.com/ayusman/fingerspell/internal/assessment"
	"github.com/ayusman/fingerspell/internal/config"
	"github.com/ayusman/fingerspell/internal/hook"
	"github.com/ayusman/fingerspell/internal/log"
	"github.com/ayusman/fingerspell/internal/overlay"
	"github.com/ayusman/fingerspell/internal/predict"
	"github.com/ayusman/fingerspell/internal/publish"
	"github.com/ayusman/fingerspell/internal/sampling"
	"github.com/ayusman/fingerspell/internal/server"
	"github.com/ayusman/fingerspell/internal/store"
	"github.com/ayusman/fingerspell/internal/tray"
)

const hookTimeout = 2 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatal(log.Fields{"error": err.Error()}, "failed to load config")
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatal(log.Fields{"dir": cfg.DataDir, "error": err.Error()}, "failed to create data directory")
	}
	log.Init(log.Options{Level: cfg.LogLevel, Dir: cfg.LogDir()})
	log.Info(log.Fields{"predict_url": cfg.PredictURL, "every": cfg.SampleEvery}, "Fingerspell - ASL fingerspelling tutor")

	st, err := store.New(cfg.DBPath())
	if err != nil {
		log.Fatal(log.Fields{"path": cfg.DBPath(), "error": err.Error()}, "failed to initialize store")
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracker := assessment.NewTracker(st, cfg.MinConfidence, nil)

	hooks := hook.NewManager(cfg.HookDir, hook.NewExecutor(hookTimeout))
	if err := hooks.Discover(); err != nil {
		log.Warn(log.Fields{"dir": cfg.HookDir, "error": err.Error()}, "hook discovery failed")
	}
	go hooks.Run(ctx)

	hub := server.NewHub()
	caption := &overlay.Caption{}
	frames := overlay.NewFrameBuffer()

	displays := []publish.Display{caption}
	var menu *tray.Tray
	if cfg.Tray {
		menu = tray.New()
		displays = append(displays, menu)
	}
	publisher := publish.New(displays, publish.Chain(hub.Notify, tracker.Record, hooks.Notify))

	client := predict.NewClient(cfg.PredictURL, nil)
	gate := sampling.NewGate(sampling.Config{Every: cfg.SampleEvery, Timeout: cfg.RequestTimeout}, client, publisher)

	pipeline := app.New(app.Config{
		Gate:      gate,
		Frames:    frames,
		Caption:   caption,
		CameraID:  cfg.CameraID,
		FPS:       cfg.FPS,
		ScriptDir: cfg.ScriptDir,
	})
	if err := pipeline.Start(ctx); err != nil {
		log.Error(log.Fields{"camera": cfg.CameraID, "error": err.Error()}, "pipeline not started, serving lessons only")
	}

	webDir := cfg.WebDir
	if webDir == "" {
		webDir = findWebDir(cfg.DataDir)
	}
	if webDir != "" {
		log.Info(log.Fields{"dir": webDir}, "serving static files")
	}

	srv := server.New(server.Config{
		StaticDir:     webDir,
		StreamFPS:     cfg.FPS,
		MinConfidence: cfg.MinConfidence,
		Frames:        frames,
		Hub:           hub,
		Stats:         gate,
		Predictor:     client,
		Store:         st,
		Tracker:       tracker,
	})

	serveErr := make(chan error, 1)
	go func() {
		log.Info(log.Fields{"addr": cfg.Listen}, "starting server")
		serveErr <- srv.ListenAndServe(ctx, cfg.Listen)
	}()

	if menu != nil {
		menu.OnToggle(pipeline.SetEnabled)
		menu.OnOpen(func() { openBrowser(tutorURL(cfg.Listen)) })
		menu.OnQuit(stop)
		go func() {
			<-ctx.Done()
			menu.Quit()
		}()
		// The tray loop must own the main goroutine on macOS.
		menu.Run()
		stop()
	}

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error(log.Fields{"error": err.Error()}, "server failed")
		}
	case <-ctx.Done():
		<-serveErr
	}

	if err := pipeline.Stop(); err != nil {
		log.Warn(log.Fields{"error": err.Error()}, "shutdown errors")
	}
	log.Info(gateFields(gate.Stats()), "bye")
}

func gateFields(s sampling.Stats) log.Fields {
	return log.Fields{"events": s.Events, "requests": s.Requests, "busy": s.Busy, "failures": s.Failures}
}

// findWebDir checks "web", "../web", "../../web" and <dataDir>/web and
// returns the first existing directory, or "".
func findWebDir(dataDir string) string {
	for _, p := range []string{"web", "../web", "../../web", filepath.Join(dataDir, "web")} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}

func tutorURL(listen string) string {
	if strings.HasPrefix(listen, ":") {
		listen = "localhost" + listen
	}
	return "http://" + listen + "/"
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Warn(log.Fields{"url": url, "error": err.Error()}, "failed to open browser")
	}
}
