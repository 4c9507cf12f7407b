package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"otis/audio"
	"otis/clipboard"
	"otis/controller"
	"otis/history"
	"otis/hotkey"
	"otis/log"
	"otis/notify"
	"otis/recorder"
	"otis/settings"
	"otis/transcriber"
	"otis/tray"
	"otis/vad"
)

var version = "dev"

type systemClipboard struct{}

func (systemClipboard) Copy(text string) error { return clipboard.Copy(text) }

func main() {
	langFlag := flag.String("lang", "", "transcription language override (ISO-639-1)")
	dbFlag := flag.String("db", "", "history database path (default: config dir)")
	logFlag := flag.String("logpath", "", "log directory (default: config dir)")
	debugFlag := flag.Bool("debug", false, "log token usage and network phase timings")
	keepAudioFlag := flag.Bool("keep-audio", false, "keep temp WAV files after transcription")
	versionFlag := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Println("otis", version)
		return
	}

	// Optional; API keys may live in the environment already.
	godotenv.Load()

	logDir, err := log.ResolveDir(*logFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "resolving log dir:", err)
		os.Exit(1)
	}
	log.SetDir(logDir)
	if err := log.Init(); err != nil {
		fmt.Fprintln(os.Stderr, "initializing log:", err)
		os.Exit(1)
	}
	defer log.Close()
	log.Info("otis " + version + " starting")

	dbPath := *dbFlag
	if dbPath == "" {
		dbPath = filepath.Join(logDir, "history.db")
	}
	store, err := history.Open(dbPath)
	if err != nil {
		log.Errorf("opening history: %v", err)
		fmt.Fprintln(os.Stderr, "opening history:", err)
		os.Exit(1)
	}
	defer store.Close()

	repo := settings.NewRepo(filepath.Join(logDir, "settings.ini"))
	cfg, err := repo.Load()
	if err != nil {
		log.Warnf("settings load: %v", err)
		cfg = settings.Default()
	}
	if *langFlag != "" {
		cfg.Language = *langFlag
		if err := repo.Save(cfg); err != nil {
			log.Warnf("settings save: %v", err)
		}
	}

	audioCtx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio init: %v", err)
		fmt.Fprintln(os.Stderr, "audio init:", err)
		os.Exit(1)
	}
	defer audioCtx.Close()

	capture, err := audioCtx.NewCapture(nil, audio.CaptureConfig{
		SampleRate: 16000,
		Channels:   1,
	})
	if err != nil {
		log.Errorf("opening capture device: %v", err)
		fmt.Fprintln(os.Stderr, "opening capture device:", err)
		os.Exit(1)
	}
	defer capture.Close()
	log.Info("capture device: " + capture.DeviceName())

	classifier, err := vad.NewWebRTC()
	if err != nil {
		log.Errorf("vad init: %v", err)
		fmt.Fprintln(os.Stderr, "vad init:", err)
		os.Exit(1)
	}
	det := vad.New(classifier, vad.DefaultConfig(), 16000)

	ctl := controller.New(capture, det, store, repo, notify.New(), systemClipboard{}, controller.Config{
		Recorder:  recorder.DefaultConfig(),
		KeepAudio: *keepAudioFlag,
		Debug:     *debugFlag,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	keys := hotkey.New()
	if err := keys.Register(); err != nil {
		// Tray control still works without the global key.
		log.Warnf("hotkey: %v", err)
	} else {
		defer keys.Unregister()
		go func() {
			for {
				select {
				case <-keys.Keydown():
					ctl.Start(ctx)
				case <-keys.Keyup():
					ctl.Stop()
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	wireTray(ctx, ctl, cfg)

	// Mirror controller state into the tray.
	go func() {
		ticker := time.NewTicker(150 * time.Millisecond)
		defer ticker.Stop()
		prev := controller.Idle
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			st := ctl.Status()
			if st == prev {
				continue
			}
			tray.SetRecording(st == controller.Recording)
			if st == controller.Idle {
				if err := ctl.LastError(); err != nil {
					tray.SetError(err.Error())
				} else if res := ctl.LastResult(); res != nil {
					tray.SetLastTranscription(res.Duration)
				}
				tray.RefreshHistory(historyEntries(ctl))
			}
			prev = st
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			tray.Quit()
		case <-tray.Done():
		}
	}()

	tray.Run()
	if n := ctl.Completed(); n > 0 {
		log.SessionEnd(int(n))
	}
	log.Info("otis exiting")
}

const historyMenuLen = 15

func historyEntries(ctl *controller.Controller) []tray.HistoryEntry {
	recs, err := ctl.History(historyMenuLen)
	if err != nil {
		log.Errorf("history list: %v", err)
		return nil
	}
	entries := make([]tray.HistoryEntry, 0, len(recs))
	for _, r := range recs {
		entries = append(entries, tray.HistoryEntry{
			ID:    r.ID,
			Title: controller.Preview(r.Text),
		})
	}
	return entries
}

func wireTray(ctx context.Context, ctl *controller.Controller, cfg settings.Settings) {
	notifier := notify.New()

	tray.OnRecord(
		func() { ctl.Start(ctx) },
		func() { ctl.Stop() },
	)
	tray.OnShowLast(func() {
		if res := ctl.LastResult(); res != nil {
			if err := clipboard.Copy(res.Text); err != nil {
				log.Errorf("clipboard: %v", err)
			}
			notifier.Notify("Otis", controller.Preview(res.Text))
		}
	})
	tray.SetHistory(historyEntries(ctl), func(id int64) {
		text, err := ctl.FullText(id)
		if err != nil {
			log.Errorf("history text: %v", err)
			return
		}
		if err := clipboard.Copy(text); err != nil {
			log.Errorf("clipboard: %v", err)
			return
		}
		notifier.Notify("Otis", "Copied: "+controller.Preview(text))
	})
	tray.OnClearHistory(func() {
		n, err := ctl.ClearHistoryText()
		if err != nil {
			log.Errorf("clearing history: %v", err)
			return
		}
		tray.RefreshHistory(nil)
		notifier.Notify("Otis", fmt.Sprintf("Cleared %d stored transcripts", n))
	})

	engines := []tray.Engine{
		{Name: transcriber.EngineWhisper, Label: "Whisper (local)", Available: true},
		{Name: transcriber.EngineGemini, Label: "Gemini", Available: os.Getenv("GEMINI_API_KEY") != ""},
		{Name: transcriber.EngineGroq, Label: "Groq", Available: os.Getenv("GROQ_API_KEY") != ""},
	}
	tray.SetEngines(engines, cfg.Engine, func(name string) {
		if err := ctl.UpdateSettings(func(s *settings.Settings) { s.Engine = name }); err != nil {
			log.Errorf("switching engine: %v", err)
		}
	})
	tray.SetModel(cfg.Model, func(model string) {
		if err := ctl.UpdateSettings(func(s *settings.Settings) { s.Model = model }); err != nil {
			log.Errorf("switching model: %v", err)
		}
	})
	tray.SetLanguage(cfg.Language, func(code string) {
		if err := ctl.UpdateSettings(func(s *settings.Settings) { s.Language = code }); err != nil {
			log.Errorf("switching language: %v", err)
		}
	})
	tray.SetTelemetry(cfg.Telemetry)
	tray.OnTelemetry(func(on bool) {
		if err := ctl.UpdateSettings(func(s *settings.Settings) { s.Telemetry = on }); err != nil {
			log.Errorf("toggling telemetry: %v", err)
		}
	})
}
