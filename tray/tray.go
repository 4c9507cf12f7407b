// Package tray renders the menu bar item: record toggle, recent
// transcriptions, engine/model/language selection, and the telemetry
// switch. Callbacks are registered before Run and fire on the systray's
// goroutines.
package tray

import (
	"fmt"
	"sync"
	"time"

	"fyne.io/systray"
)

// Engine is one selectable transcription backend.
type Engine struct {
	Name      string
	Label     string
	Available bool // false when the backend's credential is missing
}

type Language struct {
	Code  string // ISO-639-1, "" = auto-detect
	Label string
}

var Languages = []Language{
	{"", "Auto-detect"},
	{"de", "German"},
	{"en", "English"},
	{"es", "Spanish"},
	{"fr", "French"},
	{"it", "Italian"},
	{"ja", "Japanese"},
	{"ko", "Korean"},
	{"nl", "Dutch"},
	{"pl", "Polish"},
	{"pt", "Portuguese"},
	{"ru", "Russian"},
	{"tr", "Turkish"},
	{"zh", "Chinese"},
}

// WhisperModels are the local model variants offered in the menu.
var WhisperModels = []string{"tiny", "base", "small", "medium", "large-v3"}

var (
	quitCh    = make(chan struct{})
	closeOnce sync.Once

	recordFn   func()
	stopFn     func()
	showLastFn func()
	clearFn    func()

	recording bool

	engineMu  sync.Mutex
	engines   []Engine
	engineSel string
	engineCb  func(string)

	modelSel string
	modelCb  func(string)

	langCode string
	langCb   func(string)

	telemetryOn bool
	telemetryCb func(bool)

	historyMu      sync.Mutex
	historyEntries []HistoryEntry
	historyCb      func(int64)
	historyReady   = make(chan struct{})

	mRecord    *systray.MenuItem
	mLast      *systray.MenuItem
	mHistory   *systray.MenuItem
	mEngines   *systray.MenuItem
	mModels    *systray.MenuItem
	mTelemetry *systray.MenuItem

	engineItems  []*systray.MenuItem
	modelItems   []*systray.MenuItem
	langItems    []*systray.MenuItem
	historyItems []*systray.MenuItem
)

// HistoryEntry is one row of the History submenu.
type HistoryEntry struct {
	ID    int64
	Title string
}

func OnRecord(start, stop func()) { recordFn = start; stopFn = stop }
func OnShowLast(fn func())        { showLastFn = fn }
func OnClearHistory(fn func())    { clearFn = fn }
func OnTelemetry(fn func(bool))   { telemetryCb = fn }
func SetTelemetry(on bool)        { telemetryOn = on }

func SetEngines(list []Engine, selected string, onSwitch func(string)) {
	engineMu.Lock()
	engines = list
	engineSel = selected
	engineCb = onSwitch
	engineMu.Unlock()
}

func SetModel(selected string, onSwitch func(string)) {
	modelSel = selected
	modelCb = onSwitch
}

func SetLanguage(code string, onSwitch func(string)) {
	langCode = code
	langCb = onSwitch
}

func SetHistory(entries []HistoryEntry, onSelect func(int64)) {
	historyMu.Lock()
	historyEntries = entries
	historyCb = onSelect
	historyMu.Unlock()
}

// RefreshHistory replaces the History submenu contents. Existing items
// are retitled and surplus ones hidden; the menu only ever grows by the
// high-water mark of entries shown.
func RefreshHistory(entries []HistoryEntry) {
	<-historyReady

	historyMu.Lock()
	defer historyMu.Unlock()

	historyEntries = entries
	for i, item := range historyItems {
		if i < len(entries) {
			item.SetTitle(entries[i].Title)
			item.Show()
		} else {
			item.Hide()
		}
	}
	for i := len(historyItems); i < len(entries); i++ {
		historyItems = append(historyItems, addHistoryItem(i, entries[i].Title))
	}
}

func addHistoryItem(idx int, title string) *systray.MenuItem {
	item := mHistory.AddSubMenuItem(title, "Copy this transcription")
	onClick(item, func() {
		historyMu.Lock()
		var id int64 = -1
		if idx < len(historyEntries) {
			id = historyEntries[idx].ID
		}
		cb := historyCb
		historyMu.Unlock()
		if cb != nil && id >= 0 {
			cb(id)
		}
	})
	return item
}

// SetRecording flips the icon and the record item between states.
// Backend switching is locked out while a session is live.
func SetRecording(rec bool) {
	recording = rec
	if rec {
		systray.SetIcon(iconRec)
		if mRecord != nil {
			mRecord.SetTitle("Stop Recording")
		}
		if mEngines != nil {
			mEngines.Disable()
		}
	} else {
		systray.SetTemplateIcon(iconIdle, iconIdle)
		if mRecord != nil {
			mRecord.SetTitle("Start Recording")
		}
		if mEngines != nil {
			mEngines.Enable()
		}
	}
}

// SetLastTranscription enables the "show last" entry with a hint of the
// content.
func SetLastTranscription(dur time.Duration) {
	if mLast != nil {
		mLast.SetTitle(fmt.Sprintf("Show Last Transcription (%.1fs)", dur.Seconds()))
		mLast.Enable()
	}
}

func SetError(msg string) {
	systray.SetTooltip("otis – " + msg)
	go func() {
		time.Sleep(10 * time.Second)
		systray.SetTooltip("otis – push to talk")
	}()
}

func Quit() {
	closeOnce.Do(func() { close(quitCh) })
	systray.Quit()
}

// Run drives the systray loop on the calling goroutine, which must be
// the main one on macOS. It returns after Quit.
func Run() {
	systray.Run(onReady, onExit)
}

// Done is closed when the tray exits.
func Done() <-chan struct{} {
	return quitCh
}

func onClick(item *systray.MenuItem, fn func()) {
	go func() {
		for range item.ClickedCh {
			fn()
		}
	}()
}

func onReady() {
	systray.SetTemplateIcon(iconIdle, iconIdle)
	systray.SetTooltip("otis – push to talk")

	mLast = systray.AddMenuItem("Show Last Transcription", "Show the most recent transcription")
	mLast.Disable()
	onClick(mLast, func() {
		if showLastFn != nil {
			showLastFn()
		}
	})

	mHistory = systray.AddMenuItem("History", "Recent transcriptions")
	historyMu.Lock()
	historyItems = make([]*systray.MenuItem, 0, len(historyEntries))
	for i, e := range historyEntries {
		historyItems = append(historyItems, addHistoryItem(i, e.Title))
	}
	historyMu.Unlock()
	close(historyReady)

	systray.AddSeparator()

	mRecord = systray.AddMenuItem("Start Recording", "Start or stop recording")
	onClick(mRecord, func() {
		if recording {
			if stopFn != nil {
				stopFn()
			}
		} else {
			if recordFn != nil {
				recordFn()
			}
		}
	})

	mSettings := systray.AddMenuItem("Settings", "Settings")

	engineMu.Lock()
	if len(engines) > 0 {
		mEngines = mSettings.AddSubMenuItem("Engine", "Select transcription engine")
		engineItems = make([]*systray.MenuItem, 0, len(engines))
		for i, e := range engines {
			idx := i
			title := e.Label
			if !e.Available {
				title += " (no API key)"
			}
			item := mEngines.AddSubMenuItemCheckbox(title, title, e.Name == engineSel)
			if !e.Available {
				item.Disable()
			}
			onClick(item, func() {
				engineMu.Lock()
				eng := engines[idx]
				cb := engineCb
				engineMu.Unlock()
				if !eng.Available || cb == nil {
					return
				}
				cb(eng.Name)
				engineMu.Lock()
				for j, it := range engineItems {
					if j == idx {
						it.Check()
					} else {
						it.Uncheck()
					}
				}
				engineMu.Unlock()
			})
			engineItems = append(engineItems, item)
		}
	}
	engineMu.Unlock()

	mModels = mSettings.AddSubMenuItem("Whisper Model", "Select the local model variant")
	modelItems = make([]*systray.MenuItem, 0, len(WhisperModels))
	for i, m := range WhisperModels {
		idx := i
		item := mModels.AddSubMenuItemCheckbox(m, m, m == modelSel)
		onClick(item, func() {
			for j, it := range modelItems {
				if j == idx {
					it.Check()
				} else {
					it.Uncheck()
				}
			}
			if modelCb != nil {
				modelCb(WhisperModels[idx])
			}
		})
		modelItems = append(modelItems, item)
	}

	mLanguage := mSettings.AddSubMenuItem("Language", "Select transcription language")
	langItems = make([]*systray.MenuItem, 0, len(Languages))
	for i, lang := range Languages {
		idx := i
		item := mLanguage.AddSubMenuItemCheckbox(lang.Label, lang.Label, lang.Code == langCode)
		onClick(item, func() {
			for j, it := range langItems {
				if j == idx {
					it.Check()
				} else {
					it.Uncheck()
				}
			}
			if langCb != nil {
				langCb(Languages[idx].Code)
			}
		})
		langItems = append(langItems, item)
	}

	mTelemetry = mSettings.AddSubMenuItemCheckbox("Usage Telemetry", "Store anonymous usage metrics", telemetryOn)
	onClick(mTelemetry, func() {
		if mTelemetry.Checked() {
			mTelemetry.Uncheck()
		} else {
			mTelemetry.Check()
		}
		if telemetryCb != nil {
			telemetryCb(mTelemetry.Checked())
		}
	})

	mClear := mSettings.AddSubMenuItem("Clear History Text", "Delete stored transcript text")
	onClick(mClear, func() {
		if clearFn != nil {
			clearFn()
		}
	})

	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Quit otis")
	onClick(mQuit, Quit)
}

func onExit() {
	closeOnce.Do(func() { close(quitCh) })
}
