// Package hotkey registers the global push-to-talk key.
package hotkey

import (
	"fmt"

	hk "golang.design/x/hotkey"
)

// Listener delivers global key events. Keydown starts a recording,
// keyup ends it.
type Listener interface {
	Register() error
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
	Unregister() error
}

// globalKey binds Ctrl+Shift+Space system-wide.
type globalKey struct {
	hk   *hk.Hotkey
	down chan struct{}
	up   chan struct{}
	stop chan struct{}
}

func New() Listener {
	return &globalKey{
		down: make(chan struct{}, 1),
		up:   make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
}

func (g *globalKey) Register() error {
	g.hk = hk.New([]hk.Modifier{hk.ModCtrl, hk.ModShift}, hk.KeySpace)
	if err := g.hk.Register(); err != nil {
		return fmt.Errorf("registering global hotkey: %w", err)
	}
	go g.pump()
	return nil
}

func (g *globalKey) pump() {
	for {
		select {
		case <-g.hk.Keydown():
			select {
			case g.down <- struct{}{}:
			default:
			}
		case <-g.hk.Keyup():
			select {
			case g.up <- struct{}{}:
			default:
			}
		case <-g.stop:
			return
		}
	}
}

func (g *globalKey) Keydown() <-chan struct{} { return g.down }
func (g *globalKey) Keyup() <-chan struct{}   { return g.up }

func (g *globalKey) Unregister() error {
	close(g.stop)
	return g.hk.Unregister()
}
