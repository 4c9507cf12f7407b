package hotkey

// FakeListener drives key events from tests.
type FakeListener struct {
	down chan struct{}
	up   chan struct{}

	RegisterErr error
}

func NewFake() *FakeListener {
	return &FakeListener{
		down: make(chan struct{}, 1),
		up:   make(chan struct{}, 1),
	}
}

func (f *FakeListener) Register() error {
	return f.RegisterErr
}

func (f *FakeListener) Keydown() <-chan struct{} { return f.down }
func (f *FakeListener) Keyup() <-chan struct{}   { return f.up }

func (f *FakeListener) Unregister() error { return nil }

func (f *FakeListener) PressKey()   { f.down <- struct{}{} }
func (f *FakeListener) ReleaseKey() { f.up <- struct{}{} }
