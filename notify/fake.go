package notify

import "sync"

// Fake records notifications for tests.
type Fake struct {
	mu       sync.Mutex
	messages []string
}

func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) Notify(title, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, title+": "+message)
	return nil
}

func (f *Fake) Messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.messages))
	copy(out, f.messages)
	return out
}
