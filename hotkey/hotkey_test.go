package hotkey

import (
	"errors"
	"testing"
	"time"
)

func TestFakeDeliversKeyEvents(t *testing.T) {
	f := NewFake()
	if err := f.Register(); err != nil {
		t.Fatalf("Register: %v", err)
	}

	f.PressKey()
	select {
	case <-f.Keydown():
	case <-time.After(time.Second):
		t.Fatal("keydown not delivered")
	}

	f.ReleaseKey()
	select {
	case <-f.Keyup():
	case <-time.After(time.Second):
		t.Fatal("keyup not delivered")
	}

	if err := f.Unregister(); err != nil {
		t.Errorf("Unregister: %v", err)
	}
}

func TestFakeRegisterFailure(t *testing.T) {
	f := NewFake()
	f.RegisterErr = errors.New("display server unavailable")
	if err := f.Register(); err == nil {
		t.Fatal("expected Register to fail")
	}
}
