package notify

import (
	"fmt"
	"os/exec"
	"strings"
)

type darwinNotifier struct{}

func platformNotifier() Notifier {
	return &darwinNotifier{}
}

func (darwinNotifier) Notify(title, message string) error {
	// Quotes would terminate the AppleScript string literal.
	esc := func(s string) string {
		return strings.ReplaceAll(s, `"`, `\"`)
	}
	script := fmt.Sprintf(`display notification "%s" with title "%s"`, esc(message), esc(title))
	return exec.Command("osascript", "-e", script).Run()
}
