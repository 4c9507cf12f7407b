package notify

import "os/exec"

type linuxNotifier struct{}

func platformNotifier() Notifier {
	return &linuxNotifier{}
}

func (linuxNotifier) Notify(title, message string) error {
	return exec.Command("notify-send", title, message).Run()
}
