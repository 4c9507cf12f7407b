//go:build !darwin && !linux

package notify

type noopNotifier struct{}

func platformNotifier() Notifier {
	return noopNotifier{}
}

func (noopNotifier) Notify(title, message string) error {
	return nil
}
