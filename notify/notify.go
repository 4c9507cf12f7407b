// Package notify shows desktop notifications through the platform's
// native mechanism.
package notify

// Notifier delivers a short user-visible message.
type Notifier interface {
	Notify(title, message string) error
}

// New returns the platform notifier.
func New() Notifier {
	return platformNotifier()
}
