package session

import (
	"fmt"
	"io"
)

// Notification is a user-visible message.
type Notification struct {
	Title       string
	Description string
}

// ExpiredNotification is emitted once per credential expiry.
var ExpiredNotification = Notification{
	Title:       "Session expired",
	Description: "Your session has expired. Please sign in again.",
}

// Notifier displays notifications to the user.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// WriterNotifier prints notifications as single lines.
func WriterNotifier(w io.Writer) Notifier {
	return NotifierFunc(func(n Notification) {
		fmt.Fprintf(w, "%s: %s\n", n.Title, n.Description)
	})
}

// HardRedirect sends the user to path when no navigator is registered.
type HardRedirect func(path string)

// WriterRedirect is a HardRedirect that tells a terminal user where to go.
func WriterRedirect(w io.Writer) HardRedirect {
	return func(path string) {
		fmt.Fprintf(w, "Signed out. Continue at %s (run 'ckdreg auth login').\n", path)
	}
}
