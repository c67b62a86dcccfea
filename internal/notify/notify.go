// Package notify delivers user-facing notifications for pipeline outcomes.
//
// Every fallible operation produces exactly one notification, success or
// failure. Concurrent operations notify independently; nothing is merged.
package notify

import "log"

// Notifier receives one message per completed operation.
type Notifier interface {
	Success(title, message string)
	Error(title, message string)
}

// LogNotifier writes notifications to the process log.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) Success(title, message string) {
	log.Printf("notice: %s: %s", title, message)
}

func (n *LogNotifier) Error(title, message string) {
	log.Printf("error: %s: %s", title, message)
}

// Discard drops all notifications. Useful in tests that assert on other effects.
type Discard struct{}

func (Discard) Success(string, string) {}
func (Discard) Error(string, string)   {}
