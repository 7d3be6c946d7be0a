package notify

import "time"

type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a user-facing toast message.
type Notice struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier is the toast sink the cart reports to.
type Notifier interface {
	Success(msg string)
	Info(msg string)
	Warning(msg string)
	Error(msg string)
}

type multi []Notifier

// Multi fans every notice out to all ns.
func Multi(ns ...Notifier) Notifier {
	return multi(ns)
}

func (m multi) Success(msg string) {
	for _, n := range m {
		n.Success(msg)
	}
}

func (m multi) Info(msg string) {
	for _, n := range m {
		n.Info(msg)
	}
}

func (m multi) Warning(msg string) {
	for _, n := range m {
		n.Warning(msg)
	}
}

func (m multi) Error(msg string) {
	for _, n := range m {
		n.Error(msg)
	}
}
