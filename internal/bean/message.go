package bean

import "fmt"

// Severity orders messages; higher is worse.
type Severity int

const (
	Info Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Message annotates a bean, or one of its properties when Property is set.
type Message struct {
	Severity Severity
	Text     string
	Property string
}

func (m Message) String() string {
	if m.Property != "" {
		return fmt.Sprintf("%s: %s (%s)", m.Severity, m.Text, m.Property)
	}
	return fmt.Sprintf("%s: %s", m.Severity, m.Text)
}

// Worst returns the most severe message, preferring the earliest on ties.
func Worst(messages []Message) (Message, bool) {
	if len(messages) == 0 {
		return Message{}, false
	}
	worst := messages[0]
	for _, m := range messages[1:] {
		if m.Severity > worst.Severity {
			worst = m
		}
	}
	return worst, true
}
