package logtail

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Level is the severity inferred from a log line.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

// Entry is one parsed line of the application log.
type Entry struct {
	Time  string
	Text  string
	Level Level
}

// Read returns at most maxLines from the end of the file at path. A missing
// file reads as empty.
func Read(path string, maxLines int) ([]string, error) {
	if maxLines <= 0 {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	ring := make([]string, maxLines)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	count := 0
	idx := 0
	for scanner.Scan() {
		ring[idx] = scanner.Text()
		idx = (idx + 1) % maxLines
		if count < maxLines {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	lines := make([]string, count)
	if count == maxLines {
		for i := range count {
			lines[i] = ring[(idx+i)%maxLines]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, nil
}

// Parse splits a line written by the standard logger with a prefix, for
// example "captable 2026/10/19 08:15:02 load: timeout".
func Parse(prefix, line string) Entry {
	rest := strings.TrimPrefix(line, prefix)
	e := Entry{Text: rest}
	fields := strings.SplitN(strings.TrimSpace(rest), " ", 3)
	if len(fields) == 3 && isDate(fields[0]) && isClock(fields[1]) {
		e.Time = fields[0] + " " + fields[1]
		e.Text = fields[2]
	}
	e.Level = Classify(e.Text)
	return e
}

// Classify guesses the severity of a log message from its wording.
func Classify(text string) Level {
	lower := strings.ToLower(text)
	for _, w := range []string{"error", "failed", "panic", "refused"} {
		if strings.Contains(lower, w) {
			return LevelError
		}
	}
	for _, w := range []string{"warn", "conflict", "canceled", "timeout", "retry", "skip"} {
		if strings.Contains(lower, w) {
			return LevelWarn
		}
	}
	return LevelInfo
}

func isDate(s string) bool {
	return len(s) == 10 && s[4] == '/' && s[7] == '/'
}

func isClock(s string) bool {
	return len(s) >= 8 && s[2] == ':' && s[5] == ':'
}
