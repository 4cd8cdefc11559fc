// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/uniseg"
)

// Level classifies an attempt log entry.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// LogEntry is one step of a send.
type LogEntry struct {
	Time  time.Time `json:"time"`
	Level Level     `json:"level"`
	Text  string    `json:"text"`
}

// String renders the entry as "15:04:05.000 level text".
func (entry LogEntry) String() string {
	return fmt.Sprintf("%s %-7s %s", entry.Time.Format("15:04:05.000"), entry.Level, entry.Text)
}

// AttemptLog is the ordered trail of one send.
type AttemptLog []LogEntry

func (log *AttemptLog) add(at time.Time, level Level, format string, args ...any) {
	*log = append(*log, LogEntry{Time: at, Level: level, Text: fmt.Sprintf(format, args...)})
}

// String renders one entry per line.
func (log AttemptLog) String() string {
	var builder strings.Builder
	for _, entry := range log {
		builder.WriteString(entry.String())
		builder.WriteByte('\n')
	}
	return builder.String()
}

// PreviewLength is the number of user-perceived characters of the
// message kept in the leading log entry.
const PreviewLength = 50

// Preview shortens text to PreviewLength grapheme clusters, appending
// "..." when anything was cut.
func Preview(text string) string {
	graphemes := uniseg.NewGraphemes(text)
	count, end := 0, 0
	for graphemes.Next() {
		if count == PreviewLength {
			return text[:end] + "..."
		}
		_, end = graphemes.Positions()
		count++
	}
	return text
}
