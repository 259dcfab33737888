package invoke

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// Event is one structured progress line emitted by a stage operation.
//
// Operations may interleave plain text and JSON event lines on stdout; only
// lines that parse as an event with a known type are treated as structured.
type Event struct {
	// Type classifies the event: "log", "progress", or "artifact".
	Type string `json:"type"`

	// Message is the human-readable event text.
	Message string `json:"message,omitempty"`

	// Path references a file for artifact events.
	Path string `json:"path,omitempty"`
}

var eventTypes = map[string]bool{
	"log":      true,
	"progress": true,
	"artifact": true,
}

// maxEventLine bounds a single event line. Operations embedding file content
// in artifact events can produce long lines.
const maxEventLine = 1024 * 1024

// ParseEvents reads line-delimited JSON events from captured operation
// output. Empty lines, plain text lines, and malformed JSON are skipped so
// mixed output degrades gracefully instead of failing the invocation.
func ParseEvents(reader io.Reader) []Event {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)

	var events []Event
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}
		event, err := ParseEventLine(line)
		if err != nil || !eventTypes[event.Type] {
			continue
		}
		events = append(events, event)
	}
	return events
}

// ParseEventLine parses a single event line. Unlike [ParseEvents] it reports
// malformed input instead of skipping it, which is useful in tests.
func ParseEventLine(line string) (Event, error) {
	var event Event
	if err := json.Unmarshal([]byte(line), &event); err != nil {
		return Event{}, err
	}
	return event, nil
}
