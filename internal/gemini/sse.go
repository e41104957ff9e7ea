package gemini

import (
	"bufio"
	"io"
	"strings"
)

// sseEvent is a single server-sent event parsed from a streaming response.
type sseEvent struct {
	Type string
	Data string
}

// sseScanner reads server-sent events from a response body. Events are
// delimited by blank lines; "data:" lines carry the payload and multiple data
// lines join with newlines. Comment lines and unknown fields are ignored.
type sseScanner struct {
	reader  *bufio.Reader
	current sseEvent
	err     error
}

func newSSEScanner(r io.Reader) *sseScanner {
	return &sseScanner{
		reader: bufio.NewReaderSize(r, 64*1024),
	}
}

// Next advances to the next event. Returns false at end of stream or on
// error; check Err afterwards to tell them apart.
func (s *sseScanner) Next() bool {
	if s.err != nil {
		return false
	}
	s.current = sseEvent{}

	var dataLines []string
	var eventType string
	hasData := false

	for {
		line, err := s.reader.ReadString('\n')

		// Partial last line before EOF still counts as data.
		if err != nil && line == "" {
			if err == io.EOF {
				if hasData {
					s.current = sseEvent{Type: eventType, Data: strings.Join(dataLines, "\n")}
					s.err = io.EOF
					return true
				}
				return false
			}
			s.err = err
			return false
		}

		line = strings.TrimRight(line, "\r\n")

		// Blank line marks the event boundary.
		if line == "" {
			if hasData {
				s.current = sseEvent{Type: eventType, Data: strings.Join(dataLines, "\n")}
				return true
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, ":"):
			// comment, skip
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			hasData = true
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		}
	}
}

// Event returns the event read by the last successful call to Next.
func (s *sseScanner) Event() sseEvent {
	return s.current
}

// Err returns the terminal error, or nil if the stream ended cleanly.
func (s *sseScanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}
