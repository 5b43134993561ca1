package events

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"
)

// DefaultHeartbeat is the server's idle interval between keep-alive comments.
const DefaultHeartbeat = 15 * time.Second

// WriteSSE writes evt as one server-sent event frame and flushes.
func WriteSSE(w *bufio.Writer, evt Event) error {
	fmt.Fprintf(w, "id: %s\n", evt.ID)
	fmt.Fprintf(w, "event: %s\n", evt.Topic)
	for _, line := range bytes.Split(evt.Payload, []byte("\n")) {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	if !evt.PublishedAt.IsZero() {
		fmt.Fprintf(w, ": at %s\n", evt.PublishedAt.UTC().Format(time.RFC3339Nano))
	}
	w.WriteString("\n")
	return w.Flush()
}

// WriteHeartbeat writes an SSE comment so idle proxies keep the stream open.
func WriteHeartbeat(w *bufio.Writer) error {
	w.WriteString(": ping\n\n")
	return w.Flush()
}

// SSEDecoder reads events from a text/event-stream body. Comments and
// heartbeats are skipped but still count as activity.
type SSEDecoder struct {
	scanner *bufio.Scanner
	last    atomic.Int64
}

func NewSSEDecoder(r io.Reader) *SSEDecoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), 1<<20)
	d := &SSEDecoder{scanner: s}
	d.last.Store(time.Now().UnixNano())
	return d
}

// LastActivity reports when the decoder last read a line of any kind.
func (d *SSEDecoder) LastActivity() time.Time {
	return time.Unix(0, d.last.Load())
}

// Next returns the next event. It returns io.EOF when the stream ends.
func (d *SSEDecoder) Next() (Event, error) {
	var (
		evt     Event
		data    []string
		hasData bool
	)
	for d.scanner.Scan() {
		d.last.Store(time.Now().UnixNano())
		line := d.scanner.Text()
		if line == "" {
			if hasData {
				evt.Payload = []byte(strings.Join(data, "\n"))
				return evt, nil
			}
			evt = Event{}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "id":
			evt.ID = value
		case "event":
			evt.Topic = value
		case "data":
			data = append(data, value)
			hasData = true
		}
	}
	if err := d.scanner.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}
