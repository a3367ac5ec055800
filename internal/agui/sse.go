package agui

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxLine bounds one SSE line; render plans can be large.
const maxLine = 4 << 20

// writeSSE writes one named event and flushes it.
func writeSSE(w io.Writer, flusher http.Flusher, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("agui: encode %s event: %w", name, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func writeComment(w io.Writer, flusher http.Flusher, text string) error {
	if _, err := fmt.Fprintf(w, ": %s\n\n", text); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// ReadEvents parses an SSE stream and calls fn for each event with its
// name and data. Multi-line data is joined with newlines; comments are
// skipped. It returns fn's first error, or the read error that ended the
// stream (nil on EOF).
func ReadEvents(r io.Reader, fn func(name string, data []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLine)

	var (
		name string
		data bytes.Buffer
	)
	for scanner.Scan() {
		line := scanner.Bytes()
		switch {
		case len(line) == 0:
			if data.Len() > 0 || name != "" {
				if name == "" {
					name = "message"
				}
				if err := fn(name, bytes.Clone(data.Bytes())); err != nil {
					return err
				}
			}
			name = ""
			data.Reset()
		case line[0] == ':':
		case bytes.HasPrefix(line, []byte("event:")):
			name = string(bytes.TrimSpace(line[len("event:"):]))
		case bytes.HasPrefix(line, []byte("data:")):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.Write(bytes.TrimPrefix(line[len("data:"):], []byte(" ")))
		}
	}
	return scanner.Err()
}

func streamHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}
