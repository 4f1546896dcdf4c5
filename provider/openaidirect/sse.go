package openaidirect

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/edukia/chatrelay"
)

// wireChunk is a single SSE data payload.
type wireChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content,omitempty"`
		} `json:"delta"`
	} `json:"choices"`
}

// sseStream parses Server-Sent Events from an HTTP response body.
type sseStream struct {
	reader *bufio.Reader
	body   io.ReadCloser
}

var _ chatrelay.EventStream = (*sseStream)(nil)

func newSSEStream(body io.ReadCloser) *sseStream {
	return &sseStream{reader: bufio.NewReader(body), body: body}
}

func (s *sseStream) Next() (chatrelay.Event, error) {
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return chatrelay.Event{}, io.EOF
			}
			return chatrelay.Event{}, err
		}

		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return chatrelay.Event{}, io.EOF
		}

		var chunk wireChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue // skip malformed chunks
		}

		var ev chatrelay.Event
		for _, c := range chunk.Choices {
			ev.Choices = append(ev.Choices, chatrelay.EventChoice{
				Delta: chatrelay.Delta{Content: c.Delta.Content},
			})
		}
		return ev, nil
	}
}

func (s *sseStream) Close() error {
	return s.body.Close()
}
