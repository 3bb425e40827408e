package client

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// Frame is one server-sent event: the event name and its JSON payload.
type Frame struct {
	Event string
	Data  json.RawMessage
}

// FrameFunc receives stream frames in order. Returning a non-nil error
// stops the stream; that error is returned from the streaming call.
type FrameFunc func(Frame) error

// StreamEvents follows a wiki's generation progress. The stream ends after
// a terminal complete or error event, when the server closes it, or when
// ctx is cancelled.
func (c *Client) StreamEvents(ctx context.Context, wikiID string, fn FrameFunc) error {
	return c.stream(ctx, http.MethodGet, "/api/wikis/"+wikiID+"/events", nil, fn)
}

// WikiChat sends one chat message about a completed wiki and streams the
// answer. An empty conversationID starts a new conversation; its ID arrives
// in the first frame.
func (c *Client) WikiChat(ctx context.Context, wikiID, conversationID, message string, fn FrameFunc) error {
	req := map[string]string{"message": message}
	if conversationID != "" {
		req["conversation_id"] = conversationID
	}
	return c.stream(ctx, http.MethodPost, "/api/wikis/"+wikiID+"/chat", req, fn)
}

// RepoChat asks the exploration agent a question about an ingested repo and
// streams the agent's events: text deltas, tool calls, and a final done.
func (c *Client) RepoChat(ctx context.Context, repoID, question string, history []HistoryMessage, fn FrameFunc) error {
	req := map[string]any{"question": question}
	if len(history) > 0 {
		req["history"] = history
	}
	return c.stream(ctx, http.MethodPost, "/repos/"+repoID+"/chat", req, fn)
}

func (c *Client) stream(ctx context.Context, method, path string, body any, fn FrameFunc) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return apiError(resp)
	}
	return readFrames(resp.Body, fn)
}

// readFrames decodes "event:"/"data:" framed server-sent events until the
// stream ends. Frames are dispatched on their blank-line terminator.
func readFrames(r io.Reader, fn FrameFunc) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var frame Frame
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if frame.Event != "" || frame.Data != nil {
				if err := fn(frame); err != nil {
					return err
				}
			}
			frame = Frame{}
		case strings.HasPrefix(line, "event: "):
			frame.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			frame.Data = json.RawMessage(strings.TrimPrefix(line, "data: "))
		}
	}
	return scanner.Err()
}
