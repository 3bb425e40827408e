package agent

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/falconlabs/falcon/pkg/shell"
	"github.com/falconlabs/falcon/pkg/storage"
	"github.com/falconlabs/falcon/pkg/types"
)

// stubStreamer serves scripted responses, one per model call. With repeat
// set, the last script is served forever.
type stubStreamer struct {
	scripts  [][]openai.ChatCompletionStreamResponse
	repeat   bool
	requests []openai.ChatCompletionRequest
	err      error
}

func (s *stubStreamer) CreateChatCompletionStream(_ context.Context, req openai.ChatCompletionRequest) (ChatStream, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	call := len(s.requests) - 1
	if call >= len(s.scripts) {
		if !s.repeat {
			return nil, errors.New("stub exhausted")
		}
		call = len(s.scripts) - 1
	}
	return &stubStream{chunks: s.scripts[call]}, nil
}

type stubStream struct {
	chunks  []openai.ChatCompletionStreamResponse
	pos     int
	recvErr error
}

func (s *stubStream) Recv() (openai.ChatCompletionStreamResponse, error) {
	if s.pos >= len(s.chunks) {
		if s.recvErr != nil {
			return openai.ChatCompletionStreamResponse{}, s.recvErr
		}
		return openai.ChatCompletionStreamResponse{}, io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *stubStream) Close() error { return nil }

func textChunk(content string) openai.ChatCompletionStreamResponse {
	return openai.ChatCompletionStreamResponse{
		Choices: []openai.ChatCompletionStreamChoice{{
			Delta: openai.ChatCompletionStreamChoiceDelta{Content: content},
		}},
	}
}

func toolChunk(index int, id, name, args string) openai.ChatCompletionStreamResponse {
	return openai.ChatCompletionStreamResponse{
		Choices: []openai.ChatCompletionStreamChoice{{
			Delta: openai.ChatCompletionStreamChoiceDelta{
				ToolCalls: []openai.ToolCall{{
					Index:    &index,
					ID:       id,
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: name, Arguments: args},
				}},
			},
		}},
	}
}

// newTestDispatcher seeds a store with src/a.py so list_files("src")
// returns "a.py".
func newTestDispatcher(t *testing.T) *shell.Dispatcher {
	t.Helper()
	store, err := storage.OpenRepoStore(filepath.Join(t.TempDir(), "repos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.CreateRepo(ctx, &types.Repo{
		ID: "r1", URL: "https://example.com/r1", Name: "r1", Status: types.RepoStatusReady,
	}))
	require.NoError(t, store.InsertFiles(ctx, []types.FileRecord{
		{RepoID: "r1", Path: "src", Name: "src", Depth: 1, IsDirectory: true},
		{RepoID: "r1", Path: "src/a.py", Name: "a.py", Extension: ".py", ParentPath: "src", Depth: 2, Content: "pass\n"},
	}))
	return shell.NewDispatcher(store)
}

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	for e := range ch {
		events = append(events, e)
	}
	return events
}

func TestRunPlainAnswer(t *testing.T) {
	streamer := &stubStreamer{scripts: [][]openai.ChatCompletionStreamResponse{
		{textChunk("Hello"), textChunk(" world")},
	}}
	loop := NewLoop(streamer, newTestDispatcher(t), "gpt-4o")

	events := collect(t, loop.Run(context.Background(), "r1", "hi?", nil))

	require.Equal(t, []Event{
		{Type: EventTextDelta, Content: "Hello"},
		{Type: EventTextDelta, Content: " world"},
		{Type: EventDone},
	}, events)

	require.Len(t, streamer.requests, 1)
	msgs := streamer.requests[0].Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, msgs[0].Role)
	assert.Equal(t, shell.SystemPrompt, msgs[0].Content)
	assert.Equal(t, openai.ChatMessageRoleUser, msgs[1].Role)
	assert.Equal(t, "hi?", msgs[1].Content)
	assert.Len(t, streamer.requests[0].Tools, 3)
}

func TestRunHistoryPrecedesQuestion(t *testing.T) {
	streamer := &stubStreamer{scripts: [][]openai.ChatCompletionStreamResponse{
		{textChunk("ok")},
	}}
	loop := NewLoop(streamer, newTestDispatcher(t), "gpt-4o")

	history := []HistoryMessage{
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
	}
	collect(t, loop.Run(context.Background(), "r1", "follow-up", history))

	msgs := streamer.requests[0].Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, "earlier question", msgs[1].Content)
	assert.Equal(t, openai.ChatMessageRoleAssistant, msgs[2].Role)
	assert.Equal(t, "follow-up", msgs[3].Content)
}

func TestRunToolRoundTrip(t *testing.T) {
	// arguments arrive fragmented across chunks
	streamer := &stubStreamer{scripts: [][]openai.ChatCompletionStreamResponse{
		{
			toolChunk(0, "call_1", "list_files", `{"pa`),
			toolChunk(0, "", "", `th": "src"}`),
		},
		{textChunk("src has a.py")},
	}}
	loop := NewLoop(streamer, newTestDispatcher(t), "gpt-4o")

	events := collect(t, loop.Run(context.Background(), "r1", "what is in src?", nil))

	require.Len(t, events, 4)
	assert.Equal(t, Event{Type: EventToolStart, Name: "list_files", Arguments: []byte(`{"path":"src"}`)}, events[0])
	assert.Equal(t, Event{Type: EventToolEnd, Name: "list_files"}, events[1])
	assert.Equal(t, Event{Type: EventTextDelta, Content: "src has a.py"}, events[2])
	assert.Equal(t, Event{Type: EventDone}, events[3])

	// the second call carries the full tool exchange
	require.Len(t, streamer.requests, 2)
	msgs := streamer.requests[1].Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, openai.ChatMessageRoleAssistant, msgs[2].Role)
	require.Len(t, msgs[2].ToolCalls, 1)
	assert.Equal(t, "call_1", msgs[2].ToolCalls[0].ID)
	assert.Equal(t, `{"path": "src"}`, msgs[2].ToolCalls[0].Function.Arguments)
	assert.Equal(t, openai.ChatMessageRoleTool, msgs[3].Role)
	assert.Equal(t, "call_1", msgs[3].ToolCallID)
	assert.Equal(t, "a.py", msgs[3].Content)
}

func TestRunParallelToolCallsExecuteInIndexOrder(t *testing.T) {
	// fragments for index 1 arrive before index 0
	streamer := &stubStreamer{scripts: [][]openai.ChatCompletionStreamResponse{
		{
			toolChunk(1, "call_b", "read_file", `{"path": "src/a.py"}`),
			toolChunk(0, "call_a", "list_files", `{"path": "src"}`),
		},
		{textChunk("done looking")},
	}}
	loop := NewLoop(streamer, newTestDispatcher(t), "gpt-4o")

	events := collect(t, loop.Run(context.Background(), "r1", "explore", nil))

	require.Len(t, events, 6)
	assert.Equal(t, "list_files", events[0].Name)
	assert.Equal(t, "list_files", events[1].Name)
	assert.Equal(t, "read_file", events[2].Name)
	assert.Equal(t, "read_file", events[3].Name)

	msgs := streamer.requests[1].Messages
	require.Len(t, msgs[2].ToolCalls, 2)
	assert.Equal(t, "call_a", msgs[2].ToolCalls[0].ID)
	assert.Equal(t, "call_b", msgs[2].ToolCalls[1].ID)
	// tool results keyed to their call ids, in index order
	assert.Equal(t, "call_a", msgs[3].ToolCallID)
	assert.Equal(t, "call_b", msgs[4].ToolCallID)
}

func TestRunMalformedArgumentsBecomeEmptyObject(t *testing.T) {
	streamer := &stubStreamer{scripts: [][]openai.ChatCompletionStreamResponse{
		{toolChunk(0, "call_1", "list_files", `{"path": bro`)},
		{textChunk("recovered")},
	}}
	loop := NewLoop(streamer, newTestDispatcher(t), "gpt-4o")

	events := collect(t, loop.Run(context.Background(), "r1", "q", nil))

	assert.Equal(t, Event{Type: EventToolStart, Name: "list_files", Arguments: []byte(`{}`)}, events[0])
	// path "" lists the repo root
	assert.Equal(t, "src/", streamer.requests[1].Messages[3].Content)
}

func TestRunIterationCap(t *testing.T) {
	streamer := &stubStreamer{
		scripts: [][]openai.ChatCompletionStreamResponse{
			{toolChunk(0, "call_1", "list_files", `{"path": "src"}`)},
		},
		repeat: true,
	}
	loop := NewLoop(streamer, newTestDispatcher(t), "gpt-4o")

	events := collect(t, loop.Run(context.Background(), "r1", "loop forever", nil))

	// 15 tool iterations, then one closing delta and a terminal done
	require.Len(t, events, 32)
	starts := 0
	for _, e := range events {
		if e.Type == EventToolStart {
			starts++
		}
	}
	assert.Equal(t, 15, starts)
	assert.Equal(t, EventTextDelta, events[30].Type)
	assert.Equal(t, "\n\n---\nI've reached the maximum exploration depth. "+
		"Here's my best answer based on what I've found so far.", events[30].Content)
	assert.Equal(t, EventDone, events[31].Type)

	assert.Len(t, streamer.requests, 15, "no 16th model call")
}

func TestRunStreamCreateError(t *testing.T) {
	streamer := &stubStreamer{err: errors.New("rate limited")}
	loop := NewLoop(streamer, newTestDispatcher(t), "gpt-4o")

	events := collect(t, loop.Run(context.Background(), "r1", "q", nil))

	require.Equal(t, []Event{{Type: EventError, Content: "rate limited"}}, events)
}

func TestRunRecvErrorAfterPartialText(t *testing.T) {
	stream := &stubStream{
		chunks:  []openai.ChatCompletionStreamResponse{textChunk("partial")},
		recvErr: errors.New("connection reset"),
	}
	streamer := streamerFunc(func(context.Context, openai.ChatCompletionRequest) (ChatStream, error) {
		return stream, nil
	})
	loop := NewLoop(streamer, newTestDispatcher(t), "gpt-4o")

	events := collect(t, loop.Run(context.Background(), "r1", "q", nil))

	require.Equal(t, []Event{
		{Type: EventTextDelta, Content: "partial"},
		{Type: EventError, Content: "connection reset"},
	}, events)
}

type streamerFunc func(ctx context.Context, req openai.ChatCompletionRequest) (ChatStream, error)

func (f streamerFunc) CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (ChatStream, error) {
	return f(ctx, req)
}

func TestRunToolFailureEmitsError(t *testing.T) {
	store, err := storage.OpenRepoStore(filepath.Join(t.TempDir(), "repos.db"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	streamer := &stubStreamer{scripts: [][]openai.ChatCompletionStreamResponse{
		{toolChunk(0, "call_1", "list_files", `{"path": "src"}`)},
	}}
	loop := NewLoop(streamer, shell.NewDispatcher(store), "gpt-4o")

	events := collect(t, loop.Run(context.Background(), "r1", "q", nil))

	require.Len(t, events, 2)
	assert.Equal(t, EventToolStart, events[0].Type)
	assert.Equal(t, EventError, events[1].Type)
	assert.NotEmpty(t, events[1].Content)
}

func TestRunContextCancellation(t *testing.T) {
	streamer := &stubStreamer{
		scripts: [][]openai.ChatCompletionStreamResponse{
			{toolChunk(0, "call_1", "list_files", `{"path": "src"}`)},
		},
		repeat: true,
	}
	loop := NewLoop(streamer, newTestDispatcher(t), "gpt-4o")

	ctx, cancel := context.WithCancel(context.Background())
	ch := loop.Run(ctx, "r1", "q", nil)
	<-ch // first tool_start
	cancel()

	for range ch { // must drain to closure, not hang
	}
}
