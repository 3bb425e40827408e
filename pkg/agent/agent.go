package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/falconlabs/falcon/pkg/log"
	"github.com/falconlabs/falcon/pkg/shell"
)

// maxIterations bounds the explore loop; a model that keeps calling tools is
// cut off with a closing message rather than running forever.
const maxIterations = 15

// Event types emitted on the chat stream.
const (
	EventTextDelta = "text_delta"
	EventToolStart = "tool_start"
	EventToolEnd   = "tool_end"
	EventDone      = "done"
	EventError     = "error"
)

// Event is one frame of the chat stream, marshaled as a flat JSON object
// with a type discriminator. Arguments is populated only on tool_start and
// Content only on text_delta and error frames.
type Event struct {
	Type      string          `json:"type"`
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Content   string          `json:"content,omitempty"`
}

// HistoryMessage is one prior turn supplied by the client.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatStream is a single streaming model response.
type ChatStream interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

// Streamer starts streaming chat completions. The concrete client is hidden
// behind this so the loop can be driven by a scripted stub in tests.
type Streamer interface {
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (ChatStream, error)
}

type openAIStreamer struct {
	client *openai.Client
}

func (s openAIStreamer) CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (ChatStream, error) {
	return s.client.CreateChatCompletionStream(ctx, req)
}

// NewOpenAIStreamer wraps the OpenAI client as a Streamer.
func NewOpenAIStreamer(apiKey string) Streamer {
	return openAIStreamer{client: openai.NewClient(apiKey)}
}

// Loop is the ReAct engine behind repository chat: call the model, execute
// whatever tools it asks for, feed the results back, repeat until it answers
// in plain text.
type Loop struct {
	streamer   Streamer
	dispatcher *shell.Dispatcher
	model      string
	logger     zerolog.Logger
}

// NewLoop creates an agent loop using the given model.
func NewLoop(streamer Streamer, dispatcher *shell.Dispatcher, model string) *Loop {
	return &Loop{
		streamer:   streamer,
		dispatcher: dispatcher,
		model:      model,
		logger:     log.WithComponent("agent"),
	}
}

// Run executes the loop and returns a channel of events. The channel closes
// when the conversation finishes, errors out, or ctx is cancelled. Stream
// and tool failures surface as a terminal error event.
func (l *Loop) Run(ctx context.Context, repoID, question string, history []HistoryMessage) <-chan Event {
	events := make(chan Event)
	go func() {
		defer close(events)
		l.run(ctx, repoID, question, history, events)
	}()
	return events
}

// toolCall accumulates one streamed tool invocation. The first fragment for
// an index carries the id and name; later fragments only extend the
// argument string.
type toolCall struct {
	id   string
	name string
	args strings.Builder
}

func (l *Loop) run(ctx context.Context, repoID, question string, history []HistoryMessage, events chan<- Event) {
	emit := func(e Event) bool {
		select {
		case events <- e:
			return true
		case <-ctx.Done():
			return false
		}
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: shell.SystemPrompt,
	})
	for _, h := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: h.Role, Content: h.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: question,
	})

	for iteration := 0; iteration < maxIterations; iteration++ {
		stream, err := l.streamer.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:    l.model,
			Messages: messages,
			Tools:    shell.Definitions(),
		})
		if err != nil {
			emit(Event{Type: EventError, Content: err.Error()})
			return
		}

		calls := map[int]*toolCall{}
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				stream.Close()
				emit(Event{Type: EventError, Content: err.Error()})
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta

			// tool call arguments arrive in fragments keyed by index
			for _, tc := range delta.ToolCalls {
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				acc, ok := calls[idx]
				if !ok {
					acc = &toolCall{id: tc.ID, name: tc.Function.Name}
					calls[idx] = acc
				}
				acc.args.WriteString(tc.Function.Arguments)
			}

			// forward text immediately; no blank-screen wait for the user
			if delta.Content != "" {
				if !emit(Event{Type: EventTextDelta, Content: delta.Content}) {
					stream.Close()
					return
				}
			}
		}
		stream.Close()

		if len(calls) == 0 {
			// final text answer, already streamed
			emit(Event{Type: EventDone})
			return
		}

		indices := make([]int, 0, len(calls))
		for i := range calls {
			indices = append(indices, i)
		}
		sort.Ints(indices)

		assistantCalls := make([]openai.ToolCall, 0, len(indices))
		for _, i := range indices {
			acc := calls[i]
			assistantCalls = append(assistantCalls, openai.ToolCall{
				ID:       acc.id,
				Type:     openai.ToolTypeFunction,
				Function: openai.FunctionCall{Name: acc.name, Arguments: acc.args.String()},
			})
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			ToolCalls: assistantCalls,
		})

		for _, i := range indices {
			acc := calls[i]
			args := parseArguments(acc.args.String())
			raw, _ := json.Marshal(args)

			if !emit(Event{Type: EventToolStart, Name: acc.name, Arguments: raw}) {
				return
			}
			result, err := l.dispatcher.Execute(ctx, repoID, acc.name, args)
			if err != nil {
				emit(Event{Type: EventError, Content: err.Error()})
				return
			}
			if !emit(Event{Type: EventToolEnd, Name: acc.name}) {
				return
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: acc.id,
				Content:    result,
			})
		}
		l.logger.Debug().Int("iteration", iteration+1).Int("tool_calls", len(indices)).Msg("Agent iteration complete")
	}

	// iteration cap reached with the model still asking for tools
	emit(Event{Type: EventTextDelta, Content: "\n\n---\n" +
		"I've reached the maximum exploration depth. " +
		"Here's my best answer based on what I've found so far."})
	emit(Event{Type: EventDone})
}

// parseArguments decodes a tool call's argument JSON, falling back to an
// empty object on malformed input.
func parseArguments(raw string) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}
