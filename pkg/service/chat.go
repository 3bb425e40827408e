package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/falconlabs/falcon/pkg/agent"
	"github.com/falconlabs/falcon/pkg/log"
	"github.com/falconlabs/falcon/pkg/pipeline"
	"github.com/falconlabs/falcon/pkg/selector"
	"github.com/falconlabs/falcon/pkg/storage"
	"github.com/falconlabs/falcon/pkg/types"
)

// Frame types on the wiki chat stream.
const (
	FrameThinking = "thinking"
	FrameComplete = "complete"
	FrameError    = "error"
)

// Frame is one event of the wiki chat SSE stream. The first thinking frame
// carries the selected context page slugs; subsequent ones carry answer text
// as it streams from the model.
type Frame struct {
	Type string
	Data map[string]any
}

// ChatService answers questions about a generated wiki. Context pages are
// chosen lexically from the stored manifest and inlined into the system
// prompt; the answer streams from the model in a single turn without tools.
type ChatService struct {
	store    *storage.WikiStore
	wikis    *WikiService
	streamer agent.Streamer
	model    string
	logger   zerolog.Logger
}

// NewChatService creates the chat service. The streamer is the same client
// the repository agent loop uses.
func NewChatService(store *storage.WikiStore, wikis *WikiService, streamer agent.Streamer, model string) *ChatService {
	return &ChatService{
		store:    store,
		wikis:    wikis,
		streamer: streamer,
		model:    model,
		logger:   log.WithComponent("chat-service"),
	}
}

// HandleMessage runs one chat turn and returns a channel of frames. The
// channel closes after a terminal complete or error frame, or when ctx is
// cancelled.
func (s *ChatService) HandleMessage(ctx context.Context, wikiID, message, conversationID string) <-chan Frame {
	frames := make(chan Frame)
	go func() {
		defer close(frames)
		s.handle(ctx, wikiID, message, conversationID, frames)
	}()
	return frames
}

func (s *ChatService) handle(ctx context.Context, wikiID, message, conversationID string, frames chan<- Frame) {
	emit := func(f Frame) bool {
		select {
		case frames <- f:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(msg string) {
		emit(Frame{Type: FrameError, Data: map[string]any{"message": msg}})
	}

	wiki, err := s.store.GetWiki(ctx, wikiID)
	if errors.Is(err, types.ErrNotFound) {
		fail("Wiki not found")
		return
	}
	if err != nil {
		fail(err.Error())
		return
	}

	convID, history, err := s.openConversation(ctx, wikiID, conversationID)
	if errors.Is(err, types.ErrConflict) {
		fail("Conversation belongs to a different wiki")
		return
	}
	if err != nil {
		fail(err.Error())
		return
	}
	if err := s.store.InsertMessage(ctx, &types.Message{
		ID:             uuid.NewString(),
		ConversationID: convID,
		Role:           types.RoleUser,
		Content:        message,
		CreatedAt:      time.Now().UTC(),
	}); err != nil {
		fail(err.Error())
		return
	}

	contextPages, systemPrompt := s.buildContext(ctx, wiki, message)
	if !emit(Frame{Type: FrameThinking, Data: map[string]any{"context_pages": contextPages}}) {
		return
	}

	answer, err := s.streamAnswer(ctx, systemPrompt, history, message, emit)
	if err != nil {
		fail(err.Error())
		return
	}

	if err := s.store.InsertMessage(ctx, &types.Message{
		ID:             uuid.NewString(),
		ConversationID: convID,
		Role:           types.RoleAssistant,
		Content:        answer,
		ContextPages:   contextPages,
		CreatedAt:      time.Now().UTC(),
	}); err != nil {
		fail(err.Error())
		return
	}

	emit(Frame{Type: FrameComplete, Data: map[string]any{
		"conversation_id": convID,
		"context_pages":   contextPages,
	}})
}

// openConversation resolves the conversation for this turn: a fresh one when
// no id was supplied, the existing transcript otherwise. An unknown supplied
// id starts a new conversation under that id, so clients may mint their own;
// an id already attached to a different wiki is types.ErrConflict.
func (s *ChatService) openConversation(ctx context.Context, wikiID, conversationID string) (string, []types.Message, error) {
	if conversationID != "" {
		_, err := s.store.GetConversation(ctx, wikiID, conversationID)
		if err == nil {
			history, herr := s.loadHistory(ctx, conversationID)
			return conversationID, history, herr
		}
		if !errors.Is(err, types.ErrNotFound) {
			return "", nil, err
		}
	} else {
		conversationID = uuid.NewString()
	}

	err := s.store.CreateConversation(ctx, &types.Conversation{
		ID:        conversationID,
		WikiID:    wikiID,
		CreatedAt: time.Now().UTC(),
	})
	if errors.Is(err, types.ErrConflict) {
		// Lost a creation race. If the winner attached the id to this wiki
		// the transcript is usable; otherwise the id is taken.
		if _, gerr := s.store.GetConversation(ctx, wikiID, conversationID); gerr == nil {
			history, herr := s.loadHistory(ctx, conversationID)
			return conversationID, history, herr
		}
		return "", nil, err
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to open conversation: %w", err)
	}
	return conversationID, nil, nil
}

func (s *ChatService) loadHistory(ctx context.Context, conversationID string) ([]types.Message, error) {
	return s.store.ListMessages(ctx, conversationID)
}

// buildContext selects manifest pages relevant to the question and renders
// the system prompt with their content inlined. A wiki without a stored
// manifest (still generating, or delivered the fallback) chats with no
// context pages.
func (s *ChatService) buildContext(ctx context.Context, wiki *types.Wiki, question string) ([]string, string) {
	slugs := []string{}
	if raw, err := s.wikis.Manifest(ctx, wiki.ID); err == nil {
		var manifest types.Manifest
		if err := json.Unmarshal(raw, &manifest); err != nil {
			s.logger.Warn().Err(err).Str("wiki_id", wiki.ID).Msg("Stored manifest is not valid JSON")
		} else if picked := selector.SelectContextPages(&manifest, question, selector.DefaultMaxPages); len(picked) > 0 {
			slugs = picked
		}
	}

	var b strings.Builder
	b.WriteString(pipeline.QADirective)
	fmt.Fprintf(&b, "\nRepository: %s/%s (branch %s)\n", wiki.Owner, wiki.Repo, wiki.Branch)
	for _, slug := range slugs {
		page, err := s.wikis.Page(ctx, wiki.ID, slug)
		if err != nil {
			s.logger.Warn().Err(err).Str("wiki_id", wiki.ID).Str("slug", slug).Msg("Context page unavailable")
			continue
		}
		fmt.Fprintf(&b, "\n## Wiki page: %s\n\n%s\n", slug, page.ContentMD)
	}
	return slugs, b.String()
}

// streamAnswer runs the single-turn model call, forwarding each text delta
// as a thinking frame, and returns the assembled answer.
func (s *ChatService) streamAnswer(ctx context.Context, systemPrompt string, history []types.Message, question string, emit func(Frame) bool) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == types.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: question,
	})

	stream, err := s.streamer.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    s.model,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var answer strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		answer.WriteString(delta)
		if !emit(Frame{Type: FrameThinking, Data: map[string]any{"content": delta}}) {
			return "", ctx.Err()
		}
	}
	return answer.String(), nil
}

// Conversation returns the ordered transcript, verifying the conversation
// belongs to the wiki.
func (s *ChatService) Conversation(ctx context.Context, wikiID, conversationID string) ([]types.Message, error) {
	if _, err := s.store.GetConversation(ctx, wikiID, conversationID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, conversationID)
}
