package service

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/falconlabs/falcon/pkg/agent"
	"github.com/falconlabs/falcon/pkg/config"
	"github.com/falconlabs/falcon/pkg/storage"
	"github.com/falconlabs/falcon/pkg/types"
)

// scriptedStreamer returns the same scripted chunks for every call and
// records each request.
type scriptedStreamer struct {
	chunks   []openai.ChatCompletionStreamResponse
	requests []openai.ChatCompletionRequest
	err      error
}

func (s *scriptedStreamer) CreateChatCompletionStream(_ context.Context, req openai.ChatCompletionRequest) (agent.ChatStream, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return &scriptedStream{chunks: s.chunks}, nil
}

type scriptedStream struct {
	chunks []openai.ChatCompletionStreamResponse
	pos    int
}

func (s *scriptedStream) Recv() (openai.ChatCompletionStreamResponse, error) {
	if s.pos >= len(s.chunks) {
		return openai.ChatCompletionStreamResponse{}, io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *scriptedStream) Close() error { return nil }

func textChunk(content string) openai.ChatCompletionStreamResponse {
	return openai.ChatCompletionStreamResponse{
		Choices: []openai.ChatCompletionStreamChoice{{
			Delta: openai.ChatCompletionStreamChoiceDelta{Content: content},
		}},
	}
}

type chatFixture struct {
	store    *storage.WikiStore
	wikis    *WikiService
	chat     *ChatService
	streamer *scriptedStreamer
	root     string
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	store, err := storage.OpenWikiStore(filepath.Join(t.TempDir(), "falcon.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	root := t.TempDir()
	wikis := NewWikiService(store, &config.Settings{WikiStorageRoot: root, JobMaxAttempts: 3})
	streamer := &scriptedStreamer{chunks: []openai.ChatCompletionStreamResponse{
		textChunk("The queue "),
		textChunk("is durable."),
	}}
	return &chatFixture{
		store:    store,
		wikis:    wikis,
		chat:     NewChatService(store, wikis, streamer, "gpt-4o"),
		streamer: streamer,
		root:     root,
	}
}

// completedWiki enrolls a wiki with one indexed page and a manifest whose
// only page matches questions about the job queue.
func (f *chatFixture) completedWiki(t *testing.T) *types.Wiki {
	t.Helper()
	ctx := context.Background()
	wiki, err := f.wikis.Create(ctx, "https://github.com/octo/demo", "")
	require.NoError(t, err)
	require.NoError(t, f.store.UpdateWikiStatus(ctx, wiki.ID, types.WikiStatusCompleted))

	writeWikiFile(t, f.root, wiki, "manifest.json", `{
		"version": "1.0",
		"pages": [
			{"slug": "job-queue", "title": "Job Queue", "section": "modules", "order": 1,
			 "file_path": "job-queue.md", "summary": "durable job queue with retries",
			 "source_files": ["pkg/queue/orchestrator.go"], "key_exports": ["Orchestrator"]}
		]
	}`)
	writeWikiFile(t, f.root, wiki, "job-queue.md",
		"---\ntitle: Job Queue\nslug: job-queue\nsection: modules\norder: 1\n---\n# Job Queue\n\nJobs are claimed atomically.\n")
	require.NoError(t, f.store.ReplaceWikiPages(ctx, wiki.ID, []types.WikiPage{{
		WikiID: wiki.ID, Slug: "job-queue", Title: "Job Queue",
		Section: "modules", SortOrder: 1, FilePath: "job-queue.md",
	}}))

	wiki.Status = types.WikiStatusCompleted
	return wiki
}

func collectFrames(t *testing.T, ch <-chan Frame) []Frame {
	t.Helper()
	var frames []Frame
	for f := range ch {
		frames = append(frames, f)
	}
	return frames
}

func TestChatUnknownWiki(t *testing.T) {
	f := newChatFixture(t)

	frames := collectFrames(t, f.chat.HandleMessage(context.Background(), "no-such-wiki", "hi", ""))

	require.Len(t, frames, 1)
	assert.Equal(t, FrameError, frames[0].Type)
	assert.Equal(t, "Wiki not found", frames[0].Data["message"])
}

func TestChatStreamsAnswerWithContext(t *testing.T) {
	f := newChatFixture(t)
	wiki := f.completedWiki(t)

	frames := collectFrames(t, f.chat.HandleMessage(
		context.Background(), wiki.ID, "how does the job queue work", ""))

	require.Len(t, frames, 4)
	assert.Equal(t, FrameThinking, frames[0].Type)
	assert.Equal(t, []string{"job-queue"}, frames[0].Data["context_pages"])
	assert.Equal(t, "The queue ", frames[1].Data["content"])
	assert.Equal(t, "is durable.", frames[2].Data["content"])
	assert.Equal(t, FrameComplete, frames[3].Type)
	assert.Equal(t, []string{"job-queue"}, frames[3].Data["context_pages"])
	assert.NotEmpty(t, frames[3].Data["conversation_id"])

	require.Len(t, f.streamer.requests, 1)
	req := f.streamer.requests[0]
	assert.Equal(t, "gpt-4o", req.Model)
	assert.Empty(t, req.Tools, "wiki chat is a single turn without tools")

	require.Len(t, req.Messages, 2)
	system := req.Messages[0]
	assert.Equal(t, openai.ChatMessageRoleSystem, system.Role)
	assert.True(t, strings.HasPrefix(system.Content, "# Falcon Q&A Agent"))
	assert.Contains(t, system.Content, "Repository: octo/demo (branch main)")
	assert.Contains(t, system.Content, "## Wiki page: job-queue")
	assert.Contains(t, system.Content, "Jobs are claimed atomically.")
	assert.Equal(t, "how does the job queue work", req.Messages[1].Content)
}

func TestChatPersistsTranscript(t *testing.T) {
	f := newChatFixture(t)
	wiki := f.completedWiki(t)
	ctx := context.Background()

	frames := collectFrames(t, f.chat.HandleMessage(ctx, wiki.ID, "how does the job queue work", ""))
	convID, _ := frames[len(frames)-1].Data["conversation_id"].(string)
	require.NotEmpty(t, convID)

	msgs, err := f.chat.Conversation(ctx, wiki.ID, convID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, types.RoleUser, msgs[0].Role)
	assert.Equal(t, "how does the job queue work", msgs[0].Content)
	assert.Empty(t, msgs[0].ContextPages)
	assert.Equal(t, types.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "The queue is durable.", msgs[1].Content)
	assert.Equal(t, []string{"job-queue"}, msgs[1].ContextPages)
}

func TestChatContinuesConversation(t *testing.T) {
	f := newChatFixture(t)
	wiki := f.completedWiki(t)
	ctx := context.Background()

	frames := collectFrames(t, f.chat.HandleMessage(ctx, wiki.ID, "first question about the job queue", ""))
	convID, _ := frames[len(frames)-1].Data["conversation_id"].(string)
	require.NotEmpty(t, convID)

	frames = collectFrames(t, f.chat.HandleMessage(ctx, wiki.ID, "and the retries?", convID))
	assert.Equal(t, convID, frames[len(frames)-1].Data["conversation_id"])

	// The second call carried the first exchange as history.
	require.Len(t, f.streamer.requests, 2)
	msgs := f.streamer.requests[1].Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, "first question about the job queue", msgs[1].Content)
	assert.Equal(t, openai.ChatMessageRoleAssistant, msgs[2].Role)
	assert.Equal(t, "and the retries?", msgs[3].Content)

	transcript, err := f.chat.Conversation(ctx, wiki.ID, convID)
	require.NoError(t, err)
	assert.Len(t, transcript, 4)
}

func TestChatAcceptsClientMintedConversationID(t *testing.T) {
	f := newChatFixture(t)
	wiki := f.completedWiki(t)
	ctx := context.Background()

	frames := collectFrames(t, f.chat.HandleMessage(ctx, wiki.ID, "question about the job queue", "client-chosen-id"))
	assert.Equal(t, "client-chosen-id", frames[len(frames)-1].Data["conversation_id"])

	msgs, err := f.chat.Conversation(ctx, wiki.ID, "client-chosen-id")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestChatWithoutManifestHasNoContext(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	wiki, err := f.wikis.Create(ctx, "https://github.com/octo/demo", "")
	require.NoError(t, err)

	frames := collectFrames(t, f.chat.HandleMessage(ctx, wiki.ID, "how does the job queue work", ""))

	require.Len(t, frames, 4)
	assert.Equal(t, []string{}, frames[0].Data["context_pages"])
	assert.Equal(t, FrameComplete, frames[3].Type)
	assert.NotContains(t, f.streamer.requests[0].Messages[0].Content, "## Wiki page:")
}

func TestChatStreamErrorEmitsErrorFrame(t *testing.T) {
	f := newChatFixture(t)
	wiki := f.completedWiki(t)
	f.streamer.err = errors.New("rate limited")
	ctx := context.Background()

	frames := collectFrames(t, f.chat.HandleMessage(ctx, wiki.ID, "anything about the job queue", "conv-1"))

	require.Len(t, frames, 2)
	assert.Equal(t, FrameThinking, frames[0].Type)
	assert.Equal(t, FrameError, frames[1].Type)
	assert.Equal(t, "rate limited", frames[1].Data["message"])

	// The user turn is already persisted; no assistant message follows.
	msgs, err := f.store.ListMessages(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, types.RoleUser, msgs[0].Role)
}

func TestConversationRequiresOwnership(t *testing.T) {
	f := newChatFixture(t)
	wikiA := f.completedWiki(t)
	ctx := context.Background()
	wikiB, err := f.wikis.Create(ctx, "https://github.com/octo/other", "")
	require.NoError(t, err)

	frames := collectFrames(t, f.chat.HandleMessage(ctx, wikiA.ID, "job queue question", ""))
	convID, _ := frames[len(frames)-1].Data["conversation_id"].(string)
	require.NotEmpty(t, convID)

	_, err = f.chat.Conversation(ctx, wikiB.ID, convID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestChatConversationIDBoundToWiki(t *testing.T) {
	f := newChatFixture(t)
	wikiA := f.completedWiki(t)
	ctx := context.Background()
	wikiB, err := f.wikis.Create(ctx, "https://github.com/octo/other", "")
	require.NoError(t, err)

	frames := collectFrames(t, f.chat.HandleMessage(ctx, wikiA.ID, "job queue question", "shared-id"))
	assert.Equal(t, FrameComplete, frames[len(frames)-1].Type)

	// The same id cannot be attached to a second wiki.
	frames = collectFrames(t, f.chat.HandleMessage(ctx, wikiB.ID, "unrelated question", "shared-id"))
	require.Len(t, frames, 1)
	assert.Equal(t, FrameError, frames[0].Type)
	assert.Equal(t, "Conversation belongs to a different wiki", frames[0].Data["message"])

	// The original transcript is untouched.
	msgs, err := f.chat.Conversation(ctx, wikiA.ID, "shared-id")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}
