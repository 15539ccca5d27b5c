package ui

import (
	"context"
	"errors"
	"iter"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"cmdai/config"
	"cmdai/model"
	"cmdai/provider"
	"cmdai/provider/testutil"
	"cmdai/router"
	"cmdai/storage"
)

// cmdTimeout drops commands that wait on timers (cursor blink, status expiry).
const cmdTimeout = 400 * time.Millisecond

type fakeClipboard struct {
	mu   sync.Mutex
	text string
	err  error
}

func (c *fakeClipboard) write(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = s
	return c.err
}

func (c *fakeClipboard) get() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

type testApp struct {
	app       AppView
	cfg       *config.Config
	store     *storage.ConversationStorage
	clipboard *fakeClipboard
}

func newTestApp(t *testing.T, chatter Chatter) *testApp {
	t.Helper()
	keyring.MockInit()

	dir := t.TempDir()
	t.Setenv("CMDAI_DATA_DIR", dir)
	t.Setenv("CMDAI_DEFAULT_MODEL", "")
	t.Setenv("CMDAI_OLLAMA_HOST", "")

	cfg, err := config.Load(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)

	store, err := storage.NewConversationStorage(cfg.ConversationsDir)
	require.NoError(t, err)

	clip := &fakeClipboard{}
	app := NewAppView(Options{Config: cfg, Router: chatter, Store: store, Clipboard: clip.write})

	ta := &testApp{app: app, cfg: cfg, store: store, clipboard: clip}
	ta.send(tea.WindowSizeMsg{Width: 120, Height: 40})
	return ta
}

// runCmd executes cmd, giving up on commands that block on timers.
func runCmd(cmd tea.Cmd) tea.Msg {
	if cmd == nil {
		return nil
	}
	ch := make(chan tea.Msg, 1)
	go func() { ch <- cmd() }()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(cmdTimeout):
		return nil
	}
}

func isAppMsg(msg tea.Msg) bool {
	switch msg.(type) {
	case modelsListMsg, conversationsListMsg, fragmentMsg, streamDoneMsg,
		conversationSavedMsg, conversationDeletedMsg, conversationsClearedMsg,
		lastModelSavedMsg, markdownRenderedMsg, clipboardMsg:
		return true
	}
	return false
}

// update applies msg without running the resulting command.
func (ta *testApp) update(msg tea.Msg) tea.Cmd {
	m, cmd := ta.app.Update(msg)
	ta.app = m.(AppView)
	return cmd
}

// send applies msg and runs every command it produces until quiet.
func (ta *testApp) send(msg tea.Msg) {
	ta.drain(ta.update(msg))
}

func (ta *testApp) drain(cmd tea.Cmd) {
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		switch msg := runCmd(next).(type) {
		case tea.BatchMsg:
			queue = append(queue, msg...)
		default:
			if isAppMsg(msg) {
				queue = append(queue, ta.update(msg))
			}
		}
	}
}

func (ta *testApp) key(t tea.KeyType) {
	ta.send(tea.KeyMsg{Type: t})
}

func (ta *testApp) typeText(s string) {
	ta.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func (ta *testApp) sendText(s string) {
	ta.app.textarea.SetValue(s)
	ta.key(tea.KeyEnter)
}

func mockRouter(stream iter.Seq2[string, error]) *router.Router {
	local := testutil.NewMockProvider("Ollama")
	local.StreamFunc = func(context.Context, string, []model.ChatMessage) iter.Seq2[string, error] {
		return stream
	}
	return router.New(local)
}

func TestSendStreamsReply(t *testing.T) {
	ta := newTestApp(t, mockRouter(testutil.Fragments("Hel", "lo **there**")))

	ta.sendText("hi")

	conv := ta.app.Conversation()
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "hi", conv.Title)
	assert.Equal(t, model.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, "Hello **there**", conv.Messages[1].Content)
	assert.Equal(t, config.DefaultModel, conv.Messages[1].Model)
	assert.False(t, ta.app.Streaming())
	assert.Empty(t, ta.app.textarea.Value())
	assert.NotEmpty(t, ta.app.rendered[1], "assistant reply is rendered as markdown")

	saved, err := ta.store.Load(conv.ID)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Len(t, saved.Messages, 2)

	require.Len(t, ta.app.conversations, 1, "conversation list refreshed after save")
	assert.Equal(t, conv.ID, ta.app.conversations[0].ID)
}

func TestSendSendsHistory(t *testing.T) {
	local := testutil.NewMockProvider("Ollama")
	ta := newTestApp(t, router.New(local))

	ta.sendText("first")
	ta.sendText("second")

	calls := local.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, config.DefaultModel, calls[1].Model)
	assert.Equal(t, []model.ChatMessage{
		{Role: model.RoleUser, Content: "first"},
		{Role: model.RoleAssistant, Content: "Mock response"},
		{Role: model.RoleUser, Content: "second"},
	}, calls[1].Messages)
}

func TestEmptyInputIsNotSent(t *testing.T) {
	local := testutil.NewMockProvider("Ollama")
	ta := newTestApp(t, router.New(local))

	ta.sendText("   \n ")

	assert.Empty(t, ta.app.Conversation().Messages)
	assert.Empty(t, local.Calls())
}

func TestStreamFailureKeepsMarker(t *testing.T) {
	failure := &provider.Error{Provider: "Ollama", Kind: provider.FailureTransport, Err: errors.New("connection reset")}
	ta := newTestApp(t, mockRouter(testutil.FragmentsThenError(failure, "partial")))

	ta.sendText("hi")

	reply, ok := ta.app.Conversation().LastAssistantReply()
	require.True(t, ok)
	assert.Equal(t, "partial\n\n[Error: Ollama connection failed: connection reset]", reply)
}

func TestUnconfiguredNamespaceReply(t *testing.T) {
	ta := newTestApp(t, router.New(testutil.NewMockProvider("Ollama")))
	ta.app.currentModel = "openai/gpt-4o"

	ta.sendText("hi")

	reply, ok := ta.app.Conversation().LastAssistantReply()
	require.True(t, ok)
	assert.Equal(t, "[Error: OpenAI API key not configured]", reply)
	assert.Equal(t, "openai/gpt-4o", ta.app.Conversation().Model)
}

// blockingChatter yields one fragment, then waits for cancellation and
// reports it the way a provider would.
type blockingChatter struct{}

func (blockingChatter) ListModels(context.Context) []string { return []string{"llama2"} }

func (blockingChatter) StreamChat(ctx context.Context, _ string, _ []model.ChatMessage) iter.Seq[string] {
	return func(yield func(string) bool) {
		if !yield("first") {
			return
		}
		<-ctx.Done()
		yield("\n\n[Error: Ollama canceled: context canceled]")
	}
}

func TestEscCancelsStream(t *testing.T) {
	ta := newTestApp(t, blockingChatter{})

	ta.app.textarea.SetValue("hi")
	pull := ta.update(tea.KeyMsg{Type: tea.KeyEnter})
	require.True(t, ta.app.Streaming())

	pull = ta.update(runCmd(pull)) // "first"
	assert.Equal(t, "first", ta.app.stream.reply.String())

	// Input is disabled while streaming.
	ta.app.textarea.SetValue("again")
	ta.update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Len(t, ta.app.Conversation().Messages, 1)
	assert.Contains(t, ta.app.status, "Wait for the response")

	ta.update(tea.KeyMsg{Type: tea.KeyEsc})
	ta.drain(pull)

	assert.False(t, ta.app.Streaming())
	reply, ok := ta.app.Conversation().LastAssistantReply()
	require.True(t, ok)
	assert.Equal(t, "first", reply, "marker after cancel is dropped")
	assert.Equal(t, "Response canceled", ta.app.status)
}

func TestStaleFragmentsIgnored(t *testing.T) {
	ta := newTestApp(t, mockRouter(testutil.Fragments("ok")))

	cmd := ta.update(fragmentMsg{StreamID: 42, Fragment: "stray"})
	assert.Nil(t, cmd)
	cmd = ta.update(streamDoneMsg{StreamID: 42})
	assert.Nil(t, cmd)
	assert.Empty(t, ta.app.Conversation().Messages)
}

func TestModelSelectorPersistsChoice(t *testing.T) {
	ta := newTestApp(t, mockRouter(testutil.Fragments("ok")))
	ta.send(modelsListMsg{Models: []string{"llama3", "mistral", "openai/gpt-4o"}})

	ta.key(tea.KeyCtrlO)
	require.True(t, ta.app.selector.active)
	assert.Equal(t, []string{"llama3", "mistral", "openai/gpt-4o"}, ta.app.selector.filtered)

	ta.typeText("gpt")
	assert.Equal(t, []string{"openai/gpt-4o"}, ta.app.selector.filtered)

	ta.key(tea.KeyEnter)

	assert.False(t, ta.app.selector.active)
	assert.Equal(t, "openai/gpt-4o", ta.app.CurrentModel())
	assert.Equal(t, "openai/gpt-4o", ta.app.Conversation().Model)

	reloaded, err := config.Load(ta.cfg.Path())
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o", reloaded.LastModel)
	assert.Equal(t, "openai/gpt-4o", reloaded.Model())
}

func TestModelSelectorEscKeepsModel(t *testing.T) {
	ta := newTestApp(t, mockRouter(testutil.Fragments("ok")))
	ta.send(modelsListMsg{Models: []string{"llama3", "mistral"}})

	ta.key(tea.KeyCtrlO)
	ta.key(tea.KeyDown)
	ta.key(tea.KeyEsc)

	assert.False(t, ta.app.selector.active)
	assert.Equal(t, config.DefaultModel, ta.app.CurrentModel())
}

func TestModelSelectorBeforeCatalog(t *testing.T) {
	ta := newTestApp(t, mockRouter(testutil.Fragments("ok")))

	ta.key(tea.KeyCtrlO)

	assert.Equal(t, []string{config.DefaultModel}, ta.app.selector.filtered)
	assert.Contains(t, ta.app.View(), "Select Model")
}

func TestInitialModelIsLastModel(t *testing.T) {
	keyring.MockInit()
	dir := t.TempDir()
	t.Setenv("CMDAI_DATA_DIR", dir)
	t.Setenv("CMDAI_DEFAULT_MODEL", "")

	cfg, err := config.Load(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	require.NoError(t, cfg.UpdateLastModel("anthropic/claude-sonnet-4-5"))

	app := NewAppView(Options{Config: cfg, Router: blockingChatter{}})

	assert.Equal(t, "anthropic/claude-sonnet-4-5", app.CurrentModel())
	assert.Equal(t, "anthropic/claude-sonnet-4-5", app.Conversation().Model)
}

func TestNewConversation(t *testing.T) {
	ta := newTestApp(t, mockRouter(testutil.Fragments("ok")))
	ta.sendText("hi")
	first := ta.app.Conversation().ID

	ta.key(tea.KeyCtrlN)

	assert.NotEqual(t, first, ta.app.Conversation().ID)
	assert.Empty(t, ta.app.Conversation().Messages)
	assert.Equal(t, model.DefaultTitle, ta.app.Conversation().Title)
}

func TestSidebarLoadAndDelete(t *testing.T) {
	local := testutil.NewMockProvider("Ollama")
	ta := newTestApp(t, router.New(local))

	ta.sendText("first conversation")
	firstID := ta.app.Conversation().ID
	ta.key(tea.KeyCtrlN)
	ta.sendText("second conversation")
	secondID := ta.app.Conversation().ID

	require.Len(t, ta.app.conversations, 2)
	assert.Equal(t, secondID, ta.app.conversations[0].ID, "newest first")

	ta.key(tea.KeyTab)
	assert.Equal(t, focusSidebar, ta.app.focus)
	ta.key(tea.KeyDown)
	ta.key(tea.KeyEnter)

	assert.Equal(t, firstID, ta.app.Conversation().ID)
	assert.Equal(t, focusInput, ta.app.focus)
	assert.Len(t, ta.app.Conversation().Messages, 2)

	// Delete the active conversation from the sidebar.
	ta.key(tea.KeyTab)
	ta.key(tea.KeyCtrlD)

	assert.NotEqual(t, firstID, ta.app.Conversation().ID, "deleting the active conversation starts a new one")
	require.Len(t, ta.app.conversations, 1)
	assert.Equal(t, secondID, ta.app.conversations[0].ID)

	gone, err := ta.store.Load(firstID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestLoadConversationSwitchesModel(t *testing.T) {
	ta := newTestApp(t, mockRouter(testutil.Fragments("ok")))

	conv := model.NewConversation("openai/gpt-4o")
	conv.AddMessage(model.NewUserMessage("stored"))
	conv.AddMessage(model.NewAssistantMessage("answer", "openai/gpt-4o"))
	require.NoError(t, ta.store.Save(conv))
	ta.drain(listConversations(ta.store))

	ta.key(tea.KeyTab)
	ta.key(tea.KeyEnter)

	assert.Equal(t, conv.ID, ta.app.Conversation().ID)
	assert.Equal(t, "openai/gpt-4o", ta.app.CurrentModel())
	assert.NotEmpty(t, ta.app.rendered[1])
}

func TestClearAllNeedsConfirmation(t *testing.T) {
	ta := newTestApp(t, mockRouter(testutil.Fragments("ok")))
	ta.sendText("one")
	ta.key(tea.KeyCtrlN)
	ta.sendText("two")
	require.Len(t, ta.app.conversations, 2)

	ta.key(tea.KeyCtrlX)
	assert.Len(t, ta.app.conversations, 2)
	assert.Contains(t, ta.app.status, "again")

	ta.key(tea.KeyCtrlX)

	assert.Empty(t, ta.app.conversations)
	assert.Empty(t, ta.app.Conversation().Messages)
	assert.Equal(t, "Deleted 2 conversations", ta.app.status)

	list, err := ta.store.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestClearAllConfirmationResets(t *testing.T) {
	ta := newTestApp(t, mockRouter(testutil.Fragments("ok")))
	ta.sendText("one")

	ta.key(tea.KeyCtrlX)
	ta.key(tea.KeyTab)
	ta.key(tea.KeyCtrlX)

	assert.Len(t, ta.app.conversations, 1)
}

func TestCopyLastReply(t *testing.T) {
	ta := newTestApp(t, mockRouter(testutil.Fragments("copy ", "me")))

	ta.key(tea.KeyCtrlY)
	assert.Equal(t, "Nothing to copy yet", ta.app.status)

	ta.sendText("hi")
	ta.key(tea.KeyCtrlY)

	assert.Equal(t, "copy me", ta.clipboard.get())
	assert.Equal(t, "Copied last reply", ta.app.status)
}

func TestCopyFailureShown(t *testing.T) {
	ta := newTestApp(t, mockRouter(testutil.Fragments("reply")))
	ta.clipboard.err = errors.New("no clipboard utility")
	ta.sendText("hi")

	ta.key(tea.KeyCtrlY)

	assert.True(t, ta.app.statusErr)
	assert.Contains(t, ta.app.status, "no clipboard utility")
}

func TestQuit(t *testing.T) {
	ta := newTestApp(t, blockingChatter{})

	cmd := ta.update(tea.KeyMsg{Type: tea.KeyCtrlC})

	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestViewShowsSidebarAndFooter(t *testing.T) {
	ta := newTestApp(t, mockRouter(testutil.Fragments("ok")))
	ta.sendText("a question about goroutines")

	view := ta.app.View()

	assert.Contains(t, view, "cmdai")
	assert.Contains(t, view, config.DefaultModel)
	assert.Contains(t, view, "Conversations (1)")
	assert.Contains(t, view, "Send")
}

func TestRenderMarkdown(t *testing.T) {
	out := RenderMarkdown("# Title\n\nSome **bold** text and `code`.", 60)

	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "bold")
	assert.False(t, strings.HasSuffix(out, "\n"))
}

func TestScrollWindow(t *testing.T) {
	tests := []struct {
		n, selected, size int
		start, end        int
	}{
		{5, 0, 10, 0, 5},
		{20, 0, 10, 0, 10},
		{20, 19, 10, 10, 20},
		{20, 10, 10, 5, 15},
	}
	for _, tt := range tests {
		start, end := scrollWindow(tt.n, tt.selected, tt.size)
		assert.Equal(t, tt.start, start)
		assert.Equal(t, tt.end, end)
	}
}

func TestHelpOverlay(t *testing.T) {
	ta := newTestApp(t, mockRouter(testutil.Fragments("ok")))

	ta.key(tea.KeyF1)
	require.True(t, ta.app.showHelp)
	assert.Contains(t, ta.app.View(), "Keyboard Shortcuts")

	// Keys do not reach the input while help is shown.
	ta.typeText("x")
	assert.Empty(t, ta.app.textarea.Value())

	ta.key(tea.KeyEsc)
	assert.False(t, ta.app.showHelp)
	assert.NotContains(t, ta.app.View(), "Keyboard Shortcuts")
}
