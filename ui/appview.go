package ui

import (
	"context"
	"iter"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"cmdai/config"
	"cmdai/model"
	"cmdai/storage"
)

// Chatter is the part of the router the UI drives.
type Chatter interface {
	ListModels(ctx context.Context) []string
	StreamChat(ctx context.Context, id string, messages []model.ChatMessage) iter.Seq[string]
}

// Options wires the AppView to its collaborators. Index may be nil.
type Options struct {
	Config    *config.Config
	Router    Chatter
	Store     *storage.ConversationStorage
	Index     *storage.SearchIndex
	Clipboard func(string) error
}

type focusArea int

const (
	focusInput focusArea = iota
	focusSidebar
)

// inputHeight is the number of text rows in the input area.
const inputHeight = 3

type AppView struct {
	cfg       *config.Config
	router    Chatter
	store     *storage.ConversationStorage
	index     *storage.SearchIndex
	clipboard func(string) error

	// UI components
	viewport viewport.Model
	textarea textarea.Model

	width  int
	height int
	ready  bool
	focus  focusArea

	conversation *model.Conversation
	rendered     map[int]string // markdown for finalized assistant messages, by index

	conversations []*model.Conversation
	selectedConv  int
	pendingClear  bool

	models       []string
	currentModel string
	selector     selectorState
	showHelp     bool

	stream    *activeStream
	streamSeq int

	status    string
	statusErr bool
	statusSeq int
}

// NewAppView creates the main view with a fresh conversation on the
// configured model.
func NewAppView(opts Options) AppView {
	applyTheme(opts.Config.Theme)

	ta := textarea.New()
	ta.Placeholder = "Type a message. Enter sends, Alt+Enter adds a line."
	ta.Focus()
	ta.CharLimit = 0
	ta.ShowLineNumbers = false
	ta.SetHeight(inputHeight)
	ta.SetWidth(80)
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter"))
	ta.SetPromptFunc(2, func(lineIdx int) string {
		if lineIdx == 0 {
			return "> "
		}
		return "| "
	})

	write := opts.Clipboard
	if write == nil {
		write = clipboard.WriteAll
	}

	current := opts.Config.Model()

	return AppView{
		cfg:          opts.Config,
		router:       opts.Router,
		store:        opts.Store,
		index:        opts.Index,
		clipboard:    write,
		viewport:     viewport.New(0, 0),
		textarea:     ta,
		conversation: model.NewConversation(current),
		rendered:     make(map[int]string),
		currentModel: current,
		selector:     newSelectorState(),
	}
}

func (a AppView) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		fetchModels(a.router),
		listConversations(a.store),
	)
}

// Streaming reports whether a reply is being streamed.
func (a AppView) Streaming() bool {
	return a.stream != nil
}

// CurrentModel returns the model new messages are sent to.
func (a AppView) CurrentModel() string {
	return a.currentModel
}

// Conversation returns the active conversation.
func (a AppView) Conversation() *model.Conversation {
	return a.conversation
}

func (a AppView) View() string {
	if !a.ready {
		return "Loading cmdai..."
	}

	if a.selector.active {
		return a.renderModelSelector()
	}
	if a.showHelp {
		return a.renderHelpModal(a.width, a.height)
	}

	title := AssistantStyle.Render("cmdai") +
		TitleStyle.Render(" - "+a.currentModel) +
		UserStyle.Render(" - "+a.conversation.Title)

	chat := lipgloss.JoinVertical(
		lipgloss.Left,
		title,
		a.viewport.View(),
		a.textarea.View(),
	)

	body := lipgloss.JoinHorizontal(lipgloss.Top, a.renderSidebar(), chat)

	return lipgloss.JoinVertical(lipgloss.Left, body, a.renderFooter())
}

// layout sizes the components for the current window.
func (a *AppView) layout() {
	sidebar := a.sidebarWidth()
	chatWidth := a.width - sidebar - 2 // border + padding
	if chatWidth < 20 {
		chatWidth = 20
	}

	// title + input + footer
	vpHeight := a.height - 1 - (inputHeight + 1) - 1
	if vpHeight < 3 {
		vpHeight = 3
	}

	a.viewport.Width = chatWidth
	a.viewport.Height = vpHeight
	a.textarea.SetWidth(chatWidth)
}

func (a AppView) sidebarWidth() int {
	w := a.cfg.SidebarWidth
	if w > a.width/2 {
		w = a.width / 2
	}
	if w < 10 {
		w = 10
	}
	return w
}

func (a *AppView) chatWidth() int {
	return a.viewport.Width
}

// activeStream is the in-flight reply. next and stop come from iter.Pull and
// are only called from one command at a time.
type activeStream struct {
	id       int
	model    string
	next     func() (string, bool)
	stop     func()
	cancel   context.CancelFunc
	reply    *strings.Builder
	canceled bool
}
