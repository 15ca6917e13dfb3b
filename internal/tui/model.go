// Package tui provides the terminal chat widget for chatline.
package tui

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wesm/chatline/internal/chatapi"
	"github.com/wesm/chatline/internal/timefmt"
)

// viewKind is the pane shown inside the open widget.
type viewKind int

const (
	viewList viewKind = iota
	viewThread
)

// modalType represents the type of modal dialog.
type modalType int

const (
	modalNone modalType = iota
	modalDeleteConfirm
	modalDeleteMessageConfirm
	modalQuitConfirm
	modalHelp
)

// Options configures the widget.
type Options struct {
	Formatter    *timefmt.Formatter // timestamp display; nil means Asia/Tokyo
	Logger       *slog.Logger       // diagnostics; nil discards
	LauncherText string             // label of the launcher
	EmptyText    string             // placeholder row for an empty list

	// StartWith, when set, starts (or finds) the conversation with this
	// user as soon as the program runs.
	StartWith chatapi.ID
	// OpenOnStart opens the conversation list immediately.
	OpenOnStart bool
}

// pendingSend is a message that has been submitted but not yet
// acknowledged by the backend.
type pendingSend struct {
	body string
}

// Model is the chat widget following the Elm architecture. All widget
// state lives here; network work runs in commands that report back
// through messages.
type Model struct {
	svc       chatapi.Service
	formatter *timefmt.Formatter
	logger    *slog.Logger

	launcherText string
	emptyText    string

	// Widget visibility and pane
	open bool
	view viewKind

	// Conversation list (last successful snapshot)
	conversations  []chatapi.Conversation
	launcherUnread bool
	cursor         int
	scrollOffset   int

	// Selection mode
	selectionMode        bool
	selectedIDs          map[chatapi.ID]bool
	pendingSelectionExit bool // leave selection mode after the next list load

	// Thread
	currentConversationID chatapi.ID
	threadTitle           string
	pendingTitle          string // row name of the conversation being opened
	messages              []chatapi.Message
	threadCursor          int
	pending               *pendingSend
	input                 textinput.Model
	inputFocused          bool

	// Start-with prompt on the launcher screen
	prompt       textinput.Model
	promptActive bool

	// Modal state
	modal                  modalType
	pendingDeleteIDs       []chatapi.ID
	pendingDeleteMessageID chatapi.ID
	helpScroll             int

	// Requests run under the session context while the widget is open.
	baseCtx       context.Context
	sessionCtx    context.Context
	cancelSession context.CancelFunc

	// Request tracking to ignore stale async results
	listRequestID   uint64
	threadRequestID uint64
	sendRequestID   uint64
	deleteRequestID uint64

	// Loading state
	listLoading   bool
	threadLoading bool
	deleting      bool
	spinnerFrame  int
	spinnerActive bool

	// Terminal dimensions
	width    int
	height   int
	pageSize int

	// Flash message (temporary notification)
	flashMessage   string
	flashExpiresAt time.Time

	// Set when Init should start a conversation.
	startWith chatapi.ID

	quitting bool
}

// New creates a new chat widget backed by svc.
func New(svc chatapi.Service, opts Options) Model {
	formatter := opts.Formatter
	if formatter == nil {
		formatter = timefmt.Osaka()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	launcherText := opts.LauncherText
	if launcherText == "" {
		launcherText = "Messages"
	}
	emptyText := opts.EmptyText
	if emptyText == "" {
		emptyText = "No messages yet"
	}

	input := textinput.New()
	input.Placeholder = "Write a message"
	input.CharLimit = 2000
	input.Prompt = "> "

	prompt := textinput.New()
	prompt.Placeholder = "user id"
	prompt.CharLimit = 32
	prompt.Prompt = "Start conversation with: "

	m := Model{
		svc:          svc,
		formatter:    formatter,
		logger:       logger,
		launcherText: launcherText,
		emptyText:    emptyText,
		selectedIDs:  make(map[chatapi.ID]bool),
		input:        input,
		prompt:       prompt,
		baseCtx:      context.Background(),
		pageSize:     20,
		startWith:    opts.StartWith,
	}

	// The first list load sets the launcher dot even while closed.
	m.listRequestID = 1
	m.listLoading = true
	m.spinnerActive = true
	if opts.OpenOnStart {
		m.open = true
		m.sessionCtx, m.cancelSession = context.WithCancel(m.baseCtx)
	}
	if m.startWith != "" {
		m.threadRequestID = 1
		m.threadLoading = true
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.fetchConversations(), spinnerTick()}
	if m.startWith != "" {
		cmds = append(cmds, m.fetchStart(m.startWith))
	}
	return tea.Batch(cmds...)
}

// conversationsLoadedMsg is sent when the conversation list is loaded.
type conversationsLoadedMsg struct {
	conversations []chatapi.Conversation
	err           error
	requestID     uint64 // To detect stale responses
}

// threadLoadedMsg is sent when a thread is loaded or started.
type threadLoadedMsg struct {
	thread    *chatapi.Thread
	requestID chatapi.ID // conversation id (open) or user id (start) as requested
	started   bool       // true for the start endpoint
	err       error
	gen       uint64 // To detect stale responses
}

// messageSentMsg is sent when a send completes.
type messageSentMsg struct {
	message   *chatapi.Message
	body      string
	err       error
	requestID uint64
}

// conversationsDeletedMsg is sent when a bulk delete completes.
type conversationsDeletedMsg struct {
	ids       []chatapi.ID
	err       error
	requestID uint64
}

// messageDeletedMsg is sent when a single-message delete completes.
type messageDeletedMsg struct {
	id        chatapi.ID
	err       error
	requestID uint64
}

// flashClearMsg clears the flash message after timeout.
type flashClearMsg struct{}

// spinnerTickMsg advances the loading spinner animation.
type spinnerTickMsg struct{}

// spinnerFrames are the Braille dot animation frames for the loading spinner.
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// spinnerInterval is how fast the spinner animates.
const spinnerInterval = 80 * time.Millisecond

// flashDuration is how long flash messages are displayed.
const flashDuration = 4 * time.Second

// requestCtx returns the context new requests run under.
func (m Model) requestCtx() context.Context {
	if m.open && m.sessionCtx != nil {
		return m.sessionCtx
	}
	return m.baseCtx
}

// fetchConversations loads the conversation list.
func (m Model) fetchConversations() tea.Cmd {
	requestID := m.listRequestID
	ctx := m.requestCtx()
	svc := m.svc
	return func() (msg tea.Msg) {
		// Recover from panics to prevent TUI from becoming unresponsive
		defer func() {
			if r := recover(); r != nil {
				msg = conversationsLoadedMsg{err: fmt.Errorf("list panic: %v", r), requestID: requestID}
			}
		}()

		convs, err := svc.ListConversations(ctx)
		return conversationsLoadedMsg{conversations: convs, err: err, requestID: requestID}
	}
}

// fetchThread loads the history of a conversation.
func (m Model) fetchThread(id chatapi.ID) tea.Cmd {
	gen := m.threadRequestID
	ctx := m.requestCtx()
	svc := m.svc
	return func() (msg tea.Msg) {
		defer func() {
			if r := recover(); r != nil {
				msg = threadLoadedMsg{err: fmt.Errorf("thread panic: %v", r), requestID: id, gen: gen}
			}
		}()

		th, err := svc.LoadThread(ctx, id)
		return threadLoadedMsg{thread: th, requestID: id, err: err, gen: gen}
	}
}

// fetchStart finds or creates the conversation with a user.
func (m Model) fetchStart(otherUserID chatapi.ID) tea.Cmd {
	gen := m.threadRequestID
	ctx := m.requestCtx()
	svc := m.svc
	return func() (msg tea.Msg) {
		defer func() {
			if r := recover(); r != nil {
				msg = threadLoadedMsg{err: fmt.Errorf("start panic: %v", r), requestID: otherUserID, started: true, gen: gen}
			}
		}()

		th, err := svc.StartConversation(ctx, otherUserID)
		return threadLoadedMsg{thread: th, requestID: otherUserID, started: true, err: err, gen: gen}
	}
}

// postMessage sends a message body.
func (m Model) postMessage(convID chatapi.ID, body string) tea.Cmd {
	requestID := m.sendRequestID
	ctx := m.requestCtx()
	svc := m.svc
	return func() (msg tea.Msg) {
		defer func() {
			if r := recover(); r != nil {
				msg = messageSentMsg{err: fmt.Errorf("send panic: %v", r), body: body, requestID: requestID}
			}
		}()

		sent, err := svc.SendMessage(ctx, convID, body)
		return messageSentMsg{message: sent, body: body, err: err, requestID: requestID}
	}
}

// postDeleteConversations hides conversations for the viewer.
func (m Model) postDeleteConversations(ids []chatapi.ID) tea.Cmd {
	requestID := m.deleteRequestID
	ctx := m.requestCtx()
	svc := m.svc
	return func() (msg tea.Msg) {
		defer func() {
			if r := recover(); r != nil {
				msg = conversationsDeletedMsg{err: fmt.Errorf("delete panic: %v", r), ids: ids, requestID: requestID}
			}
		}()

		err := svc.DeleteConversations(ctx, ids)
		return conversationsDeletedMsg{ids: ids, err: err, requestID: requestID}
	}
}

// postDeleteMessage deletes one of the viewer's messages.
func (m Model) postDeleteMessage(id chatapi.ID) tea.Cmd {
	requestID := m.deleteRequestID
	ctx := m.requestCtx()
	svc := m.svc
	return func() (msg tea.Msg) {
		defer func() {
			if r := recover(); r != nil {
				msg = messageDeletedMsg{err: fmt.Errorf("delete panic: %v", r), id: id, requestID: requestID}
			}
		}()

		err := svc.DeleteMessage(ctx, id)
		return messageDeletedMsg{id: id, err: err, requestID: requestID}
	}
}

// spinnerTick returns a command that fires a spinnerTickMsg after the spinner interval.
func spinnerTick() tea.Cmd {
	return tea.Tick(spinnerInterval, func(t time.Time) tea.Msg {
		return spinnerTickMsg{}
	})
}

// startSpinner returns a spinnerTick command if the spinner isn't already active,
// and marks it as active. Call this when loading begins.
func (m *Model) startSpinner() tea.Cmd {
	if m.spinnerActive {
		return nil
	}
	m.spinnerActive = true
	m.spinnerFrame = 0
	return spinnerTick()
}

// busy reports whether any request is in flight.
func (m Model) busy() bool {
	return m.listLoading || m.threadLoading || m.pending != nil || m.deleting
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		// Clamp dimensions to prevent panics from strings.Repeat with negative count
		if m.width < 0 {
			m.width = 0
		}
		if m.height < 0 {
			m.height = 0
		}
		// Reserve space for: title bar (1) + sub-header or input (1) + notification (1) + footer (1) = 4
		m.pageSize = m.height - 4
		if m.pageSize < 1 {
			m.pageSize = 1
		}
		m.input.Width = m.width - 4
		m.ensureCursorVisible()
		return m, nil

	case conversationsLoadedMsg:
		return m.handleConversationsLoaded(msg)

	case threadLoadedMsg:
		return m.handleThreadLoaded(msg)

	case messageSentMsg:
		return m.handleMessageSent(msg)

	case conversationsDeletedMsg:
		return m.handleConversationsDeleted(msg)

	case messageDeletedMsg:
		return m.handleMessageDeleted(msg)

	case flashClearMsg:
		// Clear flash message if it hasn't been updated since the timer started
		if time.Now().After(m.flashExpiresAt) || m.flashExpiresAt.IsZero() {
			m.flashMessage = ""
		}
		return m, nil

	case spinnerTickMsg:
		if m.busy() {
			m.spinnerFrame = (m.spinnerFrame + 1) % len(spinnerFrames)
			return m, spinnerTick()
		}
		m.spinnerActive = false
		return m, nil
	}

	// Forward cursor blink and other internal messages to the focused input.
	var cmd tea.Cmd
	switch {
	case m.promptActive:
		m.prompt, cmd = m.prompt.Update(msg)
	case m.inputFocused:
		m.input, cmd = m.input.Update(msg)
	}
	return m, cmd
}

// showFlash displays a temporary flash message.
func (m Model) showFlash(message string) (Model, tea.Cmd) {
	m.flashMessage = message
	m.flashExpiresAt = time.Now().Add(flashDuration)
	return m, tea.Tick(flashDuration, func(t time.Time) tea.Msg {
		return flashClearMsg{}
	})
}

// failWith logs err and shows a flash banner.
func (m Model) failWith(op string, err error) (Model, tea.Cmd) {
	m.logger.Error(op+" failed", "error", err)
	return m.showFlash(fmt.Sprintf("%s failed: %s", op, describeError(err)))
}

// IsOpen reports whether the widget modal is visible.
func (m Model) IsOpen() bool { return m.open }

// InThread reports whether the thread pane is shown.
func (m Model) InThread() bool { return m.open && m.view == viewThread }

// SelectionMode reports whether bulk selection is active.
func (m Model) SelectionMode() bool { return m.selectionMode }

// SelectedIDs returns the selected conversation ids in list order.
func (m Model) SelectedIDs() []chatapi.ID {
	out := make([]chatapi.ID, 0, len(m.selectedIDs))
	for _, c := range m.conversations {
		if m.selectedIDs[c.ID] {
			out = append(out, c.ID)
		}
	}
	return out
}

// LauncherUnread reports whether the launcher shows the unread dot.
func (m Model) LauncherUnread() bool { return m.launcherUnread }

// Conversations returns the last rendered conversation list.
func (m Model) Conversations() []chatapi.Conversation { return m.conversations }

// CurrentConversationID returns the open conversation, or "".
func (m Model) CurrentConversationID() chatapi.ID { return m.currentConversationID }

// ThreadTitle returns the title of the open thread.
func (m Model) ThreadTitle() string { return m.threadTitle }

// Messages returns the rendered thread messages.
func (m Model) Messages() []chatapi.Message { return m.messages }
