package tui

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/wesm/chatline/internal/chatapi"
	"github.com/wesm/chatline/internal/chatapi/chatapitest"
	"github.com/wesm/chatline/internal/testutil"
	"github.com/wesm/chatline/internal/timefmt"
)

// colorProfileMu serializes tests that mutate the global lipgloss color profile.
var colorProfileMu sync.Mutex

// forceColorProfile sets lipgloss to ANSI color output for tests that assert
// on styled output. It acquires colorProfileMu to prevent data races with
// parallel tests and restores the original profile via t.Cleanup.
func forceColorProfile(t *testing.T) {
	t.Helper()
	colorProfileMu.Lock()
	orig := lipgloss.ColorProfile()
	lipgloss.SetColorProfile(termenv.ANSI)
	t.Cleanup(func() {
		lipgloss.SetColorProfile(orig)
		colorProfileMu.Unlock()
	})
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// =============================================================================
// Test Fixtures
// =============================================================================

// TestModelBuilder helps construct Model instances for testing
type TestModelBuilder struct {
	svc           *chatapitest.MockService
	conversations []chatapi.Conversation
	width         int
	height        int
	open          bool
	selection     []chatapi.ID
	selectionMode bool
	thread        *chatapi.Thread
	threadTitle   string
	modal         *modalType
}

func NewBuilder() *TestModelBuilder {
	return &TestModelBuilder{
		width:  100,
		height: 24,
	}
}

// WithService uses svc instead of a fresh MockService.
func (b *TestModelBuilder) WithService(svc *chatapitest.MockService) *TestModelBuilder {
	b.svc = svc
	return b
}

// WithConversations sets the last rendered list. The same list is what the
// mock returns on the next fetch unless the test changes it.
func (b *TestModelBuilder) WithConversations(convs ...chatapi.Conversation) *TestModelBuilder {
	b.conversations = convs
	return b
}

func (b *TestModelBuilder) WithSize(width, height int) *TestModelBuilder {
	b.width = width
	b.height = height
	return b
}

// Open starts the model with the widget visible on the list pane.
func (b *TestModelBuilder) Open() *TestModelBuilder {
	b.open = true
	return b
}

// InSelectionMode enters selection mode with ids already checked.
func (b *TestModelBuilder) InSelectionMode(ids ...chatapi.ID) *TestModelBuilder {
	b.open = true
	b.selectionMode = true
	b.selection = ids
	return b
}

// InThread opens th on the thread pane under title.
func (b *TestModelBuilder) InThread(title string, th *chatapi.Thread) *TestModelBuilder {
	b.open = true
	b.thread = th
	b.threadTitle = title
	return b
}

func (b *TestModelBuilder) WithModal(mt modalType) *TestModelBuilder {
	b.modal = &mt
	return b
}

func (b *TestModelBuilder) Build() Model {
	svc := b.svc
	if svc == nil {
		svc = &chatapitest.MockService{}
	}
	if svc.Conversations == nil {
		svc.Conversations = append([]chatapi.Conversation(nil), b.conversations...)
	}

	model := New(svc, Options{Formatter: timefmt.Osaka(), Logger: testutil.Logger()})
	model.width = b.width
	model.height = b.height
	model.pageSize = b.height - 4
	if model.pageSize < 1 {
		model.pageSize = 1
	}

	// The bootstrap fetch has already landed.
	model.listLoading = false
	model.spinnerActive = false
	model.conversations = append([]chatapi.Conversation{}, b.conversations...)
	model.launcherUnread = chatapi.AnyUnread(model.conversations)

	if b.open {
		model.open = true
		model.sessionCtx, model.cancelSession = context.WithCancel(model.baseCtx)
	}
	if b.selectionMode {
		model.selectionMode = true
		model.selectedIDs = testutil.MakeSet(b.selection...)
	}
	if b.thread != nil {
		model.view = viewThread
		model.currentConversationID = b.thread.ConversationID
		model.threadTitle = b.threadTitle
		model.messages = append([]chatapi.Message(nil), b.thread.Messages...)
		model.threadCursor = len(model.messages) - 1
		if model.threadCursor < 0 {
			model.threadCursor = 0
		}
	}
	if b.modal != nil {
		model.modal = *b.modal
	}
	return model
}

// mockOf returns the MockService behind m.
func mockOf(t *testing.T, m Model) *chatapitest.MockService {
	t.Helper()
	svc, ok := m.svc.(*chatapitest.MockService)
	if !ok {
		t.Fatalf("model service is %T, want *chatapitest.MockService", m.svc)
	}
	return svc
}

// sendKey sends a key message to the model and returns the updated concrete Model.
func sendKey(t *testing.T, m Model, k tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	newM, cmd := m.Update(k)
	return newM.(Model), cmd
}

// sendMsg sends any tea.Msg through Update and returns the concrete Model.
func sendMsg(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	newM, cmd := m.Update(msg)
	return newM.(Model), cmd
}

// -----------------------------------------------------------------------------
// Request helpers - run the fetch for the current generation and feed the
// result back, without waiting on spinner or flash timers.
// -----------------------------------------------------------------------------

// deliverList runs the list fetch for the current list generation.
func deliverList(t *testing.T, m Model) Model {
	t.Helper()
	m, _ = sendMsg(t, m, m.fetchConversations()())
	return m
}

// deliverThread runs the thread fetch for id under the current generation.
func deliverThread(t *testing.T, m Model, id chatapi.ID) Model {
	t.Helper()
	m, _ = sendMsg(t, m, m.fetchThread(id)())
	return m
}

// deliverStart runs the start request for a user under the current generation.
func deliverStart(t *testing.T, m Model, otherUserID chatapi.ID) Model {
	t.Helper()
	m, _ = sendMsg(t, m, m.fetchStart(otherUserID)())
	return m
}

// deliverSend runs the pending send for the open conversation.
func deliverSend(t *testing.T, m Model) Model {
	t.Helper()
	if m.pending == nil {
		t.Fatal("expected a pending send")
	}
	m, _ = sendMsg(t, m, m.postMessage(m.currentConversationID, m.pending.body)())
	return m
}

// -----------------------------------------------------------------------------
// Key Event Helpers - reduce verbosity of tea.KeyMsg construction
// -----------------------------------------------------------------------------

// key returns a KeyMsg for a single rune (e.g., key('x'), key(' '))
func key(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

// keyEnter returns a KeyMsg for the Enter key
func keyEnter() tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyEnter}
}

// keyEsc returns a KeyMsg for the Escape key
func keyEsc() tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyEscape}
}

// keyTab returns a KeyMsg for the Tab key
func keyTab() tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyTab}
}

// keyDown returns a KeyMsg for the Down arrow key
func keyDown() tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyDown}
}

// keyUp returns a KeyMsg for the Up arrow key
func keyUp() tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyUp}
}

// keySpace returns a KeyMsg for the space bar
func keySpace() tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
}

// keyCtrlC returns a KeyMsg for Ctrl+C
func keyCtrlC() tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyCtrlC}
}

// -----------------------------------------------------------------------------
// Data Factories - create test data with minimal boilerplate
// -----------------------------------------------------------------------------

// makeConv creates a read conversation with one message.
func makeConv(id, name, last string) chatapi.Conversation {
	return chatapi.Conversation{
		ID:            chatapi.ID(id),
		OtherUsername: name,
		LastMessage:   last,
		LastCreatedAt: "2024-03-01 12:30:00",
	}
}

// standardConvs returns three conversations, the second one unread.
func standardConvs() []chatapi.Conversation {
	b := makeConv("2", "bob", "see you")
	b.Unread = true
	return []chatapi.Conversation{
		makeConv("1", "alice", "hello"),
		b,
		makeConv("3", "carol", ""),
	}
}

// makeThread creates a thread alternating counterpart and own messages.
func makeThread(id, name string, bodies ...string) *chatapi.Thread {
	th := &chatapi.Thread{ConversationID: chatapi.ID(id), OtherUsername: name}
	for i, body := range bodies {
		th.Messages = append(th.Messages, chatapi.Message{
			ID:        chatapi.ID(id + "-m" + string(rune('0'+i))),
			Body:      body,
			CreatedAt: "2024-03-01 12:3" + string(rune('0'+i)) + ":00",
			FromMe:    i%2 == 1,
		})
	}
	return th
}

// -----------------------------------------------------------------------------
// Assertions
// -----------------------------------------------------------------------------

// assertModal checks that the model is in the expected modal state
func assertModal(t *testing.T, m Model, expected modalType) {
	t.Helper()
	if m.modal != expected {
		t.Errorf("expected modal %v, got %v", expected, m.modal)
	}
}

// assertCmd checks whether a command is nil or non-nil as expected.
func assertCmd(t *testing.T, cmd tea.Cmd, wantCmd bool) {
	t.Helper()
	if wantCmd && cmd == nil {
		t.Error("expected command to be returned")
	}
	if !wantCmd && cmd != nil {
		t.Error("expected no command")
	}
}

// assertFlashContains checks the flash banner text.
func assertFlashContains(t *testing.T, m Model, substr string) {
	t.Helper()
	if !strings.Contains(m.flashMessage, substr) {
		t.Errorf("flash = %q, want it to contain %q", m.flashMessage, substr)
	}
}

// countViewLines returns the number of non-trailing-empty lines in a view string.
func countViewLines(view string) int {
	lines := strings.Split(view, "\n")
	actual := len(lines)
	if actual > 0 && lines[actual-1] == "" {
		actual--
	}
	return actual
}

// assertViewFitsHeight checks that the rendered view fits within the given height.
func assertViewFitsHeight(t *testing.T, view string, height int) {
	t.Helper()
	actual := countViewLines(view)
	if actual > height {
		t.Errorf("View has %d lines but terminal height is %d", actual, height)
	}
}

// resizeModel sends a WindowSizeMsg and returns the updated model.
func resizeModel(t *testing.T, m Model, w, h int) Model {
	t.Helper()
	newModel, _ := m.Update(tea.WindowSizeMsg{Width: w, Height: h})
	return newModel.(Model)
}
