package tui

import (
	"context"
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wesm/chatline/internal/chatapi"
)

// OpenModal shows the widget on the list pane and reloads the list.
// Calling it while already open only reloads.
func (m Model) OpenModal() (Model, tea.Cmd) {
	if !m.open {
		m.open = true
		m.view = viewList
		if m.cancelSession != nil {
			m.cancelSession()
		}
		m.sessionCtx, m.cancelSession = context.WithCancel(m.baseCtx)
	}
	return m.LoadConversations()
}

// CloseModal hides the widget, drops the open thread, leaves selection
// mode, and cancels everything in flight.
func (m Model) CloseModal() (Model, tea.Cmd) {
	if m.cancelSession != nil {
		m.cancelSession()
	}
	m.sessionCtx, m.cancelSession = nil, nil

	m.open = false
	m.view = viewList
	m.clearThread()
	m.selectionMode = false
	m.selectedIDs = make(map[chatapi.ID]bool)
	m.pendingSelectionExit = false
	m.modal = modalNone
	m.pendingDeleteIDs = nil
	m.pendingDeleteMessageID = ""

	// Late responses from the closed session are discarded.
	m.listRequestID++
	m.threadRequestID++
	m.sendRequestID++
	m.deleteRequestID++
	m.listLoading = false
	m.threadLoading = false
	m.deleting = false
	return m, nil
}

// clearThread forgets the open conversation.
func (m *Model) clearThread() {
	m.currentConversationID = ""
	m.threadTitle = ""
	m.pendingTitle = ""
	m.messages = nil
	m.threadCursor = 0
	m.pending = nil
	m.inputFocused = false
	m.input.Blur()
}

// LoadConversations fetches the conversation list. The newest request wins.
func (m Model) LoadConversations() (Model, tea.Cmd) {
	m.listRequestID++
	m.listLoading = true
	spinCmd := m.startSpinner()
	return m, tea.Batch(spinCmd, m.fetchConversations())
}

func (m Model) handleConversationsLoaded(msg conversationsLoadedMsg) (tea.Model, tea.Cmd) {
	// Ignore stale responses from previous loads
	if msg.requestID != m.listRequestID {
		return m, nil
	}
	m.listLoading = false
	exitSelection := m.pendingSelectionExit
	m.pendingSelectionExit = false

	if msg.err != nil {
		// Keep the stale list.
		return m.failWith("Loading conversations", msg.err)
	}

	convs := msg.conversations
	if convs == nil {
		convs = []chatapi.Conversation{}
	}
	m.conversations = convs
	m.launcherUnread = chatapi.AnyUnread(convs)

	// Selection can only hold ids that are still listed.
	present := make(map[chatapi.ID]bool, len(convs))
	for _, c := range convs {
		present[c.ID] = true
	}
	for id := range m.selectedIDs {
		if !present[id] {
			delete(m.selectedIDs, id)
		}
	}
	if exitSelection {
		m.selectionMode = false
		m.selectedIDs = make(map[chatapi.ID]bool)
	}

	if m.cursor >= len(convs) {
		m.cursor = len(convs) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	m.ensureCursorVisible()
	return m, nil
}

// conversationByID returns the listed conversation with id.
func (m Model) conversationByID(id chatapi.ID) (chatapi.Conversation, bool) {
	for _, c := range m.conversations {
		if c.ID == id {
			return c, true
		}
	}
	return chatapi.Conversation{}, false
}

// OpenConversation loads a conversation into the thread pane. It only
// applies from the list pane outside selection mode.
func (m Model) OpenConversation(id chatapi.ID) (Model, tea.Cmd) {
	if !m.open || m.view != viewList || m.selectionMode || id == "" {
		return m, nil
	}
	m.pendingTitle = ""
	if c, ok := m.conversationByID(id); ok {
		m.pendingTitle = c.OtherUsername
	}
	m.threadRequestID++
	m.sendRequestID++
	m.pending = nil
	m.threadLoading = true
	spinCmd := m.startSpinner()
	return m, tea.Batch(spinCmd, m.fetchThread(id))
}

// StartConversationWith finds or creates the conversation with a user and
// shows it in the thread pane, opening the widget if needed.
func (m Model) StartConversationWith(otherUserID chatapi.ID) (Model, tea.Cmd) {
	if otherUserID == "" {
		return m, nil
	}
	m.pendingTitle = ""
	m.threadRequestID++
	m.sendRequestID++
	m.pending = nil
	m.threadLoading = true
	spinCmd := m.startSpinner()
	return m, tea.Batch(spinCmd, m.fetchStart(otherUserID))
}

func (m Model) handleThreadLoaded(msg threadLoadedMsg) (tea.Model, tea.Cmd) {
	// Ignore stale responses from previous loads
	if msg.gen != m.threadRequestID {
		return m, nil
	}
	m.threadLoading = false
	if !msg.started && m.modal != modalNone {
		m.pendingTitle = ""
		return m, nil
	}

	err := msg.err
	if err == nil && (msg.thread == nil || (msg.started && msg.thread.ConversationID == "")) {
		err = errors.New("backend returned no conversation")
	}
	if err != nil {
		op := "Opening conversation"
		if msg.started {
			op = "Starting conversation"
		}
		return m.failWith(op, err)
	}

	th := msg.thread
	convID := th.ConversationID
	if convID == "" {
		convID = msg.requestID
	}

	if msg.started && !m.open {
		m.open = true
		m.sessionCtx, m.cancelSession = context.WithCancel(m.baseCtx)
	}
	// The thread pane never shows in selection mode.
	m.selectionMode = false
	m.selectedIDs = make(map[chatapi.ID]bool)
	m.pendingSelectionExit = false

	title := m.pendingTitle
	if title == "" {
		title = th.OtherUsername
	}
	if title == "" {
		title = "Chat"
	}

	m.view = viewThread
	m.currentConversationID = convID
	m.threadTitle = title
	m.pendingTitle = ""
	m.messages = append([]chatapi.Message(nil), th.Messages...)
	m.threadCursor = len(m.messages) - 1
	if m.threadCursor < 0 {
		m.threadCursor = 0
	}

	// Opening marks the conversation read on the backend.
	return m.LoadConversations()
}

// Back returns from the thread pane to the list.
func (m Model) Back() (Model, tea.Cmd) {
	if !m.open || m.view != viewThread {
		return m, nil
	}
	m.view = viewList
	m.clearThread()
	m.threadRequestID++
	m.sendRequestID++
	m.threadLoading = false
	return m, nil
}

// SendMessage posts body to the open conversation. Blank bodies, a
// missing conversation, and a send already in flight are no-ops.
func (m Model) SendMessage(body string) (Model, tea.Cmd) {
	text := strings.TrimSpace(body)
	if text == "" || m.currentConversationID == "" || m.view != viewThread || m.pending != nil {
		return m, nil
	}
	m.pending = &pendingSend{body: text}
	m.input.SetValue("")
	m.threadCursor = len(m.messages) // the pending bubble
	m.sendRequestID++
	spinCmd := m.startSpinner()
	return m, tea.Batch(spinCmd, m.postMessage(m.currentConversationID, text))
}

func (m Model) handleMessageSent(msg messageSentMsg) (tea.Model, tea.Cmd) {
	if msg.requestID != m.sendRequestID {
		return m, nil
	}
	m.pending = nil

	if msg.err == nil && msg.message == nil {
		msg.err = errors.New("backend returned no message")
	}
	if msg.err != nil {
		// Give the text back so it can be retried.
		if m.input.Value() == "" {
			m.input.SetValue(msg.body)
			m.input.CursorEnd()
		}
		m.threadCursor = len(m.messages) - 1
		if m.threadCursor < 0 {
			m.threadCursor = 0
		}
		return m.failWith("Sending message", msg.err)
	}

	sent := *msg.message
	sent.FromMe = true
	m.messages = append(m.messages, sent)
	m.threadCursor = len(m.messages) - 1
	return m.LoadConversations()
}

// ToggleSelectionMode enters or leaves bulk selection on the list pane.
// Either way the selection starts empty.
func (m Model) ToggleSelectionMode() (Model, tea.Cmd) {
	if !m.open || m.view != viewList {
		return m, nil
	}
	m.selectionMode = !m.selectionMode
	m.selectedIDs = make(map[chatapi.ID]bool)
	m.pendingSelectionExit = false
	if m.selectionMode && m.threadLoading {
		// An open still in flight would land on top of the selection.
		m.threadRequestID++
		m.threadLoading = false
		m.pendingTitle = ""
	}
	return m, nil
}

// ToggleSelection flips one conversation in or out of the selection.
// Ids that are not listed are ignored.
func (m Model) ToggleSelection(id chatapi.ID) (Model, tea.Cmd) {
	if !m.selectionMode {
		return m, nil
	}
	if _, ok := m.conversationByID(id); !ok {
		return m, nil
	}
	if m.selectedIDs[id] {
		delete(m.selectedIDs, id)
	} else {
		m.selectedIDs[id] = true
	}
	return m, nil
}

// CanDelete reports whether the delete action is enabled.
func (m Model) CanDelete() bool {
	return m.selectionMode && len(m.selectedIDs) > 0 && !m.deleting
}

// DeleteSelected asks for confirmation before deleting the selection.
func (m Model) DeleteSelected() (Model, tea.Cmd) {
	if !m.CanDelete() {
		return m, nil
	}
	m.pendingDeleteIDs = m.SelectedIDs()
	m.modal = modalDeleteConfirm
	return m, nil
}

// confirmDeleteSelected posts the pending bulk delete.
func (m Model) confirmDeleteSelected() (Model, tea.Cmd) {
	m.modal = modalNone
	ids := m.pendingDeleteIDs
	m.pendingDeleteIDs = nil
	if len(ids) == 0 {
		return m, nil
	}
	m.deleteRequestID++
	m.deleting = true
	spinCmd := m.startSpinner()
	return m, tea.Batch(spinCmd, m.postDeleteConversations(ids))
}

func (m Model) handleConversationsDeleted(msg conversationsDeletedMsg) (tea.Model, tea.Cmd) {
	if msg.requestID != m.deleteRequestID {
		return m, nil
	}
	m.deleting = false
	if msg.err != nil {
		// Selection mode and selection stay as they were.
		return m.failWith("Deleting conversations", msg.err)
	}
	m.logger.Info("conversations deleted", "count", len(msg.ids))
	m2, cmd := m.LoadConversations()
	m2.pendingSelectionExit = true
	return m2, cmd
}

// DeleteMessage asks for confirmation before deleting one of the
// viewer's own messages in the open thread.
func (m Model) DeleteMessage(id chatapi.ID) (Model, tea.Cmd) {
	if !m.InThread() || m.deleting {
		return m, nil
	}
	for _, msg := range m.messages {
		if msg.ID == id && msg.FromMe {
			m.pendingDeleteMessageID = id
			m.modal = modalDeleteMessageConfirm
			return m, nil
		}
	}
	return m, nil
}

// confirmDeleteMessage posts the pending single-message delete.
func (m Model) confirmDeleteMessage() (Model, tea.Cmd) {
	m.modal = modalNone
	id := m.pendingDeleteMessageID
	m.pendingDeleteMessageID = ""
	if id == "" {
		return m, nil
	}
	m.deleteRequestID++
	m.deleting = true
	spinCmd := m.startSpinner()
	return m, tea.Batch(spinCmd, m.postDeleteMessage(id))
}

func (m Model) handleMessageDeleted(msg messageDeletedMsg) (tea.Model, tea.Cmd) {
	if msg.requestID != m.deleteRequestID {
		return m, nil
	}
	m.deleting = false
	if msg.err != nil {
		return m.failWith("Deleting message", msg.err)
	}
	kept := m.messages[:0:0]
	for _, x := range m.messages {
		if x.ID != msg.id {
			kept = append(kept, x)
		}
	}
	m.messages = kept
	if m.threadCursor >= len(m.messages) {
		m.threadCursor = len(m.messages) - 1
	}
	if m.threadCursor < 0 {
		m.threadCursor = 0
	}
	return m.LoadConversations()
}

// describeError returns a short, single-line description for the banner.
func describeError(err error) string {
	var se *chatapi.StatusError
	switch {
	case errors.As(err, &se):
		return sanitizeLine(se.Error())
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	}
	return sanitizeLine(err.Error())
}
