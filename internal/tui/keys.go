package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// handleKeyPress processes keyboard input.
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.quitting = true
		return m, tea.Quit
	}

	if m.modal != modalNone {
		return m.handleModalKeys(msg)
	}
	if m.promptActive {
		return m.handlePromptKeys(msg)
	}

	switch {
	case !m.open:
		return m.handleLauncherKeys(msg)
	case m.view == viewThread && m.inputFocused:
		return m.handleComposerKeys(msg)
	case m.view == viewThread:
		return m.handleThreadKeys(msg)
	default:
		return m.handleListKeys(msg)
	}
}

// handleGlobalKeys handles keys common to the widget panes.
// Returns (model, cmd, true) if the key was handled, or (model, nil, false) otherwise.
func (m Model) handleGlobalKeys(msg tea.KeyMsg) (Model, tea.Cmd, bool) {
	switch msg.String() {
	case "?":
		m.modal = modalHelp
		m.helpScroll = 0
		return m, nil, true
	}
	return m, nil, false
}

// handleLauncherKeys handles keys while the widget is closed.
func (m Model) handleLauncherKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m2, cmd, handled := m.handleGlobalKeys(msg); handled {
		return m2, cmd
	}

	switch msg.String() {
	case "enter", "m":
		return m.OpenModal()
	case "n":
		m.promptActive = true
		m.prompt.SetValue("")
		return m, m.prompt.Focus()
	case "q":
		m.modal = modalQuitConfirm
	}
	return m, nil
}

// handlePromptKeys handles the start-with user id prompt.
func (m Model) handlePromptKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		id := normalizeUserID(m.prompt.Value())
		m.promptActive = false
		m.prompt.Blur()
		if id == "" {
			return m, nil
		}
		return m.StartConversationWith(id)
	case "esc":
		m.promptActive = false
		m.prompt.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return m, cmd
}

// handleListKeys handles keys on the conversation list pane.
func (m Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m2, cmd, handled := m.handleGlobalKeys(msg); handled {
		return m2, cmd
	}

	if m.navigateList(msg.String(), len(m.conversations)) {
		return m, nil
	}

	switch msg.String() {
	case "esc":
		return m.CloseModal()
	case "enter":
		idx, ok := m.currentRow()
		if !ok {
			return m, nil
		}
		id := m.conversations[idx].ID
		if m.selectionMode {
			// A row activation toggles its checkbox in selection mode.
			return m.ToggleSelection(id)
		}
		return m.OpenConversation(id)
	case " ":
		if idx, ok := m.currentRow(); ok {
			return m.ToggleSelection(m.conversations[idx].ID)
		}
	case "e":
		return m.ToggleSelectionMode()
	case "d", "D":
		return m.DeleteSelected()
	case "r":
		return m.LoadConversations()
	}
	return m, nil
}

// handleThreadKeys handles keys on the thread pane while the composer is
// not focused.
func (m Model) handleThreadKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m2, cmd, handled := m.handleGlobalKeys(msg); handled {
		return m2, cmd
	}

	if m.navigateThread(msg.String()) {
		return m, nil
	}

	switch msg.String() {
	case "esc", "b":
		return m.Back()
	case "i", "tab", "enter":
		m.inputFocused = true
		return m, m.input.Focus()
	case "d":
		if m.threadCursor >= 0 && m.threadCursor < len(m.messages) {
			return m.DeleteMessage(m.messages[m.threadCursor].ID)
		}
	case "r":
		// A reload would abandon the pending send and its rollback.
		if m.currentConversationID != "" && m.pending == nil {
			m.view = viewList
			return m.reopenThread()
		}
	}
	return m, nil
}

// reopenThread reloads the open conversation in place.
func (m Model) reopenThread() (Model, tea.Cmd) {
	id := m.currentConversationID
	title := m.threadTitle
	m2, cmd := m.OpenConversation(id)
	m2.pendingTitle = title
	m2.view = viewThread
	return m2, cmd
}

// handleComposerKeys handles keys while typing a message.
func (m Model) handleComposerKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		return m.SendMessage(m.input.Value())
	case "esc", "tab":
		m.inputFocused = false
		m.input.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleModalKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.modal {
	case modalDeleteConfirm:
		return m.handleDeleteConfirmKeys(msg)
	case modalDeleteMessageConfirm:
		return m.handleDeleteMessageConfirmKeys(msg)
	case modalQuitConfirm:
		return m.handleQuitConfirmKeys(msg)
	case modalHelp:
		return m.handleHelpKeys(msg)
	}
	return m, nil
}

func (m Model) handleDeleteConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		return m.confirmDeleteSelected()
	case "n", "N", "esc":
		m.modal = modalNone
		m.pendingDeleteIDs = nil
	}
	return m, nil
}

func (m Model) handleDeleteMessageConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		return m.confirmDeleteMessage()
	case "n", "N", "esc":
		m.modal = modalNone
		m.pendingDeleteMessageID = ""
	}
	return m, nil
}

func (m Model) handleQuitConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y", "enter":
		m.quitting = true
		return m, tea.Quit
	case "n", "N", "esc", "q":
		m.modal = modalNone
	}
	return m, nil
}

func (m Model) handleHelpKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "down", "j":
		m.helpScroll++
	case "up", "k":
		if m.helpScroll > 0 {
			m.helpScroll--
		}
	default:
		// Any other key closes help
		m.modal = modalNone
		m.helpScroll = 0
		return m, nil
	}
	// Clamp scroll to prevent overscroll
	if maxScroll := len(rawHelpLines) - m.helpMaxVisible(); maxScroll > 0 {
		if m.helpScroll > maxScroll {
			m.helpScroll = maxScroll
		}
	} else {
		m.helpScroll = 0
	}
	return m, nil
}
