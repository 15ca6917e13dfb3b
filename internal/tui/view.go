package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// Monochrome theme - adaptive for light and dark terminals
var (
	// Background colors - adaptive for light/dark terminals
	bgBase   = lipgloss.AdaptiveColor{Light: "#ffffff", Dark: "#000000"}
	bgAlt    = lipgloss.AdaptiveColor{Light: "#f0f0f0", Dark: "#181818"}
	bgCursor = lipgloss.AdaptiveColor{Light: "#e0e0e0", Dark: "#282828"}

	// Title bar style - bold with visible background
	titleBarStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.AdaptiveColor{Light: "#e0e0e0", Dark: "#333333"}).
			Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#ffffff"}).
			Padding(0, 1)

	statsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#999999"}).
			Background(bgBase).
			Padding(0, 1)

	// Spinner style - NOT faint so it's visible
	spinnerStyle = lipgloss.NewStyle().
			Bold(true).
			Background(bgBase)

	// Cursor row: subtle lighter background
	cursorRowStyle = lipgloss.NewStyle().
			Background(bgCursor)

	// Selected (checked) rows: bold
	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Background(bgBase)

	// Normal rows need background to clear old content
	normalRowStyle = lipgloss.NewStyle().
			Background(bgBase)

	// Alternating rows: very subtle gray background
	altRowStyle = lipgloss.NewStyle().
			Background(bgAlt)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#999999"}).
			Background(bgBase).
			Padding(0, 1)

	placeholderStyle = lipgloss.NewStyle().
				Italic(true).
				Background(bgBase)

	// Delete bar: bold when the action is enabled, faint when not
	deleteBarStyle = lipgloss.NewStyle().
			Bold(true).
			Background(bgBase).
			Padding(0, 1)

	deleteBarDisabledStyle = lipgloss.NewStyle().
				Faint(true).
				Background(bgBase).
				Padding(0, 1)

	launcherStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 2).
			Bold(true)

	bubbleLabelStyle = lipgloss.NewStyle().
				Bold(true)

	bubbleTimeStyle = lipgloss.NewStyle().
			Faint(true)

	pendingStyle = lipgloss.NewStyle().
			Italic(true).
			Faint(true)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(1, 2).
			Background(bgBase)

	modalTitleStyle = lipgloss.NewStyle().
			Bold(true)

	flashStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#996600", Dark: "#ffcc00"}). // Amber for visibility
			Background(bgBase)
)

const (
	// unreadDot marks the launcher and unread list rows.
	unreadDot = "●"

	checkboxOn  = "[x]"
	checkboxOff = "[ ]"

	// selfLabel labels the viewer's own bubbles.
	selfLabel = "You"

	// sendingLabel marks a bubble the backend has not acknowledged yet.
	sendingLabel = "sending…"
)

// List column widths in terminal cells.
const (
	indicatorWidth = 2
	avatarWidth    = 3
	nameWidth      = 16
	trailWidth     = 18 // "YYYY/MM/DD HH:MM" + space + unread marker
)

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.width == 0 {
		return "Loading..."
	}

	var body string
	switch {
	case !m.open:
		body = m.launcherView()
	case m.view == viewThread:
		body = m.threadView()
	default:
		body = m.listView()
	}

	out := fmt.Sprintf("%s\n%s\n%s", m.titleBar(), body, m.footerView())
	if m.modal != modalNone {
		return m.overlayModal(out)
	}
	return out
}

// titleBar renders line 1: the launcher label with its unread dot, and the
// open pane on the right.
func (m Model) titleBar() string {
	left := m.launcherLabel()
	var right string
	switch {
	case !m.open:
	case m.view == viewThread:
		right = "← " + sanitizeLine(m.threadTitle)
	case m.selectionMode:
		right = "Select conversations"
	default:
		right = "Conversations"
	}

	content := left
	if right != "" {
		gap := m.width - 2 - lipgloss.Width(left) - lipgloss.Width(right)
		if gap < 1 {
			gap = 1
		}
		content += strings.Repeat(" ", gap) + right
	}
	return titleBarStyle.Render(padRight(content, m.width-2)) // -2 for padding
}

// launcherLabel returns the launcher text followed by the unread dot when
// any listed conversation is unread.
func (m Model) launcherLabel() string {
	label := m.launcherText
	if m.launcherUnread {
		label += " " + unreadDot
	}
	return label
}

// blankLine renders an empty full-width row.
func (m Model) blankLine() string {
	return normalRowStyle.Render(strings.Repeat(" ", m.width))
}

// fillLines pads lines with blank rows up to n and drops the excess.
func (m Model) fillLines(lines []string, n int) []string {
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) < n {
		lines = append(lines, m.blankLine())
	}
	return lines
}

// bodyRows is the number of rows between the title bar and the
// notification line.
func (m Model) bodyRows() int {
	rows := m.height - 3 // title, notification, footer
	if rows < 1 {
		rows = 1
	}
	return rows
}

// launcherView renders the closed widget: the launcher button and, while
// active, the start-with prompt.
func (m Model) launcherView() string {
	var lines []string
	lines = append(lines, m.blankLine())

	button := launcherStyle.Render(m.launcherLabel())
	for _, l := range strings.Split(button, "\n") {
		lines = append(lines, normalRowStyle.Render(padRight("  "+l, m.width)))
	}
	lines = append(lines, m.blankLine())
	if m.promptActive {
		lines = append(lines, normalRowStyle.Render(padRight("  "+m.prompt.View(), m.width)))
	}

	lines = m.fillLines(lines, m.bodyRows())
	lines = append(lines, m.renderNotificationLine())
	return strings.Join(lines, "\n")
}

// listView renders the conversation list pane: a sub-header (or delete
// bar in selection mode), the rows, and the notification line.
func (m Model) listView() string {
	var lines []string
	lines = append(lines, m.listSubHeader())

	if len(m.conversations) == 0 {
		lines = append(lines, placeholderStyle.Render(padRight("  "+m.emptyText, m.width)))
	} else {
		end := m.scrollOffset + m.pageSize
		if end > len(m.conversations) {
			end = len(m.conversations)
		}
		for i := m.scrollOffset; i < end; i++ {
			lines = append(lines, m.renderConversationRow(i))
		}
	}

	lines = m.fillLines(lines, m.bodyRows())
	lines = append(lines, m.renderNotificationLine())
	return strings.Join(lines, "\n")
}

// listSubHeader renders the delete bar in selection mode, and the
// conversation count otherwise.
func (m Model) listSubHeader() string {
	contentWidth := m.width - 2
	if contentWidth < 1 {
		contentWidth = 1
	}
	if !m.selectionMode {
		return statsStyle.Render(padRight(fmt.Sprintf("%d conversations", len(m.conversations)), contentWidth))
	}

	n := len(m.selectedIDs)
	if m.CanDelete() {
		return deleteBarStyle.Render(padRight(fmt.Sprintf("%d selected  [d] Delete", n), contentWidth))
	}
	label := "Select conversations to delete  [d] Delete"
	if m.deleting {
		label = fmt.Sprintf("%d selected  Deleting...", n)
	}
	return deleteBarDisabledStyle.Render(padRight(label, contentWidth))
}

// renderConversationRow renders list row i: avatar marker, name, snippet,
// then the timestamp and unread marker, or a checkbox in selection mode.
func (m Model) renderConversationRow(i int) string {
	c := m.conversations[i]
	isCursor := i == m.cursor
	isSelected := m.selectionMode && m.selectedIDs[c.ID]

	indicator := "  "
	if isCursor {
		indicator = "▶ "
	}

	avatar := padRight(avatarMarker(c.OtherUsername), avatarWidth)

	nw := nameWidth
	snippetWidth := m.width - indicatorWidth - avatarWidth - nw - trailWidth - 2
	if snippetWidth < 0 {
		// Narrow terminals give up snippet space first, then name space.
		nw += snippetWidth
		if nw < 4 {
			nw = 4
		}
		snippetWidth = 0
	}
	name := padRight(truncateRunes(sanitizeLine(c.OtherUsername), nw), nw)
	snippet := padRight(truncateRunes(sanitizeLine(c.LastMessage), snippetWidth), snippetWidth)

	var trail string
	if m.selectionMode {
		box := checkboxOff
		if isSelected {
			box = checkboxOn
		}
		trail = padLeft(box, trailWidth)
	} else {
		marker := " "
		if c.Unread {
			marker = unreadDot
		}
		stamp := runewidth.Truncate(sanitizeLine(m.formatter.Format(c.LastCreatedAt)), trailWidth-2, "")
		trail = padLeft(stamp+" "+marker, trailWidth)
	}

	line := indicator + avatar + name + " " + snippet + " " + trail

	var style lipgloss.Style
	switch {
	case isCursor:
		style = cursorRowStyle
	case isSelected:
		style = selectedRowStyle
	case i%2 == 0:
		style = normalRowStyle
	default:
		style = altRowStyle
	}
	return style.Render(padRight(line, m.width))
}

// bubbleWidth is the widest a message bubble's text may be.
func (m Model) bubbleWidth() int {
	w := m.width * 2 / 3
	if w < 10 {
		w = m.width - indicatorWidth
	}
	if w < 1 {
		w = 1
	}
	return w
}

// renderBubble renders one message as lines. Own messages are right-aligned.
func (m Model) renderBubble(label, stamp, body string, fromMe, isCursor, pending bool) []string {
	bw := m.bubbleWidth()

	header := bubbleLabelStyle.Render(label)
	if stamp != "" {
		header += " " + bubbleTimeStyle.Render(stamp)
	}
	if pending {
		header += " " + pendingStyle.Render(sendingLabel)
	}

	text := sanitize(body)
	content := []string{header}
	for _, l := range wrapText(text, bw) {
		if pending {
			l = pendingStyle.Render(l)
		}
		content = append(content, l)
	}

	style := normalRowStyle
	if isCursor {
		style = cursorRowStyle
	}

	lines := make([]string, 0, len(content))
	for j, l := range content {
		indicator := "  "
		if isCursor && j == 0 {
			indicator = "▶ "
		}
		avail := m.width - indicatorWidth
		var row string
		if fromMe {
			row = padLeft(l, avail)
		} else {
			row = padRight(l, avail)
		}
		lines = append(lines, style.Render(indicator+row))
	}
	return lines
}

// threadLines renders every bubble and reports the line span of the
// bubble under the cursor (or of the pending bubble).
func (m Model) threadLines() (lines []string, focusStart, focusEnd int) {
	counterpart := sanitizeLine(m.threadTitle)
	if counterpart == "" {
		counterpart = "Chat"
	}

	for i, msg := range m.messages {
		if i > 0 {
			lines = append(lines, m.blankLine())
		}
		label := counterpart
		if msg.FromMe {
			label = selfLabel
		}
		isCursor := m.pending == nil && i == m.threadCursor
		start := len(lines)
		lines = append(lines, m.renderBubble(label, sanitizeLine(m.formatter.Format(msg.CreatedAt)), msg.Body, msg.FromMe, isCursor, false)...)
		if isCursor {
			focusStart, focusEnd = start, len(lines)
		}
	}

	if m.pending != nil {
		if len(lines) > 0 {
			lines = append(lines, m.blankLine())
		}
		start := len(lines)
		lines = append(lines, m.renderBubble(selfLabel, "", m.pending.body, true, false, true)...)
		focusStart, focusEnd = start, len(lines)
	}
	return lines, focusStart, focusEnd
}

// threadView renders the thread pane: bubbles scrolled to the focused
// message, the composer, and the notification line.
func (m Model) threadView() string {
	rows := m.bodyRows() - 1 // composer line
	if rows < 1 {
		rows = 1
	}

	var visible []string
	if len(m.messages) == 0 && m.pending == nil {
		visible = []string{placeholderStyle.Render(padRight("  No messages in this conversation", m.width))}
	} else {
		all, focusStart, focusEnd := m.threadLines()
		start := focusEnd - rows
		if start < 0 {
			start = 0
		}
		if focusStart < start {
			start = focusStart
		}
		end := start + rows
		if end > len(all) {
			end = len(all)
		}
		visible = all[start:end]
	}

	lines := m.fillLines(append([]string(nil), visible...), rows)
	lines = append(lines, normalRowStyle.Render(padRight(" "+m.input.View(), m.width)))
	lines = append(lines, m.renderNotificationLine())
	return strings.Join(lines, "\n")
}

// footerView renders the footer with keybindings.
func (m Model) footerView() string {
	var keys []string
	var posStr string

	switch {
	case m.promptActive:
		keys = []string{"Enter start", "Esc cancel"}
	case !m.open:
		keys = []string{"Enter open", "n new", "? help", "q quit"}
	case m.view == viewThread && m.inputFocused:
		keys = []string{"Enter send", "Esc/Tab done"}
	case m.view == viewThread:
		keys = []string{"↑/k", "↓/j", "i write", "d del", "Esc back", "? help"}
		if len(m.messages) > 0 {
			posStr = fmt.Sprintf(" %d/%d ", m.threadCursor+1, len(m.messages))
		}
	case m.selectionMode:
		keys = []string{"↑/k", "↓/j", "Space toggle", "d del", "e done", "? help"}
		if len(m.conversations) > 0 {
			posStr = fmt.Sprintf(" %d/%d ", m.cursor+1, len(m.conversations))
		}
	default:
		keys = []string{"↑/k", "↓/j", "Enter", "e select", "r reload", "Esc close", "? help"}
		if len(m.conversations) > 0 {
			posStr = fmt.Sprintf(" %d/%d ", m.cursor+1, len(m.conversations))
		}
	}

	keysStr := strings.Join(keys, " │ ")

	// Use lipgloss.Width for ANSI-aware width calculation (handles Unicode arrows ↑↓ correctly)
	gap := m.width - lipgloss.Width(keysStr) - lipgloss.Width(posStr) - 2
	if gap < 0 {
		gap = 0
	}

	return footerStyle.Render(padRight(keysStr+strings.Repeat(" ", gap)+posStr, m.width-2))
}

// spinnerIndicator returns the current spinner frame string.
func (m Model) spinnerIndicator() string {
	if m.spinnerFrame < len(spinnerFrames) {
		return spinnerFrames[m.spinnerFrame]
	}
	return spinnerFrames[0]
}

// renderNotificationLine renders the line above the footer.
// Shows flash message, right-aligned loading spinner, or blank.
func (m Model) renderNotificationLine() string {
	loading := m.busy()
	if m.flashMessage != "" {
		flash := " " + sanitizeLine(m.flashMessage)
		if loading {
			// Flash + loading spinner
			indicator := m.spinnerIndicator()
			gap := m.width - lipgloss.Width(flash) - lipgloss.Width(indicator)
			if gap < 1 {
				gap = 1
			}
			return flashStyle.Render(padRight(flash+strings.Repeat(" ", gap)+indicator, m.width))
		}
		return flashStyle.Render(padRight(flash, m.width))
	}
	if loading {
		indicator := spinnerStyle.Render(m.spinnerIndicator())
		return normalRowStyle.Render(padLeft(indicator+" ", m.width))
	}
	return m.blankLine()
}

// rawHelpLines contains the help modal content. The first line is the title
// (rendered with modalTitleStyle at display time). This is a package-level
// variable so len() can be used without rebuilding the slice on every call.
var rawHelpLines = []string{
	"Keyboard Shortcuts", // rendered with modalTitleStyle in overlayModal
	"",
	"Launcher",
	"  Enter/m     Open conversations",
	"  n           Start a conversation with a user id",
	"  q           Quit",
	"",
	"Conversations",
	"  ↑/k, ↓/j    Move cursor up/down",
	"  PgUp/PgDn   Page up/down",
	"  Home/End    Go to first/last",
	"  Enter       Open conversation",
	"  r           Reload",
	"  Esc         Close",
	"",
	"Selection",
	"  e           Enter/leave selection mode",
	"  Space       Toggle selection",
	"  d/D         Delete selected",
	"",
	"Thread",
	"  ↑/k, ↓/j    Move between messages",
	"  i/Tab       Write a message",
	"  Enter       Send (while writing)",
	"  d           Delete your message",
	"  Esc/b       Back to conversations",
	"",
	"  Ctrl+C      Quit from anywhere",
	"",
	"[↑/↓] Scroll  [Any other key] Close",
}

// helpMaxVisible returns the max visible lines for the help modal given terminal height.
func (m Model) helpMaxVisible() int {
	v := m.height - 6
	if v < 1 {
		v = 1
	}
	if v > len(rawHelpLines) {
		v = len(rawHelpLines)
	}
	return v
}

// renderDeleteConfirmModal renders the bulk delete confirmation.
func (m Model) renderDeleteConfirmModal() string {
	n := len(m.pendingDeleteIDs)
	noun := "conversations"
	if n == 1 {
		noun = "conversation"
	}
	return modalTitleStyle.Render("Delete Conversations") + "\n\n" +
		fmt.Sprintf("Delete %d %s?\n", n, noun) +
		"They are hidden for you only and reappear\n" +
		"when a new message arrives.\n\n" +
		"[Y] Yes, delete    [N] Cancel"
}

// renderDeleteMessageConfirmModal renders the single-message delete confirmation.
func (m Model) renderDeleteMessageConfirmModal() string {
	return modalTitleStyle.Render("Delete Message") + "\n\n" +
		"Delete this message for everyone?\n\n" +
		"[Y] Yes, delete    [N] Cancel"
}

// renderQuitConfirmModal renders the quit confirmation modal content.
func (m Model) renderQuitConfirmModal() string {
	return modalTitleStyle.Render("Quit?") + "\n\n" +
		"Are you sure you want to quit?\n\n" +
		"[Y] Yes    [N] No"
}

// renderHelpModal renders the help modal content with scrolling support.
func (m Model) renderHelpModal() string {
	maxVisible := m.helpMaxVisible()

	// Clamp scroll offset
	maxScroll := len(rawHelpLines) - maxVisible
	if maxScroll < 0 {
		maxScroll = 0
	}
	if m.helpScroll > maxScroll {
		m.helpScroll = maxScroll
	}

	// Build visible slice, rendering the title line with style
	visible := rawHelpLines[m.helpScroll : m.helpScroll+maxVisible]
	rendered := make([]string, len(visible))
	for i, line := range visible {
		if m.helpScroll+i == 0 {
			rendered[i] = modalTitleStyle.Render(line)
		} else {
			rendered[i] = line
		}
	}
	return strings.Join(rendered, "\n")
}

// overlayModal renders a modal dialog over the content.
func (m Model) overlayModal(background string) string {
	var modalContent string

	switch m.modal {
	case modalDeleteConfirm:
		modalContent = m.renderDeleteConfirmModal()
	case modalDeleteMessageConfirm:
		modalContent = m.renderDeleteMessageConfirmModal()
	case modalQuitConfirm:
		modalContent = m.renderQuitConfirmModal()
	case modalHelp:
		modalContent = m.renderHelpModal()
	}

	if modalContent == "" {
		return background
	}

	// Render modal box
	modal := modalStyle.Render(modalContent)

	// Split background and modal into lines
	bgLines := strings.Split(background, "\n")
	modalLines := strings.Split(modal, "\n")

	// Calculate vertical centering
	startLine := (len(bgLines) - len(modalLines)) / 2
	if startLine < 0 {
		startLine = 0
	}

	// Calculate horizontal centering
	modalWidth := lipgloss.Width(modal)
	leftPadding := (m.width - modalWidth) / 2
	if leftPadding < 0 {
		leftPadding = 0
	}

	// Overlay modal onto background, preserving background where modal doesn't cover
	for i, modalLine := range modalLines {
		lineIdx := startLine + i
		if lineIdx >= len(bgLines) {
			break
		}
		bgLine := bgLines[lineIdx]
		bgWidth := lipgloss.Width(bgLine)

		var composite strings.Builder

		// Left portion of background (before modal)
		if leftPadding > 0 {
			leftBg := truncateToWidth(bgLine, leftPadding)
			composite.WriteString(leftBg)
			if w := lipgloss.Width(leftBg); w < leftPadding {
				composite.WriteString(strings.Repeat(" ", leftPadding-w))
			}
		}

		composite.WriteString(modalLine)

		// Right portion of background (after modal)
		rightStart := leftPadding + modalWidth
		if rightStart < bgWidth {
			composite.WriteString(skipToWidth(bgLine, rightStart))
		}

		bgLines[lineIdx] = composite.String()
	}

	return strings.Join(bgLines, "\n")
}
