package tui

// calculateScrollOffset computes the new scroll offset to keep cursor visible within pageSize.
func calculateScrollOffset(cursor, currentOffset, pageSize int) int {
	if cursor < currentOffset {
		return cursor
	}
	if cursor >= currentOffset+pageSize {
		return cursor - pageSize + 1
	}
	return currentOffset
}

func (m *Model) ensureCursorVisible() {
	m.scrollOffset = calculateScrollOffset(m.cursor, m.scrollOffset, m.pageSize)
}

// navigateList moves the list cursor for navigation keys. It reports
// whether key was a navigation key.
func (m *Model) navigateList(key string, itemCount int) bool {
	changed := false

	switch key {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
			changed = true
		}
	case "down", "j":
		if m.cursor < itemCount-1 {
			m.cursor++
			changed = true
		}
	case "pgup", "ctrl+u":
		m.cursor -= m.pageSize
		if m.cursor < 0 {
			m.cursor = 0
		}
		changed = true
	case "pgdown", "ctrl+d":
		m.cursor += m.pageSize
		if m.cursor >= itemCount {
			m.cursor = itemCount - 1
		}
		if m.cursor < 0 {
			m.cursor = 0
		}
		changed = true
	case "home":
		m.cursor = 0
		m.scrollOffset = 0
		return true
	case "end", "G":
		m.cursor = itemCount - 1
		if m.cursor < 0 {
			m.cursor = 0
		}
		changed = true
	default:
		return false
	}

	if changed {
		m.ensureCursorVisible()
	}
	return true
}

// navigateThread moves the message cursor. The pending bubble is not a
// cursor target.
func (m *Model) navigateThread(key string) bool {
	last := len(m.messages) - 1
	switch key {
	case "up", "k":
		if m.threadCursor > 0 {
			m.threadCursor--
		}
	case "down", "j":
		if m.threadCursor < last {
			m.threadCursor++
		}
	case "home", "g":
		m.threadCursor = 0
	case "end", "G":
		m.threadCursor = last
	default:
		return false
	}
	if m.threadCursor > last {
		m.threadCursor = last
	}
	if m.threadCursor < 0 {
		m.threadCursor = 0
	}
	return true
}

// currentRow returns the conversation under the list cursor.
func (m Model) currentRow() (int, bool) {
	if m.cursor < 0 || m.cursor >= len(m.conversations) {
		return 0, false
	}
	return m.cursor, true
}
