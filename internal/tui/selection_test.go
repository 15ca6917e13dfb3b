package tui

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wesm/chatline/internal/chatapi"
	"github.com/wesm/chatline/internal/chatapi/chatapitest"
	"github.com/wesm/chatline/internal/testutil"
)

func TestToggleSelectionMode_TwiceRestoresRendering(t *testing.T) {
	m := NewBuilder().WithConversations(standardConvs()...).Open().Build()
	before := m.View()

	m, cmd := m.ToggleSelectionMode()
	assertCmd(t, cmd, false)
	m, _ = m.ToggleSelection("1")
	m, cmd = m.ToggleSelectionMode()
	assertCmd(t, cmd, false)

	if m.SelectionMode() {
		t.Error("selection mode should be off")
	}
	if len(m.SelectedIDs()) != 0 {
		t.Errorf("SelectedIDs = %v, want empty", m.SelectedIDs())
	}
	if after := m.View(); after != before {
		t.Errorf("rendering changed after toggling twice:\nbefore:\n%s\nafter:\n%s", before, after)
	}
	if n := mockOf(t, m).CallCount("ListConversations"); n != 0 {
		t.Errorf("ListConversations calls = %d, toggling must not fetch", n)
	}
}

func TestToggleSelectionMode_EnteringStartsEmptyWithDeleteDisabled(t *testing.T) {
	m := NewBuilder().WithConversations(standardConvs()...).Open().Build()

	m, _ = m.ToggleSelectionMode()

	if !m.SelectionMode() {
		t.Fatal("expected selection mode")
	}
	if m.CanDelete() {
		t.Error("delete must be disabled with nothing selected")
	}
	view := m.View()
	if got := strings.Count(view, checkboxOff); got != 3 {
		t.Errorf("unchecked boxes = %d, want one per row", got)
	}
}

func TestToggleSelectionMode_OnlyOnList(t *testing.T) {
	m := NewBuilder().InThread("alice", makeThread("1", "alice", "hi")).Build()

	m, _ = m.ToggleSelectionMode()

	if m.SelectionMode() {
		t.Error("selection mode cannot start from the thread pane")
	}
}

func TestToggleSelection(t *testing.T) {
	m := NewBuilder().WithConversations(standardConvs()...).InSelectionMode().Build()

	m, _ = m.ToggleSelection("3")
	m, _ = m.ToggleSelection("1")
	testutil.AssertEqualSlices(t, m.SelectedIDs(), chatapi.ID("1"), chatapi.ID("3"))
	if !m.CanDelete() {
		t.Error("delete should be enabled with a selection")
	}

	m, _ = m.ToggleSelection("1")
	m, _ = m.ToggleSelection("3")
	if len(m.SelectedIDs()) != 0 || m.CanDelete() {
		t.Error("toggling again should empty the selection and disable delete")
	}
}

func TestToggleSelection_UnknownIDIsNoop(t *testing.T) {
	m := NewBuilder().WithConversations(standardConvs()...).InSelectionMode("2").Build()

	m, _ = m.ToggleSelection("404")

	testutil.AssertEqualSlices(t, m.SelectedIDs(), chatapi.ID("2"))
	if diff := cmp.Diff(testutil.MakeSet[chatapi.ID]("2"), m.selectedIDs); diff != "" {
		t.Errorf("selectedIDs mismatch (-want +got):\n%s", diff)
	}
}

func TestToggleSelection_OutsideSelectionModeIsNoop(t *testing.T) {
	m := NewBuilder().WithConversations(standardConvs()...).Open().Build()

	m, _ = m.ToggleSelection("1")

	if len(m.SelectedIDs()) != 0 {
		t.Error("selection only changes in selection mode")
	}
}

func TestDeleteSelected_EmptyIsNoop(t *testing.T) {
	m := NewBuilder().WithConversations(standardConvs()...).InSelectionMode().Build()

	m, cmd := m.DeleteSelected()

	assertCmd(t, cmd, false)
	assertModal(t, m, modalNone)
}

func TestDeleteSelected_SuccessReloadsThenExitsSelection(t *testing.T) {
	svc := &chatapitest.MockService{}
	m := NewBuilder().WithService(svc).WithConversations(standardConvs()...).InSelectionMode("1", "2").Build()

	m, cmd := m.DeleteSelected()
	assertCmd(t, cmd, false)
	assertModal(t, m, modalDeleteConfirm)
	if n := svc.CallCount("DeleteConversations"); n != 0 {
		t.Fatal("nothing is deleted before confirmation")
	}

	m, cmd = sendKey(t, m, key('y'))
	assertCmd(t, cmd, true)
	assertModal(t, m, modalNone)
	if !m.deleting || m.CanDelete() {
		t.Error("delete action should be disabled while deleting")
	}

	m, _ = sendMsg(t, m, m.postDeleteConversations([]chatapi.ID{"1", "2"})())
	calls := svc.Calls()
	if diff := cmp.Diff([]chatapi.ID{"1", "2"}, calls[len(calls)-1].IDs); diff != "" {
		t.Errorf("deleted ids mismatch (-want +got):\n%s", diff)
	}
	if !m.SelectionMode() {
		t.Error("selection mode lasts until the reloaded list arrives")
	}
	if !m.listLoading {
		t.Fatal("a successful delete should reload the list")
	}

	svc.Conversations = []chatapi.Conversation{makeConv("3", "carol", "")}
	m = deliverList(t, m)

	if m.SelectionMode() || len(m.SelectedIDs()) != 0 {
		t.Error("selection mode should end after the reload")
	}
	if got := m.Conversations(); len(got) != 1 || got[0].ID != "3" {
		t.Errorf("conversations = %+v, want only carol", got)
	}
}

func TestDeleteSelected_FailureKeepsSelection(t *testing.T) {
	svc := &chatapitest.MockService{
		DeleteConversationsFunc: func(context.Context, []chatapi.ID) error {
			return &chatapi.StatusError{StatusCode: 500, Message: "db down"}
		},
	}
	m := NewBuilder().WithService(svc).WithConversations(standardConvs()...).InSelectionMode("1", "2").Build()

	m, _ = m.DeleteSelected()
	m, _ = sendKey(t, m, key('y'))
	m, cmd := sendMsg(t, m, m.postDeleteConversations([]chatapi.ID{"1", "2"})())

	assertCmd(t, cmd, true) // flash timer
	if !m.SelectionMode() {
		t.Error("selection mode should stay on after a failed delete")
	}
	testutil.AssertEqualSlices(t, m.SelectedIDs(), chatapi.ID("1"), chatapi.ID("2"))
	if m.listLoading {
		t.Error("a failed delete must not reload")
	}
	if !m.CanDelete() {
		t.Error("delete should be enabled again for a retry")
	}
	assertFlashContains(t, m, "Deleting conversations failed")
}

func TestDeleteSelected_CancelKeepsSelection(t *testing.T) {
	m := NewBuilder().WithConversations(standardConvs()...).InSelectionMode("1").Build()

	m, _ = m.DeleteSelected()
	m, cmd := sendKey(t, m, key('n'))

	assertCmd(t, cmd, false)
	assertModal(t, m, modalNone)
	testutil.AssertEqualSlices(t, m.SelectedIDs(), chatapi.ID("1"))
	if n := mockOf(t, m).CallCount("DeleteConversations"); n != 0 {
		t.Errorf("DeleteConversations calls = %d, want 0", n)
	}
}

func TestDeleteSelected_ReloadFailureKeepsSelectionMode(t *testing.T) {
	m := NewBuilder().WithConversations(standardConvs()...).InSelectionMode("1").Build()
	svc := mockOf(t, m)

	m, _ = m.DeleteSelected()
	m, _ = sendKey(t, m, key('y'))
	m, _ = sendMsg(t, m, m.postDeleteConversations([]chatapi.ID{"1"})())

	svc.ListConversationsFunc = func(context.Context) ([]chatapi.Conversation, error) {
		return nil, context.DeadlineExceeded
	}
	m = deliverList(t, m)

	if !m.SelectionMode() {
		t.Error("selection mode ends only with a fresh list")
	}
	assertFlashContains(t, m, "timed out")
}

func TestDeleteMessage_OnlyOwnMessages(t *testing.T) {
	th := makeThread("1", "alice", "theirs", "mine")
	m := NewBuilder().InThread("alice", th).Build()

	m, _ = m.DeleteMessage(th.Messages[0].ID)
	assertModal(t, m, modalNone)

	m, _ = m.DeleteMessage(th.Messages[1].ID)
	assertModal(t, m, modalDeleteMessageConfirm)
}

func TestDeleteMessage_ConfirmRemovesMessage(t *testing.T) {
	th := makeThread("1", "alice", "theirs", "mine")
	m := NewBuilder().WithConversations(standardConvs()...).InThread("alice", th).Build()
	mine := th.Messages[1].ID

	m, _ = m.DeleteMessage(mine)
	m, _ = sendKey(t, m, key('Y'))
	m, _ = sendMsg(t, m, m.postDeleteMessage(mine)())

	if got := m.Messages(); len(got) != 1 || got[0].ID == mine {
		t.Errorf("messages = %+v, want own message removed", got)
	}
	if m.threadCursor != 0 {
		t.Errorf("threadCursor = %d, want clamped", m.threadCursor)
	}
	if !m.listLoading {
		t.Error("deleting a message should refresh the list snippet")
	}
}

func TestDeleteMessage_Failure(t *testing.T) {
	th := makeThread("1", "alice", "theirs", "mine")
	m := NewBuilder().InThread("alice", th).Build()
	mockOf(t, m).DeleteMessageFunc = func(context.Context, chatapi.ID) error {
		return &chatapi.StatusError{StatusCode: 403, Message: "Forbidden"}
	}
	mine := th.Messages[1].ID

	m, _ = m.DeleteMessage(mine)
	m, _ = sendKey(t, m, key('y'))
	m, _ = sendMsg(t, m, m.postDeleteMessage(mine)())

	if len(m.Messages()) != 2 {
		t.Error("failed delete keeps the message")
	}
	assertFlashContains(t, m, "Deleting message failed")
}

func TestToggleSelectionMode_DropsOpenInFlight(t *testing.T) {
	m := NewBuilder().WithConversations(standardConvs()...).Open().Build()

	m, _ = sendKey(t, m, keyEnter())
	if !m.threadLoading {
		t.Fatal("enter should start loading alice's thread")
	}
	landed := m.fetchThread("1")()

	m, _ = sendKey(t, m, key('e'))
	if m.threadLoading {
		t.Error("entering selection mode should drop the open in flight")
	}
	m, _ = sendKey(t, m, keyDown())
	m, _ = sendKey(t, m, keySpace())
	m, _ = sendKey(t, m, key('d'))
	assertModal(t, m, modalDeleteConfirm)

	m, _ = sendMsg(t, m, landed)

	if m.InThread() {
		t.Error("a dropped open must not show the thread pane")
	}
	if !m.SelectionMode() {
		t.Error("selection mode should survive the late response")
	}
	assertModal(t, m, modalDeleteConfirm)
	testutil.AssertEqualSlices(t, m.SelectedIDs(), chatapi.ID("2"))
}

func TestThreadLoaded_IgnoredUnderModal(t *testing.T) {
	m := NewBuilder().WithConversations(standardConvs()...).Open().Build()

	m, _ = sendKey(t, m, keyEnter())
	m.modal = modalHelp
	m = deliverThread(t, m, "1")

	if m.InThread() {
		t.Error("an open landing under a modal must not switch panes")
	}
	if m.threadLoading {
		t.Error("the load should be finished")
	}
	assertModal(t, m, modalHelp)
}
