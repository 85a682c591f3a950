package tui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lodestar-dev/lodestar/internal/session"
)

func seedLedger(t *testing.T) (string, *session.Session) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.json")
	store, err := session.NewStore(session.Options{LedgerPath: path})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	sess, err := store.Create(session.Task{ID: "t1", Title: "review"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.UpdateContext(sess.ID, session.Context{Mode: "local"}); err != nil {
		t.Fatal(err)
	}
	return path, sess
}

func TestModelReloadPopulatesTable(t *testing.T) {
	path, sess := seedLedger(t)
	m := NewModel(path, time.Minute)

	msg := m.reload()()
	loaded, ok := msg.(reloadedMsg)
	if !ok {
		t.Fatalf("reload returned %T", msg)
	}
	if loaded.err != nil {
		t.Fatalf("reload failed: %v", loaded.err)
	}
	if len(loaded.sessions) != 1 || loaded.sessions[0].ID != sess.ID {
		t.Fatalf("unexpected sessions: %+v", loaded.sessions)
	}

	updated, _ := m.Update(loaded)
	m = updated.(*Model)
	view := m.View()
	if !strings.Contains(view, sess.ID) {
		t.Errorf("view should list the session id, got:\n%s", view)
	}
	if !strings.Contains(view, "1 total") {
		t.Errorf("view should report the session count, got:\n%s", view)
	}
}

func TestModelReloadErrorShownNotFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")
	m := NewModel(path, time.Minute)

	// A corrupt ledger shows an error but keeps the view running.
	if err := os.WriteFile(path, []byte("{broken"), 0o600); err != nil {
		t.Fatal(err)
	}
	msg := m.reload()()
	loaded := msg.(reloadedMsg)
	if loaded.err == nil {
		t.Fatal("expected reload error for corrupt ledger")
	}

	updated, _ := m.Update(loaded)
	m = updated.(*Model)
	if !strings.Contains(m.View(), "reload failed") {
		t.Error("view should surface the reload error")
	}
}

func TestModelQuitKeys(t *testing.T) {
	path, _ := seedLedger(t)

	for _, key := range []string{"q", "esc", "ctrl+c"} {
		m := NewModel(path, time.Minute)
		var msg tea.KeyMsg
		switch key {
		case "ctrl+c":
			msg = tea.KeyMsg{Type: tea.KeyCtrlC}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
		}
		_, cmd := m.Update(msg)
		if cmd == nil {
			t.Errorf("key %q should produce a quit command", key)
			continue
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("key %q produced %T, want tea.QuitMsg", key, cmd())
		}
	}
}

func TestModelMissingLedgerIsEmptyView(t *testing.T) {
	m := NewModel(filepath.Join(t.TempDir(), "sessions.json"), time.Minute)

	msg := m.reload()()
	loaded := msg.(reloadedMsg)
	if loaded.err != nil {
		t.Fatalf("missing ledger should read as empty: %v", loaded.err)
	}
	if len(loaded.sessions) != 0 {
		t.Errorf("expected no sessions, got %d", len(loaded.sessions))
	}
}
