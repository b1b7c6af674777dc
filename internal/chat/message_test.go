package chat

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestLogAppendBuildsID(t *testing.T) {
	l := NewLog("room1", NewMemoryStore())

	before := time.Now().UnixMilli()
	m := l.Append(ScopeGlobal, "sess123", "alice", "hello", TypeRegular)
	after := time.Now().UnixMilli()

	want := fmt.Sprintf("%s-%s-%d", ScopeGlobal, "sess123", m.Timestamp)
	if m.ID != want {
		t.Errorf("expected id %q, got %q", want, m.ID)
	}
	if m.Timestamp < before || m.Timestamp > after {
		t.Errorf("timestamp %d outside append window [%d, %d]", m.Timestamp, before, after)
	}
	if m.Office != "" {
		t.Errorf("global message should have no office, got %q", m.Office)
	}
}

func TestLogAppendZoneSetsOffice(t *testing.T) {
	l := NewLog("room1", NewMemoryStore())

	m := l.Append("coffee", "sess123", "alice", "Joined Coffee Corner", TypePlayerJoined)

	if m.Office != "coffee" {
		t.Errorf("expected office 'coffee', got %q", m.Office)
	}
	if !strings.HasPrefix(m.ID, "coffee-sess123-") {
		t.Errorf("unexpected id format: %q", m.ID)
	}
	if l.Len("coffee") != 1 {
		t.Errorf("expected 1 message in coffee scope, got %d", l.Len("coffee"))
	}
	if l.Len(ScopeGlobal) != 0 {
		t.Errorf("zone append leaked into global scope: %d", l.Len(ScopeGlobal))
	}
}

func TestLogHistoryNeverNil(t *testing.T) {
	l := NewLog("room1", NewMemoryStore())
	if l.History(ScopeGlobal) == nil {
		t.Error("expected empty slice, got nil")
	}
}

func TestLogDelete(t *testing.T) {
	l := NewLog("room1", NewMemoryStore())
	l.Append(ScopeGlobal, "s1", "alice", "hello", TypeRegular)
	l.Append("coffee", "s1", "alice", "zone", TypeRegular)

	l.Delete()

	if l.Len(ScopeGlobal) != 0 || l.Len("coffee") != 0 {
		t.Error("expected all scopes empty after delete")
	}
}
