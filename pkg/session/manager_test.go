package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cecdesk/core/pkg/access"
)

func newTestManager() *Manager {
	return NewManager(ManagerConfig{LocalDeviceID: "local-device"})
}

func TestCreateSession(t *testing.T) {
	m := newTestManager()
	s := m.CreateSession("remote-1", []access.Permission{access.PermissionViewScreen})

	if s.Status != StatusPending {
		t.Errorf("Status = %s, want Pending", s.Status)
	}
	if s.ControllerID != "local-device" || s.ControlledID != "remote-1" {
		t.Errorf("participants = %s -> %s", s.ControllerID, s.ControlledID)
	}
	if !s.EndedAt.IsZero() {
		t.Error("EndedAt should be unset on a live session")
	}
	if s.Stats.Kind != ConnectionUnknown {
		t.Errorf("Kind = %s, want unknown", s.Stats.Kind)
	}
}

func TestStateMachine(t *testing.T) {
	t.Run("pending to active to paused to active to ended", func(t *testing.T) {
		m := newTestManager()
		s := m.CreateSession("remote-1", nil)

		if _, err := m.JoinSession(s.ID); err != nil {
			t.Fatalf("JoinSession() error = %v", err)
		}
		if _, err := m.PauseSession(s.ID); err != nil {
			t.Fatalf("PauseSession() error = %v", err)
		}
		if _, err := m.ResumeSession(s.ID); err != nil {
			t.Fatalf("ResumeSession() error = %v", err)
		}
		if err := m.EndSession(s.ID, "user requested"); err != nil {
			t.Fatalf("EndSession() error = %v", err)
		}

		// Terminal sessions leave the live table and enter history.
		if _, err := m.Session(s.ID); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("Session() after end error = %v, want ErrSessionNotFound", err)
		}
		recs := m.History(time.Hour)
		if len(recs) != 1 || recs[0].EndReason != "user requested" {
			t.Errorf("History() = %+v, want one record with reason", recs)
		}
	})

	t.Run("illegal transitions", func(t *testing.T) {
		m := newTestManager()
		s := m.CreateSession("remote-1", nil)

		if _, err := m.PauseSession(s.ID); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("PauseSession(pending) error = %v, want ErrInvalidTransition", err)
		}
		if _, err := m.ResumeSession(s.ID); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("ResumeSession(pending) error = %v, want ErrInvalidTransition", err)
		}

		m.JoinSession(s.ID)
		if _, err := m.JoinSession(s.ID); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("JoinSession(active) error = %v, want ErrInvalidTransition", err)
		}
	})

	t.Run("fail from any non-terminal state", func(t *testing.T) {
		m := newTestManager()
		s := m.CreateSession("remote-1", nil)

		if err := m.FailSession(s.ID, "transport lost"); err != nil {
			t.Fatalf("FailSession(pending) error = %v", err)
		}
		recs := m.History(time.Hour)
		if len(recs) != 1 || !recs[0].Failed {
			t.Errorf("History() = %+v, want one failed record", recs)
		}

		// Terminal sessions reject further transitions.
		if err := m.EndSession(s.ID, "late"); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("EndSession(failed) error = %v, want ErrSessionNotFound", err)
		}
	})
}

func TestSessionEvents(t *testing.T) {
	m := newTestManager()

	var mu sync.Mutex
	var order []EventType
	m.Subscribe(func(ev Event) {
		mu.Lock()
		order = append(order, ev.Type)
		mu.Unlock()
	})

	s := m.CreateSession("remote-1", nil)
	m.JoinSession(s.ID)
	m.PauseSession(s.ID)
	m.ResumeSession(s.ID)
	m.EndSession(s.ID, "done")

	want := []EventType{EventCreated, EventStarted, EventPaused, EventResumed, EventEnded}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != len(want) {
		t.Fatalf("got %d events, want %d: %v", len(order), len(want), order)
	}
	for i, typ := range want {
		if order[i] != typ {
			t.Errorf("event[%d] = %s, want %s", i, order[i], typ)
		}
	}
}

func TestUpdateStats(t *testing.T) {
	m := newTestManager()
	s := m.CreateSession("remote-1", nil)
	m.JoinSession(s.ID)

	var got *Stats
	m.Subscribe(func(ev Event) {
		if ev.Type == EventStatsUpdated {
			got = ev.Stats
		}
	})

	if err := m.UpdateStats(s.ID, 40, 0.5, 5, 1000, 2000); err != nil {
		t.Fatalf("UpdateStats() error = %v", err)
	}
	if got == nil {
		t.Fatal("StatsUpdated not emitted")
	}
	if got.AvgLatencyMs != 40 {
		t.Errorf("AvgLatencyMs = %v, want 40 (first sample)", got.AvgLatencyMs)
	}
	if got.Quality != QualityExcellent {
		t.Errorf("Quality = %s, want Excellent", got.Quality)
	}

	// EMA folds the second sample at weight 0.1.
	m.UpdateStats(s.ID, 140, 0.5, 5, 0, 0)
	stats, _ := m.SessionStats(s.ID)
	if want := 40 + 0.1*(140-40); stats.AvgLatencyMs != want {
		t.Errorf("AvgLatencyMs = %v, want %v", stats.AvgLatencyMs, want)
	}
	if stats.MinLatencyMs != 40 || stats.MaxLatencyMs != 140 {
		t.Errorf("min/max = %v/%v, want 40/140", stats.MinLatencyMs, stats.MaxLatencyMs)
	}
	if stats.BytesSent != 1000 || stats.BytesReceived != 2000 {
		t.Errorf("bytes = %d/%d, want 1000/2000", stats.BytesSent, stats.BytesReceived)
	}
}

func TestClassifyQuality(t *testing.T) {
	cases := []struct {
		latency, loss, jitter float64
		want                  ConnectionQuality
	}{
		{40, 0.5, 5, QualityExcellent},
		{80, 2.0, 5, QualityGood},
		{150, 4.0, 5, QualityFair},
		{250, 8.0, 5, QualityPoor},
		{40, 0.5, 150, QualityGood}, // heavy jitter demotes
		{250, 8.0, 150, QualityPoor},
	}
	for _, c := range cases {
		if got := classifyQuality(c.latency, c.loss, c.jitter); got != c.want {
			t.Errorf("classifyQuality(%v, %v, %v) = %s, want %s", c.latency, c.loss, c.jitter, got, c.want)
		}
	}

	// Determinism: repeated classification of the same inputs agrees.
	for i := 0; i < 10; i++ {
		if classifyQuality(80, 2, 5) != QualityGood {
			t.Fatal("classification should be stable across invocations")
		}
	}
}

func TestPermissionRequests(t *testing.T) {
	t.Run("grant merges permissions", func(t *testing.T) {
		m := newTestManager()
		s := m.CreateSession("remote-1", []access.Permission{access.PermissionViewScreen})
		m.JoinSession(s.ID)

		reqID, err := m.RequestPermission(s.ID, []access.Permission{access.PermissionFileTransfer})
		if err != nil {
			t.Fatalf("RequestPermission() error = %v", err)
		}
		if err := m.GrantPermission(reqID, true); err != nil {
			t.Fatalf("GrantPermission() error = %v", err)
		}

		live, _ := m.Session(s.ID)
		if !access.ContainsPermission(live.Permissions, access.PermissionFileTransfer) {
			t.Error("granted permission should merge into the session")
		}
	})

	t.Run("expired request", func(t *testing.T) {
		m := newTestManager()
		s := m.CreateSession("remote-1", nil)
		reqID, _ := m.RequestPermission(s.ID, []access.Permission{access.PermissionClipboard})

		m.mu.Lock()
		m.requests[reqID].RequestedAt = time.Now().Add(-PermissionRequestValidity - time.Second)
		m.mu.Unlock()

		if err := m.GrantPermission(reqID, true); !errors.Is(err, ErrRequestExpired) {
			t.Errorf("GrantPermission(expired) error = %v, want ErrRequestExpired", err)
		}
	})

	t.Run("unknown request", func(t *testing.T) {
		m := newTestManager()
		if err := m.GrantPermission("missing", true); !errors.Is(err, ErrRequestNotFound) {
			t.Errorf("GrantPermission(missing) error = %v, want ErrRequestNotFound", err)
		}
	})
}

func TestSummarize(t *testing.T) {
	m := newTestManager()

	s1 := m.CreateSession("remote-1", nil)
	m.JoinSession(s1.ID)
	s2 := m.CreateSession("remote-2", nil)
	m.JoinSession(s2.ID)
	m.EndSession(s2.ID, "done")

	sum := m.Summarize()
	if sum.ActiveCount != 1 {
		t.Errorf("ActiveCount = %d, want 1", sum.ActiveCount)
	}
	if sum.EndedLast30d != 1 {
		t.Errorf("EndedLast30d = %d, want 1", sum.EndedLast30d)
	}
}

func TestHistoryRetention(t *testing.T) {
	h := newHistory(time.Hour, 10)
	now := time.Now()

	h.add(Record{SessionID: "old", EndedAt: now.Add(-2 * time.Hour)}, now)
	h.add(Record{SessionID: "new", EndedAt: now}, now)

	recs := h.within(24*time.Hour, now)
	if len(recs) != 1 || recs[0].SessionID != "new" {
		t.Errorf("within() = %+v, want only the fresh record", recs)
	}
}

func TestHistorySizeBound(t *testing.T) {
	h := newHistory(time.Hour, 3)
	now := time.Now()
	for i := 0; i < 5; i++ {
		h.add(Record{SessionID: string(rune('a' + i)), EndedAt: now}, now)
	}
	if len(h.records) != 3 {
		t.Errorf("history holds %d records, want 3", len(h.records))
	}
	if h.records[0].SessionID != "c" {
		t.Errorf("oldest retained = %s, want c", h.records[0].SessionID)
	}
}
