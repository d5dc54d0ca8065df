package session

import "testing"

const room = "!room:example.org"

func TestActiveEmpty(t *testing.T) {
	s := NewStore()
	if sess := s.Active(room); sess != nil {
		t.Fatalf("expected nil, got %+v", sess)
	}
}

func TestCreate(t *testing.T) {
	s := NewStore()
	created, err := s.Create(room, 5)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.SessionID == "" {
		t.Error("session ID should be minted")
	}
	if created.RoomID != room {
		t.Errorf("RoomID = %q, want %q", created.RoomID, room)
	}
	if created.EarliestKnownIndex != 5 || created.CurrentIndex != 5 {
		t.Errorf("indices = %d/%d, want 5/5", created.EarliestKnownIndex, created.CurrentIndex)
	}

	active := s.Active(room)
	if active == nil || active.SessionID != created.SessionID {
		t.Errorf("Active = %+v, want created session", active)
	}

	if _, err := s.Create(room, 0); err == nil {
		t.Error("second Create for same room should fail")
	}
}

func TestAdvance(t *testing.T) {
	s := NewStore()
	if _, err := s.Advance(room); err == nil {
		t.Error("Advance without session should fail")
	}

	if _, err := s.Create(room, 0); err != nil {
		t.Fatalf("Create: %v", err)
	}
	for want := uint32(1); want <= 3; want++ {
		got, err := s.Advance(room)
		if err != nil {
			t.Fatalf("Advance: %v", err)
		}
		if got != want {
			t.Errorf("Advance = %d, want %d", got, want)
		}
	}
	if active := s.Active(room); active.CurrentIndex != 3 {
		t.Errorf("CurrentIndex = %d, want 3", active.CurrentIndex)
	}
}

func TestRotate(t *testing.T) {
	s := NewStore()

	// Rotating a room without a session just creates one.
	retired, fresh := s.Rotate(room)
	if retired != nil {
		t.Errorf("retired = %+v, want nil", retired)
	}
	if fresh.SessionID == "" {
		t.Error("fresh session ID should be minted")
	}

	if _, err := s.Advance(room); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	retired, replacement := s.Rotate(room)
	if retired == nil || retired.SessionID != fresh.SessionID {
		t.Fatalf("retired = %+v, want previous session", retired)
	}
	if replacement.SessionID == fresh.SessionID {
		t.Error("replacement should have a new session ID")
	}
	if replacement.EarliestKnownIndex != 0 || replacement.CurrentIndex != 0 {
		t.Errorf("replacement indices = %d/%d, want 0/0",
			replacement.EarliestKnownIndex, replacement.CurrentIndex)
	}

	active := s.Active(room)
	if active == nil || active.SessionID != replacement.SessionID {
		t.Errorf("Active = %+v, want replacement", active)
	}
}
