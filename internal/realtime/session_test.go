package realtime

import (
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

func TestSession_StateMachine(t *testing.T) {
	s := newSession(nil, uuid.New(), uuid.New(), "tok")
	if s.State() != StateUnauthenticated {
		t.Fatalf("initial state = %v", s.State())
	}
	if s.advance(StateJoining, StateJoined) {
		t.Error("advance skipped Joining")
	}
	if !s.advance(StateUnauthenticated, StateJoining) || !s.advance(StateJoining, StateJoined) {
		t.Fatal("advance along the happy path failed")
	}
	if s.State() != StateJoined {
		t.Errorf("state = %v, want joined", s.State())
	}

	s.closeWith(websocket.ClosePolicyViolation, "nope")
	s.Close()
	if s.State() != StateClosed {
		t.Errorf("state = %v, want closed", s.State())
	}
	if s.closeCode != websocket.ClosePolicyViolation {
		t.Errorf("close code = %d, first close should win", s.closeCode)
	}
	if s.advance(StateClosed, StateJoined) {
		t.Error("left Closed")
	}
}

func TestSession_EnqueueBounded(t *testing.T) {
	s := newSession(nil, uuid.New(), uuid.New(), "tok")
	for i := 0; i < sendBufferSize; i++ {
		if !s.Enqueue([]byte("x")) {
			t.Fatalf("Enqueue(%d) = false before buffer is full", i)
		}
	}
	if s.Enqueue([]byte("x")) {
		t.Error("Enqueue() on a full buffer = true")
	}

	s2 := newSession(nil, uuid.New(), uuid.New(), "tok")
	s2.Close()
	if s2.Enqueue([]byte("x")) {
		t.Error("Enqueue() after Close = true")
	}
}

func TestState_String(t *testing.T) {
	want := map[State]string{
		StateUnauthenticated: "unauthenticated",
		StateJoining:         "joining",
		StateJoined:          "joined",
		StateClosed:          "closed",
		State(42):            "unknown",
	}
	for s, w := range want {
		if s.String() != w {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), w)
		}
	}
}
