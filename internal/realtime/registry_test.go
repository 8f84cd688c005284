package realtime

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
)

type fakeSub struct {
	user   uuid.UUID
	mu     sync.Mutex
	frames [][]byte
	full   bool
	closed atomic.Int32
}

func (f *fakeSub) Enqueue(frame []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.frames = append(f.frames, frame)
	return true
}

func (f *fakeSub) UserID() uuid.UUID { return f.user }

func (f *fakeSub) Close() { f.closed.Add(1) }

func (f *fakeSub) received() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func TestRegistry_PublishOnlyToChat(t *testing.T) {
	r := NewRegistry()
	chatA, chatB := uuid.New(), uuid.New()
	a1, a2, b1 := &fakeSub{}, &fakeSub{}, &fakeSub{}
	r.Join(chatA, a1)
	r.Join(chatA, a2)
	r.Join(chatB, b1)

	if n := r.Publish(chatA, []byte("x")); n != 2 {
		t.Errorf("Publish() = %d, want 2", n)
	}
	if a1.received() != 1 || a2.received() != 1 {
		t.Errorf("chat A subscribers received %d and %d frames, want 1 each", a1.received(), a2.received())
	}
	if b1.received() != 0 {
		t.Errorf("chat B subscriber received %d frames, want 0", b1.received())
	}
}

func TestRegistry_JoinTwiceCountsOnce(t *testing.T) {
	r := NewRegistry()
	chat := uuid.New()
	s := &fakeSub{}
	r.Join(chat, s)
	r.Join(chat, s)
	if got := r.Online(chat); got != 1 {
		t.Errorf("Online() = %d, want 1", got)
	}
	if n := r.Publish(chat, []byte("x")); n != 1 {
		t.Errorf("Publish() = %d, want 1", n)
	}
}

func TestRegistry_EvictsSlowSubscriber(t *testing.T) {
	r := NewRegistry()
	chat := uuid.New()
	ok, slow := &fakeSub{}, &fakeSub{full: true}
	r.Join(chat, ok)
	r.Join(chat, slow)

	if n := r.Publish(chat, []byte("x")); n != 1 {
		t.Errorf("Publish() = %d, want 1", n)
	}
	if slow.closed.Load() != 1 {
		t.Errorf("slow subscriber closed %d times, want 1", slow.closed.Load())
	}
	if got := r.Online(chat); got != 1 {
		t.Errorf("Online() = %d after eviction, want 1", got)
	}
	if r.Leave(chat, slow) {
		t.Error("Leave() after eviction = true, want false")
	}
	if !r.Leave(chat, ok) {
		t.Error("Leave() of joined subscriber = false, want true")
	}
	if got := r.Online(chat); got != 0 {
		t.Errorf("Online() = %d, want 0", got)
	}
}

func TestRegistry_PublishToEmptyChat(t *testing.T) {
	r := NewRegistry()
	if n := r.Publish(uuid.New(), []byte("x")); n != 0 {
		t.Errorf("Publish() = %d, want 0", n)
	}
}

func TestRegistry_ConcurrentJoinPublishLeave(t *testing.T) {
	r := NewRegistry()
	chat := uuid.New()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(2)
		s := &fakeSub{}
		go func() {
			defer wg.Done()
			r.Join(chat, s)
			r.Publish(chat, []byte("x"))
			r.Leave(chat, s)
		}()
		go func() {
			defer wg.Done()
			r.Publish(chat, []byte("y"))
		}()
	}
	wg.Wait()
	if got := r.Online(chat); got != 0 {
		t.Errorf("Online() = %d, want 0", got)
	}
}

func TestRegistry_EvictUsers(t *testing.T) {
	r := NewRegistry()
	chat, other := uuid.New(), uuid.New()
	removed, kept := uuid.New(), uuid.New()
	tab1, tab2 := &fakeSub{user: removed}, &fakeSub{user: removed}
	stay := &fakeSub{user: kept}
	elsewhere := &fakeSub{user: removed}
	r.Join(chat, tab1)
	r.Join(chat, tab2)
	r.Join(chat, stay)
	r.Join(other, elsewhere)

	if n := r.Evict(chat, []uuid.UUID{removed}); n != 2 {
		t.Fatalf("Evict() = %d, want both sessions of the user", n)
	}
	if tab1.closed.Load() != 1 || tab2.closed.Load() != 1 {
		t.Error("evicted sessions were not closed")
	}
	if elsewhere.closed.Load() != 0 || r.Online(other) != 1 {
		t.Error("Evict() touched another chat")
	}

	r.Publish(chat, []byte("after"))
	if tab1.received() != 0 || tab2.received() != 0 {
		t.Error("evicted user still received fan-out")
	}
	if stay.received() != 1 {
		t.Errorf("remaining member received %d frames, want 1", stay.received())
	}
	if r.Leave(chat, tab1) {
		t.Error("Leave() after Evict() = true, want false")
	}
	if n := r.Evict(chat, nil); n != 0 {
		t.Errorf("Evict(nil) = %d, want 0", n)
	}
}
