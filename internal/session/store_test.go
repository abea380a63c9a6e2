package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/sheetgate/internal/model"
)

func newTestStore(maxAge time.Duration) (*Store, *time.Time) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore(maxAge, 0)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestStore_UnknownIDIsAnonymous(t *testing.T) {
	s, _ := newTestStore(time.Hour)

	if got := s.Get("nope"); got.Phase != PhaseAnonymous {
		t.Errorf("Phase = %v, want anonymous", got.Phase)
	}
}

func TestStore_BeginFinishSuccess(t *testing.T) {
	s, _ := newTestStore(time.Hour)

	if err := s.Begin("b1"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if got := s.Get("b1"); got.Phase != PhaseVerifying {
		t.Errorf("Phase after Begin = %v, want verifying", got.Phase)
	}

	state, err := s.Finish("b1", model.Success("A"))
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if !state.Authenticated() || state.UserID != "A" {
		t.Errorf("state = %+v, want authenticated as A", state)
	}
	if got := s.Get("b1"); !got.Authenticated() {
		t.Errorf("stored state = %+v, want authenticated", got)
	}
}

func TestStore_BeginTwice_RejectsOverlappingAttempt(t *testing.T) {
	s, _ := newTestStore(time.Hour)

	if err := s.Begin("b1"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := s.Begin("b1"); !errors.Is(err, ErrAttemptInFlight) {
		t.Errorf("second Begin: err = %v, want ErrAttemptInFlight", err)
	}
	// 別ブラウザは独立している
	if err := s.Begin("b2"); err != nil {
		t.Errorf("Begin for other browser: %v", err)
	}
}

func TestStore_FailedAttemptKeepsNoticeUntilDismissed(t *testing.T) {
	s, _ := newTestStore(time.Hour)

	s.Begin("b1")
	if _, err := s.Finish("b1", model.Mismatch()); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	got := s.Get("b1")
	if got.Phase != PhaseAnonymous || got.Notice == nil || got.Notice.Title != "Access Denied" {
		t.Fatalf("state = %+v, want anonymous with Access Denied notice", got)
	}

	s.DismissNotice("b1")
	if got := s.Get("b1"); got.Notice != nil {
		t.Errorf("Notice after dismiss = %+v, want nil", got.Notice)
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0 (plain anonymous is not stored)", s.Len())
	}
}

func TestStore_FailedAttemptCanBeRetried(t *testing.T) {
	s, _ := newTestStore(time.Hour)

	for i := 0; i < 3; i++ {
		if err := s.Begin("b1"); err != nil {
			t.Fatalf("attempt %d Begin: %v", i, err)
		}
		if _, err := s.Finish("b1", model.Mismatch()); err != nil {
			t.Fatalf("attempt %d Finish: %v", i, err)
		}
	}
}

func TestStore_FinishWithoutBegin(t *testing.T) {
	s, _ := newTestStore(time.Hour)

	if _, err := s.Finish("b1", model.Success("A")); !errors.Is(err, ErrNotVerifying) {
		t.Errorf("err = %v, want ErrNotVerifying", err)
	}
}

func TestStore_Logout(t *testing.T) {
	s, _ := newTestStore(time.Hour)

	if err := s.Logout("b1"); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Logout while anonymous: err = %v, want ErrNotAuthenticated", err)
	}

	s.Begin("b1")
	s.Finish("b1", model.Success("A"))
	if err := s.Logout("b1"); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if got := s.Get("b1"); got.Phase != PhaseAnonymous {
		t.Errorf("Phase after logout = %v, want anonymous", got.Phase)
	}
}

func TestStore_ExpiredEntryIsAnonymous(t *testing.T) {
	s, now := newTestStore(time.Minute)

	s.Begin("b1")
	s.Finish("b1", model.Success("A"))

	*now = now.Add(2 * time.Minute)
	if got := s.Get("b1"); got.Phase != PhaseAnonymous {
		t.Errorf("Phase after expiry = %v, want anonymous", got.Phase)
	}
}

func TestStore_Cleanup_RemovesExpired(t *testing.T) {
	s, now := newTestStore(time.Minute)

	s.Begin("old")
	*now = now.Add(2 * time.Minute)
	s.Begin("fresh")

	s.cleanup()

	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestStore_ConcurrentBegin_OnlyOneWins(t *testing.T) {
	s := NewStore(time.Hour, 0)
	defer s.Stop()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Begin("b1"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("wins = %d, want 1", wins)
	}
}

func TestStore_StopIsIdempotent(t *testing.T) {
	s := NewStore(time.Hour, time.Millisecond)
	s.Stop()
	s.Stop()
}

func TestNewID_Unique(t *testing.T) {
	a, err := NewID()
	if err != nil {
		t.Fatalf("NewID: %v", err)
	}
	b, _ := NewID()
	if len(a) != 64 || a == b {
		t.Errorf("ids = %q, %q; want distinct 64-char hex", a, b)
	}
}

func TestStore_NoticeOnlyEntryExpiresBeforeMaxAge(t *testing.T) {
	s, now := newTestStore(24 * time.Hour)

	s.Begin("denied")
	s.Finish("denied", model.Mismatch())
	s.Begin("signed-in")
	s.Finish("signed-in", model.Success("A"))

	*now = now.Add(DefaultNoticeTTL + time.Minute)
	s.cleanup()

	if got := s.Get("denied"); got.Notice != nil {
		t.Errorf("notice = %+v, want expired after %v", got.Notice, DefaultNoticeTTL)
	}
	if got := s.Get("signed-in"); !got.Authenticated() {
		t.Errorf("authenticated entry should live for the full max age, got %+v", got)
	}
}

func TestStore_MaxEntries_EvictsOldestNoticeFirst(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore(time.Hour, 0, WithMaxEntries(3))
	s.now = func() time.Time { return now }
	tick := func() { now = now.Add(time.Second) }

	s.Begin("user")
	s.Finish("user", model.Success("A"))
	tick()
	s.Begin("denied-old")
	s.Finish("denied-old", model.Mismatch())
	tick()
	s.Begin("pending")
	tick()

	// 4件目で上限に達し、最も古い通知のみのエントリが追い出される
	s.Begin("denied-new")
	s.Finish("denied-new", model.Mismatch())

	if s.Len() != 3 {
		t.Fatalf("Len = %d, want 3", s.Len())
	}
	if got := s.Get("denied-old"); got.Notice != nil {
		t.Error("oldest notice-only entry should have been evicted")
	}
	if !s.Get("user").Authenticated() {
		t.Error("authenticated entry should be kept while notice-only entries exist")
	}
	if s.Get("pending").Phase != PhaseVerifying {
		t.Error("in-flight attempt must never be evicted")
	}
}

func TestStore_MaxEntries_NoNoticeEntries_EvictsOldestAuthenticated(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore(time.Hour, 0, WithMaxEntries(2))
	s.now = func() time.Time { return now }

	s.Begin("first")
	s.Finish("first", model.Success("A"))
	now = now.Add(time.Second)
	s.Begin("second")
	s.Finish("second", model.Success("A"))
	now = now.Add(time.Second)

	s.Begin("third")

	if s.Get("first").Authenticated() {
		t.Error("oldest authenticated entry should have been evicted")
	}
	if !s.Get("second").Authenticated() || s.Get("third").Phase != PhaseVerifying {
		t.Error("newer entries should be kept")
	}
}
