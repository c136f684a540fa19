package session

import (
	"sync"
	"testing"
)

func TestGetReturnsIdleForUnknownUser(t *testing.T) {
	s := NewStore()

	sess := s.Get(100)
	if sess.State != Idle {
		t.Fatalf("expected Idle, got %v", sess.State)
	}
}

func TestSetStateAndScratchData(t *testing.T) {
	s := NewStore()

	s.SetState(100, AwaitingDescription)
	s.Update(100, func(sess *Session) { sess.Operator = "MTS" })

	sess := s.Get(100)
	if sess.State != AwaitingDescription || sess.Operator != "MTS" {
		t.Fatalf("unexpected session: %+v", sess)
	}

	// Another user is unaffected.
	if other := s.Get(200); other.State != Idle {
		t.Fatalf("expected other user idle, got %+v", other)
	}
}

func TestResetClearsStateAndData(t *testing.T) {
	s := NewStore()

	s.Update(100, func(sess *Session) {
		sess.State = AwaitingReplyText
		sess.ReplyToID = 200
	})
	s.Reset(100)

	sess := s.Get(100)
	if sess.State != Idle || sess.ReplyToID != 0 {
		t.Fatalf("expected cleared session, got %+v", sess)
	}
}

func TestStoreIsSafeForConcurrentUse(t *testing.T) {
	s := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			s.SetState(n%5, AwaitingSiteURL)
			_ = s.Get(n % 5)
			s.Reset(n % 5)
		}(int64(i))
	}
	wg.Wait()
}
