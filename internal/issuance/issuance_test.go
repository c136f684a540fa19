package issuance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/nevskii/vpnkeybot/internal/ledger"
	"github.com/nevskii/vpnkeybot/internal/limits"
	"github.com/nevskii/vpnkeybot/internal/pool"
	"github.com/nevskii/vpnkeybot/internal/registry"
	"github.com/nevskii/vpnkeybot/internal/storage"
)

const adminID = int64(1)

type fixture struct {
	service    *Service
	registry   *registry.Registry
	limits     *limits.Store
	pool       *pool.Pool
	ledger     *ledger.Ledger
	configsDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()
	configsDir := filepath.Join(base, "configs")
	issuedDir := filepath.Join(base, "issued")
	for _, d := range []string{configsDir, issuedDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}

	reg := registry.New(
		adminID,
		storage.NewLineStore(filepath.Join(base, "authorized_users.txt")),
		storage.NewLineStore(filepath.Join(base, "banned_users.txt")),
	)
	lim := limits.NewStore(
		storage.NewLineStore(filepath.Join(base, "key_limit.txt")),
		storage.NewLineStore(filepath.Join(base, "user_limits.txt")),
	)
	p := pool.New(configsDir, issuedDir, 10<<20, 1220)
	led := ledger.New(
		storage.NewLineStore(filepath.Join(base, "keys_issued.txt")),
		storage.NewLineStore(filepath.Join(base, "keys_log.txt")),
	)
	return &fixture{
		service:    NewService(reg, lim, p, led),
		registry:   reg,
		limits:     lim,
		pool:       p,
		ledger:     led,
		configsDir: configsDir,
	}
}

func (f *fixture) seedPool(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(f.configsDir, name)
		if err := os.WriteFile(path, []byte("payload-"+name), 0o644); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}
}

func deliverOK(pool.Credential, bool) error { return nil }

func TestIssueScenarioLimitsAndExhaustion(t *testing.T) {
	f := newFixture(t)
	f.seedPool(t, "a.conf", "b.conf")
	if err := f.limits.SetGlobalLimit(1); err != nil {
		t.Fatalf("set global limit: %v", err)
	}
	for _, id := range []int64{100, 200, 300} {
		if err := f.registry.Grant(id); err != nil {
			t.Fatalf("grant %d: %v", id, err)
		}
	}

	res, err := f.service.Issue(100, "@alice", deliverOK)
	if err != nil {
		t.Fatalf("issue for 100: %v", err)
	}
	if res.Credential.Filename != "a.conf" {
		t.Fatalf("expected a.conf first, got %s", res.Credential.Filename)
	}
	n, err := f.ledger.CountFor(100)
	if err != nil || n != 1 {
		t.Fatalf("expected count 1 for user 100, got %d err=%v", n, err)
	}

	if _, err = f.service.Issue(100, "@alice", deliverOK); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}

	res, err = f.service.Issue(200, "@bob", deliverOK)
	if err != nil {
		t.Fatalf("issue for 200: %v", err)
	}
	if res.Credential.Filename != "b.conf" {
		t.Fatalf("expected b.conf for user 200, got %s", res.Credential.Filename)
	}

	if _, err = f.service.Issue(300, "@carol", deliverOK); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}
}

func TestIssueRejectsBannedBeforeAuthorized(t *testing.T) {
	f := newFixture(t)
	f.seedPool(t, "a.conf")

	if err := f.registry.Deny(100); err != nil {
		t.Fatalf("deny: %v", err)
	}
	if _, err := f.service.Issue(100, "@alice", deliverOK); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestIssueRejectsUnauthorized(t *testing.T) {
	f := newFixture(t)
	f.seedPool(t, "a.conf")

	if _, err := f.service.Issue(100, "@alice", deliverOK); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAdminIsExemptFromQuota(t *testing.T) {
	f := newFixture(t)
	f.seedPool(t, "a.conf", "b.conf")
	if err := f.limits.SetGlobalLimit(1); err != nil {
		t.Fatalf("set global limit: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := f.service.Issue(adminID, "@admin", deliverOK); err != nil {
			t.Fatalf("admin issue %d: %v", i, err)
		}
	}
	n, err := f.ledger.CountFor(adminID)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 admin issuances, got %d err=%v", n, err)
	}
}

func TestFirstKeyFlag(t *testing.T) {
	f := newFixture(t)
	f.seedPool(t, "a.conf", "b.conf")
	if err := f.registry.Grant(100); err != nil {
		t.Fatalf("grant: %v", err)
	}

	var sawFirst []bool
	deliver := func(_ pool.Credential, first bool) error {
		sawFirst = append(sawFirst, first)
		return nil
	}

	res, err := f.service.Issue(100, "@alice", deliver)
	if err != nil || !res.FirstKey {
		t.Fatalf("expected first issuance flagged, got %+v err=%v", res, err)
	}
	res, err = f.service.Issue(100, "@alice", deliver)
	if err != nil || res.FirstKey {
		t.Fatalf("expected second issuance unflagged, got %+v err=%v", res, err)
	}
	if len(sawFirst) != 2 || !sawFirst[0] || sawFirst[1] {
		t.Fatalf("delivery callback saw wrong first-key flags: %v", sawFirst)
	}
}

func TestDeliveryFailureReturnsCredentialToPool(t *testing.T) {
	f := newFixture(t)
	f.seedPool(t, "a.conf")
	if err := f.registry.Grant(100); err != nil {
		t.Fatalf("grant: %v", err)
	}

	boom := errors.New("network down")
	_, err := f.service.Issue(100, "@alice", func(pool.Credential, bool) error { return boom })
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}

	// Nothing recorded, credential available again.
	n, err := f.ledger.CountFor(100)
	if err != nil || n != 0 {
		t.Fatalf("expected no ledger events, got %d err=%v", n, err)
	}
	res, err := f.service.Issue(100, "@alice", deliverOK)
	if err != nil {
		t.Fatalf("reissue: %v", err)
	}
	if res.Credential.Filename != "a.conf" {
		t.Fatalf("expected a.conf restored and reissued, got %s", res.Credential.Filename)
	}
}

func TestConcurrentIssueRespectsLimit(t *testing.T) {
	f := newFixture(t)
	names := make([]string, 10)
	for i := range names {
		names[i] = fmt.Sprintf("key-%02d.conf", i)
	}
	f.seedPool(t, names...)
	if err := f.limits.SetGlobalLimit(1); err != nil {
		t.Fatalf("set global limit: %v", err)
	}
	if err := f.registry.Grant(100); err != nil {
		t.Fatalf("grant: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if _, err := f.service.Issue(100, "@alice", deliverOK); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else if !errors.Is(err, ErrQuotaExceeded) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly 1 successful issuance under limit 1, got %d", successes)
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	f.seedPool(t, "a.conf", "b.conf", "c.conf")
	if err := f.registry.Grant(100); err != nil {
		t.Fatalf("grant: %v", err)
	}

	if _, err := f.service.Issue(100, "@alice", deliverOK); err != nil {
		t.Fatalf("issue: %v", err)
	}

	stats, err := f.service.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Remaining != 2 || stats.TotalIssued != 1 {
		t.Fatalf("expected remaining=2 issued=1, got %+v", stats)
	}
}
