// Package issuance composes the registry, limit store, credential pool
// and ledger into the single workflow that decides whether a user may
// receive another VPN configuration file and hands one out.
package issuance

import (
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/nevskii/vpnkeybot/internal/ledger"
	"github.com/nevskii/vpnkeybot/internal/limits"
	"github.com/nevskii/vpnkeybot/internal/pool"
	"github.com/nevskii/vpnkeybot/internal/registry"
)

// Workflow errors, translated into user-visible messages at the transport
// boundary.
var (
	// ErrForbidden indicates the requester is banned.
	ErrForbidden = errors.New("user is banned")
	// ErrUnauthorized indicates the requester has not been granted access.
	ErrUnauthorized = errors.New("user is not authorized")
	// ErrQuotaExceeded indicates the requester reached their effective limit.
	ErrQuotaExceeded = errors.New("credential limit reached")
	// ErrPoolExhausted indicates no credentials are left to issue.
	ErrPoolExhausted = errors.New("credential pool is empty")
	// ErrDeliveryFailed indicates the transport could not deliver the
	// credential; the credential was returned to the pool.
	ErrDeliveryFailed = errors.New("credential delivery failed")
)

// Service runs the credential issuance workflow.
type Service struct {
	// mu serializes whole issuance runs so a limit check and the ledger
	// append it authorizes cannot interleave with another run.
	mu       sync.Mutex
	registry *registry.Registry
	limits   *limits.Store
	pool     *pool.Pool
	ledger   *ledger.Ledger
}

// NewService constructs a Service over the four state components.
func NewService(reg *registry.Registry, lim *limits.Store, p *pool.Pool, led *ledger.Ledger) *Service {
	return &Service{registry: reg, limits: lim, pool: p, ledger: led}
}

// Result describes a successful issuance.
type Result struct {
	Credential pool.Credential
	// FirstKey reports whether this was the user's first credential,
	// which drives the first-time setup instructions.
	FirstKey bool
}

// Issue runs the full workflow for userID: ban check, authorization
// check, limit check (the administrator is exempt), credential pick,
// delivery through the given callback, and ledger recording. When
// delivery fails the credential is returned to the pool; once delivery
// succeeded the event is recorded even if that requires discarding the
// staged copy on a recording failure, so a delivered credential can never
// be issued a second time.
func (s *Service) Issue(userID int64, username string, deliver func(pool.Credential, bool) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	banned, err := s.registry.IsBanned(userID)
	if err != nil {
		return Result{}, err
	}
	if banned {
		return Result{}, ErrForbidden
	}

	authorized, err := s.registry.IsAuthorized(userID)
	if err != nil {
		return Result{}, err
	}
	if !authorized {
		return Result{}, ErrUnauthorized
	}

	if !s.registry.IsAdmin(userID) {
		limit, errLimit := s.limits.EffectiveLimit(userID)
		if errLimit != nil {
			return Result{}, errLimit
		}
		used, errUsed := s.ledger.CountFor(userID)
		if errUsed != nil {
			return Result{}, errUsed
		}
		if used >= limit {
			return Result{}, ErrQuotaExceeded
		}
	}

	firstKey, err := s.ledger.HasAny(userID)
	if err != nil {
		return Result{}, err
	}
	firstKey = !firstKey

	cred, err := s.pool.TakeNext()
	if err != nil {
		if errors.Is(err, pool.ErrExhausted) {
			return Result{}, ErrPoolExhausted
		}
		return Result{}, err
	}

	if errDeliver := deliver(cred, firstKey); errDeliver != nil {
		if errRestore := s.pool.Restore(cred.Filename); errRestore != nil {
			log.WithError(errRestore).WithField("file", cred.Filename).
				Error("failed to return credential to pool after delivery failure")
		}
		return Result{}, fmt.Errorf("%w: %v", ErrDeliveryFailed, errDeliver)
	}

	if errRecord := s.ledger.Record(userID, username, cred.Filename); errRecord != nil {
		// The user already holds the file; dropping the staged copy loses
		// one count but prevents the same credential going out twice.
		log.WithError(errRecord).WithField("file", cred.Filename).
			Error("credential delivered but not recorded")
		if errFinish := s.pool.Finish(cred.Filename); errFinish != nil {
			log.WithError(errFinish).WithField("file", cred.Filename).
				Error("failed to discard staged credential")
		}
		return Result{}, errRecord
	}

	if errFinish := s.pool.Finish(cred.Filename); errFinish != nil {
		log.WithError(errFinish).WithField("file", cred.Filename).
			Error("failed to discard staged credential")
	}

	log.WithFields(log.Fields{"user_id": userID, "file": cred.Filename}).Info("credential issued")
	return Result{Credential: cred, FirstKey: firstKey}, nil
}

// Reconcile resolves credentials left in the staging area by a crash
// between hand-off and recording. Run once at startup before serving.
func (s *Service) Reconcile() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	returned, discarded, err := s.pool.Reconcile(func(filename string) bool {
		ok, errContains := s.ledger.Contains(filename)
		if errContains != nil {
			log.WithError(errContains).Error("ledger lookup during reconciliation")
			return false
		}
		return ok
	})
	if err != nil {
		return err
	}
	if returned > 0 || discarded > 0 {
		log.WithFields(log.Fields{"returned": returned, "discarded": discarded}).
			Info("reconciled staged credentials")
	}
	return nil
}

// Stats summarizes pool and ledger state for the admin views.
type Stats struct {
	Remaining   int
	TotalIssued int
}

// Stats returns the current pool and ledger totals.
func (s *Service) Stats() (Stats, error) {
	remaining, err := s.pool.Remaining()
	if err != nil {
		return Stats{}, err
	}
	total, err := s.ledger.TotalIssued()
	if err != nil {
		return Stats{}, err
	}
	return Stats{Remaining: remaining, TotalIssued: total}, nil
}
