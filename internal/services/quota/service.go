// Package quota owns quota accounting over the append-only ledger.
package quota

import (
	"context"
	"math/big"
	"strings"

	"github.com/google/uuid"

	"github.com/rpch-net/discovery-platform/internal/core"
	clientdomain "github.com/rpch-net/discovery-platform/internal/domain/client"
	quotadomain "github.com/rpch-net/discovery-platform/internal/domain/quota"
	"github.com/rpch-net/discovery-platform/internal/metrics"
	"github.com/rpch-net/discovery-platform/internal/storage"
	"github.com/rpch-net/discovery-platform/pkg/logger"
)

// ActionTaker identifies ledger entries created by this service.
const ActionTaker = "discovery-platform"

// Service manages clients and their quota ledger. Balances are derived sums
// over the entry set, never a mutable counter: appends are independent
// inserts with no read-modify-write race, and the balance is always
// recomputable from the rows.
type Service struct {
	clients   storage.ClientStore
	store     storage.LedgerStore
	baseQuota *big.Int
	log       *logger.Logger
}

// New constructs a quota ledger service. baseQuota is the grant attached to
// newly created trial clients; nil means no grant.
func New(clients storage.ClientStore, store storage.LedgerStore, baseQuota *big.Int, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("quota")
	}
	return &Service{
		clients:   clients,
		store:     store,
		baseQuota: baseQuota,
		log:       log,
	}
}

// Append inserts one ledger entry. Both the attributed client and the paying
// account must exist; sign and magnitude are otherwise unconstrained.
func (s *Service) Append(ctx context.Context, e quotadomain.Entry) (quotadomain.Entry, error) {
	if strings.TrimSpace(e.ClientID) == "" {
		return quotadomain.Entry{}, core.RequiredError("client_id")
	}
	if strings.TrimSpace(e.PaidBy) == "" {
		return quotadomain.Entry{}, core.RequiredError("paid_by")
	}
	if e.Quota == nil {
		return quotadomain.Entry{}, core.RequiredError("quota")
	}
	if e.ActionTaker == "" {
		e.ActionTaker = ActionTaker
	}

	if _, err := s.clients.GetClient(ctx, e.ClientID); err != nil {
		return quotadomain.Entry{}, err
	}
	if e.PaidBy != e.ClientID {
		if _, err := s.clients.GetClient(ctx, e.PaidBy); err != nil {
			return quotadomain.Entry{}, err
		}
	}

	created, err := s.store.CreateQuota(ctx, e)
	if err != nil {
		return quotadomain.Entry{}, err
	}
	s.log.WithField("client_id", created.ClientID).
		WithField("paid_by", created.PaidBy).
		WithField("quota", created.Quota.String()).
		Debug("quota entry appended")
	return created, nil
}

// Get returns one ledger entry by id.
func (s *Service) Get(ctx context.Context, id int64) (quotadomain.Entry, error) {
	return s.store.GetQuota(ctx, id)
}

// Delete removes one entry as an administrative correction.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.DeleteQuota(ctx, id)
}

// BalanceOf returns the exact integer sum of quota over all entries paid by
// the account. The sum can be negative; zero matching entries yield zero.
func (s *Service) BalanceOf(ctx context.Context, accountID string) (*big.Int, error) {
	return s.store.SumQuotasPaidBy(ctx, accountID)
}

// HasQuota reports whether the account's balance covers requiredAmount. This
// is a read of the aggregate, not a reservation: a concurrent debit between
// the check and the actual usage may still push the balance below zero.
func (s *Service) HasQuota(ctx context.Context, accountID string, requiredAmount *big.Int) (bool, error) {
	balance, err := s.BalanceOf(ctx, accountID)
	if err != nil {
		return false, err
	}
	ok := balance.Cmp(requiredAmount) >= 0
	if ok {
		metrics.QuotaChecks.WithLabelValues("granted").Inc()
	} else {
		metrics.QuotaChecks.WithLabelValues("denied").Inc()
	}
	return ok, nil
}

// CreateClient onboards an account.
func (s *Service) CreateClient(ctx context.Context, c clientdomain.Client) (clientdomain.Client, error) {
	c.ID = strings.TrimSpace(c.ID)
	if c.ID == "" {
		return clientdomain.Client{}, core.RequiredError("id")
	}
	if c.Payment == "" {
		c.Payment = clientdomain.PaymentTrial
	}
	return s.clients.CreateClient(ctx, c)
}

// CreateTrialClient creates a client with a generated id and grants it the
// configured base quota.
func (s *Service) CreateTrialClient(ctx context.Context, labels []string) (clientdomain.Client, error) {
	c, err := s.clients.CreateClient(ctx, clientdomain.Client{
		ID:      uuid.NewString(),
		Payment: clientdomain.PaymentTrial,
		Labels:  labels,
	})
	if err != nil {
		return clientdomain.Client{}, err
	}

	if s.baseQuota != nil && s.baseQuota.Sign() > 0 {
		if _, err := s.store.CreateQuota(ctx, quotadomain.Entry{
			ClientID:    c.ID,
			PaidBy:      c.ID,
			ActionTaker: ActionTaker,
			Quota:       new(big.Int).Set(s.baseQuota),
		}); err != nil {
			return clientdomain.Client{}, err
		}
	}
	s.log.WithField("client_id", c.ID).Info("trial client created")
	return c, nil
}

// GetClient returns one client by id.
func (s *Service) GetClient(ctx context.Context, id string) (clientdomain.Client, error) {
	return s.clients.GetClient(ctx, id)
}

// UpdateClient replaces a client's mutable fields (payment tier and labels).
func (s *Service) UpdateClient(ctx context.Context, c clientdomain.Client) (clientdomain.Client, error) {
	return s.clients.UpdateClient(ctx, c)
}

// DeleteClient removes the account. Its ledger rows are kept: the ledger is
// the audit trail and balances of other accounts may reference it via PaidBy.
func (s *Service) DeleteClient(ctx context.Context, id string) error {
	return s.clients.DeleteClient(ctx, id)
}
