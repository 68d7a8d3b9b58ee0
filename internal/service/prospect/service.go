package prospect

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/prospect-crm/internal/domain"
	"github.com/ignite/prospect-crm/internal/pkg/logger"
)

// ProgressFunc receives commit progress after every company.
type ProgressFunc func(domain.ImportProgress)

// Service commits aggregated companies through a Repository.
type Service struct {
	repo          Repository
	insertTimeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithInsertTimeout bounds every single insert. Zero disables the bound.
func WithInsertTimeout(d time.Duration) Option {
	return func(s *Service) { s.insertTimeout = d }
}

// NewService creates a prospect service backed by the given repository.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.insertTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.insertTimeout)
}

// Commit inserts every company, its contacts and their phones, in list order
// and one at a time. The first failing insert stops the walk; the returned
// *CommitError carries what had been written until then.
func (s *Service) Commit(ctx context.Context, actor domain.Actor, companies []domain.ParsedCompany, onProgress ProgressFunc) (domain.ImportCounts, error) {
	var counts domain.ImportCounts
	if actor.ID == "" {
		return counts, ErrNoActor
	}
	if len(companies) == 0 {
		return counts, ErrNothingToCommit
	}

	total := len(companies)
	for i := range companies {
		company := &companies[i]
		fail := func(err error) (domain.ImportCounts, error) {
			logger.Error("prospect commit stopped",
				"actor", actor.ID,
				"index", i,
				"company", company.RaisonSocial,
				"inserted", counts.Companies,
				"error", err)
			return counts, &CommitError{Counts: counts, Index: i, Company: company.RaisonSocial, Err: err}
		}

		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		companyID, err := s.insertCompany(ctx, actor.ID, company)
		if err != nil {
			return fail(fmt.Errorf("insert company: %w", err))
		}
		if companyID != "" {
			counts.Companies++
			for j := range company.Contacts {
				if err := s.commitContact(ctx, actor.ID, companyID, &company.Contacts[j], &counts); err != nil {
					return fail(err)
				}
			}
		}

		if onProgress != nil {
			onProgress(domain.ImportProgress{Current: i + 1, Total: total})
		}
	}

	logger.Info("prospect commit finished",
		"actor", actor.ID,
		"companies", counts.Companies,
		"contacts", counts.Contacts,
		"phones", counts.Phones)
	return counts, nil
}

func (s *Service) commitContact(ctx context.Context, actorID, companyID string, contact *domain.ParsedContact, counts *domain.ImportCounts) error {
	opCtx, cancel := s.opCtx(ctx)
	contactID, err := s.repo.InsertContact(opCtx, actorID, companyID, contact)
	cancel()
	if err != nil {
		return fmt.Errorf("insert contact %s %s: %w", contact.Prenom, contact.Nom, err)
	}
	counts.Contacts++

	phones := contact.LabeledPhones()
	if contactID == "" || len(phones) == 0 {
		return nil
	}
	opCtx, cancel = s.opCtx(ctx)
	n, err := s.repo.InsertPhones(opCtx, actorID, contactID, phones)
	cancel()
	if err != nil {
		return fmt.Errorf("insert phones: %w", err)
	}
	counts.Phones += n
	return nil
}

func (s *Service) insertCompany(ctx context.Context, actorID string, c *domain.ParsedCompany) (string, error) {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.repo.InsertCompany(opCtx, actorID, c)
}
