package prospect_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ignite/prospect-crm/internal/domain"
	"github.com/ignite/prospect-crm/internal/service/prospect"
)

// memRepo is an in-memory prospect repository for unit testing.
type memRepo struct {
	mu        sync.Mutex
	companies map[string]domain.ParsedCompany
	contacts  map[string]string // contact id -> company id
	phones    map[string][]domain.Phone
	actors    map[string]bool
	seq       int

	failCompany string // raison sociale whose insert fails
	failContact string // nom whose insert fails
	skipCompany string // raison sociale that yields an empty id
	phoneCalls  int
	deadlines   int
}

func newMemRepo() *memRepo {
	return &memRepo{
		companies: make(map[string]domain.ParsedCompany),
		contacts:  make(map[string]string),
		phones:    make(map[string][]domain.Phone),
		actors:    make(map[string]bool),
	}
}

func (m *memRepo) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memRepo) observe(ctx context.Context, actorID string) {
	if _, ok := ctx.Deadline(); ok {
		m.deadlines++
	}
	m.actors[actorID] = true
}

func (m *memRepo) InsertCompany(ctx context.Context, actorID string, c *domain.ParsedCompany) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observe(ctx, actorID)
	if c.RaisonSocial == m.failCompany {
		return "", errors.New("unique violation")
	}
	if c.RaisonSocial == m.skipCompany {
		return "", nil
	}
	id := m.nextID("co")
	m.companies[id] = *c
	return id, nil
}

func (m *memRepo) InsertContact(ctx context.Context, actorID, companyID string, c *domain.ParsedContact) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observe(ctx, actorID)
	if c.Nom == m.failContact {
		return "", errors.New("connection reset")
	}
	id := m.nextID("ct")
	m.contacts[id] = companyID
	return id, nil
}

func (m *memRepo) InsertPhones(ctx context.Context, actorID, contactID string, phones []domain.Phone) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observe(ctx, actorID)
	m.phoneCalls++
	m.phones[contactID] = append(m.phones[contactID], phones...)
	return len(phones), nil
}

var actor = domain.Actor{ID: "user-1", Email: "alice@example.com"}

func sampleCompanies() []domain.ParsedCompany {
	return []domain.ParsedCompany{
		{RaisonSocial: "FormaPro", Contacts: []domain.ParsedContact{
			{Nom: "Dupont", Prenom: "Jean", Phones: []string{"0612345678"}},
			{Nom: "Martin", Prenom: "Marie", Phones: []string{"0611223344", "0698765432"}},
		}},
		{RaisonSocial: "Acme"},
		{RaisonSocial: "Beta", Contacts: []domain.ParsedContact{
			{Nom: "Durand"},
		}},
	}
}

func TestCommit_Success(t *testing.T) {
	repo := newMemRepo()
	svc := prospect.NewService(repo)

	var progress []domain.ImportProgress
	counts, err := svc.Commit(context.Background(), actor, sampleCompanies(), func(p domain.ImportProgress) {
		progress = append(progress, p)
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	want := domain.ImportCounts{Companies: 3, Contacts: 3, Phones: 3}
	if counts != want {
		t.Fatalf("counts = %+v, want %+v", counts, want)
	}
	if len(progress) != 3 || progress[2] != (domain.ImportProgress{Current: 3, Total: 3}) {
		t.Fatalf("progress = %+v", progress)
	}
	if repo.phoneCalls != 2 {
		t.Fatalf("expected one phone batch per contact with phones, got %d calls", repo.phoneCalls)
	}
	if len(repo.actors) != 1 || !repo.actors["user-1"] {
		t.Fatalf("rows not stamped with the actor: %v", repo.actors)
	}
}

func TestCommit_PhoneLabels(t *testing.T) {
	repo := newMemRepo()
	svc := prospect.NewService(repo)

	companies := []domain.ParsedCompany{{RaisonSocial: "Acme", Contacts: []domain.ParsedContact{
		{Nom: "Martin", Phones: []string{"0611223344", "0698765432"}},
	}}}
	if _, err := svc.Commit(context.Background(), actor, companies, nil); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	for _, phones := range repo.phones {
		if len(phones) != 2 || phones[0].Label != "principal" || phones[1].Label != "tel_2" {
			t.Fatalf("unexpected phones: %+v", phones)
		}
		return
	}
	t.Fatal("no phones stored")
}

func TestCommit_NoActor(t *testing.T) {
	repo := newMemRepo()
	svc := prospect.NewService(repo)

	_, err := svc.Commit(context.Background(), domain.Actor{}, sampleCompanies(), nil)
	if !errors.Is(err, prospect.ErrNoActor) {
		t.Fatalf("expected ErrNoActor, got %v", err)
	}
	if len(repo.companies) != 0 || repo.seq != 0 {
		t.Fatal("nothing should be written without an actor")
	}
}

func TestCommit_NothingToCommit(t *testing.T) {
	svc := prospect.NewService(newMemRepo())
	if _, err := svc.Commit(context.Background(), actor, nil, nil); !errors.Is(err, prospect.ErrNothingToCommit) {
		t.Fatalf("expected ErrNothingToCommit, got %v", err)
	}
}

func TestCommit_PartialFailureKeepsWrittenRows(t *testing.T) {
	repo := newMemRepo()
	repo.failContact = "Durand"
	svc := prospect.NewService(repo)

	var last domain.ImportProgress
	counts, err := svc.Commit(context.Background(), actor, sampleCompanies(), func(p domain.ImportProgress) { last = p })

	var ce *prospect.CommitError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CommitError, got %v", err)
	}
	want := domain.ImportCounts{Companies: 3, Contacts: 2, Phones: 3}
	if ce.Counts != want || counts != want {
		t.Fatalf("partial counts = %+v / %+v, want %+v", ce.Counts, counts, want)
	}
	if ce.Index != 2 || ce.Company != "Beta" {
		t.Fatalf("failure position = %d %q", ce.Index, ce.Company)
	}
	if last.Current != 2 {
		t.Fatalf("progress should stop at the last finished company, got %+v", last)
	}
	if len(repo.companies) != 3 {
		t.Fatalf("written companies are not rolled back, got %d", len(repo.companies))
	}
}

func TestCommit_CompanyFailureAborts(t *testing.T) {
	repo := newMemRepo()
	repo.failCompany = "Acme"
	svc := prospect.NewService(repo)

	_, err := svc.Commit(context.Background(), actor, sampleCompanies(), nil)
	var ce *prospect.CommitError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CommitError, got %v", err)
	}
	if ce.Counts.Companies != 1 || ce.Index != 1 {
		t.Fatalf("unexpected partial result: %+v", ce)
	}
	if len(repo.companies) != 1 {
		t.Fatalf("Beta must not be inserted after the failure")
	}
}

func TestCommit_EmptyCompanyIDSkipsContacts(t *testing.T) {
	repo := newMemRepo()
	repo.skipCompany = "FormaPro"
	svc := prospect.NewService(repo)

	counts, err := svc.Commit(context.Background(), actor, sampleCompanies(), nil)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	want := domain.ImportCounts{Companies: 2, Contacts: 1, Phones: 0}
	if counts != want {
		t.Fatalf("counts = %+v, want %+v", counts, want)
	}
}

func TestCommit_CancelledContext(t *testing.T) {
	repo := newMemRepo()
	svc := prospect.NewService(repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Commit(ctx, actor, sampleCompanies(), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if repo.seq != 0 {
		t.Fatal("no insert expected after cancellation")
	}
}

func TestCommit_InsertTimeout(t *testing.T) {
	repo := newMemRepo()
	svc := prospect.NewService(repo, prospect.WithInsertTimeout(time.Second))

	if _, err := svc.Commit(context.Background(), actor, sampleCompanies(), nil); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	// 3 companies + 3 contacts + 2 phone batches
	if repo.deadlines != 8 {
		t.Fatalf("expected every insert to carry a deadline, got %d", repo.deadlines)
	}
}
