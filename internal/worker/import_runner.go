package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/prospect-crm/internal/csvimport"
	"github.com/ignite/prospect-crm/internal/domain"
	"github.com/ignite/prospect-crm/internal/notify"
	"github.com/ignite/prospect-crm/internal/pkg/distlock"
	"github.com/ignite/prospect-crm/internal/pkg/logger"
	"github.com/ignite/prospect-crm/internal/service/prospect"
)

// ErrImportInProgress is returned when a commit for the session is already running.
var ErrImportInProgress = errors.New("an import is already running for this session")

// ErrImportInterrupted is recorded on a session whose commit stopped without
// reporting back, typically because the server went down mid-import.
var ErrImportInterrupted = errors.New("import interrupted before completion")

// Committer writes aggregated companies. *prospect.Service implements it.
type Committer interface {
	Commit(ctx context.Context, actor domain.Actor, companies []domain.ParsedCompany, onProgress prospect.ProgressFunc) (domain.ImportCounts, error)
}

// JobJournal records commit attempts. *postgres.ImportJobRepo implements it.
type JobJournal interface {
	Start(ctx context.Context, job *domain.ImportJob) (string, error)
	Complete(ctx context.Context, id string, counts domain.ImportCounts) error
	Fail(ctx context.Context, id string, counts domain.ImportCounts, msg string) error
}

// Notifier sends the report of a finished commit. *notify.Notifier implements it.
type Notifier interface {
	ImportReport(ctx context.Context, r notify.Report) error
}

// LockFactory returns a lock for the given key.
type LockFactory func(key string) distlock.DistLock

// ImportRunner drives the commit of one import session: it holds the
// session lock, moves the wizard through importing, and records the outcome
// in the session, the job journal, and the report e-mail.
type ImportRunner struct {
	sessions  *SessionStore
	committer Committer
	jobs      JobJournal
	notifier  Notifier
	newLock   LockFactory
	lockTTL   time.Duration
}

// RunnerOption configures an ImportRunner.
type RunnerOption func(*ImportRunner)

// WithJournal records every commit in the given journal.
func WithJournal(j JobJournal) RunnerOption { return func(r *ImportRunner) { r.jobs = j } }

// WithNotifier e-mails a report after every commit.
func WithNotifier(n Notifier) RunnerOption { return func(r *ImportRunner) { r.notifier = n } }

// WithLockFactory replaces the default Redis session lock.
func WithLockFactory(f LockFactory) RunnerOption { return func(r *ImportRunner) { r.newLock = f } }

// NewImportRunner creates a runner. By default session locks live in the
// same Redis as the sessions and expire after lockTTL.
func NewImportRunner(sessions *SessionStore, committer Committer, lockTTL time.Duration, opts ...RunnerOption) *ImportRunner {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Minute
	}
	r := &ImportRunner{sessions: sessions, committer: committer, lockTTL: lockTTL}
	r.newLock = func(key string) distlock.DistLock {
		return distlock.NewRedisLock(sessions.Client(), key, lockTTL)
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run commits the session's companies on behalf of actor. The wizard ends in
// the done stage on success, or back in preview with the partial counts when
// the commit fails. The returned wizard reflects that final state.
func (r *ImportRunner) Run(ctx context.Context, sessionID string, actor domain.Actor) (*csvimport.Wizard, error) {
	if actor.ID == "" {
		return nil, prospect.ErrNoActor
	}

	lock, err := r.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer r.unlock(ctx, lock, sessionID)

	w, err := r.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if w.Stage == csvimport.StageImporting {
		r.interrupt(ctx, w)
	}
	if err := w.BeginImport(); err != nil {
		return w, err
	}
	jobID := r.startJob(ctx, w, actor)
	w.JobID = jobID
	if err := r.sessions.Save(ctx, w); err != nil {
		r.finishJob(context.WithoutCancel(ctx), jobID, domain.ImportCounts{}, err)
		return nil, err
	}
	r.setProgress(ctx, sessionID, w.Progress)
	logger.Info("import started", "session", sessionID, "actor", actor.ID, "companies", len(w.Companies))

	stop := r.keepAlive(ctx, lock, sessionID)
	counts, commitErr := r.committer.Commit(ctx, actor, w.Companies, func(p domain.ImportProgress) {
		w.Progress = p
		r.setProgress(ctx, sessionID, p)
	})
	stop()

	// the outcome is recorded even when the request context is gone
	done := context.WithoutCancel(ctx)
	if commitErr != nil {
		var ce *prospect.CommitError
		if errors.As(commitErr, &ce) {
			counts = ce.Counts
		}
		_ = w.Fail(commitErr, counts)
		r.finishJob(done, jobID, counts, commitErr)
	} else {
		_ = w.Complete(counts)
		r.finishJob(done, jobID, counts, nil)
	}
	r.setProgress(done, sessionID, w.Progress)
	r.report(done, w, actor, counts, commitErr)

	if err := r.sessions.Save(done, w); err != nil {
		logger.Error("save session after import failed", "session", sessionID, "error", err)
	}
	if commitErr != nil {
		return w, commitErr
	}
	logger.Info("import completed", "session", sessionID,
		"companies", counts.Companies, "contacts", counts.Contacts, "phones", counts.Phones)
	return w, nil
}

// Recover returns the session after closing an orphaned commit: a session
// left in importing while nobody holds its lock goes back to preview with
// ErrImportInterrupted. A session whose commit is still running is returned
// unchanged.
func (r *ImportRunner) Recover(ctx context.Context, sessionID string) (*csvimport.Wizard, error) {
	w, err := r.sessions.Get(ctx, sessionID)
	if err != nil || w.Stage != csvimport.StageImporting {
		return w, err
	}

	lock, err := r.lock(ctx, sessionID)
	if errors.Is(err, ErrImportInProgress) {
		return w, nil
	}
	if err != nil {
		return nil, err
	}
	defer r.unlock(ctx, lock, sessionID)

	// reread under the lock, a commit may have finished meanwhile
	w, err = r.sessions.Get(ctx, sessionID)
	if err != nil || w.Stage != csvimport.StageImporting {
		return w, err
	}
	r.interrupt(ctx, w)
	if err := r.sessions.Save(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// interrupt fails a stale importing session. Only the companies the
// progress counter saw are known to be written.
func (r *ImportRunner) interrupt(ctx context.Context, w *csvimport.Wizard) {
	p, err := r.sessions.GetProgress(ctx, w.ID)
	if err != nil || p.Total == 0 {
		p = w.Progress
	}
	partial := domain.ImportCounts{Companies: p.Current}
	_ = w.Fail(ErrImportInterrupted, partial)
	w.Progress = p
	r.finishJob(context.WithoutCancel(ctx), w.JobID, partial, ErrImportInterrupted)
	logger.Warn("recovered interrupted import", "session", w.ID, "job", w.JobID, "processed", p.Current, "total", p.Total)
}

func (r *ImportRunner) lock(ctx context.Context, sessionID string) (distlock.DistLock, error) {
	lock := r.newLock("import:" + sessionID)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	if !ok {
		return nil, ErrImportInProgress
	}
	return lock, nil
}

func (r *ImportRunner) unlock(ctx context.Context, lock distlock.DistLock, sessionID string) {
	if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
		logger.Warn("release import lock failed", "session", sessionID, "error", err)
	}
}

// keepAlive extends the session lock every third of its TTL until stop is
// called, so a commit longer than the TTL keeps other runners out.
func (r *ImportRunner) keepAlive(ctx context.Context, lock distlock.DistLock, sessionID string) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(r.lockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := lock.Extend(ctx, r.lockTTL)
				if err == nil || ctx.Err() != nil {
					continue
				}
				logger.Warn("extend import lock failed", "session", sessionID, "error", err)
				if errors.Is(err, distlock.ErrNotHeld) {
					return
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (r *ImportRunner) setProgress(ctx context.Context, sessionID string, p domain.ImportProgress) {
	if err := r.sessions.SetProgress(ctx, sessionID, p); err != nil {
		logger.Warn("store import progress failed", "session", sessionID, "error", err)
	}
}

func (r *ImportRunner) startJob(ctx context.Context, w *csvimport.Wizard, actor domain.Actor) string {
	if r.jobs == nil {
		return ""
	}
	id, err := r.jobs.Start(ctx, &domain.ImportJob{
		SessionID:  w.ID,
		Filename:   w.Filename,
		ImportedBy: actor.ID,
		Total:      len(w.Companies),
	})
	if err != nil {
		logger.Warn("journal import start failed", "session", w.ID, "error", err)
		return ""
	}
	return id
}

func (r *ImportRunner) finishJob(ctx context.Context, jobID string, counts domain.ImportCounts, cause error) {
	if r.jobs == nil || jobID == "" {
		return
	}
	var err error
	if cause != nil {
		err = r.jobs.Fail(ctx, jobID, counts, cause.Error())
	} else {
		err = r.jobs.Complete(ctx, jobID, counts)
	}
	if err != nil {
		logger.Warn("journal import end failed", "job", jobID, "error", err)
	}
}

func (r *ImportRunner) report(ctx context.Context, w *csvimport.Wizard, actor domain.Actor, counts domain.ImportCounts, cause error) {
	if r.notifier == nil || actor.Email == "" {
		return
	}
	rep := notify.Report{
		To:       actor.Email,
		Name:     actor.Name,
		Filename: w.Filename,
		Total:    len(w.Companies),
		Counts:   counts,
		Failed:   cause != nil,
	}
	if cause != nil {
		rep.Error = cause.Error()
	}
	if err := r.notifier.ImportReport(ctx, rep); err != nil {
		logger.Warn("import report failed", "session", w.ID, "email", actor.Email, "error", err)
	}
}
