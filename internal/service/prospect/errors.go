package prospect

import (
	"errors"
	"fmt"

	"github.com/ignite/prospect-crm/internal/domain"
)

// Sentinel errors for the prospect service layer.
var (
	ErrNoActor         = errors.New("no authenticated user, import refused")
	ErrNothingToCommit = errors.New("nothing to commit")
)

// CommitError reports a commit that stopped part way. Counts holds what was
// written before the failure; Index is the position of the failing company.
type CommitError struct {
	Counts  domain.ImportCounts
	Index   int
	Company string
	Err     error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit stopped at company %d (%q) after %d companies, %d contacts, %d phones: %v",
		e.Index+1, e.Company, e.Counts.Companies, e.Counts.Contacts, e.Counts.Phones, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }
