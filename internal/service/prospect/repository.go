package prospect

import (
	"context"

	"github.com/ignite/prospect-crm/internal/domain"
)

// Repository defines the write contract for imported prospects.
// Every row is stamped with the importing user's ID.
// Implementations must be safe for concurrent use.
type Repository interface {
	// InsertCompany stores a company and returns its ID. An empty ID with a
	// nil error means the row was not created; its contacts are then skipped.
	InsertCompany(ctx context.Context, actorID string, c *domain.ParsedCompany) (string, error)

	// InsertContact stores a contact linked to companyID and returns its ID.
	InsertContact(ctx context.Context, actorID, companyID string, c *domain.ParsedContact) (string, error)

	// InsertPhones stores all phones of one contact in a single statement and
	// returns how many rows were written.
	InsertPhones(ctx context.Context, actorID, contactID string, phones []domain.Phone) (int, error)
}
