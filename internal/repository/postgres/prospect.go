package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/prospect-crm/internal/domain"
	"github.com/lib/pq"
)

// ProspectRepo implements prospect.Repository against PostgreSQL.
type ProspectRepo struct{ db *sql.DB }

// NewProspectRepo creates a Postgres-backed prospect repository.
func NewProspectRepo(db *sql.DB) *ProspectRepo { return &ProspectRepo{db: db} }

func (r *ProspectRepo) InsertCompany(ctx context.Context, actorID string, c *domain.ParsedCompany) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO crm_companies (id, raison_social, activite, adresse, city, postal_code,
		                           description, commentaires, imported_by, created_at)
		VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), NULLIF($5,''), NULLIF($6,''),
		        NULLIF($7,''), NULLIF($8,''), $9, NOW())
		RETURNING id
	`, uuid.New().String(), c.RaisonSocial, c.Activite, c.Adresse, c.City, c.PostalCode,
		c.Description, c.Commentaires, actorID).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create company: %w", err)
	}
	return id, nil
}

func (r *ProspectRepo) InsertContact(ctx context.Context, actorID, companyID string, c *domain.ParsedContact) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO crm_contacts (id, company_id, nom, prenom, imported_by, created_at)
		VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), $5, NOW())
		RETURNING id
	`, uuid.New().String(), companyID, c.Nom, c.Prenom, actorID).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create contact: %w", err)
	}
	return id, nil
}

// InsertPhones writes all phones of a contact with one statement.
func (r *ProspectRepo) InsertPhones(ctx context.Context, actorID, contactID string, phones []domain.Phone) (int, error) {
	if len(phones) == 0 {
		return 0, nil
	}
	ids := make([]string, len(phones))
	numbers := make([]string, len(phones))
	labels := make([]string, len(phones))
	for i, p := range phones {
		ids[i] = uuid.New().String()
		numbers[i] = p.Number
		labels[i] = p.Label
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO crm_phones (id, contact_id, number, label, imported_by, created_at)
		SELECT p.id, $2, p.number, p.label, $3, NOW()
		FROM unnest($1::uuid[], $4::text[], $5::text[]) AS p(id, number, label)
	`, pq.Array(ids), contactID, actorID, pq.Array(numbers), pq.Array(labels))
	if err != nil {
		return 0, fmt.Errorf("create phones: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return len(phones), nil
	}
	return int(n), nil
}
