package csvimport

import (
	"strings"

	"github.com/ignite/prospect-crm/internal/domain"
)

// fieldIndex resolves, for each mapped field, the column it is read from.
// When two headers feed the same field the first one in header order wins.
func fieldIndex(headers []string, mapping FieldMapping) map[CanonicalField]int {
	idx := make(map[CanonicalField]int, len(mapping))
	for i, h := range headers {
		f, ok := mapping[h]
		if !ok {
			continue
		}
		if _, seen := idx[f]; !seen {
			idx[f] = i
		}
	}
	return idx
}

// rowReader extracts trimmed canonical values from one data row.
type rowReader struct {
	idx map[CanonicalField]int
	row []string
}

func (r rowReader) get(f CanonicalField) string {
	i, ok := r.idx[f]
	if !ok || i >= len(r.row) {
		return ""
	}
	return strings.TrimSpace(r.row[i])
}

// DedupKey is the key companies are merged on.
func DedupKey(raisonSocial string) string {
	return strings.ToLower(strings.TrimSpace(raisonSocial))
}

// Aggregate folds data rows into companies, each owning its contacts.
//
// Companies keep the order in which they were first seen and the scalar
// values of that first row. Every row carrying a name or a phone adds a new
// contact; contacts are never merged. Rows without a company name are skipped.
func Aggregate(table *RawTable, mapping FieldMapping) []domain.ParsedCompany {
	if table == nil {
		return nil
	}
	idx := fieldIndex(table.Headers, mapping)

	var companies []domain.ParsedCompany
	positions := make(map[string]int)

	for _, row := range table.Rows {
		r := rowReader{idx: idx, row: row}

		name := r.get(FieldRaisonSocial)
		if name == "" {
			continue
		}
		key := DedupKey(name)

		pos, ok := positions[key]
		if !ok {
			companies = append(companies, domain.ParsedCompany{
				RaisonSocial: name,
				Activite:     r.get(FieldActivite),
				Adresse:      r.get(FieldAdresse),
				City:         r.get(FieldCity),
				PostalCode:   r.get(FieldPostalCode),
				Description:  r.get(FieldDescription),
				Commentaires: r.get(FieldCommentaires),
				Contacts:     []domain.ParsedContact{},
			})
			pos = len(companies) - 1
			positions[key] = pos
		}

		if contact, ok := contactFromRow(r); ok {
			companies[pos].Contacts = append(companies[pos].Contacts, contact)
		}
	}
	return companies
}

func contactFromRow(r rowReader) (domain.ParsedContact, bool) {
	phones := make([]string, 0, len(PhoneFields))
	for _, f := range PhoneFields {
		if v := r.get(f); v != "" {
			phones = append(phones, v)
		}
	}
	c := domain.ParsedContact{
		Nom:    r.get(FieldNom),
		Prenom: r.get(FieldPrenom),
		Phones: phones,
	}
	if c.Nom == "" && c.Prenom == "" && len(phones) == 0 {
		return domain.ParsedContact{}, false
	}
	return c, true
}
