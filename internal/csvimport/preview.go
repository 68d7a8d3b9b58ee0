package csvimport

import "github.com/ignite/prospect-crm/internal/domain"

// DefaultPreviewLimit is the number of companies shown in the preview table.
const DefaultPreviewLimit = 50

// Preview summarizes an aggregation for confirmation before commit.
// Sample is capped for display; the commit always receives every company.
type Preview struct {
	RawRows   int                    `json:"raw_rows"`
	Companies int                    `json:"companies"`
	Contacts  int                    `json:"contacts"`
	Phones    int                    `json:"phones"`
	Sample    []domain.ParsedCompany `json:"sample"`
	More      int                    `json:"more"`
}

// BuildPreview computes the preview counts. A limit <= 0 uses DefaultPreviewLimit.
func BuildPreview(rawRows int, companies []domain.ParsedCompany, limit int) Preview {
	if limit <= 0 {
		limit = DefaultPreviewLimit
	}
	p := Preview{RawRows: rawRows, Companies: len(companies)}
	for _, c := range companies {
		p.Contacts += len(c.Contacts)
		p.Phones += c.PhoneCount()
	}
	n := len(companies)
	if n > limit {
		n = limit
		p.More = len(companies) - limit
	}
	p.Sample = companies[:n:n]
	return p
}
