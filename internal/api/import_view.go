package api

import (
	"time"

	"github.com/ignite/prospect-crm/internal/csvimport"
	"github.com/ignite/prospect-crm/internal/domain"
)

// sessionView is the JSON shape of an import session. Raw rows and the full
// company list stay server side; the preview carries the sample.
type sessionView struct {
	ID         string                       `json:"id"`
	Filename   string                       `json:"filename,omitempty"`
	Stage      csvimport.Stage              `json:"stage"`
	Delimiter  string                       `json:"delimiter,omitempty"`
	Headers    []string                     `json:"headers,omitempty"`
	RowCount   int                          `json:"row_count"`
	Mapping    csvimport.FieldMapping       `json:"mapping,omitempty"`
	Candidates []csvimport.HeaderCandidates `json:"candidates,omitempty"`
	Missing    []csvimport.CanonicalField   `json:"missing_required,omitempty"`
	CanConfirm bool                         `json:"can_confirm"`
	Preview    *csvimport.Preview           `json:"preview,omitempty"`
	Progress   domain.ImportProgress        `json:"progress"`
	Result     *domain.ImportCounts         `json:"result,omitempty"`
	Partial    *domain.ImportCounts         `json:"partial,omitempty"`
	LastError  string                       `json:"last_error,omitempty"`
	JobID      string                       `json:"job_id,omitempty"`
	UpdatedAt  time.Time                    `json:"updated_at"`
}

func newSessionView(w *csvimport.Wizard) sessionView {
	v := sessionView{
		ID:         w.ID,
		Filename:   w.Filename,
		Stage:      w.Stage,
		Mapping:    w.Mapping,
		CanConfirm: w.CanConfirm(),
		Preview:    w.Preview,
		Progress:   w.Progress,
		Result:     w.Result,
		Partial:    w.Partial,
		LastError:  w.LastError,
		JobID:      w.JobID,
		UpdatedAt:  w.UpdatedAt,
	}
	if w.Table != nil {
		v.Delimiter = w.Table.Delimiter
		v.Headers = w.Table.Headers
		v.RowCount = len(w.Table.Rows)
	}
	if w.Stage == csvimport.StageMapping {
		v.Candidates = csvimport.Candidates(v.Headers)
		v.Missing = csvimport.MissingRequired(w.Mapping)
	}
	return v
}
