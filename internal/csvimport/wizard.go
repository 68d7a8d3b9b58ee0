package csvimport

import (
	"fmt"
	"time"

	"github.com/ignite/prospect-crm/internal/domain"
)

// Stage is a step of the import wizard.
type Stage string

const (
	StageUpload    Stage = "upload"
	StageMapping   Stage = "mapping"
	StagePreview   Stage = "preview"
	StageImporting Stage = "importing"
	StageDone      Stage = "done"
)

// Wizard is the whole state of one import session. It is a plain value:
// stores serialize it as JSON between requests.
type Wizard struct {
	ID        string                 `json:"id"`
	Filename  string                 `json:"filename,omitempty"`
	Stage     Stage                  `json:"stage"`
	Table     *RawTable              `json:"table,omitempty"`
	Mapping   FieldMapping           `json:"mapping,omitempty"`
	Companies []domain.ParsedCompany `json:"companies,omitempty"`
	Preview   *Preview               `json:"preview,omitempty"`
	Progress  domain.ImportProgress  `json:"progress"`
	Result    *domain.ImportCounts   `json:"result,omitempty"`
	// Partial holds what a failed commit had written before it stopped.
	Partial   *domain.ImportCounts `json:"partial,omitempty"`
	LastError string               `json:"last_error,omitempty"`
	JobID     string               `json:"job_id,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// NewWizard starts a session in the upload stage.
func NewWizard(id string) *Wizard {
	now := time.Now().UTC()
	return &Wizard{ID: id, Stage: StageUpload, CreatedAt: now, UpdatedAt: now}
}

func (w *Wizard) require(stages ...Stage) error {
	for _, s := range stages {
		if w.Stage == s {
			return nil
		}
	}
	return fmt.Errorf("%w: stage is %s", ErrInvalidStage, w.Stage)
}

func (w *Wizard) touch() { w.UpdatedAt = time.Now().UTC() }

// Load parses an uploaded file and proposes a mapping (upload -> mapping).
// On a parse error the wizard stays in the upload stage.
func (w *Wizard) Load(filename, content string) error {
	if err := w.require(StageUpload); err != nil {
		return err
	}
	table, err := Parse(content)
	if err != nil {
		w.LastError = err.Error()
		w.touch()
		return err
	}
	w.Filename = filename
	w.Table = table
	w.Mapping = AutoMap(table.Headers)
	w.LastError = ""
	w.Stage = StageMapping
	w.touch()
	return nil
}

// SetMapping maps a header of the loaded file to a canonical field.
func (w *Wizard) SetMapping(header string, field CanonicalField) error {
	if err := w.require(StageMapping); err != nil {
		return err
	}
	if !w.hasHeader(header) {
		return fmt.Errorf("%w: %q", ErrUnknownHeader, header)
	}
	if _, ok := LookupField(field); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	if w.Mapping == nil {
		w.Mapping = make(FieldMapping)
	}
	w.Mapping.Set(header, field)
	w.touch()
	return nil
}

// ClearMapping leaves a header unmapped.
func (w *Wizard) ClearMapping(header string) error {
	if err := w.require(StageMapping); err != nil {
		return err
	}
	if !w.hasHeader(header) {
		return fmt.Errorf("%w: %q", ErrUnknownHeader, header)
	}
	w.Mapping.Clear(header)
	w.touch()
	return nil
}

func (w *Wizard) hasHeader(header string) bool {
	if w.Table == nil {
		return false
	}
	for _, h := range w.Table.Headers {
		if h == header {
			return true
		}
	}
	return false
}

// CanConfirm reports whether Confirm would be accepted by the mapping gate.
func (w *Wizard) CanConfirm() bool {
	return w.Stage == StageMapping && CanConfirm(w.Mapping)
}

// Confirm aggregates the rows with the current mapping (mapping -> preview).
// An aggregation without companies keeps the wizard in the mapping stage.
func (w *Wizard) Confirm(previewLimit int) error {
	if err := w.require(StageMapping); err != nil {
		return err
	}
	if missing := MissingRequired(w.Mapping); len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMappingIncomplete, missing)
	}
	companies := Aggregate(w.Table, w.Mapping)
	if len(companies) == 0 {
		w.LastError = ErrNoCompanies.Error()
		w.touch()
		return ErrNoCompanies
	}
	p := BuildPreview(len(w.Table.Rows), companies, previewLimit)
	w.Companies = companies
	w.Preview = &p
	w.LastError = ""
	w.Stage = StagePreview
	w.touch()
	return nil
}

// BackToMapping discards the aggregation (preview -> mapping).
func (w *Wizard) BackToMapping() error {
	if err := w.require(StagePreview); err != nil {
		return err
	}
	w.Companies = nil
	w.Preview = nil
	w.Partial = nil
	w.Stage = StageMapping
	w.touch()
	return nil
}

// BeginImport marks the commit as started (preview -> importing).
func (w *Wizard) BeginImport() error {
	if err := w.require(StagePreview); err != nil {
		return err
	}
	w.Stage = StageImporting
	w.Progress = domain.ImportProgress{Current: 0, Total: len(w.Companies)}
	w.Partial = nil
	w.LastError = ""
	w.touch()
	return nil
}

// RecordProgress stores the commit progress.
func (w *Wizard) RecordProgress(p domain.ImportProgress) error {
	if err := w.require(StageImporting); err != nil {
		return err
	}
	w.Progress = p
	w.touch()
	return nil
}

// Complete finishes the import (importing -> done).
func (w *Wizard) Complete(counts domain.ImportCounts) error {
	if err := w.require(StageImporting); err != nil {
		return err
	}
	w.Result = &counts
	w.Stage = StageDone
	w.touch()
	return nil
}

// Fail returns to the preview stage after a failed commit, keeping what was
// already written so it can be reported. Retrying re-inserts everything.
func (w *Wizard) Fail(cause error, partial domain.ImportCounts) error {
	if err := w.require(StageImporting); err != nil {
		return err
	}
	w.Partial = &partial
	if cause != nil {
		w.LastError = cause.Error()
	}
	w.Stage = StagePreview
	w.touch()
	return nil
}

// Reset drops all session data and returns to the upload stage.
func (w *Wizard) Reset() {
	id, created := w.ID, w.CreatedAt
	*w = Wizard{ID: id, Stage: StageUpload, CreatedAt: created}
	w.touch()
}
