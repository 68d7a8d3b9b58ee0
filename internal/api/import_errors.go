package api

import (
	"errors"
	"net/http"

	"github.com/ignite/prospect-crm/internal/auth"
	"github.com/ignite/prospect-crm/internal/csvimport"
	"github.com/ignite/prospect-crm/internal/domain"
	"github.com/ignite/prospect-crm/internal/pkg/httputil"
	"github.com/ignite/prospect-crm/internal/service/prospect"
	"github.com/ignite/prospect-crm/internal/worker"
)

// commitFailure is the details payload of a failed commit.
type commitFailure struct {
	Companies     int    `json:"companies"`
	Contacts      int    `json:"contacts"`
	Phones        int    `json:"phones"`
	FailedIndex   int    `json:"failed_index"`
	FailedCompany string `json:"failed_company"`
}

// writeImportError maps pipeline errors onto the JSON error envelope.
func writeImportError(w http.ResponseWriter, err error) {
	var ce *prospect.CommitError
	switch {
	case errors.As(err, &ce):
		httputil.ErrorCode(w, http.StatusBadGateway, "commit_failed",
			"import stopped before the end; rows already written were kept", commitFailure{
				Companies:     ce.Counts.Companies,
				Contacts:      ce.Counts.Contacts,
				Phones:        ce.Counts.Phones,
				FailedIndex:   ce.Index,
				FailedCompany: ce.Company,
			})
	case errors.Is(err, csvimport.ErrParse):
		httputil.ErrorCode(w, http.StatusBadRequest, "parse_error", err.Error(), nil)
	case errors.Is(err, csvimport.ErrUnknownHeader), errors.Is(err, csvimport.ErrUnknownField):
		httputil.ErrorCode(w, http.StatusBadRequest, "invalid_mapping", err.Error(), nil)
	case errors.Is(err, csvimport.ErrMappingIncomplete):
		httputil.Conflict(w, "mapping_incomplete", err.Error())
	case errors.Is(err, csvimport.ErrNoCompanies):
		httputil.ErrorCode(w, http.StatusUnprocessableEntity, "empty_result", err.Error(), nil)
	case errors.Is(err, csvimport.ErrInvalidStage):
		httputil.Conflict(w, "invalid_stage", err.Error())
	case errors.Is(err, worker.ErrImportInProgress):
		httputil.Conflict(w, "import_in_progress", err.Error())
	case errors.Is(err, worker.ErrSessionNotFound):
		httputil.ErrorCode(w, http.StatusNotFound, "session_not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrImportJobNotFound):
		httputil.ErrorCode(w, http.StatusNotFound, "job_not_found", err.Error(), nil)
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, prospect.ErrNoActor):
		httputil.Unauthorized(w, prospect.ErrNoActor.Error())
	case errors.Is(err, prospect.ErrNothingToCommit):
		httputil.ErrorCode(w, http.StatusUnprocessableEntity, "empty_result", err.Error(), nil)
	default:
		httputil.InternalError(w, err)
	}
}
