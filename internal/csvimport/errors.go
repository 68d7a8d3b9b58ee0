package csvimport

import "errors"

// Sentinel errors for the import pipeline.
var (
	// ErrParse is returned when the uploaded file has no header or no data row.
	ErrParse = errors.New("file must contain a header line and at least one data line")
	// ErrMappingIncomplete is returned when a required field is not mapped.
	ErrMappingIncomplete = errors.New("required fields are not mapped")
	// ErrNoCompanies is returned when aggregation produced zero companies.
	ErrNoCompanies = errors.New("no companies detected, check the raison_social mapping")
	// ErrInvalidStage is returned for a wizard transition not allowed from the current stage.
	ErrInvalidStage = errors.New("action not allowed at this import stage")
	// ErrUnknownHeader is returned when a mapping edit names a header absent from the file.
	ErrUnknownHeader = errors.New("unknown column header")
	// ErrUnknownField is returned when a mapping edit names a field that does not exist.
	ErrUnknownField = errors.New("unknown canonical field")
)
