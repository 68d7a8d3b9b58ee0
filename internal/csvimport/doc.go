// Package csvimport turns an uploaded prospect file into deduplicated
// company records ready to be committed.
//
// The pipeline runs in five steps, leaves first:
//
//	Parse      raw text -> RawTable (header row + data rows)
//	AutoMap    headers  -> FieldMapping (greedy alias matching, editable)
//	Aggregate  rows     -> []domain.ParsedCompany (dedup by company name)
//	Preview    counts + first N companies for confirmation
//	Commit     delegated to service/prospect
//
// Wizard ties the steps together as an explicit state machine so that an
// import session can be stored, resumed and tested without a UI.
package csvimport
