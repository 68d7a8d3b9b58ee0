// Package prospect writes aggregated import results to the CRM.
//
// Commit walks companies in order and inserts each company, then each of its
// contacts, then the contact's phones as a single batch. The walk is not
// atomic: rows written before a failure stay written and are reported in the
// returned CommitError. It depends on the Repository interface defined here;
// the Postgres implementation lives in repository/postgres/.
package prospect
