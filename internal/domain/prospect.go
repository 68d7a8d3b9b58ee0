package domain

import "strconv"

// PhoneLabelPrincipal is the label of the first phone number of a contact.
const PhoneLabelPrincipal = "principal"

// ParsedCompany is one deduplicated company built from an uploaded file.
// It lives only for the duration of an import session.
type ParsedCompany struct {
	RaisonSocial string          `json:"raison_social"`
	Activite     string          `json:"activite,omitempty"`
	Adresse      string          `json:"adresse,omitempty"`
	City         string          `json:"city,omitempty"`
	PostalCode   string          `json:"postal_code,omitempty"`
	Description  string          `json:"description,omitempty"`
	Commentaires string          `json:"commentaires,omitempty"`
	Contacts     []ParsedContact `json:"contacts"`
}

// PhoneCount returns the number of phone numbers across all contacts.
func (c ParsedCompany) PhoneCount() int {
	n := 0
	for _, ct := range c.Contacts {
		n += len(ct.Phones)
	}
	return n
}

// ParsedContact belongs to exactly one ParsedCompany.
type ParsedContact struct {
	Nom    string   `json:"nom,omitempty"`
	Prenom string   `json:"prenom,omitempty"`
	Phones []string `json:"phones"`
}

// LabeledPhones pairs every phone number with its label.
func (c ParsedContact) LabeledPhones() []Phone {
	out := make([]Phone, 0, len(c.Phones))
	for i, p := range c.Phones {
		out = append(out, Phone{Number: p, Label: PhoneLabel(i)})
	}
	return out
}

// Phone is a phone number as stored in crm_phones. Numbers are kept verbatim.
type Phone struct {
	Number string `json:"number" db:"number"`
	Label  string `json:"label" db:"label"`
}

// PhoneLabel returns the label for the phone at position i of a contact's
// filtered phone list: "principal", then "tel_2", "tel_3", ...
func PhoneLabel(i int) string {
	if i == 0 {
		return PhoneLabelPrincipal
	}
	return "tel_" + strconv.Itoa(i+1)
}

// Actor is the authenticated user performing an import.
type Actor struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// ImportCounts are the rows actually written by a commit.
type ImportCounts struct {
	Companies int `json:"companies"`
	Contacts  int `json:"contacts"`
	Phones    int `json:"phones"`
}

// ImportProgress reports how many companies of a commit have been processed.
type ImportProgress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}
