package csvimport

import (
	"regexp"
	"strings"
)

// CanonicalField is a semantic target a CSV column can be mapped to.
type CanonicalField string

const (
	FieldRaisonSocial CanonicalField = "raison_social"
	FieldActivite     CanonicalField = "activite"
	FieldAdresse      CanonicalField = "adresse"
	FieldCity         CanonicalField = "city"
	FieldPostalCode   CanonicalField = "postal_code"
	FieldDescription  CanonicalField = "description"
	FieldCommentaires CanonicalField = "commentaires"
	FieldNom          CanonicalField = "nom"
	FieldPrenom       CanonicalField = "prenom"
	FieldTel0         CanonicalField = "tel_0"
	FieldTel1         CanonicalField = "tel_1"
	FieldTel2         CanonicalField = "tel_2"
	FieldTel3         CanonicalField = "tel_3"
)

// PhoneFields are the phone slots of a row, in slot order.
var PhoneFields = []CanonicalField{FieldTel0, FieldTel1, FieldTel2, FieldTel3}

// FieldGroup tells which record a canonical field belongs to.
type FieldGroup string

const (
	GroupCompany FieldGroup = "company"
	GroupContact FieldGroup = "contact"
	GroupPhone   FieldGroup = "phone"
)

// FieldDefinition describes a canonical field for the mapping UI.
type FieldDefinition struct {
	Field    CanonicalField `json:"field"`
	Label    string         `json:"label"`
	Required bool           `json:"required"`
	Group    FieldGroup     `json:"group"`
	Aliases  []string       `json:"aliases"`
}

// fieldDefinitions is ordered: auto-matching walks it top to bottom, so an
// earlier field wins over a later one for the same header. nom precedes
// prenom, so a "prenom" header seen before any "nom" header is claimed by
// nom; Candidates still lists prenom for it and the user remaps by hand.
var fieldDefinitions = []FieldDefinition{
	{Field: FieldRaisonSocial, Label: "Raison sociale", Required: true, Group: GroupCompany,
		Aliases: []string{"raison_social", "raison sociale", "societe", "société", "entreprise", "company", "denomination", "dénomination"}},
	{Field: FieldActivite, Label: "Activité", Group: GroupCompany,
		Aliases: []string{"activite", "activité", "activity", "secteur", "naf"}},
	{Field: FieldAdresse, Label: "Adresse", Group: GroupCompany,
		Aliases: []string{"adresse", "address", "rue"}},
	{Field: FieldCity, Label: "Ville", Group: GroupCompany,
		Aliases: []string{"city", "ville", "commune"}},
	{Field: FieldPostalCode, Label: "Code postal", Group: GroupCompany,
		Aliases: []string{"postal_code", "code_postal", "code postal", "zip", "cp"}},
	{Field: FieldDescription, Label: "Description", Group: GroupCompany,
		Aliases: []string{"description", "desc"}},
	{Field: FieldCommentaires, Label: "Commentaires", Group: GroupCompany,
		Aliases: []string{"commentaires", "commentaire", "comments", "comment", "remarques", "notes"}},
	{Field: FieldNom, Label: "Nom", Group: GroupContact,
		Aliases: []string{"nom", "last_name", "lastname", "surname"}},
	{Field: FieldPrenom, Label: "Prénom", Group: GroupContact,
		Aliases: []string{"prenom", "prénom", "first_name", "firstname"}},
	{Field: FieldTel0, Label: "Téléphone principal", Group: GroupPhone,
		Aliases: []string{"tel/0", "tel_0", "telephone", "téléphone", "phone", "portable", "mobile", "tel"}},
	{Field: FieldTel1, Label: "Téléphone 2", Group: GroupPhone,
		Aliases: []string{"tel/1", "tel_1", "telephone_2", "phone_2", "tel2"}},
	{Field: FieldTel2, Label: "Téléphone 3", Group: GroupPhone,
		Aliases: []string{"tel/2", "tel_2", "telephone_3", "phone_3", "tel3"}},
	{Field: FieldTel3, Label: "Téléphone 4", Group: GroupPhone,
		Aliases: []string{"tel/3", "tel_3", "telephone_4", "phone_4", "tel4"}},
}

// normalizedAliases holds fieldDefinitions aliases passed through NormalizeHeader.
var normalizedAliases = func() map[CanonicalField][]string {
	out := make(map[CanonicalField][]string, len(fieldDefinitions))
	for _, def := range fieldDefinitions {
		for _, a := range def.Aliases {
			out[def.Field] = append(out[def.Field], NormalizeHeader(a))
		}
	}
	return out
}()

// Fields returns the canonical field definitions in declaration order.
func Fields() []FieldDefinition {
	out := make([]FieldDefinition, len(fieldDefinitions))
	copy(out, fieldDefinitions)
	return out
}

// LookupField returns the definition of a canonical field.
func LookupField(f CanonicalField) (FieldDefinition, bool) {
	for _, def := range fieldDefinitions {
		if def.Field == f {
			return def, true
		}
	}
	return FieldDefinition{}, false
}

var separatorRun = regexp.MustCompile(`[\s_-]+`)

// NormalizeHeader lowercases and trims a header and collapses runs of
// whitespace, hyphens and underscores into a single underscore.
func NormalizeHeader(header string) string {
	normalized := strings.ToLower(strings.TrimSpace(header))
	return separatorRun.ReplaceAllString(normalized, "_")
}

func fieldMatches(field CanonicalField, normalizedHeader string) bool {
	if normalizedHeader == "" {
		return false
	}
	for _, alias := range normalizedAliases[field] {
		if normalizedHeader == alias || strings.Contains(normalizedHeader, alias) {
			return true
		}
	}
	return false
}

// FieldMapping maps a CSV header to the canonical field it feeds.
// Headers absent from the map are unmapped.
type FieldMapping map[string]CanonicalField

// AutoMap proposes a mapping for the given headers.
//
// Matching is greedy and order dependent: headers are visited in file order
// and each one takes the first unused field, in declaration order, having an
// alias equal to or contained in the normalized header.
func AutoMap(headers []string) FieldMapping {
	mapping := make(FieldMapping, len(headers))
	used := make(map[CanonicalField]bool, len(fieldDefinitions))

	for _, header := range headers {
		normalized := NormalizeHeader(header)
		for _, def := range fieldDefinitions {
			if used[def.Field] {
				continue
			}
			if fieldMatches(def.Field, normalized) {
				mapping[header] = def.Field
				used[def.Field] = true
				break
			}
		}
	}
	return mapping
}

// HeaderCandidates lists every field a header could be mapped to.
type HeaderCandidates struct {
	Header     string           `json:"header"`
	Candidates []CanonicalField `json:"candidates"`
}

// Candidates returns, for each header, all matching fields ranked in
// declaration order, ignoring whether another header already claimed them.
// AutoMap's choice is always one of these.
func Candidates(headers []string) []HeaderCandidates {
	out := make([]HeaderCandidates, 0, len(headers))
	for _, header := range headers {
		normalized := NormalizeHeader(header)
		hc := HeaderCandidates{Header: header, Candidates: []CanonicalField{}}
		for _, def := range fieldDefinitions {
			if fieldMatches(def.Field, normalized) {
				hc.Candidates = append(hc.Candidates, def.Field)
			}
		}
		out = append(out, hc)
	}
	return out
}

// Set maps header to field. A field claimed by another header is released
// from it first, so a field is never fed by two headers.
func (m FieldMapping) Set(header string, field CanonicalField) {
	for h, f := range m {
		if f == field && h != header {
			delete(m, h)
		}
	}
	m[header] = field
}

// Clear unmaps header.
func (m FieldMapping) Clear(header string) {
	delete(m, header)
}

// HeaderFor returns the header mapped to field, if any.
func (m FieldMapping) HeaderFor(field CanonicalField) (string, bool) {
	for h, f := range m {
		if f == field {
			return h, true
		}
	}
	return "", false
}

// Clone returns an independent copy of the mapping.
func (m FieldMapping) Clone() FieldMapping {
	out := make(FieldMapping, len(m))
	for h, f := range m {
		out[h] = f
	}
	return out
}

// MissingRequired lists required fields not claimed by exactly one header.
func MissingRequired(m FieldMapping) []CanonicalField {
	claims := make(map[CanonicalField]int, len(m))
	for _, f := range m {
		claims[f]++
	}
	var missing []CanonicalField
	for _, def := range fieldDefinitions {
		if def.Required && claims[def.Field] != 1 {
			missing = append(missing, def.Field)
		}
	}
	return missing
}

// CanConfirm reports whether the mapping allows the import to proceed.
func CanConfirm(m FieldMapping) bool {
	return len(MissingRequired(m)) == 0
}
