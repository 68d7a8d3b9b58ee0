package csvimport

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Raison Sociale", "raison_sociale"},
		{"  Code - Postal ", "code_postal"},
		{"tel__0", "tel_0"},
		{"tel/0", "tel/0"},
		{"PRÉNOM", "prénom"},
	}
	for _, tt := range tests {
		if got := NormalizeHeader(tt.in); got != tt.want {
			t.Errorf("NormalizeHeader(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAutoMap_Template(t *testing.T) {
	headers := strings.Split(TemplateHeader, ";")
	m := AutoMap(headers)

	want := FieldMapping{
		"activite":      FieldActivite,
		"adresse":       FieldAdresse,
		"city":          FieldCity,
		"description":   FieldDescription,
		"postal_code":   FieldPostalCode,
		"raison_social": FieldRaisonSocial,
		"tel/0":         FieldTel0,
		"tel/1":         FieldTel1,
		"tel/2":         FieldTel2,
		"tel/3":         FieldTel3,
		"commentaires":  FieldCommentaires,
		"nom":           FieldNom,
		"prenom":        FieldPrenom,
	}
	assert.Equal(t, want, m)
	assert.True(t, CanConfirm(m))
}

func TestAutoMap_AliasesAndSubstrings(t *testing.T) {
	m := AutoMap([]string{"Nom de la Société", "Ville", "Téléphone", "Téléphone 2", "Notes internes"})

	assert.Equal(t, FieldRaisonSocial, m["Nom de la Société"], "société wins over nom by declaration order")
	assert.Equal(t, FieldCity, m["Ville"])
	assert.Equal(t, FieldTel0, m["Téléphone"])
	assert.Equal(t, FieldTel1, m["Téléphone 2"])
	assert.Equal(t, FieldCommentaires, m["Notes internes"])
}

func TestAutoMap_GreedyFirstHeaderWins(t *testing.T) {
	m := AutoMap([]string{"entreprise", "societe"})

	assert.Equal(t, FieldRaisonSocial, m["entreprise"])
	_, mapped := m["societe"]
	assert.False(t, mapped, "a claimed field is not re-claimed by a later header")
}

func TestAutoMap_NomDeclaredBeforePrenom(t *testing.T) {
	m := AutoMap([]string{"raison_social", "nom", "prenom"})
	assert.Equal(t, FieldNom, m["nom"])
	assert.Equal(t, FieldPrenom, m["prenom"])

	// "prenom" contains "nom" and comes first, so nom claims it
	m = AutoMap([]string{"raison_social", "prenom", "nom"})
	assert.Equal(t, FieldNom, m["prenom"])
	_, mapped := m["nom"]
	assert.False(t, mapped)

	got := Candidates([]string{"prenom"})
	assert.Equal(t, []CanonicalField{FieldNom, FieldPrenom}, got[0].Candidates)
}

func TestAutoMap_Unmatched(t *testing.T) {
	m := AutoMap([]string{"siret", "", "raison_social"})
	_, ok := m["siret"]
	assert.False(t, ok)
	_, ok = m[""]
	assert.False(t, ok)
	assert.Equal(t, FieldRaisonSocial, m["raison_social"])
}

func TestCandidates(t *testing.T) {
	got := Candidates([]string{"nom entreprise", "x"})

	assert.Equal(t, "nom entreprise", got[0].Header)
	assert.Equal(t, []CanonicalField{FieldRaisonSocial, FieldNom}, got[0].Candidates)
	assert.Empty(t, got[1].Candidates)

	m := AutoMap([]string{"nom entreprise"})
	assert.Equal(t, got[0].Candidates[0], m["nom entreprise"])
}

func TestFieldMapping_SetReleasesPreviousHeader(t *testing.T) {
	m := FieldMapping{"a": FieldRaisonSocial}
	m.Set("b", FieldRaisonSocial)

	_, ok := m["a"]
	assert.False(t, ok)
	h, ok := m.HeaderFor(FieldRaisonSocial)
	assert.True(t, ok)
	assert.Equal(t, "b", h)
}

func TestCanConfirm_RequiresRaisonSocial(t *testing.T) {
	m := FieldMapping{
		"nom":    FieldNom,
		"prenom": FieldPrenom,
		"tel":    FieldTel0,
		"ville":  FieldCity,
	}
	assert.False(t, CanConfirm(m))
	assert.Equal(t, []CanonicalField{FieldRaisonSocial}, MissingRequired(m))

	m.Set("societe", FieldRaisonSocial)
	assert.True(t, CanConfirm(m))

	m.Clear("societe")
	assert.False(t, CanConfirm(m))
}

func TestCanConfirm_DuplicateClaimRejected(t *testing.T) {
	m := FieldMapping{"a": FieldRaisonSocial, "b": FieldRaisonSocial}
	assert.False(t, CanConfirm(m))
}

func TestFields(t *testing.T) {
	fields := Fields()
	assert.Len(t, fields, 13)
	assert.Equal(t, FieldRaisonSocial, fields[0].Field)
	assert.Equal(t, FieldNom, fields[7].Field)
	assert.Equal(t, FieldPrenom, fields[8].Field)

	required := 0
	for _, f := range fields {
		if f.Required {
			required++
		}
	}
	assert.Equal(t, 1, required)

	fields[0].Label = "changed"
	def, ok := LookupField(FieldRaisonSocial)
	assert.True(t, ok)
	assert.NotEqual(t, "changed", def.Label)
}
