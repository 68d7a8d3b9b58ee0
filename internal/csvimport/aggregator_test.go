package csvimport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, content string) *RawTable {
	t.Helper()
	table, err := Parse(content)
	require.NoError(t, err)
	return table
}

func TestAggregate_EndToEnd(t *testing.T) {
	table := mustParse(t, "raison_social;nom;prenom;tel_0\n"+
		"FormaPro;Dupont;Jean;0612345678\n"+
		"FormaPro;Martin;Marie;0611223344\n")

	companies := Aggregate(table, AutoMap(table.Headers))

	require.Len(t, companies, 1)
	assert.Equal(t, "FormaPro", companies[0].RaisonSocial)
	require.Len(t, companies[0].Contacts, 2)
	assert.Equal(t, "Dupont", companies[0].Contacts[0].Nom)
	assert.Equal(t, "Jean", companies[0].Contacts[0].Prenom)
	assert.Equal(t, []string{"0612345678"}, companies[0].Contacts[0].Phones)
	assert.Equal(t, "Marie", companies[0].Contacts[1].Prenom)
	assert.Equal(t, []string{"0611223344"}, companies[0].Contacts[1].Phones)
}

func TestAggregate_DedupIsCaseAndSpaceInsensitive(t *testing.T) {
	table := mustParse(t, "raison_social;city\n"+
		"Beta;Lyon\n"+
		"Acme;Paris\n"+
		"acme;Lille\n"+
		" ACME ;Nice\n"+
		"Gamma;Lyon\n")

	companies := Aggregate(table, AutoMap(table.Headers))

	require.Len(t, companies, 3)
	assert.Equal(t, "Beta", companies[0].RaisonSocial)
	assert.Equal(t, "Acme", companies[1].RaisonSocial)
	assert.Equal(t, "Paris", companies[1].City, "first-seen values win")
	assert.Equal(t, "Gamma", companies[2].RaisonSocial)
}

func TestAggregate_RowWithoutContactData(t *testing.T) {
	table := mustParse(t, "raison_social;activite;nom;prenom;tel_0;tel_1;tel_2;tel_3\n"+
		"Acme;Formation;;;;;;\n")

	companies := Aggregate(table, AutoMap(table.Headers))

	require.Len(t, companies, 1)
	assert.Equal(t, "Formation", companies[0].Activite)
	assert.Empty(t, companies[0].Contacts)
}

func TestAggregate_PhoneFiltering(t *testing.T) {
	table := mustParse(t, "raison_social;tel_0;tel_1;tel_2;tel_3\n"+
		"Acme;;0611223344;0698765432;\n")

	companies := Aggregate(table, AutoMap(table.Headers))

	require.Len(t, companies, 1)
	require.Len(t, companies[0].Contacts, 1)
	contact := companies[0].Contacts[0]
	assert.Equal(t, []string{"0611223344", "0698765432"}, contact.Phones)

	labeled := contact.LabeledPhones()
	assert.Equal(t, "principal", labeled[0].Label)
	assert.Equal(t, "tel_2", labeled[1].Label)
}

func TestAggregate_SkipsRowsWithoutCompany(t *testing.T) {
	table := mustParse(t, "raison_social;nom\n"+
		"  ;Dupont\n"+
		"Acme;Martin\n")

	companies := Aggregate(table, AutoMap(table.Headers))

	require.Len(t, companies, 1)
	require.Len(t, companies[0].Contacts, 1)
	assert.Equal(t, "Martin", companies[0].Contacts[0].Nom)
}

func TestAggregate_IdenticalContactsAreKept(t *testing.T) {
	table := mustParse(t, "raison_social;nom\nAcme;Dupont\nAcme;Dupont\n")

	companies := Aggregate(table, AutoMap(table.Headers))

	require.Len(t, companies, 1)
	assert.Len(t, companies[0].Contacts, 2)
}

func TestAggregate_ShortRows(t *testing.T) {
	table := mustParse(t, "raison_social;city;nom\nAcme\n")

	companies := Aggregate(table, AutoMap(table.Headers))

	require.Len(t, companies, 1)
	assert.Equal(t, "", companies[0].City)
	assert.Empty(t, companies[0].Contacts)
}

func TestAggregate_UnmappedCompanyYieldsNothing(t *testing.T) {
	table := mustParse(t, "col_a;nom\nAcme;Dupont\n")

	companies := Aggregate(table, AutoMap(table.Headers))

	assert.Empty(t, companies)
	assert.Empty(t, Aggregate(nil, nil))
}

func TestDedupKey(t *testing.T) {
	assert.Equal(t, "acme", DedupKey(" ACME "))
	assert.Equal(t, DedupKey("Acme"), DedupKey("acme"))
}
