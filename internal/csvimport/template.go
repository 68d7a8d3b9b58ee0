package csvimport

// TemplateFilename is the name suggested for the downloadable template.
const TemplateFilename = "prospects_template.csv"

// TemplateHeader is the header line of the downloadable import template.
// It is semicolon-delimited and auto-maps to every canonical field.
const TemplateHeader = "activite;adresse;city;description;postal_code;raison_social;tel/0;tel/1;tel/2;tel/3;commentaires;nom;prenom"

// AcceptedExtensions lists the upload file extensions the import accepts.
var AcceptedExtensions = []string{".csv", ".tsv", ".txt"}

// Template returns the template file content.
func Template() []byte {
	return []byte(TemplateHeader + "\n")
}
