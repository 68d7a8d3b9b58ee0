package notify

import (
	"fmt"

	"github.com/osteele/liquid"
)

const subjectTemplate = `{% if failed %}Import interrompu{% else %}Import terminé{% endif %} : {{ filename | default: "fichier" }}`

const textTemplate = `Bonjour {{ name | default: "" }},

{% if failed %}L'import de {{ filename }} s'est arrêté avant la fin.
Erreur : {{ error }}
Déjà enregistrés : {% else %}L'import de {{ filename }} est terminé.
Enregistrés : {% endif %}{{ companies }} entreprise(s), {{ contacts }} contact(s), {{ phones }} téléphone(s) sur {{ total }} entreprise(s).
{% if failed %}Relancer l'import créera de nouveau les lignes déjà enregistrées.{% endif %}
`

const htmlTemplate = `<p>Bonjour {{ name | default: "" | escape }},</p>
{% if failed %}<p>L'import de <strong>{{ filename | escape }}</strong> s'est arrêté avant la fin.</p>
<p>Erreur : {{ error | escape }}</p>{% else %}<p>L'import de <strong>{{ filename | escape }}</strong> est terminé.</p>{% endif %}
<ul>
<li>Entreprises : {{ companies }} / {{ total }}</li>
<li>Contacts : {{ contacts }}</li>
<li>Téléphones : {{ phones }}</li>
</ul>
{% if failed %}<p>Relancer l'import créera de nouveau les lignes déjà enregistrées.</p>{% endif %}`

// Message is a rendered report.
type Message struct {
	Subject string
	HTML    string
	Text    string
}

// Renderer turns a Report into a Message with liquid templates parsed once.
type Renderer struct {
	subject *liquid.Template
	html    *liquid.Template
	text    *liquid.Template
}

// NewRenderer parses the report templates.
func NewRenderer() (*Renderer, error) {
	engine := liquid.NewEngine()
	engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if s, ok := value.(string); ok && s == "" {
			return defaultVal
		}
		if value == nil {
			return defaultVal
		}
		return value
	})

	r := &Renderer{}
	for _, t := range []struct {
		dst **liquid.Template
		src string
	}{
		{&r.subject, subjectTemplate},
		{&r.html, htmlTemplate},
		{&r.text, textTemplate},
	} {
		tpl, err := engine.ParseString(t.src)
		if err != nil {
			return nil, fmt.Errorf("parse report template: %w", err)
		}
		*t.dst = tpl
	}
	return r, nil
}

// Render fills the templates with the report.
func (r *Renderer) Render(rep Report) (*Message, error) {
	vars := map[string]interface{}{
		"name":      rep.Name,
		"filename":  rep.Filename,
		"total":     rep.Total,
		"companies": rep.Counts.Companies,
		"contacts":  rep.Counts.Contacts,
		"phones":    rep.Counts.Phones,
		"failed":    rep.Failed,
		"error":     rep.Error,
	}
	var msg Message
	var err error
	if msg.Subject, err = r.subject.RenderString(vars); err != nil {
		return nil, fmt.Errorf("render subject: %w", err)
	}
	if msg.HTML, err = r.html.RenderString(vars); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	if msg.Text, err = r.text.RenderString(vars); err != nil {
		return nil, fmt.Errorf("render text: %w", err)
	}
	return &msg, nil
}
