package template

import (
	"bytes"
	"embed"
	"fmt"
	"sort"
	"text/template"
	"time"
)

//go:embed templates/*.tmpl
var embeddedTemplates embed.FS

const (
	Challenge = "challenge"
	Welcome   = "welcome"
)

// EmailData contains all data available to email templates
type EmailData struct {
	Name  string
	Email string
	Brand string

	// Metadata
	Date     string
	Year     int
	Template string
}

// Email represents a rendered email ready to send
type Email struct {
	Subject string
	Body    string
}

// Engine handles email template rendering
type Engine struct {
	brand     string
	templates map[string]*template.Template
}

// NewEngine parses the embedded templates. brand is substituted into
// subjects and bodies.
func NewEngine(brand string) (*Engine, error) {
	e := &Engine{
		brand:     brand,
		templates: make(map[string]*template.Template),
	}

	for _, name := range []string{Challenge, Welcome} {
		content, err := embeddedTemplates.ReadFile("templates/" + name + ".tmpl")
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded template %s: %w", name, err)
		}

		tmpl, err := template.New(name).Option("missingkey=error").Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}

		e.templates[name] = tmpl
	}

	return e, nil
}

// Render generates an email addressed to name/email from a template
func (e *Engine) Render(templateName, name, email string) (*Email, error) {
	tmpl, ok := e.templates[templateName]
	if !ok {
		return nil, fmt.Errorf("unknown template: %s", templateName)
	}

	now := time.Now()
	data := EmailData{
		Name:     name,
		Email:    email,
		Brand:    e.brand,
		Date:     now.Format("January 2, 2006"),
		Year:     now.Year(),
		Template: templateName,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}

	return &Email{
		Subject: e.getSubject(templateName),
		Body:    buf.String(),
	}, nil
}

func (e *Engine) getSubject(templateName string) string {
	switch templateName {
	case Challenge:
		return fmt.Sprintf("%s Email Verification", e.brand)
	case Welcome:
		return fmt.Sprintf("Welcome to %s", e.brand)
	default:
		return e.brand
	}
}

// AvailableTemplates returns the sorted list of template names
func (e *Engine) AvailableTemplates() []string {
	templates := make([]string, 0, len(e.templates))
	for name := range e.templates {
		templates = append(templates, name)
	}
	sort.Strings(templates)
	return templates
}
