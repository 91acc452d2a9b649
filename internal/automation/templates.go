package automation

import (
	"bytes"
	"errors"
	"fmt"
	"text/template"

	"github.com/wolfeidau/studioos/internal/models"
)

var ErrInvalidTemplate = errors.New("invalid email template")

func parseTemplate(name, text string) (*template.Template, error) {
	t, err := template.New(name).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, name, err)
	}
	return t, nil
}

// ValidateTemplate parses subject and body without executing them.
func ValidateTemplate(tmpl models.EmailTemplate) error {
	if tmpl.Subject == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidTemplate)
	}
	if _, err := parseTemplate("subject", tmpl.Subject); err != nil {
		return err
	}
	_, err := parseTemplate("body", tmpl.Body)
	return err
}

// Render executes the template against an event payload.
func Render(tmpl models.EmailTemplate, data map[string]any) (subject, body string, err error) {
	subject, err = execute("subject", tmpl.Subject, data)
	if err != nil {
		return "", "", err
	}
	body, err = execute("body", tmpl.Body, data)
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}

func execute(name, text string, data map[string]any) (string, error) {
	t, err := parseTemplate(name, text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}
