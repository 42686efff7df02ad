package branding

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// welcomeData is the template context for Brand.Welcome.
type welcomeData struct {
	User        string
	Persona     string
	Handle      string
	DisplayName string
}

// WelcomeMessage renders the brand's welcome text for user. An empty user
// name renders the anonymous greeting.
func WelcomeMessage(b Brand, user string) (string, error) {
	text := b.Welcome
	if strings.TrimSpace(text) == "" {
		text = hardDefaults().Welcome
	}
	tmpl, err := template.New("welcome").Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parsing welcome template: %w", err)
	}

	persona := b.Persona.Name
	if persona == "" {
		persona = b.DisplayName
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, welcomeData{
		User:        strings.TrimSpace(user),
		Persona:     persona,
		Handle:      b.Persona.Handle,
		DisplayName: b.DisplayName,
	}); err != nil {
		return "", fmt.Errorf("rendering welcome template: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
