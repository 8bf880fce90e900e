package rationale

import (
	_ "embed"
	"os"
	"strings"
	"text/template"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// Prompts holds the prompt templates.
type Prompts struct {
	System            string            `yaml:"system"`
	RationaleTemplate string            `yaml:"rationale_template"`
	Plays             map[string]string `yaml:"plays"`
}

// DefaultPrompts returns the built-in templates.
func DefaultPrompts() *Prompts {
	p, err := ParsePrompts(defaultPromptsYAML)
	if err != nil {
		panic(err) // embedded file is fixed at build time
	}
	return p
}

// LoadPrompts reads templates from path. An empty path returns the defaults.
func LoadPrompts(path string) (*Prompts, error) {
	if path == "" {
		return DefaultPrompts(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "rationale: read prompts %s", path)
	}
	return ParsePrompts(b)
}

// ParsePrompts decodes and validates a prompts document.
func ParsePrompts(b []byte) (*Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, eris.Wrap(err, "rationale: parse prompts")
	}
	if strings.TrimSpace(p.RationaleTemplate) == "" {
		return nil, eris.New("rationale: prompts missing rationale_template")
	}
	for key, tmpl := range p.Plays {
		if _, err := template.New(key).Parse(tmpl); err != nil {
			return nil, eris.Wrapf(err, "rationale: parse template %s", key)
		}
	}
	if _, err := template.New("rationale_template").Parse(p.RationaleTemplate); err != nil {
		return nil, eris.Wrap(err, "rationale: parse rationale_template")
	}
	return &p, nil
}

// Render fills the template for play (or the generic template when play has
// none) with the context line.
func (p *Prompts) Render(play, contextLine string) (string, error) {
	src := p.RationaleTemplate
	if t, ok := p.Plays[play]; ok && t != "" {
		src = t
	}
	tmpl, err := template.New("prompt").Option("missingkey=zero").Parse(src)
	if err != nil {
		return "", eris.Wrap(err, "rationale: parse prompt")
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, struct{ Context string }{Context: contextLine}); err != nil {
		return "", eris.Wrap(err, "rationale: render prompt")
	}
	return b.String(), nil
}
