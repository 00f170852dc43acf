package urlrev

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"strings"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"
)

// TemplateValues are made available to reference templates.
type TemplateValues struct {
	URL      string // reference as written
	Path     string // reference without query and fragment
	Dir      string
	Base     string
	Ext      string
	Query    string // without leading "?"
	Fragment string // without leading "#"
	Digest   string // complete digest
	Hash     string // digest cut to configured length
}

// TemplateReplacer builds new reference by expanding text/template, sprig
// functions are available.
type TemplateReplacer struct {
	tmpl   *template.Template
	length int
}

// NewTemplateReplacer parses text, length limits TemplateValues.Hash.
func NewTemplateReplacer(text string, length int) (*TemplateReplacer, error) {
	tmpl, err := template.New("reference").Funcs(sprig.FuncMap()).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("unable to parse reference template: %w", err)
	}
	return &TemplateReplacer{tmpl: tmpl, length: max(length, 0)}, nil
}

func (t *TemplateReplacer) Replace(rawURL, digest string) (string, error) {
	rest, fragment, _ := strings.Cut(rawURL, "#")
	p, query, _ := strings.Cut(rest, "?")

	values := TemplateValues{
		URL:      rawURL,
		Path:     p,
		Dir:      path.Dir(p),
		Base:     path.Base(p),
		Ext:      path.Ext(p),
		Query:    query,
		Fragment: fragment,
		Digest:   digest,
		Hash:     digest[:min(t.length, len(digest))],
	}

	buf := new(bytes.Buffer)
	if err := t.tmpl.Execute(buf, values); err != nil {
		return "", err
	}
	res := strings.TrimSpace(buf.String())
	if len(res) == 0 {
		return "", errors.New("reference template produced empty result")
	}
	return res, nil
}
