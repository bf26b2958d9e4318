/*
Package tmpl provides subject and body template rendering for Sendlist.
*/
package tmpl

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/yuin/goldmark"

	"github.com/oarkflow/sendlist/internal/recipient"
)

var (
	// ErrCompile indicates a template that cannot be parsed.
	ErrCompile = errors.New("failed to compile template")

	// ErrRender indicates a template that failed for a specific recipient.
	ErrRender = errors.New("failed to render template")

	// ErrMultilineSubject indicates a subject template spanning several lines.
	ErrMultilineSubject = errors.New("subject must be a single line")
)

// fieldNames are callable as bare identifiers, e.g. {{name}}.
var fieldNames = []string{"name", "email", "data"}

// Rendered holds the output for one recipient.
type Rendered struct {
	Subject string
	Body    string
}

// Renderer renders the subject and body templates against recipient records.
type Renderer struct {
	subject  *template.Template
	body     *template.Template
	markdown goldmark.Markdown
	escape   bool
}

type options struct {
	html     bool
	markdown bool
}

// Option configures a Renderer.
type Option func(*options)

// WithHTML escapes field values substituted into the body.
func WithHTML(html bool) Option {
	return func(o *options) {
		o.html = html
	}
}

// WithMarkdown converts the rendered body from Markdown to HTML.
func WithMarkdown(markdown bool) Option {
	return func(o *options) {
		o.markdown = markdown
	}
}

// New compiles the subject and body templates.
func New(subject, body string, opts ...Option) (*Renderer, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	subject = strings.TrimSpace(subject)
	if strings.ContainsAny(subject, "\r\n") {
		return nil, ErrMultilineSubject
	}

	subjectTmpl, err := compile("subject", subject)
	if err != nil {
		return nil, err
	}
	bodyTmpl, err := compile("body", body)
	if err != nil {
		return nil, err
	}

	r := &Renderer{
		subject: subjectTmpl,
		body:    bodyTmpl,
		escape:  o.html && !o.markdown,
	}
	if o.markdown {
		r.markdown = goldmark.New()
	}
	return r, nil
}

// HTML reports whether the renderer produces HTML bodies from Markdown.
func (r *Renderer) HTML() bool {
	return r.markdown != nil
}

// Render renders both templates for rec.
func (r *Renderer) Render(rec recipient.Record) (Rendered, error) {
	subject, err := r.RenderSubject(rec)
	if err != nil {
		return Rendered{}, err
	}
	body, err := r.RenderBody(rec)
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{Subject: subject, Body: body}, nil
}

// RenderSubject renders the subject for rec.
func (r *Renderer) RenderSubject(rec recipient.Record) (string, error) {
	return execute(r.subject, rec, false)
}

// RenderBody renders the body for rec.
func (r *Renderer) RenderBody(rec recipient.Record) (string, error) {
	out, err := execute(r.body, rec, r.escape)
	if err != nil {
		return "", err
	}
	if r.markdown == nil {
		return out, nil
	}

	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(out), &buf); err != nil {
		return "", fmt.Errorf("%w: failed to convert markdown: %v", ErrRender, err)
	}
	return buf.String(), nil
}

func compile(name, src string) (*template.Template, error) {
	t, err := template.New(name).
		Funcs(funcs()).
		Funcs(fieldFuncs(recipient.Record{}, false)).
		Option("missingkey=error").
		Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCompile, name, err)
	}
	return t, nil
}

// execute runs a clone of t so the field functions bind to rec only.
func execute(t *template.Template, rec recipient.Record, escape bool) (string, error) {
	clone, err := t.Clone()
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrRender, t.Name(), err)
	}
	clone.Option("missingkey=error")
	clone.Funcs(fieldFuncs(rec, escape))

	data := rec.Fields()
	if escape {
		for k, v := range data {
			data[k] = template.HTMLEscapeString(v)
		}
	}

	var buf bytes.Buffer
	if err := clone.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrRender, t.Name(), err)
	}
	return buf.String(), nil
}

// fieldFuncs exposes the record fields as template functions.
func fieldFuncs(rec recipient.Record, escape bool) template.FuncMap {
	values := map[string]string{
		"name":  rec.Name,
		"email": rec.Email,
		"data":  rec.Data,
	}
	fm := make(template.FuncMap, len(fieldNames))
	for _, name := range fieldNames {
		v := values[name]
		if escape {
			v = template.HTMLEscapeString(v)
		}
		fm[name] = func() string { return v }
	}
	return fm
}

// funcs returns the template helper functions
func funcs() template.FuncMap {
	return template.FuncMap{
		// String functions
		"replace":    strings.ReplaceAll,
		"tolower":    strings.ToLower,
		"toupper":    strings.ToUpper,
		"title":      strings.Title,
		"trim":       strings.TrimSpace,
		"trimprefix": strings.TrimPrefix,
		"trimsuffix": strings.TrimSuffix,
		"split":      strings.Split,
		"join":       strings.Join,
		"contains":   strings.Contains,
		"hasprefix":  strings.HasPrefix,
		"hassuffix":  strings.HasSuffix,
		"fields":     strings.Fields,

		// Environment
		"env": os.Getenv,

		// Default value
		"default": func(def, val interface{}) interface{} {
			if val == nil || val == "" {
				return def
			}
			return val
		},
	}
}
