// Package prompts renders the language model prompts used to answer
// questions: SQL synthesis, answer synthesis, table relevance and the
// no-data message.
package prompts

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/ekaya-inc/ekaya-askdb/pkg/adapters/datasource"
)

// QueryInput is the data for the question prompt. Leaving Query empty
// renders the SQL synthesis prompt (pass one); setting it renders the
// answer prompt with the executed query and its result (pass two).
type QueryInput struct {
	Question   string
	Tables     []datasource.TableDescriptor
	Dialect    string
	TenantHint string
	Query      string
	Result     string
}

// ClauseHintInput is the data for the clause strategy hint.
type ClauseHintInput struct {
	TenantColumn    string
	SecretKeyColumn string
}

// PlaceholderHintInput is the data for the placeholder strategy hint.
type PlaceholderHintInput struct {
	Placeholder string
}

// Builder renders prompts. It is immutable after construction and safe
// for concurrent use.
type Builder struct {
	query           *template.Template
	tables          *template.Template
	noDataSystem    *template.Template
	clauseHint      *template.Template
	placeholderHint *template.Template
}

var funcs = template.FuncMap{
	"columns":    formatColumns,
	"tableNames": formatTableNames,
}

// NewBuilder parses the templates. Empty fields use the defaults.
func NewBuilder(t Templates) (*Builder, error) {
	t = DefaultTemplates().merge(t)

	b := &Builder{}
	for _, p := range []struct {
		name string
		src  string
		dst  **template.Template
	}{
		{"query", t.Query, &b.query},
		{"tables", t.Tables, &b.tables},
		{"no_data_system", t.NoDataSystem, &b.noDataSystem},
		{"clause_hint", t.ClauseHint, &b.clauseHint},
		{"placeholder_hint", t.PlaceholderHint, &b.placeholderHint},
	} {
		tmpl, err := template.New(p.name).Funcs(funcs).Option("missingkey=error").Parse(p.src)
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", p.name, err)
		}
		*p.dst = tmpl
	}
	return b, nil
}

// MustNewBuilder is NewBuilder for the built-in templates.
func MustNewBuilder() *Builder {
	b, err := NewBuilder(DefaultTemplates())
	if err != nil {
		panic(err)
	}
	return b
}

// Query renders the question prompt.
func (b *Builder) Query(in QueryInput) (string, error) {
	return render(b.query, in)
}

// Tables renders the relevance filter prompt.
func (b *Builder) Tables(question string, tables []datasource.TableDescriptor) (string, error) {
	return render(b.tables, struct {
		Question string
		Tables   []datasource.TableDescriptor
	}{question, tables})
}

// NoDataSystem renders the system message for the no-data chat call.
func (b *Builder) NoDataSystem(question string) (string, error) {
	return render(b.noDataSystem, struct{ Question string }{question})
}

// ClauseHint renders the hint telling the model tenant filtering is automatic.
func (b *Builder) ClauseHint(in ClauseHintInput) (string, error) {
	return render(b.clauseHint, in)
}

// PlaceholderHint renders the hint telling the model which token stands
// for the current user.
func (b *Builder) PlaceholderHint(in PlaceholderHintInput) (string, error) {
	return render(b.placeholderHint, in)
}

func render(t *template.Template, data any) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return strings.TrimRight(sb.String(), "\r\n"), nil
}

func formatColumns(columns []datasource.Column) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = fmt.Sprintf("%s (%s)", c.Name, strings.ToLower(c.DataType))
	}
	return strings.Join(parts, ", ")
}

func formatTableNames(tables []datasource.TableDescriptor) string {
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.QualifiedName()
	}
	return strings.Join(names, ",")
}
