package prompts

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const defaultQueryTemplate = `Given an input question, first create a syntactically correct {{.Dialect}} query to run, then look at the results of the query and return the answer.
Use the following format:

Question: "Question here"
SQLQuery: "SQL Query to run"
SQLResult: "Result of the SQLQuery"
Answer: "Final answer here"

Only use the following tables and columns:

{{range .Tables}}"{{.QualifiedName}}" has columns: {{columns .Columns}}
{{end}}
{{if .TenantHint}}{{.TenantHint}}

{{end}}Question: "{{.Question}}"
SQLQuery: "{{if .Query}}{{.Query}}"
SQLResult: "{{.Result}}"
Answer: "{{end}}
`

const defaultTablesTemplate = `Given the below input question and list of potential tables, output a comma separated list of the table names that may be necessary to answer this question.
Question: {{.Question}}
Table Names: {{tableNames .Tables}}
Relevant Table Names:
`

const defaultNoDataSystemTemplate = `You are a helpful assistant. A user asked '{{.Question}}', but the data they are looking for does not exist in the system. How would you inform the user politely?`

const defaultClauseHintTemplate = `Do not filter on {{.TenantColumn}} or {{.SecretKeyColumn}}; results are restricted to the current company automatically.`

const defaultPlaceholderHintTemplate = `Use {{.Placeholder}} wherever the id of the current user is needed in the query.`

// Templates holds the prompt template sources. Empty fields fall back to
// the built-in defaults.
type Templates struct {
	Query           string `yaml:"query"`
	Tables          string `yaml:"tables"`
	NoDataSystem    string `yaml:"no_data_system"`
	ClauseHint      string `yaml:"clause_hint"`
	PlaceholderHint string `yaml:"placeholder_hint"`
}

// DefaultTemplates returns the built-in templates.
func DefaultTemplates() Templates {
	return Templates{
		Query:           defaultQueryTemplate,
		Tables:          defaultTablesTemplate,
		NoDataSystem:    defaultNoDataSystemTemplate,
		ClauseHint:      defaultClauseHintTemplate,
		PlaceholderHint: defaultPlaceholderHintTemplate,
	}
}

// LoadTemplates reads overrides from a YAML file on top of the defaults.
// An empty path returns the defaults.
func LoadTemplates(path string) (Templates, error) {
	t := DefaultTemplates()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read prompt templates: %w", err)
	}
	var overrides Templates
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return t, fmt.Errorf("parse prompt templates %s: %w", path, err)
	}
	return t.merge(overrides), nil
}

func (t Templates) merge(o Templates) Templates {
	if o.Query != "" {
		t.Query = o.Query
	}
	if o.Tables != "" {
		t.Tables = o.Tables
	}
	if o.NoDataSystem != "" {
		t.NoDataSystem = o.NoDataSystem
	}
	if o.ClauseHint != "" {
		t.ClauseHint = o.ClauseHint
	}
	if o.PlaceholderHint != "" {
		t.PlaceholderHint = o.PlaceholderHint
	}
	return t
}
