package job

import (
	json "github.com/goccy/go-json"
)

// Report describes a written composition
type Report struct {
	Output   string         `json:"output"`
	Policy   string         `json:"policy"`
	Version  string         `json:"version"`
	Pages    int            `json:"pages"`
	Form     bool           `json:"form"`
	Fields   int            `json:"fields"`
	Sources  []SourceReport `json:"sources"`
	Warnings []string       `json:"warnings,omitempty"`
}

// SourceReport describes what one source contributed
type SourceReport struct {
	Path      string `json:"path"`
	Version   string `json:"version"`
	Requested int    `json:"requested"`
	Retained  int    `json:"retained"`
	Form      bool   `json:"form"`
}

// JSON encodes the report for tool results
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
