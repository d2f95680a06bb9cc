// Package job describes and runs compositions: pages of one or more source
// documents written into a single output document whose forms are merged
// under one policy.
package job

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

// Job is a composition request
type Job struct {
	Output         string   `yaml:"output" json:"output"`
	Policy         string   `yaml:"policy,omitempty" json:"policy,omitempty"`
	DiscardOutline bool     `yaml:"discard_outline,omitempty" json:"discard_outline,omitempty"`
	Optimize       bool     `yaml:"optimize,omitempty" json:"optimize,omitempty"`
	Compress       *bool    `yaml:"compress,omitempty" json:"compress,omitempty"`
	Version        string   `yaml:"version,omitempty" json:"version,omitempty"`
	Sources        []Source `yaml:"sources" json:"sources"`
}

// Source selects pages of one document. Pages and Ranges add up; with
// neither every page is taken.
type Source struct {
	Path   string `yaml:"path" json:"path"`
	Pages  []int  `yaml:"pages,omitempty" json:"pages,omitempty"`
	Ranges string `yaml:"ranges,omitempty" json:"ranges,omitempty"`
}

// compress reports whether the output uses object streams, the default
func (j *Job) compress() bool {
	return j.Compress == nil || *j.Compress
}

// Decode reads a YAML or JSON job document and validates it
func Decode(r io.Reader) (*Job, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading job: %w", err)
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing job: %w", err)
	}
	if doc == nil {
		return nil, errors.New("job document is empty")
	}
	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	var j Job
	if err := yaml.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parsing job: %w", err)
	}
	return &j, nil
}

// Validate checks j against the job schema
func Validate(j *Job) error {
	if j == nil {
		return errors.New("job is nil")
	}
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("encoding job: %w", err)
	}
	return validateJSON(data)
}

// validateDocument runs the schema over a decoded YAML document. It is
// re-encoded as JSON so numbers reach the validator in JSON form.
func validateDocument(doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("job is not representable as JSON: %w", err)
	}
	return validateJSON(data)
}

func validateJSON(data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("job is not valid JSON: %w", err)
	}
	if err := s.Validate(instance); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			leaf := verr
			for len(leaf.Causes) > 0 {
				leaf = leaf.Causes[0]
			}
			return &ValidationError{Path: "/" + strings.Join(leaf.InstanceLocation, "/"), Message: verr.Error()}
		}
		return err
	}
	return nil
}

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		value, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			schemaErr = fmt.Errorf("failed to unmarshal job schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("job.json", value); err != nil {
			schemaErr = fmt.Errorf("failed to add job schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("job.json")
	})
	return schema, schemaErr
}

// ValidationError locates a schema violation in a job document
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid job at %s: %s", e.Path, e.Message)
}
