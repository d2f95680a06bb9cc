// Package acroform merges the interactive forms of source documents into the
// form of a destination document under a field name collision policy.
package acroform

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/a3tai/mcp-pdf-composer/internal/logging"
	"github.com/a3tai/mcp-pdf-composer/internal/pdf/annotation"
	"github.com/a3tai/mcp-pdf-composer/internal/pdf/cos"
	pdferrors "github.com/a3tai/mcp-pdf-composer/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-composer/internal/pdf/lookup"
)

// Policy selects what happens to the form of a merged document
type Policy int

const (
	// Discard leaves the form out
	Discard Policy = iota
	// Merge reuses a destination field with the same fully qualified name
	Merge
	// MergeRenamingExisting renames incoming fields whose name is taken
	MergeRenamingExisting
	// Flatten merges renaming and then draws the fields into page content
	Flatten
)

// String returns the configuration name of the policy
func (p Policy) String() string {
	switch p {
	case Discard:
		return "discard"
	case Merge:
		return "merge"
	case MergeRenamingExisting:
		return "merge_renaming"
	case Flatten:
		return "flatten"
	default:
		return "unknown"
	}
}

// ParsePolicy converts a configuration name into a Policy
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "discard", "":
		return Discard, nil
	case "merge":
		return Merge, nil
	case "merge_renaming", "merge_renaming_existing", "rename":
		return MergeRenamingExisting, nil
	case "flatten":
		return Flatten, nil
	default:
		return Discard, fmt.Errorf("invalid form policy: %s", s)
	}
}

// fieldKeys are the logical keys of a field. They are removed from widget
// annotations before a field dictionary takes ownership of them.
var fieldKeys = []string{"FT", "Parent", "Kids", "T", "TU", "TM", "Ff", "V", "DV", "DA", "Q", "DS", "RV",
	"Opt", "MaxLen", "TI", "I", "Lock", "SV", "DataPrep"}

// widgetKeys are the visual keys of a widget, removed from field dictionaries
var widgetKeys = []string{"Type", "Subtype", "Rect", "Contents", "P", "NM", "M", "F", "AP", "AS", "Border", "C",
	"StructParent", "OC", "AF", "BM", "H", "MK", "A", "BS", "PMD"}

// fieldTable maps source field object numbers to destination arena indices
type fieldTable = lookup.Table[int, int]

// terminalFunc returns the destination field a source terminal field binds
// its widgets to, or false when the field cannot be merged
type terminalFunc func(m *Merger, src *sourceField, fields *fieldTable) (int, bool, error)

// nonTerminalFunc makes sure a source non-terminal field has a destination
// counterpart in fields, or returns false when its subtree must be skipped
type nonTerminalFunc func(m *Merger, src *sourceField, fields *fieldTable) (bool, error)

// Merger accumulates source forms into one destination form
type Merger struct {
	policy Policy
	dst    *cos.Document
	logger logging.Logger

	tree    *Tree
	form    types.Dict
	formRef *types.IndirectRef

	// rename suffix: a per merger token and a monotonic counter
	token   string
	counter int

	flattened int
	problems  *pdferrors.ErrorCollection
}

// Option configures a Merger
type Option func(*Merger)

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(m *Merger) {
		m.logger = logger
	}
}

// NewMerger creates a merger building a form for destination
func NewMerger(policy Policy, destination *cos.Document, opts ...Option) *Merger {
	id := uuid.New()
	m := &Merger{
		policy:   policy,
		dst:      destination,
		logger:   logging.Nop(),
		tree:     newTree(),
		form:     types.Dict{},
		token:    strconv.FormatUint(binary.BigEndian.Uint64(id[:8]), 36),
		problems: pdferrors.NewErrorCollection(""),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Policy returns the merge policy
func (m *Merger) Policy() Policy {
	return m.policy
}

// Tree returns the destination field arena
func (m *Merger) Tree() *Tree {
	return m.tree
}

// Warnings returns the problems that were skipped over
func (m *Merger) Warnings() []string {
	return m.problems.WarningMessages()
}

func (m *Merger) warn(err *pdferrors.PDFError) {
	m.logger.Warn(err.Message, "context", err.Context)
	m.problems.Add(err)
}

// MergeForm merges form into the destination form. Only fields with at least
// one widget in annotations, the table built when their pages were imported,
// are kept.
func (m *Merger) MergeForm(form *SourceForm, annotations *annotation.Table) error {
	if form == nil {
		m.logger.Debug("skipped form merge, nothing to merge")
		return nil
	}
	if form.copier.Destination() != m.dst {
		return pdferrors.NewPDFError(pdferrors.ErrorTypeInvariantViolation, "form was imported into another destination")
	}
	if form.HasXFA() {
		m.warn(pdferrors.NewPDFErrorWithContext(pdferrors.ErrorTypeUnsupportedFeature,
			"merge of XFA forms is not supported", form.copier.Source().DisplayName()))
		return nil
	}

	m.logger.Debug("merging form", "policy", m.policy.String())
	switch m.policy {
	case MergeRenamingExisting:
		m.stripFieldKeys(annotations)
		return m.updateForm(form, annotations, createRenamingTerminal, createRenamingNonTerminal)
	case Merge:
		m.stripFieldKeys(annotations)
		return m.updateForm(form, annotations, createOrReuseTerminal, createOrReuseNonTerminal)
	case Flatten:
		m.stripFieldKeys(annotations)
		if err := m.updateForm(form, annotations, createRenamingTerminal, createRenamingNonTerminal); err != nil {
			return err
		}
		m.flatten()
		return nil
	default:
		m.logger.Debug("discarding form")
		return nil
	}
}

// stripFieldKeys removes the field keys from every destination widget
func (m *Merger) stripFieldKeys(annotations *annotation.Table) {
	for _, ref := range annotations.Values() {
		dict, err := m.dst.Dict(ref)
		if err != nil || dict == nil {
			continue
		}
		if subtype, _ := m.dst.Name(dict["Subtype"]); subtype != "Widget" {
			continue
		}
		for _, key := range fieldKeys {
			delete(dict, key)
		}
	}
	m.logger.Debug("removed field keys from widget annotations")
}

func (m *Merger) updateForm(form *SourceForm, widgets *annotation.Table, terminal terminalFunc, nonTerminal nonTerminalFunc) error {
	if err := m.mergeFormDictionary(form); err != nil {
		return err
	}

	sources, err := form.fieldTree()
	if err != nil {
		return fmt.Errorf("reading form fields: %w", err)
	}

	fields := lookup.New[int, int]()
	skipped := map[int]bool{}
	for _, src := range sources {
		if skipped[src.parent] {
			skipped[src.objNr] = true
			continue
		}

		if !src.terminal {
			ok, err := nonTerminal(m, src, fields)
			if err != nil {
				return err
			}
			if !ok {
				skipped[src.objNr] = true
			}
			continue
		}

		relevant := m.mappedWidgets(src, widgets)
		if len(relevant) == 0 {
			m.logger.Info("discarded not relevant field", "field", src.fqn)
			continue
		}
		i, ok, err := terminal(m, src, fields)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		field := m.tree.Field(i)
		for _, w := range relevant {
			if err := m.bindWidget(field, w); err != nil {
				return err
			}
		}
		for _, key := range widgetKeys {
			delete(field.Dict, key)
		}
	}
	return nil
}

// mappedWidgets returns the destination widgets of a source terminal field
func (m *Merger) mappedWidgets(src *sourceField, widgets *annotation.Table) []types.IndirectRef {
	var out []types.IndirectRef
	for _, objNr := range src.widgets {
		ref, ok := widgets.Lookup(objNr)
		if !ok {
			continue
		}
		dict, err := m.dst.Dict(ref)
		if err != nil || dict == nil {
			continue
		}
		if subtype, _ := m.dst.Name(dict["Subtype"]); subtype == "Widget" {
			out = append(out, ref)
		}
	}
	return out
}

// bindWidget makes widget a kid of field unless it already is
func (m *Merger) bindWidget(field *Field, widget types.IndirectRef) error {
	dict, err := m.dst.Dict(widget)
	if err != nil {
		return err
	}
	dict["Parent"] = field.Ref
	for _, w := range field.Widgets {
		if w == widget {
			return nil
		}
	}
	field.Widgets = append(field.Widgets, widget)
	return nil
}

// newField copies the source field dictionary into a new destination field under parent
func (m *Merger) newField(src *sourceField, parent int, partial string) (int, error) {
	dict, err := src.copier.CopyDict(src.dict, "Kids", "Parent")
	if err != nil {
		return 0, fmt.Errorf("copying field %q: %w", src.fqn, err)
	}
	if partial != src.partial {
		dict["T"] = cos.EncodeText(partial)
	}
	ref, err := m.dst.Add(dict)
	if err != nil {
		return 0, err
	}
	return m.tree.Add(&Field{
		Ref:      ref,
		Dict:     dict,
		Partial:  partial,
		Terminal: src.terminal,
	}, parent), nil
}

// parentOf returns the destination index of the source field's parent
func parentOf(src *sourceField, fields *fieldTable) int {
	if i, ok := fields.Lookup(src.parent); ok {
		return i
	}
	return noParent
}

// renamed returns partial followed by the merger token and the next counter value
func (m *Merger) renamed(partial string) string {
	m.counter++
	return fmt.Sprintf("%s%s%d", partial, m.token, m.counter)
}

func createOrReuseTerminal(m *Merger, src *sourceField, fields *fieldTable) (int, bool, error) {
	i, found := m.tree.Lookup(src.fqn)
	if !found {
		i, found = fields.Lookup(src.objNr)
	}
	if !found {
		var err error
		if i, err = m.newField(src, parentOf(src, fields), src.partial); err != nil {
			return 0, false, err
		}
		if err := fields.Add(src.objNr, i); err != nil {
			return 0, false, err
		}
	}
	if !m.tree.Field(i).Terminal {
		m.warn(pdferrors.NewPDFErrorWithContext(pdferrors.ErrorTypeFieldConflict,
			"cannot merge terminal field because a non terminal field with the same name already exists", src.fqn))
		return 0, false, nil
	}
	return i, true, nil
}

func createRenamingTerminal(m *Merger, src *sourceField, fields *fieldTable) (int, bool, error) {
	partial := src.partial
	if _, taken := m.tree.Lookup(src.fqn); taken || fields.Has(src.objNr) {
		partial = m.renamed(src.partial)
		m.logger.Info("existing terminal field renamed", "from", src.partial, "to", partial)
	}
	i, err := m.newField(src, parentOf(src, fields), partial)
	if err != nil {
		return 0, false, err
	}
	if err := fields.Add(src.objNr, i); err != nil {
		return 0, false, err
	}
	return i, true, nil
}

func createOrReuseNonTerminal(m *Merger, src *sourceField, fields *fieldTable) (bool, error) {
	if fields.Has(src.objNr) {
		return true, nil
	}
	if i, found := m.tree.Lookup(src.fqn); found {
		if m.tree.Field(i).Terminal {
			m.warn(pdferrors.NewPDFErrorWithContext(pdferrors.ErrorTypeFieldConflict,
				"cannot merge non terminal field because a terminal field with the same name already exists", src.fqn))
			return false, nil
		}
		return true, fields.Add(src.objNr, i)
	}
	i, err := m.newField(src, parentOf(src, fields), src.partial)
	if err != nil {
		return false, err
	}
	return true, fields.Add(src.objNr, i)
}

func createRenamingNonTerminal(m *Merger, src *sourceField, fields *fieldTable) (bool, error) {
	partial := src.partial
	if _, taken := m.tree.Lookup(src.fqn); taken || fields.Has(src.objNr) {
		partial = m.renamed(src.partial)
		m.logger.Info("existing non terminal field renamed", "from", src.partial, "to", partial)
	}
	i, err := m.newField(src, parentOf(src, fields), partial)
	if err != nil {
		return false, err
	}
	return true, fields.Add(src.objNr, i)
}
