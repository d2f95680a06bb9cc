package acroform

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/a3tai/mcp-pdf-composer/internal/pdf/annotation"
	"github.com/a3tai/mcp-pdf-composer/internal/pdf/cos"
)

// sigFlagSignaturesExist is bit 1 of the form /SigFlags
const sigFlagSignaturesExist = 1

// mergeFormDictionary merges the form level entries of form into the
// destination form. Values already present in the destination win.
func (m *Merger) mergeFormDictionary(form *SourceForm) error {
	src := form.copier.Source()
	dict := form.dict

	if needs, _ := src.Resolve(dict["NeedAppearances"]); needs == types.Boolean(true) {
		m.form["NeedAppearances"] = types.Boolean(true)
	}

	if da, ok := src.Text(dict["DA"]); ok && strings.TrimSpace(da) != "" {
		if existing, _ := m.dst.Text(m.form["DA"]); strings.TrimSpace(existing) == "" {
			copied, err := form.copier.Copy(dict["DA"])
			if err != nil {
				return err
			}
			m.form["DA"] = copied
		}
	}

	if q, ok := src.Int(dict["Q"]); ok {
		if _, exists := m.form["Q"]; !exists {
			m.form["Q"] = types.Integer(q)
		}
	}

	resources, _ := m.form["DR"].(types.Dict)
	if resources == nil {
		resources = types.Dict{}
	}
	dr, err := src.Dict(dict["DR"])
	if err != nil {
		return err
	}
	for key, val := range dr {
		resolved, err := src.Resolve(val)
		if err != nil {
			return err
		}
		switch v := resolved.(type) {
		case types.Dict:
			if err := m.mergeResourceDict(form.copier, resources, key, v); err != nil {
				return err
			}
		case types.Array:
			if err := m.mergeResourceArray(form.copier, resources, key, v); err != nil {
				return err
			}
		case nil:
		default:
			m.logger.Warn("unsupported resource dictionary type", "key", key, "type", fmt.Sprintf("%T", v))
		}
	}
	m.form["DR"] = resources
	m.logger.Debug("merged form dictionary")
	return nil
}

// mergeResourceDict adds the entries of value missing from resources[key]
func (m *Merger) mergeResourceDict(copier *cos.Copier, resources types.Dict, key string, value types.Dict) error {
	current, _ := resources[key].(types.Dict)
	if current == nil {
		current = types.Dict{}
	}
	for name, v := range value {
		if _, exists := current[name]; exists {
			continue
		}
		copied, err := copier.Copy(v)
		if err != nil {
			return fmt.Errorf("copying /DR /%s /%s: %w", key, name, err)
		}
		if copied != nil {
			current[name] = copied
		}
	}
	resources[key] = current
	return nil
}

// mergeResourceArray appends the items of value missing from resources[key], keeping first seen order
func (m *Merger) mergeResourceArray(copier *cos.Copier, resources types.Dict, key string, value types.Array) error {
	current, _ := resources[key].(types.Array)
	for _, item := range value {
		copied, err := copier.Copy(item)
		if err != nil {
			return fmt.Errorf("copying /DR /%s: %w", key, err)
		}
		if !containsObject(current, copied) {
			current = append(current, copied)
		}
	}
	resources[key] = current
	return nil
}

func containsObject(arr types.Array, obj types.Object) bool {
	for _, item := range arr {
		if reflect.DeepEqual(item, obj) {
			return true
		}
	}
	return false
}

// HasForm reports whether the destination form has any field
func (m *Merger) HasForm() bool {
	return len(m.tree.Roots()) > 0
}

// Form cleans up the merged form and returns the destination form
// dictionary. Non-terminal fields left without children are removed and
// signature values are cleared, flagging the form as signed.
func (m *Merger) Form() (types.Dict, error) {
	for _, name := range m.tree.pruneEmpty() {
		m.logger.Info("removed non terminal field with no child", "field", name)
	}

	for _, i := range m.tree.Live() {
		f := m.tree.Field(i)
		if f.Terminal && m.isSignature(i) && annotation.ClipSignature(f.Dict) {
			flags, _ := m.dst.Int(m.form["SigFlags"])
			m.form["SigFlags"] = types.Integer(flags | sigFlagSignaturesExist)
		}
	}

	if err := m.materialize(); err != nil {
		return nil, err
	}
	return m.form, nil
}

// isSignature reports whether field i, or the closest ancestor declaring a
// field type, is a signature field
func (m *Merger) isSignature(i int) bool {
	for cur := i; cur != noParent; cur = m.tree.Field(cur).Parent {
		if ft, ok := m.dst.Name(m.tree.Field(cur).Dict["FT"]); ok {
			return ft == "Sig"
		}
	}
	return false
}

// materialize writes the arena relations into the field dictionaries and
// the root field list into the form dictionary
func (m *Merger) materialize() error {
	for _, i := range m.tree.Live() {
		f := m.tree.Field(i)
		if f.Parent == noParent {
			delete(f.Dict, "Parent")
		} else {
			f.Dict["Parent"] = m.tree.Field(f.Parent).Ref
		}

		kids := types.Array{}
		for _, c := range f.Children {
			kids = append(kids, m.tree.Field(c).Ref)
		}
		for _, w := range f.Widgets {
			kids = append(kids, w)
		}
		if len(kids) > 0 {
			f.Dict["Kids"] = kids
		} else {
			delete(f.Dict, "Kids")
		}
		if err := m.dst.Set(f.Ref, f.Dict); err != nil {
			return err
		}
	}

	roots := types.Array{}
	for _, r := range m.tree.Roots() {
		roots = append(roots, m.tree.Field(r).Ref)
	}
	m.form["Fields"] = roots
	return nil
}

// Attach installs the merged form as the destination /AcroForm. Nothing is
// attached when the form has no fields.
func (m *Merger) Attach() error {
	form, err := m.Form()
	if err != nil {
		return err
	}
	if !m.HasForm() {
		m.logger.Debug("no form fields to attach")
		return nil
	}

	if m.formRef == nil {
		ref, err := m.dst.Add(form)
		if err != nil {
			return err
		}
		m.formRef = &ref
	} else if err := m.dst.Set(*m.formRef, form); err != nil {
		return err
	}

	catalog, err := m.dst.Catalog()
	if err != nil {
		return err
	}
	catalog["AcroForm"] = *m.formRef
	m.logger.Info("form attached", "fields", m.tree.Len())
	return nil
}
