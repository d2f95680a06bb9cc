package acroform

import (
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/a3tai/mcp-pdf-composer/internal/pdf/cos"
)

// SourceForm is the interactive form of a document whose pages were
// imported by copier
type SourceForm struct {
	copier *cos.Copier
	dict   types.Dict
}

// FormOf returns the form of the copier's source document, or nil when it has none
func FormOf(copier *cos.Copier) (*SourceForm, error) {
	src := copier.Source()
	catalog, err := src.Catalog()
	if err != nil {
		return nil, err
	}
	dict, err := src.Dict(catalog["AcroForm"])
	if err != nil {
		return nil, err
	}
	if dict == nil {
		return nil, nil
	}
	return &SourceForm{copier: copier, dict: dict}, nil
}

// Dict returns the source form dictionary
func (f *SourceForm) Dict() types.Dict {
	return f.dict
}

// HasXFA reports whether the form carries an XML forms architecture part
func (f *SourceForm) HasXFA() bool {
	_, ok := f.dict["XFA"]
	return ok
}

// sourceField is a field of the source form tree
type sourceField struct {
	copier   *cos.Copier
	objNr    int
	dict     types.Dict
	partial  string
	fqn      string
	parent   int // object number, 0 for root fields
	terminal bool
	// widgets are the object numbers of the widget annotations of a terminal field
	widgets []int
}

// fieldTree returns the source fields, parents before children
func (f *SourceForm) fieldTree() ([]*sourceField, error) {
	src := f.copier.Source()
	roots, err := src.Array(f.dict["Fields"])
	if err != nil {
		return nil, err
	}

	var out []*sourceField
	visited := map[int]bool{}
	var walk func(obj types.Object, parent int, parentName string) error
	walk = func(obj types.Object, parent int, parentName string) error {
		objNr, ok := cos.ObjNr(obj)
		if !ok || visited[objNr] {
			return nil
		}
		visited[objNr] = true

		dict, err := src.Dict(obj)
		if err != nil || dict == nil {
			return err
		}
		kids, err := src.Array(dict["Kids"])
		if err != nil {
			return err
		}

		field := &sourceField{copier: f.copier, objNr: objNr, dict: dict, parent: parent}
		field.partial, _ = src.Text(dict["T"])
		field.fqn = field.partial
		if parentName != "" {
			field.fqn = parentName
			if field.partial != "" {
				field.fqn += "." + field.partial
			}
		}
		field.terminal = !f.hasFieldKids(kids)
		if field.terminal {
			field.widgets = f.widgetsOf(objNr, kids)
		}
		out = append(out, field)

		if field.terminal {
			return nil
		}
		for _, kid := range kids {
			if err := walk(kid, objNr, field.fqn); err != nil {
				return err
			}
		}
		return nil
	}

	for _, root := range roots {
		if err := walk(root, 0, ""); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// hasFieldKids reports whether kids contains a field rather than only widgets
func (f *SourceForm) hasFieldKids(kids types.Array) bool {
	src := f.copier.Source()
	for _, kid := range kids {
		dict, err := src.Dict(kid)
		if err != nil || dict == nil {
			continue
		}
		if _, ok := dict["T"]; ok {
			return true
		}
	}
	return false
}

// widgetsOf returns the widgets of a terminal field: its kids, or the field
// itself when field and widget share one dictionary
func (f *SourceForm) widgetsOf(objNr int, kids types.Array) []int {
	if len(kids) == 0 {
		return []int{objNr}
	}
	out := make([]int, 0, len(kids))
	for _, kid := range kids {
		if n, ok := cos.ObjNr(kid); ok {
			out = append(out, n)
		}
	}
	return out
}
