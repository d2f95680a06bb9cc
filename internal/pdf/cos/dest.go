package cos

import (
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Destination resolves a destination value (explicit array, name, string or
// a dictionary carrying /D) to an explicit destination array. ok is false for
// destinations that cannot be resolved inside this document.
func (d *Document) Destination(obj types.Object) (types.Array, bool) {
	return d.destination(obj, 0)
}

func (d *Document) destination(obj types.Object, depth int) (types.Array, bool) {
	// named destinations may point at other named destinations
	if depth > 8 {
		return nil, false
	}
	resolved, err := d.Resolve(obj)
	if err != nil || resolved == nil {
		return nil, false
	}

	switch v := resolved.(type) {
	case types.Array:
		if len(v) == 0 {
			return nil, false
		}
		return v, true
	case types.Dict:
		return d.destination(v["D"], depth+1)
	case types.Name:
		target, ok := d.namedDestination(string(v), true)
		if !ok {
			return nil, false
		}
		return d.destination(target, depth+1)
	case types.StringLiteral, types.HexLiteral:
		name, ok := d.Text(v)
		if !ok {
			return nil, false
		}
		target, ok := d.namedDestination(name, false)
		if !ok {
			return nil, false
		}
		return d.destination(target, depth+1)
	default:
		return nil, false
	}
}

// ActionDestination returns the explicit destination of a GoTo action
func (d *Document) ActionDestination(action types.Object) (types.Array, bool) {
	dict, err := d.Dict(action)
	if err != nil || dict == nil {
		return nil, false
	}
	if s, _ := d.Name(dict["S"]); s != "GoTo" {
		return nil, false
	}
	return d.Destination(dict["D"])
}

// DestinationPage returns the object number of the page an explicit destination targets
func DestinationPage(dest types.Array) (int, bool) {
	if len(dest) == 0 {
		return 0, false
	}
	return ObjNr(dest[0])
}

// namedDestination looks name up in the catalog /Dests dictionary (name keys)
// or in the /Names /Dests name tree (string keys).
func (d *Document) namedDestination(name string, isName bool) (types.Object, bool) {
	catalog, err := d.Catalog()
	if err != nil {
		return nil, false
	}

	if isName {
		if dests, err := d.Dict(catalog["Dests"]); err == nil && dests != nil {
			if target, ok := dests[name]; ok {
				return target, true
			}
		}
	}

	names, err := d.Dict(catalog["Names"])
	if err != nil || names == nil {
		return nil, false
	}
	return d.nameTreeLookup(names["Dests"], name, map[int]bool{})
}

func (d *Document) nameTreeLookup(node types.Object, key string, visited map[int]bool) (types.Object, bool) {
	if objNr, ok := ObjNr(node); ok {
		if visited[objNr] {
			return nil, false
		}
		visited[objNr] = true
	}

	dict, err := d.Dict(node)
	if err != nil || dict == nil {
		return nil, false
	}

	if names, _ := d.Array(dict["Names"]); names != nil {
		for i := 0; i+1 < len(names); i += 2 {
			if k, ok := d.Text(names[i]); ok && k == key {
				return names[i+1], true
			}
		}
	}

	kids, _ := d.Array(dict["Kids"])
	for _, kid := range kids {
		if target, ok := d.nameTreeLookup(kid, key, visited); ok {
			return target, true
		}
	}
	return nil, false
}

// RemapDestination rewrites an explicit source destination so it targets the
// imported page. ok is false when the target page was not imported.
func (c *Copier) RemapDestination(dest types.Array) (types.Array, bool, error) {
	pageNr, ok := DestinationPage(dest)
	if !ok {
		return nil, false, nil
	}
	page, ok := c.pages.Lookup(pageNr)
	if !ok {
		return nil, false, nil
	}

	out := types.Array{page}
	for _, item := range dest[1:] {
		copied, err := c.Copy(item)
		if err != nil {
			return nil, false, err
		}
		out = append(out, copied)
	}
	return out, true, nil
}
