// Package outline rebuilds the bookmark tree of a source document for the
// pages that were copied into a destination document.
package outline

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/a3tai/mcp-pdf-composer/internal/logging"
	"github.com/a3tai/mcp-pdf-composer/internal/pdf/cos"
)

// Item is a surviving outline node. Dest is nil for nodes kept only because
// a descendant survived.
type Item struct {
	Title    types.Object
	Color    types.Object
	Flags    types.Object
	Dest     types.Array
	Open     bool
	Children []*Item
}

// Distiller filters the source outline through the copier's page table
type Distiller struct {
	copier *cos.Copier
	logger logging.Logger
}

// Option configures a Distiller
type Option func(*Distiller)

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(d *Distiller) {
		d.logger = logger
	}
}

// NewDistiller creates a distiller over copier
func NewDistiller(copier *cos.Copier, opts ...Option) *Distiller {
	d := &Distiller{copier: copier, logger: logging.Nop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Distill filters the source outline and returns the surviving top-level items
func (d *Distiller) Distill() ([]*Item, error) {
	src := d.copier.Source()
	catalog, err := src.Catalog()
	if err != nil {
		return nil, err
	}
	root, err := src.Dict(catalog["Outlines"])
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, nil
	}
	return d.walk(root["First"], map[int]bool{})
}

func (d *Distiller) walk(first types.Object, visited map[int]bool) ([]*Item, error) {
	src := d.copier.Source()

	var items []*Item
	for current := first; current != nil; {
		objNr, ok := cos.ObjNr(current)
		if !ok {
			break
		}
		if visited[objNr] {
			d.logger.Warn("outline loop detected", "object", objNr)
			break
		}
		visited[objNr] = true

		dict, err := src.Dict(current)
		if err != nil {
			return nil, err
		}
		if dict == nil {
			break
		}

		item, err := d.item(dict, visited)
		if err != nil {
			return nil, fmt.Errorf("outline item %d: %w", objNr, err)
		}
		if item != nil {
			items = append(items, item)
		}
		current = dict["Next"]
	}
	return items, nil
}

func (d *Distiller) item(dict types.Dict, visited map[int]bool) (*Item, error) {
	src := d.copier.Source()

	children, err := d.walk(dict["First"], visited)
	if err != nil {
		return nil, err
	}

	target, ok := src.Destination(dict["Dest"])
	if !ok {
		target, ok = src.ActionDestination(dict["A"])
	}
	var dest types.Array
	if ok {
		dest, _, err = d.copier.RemapDestination(target)
		if err != nil {
			return nil, err
		}
	}

	if dest == nil && len(children) == 0 {
		return nil, nil
	}

	count, _ := src.Int(dict["Count"])
	item := &Item{
		Dest:     dest,
		Open:     count >= 0,
		Children: children,
	}
	for _, field := range []struct {
		key string
		dst *types.Object
	}{{"Title", &item.Title}, {"C", &item.Color}, {"F", &item.Flags}} {
		if v, ok := dict[field.key]; ok {
			copied, err := d.copier.Copy(v)
			if err != nil {
				return nil, err
			}
			*field.dst = copied
		}
	}
	return item, nil
}

// Attach writes items into the destination outline, appending after any
// existing top-level items. Nothing is written when items is empty.
func (d *Distiller) Attach(items []*Item) error {
	if len(items) == 0 {
		return nil
	}
	dst := d.copier.Destination()
	catalog, err := dst.Catalog()
	if err != nil {
		return err
	}

	rootRef, ok := catalog["Outlines"].(types.IndirectRef)
	var root types.Dict
	if ok {
		if root, err = dst.Dict(rootRef); err != nil {
			return err
		}
	}
	if root == nil {
		root = types.Dict{"Type": types.Name("Outlines")}
		if rootRef, err = dst.Add(root); err != nil {
			return err
		}
		catalog["Outlines"] = rootRef
	}

	first, last, visible, err := d.writeLevel(rootRef, items)
	if err != nil {
		return err
	}

	if prevLast, ok := root["Last"].(types.IndirectRef); ok {
		prev, err := dst.Dict(prevLast)
		if err != nil {
			return err
		}
		prev["Next"] = first
		firstDict, err := dst.Dict(first)
		if err != nil {
			return err
		}
		firstDict["Prev"] = prevLast
	} else {
		root["First"] = first
	}
	root["Last"] = last

	existing, _ := dst.Int(root["Count"])
	root["Count"] = types.Integer(existing + visible)
	return nil
}

// writeLevel writes siblings under parent and returns the first and last
// references and the number of items visible at this level
func (d *Distiller) writeLevel(parent types.IndirectRef, items []*Item) (first, last types.IndirectRef, visible int, err error) {
	dst := d.copier.Destination()

	refs := make([]types.IndirectRef, len(items))
	for i := range items {
		if refs[i], err = dst.Alloc(); err != nil {
			return first, last, 0, err
		}
	}

	for i, item := range items {
		dict := types.Dict{"Parent": parent}
		if item.Title != nil {
			dict["Title"] = item.Title
		} else {
			dict["Title"] = types.StringLiteral("")
		}
		if item.Color != nil {
			dict["C"] = item.Color
		}
		if item.Flags != nil {
			dict["F"] = item.Flags
		}
		if item.Dest != nil {
			dict["Dest"] = item.Dest
		}
		if i > 0 {
			dict["Prev"] = refs[i-1]
		}
		if i < len(items)-1 {
			dict["Next"] = refs[i+1]
		}

		visible++
		if len(item.Children) > 0 {
			cf, cl, cv, err := d.writeLevel(refs[i], item.Children)
			if err != nil {
				return first, last, 0, err
			}
			dict["First"] = cf
			dict["Last"] = cl
			if item.Open {
				dict["Count"] = types.Integer(cv)
				visible += cv
			} else {
				dict["Count"] = types.Integer(-cv)
			}
		}

		if err := dst.Set(refs[i], dict); err != nil {
			return first, last, 0, err
		}
	}
	return refs[0], refs[len(refs)-1], visible, nil
}

// Run distills the source outline and attaches it, returning the number of
// top-level items written
func (d *Distiller) Run() (int, error) {
	items, err := d.Distill()
	if err != nil {
		return 0, err
	}
	if err := d.Attach(items); err != nil {
		return 0, err
	}
	d.logger.Debug("outline distilled", "items", len(items))
	return len(items), nil
}
