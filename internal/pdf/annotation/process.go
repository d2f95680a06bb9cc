// Package annotation copies the annotations of imported pages and re-links
// the references between them.
package annotation

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/a3tai/mcp-pdf-composer/internal/logging"
	"github.com/a3tai/mcp-pdf-composer/internal/pdf/cos"
	"github.com/a3tai/mcp-pdf-composer/internal/pdf/lookup"
)

// Table maps source annotation object numbers to destination annotations
type Table = lookup.Table[int, types.IndirectRef]

// excludedKeys are rebuilt on the copy: page and annotation references are
// re-linked once every page is done and link targets are remapped
var excludedKeys = []string{"P", "Parent", "Popup", "IRT", "StructParent", "Dest", "A"}

// Processor copies annotations for the pages a copier imported. Each page is
// processed once, however many times Process runs.
type Processor struct {
	copier    *cos.Copier
	logger    logging.Logger
	annots    *Table
	processed map[int]bool
	dropped   int
}

// Option configures a Processor
type Option func(*Processor)

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// NewProcessor creates a processor over copier
func NewProcessor(copier *cos.Copier, opts ...Option) *Processor {
	p := &Processor{
		copier:    copier,
		logger:    logging.Nop(),
		annots:    lookup.New[int, types.IndirectRef](),
		processed: map[int]bool{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Lookup returns the annotation table built so far
func (p *Processor) Lookup() *Table {
	return p.annots
}

// Dropped returns the number of link annotations left out because their target page was not imported
func (p *Processor) Dropped() int {
	return p.dropped
}

// Reset forgets processed pages and annotation mappings
func (p *Processor) Reset() {
	p.annots.Clear()
	p.processed = map[int]bool{}
	p.dropped = 0
}

// Process copies the annotations of every imported page not yet processed,
// then re-links popups, parents and replies among the copies
func (p *Processor) Process() (*Table, error) {
	pages := p.copier.Pages()
	srcPages := pages.Keys()
	dstPages := pages.Values()

	var added []int
	for i, srcPage := range srcPages {
		if p.processed[srcPage] {
			continue
		}
		p.processed[srcPage] = true

		copied, err := p.processPage(srcPage, dstPages[i])
		if err != nil {
			return nil, fmt.Errorf("processing annotations of object %d: %w", srcPage, err)
		}
		added = append(added, copied...)
	}

	// relinking is idempotent, so earlier pages see popups copied now
	if err := p.relink(p.annots.Keys()); err != nil {
		return nil, err
	}
	p.logger.Debug("annotations processed", "added", len(added), "total", p.annots.Len(), "dropped", p.dropped)
	return p.annots, nil
}

func (p *Processor) processPage(srcPage int, dstPage types.IndirectRef) ([]int, error) {
	src := p.copier.Source()
	dst := p.copier.Destination()

	pageDict, err := src.Dict(cos.Ref(srcPage))
	if err != nil || pageDict == nil {
		return nil, err
	}
	annots, err := src.Array(pageDict["Annots"])
	if err != nil || len(annots) == 0 {
		return nil, err
	}

	dstPageDict, err := dst.Dict(dstPage)
	if err != nil {
		return nil, err
	}

	var added []int
	out := types.Array{}
	for _, annot := range annots {
		annotDict, err := src.Dict(annot)
		if err != nil {
			return nil, err
		}
		if annotDict == nil {
			continue
		}

		objNr, indirect := cos.ObjNr(annot)
		if indirect && p.annots.Has(objNr) {
			// shared between pages; an annotation belongs to one page only
			continue
		}

		copied, keep, err := p.copyAnnotation(annotDict, dstPage)
		if err != nil {
			return nil, err
		}
		if !keep {
			p.dropped++
			continue
		}

		ref, err := p.store(annot, copied)
		if err != nil {
			return nil, err
		}
		if indirect {
			if err := p.annots.Add(objNr, ref); err != nil {
				return nil, err
			}
			added = append(added, objNr)
		}
		out = append(out, ref)
	}

	if len(out) > 0 {
		dstPageDict["Annots"] = out
	}
	return added, nil
}

// copyAnnotation copies one annotation with /P pointing at the destination
// page. Links whose target page was not imported are not kept.
func (p *Processor) copyAnnotation(dict types.Dict, dstPage types.IndirectRef) (types.Dict, bool, error) {
	src := p.copier.Source()

	copied, err := p.copier.CopyDict(dict, excludedKeys...)
	if err != nil {
		return nil, false, err
	}
	copied["P"] = dstPage

	subtype, _ := src.Name(dict["Subtype"])
	if subtype == "Link" {
		return p.remapLink(dict, copied)
	}

	if action, ok := dict["A"]; ok {
		if copied["A"], err = p.copier.Copy(action); err != nil {
			return nil, false, err
		}
	}
	return copied, true, nil
}

func (p *Processor) remapLink(dict, copied types.Dict) (types.Dict, bool, error) {
	src := p.copier.Source()

	if target, ok := src.Destination(dict["Dest"]); ok {
		dest, mapped, err := p.copier.RemapDestination(target)
		if err != nil || !mapped {
			return nil, false, err
		}
		copied["Dest"] = dest
		return copied, true, nil
	}

	if target, ok := src.ActionDestination(dict["A"]); ok {
		dest, mapped, err := p.copier.RemapDestination(target)
		if err != nil || !mapped {
			return nil, false, err
		}
		copied["A"] = types.Dict{"S": types.Name("GoTo"), "D": dest}
		return copied, true, nil
	}

	// URI, launch and other actions do not depend on pages
	if action, ok := dict["A"]; ok {
		a, err := p.copier.Copy(action)
		if err != nil {
			return nil, false, err
		}
		copied["A"] = a
	}
	return copied, true, nil
}

// store writes the copy as an indirect object. Annotations referenced from
// elsewhere keep the destination object the copier already assigned.
func (p *Processor) store(annot types.Object, copied types.Dict) (types.IndirectRef, error) {
	dst := p.copier.Destination()
	objNr, indirect := cos.ObjNr(annot)
	if indirect {
		if existing, ok := p.copier.Objects().Lookup(objNr); ok {
			return existing, dst.Set(existing, copied)
		}
	}

	ref, err := dst.Add(copied)
	if err != nil {
		return types.IndirectRef{}, err
	}
	if indirect {
		if err := p.copier.Objects().Add(objNr, ref); err != nil {
			return types.IndirectRef{}, err
		}
	}
	return ref, nil
}

// relink points /Popup, /IRT and the /Parent of popups at the copied
// annotations. References to annotations that were not copied are dropped.
func (p *Processor) relink(srcAnnots []int) error {
	src := p.copier.Source()
	dst := p.copier.Destination()

	for _, objNr := range srcAnnots {
		srcDict, err := src.Dict(cos.Ref(objNr))
		if err != nil {
			return err
		}
		dstRef, _ := p.annots.Lookup(objNr)
		dstDict, err := dst.Dict(dstRef)
		if err != nil {
			return err
		}

		keys := []string{"Popup", "IRT"}
		if subtype, _ := src.Name(srcDict["Subtype"]); subtype == "Popup" {
			keys = append(keys, "Parent")
		}
		for _, key := range keys {
			target, ok := cos.ObjNr(srcDict[key])
			if !ok {
				continue
			}
			if mapped, ok := p.annots.Lookup(target); ok {
				dstDict[key] = mapped
			}
		}
	}
	return nil
}
