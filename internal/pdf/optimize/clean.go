package optimize

import (
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/a3tai/mcp-pdf-composer/internal/pdf/cos"
)

// hits accumulates the names used against one resource dictionary. A
// dictionary shared by several forms is pruned only after every content
// stream using it has been scanned.
type hits struct {
	res   types.Dict
	used  usage
	owner int
	// keep is set when some content using res could not be read
	keep bool
}

type hitter struct {
	doc *cos.Document
	// keyed by the object number of an indirect resource dictionary, or by
	// the negated object number of the page or form owning a direct one
	byKey   map[int]*hits
	order   []*hits
	scanned map[int]bool
}

// CleanUnusedResources removes /Font and /XObject entries that no content
// stream, form external object or annotation appearance of pages refers to
func (o *Optimizer) CleanUnusedResources(pages []types.IndirectRef) error {
	h := &hitter{
		doc:     o.doc,
		byKey:   map[int]*hits{},
		scanned: map[int]bool{},
	}

	for _, page := range pages {
		if err := h.hitPage(page); err != nil {
			return err
		}
	}

	removed := 0
	for _, entry := range h.order {
		if entry.keep {
			o.logger.Debug("keeping resources referenced by unreadable content", "owner", entry.owner)
			continue
		}
		removed += h.prune(entry.res, "Font", entry.used.fonts)
		removed += h.prune(entry.res, "XObject", entry.used.xobjects)
	}
	o.logger.Debug("removed unused resources", "entries", removed, "pages", len(pages))
	return nil
}

func (h *hitter) hitsFor(resObj types.Object, res types.Dict, owner int) *hits {
	key := -owner
	if objNr, ok := cos.ObjNr(resObj); ok {
		key = objNr
	}
	if entry, ok := h.byKey[key]; ok {
		return entry
	}
	entry := &hits{res: res, used: newUsage(), owner: owner}
	h.byKey[key] = entry
	h.order = append(h.order, entry)
	return entry
}

func (h *hitter) hitPage(page types.IndirectRef) error {
	pageDict, err := h.doc.Dict(page)
	if err != nil {
		return err
	}
	if pageDict == nil {
		return nil
	}
	res, err := h.doc.Dict(pageDict["Resources"])
	if err != nil {
		return err
	}
	if res == nil {
		return nil
	}

	entry := h.hitsFor(pageDict["Resources"], res, int(page.ObjectNumber))

	content, err := h.pageContent(pageDict["Contents"])
	if err != nil {
		entry.keep = true
	} else if err := h.hitContent(content, entry, map[int]bool{}); err != nil {
		return err
	}

	annots, err := h.doc.Array(pageDict["Annots"])
	if err != nil {
		return err
	}
	for _, annot := range annots {
		if err := h.hitAppearances(annot, entry); err != nil {
			return err
		}
	}
	return nil
}

// pageContent concatenates the decoded content streams of a page
func (h *hitter) pageContent(contents types.Object) ([]byte, error) {
	resolved, err := h.doc.Resolve(contents)
	if err != nil {
		return nil, err
	}

	var streams []types.Object
	switch v := resolved.(type) {
	case types.Array:
		streams = v
	case nil:
		return nil, nil
	default:
		streams = []types.Object{contents}
	}

	var out []byte
	for _, s := range streams {
		sd, err := h.doc.Stream(s)
		if err != nil {
			return nil, err
		}
		if sd == nil {
			continue
		}
		data, err := cos.StreamContent(sd)
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
		out = append(out, '\n')
	}
	return out, nil
}

func (h *hitter) hitContent(content []byte, entry *hits, path map[int]bool) error {
	used := scanContent(content)
	entry.used.merge(used)

	xobjects, err := h.doc.Dict(entry.res["XObject"])
	if err != nil || xobjects == nil {
		return err
	}
	for name := range used.xobjects {
		ref, ok := xobjects[name]
		if !ok {
			continue
		}
		if err := h.hitForm(ref, entry, path); err != nil {
			return err
		}
	}
	return nil
}

// hitForm scans a form external object. A form with its own resources is
// accounted against them; one without contributes to the caller.
func (h *hitter) hitForm(ref types.Object, caller *hits, path map[int]bool) error {
	objNr, indirect := cos.ObjNr(ref)
	if indirect {
		if path[objNr] {
			return nil
		}
		path[objNr] = true
		defer delete(path, objNr)
	}

	sd, err := h.doc.Stream(ref)
	if err != nil {
		return err
	}
	if sd == nil {
		return nil
	}
	if subtype, _ := h.doc.Name(sd.Dict["Subtype"]); subtype != "" && subtype != "Form" {
		return nil
	}

	res, err := h.doc.Dict(sd.Dict["Resources"])
	if err != nil {
		return err
	}

	target := caller
	if res != nil {
		if indirect && h.scanned[objNr] {
			return nil
		}
		if indirect {
			h.scanned[objNr] = true
		}
		target = h.hitsFor(sd.Dict["Resources"], res, objNr)
	}

	content, err := cos.StreamContent(sd)
	if err != nil {
		target.keep = true
		return nil
	}
	return h.hitContent(content, target, path)
}

// hitAppearances scans the normal, rollover and down appearances of an annotation
func (h *hitter) hitAppearances(annot types.Object, page *hits) error {
	annotDict, err := h.doc.Dict(annot)
	if err != nil || annotDict == nil {
		return err
	}
	ap, err := h.doc.Dict(annotDict["AP"])
	if err != nil || ap == nil {
		return err
	}

	for _, key := range []string{"N", "R", "D"} {
		obj, ok := ap[key]
		if !ok {
			continue
		}
		if sd, err := h.doc.Stream(obj); err == nil && sd != nil {
			if err := h.hitForm(obj, page, map[int]bool{}); err != nil {
				return err
			}
			continue
		}
		states, err := h.doc.Dict(obj)
		if err != nil || states == nil {
			continue
		}
		for _, state := range states {
			if err := h.hitForm(state, page, map[int]bool{}); err != nil {
				return err
			}
		}
	}
	return nil
}

// prune replaces res[key] with a dictionary holding only the used names and
// returns how many entries were dropped. The original sub-dictionary is not
// modified since it may be shared.
func (h *hitter) prune(res types.Dict, key string, used map[string]bool) int {
	sub, err := h.doc.Dict(res[key])
	if err != nil || sub == nil {
		return 0
	}
	kept := types.Dict{}
	for name, v := range sub {
		if used[name] {
			kept[name] = v
		}
	}
	removed := len(sub) - len(kept)
	if len(kept) == 0 {
		delete(res, key)
	} else {
		res[key] = kept
	}
	return removed
}
