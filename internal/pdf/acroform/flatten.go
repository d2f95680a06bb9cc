package acroform

import (
	"bytes"
	"fmt"
	"math"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/a3tai/mcp-pdf-composer/internal/pdf/cos"
	pdferrors "github.com/a3tai/mcp-pdf-composer/internal/pdf/errors"
)

// annotation flags hiding a widget
const (
	flagInvisible = 1
	flagHidden    = 2
)

// widgetDraw places the normal appearance of one widget on its page
type widgetDraw struct {
	field      int
	widget     types.IndirectRef
	page       types.IndirectRef
	appearance *types.IndirectRef
	matrix     [6]float64
}

type pagePlan struct {
	page  types.IndirectRef
	draws []widgetDraw
}

// flatten draws the appearance of every terminal field into its pages and
// removes the fields and their widgets. Fields that cannot be flattened stay
// in the form; problems are logged, never returned.
func (m *Merger) flatten() {
	plans := map[int]*pagePlan{}
	var order []int
	var candidates []int

	for _, i := range m.tree.Live() {
		f := m.tree.Field(i)
		if !f.Terminal {
			continue
		}
		draws, err := m.planField(i)
		if err != nil {
			m.warn(pdferrors.WrapError(pdferrors.ErrorTypeFlattenFailed, "failed to flatten field", err).
				WithContext(m.tree.FullyQualifiedName(i)))
			continue
		}
		candidates = append(candidates, i)
		for _, d := range draws {
			key := int(d.page.ObjectNumber)
			plan, ok := plans[key]
			if !ok {
				plan = &pagePlan{page: d.page}
				plans[key] = plan
				order = append(order, key)
			}
			plan.draws = append(plan.draws, d)
		}
	}

	failed := map[int]bool{}
	for _, key := range order {
		plan := plans[key]
		if err := m.drawOnPage(plan); err != nil {
			m.warn(pdferrors.WrapError(pdferrors.ErrorTypeFlattenFailed, "failed to flatten fields on page", err).
				WithObject(key))
			for _, d := range plan.draws {
				failed[d.field] = true
			}
		}
	}

	flattened := 0
	for _, i := range candidates {
		if failed[i] {
			continue
		}
		if err := m.removeWidgets(m.tree.Field(i).Widgets); err != nil {
			m.warn(pdferrors.WrapError(pdferrors.ErrorTypeFlattenFailed, "failed to remove flattened widgets", err).
				WithContext(m.tree.FullyQualifiedName(i)))
			continue
		}
		m.tree.Remove(i)
		flattened++
	}
	m.tree.pruneEmpty()
	m.logger.Debug("form flattened", "fields", flattened, "failed", len(failed))
}

// planField computes where the widgets of field i are drawn
func (m *Merger) planField(i int) ([]widgetDraw, error) {
	var draws []widgetDraw
	for _, w := range m.tree.Field(i).Widgets {
		d, err := m.planWidget(w)
		if err != nil {
			return nil, fmt.Errorf("widget %d: %w", w.ObjectNumber, err)
		}
		d.field = i
		draws = append(draws, d)
	}
	return draws, nil
}

func (m *Merger) planWidget(widget types.IndirectRef) (widgetDraw, error) {
	d := widgetDraw{widget: widget}
	dict, err := m.dst.Dict(widget)
	if err != nil {
		return d, err
	}
	if dict == nil {
		return d, pdferrors.NewPDFError(pdferrors.ErrorTypeMissingObject, "widget is missing")
	}
	page, ok := dict["P"].(types.IndirectRef)
	if !ok {
		return d, pdferrors.NewPDFError(pdferrors.ErrorTypeMalformedObject, "widget has no page")
	}
	d.page = page

	if flags, _ := m.dst.Int(dict["F"]); flags&(flagInvisible|flagHidden) != 0 {
		return d, nil
	}

	appearance, sd, err := m.normalAppearance(dict)
	if err != nil || sd == nil {
		return d, err
	}

	rect, ok := m.rectangle(dict["Rect"])
	if !ok {
		return d, pdferrors.NewPDFError(pdferrors.ErrorTypeMalformedObject, "widget has no rectangle")
	}
	bbox, ok := m.rectangle(sd.Dict["BBox"])
	if !ok {
		return d, pdferrors.NewPDFError(pdferrors.ErrorTypeMalformedObject, "appearance has no bounding box")
	}
	if matrix, ok := m.matrix(sd.Dict["Matrix"]); ok {
		bbox = transformRect(bbox, matrix)
	}

	bw, bh := bbox[2]-bbox[0], bbox[3]-bbox[1]
	if bw == 0 || bh == 0 {
		return d, nil
	}
	sx := (rect[2] - rect[0]) / bw
	sy := (rect[3] - rect[1]) / bh
	d.appearance = &appearance
	d.matrix = [6]float64{sx, 0, 0, sy, rect[0] - bbox[0]*sx, rect[1] - bbox[1]*sy}
	return d, nil
}

// normalAppearance returns the normal appearance stream of a widget,
// choosing the /AS state when the appearance has several
func (m *Merger) normalAppearance(widget types.Dict) (types.IndirectRef, *types.StreamDict, error) {
	ap, err := m.dst.Dict(widget["AP"])
	if err != nil || ap == nil {
		return types.IndirectRef{}, nil, err
	}

	obj := ap["N"]
	sd, err := m.dst.Stream(obj)
	if err != nil {
		return types.IndirectRef{}, nil, err
	}
	if sd == nil {
		states, err := m.dst.Dict(obj)
		if err != nil || states == nil {
			return types.IndirectRef{}, nil, err
		}
		state, ok := m.dst.Name(widget["AS"])
		if !ok {
			return types.IndirectRef{}, nil, nil
		}
		obj = states[state]
		if sd, err = m.dst.Stream(obj); err != nil || sd == nil {
			return types.IndirectRef{}, nil, err
		}
	}

	ref, ok := obj.(types.IndirectRef)
	if !ok {
		// streams are indirect objects, this one is stored to be referenced
		if ref, err = m.dst.Add(*sd); err != nil {
			return types.IndirectRef{}, nil, err
		}
	}
	return ref, sd, nil
}

func (m *Merger) rectangle(obj types.Object) ([4]float64, bool) {
	arr, err := m.dst.Array(obj)
	if err != nil || len(arr) != 4 {
		return [4]float64{}, false
	}
	var r [4]float64
	for i, v := range arr {
		n, ok := m.dst.Number(v)
		if !ok {
			return r, false
		}
		r[i] = n
	}
	return [4]float64{math.Min(r[0], r[2]), math.Min(r[1], r[3]), math.Max(r[0], r[2]), math.Max(r[1], r[3])}, true
}

func (m *Merger) matrix(obj types.Object) ([6]float64, bool) {
	arr, err := m.dst.Array(obj)
	if err != nil || len(arr) != 6 {
		return [6]float64{}, false
	}
	var mx [6]float64
	for i, v := range arr {
		n, ok := m.dst.Number(v)
		if !ok {
			return mx, false
		}
		mx[i] = n
	}
	return mx, true
}

// transformRect returns the bounds of r transformed by matrix
func transformRect(r [4]float64, mx [6]float64) [4]float64 {
	out := [4]float64{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	for _, p := range [][2]float64{{r[0], r[1]}, {r[0], r[3]}, {r[2], r[1]}, {r[2], r[3]}} {
		x := mx[0]*p[0] + mx[2]*p[1] + mx[4]
		y := mx[1]*p[0] + mx[3]*p[1] + mx[5]
		out[0], out[1] = math.Min(out[0], x), math.Min(out[1], y)
		out[2], out[3] = math.Max(out[2], x), math.Max(out[3], y)
	}
	return out
}

// drawOnPage appends a content stream drawing the planned appearances as
// form external objects. The existing content is wrapped in q/Q so its
// graphics state does not leak into the drawing.
func (m *Merger) drawOnPage(plan *pagePlan) error {
	pageDict, err := m.dst.Dict(plan.page)
	if err != nil {
		return err
	}
	if pageDict == nil {
		return pdferrors.NewPDFError(pdferrors.ErrorTypeMissingObject, "page is missing")
	}

	resources, err := m.dst.Dict(pageDict["Resources"])
	if err != nil {
		return err
	}
	if resources == nil {
		resources = types.Dict{}
		pageDict["Resources"] = resources
	}
	xobjects, err := m.dst.Dict(resources["XObject"])
	if err != nil {
		return err
	}
	if xobjects == nil {
		xobjects = types.Dict{}
		resources["XObject"] = xobjects
	}

	var buf bytes.Buffer
	for _, d := range plan.draws {
		if d.appearance == nil {
			continue
		}
		name := m.xobjectName(xobjects)
		xobjects[name] = *d.appearance
		fmt.Fprintf(&buf, "q %s %s %s %s %s %s cm /%s Do Q\n",
			number(d.matrix[0]), number(d.matrix[1]), number(d.matrix[2]),
			number(d.matrix[3]), number(d.matrix[4]), number(d.matrix[5]), name)
	}
	if buf.Len() == 0 {
		return nil
	}

	contents, err := m.dst.Resolve(pageDict["Contents"])
	if err != nil {
		return err
	}
	var existing types.Array
	switch v := contents.(type) {
	case nil:
	case types.Array:
		existing = v
	default:
		existing = types.Array{pageDict["Contents"]}
	}

	if len(existing) == 0 {
		drawing, err := m.dst.Add(cos.NewStream(nil, buf.Bytes()))
		if err != nil {
			return err
		}
		pageDict["Contents"] = drawing
		return nil
	}

	drawing, err := m.dst.Add(cos.NewStream(nil, append([]byte("Q\n"), buf.Bytes()...)))
	if err != nil {
		return err
	}
	save, err := m.dst.Add(cos.NewStream(nil, []byte("q\n")))
	if err != nil {
		return err
	}
	out := make(types.Array, 0, len(existing)+2)
	out = append(out, save)
	out = append(out, existing...)
	out = append(out, drawing)
	pageDict["Contents"] = out
	return nil
}

// xobjectName returns a resource name not used in xobjects
func (m *Merger) xobjectName(xobjects types.Dict) string {
	for {
		m.flattened++
		name := "Flat" + strconv.Itoa(m.flattened)
		if _, taken := xobjects[name]; !taken {
			return name
		}
	}
}

// removeWidgets takes widgets off the /Annots of their pages
func (m *Merger) removeWidgets(widgets []types.IndirectRef) error {
	remove := map[types.IndirectRef]bool{}
	pages := map[types.IndirectRef]bool{}
	var order []types.IndirectRef
	for _, w := range widgets {
		remove[w] = true
		dict, err := m.dst.Dict(w)
		if err != nil {
			return err
		}
		if page, ok := dict["P"].(types.IndirectRef); ok && !pages[page] {
			pages[page] = true
			order = append(order, page)
		}
	}

	for _, page := range order {
		pageDict, err := m.dst.Dict(page)
		if err != nil {
			return err
		}
		if pageDict == nil {
			continue
		}
		annots, err := m.dst.Array(pageDict["Annots"])
		if err != nil {
			return err
		}
		kept := types.Array{}
		for _, a := range annots {
			if ref, ok := a.(types.IndirectRef); ok && remove[ref] {
				continue
			}
			kept = append(kept, a)
		}
		if len(kept) == 0 {
			delete(pageDict, "Annots")
		} else {
			pageDict["Annots"] = kept
		}
	}
	return nil
}

func number(f float64) string {
	return strconv.FormatFloat(math.Round(f*1e6)/1e6, 'f', -1, 64)
}
