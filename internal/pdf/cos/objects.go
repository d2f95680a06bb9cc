package cos

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	pdferrors "github.com/a3tai/mcp-pdf-composer/internal/pdf/errors"
)

// ObjNr returns the object number when obj is an indirect reference
func ObjNr(obj types.Object) (int, bool) {
	switch ref := obj.(type) {
	case types.IndirectRef:
		return int(ref.ObjectNumber), true
	case *types.IndirectRef:
		if ref == nil {
			return 0, false
		}
		return int(ref.ObjectNumber), true
	default:
		return 0, false
	}
}

// Ref builds an indirect reference to objNr, generation 0
func Ref(objNr int) types.IndirectRef {
	return *types.NewIndirectRef(objNr, 0)
}

// Resolve follows indirect references. A dangling reference resolves to nil.
func (d *Document) Resolve(obj types.Object) (types.Object, error) {
	if obj == nil {
		return nil, nil
	}
	resolved, err := d.ctx.Dereference(obj)
	if err != nil {
		return nil, pdferrors.WrapError(pdferrors.ErrorTypeMalformedObject, "failed to dereference object", err)
	}
	return resolved, nil
}

// Dict resolves obj and returns it as a dictionary, or nil when it is something else.
// The dictionary of a stream is returned for streams.
func (d *Document) Dict(obj types.Object) (types.Dict, error) {
	resolved, err := d.Resolve(obj)
	if err != nil {
		return nil, err
	}
	switch v := resolved.(type) {
	case types.Dict:
		return v, nil
	case types.StreamDict:
		return v.Dict, nil
	case *types.StreamDict:
		return v.Dict, nil
	default:
		return nil, nil
	}
}

// Array resolves obj and returns it as an array, or nil
func (d *Document) Array(obj types.Object) (types.Array, error) {
	resolved, err := d.Resolve(obj)
	if err != nil {
		return nil, err
	}
	arr, _ := resolved.(types.Array)
	return arr, nil
}

// Stream resolves obj and returns it as a stream, or nil. Mutating the
// returned dictionary mutates the stored stream; the byte slices are shared.
func (d *Document) Stream(obj types.Object) (*types.StreamDict, error) {
	resolved, err := d.Resolve(obj)
	if err != nil {
		return nil, err
	}
	switch v := resolved.(type) {
	case types.StreamDict:
		return &v, nil
	case *types.StreamDict:
		return v, nil
	default:
		return nil, nil
	}
}

// StreamContent returns the decoded bytes of a stream
func StreamContent(sd *types.StreamDict) ([]byte, error) {
	if sd.Content == nil && sd.Raw != nil {
		if err := sd.Decode(); err != nil {
			return nil, pdferrors.WrapError(pdferrors.ErrorTypeMalformedObject, "failed to decode stream", err)
		}
	}
	return sd.Content, nil
}

// NewStream creates an unfiltered stream holding content
func NewStream(dict types.Dict, content []byte) types.StreamDict {
	if dict == nil {
		dict = types.Dict{}
	}
	length := int64(len(content))
	dict["Length"] = types.Integer(len(content))
	return types.StreamDict{
		Dict:         dict,
		StreamLength: &length,
		Raw:          content,
		Content:      content,
	}
}

// Name resolves obj as a name
func (d *Document) Name(obj types.Object) (string, bool) {
	if obj == nil {
		return "", false
	}
	name, err := d.ctx.DereferenceName(obj, model.V10, nil)
	if err != nil || name == "" {
		return "", false
	}
	return string(name), true
}

// Text resolves obj as a text string, decoding UTF-16 when marked with a byte order mark
func (d *Document) Text(obj types.Object) (string, bool) {
	if obj == nil {
		return "", false
	}
	s, err := d.ctx.DereferenceStringOrHexLiteral(obj, model.V10, nil)
	if err != nil {
		return "", false
	}
	return s, true
}

// Int resolves obj as an integer
func (d *Document) Int(obj types.Object) (int, bool) {
	if obj == nil {
		return 0, false
	}
	i, err := d.ctx.DereferenceInteger(obj)
	if err != nil || i == nil {
		return 0, false
	}
	return int(*i), true
}

// Number resolves obj as an integer or real
func (d *Document) Number(obj types.Object) (float64, bool) {
	resolved, err := d.Resolve(obj)
	if err != nil {
		return 0, false
	}
	switch v := resolved.(type) {
	case types.Integer:
		return float64(v), true
	case types.Float:
		return float64(v), true
	default:
		return 0, false
	}
}

// TypeOf returns the /Type name of a dictionary, or "" when absent
func (d *Document) TypeOf(dict types.Dict) string {
	if dict == nil {
		return ""
	}
	name, _ := d.Name(dict["Type"])
	return name
}

// Add stores obj as a new indirect object
func (d *Document) Add(obj types.Object) (types.IndirectRef, error) {
	ref, err := d.ctx.IndRefForNewObject(obj)
	if err != nil {
		return types.IndirectRef{}, pdferrors.WrapError(pdferrors.ErrorTypeIO, "failed to allocate object", err)
	}
	return *ref, nil
}

// Alloc reserves an object number so references to it can be created before
// its content is known. The slot holds an empty dictionary until Set.
func (d *Document) Alloc() (types.IndirectRef, error) {
	return d.Add(types.Dict{})
}

// Set replaces the content of an existing indirect object
func (d *Document) Set(ref types.IndirectRef, obj types.Object) error {
	entry, found := d.ctx.Find(int(ref.ObjectNumber))
	if !found || entry == nil {
		return pdferrors.NewPDFError(pdferrors.ErrorTypeMissingObject, "cannot set unknown object").
			WithObject(int(ref.ObjectNumber))
	}
	entry.Object = obj
	return nil
}

// Get returns the content of an indirect object in this document
func (d *Document) Get(ref types.IndirectRef) (types.Object, error) {
	return d.Resolve(ref)
}

// EncodeText encodes s as a PDF text string: an escaped literal for
// printable ASCII, otherwise a UTF-16BE hex string with byte order mark.
func EncodeText(s string) types.Object {
	ascii := true
	for _, r := range s {
		if r < 0x20 || r > 0x7e {
			ascii = false
			break
		}
	}
	if ascii {
		if escaped, err := types.Escape(s); err == nil {
			return types.StringLiteral(*escaped)
		}
	}
	return types.NewHexLiteral([]byte(types.EncodeUTF16String(s)))
}

func (d *Document) String() string {
	return fmt.Sprintf("%s (%d pages)", d.name, d.PageCount())
}
