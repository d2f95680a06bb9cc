package acroform

import (
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// noParent marks a root field
const noParent = -1

// Field is a destination form field. Relations to other fields are arena
// indices into the owning Tree.
type Field struct {
	Ref      types.IndirectRef
	Dict     types.Dict
	Partial  string
	Terminal bool
	Parent   int
	Children []int
	Widgets  []types.IndirectRef

	removed bool
}

// Tree is the arena holding the fields of the destination form
type Tree struct {
	fields []*Field
	byName map[string]int
}

func newTree() *Tree {
	return &Tree{byName: map[string]int{}}
}

// Field returns the field at index i
func (t *Tree) Field(i int) *Field {
	return t.fields[i]
}

// Add stores f under parent and returns its index. f.Parent is overwritten.
func (t *Tree) Add(f *Field, parent int) int {
	f.Parent = parent
	i := len(t.fields)
	t.fields = append(t.fields, f)
	if parent != noParent {
		p := t.fields[parent]
		p.Children = append(p.Children, i)
	}
	if name := t.FullyQualifiedName(i); name != "" {
		if _, taken := t.byName[name]; !taken {
			t.byName[name] = i
		}
	}
	return i
}

// Lookup returns the index of the live field named fqn
func (t *Tree) Lookup(fqn string) (int, bool) {
	if fqn == "" {
		return 0, false
	}
	i, ok := t.byName[fqn]
	return i, ok
}

// FullyQualifiedName joins the partial names from the root down to field i
func (t *Tree) FullyQualifiedName(i int) string {
	var parts []string
	for cur := i; cur != noParent; cur = t.fields[cur].Parent {
		if p := t.fields[cur].Partial; p != "" {
			parts = append(parts, p)
		}
	}
	for l, r := 0, len(parts)-1; l < r; l, r = l+1, r-1 {
		parts[l], parts[r] = parts[r], parts[l]
	}
	return strings.Join(parts, ".")
}

// Remove detaches field i, and its descendants, from the tree
func (t *Tree) Remove(i int) {
	f := t.fields[i]
	if f.removed {
		return
	}
	for _, child := range f.Children {
		t.Remove(child)
	}
	if name := t.FullyQualifiedName(i); name != "" && t.byName[name] == i {
		delete(t.byName, name)
	}
	f.removed = true
	if f.Parent != noParent {
		p := t.fields[f.Parent]
		kept := p.Children[:0]
		for _, c := range p.Children {
			if c != i {
				kept = append(kept, c)
			}
		}
		p.Children = kept
	}
}

// Live returns the indices of fields still in the tree, parents before children
func (t *Tree) Live() []int {
	var out []int
	var walk func(i int)
	walk = func(i int) {
		out = append(out, i)
		for _, c := range t.fields[i].Children {
			walk(c)
		}
	}
	for _, r := range t.Roots() {
		walk(r)
	}
	return out
}

// Roots returns the live fields without parent
func (t *Tree) Roots() []int {
	var out []int
	for i, f := range t.fields {
		if !f.removed && f.Parent == noParent {
			out = append(out, i)
		}
	}
	return out
}

// Len returns the number of live fields
func (t *Tree) Len() int {
	return len(t.Live())
}

// pruneEmpty removes non-terminal fields left without children, bottom up,
// and returns their fully qualified names
func (t *Tree) pruneEmpty() []string {
	var pruned []string
	var visit func(i int)
	visit = func(i int) {
		f := t.fields[i]
		for _, c := range append([]int(nil), f.Children...) {
			visit(c)
		}
		if !f.Terminal && len(f.Children) == 0 {
			pruned = append(pruned, t.FullyQualifiedName(i))
			t.Remove(i)
		}
	}
	for _, r := range t.Roots() {
		visit(r)
	}
	return pruned
}
