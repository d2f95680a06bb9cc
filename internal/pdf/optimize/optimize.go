// Package optimize gives every destination page its own resource maps and
// drops font and external object entries no content stream refers to.
package optimize

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/a3tai/mcp-pdf-composer/internal/logging"
	"github.com/a3tai/mcp-pdf-composer/internal/pdf/cos"
)

// Optimizer works on one destination document
type Optimizer struct {
	doc    *cos.Document
	logger logging.Logger
}

// Option configures an Optimizer
type Option func(*Optimizer)

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(o *Optimizer) {
		o.logger = logger
	}
}

// New creates an optimizer for doc
func New(doc *cos.Document, opts ...Option) *Optimizer {
	o := &Optimizer{doc: doc, logger: logging.Nop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Optimize deduplicates the resources of pages and then removes unused
// font and external object entries
func (o *Optimizer) Optimize(pages []types.IndirectRef) error {
	for _, page := range pages {
		if err := o.DeduplicateResources(page); err != nil {
			return fmt.Errorf("deduplicating resources of object %d: %w", page.ObjectNumber, err)
		}
	}
	return o.CleanUnusedResources(pages)
}

// DeduplicateResources replaces the resource dictionary of page, and its
// /Font and /XObject sub-dictionaries, with private copies. Pages without
// resources are left alone.
func (o *Optimizer) DeduplicateResources(page types.IndirectRef) error {
	pageDict, err := o.doc.Dict(page)
	if err != nil {
		return err
	}
	if pageDict == nil {
		return nil
	}

	res, err := o.doc.Dict(pageDict["Resources"])
	if err != nil {
		return err
	}
	if res == nil {
		return nil
	}

	dup := shallowCopy(res)
	for _, key := range []string{"Font", "XObject"} {
		sub, err := o.doc.Dict(res[key])
		if err != nil {
			return err
		}
		if sub != nil {
			dup[key] = shallowCopy(sub)
		}
	}
	pageDict["Resources"] = dup
	return nil
}

func shallowCopy(d types.Dict) types.Dict {
	out := make(types.Dict, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
