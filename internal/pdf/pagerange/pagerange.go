// Package pagerange parses page selections such as "1-3,5,9-" into page
// numbers.
package pagerange

import (
	"fmt"
	"strconv"
	"strings"
)

// PageRange represents an inclusive range of 1-based pages. An End of zero
// means up to the last page.
type PageRange struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// String returns the range in selection syntax
func (r PageRange) String() string {
	switch {
	case r.End == 0:
		return fmt.Sprintf("%d-", r.Start)
	case r.Start == r.End:
		return strconv.Itoa(r.Start)
	default:
		return fmt.Sprintf("%d-%d", r.Start, r.End)
	}
}

// Parse reads a comma separated selection. Each item is a page "4", a closed
// range "2-7" or an open range "9-".
func Parse(selection string) ([]PageRange, error) {
	var ranges []PageRange
	for _, item := range strings.Split(selection, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		r, err := parseItem(item)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}
	if len(ranges) == 0 {
		return nil, fmt.Errorf("empty page selection %q", selection)
	}
	return ranges, nil
}

func parseItem(item string) (PageRange, error) {
	start, end, isRange := strings.Cut(item, "-")
	from, err := page(start)
	if err != nil {
		return PageRange{}, fmt.Errorf("invalid page selection %q: %w", item, err)
	}
	if !isRange {
		return PageRange{Start: from, End: from}, nil
	}
	if strings.TrimSpace(end) == "" {
		return PageRange{Start: from}, nil
	}
	to, err := page(end)
	if err != nil {
		return PageRange{}, fmt.Errorf("invalid page selection %q: %w", item, err)
	}
	if to < from {
		return PageRange{}, fmt.Errorf("invalid page selection %q: end before start", item)
	}
	return PageRange{Start: from, End: to}, nil
}

func page(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("page %d is not positive", n)
	}
	return n, nil
}

// Normalize clamps ranges to the pages of a document, dropping ranges that
// fall entirely outside it
func Normalize(ranges []PageRange, total int) []PageRange {
	var valid []PageRange
	for _, r := range ranges {
		start, end := r.Start, r.End
		if start < 1 {
			start = 1
		}
		if end == 0 || end > total {
			end = total
		}
		if start > end {
			continue
		}
		valid = append(valid, PageRange{Start: start, End: end})
	}
	return valid
}

// Expand returns the page numbers selected by ranges in a document of total
// pages. Pages keep the order of the selection and appear once.
func Expand(ranges []PageRange, total int) []int {
	var pages []int
	seen := make(map[int]bool)
	for _, r := range Normalize(ranges, total) {
		for n := r.Start; n <= r.End; n++ {
			if !seen[n] {
				pages = append(pages, n)
				seen[n] = true
			}
		}
	}
	return pages
}
