package descriptions

import "sort"

// Tool descriptions with practical examples and use cases

const (
	PDFExtractPagesDescription = `Copy selected pages of a PDF into a new PDF, keeping what belongs to them.

**When to use:** Need a smaller document made of some pages of a larger one, in a chosen order.

**Why it's useful:** Links, bookmarks and form fields that point at the kept pages survive; everything that only served dropped pages is left out.

**Examples:**
• Split a chapter: "Extract pages 12-40 of handbook.pdf into chapter2.pdf"
• Reorder: "Extract pages 3,1,2 of slides.pdf"
• Trim a form: "Keep only the signature page of contract.pdf"

**Parameters:** pages (list, in output order) and/or ranges ("1-3,7,10-"). Without either every page is kept.

**Best practices:** Pages that do not exist are skipped and reported as warnings, the rest of the document is still written.`

	PDFMergeFormsDescription = `Concatenate whole PDFs into one and merge their interactive forms.

**When to use:** Several filled or blank forms must travel as one document.

**Why it's useful:** Field name collisions are resolved by a policy instead of silently breaking the form.

**Policies:**
• discard: drop all form fields, keep page content
• merge: fields with the same name share one value
• merge_renaming: colliding fields are renamed and stay independent
• flatten: field appearances are drawn into the page content and the fields removed

**Best practices:** Use merge_renaming for forms that will be filled again, flatten for archival copies.`

	PDFComposeDescription = `Run a composition job: pages from several PDFs written into one output.

**When to use:** A single call has to pick pages from more than one document, or needs options per source.

**Job document (YAML or JSON):**
` + "```yaml" + `
output: packet.pdf
policy: merge_renaming
optimize: true
sources:
  - path: cover.pdf
  - path: contract.pdf
    ranges: "2-5"
  - path: annex.pdf
    pages: [3, 1]
` + "```" + `

**Best practices:** The job is validated before anything is read. Nothing is written when a job fails or is cancelled.`

	PDFValidateFileDescription = `Verify PDF file integrity and readability before processing.

**When to use:** Before composing unknown files, or to check a written output.

**Why it's useful:** Reads the document with two independent readers, reporting page count, version, encryption and whether it has a form.

**Best practices:** Every composition result already carries a validation of its output.`

	PDFServerInfoDescription = `Get server information, configured directories, policies and the PDFs available.

**When to use:** At the start of a session to learn where sources are read from and outputs are written to.`
)

// ToolDescriptions maps tool names to their descriptions
var ToolDescriptions = map[string]string{
	"pdf_extract_pages": PDFExtractPagesDescription,
	"pdf_merge_forms":   PDFMergeFormsDescription,
	"pdf_compose":       PDFComposeDescription,
	"pdf_validate_file": PDFValidateFileDescription,
	"pdf_server_info":   PDFServerInfoDescription,
}

// GetToolDescription returns the description for a tool
func GetToolDescription(toolName string) string {
	if desc, exists := ToolDescriptions[toolName]; exists {
		return desc
	}
	return "Tool description not available"
}

// GetAllToolNames returns the available tool names, sorted
func GetAllToolNames() []string {
	names := make([]string, 0, len(ToolDescriptions))
	for name := range ToolDescriptions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
