package pdf

import (
	"github.com/a3tai/mcp-pdf-composer/internal/job"
	"github.com/a3tai/mcp-pdf-composer/internal/pdf/verify"
	"github.com/a3tai/mcp-pdf-composer/internal/task"
)

// FileInfo represents information about a PDF file
type FileInfo struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	ModifiedTime string `json:"modified_time"`
}

// Request Types

// PDFExtractPagesRequest copies selected pages of one document into a new one
type PDFExtractPagesRequest struct {
	Path           string `json:"path"`
	Pages          []int  `json:"pages,omitempty"`
	Ranges         string `json:"ranges,omitempty"` // e.g. "1-3,7,10-"
	Output         string `json:"output,omitempty"`
	DiscardOutline *bool  `json:"discard_outline,omitempty"`
	Optimize       *bool  `json:"optimize,omitempty"`
	Policy         string `json:"policy,omitempty"`

	Progress task.ProgressFunc `json:"-"`
}

// PDFMergeFormsRequest concatenates whole documents and merges their forms
type PDFMergeFormsRequest struct {
	Paths          []string `json:"paths"`
	Output         string   `json:"output"`
	Policy         string   `json:"policy,omitempty"`
	DiscardOutline *bool    `json:"discard_outline,omitempty"`
	Optimize       *bool    `json:"optimize,omitempty"`

	Progress task.ProgressFunc `json:"-"`
}

// PDFComposeRequest runs a job document, YAML or JSON
type PDFComposeRequest struct {
	Job string `json:"job"`

	Progress task.ProgressFunc `json:"-"`
}

// PDFValidateFileRequest represents a request to validate a PDF file
type PDFValidateFileRequest struct {
	Path string `json:"path"`
}

// PDFServerInfoRequest represents a request to get server information and capabilities
type PDFServerInfoRequest struct{}

// Response Types

// PDFComposeResult describes a written document
type PDFComposeResult struct {
	*job.Report
	Validation *verify.Result `json:"validation"`
}

// PDFServerInfoResult represents server information and usage guidance
type PDFServerInfoResult struct {
	ServerName        string     `json:"server_name"`
	Version           string     `json:"version"`
	SourceDirectory   string     `json:"source_directory"`
	OutputDirectory   string     `json:"output_directory"`
	MaxFileSize       int64      `json:"max_file_size"`
	DefaultPolicy     string     `json:"default_policy"`
	Policies          []string   `json:"policies"`
	AvailableTools    []ToolInfo `json:"available_tools"`
	DirectoryContents []FileInfo `json:"directory_contents"`
	Truncated         bool       `json:"truncated,omitempty"`
}

// ToolInfo represents information about an available tool
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}
