package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cast"

	"github.com/a3tai/mcp-pdf-composer/internal/config"
	"github.com/a3tai/mcp-pdf-composer/internal/descriptions"
	"github.com/a3tai/mcp-pdf-composer/internal/logging"
	"github.com/a3tai/mcp-pdf-composer/internal/pdf"
	"github.com/a3tai/mcp-pdf-composer/internal/task"
)

var policyNames = []string{"discard", "merge", "merge_renaming", "flatten"}

// Server represents the MCP server instance
type Server struct {
	config     *config.Config
	pdfService *pdf.Service
	mcpServer  *server.MCPServer
	logger     logging.Logger
	tools      []mcp.Tool
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, pdfService *pdf.Service, logger logging.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if pdfService == nil {
		return nil, fmt.Errorf("pdfService cannot be nil")
	}
	if logger == nil {
		logger = logging.Nop()
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false), // the tool set is fixed
	)

	s := &Server{
		config:     cfg,
		pdfService: pdfService,
		mcpServer:  mcpServer,
		logger:     logger,
	}
	s.registerTools()
	return s, nil
}

func (s *Server) addTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.tools = append(s.tools, tool)
	s.mcpServer.AddTool(tool, handler)
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	s.addTool(mcp.NewTool(
		"pdf_extract_pages",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_extract_pages")),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path of the source PDF, relative to the source directory or absolute"),
		),
		mcp.WithArray("pages",
			mcp.Description("1-based pages in output order"),
			mcp.Items(map[string]any{"type": "integer", "minimum": 1}),
		),
		mcp.WithString("ranges",
			mcp.Description("Page ranges such as \"1-3,7,10-\""),
		),
		mcp.WithString("output",
			mcp.Description("Output path, relative to the output directory. Defaults to <name>_extract.pdf"),
		),
		mcp.WithString("policy",
			mcp.Description("Form policy, defaults to the server configuration"),
			mcp.Enum(policyNames...),
		),
		mcp.WithBoolean("discard_outline", mcp.Description("Drop bookmarks")),
		mcp.WithBoolean("optimize", mcp.Description("Deduplicate page resources")),
	), s.handleExtractPages)

	s.addTool(mcp.NewTool(
		"pdf_merge_forms",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_merge_forms")),
		mcp.WithArray("paths",
			mcp.Required(),
			mcp.Description("Source PDFs, concatenated in order"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithString("output",
			mcp.Description("Output path, relative to the output directory. Defaults to merged.pdf"),
		),
		mcp.WithString("policy",
			mcp.Description("Form policy, defaults to the server configuration"),
			mcp.Enum(policyNames...),
		),
		mcp.WithBoolean("discard_outline", mcp.Description("Drop bookmarks")),
		mcp.WithBoolean("optimize", mcp.Description("Deduplicate page resources")),
	), s.handleMergeForms)

	s.addTool(mcp.NewTool(
		"pdf_compose",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_compose")),
		mcp.WithString("job",
			mcp.Required(),
			mcp.Description("Job document, YAML or JSON"),
		),
	), s.handleCompose)

	s.addTool(mcp.NewTool(
		"pdf_validate_file",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_validate_file")),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path of the PDF file"),
		),
	), s.handlePDFValidateFile)

	s.addTool(mcp.NewTool(
		"pdf_server_info",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_server_info")),
	), s.handlePDFServerInfo)
}

// Handler functions

func (s *Server) handleExtractPages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	args := request.GetArguments()
	pages, err := intSlice(args["pages"])
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid pages: %v", err)), nil
	}

	result, err := s.pdfService.ExtractPages(ctx, pdf.PDFExtractPagesRequest{
		Path:           path,
		Pages:          pages,
		Ranges:         request.GetString("ranges", ""),
		Output:         request.GetString("output", ""),
		Policy:         request.GetString("policy", ""),
		DiscardOutline: optionalBool(args["discard_outline"]),
		Optimize:       optionalBool(args["optimize"]),
		Progress:       s.progress(ctx, request),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.composeResult(result)
}

func (s *Server) handleMergeForms(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	paths, err := cast.ToStringSliceE(args["paths"])
	if err != nil || len(paths) == 0 {
		return mcp.NewToolResultError("paths must be a non-empty list of files"), nil
	}

	result, err := s.pdfService.MergeForms(ctx, pdf.PDFMergeFormsRequest{
		Paths:          paths,
		Output:         request.GetString("output", ""),
		Policy:         request.GetString("policy", ""),
		DiscardOutline: optionalBool(args["discard_outline"]),
		Optimize:       optionalBool(args["optimize"]),
		Progress:       s.progress(ctx, request),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.composeResult(result)
}

func (s *Server) handleCompose(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := request.RequireString("job")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.pdfService.Compose(ctx, pdf.PDFComposeRequest{Job: doc, Progress: s.progress(ctx, request)})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.composeResult(result)
}

func (s *Server) handlePDFValidateFile(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.pdfService.PDFValidateFile(pdf.PDFValidateFileRequest{Path: path})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var text string
	if result.Valid {
		text = fmt.Sprintf("PDF file %s is valid and readable\nPages: %d\nVersion: %s\nSize: %d bytes\nForm: %t\nEncrypted: %t\n",
			result.Path, result.Pages, result.Version, result.Size, result.Form, result.Encrypted)
	} else {
		text = fmt.Sprintf("PDF validation failed for %s: %s", result.Path, result.Message)
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handlePDFServerInfo(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tools := make([]pdf.ToolInfo, 0, len(s.tools))
	for _, t := range s.tools {
		summary, _, _ := strings.Cut(t.Description, "\n")
		tools = append(tools, pdf.ToolInfo{Name: t.Name, Description: summary})
	}

	result, err := s.pdfService.PDFServerInfo(pdf.PDFServerInfoRequest{}, s.config.ServerName, s.config.Version, tools)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(s.formatPDFServerInfoResult(result)), nil
}

// progress forwards page progress as MCP progress notifications when the
// client asked for them
func (s *Server) progress(ctx context.Context, request mcp.CallToolRequest) task.ProgressFunc {
	if request.Params.Meta == nil || request.Params.Meta.ProgressToken == nil {
		return nil
	}
	token := request.Params.Meta.ProgressToken
	srv := server.ServerFromContext(ctx)
	if srv == nil {
		return nil
	}
	return func(done, total int) {
		err := srv.SendNotificationToClient(ctx, "notifications/progress", map[string]any{
			"progressToken": token,
			"progress":      done,
			"total":         total,
		})
		if err != nil {
			s.logger.Debug("progress notification failed", "error", err)
		}
	}
}

// composeResult renders a composition as a summary line followed by the JSON report
func (s *Server) composeResult(result *pdf.PDFComposeResult) (*mcp.CallToolResult, error) {
	report, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(s.formatComposeResult(result) + "\n" + string(report)), nil
}

func (s *Server) formatComposeResult(result *pdf.PDFComposeResult) string {
	text := fmt.Sprintf("Wrote %d pages to %s (policy %s)\n", result.Pages, result.Output, result.Policy)
	if result.Form {
		text += fmt.Sprintf("Form fields: %d\n", result.Fields)
	}
	if result.Validation != nil && !result.Validation.Valid {
		text += fmt.Sprintf("WARNING: output failed validation: %s\n", result.Validation.Message)
	}
	if len(result.Warnings) > 0 {
		text += fmt.Sprintf("Warnings (%d):\n", len(result.Warnings))
		for _, w := range result.Warnings {
			text += "  - " + w + "\n"
		}
	}
	return text
}

func (s *Server) formatPDFServerInfoResult(result *pdf.PDFServerInfoResult) string {
	text := fmt.Sprintf("%s v%s - Server Information\n", result.ServerName, result.Version)
	text += fmt.Sprintf("Source Directory: %s\n", result.SourceDirectory)
	text += fmt.Sprintf("Output Directory: %s\n", result.OutputDirectory)
	text += fmt.Sprintf("Max File Size: %d MB\n", result.MaxFileSize/(1024*1024))
	text += fmt.Sprintf("Form Policy: %s (available: %s)\n\n", result.DefaultPolicy, strings.Join(result.Policies, ", "))

	if len(result.DirectoryContents) > 0 {
		text += fmt.Sprintf("Directory Contents (%d PDF files found):\n", len(result.DirectoryContents))
		for i, file := range result.DirectoryContents {
			if i >= 10 {
				text += fmt.Sprintf("   ... and %d more files\n", len(result.DirectoryContents)-10)
				break
			}
			text += fmt.Sprintf("   %d. %s (%d bytes)\n", i+1, file.Name, file.Size)
		}
		text += "\n"
	} else {
		text += "Directory Contents: No PDF files found in source directory\n\n"
	}

	text += "Available Tools:\n"
	for _, tool := range result.AvailableTools {
		text += fmt.Sprintf("  • %s: %s\n", tool.Name, tool.Description)
	}
	return text
}

// intSlice coerces a tool argument into page numbers. JSON numbers arrive
// as float64.
func intSlice(v any) ([]int, error) {
	if v == nil {
		return nil, nil
	}
	items, err := cast.ToSliceE(v)
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, len(items))
	for _, item := range items {
		n, err := cast.ToIntE(item)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func optionalBool(v any) *bool {
	if v == nil {
		return nil
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return nil
	}
	return &b
}

// Run starts the MCP server in the configured mode
func (s *Server) Run(ctx context.Context) error {
	if s.config.IsServerMode() {
		return s.runServerMode(ctx)
	}
	return s.runStdioMode(ctx)
}

// runStdioMode runs the server in stdio mode
func (s *Server) runStdioMode(_ context.Context) error {
	s.logger.Debug("starting PDF composer in stdio mode",
		"source", s.config.PDFDirectory, "output", s.config.Output())

	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}

// runServerMode serves MCP over server sent events until ctx is done
func (s *Server) runServerMode(ctx context.Context) error {
	sse := server.NewSSEServer(s.mcpServer)
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting PDF composer in server mode", "address", s.config.Address())
		errCh <- sse.Start(s.config.Address())
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		if err := sse.Shutdown(context.WithoutCancel(ctx)); err != nil {
			return fmt.Errorf("failed to shut down: %w", err)
		}
		return nil
	}
}
