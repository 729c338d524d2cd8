package mcp

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/a3tai/asset-form-generator/internal/config"
	"github.com/a3tai/asset-form-generator/internal/descriptions"
	"github.com/a3tai/asset-form-generator/internal/logger"
	"github.com/a3tai/asset-form-generator/internal/pipeline"
	"github.com/a3tai/asset-form-generator/internal/security"
	"github.com/a3tai/asset-form-generator/internal/survey"
)

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	service   *pipeline.Service
	mcpServer *server.MCPServer
	inputs    *security.PathValidator
	log       *logger.Logger
	tools     []mcp.Tool
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, service *pipeline.Service, log *logger.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if log == nil {
		log = logger.NewNop()
	}

	inputs, err := security.NewPathValidator(cfg.InputDir)
	if err != nil {
		return nil, fmt.Errorf("invalid input directory: %w", err)
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		config:    cfg,
		service:   service,
		mcpServer: mcpServer,
		inputs:    inputs,
		log:       log.With("component", "mcp"),
	}
	s.registerTools()
	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	s.addTool(mcp.NewTool(
		"form_classify_headers",
		mcp.WithDescription(descriptions.FormClassifyHeadersDescription),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Full path to the CSV or XLSX survey export"),
		),
	), s.handleClassifyHeaders)

	s.addTool(mcp.NewTool(
		"form_preview_groups",
		mcp.WithDescription(descriptions.FormPreviewGroupsDescription),
		mcp.WithString("path",
			mcp.Description("Survey export path (uses the newest export in the input directory if empty)"),
		),
	), s.handlePreviewGroups)

	s.addTool(mcp.NewTool(
		"form_generate",
		mcp.WithDescription(descriptions.FormGenerateDescription),
		mcp.WithString("path",
			mcp.Description("Survey export path (uses the newest export in the input directory if empty)"),
		),
		mcp.WithString("output",
			mcp.Description("Output directory for spreadsheets (uses the configured directory if empty)"),
		),
	), s.handleGenerate)

	s.addTool(mcp.NewTool(
		"form_list_inputs",
		mcp.WithDescription(descriptions.FormListInputsDescription),
		mcp.WithString("directory",
			mcp.Description("Directory to list (uses the configured input directory if empty)"),
		),
	), s.handleListInputs)

	s.addTool(mcp.NewTool(
		"form_server_info",
		mcp.WithDescription(descriptions.FormServerInfoDescription),
	), s.handleServerInfo)
}

func (s *Server) addTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.tools = append(s.tools, tool)
	s.mcpServer.AddTool(tool, handler)
}

// ToolNames returns the registered tool names in registration order
func (s *Server) ToolNames() []string {
	names := make([]string, 0, len(s.tools))
	for _, t := range s.tools {
		names = append(names, t.Name)
	}
	return names
}

// stringArg returns an optional string argument, or "" when absent
func stringArg(request mcp.CallToolRequest, key string) string {
	args := request.GetArguments()
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// inputPath resolves a client supplied file path against the input
// directory and rejects anything outside it. An empty path stays empty so
// the service picks the newest export.
func (s *Server) inputPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.inputs.Directory(), path)
	}
	if err := s.inputs.ValidatePath(path); err != nil {
		return "", err
	}
	return path, nil
}

// inputDirectory is inputPath for directories; the input directory itself
// is allowed
func (s *Server) inputDirectory(dir string) (string, error) {
	if dir == "" {
		return s.inputs.Directory(), nil
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(s.inputs.Directory(), dir)
	}
	if filepath.Clean(dir) == s.inputs.Directory() {
		return s.inputs.Directory(), nil
	}
	if err := s.inputs.ValidatePath(dir); err != nil {
		return "", err
	}
	return dir, nil
}

// Handler functions
func (s *Server) handleClassifyHeaders(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if path, err = s.inputPath(path); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	preview, err := s.service.Preview(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(s.formatClassification(preview)), nil
}

func (s *Server) handlePreviewGroups(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := s.inputPath(stringArg(request, "path"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	preview, err := s.service.Preview(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(s.formatPreview(preview)), nil
}

func (s *Server) handleGenerate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := s.inputPath(stringArg(request, "path"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	req := pipeline.Request{
		Input:     input,
		OutputDir: stringArg(request, "output"),
		DryRun:    s.config.DryRun,
	}

	summary, err := s.service.Generate(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(s.formatSummary(summary)), nil
}

func (s *Server) handleListInputs(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	directory, err := s.inputDirectory(stringArg(request, "directory"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	files, err := survey.FindInputs(directory, s.config.TemplateFile)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(s.formatInputs(directory, files)), nil
}

func (s *Server) handleServerInfo(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	files, err := survey.FindInputs(s.config.InputDir, s.config.TemplateFile)
	if err != nil {
		s.log.Debug("failed to list input directory", "error", err)
	}
	return mcp.NewToolResultText(s.formatServerInfo(files)), nil
}

// Formatting helpers

func (s *Server) formatClassification(p *pipeline.Preview) string {
	c := p.Classification
	text := fmt.Sprintf("Header classification for: %s\n", p.Input)
	text += fmt.Sprintf("Columns: %d, data rows: %d\n\n", len(c.Headers), p.RowsRead)

	fields := make([]string, 0, len(c.Fields))
	for f := range c.Fields {
		fields = append(fields, string(f))
	}
	sort.Strings(fields)
	text += "Fields:\n"
	for _, f := range fields {
		text += fmt.Sprintf("  %s <- %q\n", f, c.Headers[c.Fields[survey.Field(f)]])
	}

	if c.Numbered {
		text += "\nAsset slots:\n"
	} else {
		text += "\nAsset slots (no numbered columns, single item fallback):\n"
	}
	for _, n := range c.SlotNumbers() {
		attrs := c.Slots[n]
		names := make([]string, 0, len(attrs))
		for a := range attrs {
			names = append(names, string(a))
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, a := range names {
			parts = append(parts, fmt.Sprintf("%s <- %q", a, c.Headers[attrs[survey.ItemAttribute(a)]]))
		}
		text += fmt.Sprintf("  %d: %s\n", n, strings.Join(parts, ", "))
	}

	if len(p.Unclassified) > 0 {
		text += "\nUnrecognised columns:\n"
		for _, h := range p.Unclassified {
			text += fmt.Sprintf("  - %s\n", h)
		}
	}
	return text
}

func (s *Server) formatPreview(p *pipeline.Preview) string {
	text := fmt.Sprintf("Preview for: %s\n", p.Input)
	text += fmt.Sprintf("Rows: %d, forms: %d\n\n", p.RowsRead, len(p.Groups))

	for i, g := range p.Groups {
		text += fmt.Sprintf("%d. %s\n", g.Index, p.Files[i])
		text += fmt.Sprintf("   Name: %s, Division: %s, Area: %s, PIC: %s\n",
			g.Person.Name, g.Person.Division, g.Person.Area, g.Person.PIC)
		text += fmt.Sprintf("   Rows: %v, items: %d\n", g.Rows, g.ItemCount())
		for _, it := range g.Items {
			text += fmt.Sprintf("   - #%d %s", it.Sequence, it.AssetID)
			if it.Category != "" {
				text += fmt.Sprintf(" (%s)", it.Category)
			}
			if it.HasPhoto() {
				text += " [photo]"
			}
			text += "\n"
		}
		if dups := g.DuplicateAssetIDs(); len(dups) > 0 {
			text += fmt.Sprintf("   Duplicate asset ids: %s\n", strings.Join(dups, ", "))
		}
	}
	return text
}

func (s *Server) formatSummary(sum *pipeline.RunSummary) string {
	text := fmt.Sprintf("Run %s\n", sum.RunID)
	text += fmt.Sprintf("Input: %s\n", sum.Input)
	text += sum.String() + "\n"

	if len(sum.Planned) > 0 {
		text += "\nPlanned files:\n"
		for _, p := range sum.Planned {
			text += fmt.Sprintf("  - %s\n", p)
		}
	}
	if len(sum.Documents) > 0 {
		text += "\nGenerated files:\n"
		for _, d := range sum.Documents {
			text += fmt.Sprintf("  - %s (%d items)\n", d.Path, d.ItemCount)
			if d.ReportPath != "" {
				text += fmt.Sprintf("    report: %s\n", d.ReportPath)
			}
		}
	}
	if len(sum.Failures) > 0 {
		text += "\nFailures:\n"
		for _, f := range sum.Failures {
			text += fmt.Sprintf("  - [%s] %s: %s\n", f.Stage, f.Subject, f.Message)
		}
	}
	return text
}

func (s *Server) formatInputs(directory string, files []survey.InputFile) string {
	sort.Slice(files, func(i, j int) bool {
		return files[i].ModifiedTime.After(files[j].ModifiedTime)
	})

	text := fmt.Sprintf("Found %d survey export(s) in %s\n", len(files), directory)
	for i, f := range files {
		text += fmt.Sprintf("%d. %s (%d bytes, modified %s)\n",
			i+1, f.Path, f.Size, f.ModifiedTime.Format("2006-01-02 15:04:05"))
	}
	return text
}

func (s *Server) formatServerInfo(files []survey.InputFile) string {
	text := fmt.Sprintf("%s v%s - Server Information\n", s.config.ServerName, s.config.Version)
	text += fmt.Sprintf("Input directory: %s\n", s.config.InputDir)
	text += fmt.Sprintf("Template: %s\n", s.config.TemplateFile)
	text += fmt.Sprintf("Output directory: %s\n", s.config.OutputDir)
	text += fmt.Sprintf("Reports: %t, photos: %t, email: %t, dry run: %t\n\n",
		s.config.ReportEnabled, s.config.ImagesEnabled, s.config.EmailEnabled, s.config.DryRun)

	if len(files) > 0 {
		text += fmt.Sprintf("Survey exports found: %d\n", len(files))
		for i, f := range files {
			if i >= 10 {
				text += fmt.Sprintf("   ... and %d more files\n", len(files)-10)
				break
			}
			text += fmt.Sprintf("   %d. %s (%d bytes)\n", i+1, f.Name, f.Size)
		}
	} else {
		text += "Survey exports found: none\n"
	}

	text += "\nAvailable tools:\n"
	for _, name := range s.ToolNames() {
		text += fmt.Sprintf("  - %s\n", name)
	}
	return text
}

// Run serves the tools over stdio until the client disconnects
func (s *Server) Run(_ context.Context) error {
	s.log.Info("starting MCP server in stdio mode", "input_dir", s.config.InputDir, "tools", len(s.tools))

	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}
