package mcp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/xuri/excelize/v2"

	"github.com/a3tai/asset-form-generator/internal/config"
	"github.com/a3tai/asset-form-generator/internal/pipeline"
)

const testCSV = "Timestamp,Nama,Divisi,Area,No. Asset 1,Jenis Asset 1,No. Asset 2,Jenis Asset 2,Catatan\n" +
	"1/2/2024 10:00,Budi,IT,HQ,A-100,Laptop,A-200,Monitor,ok\n" +
	"1/3/2024 11:00,Sari,HR,HQ,INV-2019-7,Printer,,,\n" +
	"1/4/2024 09:30,Budi,IT,HQ,A-100,Mouse,,,\n"

// newTestServer writes a survey export and a template into a temp directory
// and returns a server whose configuration points at them
func newTestServer(t *testing.T) (*Server, *config.Config) {
	t.Helper()
	tempDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(tempDir, "responses.csv"), []byte(testCSV), 0o644); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}

	tmpl := filepath.Join(tempDir, "template_inventaris.xlsx")
	f := excelize.NewFile()
	if err := f.SaveAs(tmpl); err != nil {
		t.Fatalf("failed to write template: %v", err)
	}
	_ = f.Close()

	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeMCP
	cfg.InputDir = tempDir
	cfg.TemplateFile = tmpl
	cfg.OutputDir = filepath.Join(tempDir, "out")
	cfg.ServerName = "test-server"
	if err := os.MkdirAll(cfg.OutputDir, 0o750); err != nil {
		t.Fatalf("failed to create output dir: %v", err)
	}

	server, err := NewServer(cfg, pipeline.New(cfg, nil), nil)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return server, cfg
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func TestNewServer(t *testing.T) {
	cfg := config.DefaultConfig()
	svc := pipeline.New(cfg, nil)

	tests := []struct {
		name        string
		config      *config.Config
		service     *pipeline.Service
		expectError bool
	}{
		{"valid", cfg, svc, false},
		{"nil config", nil, svc, true},
		{"nil service", cfg, nil, true},
		{"no input directory", &config.Config{ServerName: "test-server", Version: "1.0.0"}, svc, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, err := NewServer(tt.config, tt.service, nil)
			if tt.expectError {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if server.config != tt.config {
				t.Error("server config not set correctly")
			}
			if server.service != tt.service {
				t.Error("server service not set correctly")
			}
			if server.mcpServer == nil {
				t.Error("mcpServer should be initialized")
			}
		})
	}
}

func TestServer_ToolsRegistration(t *testing.T) {
	server, _ := newTestServer(t)

	want := []string{
		"form_classify_headers",
		"form_preview_groups",
		"form_generate",
		"form_list_inputs",
		"form_server_info",
	}
	got := server.ToolNames()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("ToolNames() = %v, want %v", got, want)
	}
	for _, tool := range server.tools {
		if tool.Description == "" {
			t.Errorf("tool %s has no description", tool.Name)
		}
	}
}

func TestServer_HandleClassifyHeaders(t *testing.T) {
	server, cfg := newTestServer(t)

	result, err := server.handleClassifyHeaders(context.Background(), callRequest(map[string]interface{}{
		"path": filepath.Join(cfg.InputDir, "responses.csv"),
	}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", extractTextFromResult(result))
	}

	text := extractTextFromResult(result)
	for _, want := range []string{"Columns: 9, data rows: 3", "Asset slots:", "1: ", "2: ", `"No. Asset 2"`, "Unrecognised columns:", "Catatan"} {
		if !strings.Contains(text, want) {
			t.Errorf("classification should contain %q, got:\n%s", want, text)
		}
	}
}

func TestServer_HandlePreviewGroups(t *testing.T) {
	server, _ := newTestServer(t)

	// empty path picks the newest export in the input directory
	result, err := server.handlePreviewGroups(context.Background(), callRequest(map[string]interface{}{}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	text := extractTextFromResult(result)
	for _, want := range []string{
		"Rows: 3, forms: 2",
		"1. 1_HQ_IT_Budi_3items.xlsx",
		"2. 2_HQ_HR_Sari_1items.xlsx",
		"Rows: [1 3], items: 3",
		"Duplicate asset ids: A-100",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("preview should contain %q, got:\n%s", want, text)
		}
	}

	entries, err := os.ReadDir(filepath.Join(filepath.Dir(server.config.TemplateFile), "out"))
	if err != nil {
		t.Fatalf("failed to read output dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("preview must not write files, found %d", len(entries))
	}
}

func TestServer_HandleGenerate(t *testing.T) {
	server, cfg := newTestServer(t)
	output := t.TempDir()

	result, err := server.handleGenerate(context.Background(), callRequest(map[string]interface{}{
		"output": output,
	}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", extractTextFromResult(result))
	}

	text := extractTextFromResult(result)
	if !strings.Contains(text, "generated 2/2 spreadsheets") {
		t.Errorf("summary should report two spreadsheets, got:\n%s", text)
	}
	if !strings.Contains(text, filepath.Join(cfg.InputDir, "responses.csv")) {
		t.Errorf("summary should name the detected input, got:\n%s", text)
	}
	for _, name := range []string{"1_HQ_IT_Budi_3items.xlsx", "2_HQ_HR_Sari_1items.xlsx"} {
		if _, err := os.Stat(filepath.Join(output, name)); err != nil {
			t.Errorf("expected %s to be written: %v", name, err)
		}
	}
}

func TestServer_HandleGenerate_FreshOutputDirectory(t *testing.T) {
	server, cfg := newTestServer(t)
	output := filepath.Join(cfg.InputDir, "new", "forms")

	result, err := server.handleGenerate(context.Background(), callRequest(map[string]interface{}{
		"path":   "responses.csv",
		"output": output,
	}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	text := extractTextFromResult(result)
	if !strings.Contains(text, "generated 2/2 spreadsheets") {
		t.Errorf("output directory should be created, got:\n%s", text)
	}
	if _, err := os.Stat(filepath.Join(output, "2_HQ_HR_Sari_1items.xlsx")); err != nil {
		t.Errorf("expected spreadsheet in fresh directory: %v", err)
	}
}

func TestServer_PathsOutsideInputDirectory(t *testing.T) {
	server, _ := newTestServer(t)

	outside := filepath.Join(t.TempDir(), "other.csv")
	if err := os.WriteFile(outside, []byte(testCSV), 0o644); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}

	tests := []struct {
		name    string
		handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		args    map[string]interface{}
	}{
		{"ClassifyHeaders absolute", server.handleClassifyHeaders, map[string]interface{}{"path": outside}},
		{"ClassifyHeaders traversal", server.handleClassifyHeaders, map[string]interface{}{"path": "../other.csv"}},
		{"PreviewGroups", server.handlePreviewGroups, map[string]interface{}{"path": outside}},
		{"Generate", server.handleGenerate, map[string]interface{}{"path": outside}},
		{"ListInputs", server.handleListInputs, map[string]interface{}{"directory": filepath.Dir(outside)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.handler(context.Background(), callRequest(tt.args))
			if err != nil {
				t.Fatalf("handler should not return error, got: %v", err)
			}
			text := extractTextFromResult(result)
			if !result.IsError || !strings.Contains(text, "outside configured directory") {
				t.Errorf("expected path rejection, got: %s", text)
			}
		})
	}
}

func TestServer_RelativePathResolvesInInputDirectory(t *testing.T) {
	server, _ := newTestServer(t)

	result, err := server.handlePreviewGroups(context.Background(), callRequest(map[string]interface{}{
		"path": "responses.csv",
	}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", extractTextFromResult(result))
	}
	if !strings.Contains(extractTextFromResult(result), "Rows: 3, forms: 2") {
		t.Errorf("unexpected preview: %s", extractTextFromResult(result))
	}
}

func TestServer_HandleGenerate_DryRun(t *testing.T) {
	server, cfg := newTestServer(t)
	cfg.DryRun = true

	result, err := server.handleGenerate(context.Background(), callRequest(map[string]interface{}{}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	text := extractTextFromResult(result)
	if !strings.Contains(text, "Planned files:") {
		t.Errorf("dry run should list planned files, got:\n%s", text)
	}

	entries, _ := os.ReadDir(cfg.OutputDir)
	if len(entries) != 0 {
		t.Errorf("dry run must not write files, found %d", len(entries))
	}
}

func TestServer_HandleListInputs(t *testing.T) {
	server, cfg := newTestServer(t)

	result, err := server.handleListInputs(context.Background(), callRequest(map[string]interface{}{}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	text := extractTextFromResult(result)
	if !strings.Contains(text, "Found 1 survey export(s)") {
		t.Errorf("template must not be listed as an input, got:\n%s", text)
	}
	if !strings.Contains(text, cfg.InputDir) {
		t.Errorf("content should mention default directory %s, got:\n%s", cfg.InputDir, text)
	}

	result, err = server.handleListInputs(context.Background(), callRequest(map[string]interface{}{
		"directory": filepath.Join(cfg.InputDir, "missing"),
	}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if !result.IsError {
		t.Error("listing a missing directory should return an error result")
	}
}

func TestServer_HandleServerInfo(t *testing.T) {
	server, _ := newTestServer(t)

	result, err := server.handleServerInfo(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	text := extractTextFromResult(result)
	for _, want := range []string{"test-server", "responses.csv", "form_generate"} {
		if !strings.Contains(text, want) {
			t.Errorf("server info should contain %q, got:\n%s", want, text)
		}
	}
}

func TestServer_InvalidArguments(t *testing.T) {
	server, cfg := newTestServer(t)

	tests := []struct {
		name    string
		handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		args    map[string]interface{}
	}{
		{"ClassifyHeaders missing path", server.handleClassifyHeaders, map[string]interface{}{}},
		{"ClassifyHeaders unsupported file", server.handleClassifyHeaders, map[string]interface{}{"path": cfg.TemplateFile + ".txt"}},
		{"PreviewGroups missing file", server.handlePreviewGroups, map[string]interface{}{"path": filepath.Join(cfg.InputDir, "nope.csv")}},
		{"Generate missing file", server.handleGenerate, map[string]interface{}{"path": filepath.Join(cfg.InputDir, "nope.csv")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.handler(context.Background(), callRequest(tt.args))
			if err != nil {
				t.Errorf("handler should not return error, got: %v", err)
			}
			if result == nil {
				t.Fatal("result should not be nil")
			}
			if !result.IsError {
				t.Errorf("expected error result, got: %s", extractTextFromResult(result))
			}
		})
	}
}

// Helper function to extract text from a CallToolResult
func extractTextFromResult(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}

	for _, content := range result.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			return textContent.Text
		}
		if textContentPtr, ok := content.(*mcp.TextContent); ok {
			return textContentPtr.Text
		}
	}

	return ""
}
