package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/a3tai/asset-form-generator/internal/config"
	"github.com/a3tai/asset-form-generator/internal/delivery"
	"github.com/a3tai/asset-form-generator/internal/survey"
)

const responsesCSV = "Timestamp,Nama,Divisi,Area,No. Asset 1,Jenis Asset 1,Upload Foto No. asset 1,No. Asset 2,Jenis Asset 2,Email Address\n" +
	"1/2/2024 10:00,Budi,IT,HQ,A-100,Laptop,,A-200,Monitor,budi@example.com\n" +
	"1/3/2024 11:00,Sari,HR,HQ,INV-2019-7,Printer,,,,no-at-symbol\n" +
	"1/4/2024 09:30,Budi,IT,HQ,A-300,Mouse,,,,BUDI@example.com\n"

type fixture struct {
	dir string
	cfg *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	input := filepath.Join(dir, "responses.csv")
	require.NoError(t, os.WriteFile(input, []byte(responsesCSV), 0o644))

	tmpl := filepath.Join(dir, "template_inventaris.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A5", "INVENTARIS ASET IT {YEAR}"))
	require.NoError(t, f.SaveAs(tmpl))
	require.NoError(t, f.Close())

	cfg := config.DefaultConfig()
	cfg.InputDir = dir
	cfg.InputFile = input
	cfg.TemplateFile = tmpl
	cfg.OutputDir = filepath.Join(dir, "generated_excel")
	cfg.ReportDir = filepath.Join(dir, "generated_pdf")
	require.NoError(t, os.MkdirAll(cfg.OutputDir, 0o750))
	require.NoError(t, os.MkdirAll(cfg.ReportDir, 0o750))
	return &fixture{dir: dir, cfg: cfg}
}

func TestService_Run(t *testing.T) {
	fx := newFixture(t)
	summary, err := New(fx.cfg, nil).Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 3, summary.RowsRead)
	assert.Equal(t, 2, summary.Groups)
	assert.Equal(t, 4, summary.Items)
	assert.Equal(t, 2, summary.DocumentsGenerated)
	assert.Equal(t, 0, summary.DocumentsFailed)
	assert.Empty(t, summary.Failures)
	assert.Contains(t, summary.String(), "generated 2/2 spreadsheets")

	require.Len(t, summary.Documents, 2)
	assert.Equal(t, "1_HQ_IT_Budi_3items.xlsx", summary.Documents[0].Name())
	assert.Equal(t, "2_HQ_HR_Sari_1items.xlsx", summary.Documents[1].Name())

	f, err := excelize.OpenFile(summary.Documents[0].Path)
	require.NoError(t, err)
	defer f.Close()
	for cell, want := range map[string]string{
		"G1":  "HQ",
		"G2":  "IT",
		"A5":  "INVENTARIS ASET IT 2024",
		"C9":  "A-100",
		"C10": "A-200",
		"C11": "A-300",
		"B11": "Mouse",
		"D27": "Budi",
	} {
		got, err := f.GetCellValue("Sheet1", cell)
		require.NoError(t, err)
		assert.Equal(t, want, got, cell)
	}
}

func TestService_ConcurrentWorkersKeepOrder(t *testing.T) {
	fx := newFixture(t)
	fx.cfg.Workers = 4
	summary, err := New(fx.cfg, nil).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Documents, 2)
	assert.Equal(t, "1_HQ_IT_Budi_3items.xlsx", summary.Documents[0].Name())
	assert.Equal(t, "2_HQ_HR_Sari_1items.xlsx", summary.Documents[1].Name())
}

func TestService_SingleRow(t *testing.T) {
	fx := newFixture(t)
	fx.cfg.Row = 2
	summary, err := New(fx.cfg, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.RowsProcessed)
	require.Len(t, summary.Documents, 1)
	assert.Equal(t, "1_HQ_HR_Sari_1items.xlsx", summary.Documents[0].Name())

	fx.cfg.Row = 9
	_, err = New(fx.cfg, nil).Run(context.Background())
	assert.ErrorIs(t, err, ErrRowOutOfRange)
}

func TestService_DetectsInput(t *testing.T) {
	fx := newFixture(t)
	fx.cfg.InputFile = ""
	summary, err := New(fx.cfg, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fx.dir, "responses.csv"), summary.Input, "template is never picked as input")
}

func TestService_InputFailureIsFatal(t *testing.T) {
	fx := newFixture(t)

	fx.cfg.InputFile = ""
	fx.cfg.InputDir = t.TempDir()
	_, err := New(fx.cfg, nil).Run(context.Background())
	assert.ErrorIs(t, err, survey.ErrNoInput)

	fx.cfg.InputFile = filepath.Join(fx.dir, "missing.csv")
	_, err = New(fx.cfg, nil).Run(context.Background())
	assert.Error(t, err)

	entries, err := os.ReadDir(fx.cfg.OutputDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no partial output")
}

func TestService_DryRun(t *testing.T) {
	fx := newFixture(t)
	fx.cfg.DryRun = true
	summary, err := New(fx.cfg, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(fx.cfg.OutputDir, "1_HQ_IT_Budi_3items.xlsx"),
		filepath.Join(fx.cfg.OutputDir, "2_HQ_HR_Sari_1items.xlsx"),
	}, summary.Planned)
	assert.Zero(t, summary.DocumentsGenerated)
	assert.Contains(t, summary.String(), "dry run")

	entries, err := os.ReadDir(fx.cfg.OutputDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestService_ProjectionFailureIsCounted(t *testing.T) {
	fx := newFixture(t)
	// a directory squatting on the target name makes the save fail
	require.NoError(t, os.Mkdir(filepath.Join(fx.cfg.OutputDir, "1_HQ_IT_Budi_3items.xlsx"), 0o750))

	summary, err := New(fx.cfg, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.DocumentsGenerated)
	assert.Equal(t, 1, summary.DocumentsFailed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, StageProject, summary.Failures[0].Stage)
	assert.Equal(t, "Budi|IT|HQ", summary.Failures[0].Subject)
	assert.Contains(t, summary.String(), "generated 1/2")
	require.Len(t, summary.Documents, 1)
	assert.Equal(t, "2_HQ_HR_Sari_1items.xlsx", summary.Documents[0].Name())
}

func TestService_CreatesOutputDirectories(t *testing.T) {
	fx := newFixture(t)
	fx.cfg.Mode = config.ModeMCP
	fx.cfg.ReportEnabled = true

	out := filepath.Join(fx.dir, "fresh", "xlsx")
	reports := filepath.Join(fx.dir, "fresh", "pdf")
	summary, err := New(fx.cfg, nil).Generate(context.Background(), Request{
		Input:     fx.cfg.InputFile,
		OutputDir: out,
		ReportDir: reports,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.DocumentsGenerated)
	assert.Equal(t, 2, summary.ReportsGenerated)
	assert.Empty(t, summary.Failures)

	_, err = os.Stat(filepath.Join(out, "1_HQ_IT_Budi_3items.xlsx"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(reports, "1_HQ_IT_Budi_3items.pdf"))
	assert.NoError(t, err)
}

func TestService_OutputDirectoryNotCreatable(t *testing.T) {
	fx := newFixture(t)
	blocker := filepath.Join(fx.dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := New(fx.cfg, nil).Generate(context.Background(), Request{
		Input:     fx.cfg.InputFile,
		OutputDir: filepath.Join(blocker, "out"),
	})
	assert.Error(t, err)
}

func TestService_MissingTemplate(t *testing.T) {
	fx := newFixture(t)
	fx.cfg.TemplateFile = filepath.Join(fx.dir, "nope.xlsx")
	_, err := New(fx.cfg, nil).Run(context.Background())
	assert.Error(t, err)
}

func TestService_Email(t *testing.T) {
	fx := newFixture(t)
	sender := delivery.NewDryRunSender(nil)
	dispatcher := delivery.NewDispatcher(sender, delivery.Address{Email: "it@example.com"}, "Form", nil)

	summary, err := New(fx.cfg, nil, WithDispatcher(dispatcher)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.EmailsSent)
	assert.Equal(t, 1, summary.EmailsSkipped)
	require.Len(t, sender.Sent, 1)
	assert.Equal(t, "budi@example.com", sender.Sent[0].To.Email)
	assert.Len(t, sender.Sent[0].Attachments, 1)
}

func TestService_Reports(t *testing.T) {
	fx := newFixture(t)
	fx.cfg.ReportEnabled = true
	summary, err := New(fx.cfg, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ReportsGenerated)
	require.Len(t, summary.Documents, 2)
	assert.Equal(t, filepath.Join(fx.cfg.ReportDir, "1_HQ_IT_Budi_3items.pdf"), summary.Documents[0].ReportPath)
	_, err = os.Stat(summary.Documents[0].ReportPath)
	assert.NoError(t, err)
}

func TestService_Preview(t *testing.T) {
	fx := newFixture(t)
	preview, err := New(fx.cfg, nil).Preview(context.Background(), fx.cfg.InputFile)
	require.NoError(t, err)

	assert.Equal(t, 3, preview.RowsRead)
	assert.Equal(t, []int{1, 2}, preview.Classification.SlotNumbers())
	require.Len(t, preview.Groups, 2)
	assert.Equal(t, "Budi|IT|HQ", preview.Groups[0].Key)
	assert.Equal(t, []int{1, 3}, preview.Groups[0].Rows)
	assert.Equal(t, []string{"1_HQ_IT_Budi_3items.xlsx", "2_HQ_HR_Sari_1items.xlsx"}, preview.Files)
	assert.Empty(t, preview.Unclassified)
}
