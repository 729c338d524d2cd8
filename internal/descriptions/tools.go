package descriptions

// Tool descriptions shown to MCP clients

const (
	FormClassifyHeadersDescription = `Show how the columns of a survey export are interpreted.

**When to use:** Before generating forms from a new or changed questionnaire export, to check that every column lands where it should.

**Why it's useful:** Column names are written by people and drift between form revisions. This tool shows which column feeds each person field (name, division, area, PIC, ...) and which columns make up each numbered asset slot.

**Examples:**
• "Check how responses.csv maps to the inventory form"
• "Which columns of export-2024.xlsx were not recognised?"

**Best practices:** Fix unrecognised columns in the export before running form_generate.`

	FormPreviewGroupsDescription = `Group survey rows per person without writing any file.

**When to use:** To see how many forms will be produced, which rows merge into the same person, and the file names that will be written.

**Why it's useful:** Rows sharing name, division and area become one form. Previewing shows merged rows and duplicate asset ids before anything is generated.

**Examples:**
• "Preview the forms that responses.csv would produce"
• "How many items does each person have in the latest export?"

**Best practices:** Leave path empty to use the newest export in the input directory.`

	FormGenerateDescription = `Generate filled inventory spreadsheets (and PDF reports when enabled) from a survey export.

**When to use:** After the classification and preview look right.

**Why it's useful:** Produces one spreadsheet per person from the inventory template, embeds item photos when enabled, and optionally emails each person their forms.

**Examples:**
• "Generate the forms for responses.csv"
• "Generate forms from the latest export into /tmp/forms"

**Best practices:** Check the summary for failures; a failed group never stops the others.`

	FormListInputsDescription = `List survey exports (CSV or XLSX) available in a directory, newest first.

**When to use:** To find the export to pass to the other tools.`

	FormServerInfoDescription = `Get server information, configuration, available tools and the input files found in the default directory.`
)
