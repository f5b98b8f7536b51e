package view

import (
	"embed"
	"fmt"
	"html/template"
	"io"
)

//go:embed templates/*.html
var templateFiles embed.FS

var templates = template.Must(template.ParseFS(templateFiles, "templates/*.html"))

type tableData struct {
	Rows   []RowState
	Drafts []DraftState
	Notice *Notice
}

func (v *View) tableData() tableData {
	td := tableData{Rows: v.Rows(), Drafts: v.Drafts()}
	if n, ok := v.Notice(); ok {
		td.Notice = &n
	}
	return td
}

// WriteTable renders the notice, the table and the add affordance.
func (v *View) WriteTable(w io.Writer) error {
	if err := templates.ExecuteTemplate(w, "table", v.tableData()); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}

// WritePage renders a complete HTML document around the table.
func (v *View) WritePage(w io.Writer) error {
	if err := templates.ExecuteTemplate(w, "page", v.tableData()); err != nil {
		return fmt.Errorf("failed to render page: %w", err)
	}
	return nil
}
