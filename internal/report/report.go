// Package report summarizes which projects each language implements.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"polyglot/internal/logging"
	"polyglot/internal/project"
	"polyglot/internal/source"
)

// DefaultCSVPath is used when no output path is given for a CSV report.
const DefaultCSVPath = "polyglot-report.csv"

// Report is a language by project matrix of filenames.
type Report struct {
	// Projects holds project display names, sorted.
	Projects []string
	// Languages holds every language with at least one source, sorted.
	Languages []string

	cells map[string]map[string]string
}

// Collect builds a report from located sources.
func Collect(sources map[string][]*source.Source, catalog *project.Catalog) *Report {
	r := &Report{cells: make(map[string]map[string]string)}

	display := make(map[string]string, catalog.Len())
	for _, id := range catalog.IDs() {
		name, _ := catalog.DisplayName(id)
		display[id] = name
		r.Projects = append(r.Projects, name)
	}
	sort.Strings(r.Projects)

	for id, srcs := range sources {
		name, ok := display[id]
		if !ok {
			continue
		}
		for _, s := range srcs {
			row, ok := r.cells[s.Language()]
			if !ok {
				row = make(map[string]string)
				r.cells[s.Language()] = row
				r.Languages = append(r.Languages, s.Language())
			}
			row[name] = s.Filename()
		}
	}
	sort.Strings(r.Languages)

	logging.Report("Collected %d languages across %d projects", len(r.Languages), len(r.Projects))
	return r
}

// Cell returns the filename language uses for the project with display
// name project, or "".
func (r *Report) Cell(language, project string) string {
	return r.cells[language][project]
}

// WriteTable writes a pipe-delimited table. When bold is set the header row
// is rendered bold.
func (r *Report) WriteTable(w io.Writer, bold bool) error {
	headers := append([]string{"Language"}, r.Projects...)
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, lang := range r.Languages {
		row := r.row(lang)
		for i, cell := range row {
			if cw := lipgloss.Width(cell); cw > widths[i] {
				widths[i] = cw
			}
		}
	}

	headerStyle := lipgloss.NewStyle().Bold(bold)

	var sb strings.Builder
	writeLine(&sb, headers, widths, func(s string) string { return headerStyle.Render(s) })
	dashes := make([]string, len(widths))
	for i, wd := range widths {
		dashes[i] = strings.Repeat("-", wd)
	}
	writeLine(&sb, dashes, widths, nil)
	for _, lang := range r.Languages {
		writeLine(&sb, r.row(lang), widths, nil)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// WriteCSV writes the report as CSV with a Name column followed by one
// column per project.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"Name"}, r.Projects...)); err != nil {
		return err
	}
	for _, lang := range r.Languages {
		if err := cw.Write(r.row(lang)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes the CSV report to path, or DefaultCSVPath when empty,
// and returns the path written.
func (r *Report) WriteCSVFile(path string) (string, error) {
	if path == "" {
		path = DefaultCSVPath
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create report: %w", err)
	}
	if err := r.WriteCSV(f); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	logging.Report("Report written to %s", path)
	return path, nil
}

func (r *Report) row(language string) []string {
	row := make([]string, 0, len(r.Projects)+1)
	row = append(row, language)
	for _, p := range r.Projects {
		row = append(row, r.cells[language][p])
	}
	return row
}

func writeLine(sb *strings.Builder, cells []string, widths []int, render func(string) string) {
	sb.WriteString("|")
	for i, cell := range cells {
		pad := widths[i] - lipgloss.Width(cell)
		if render != nil {
			cell = render(cell)
		}
		sb.WriteString(" ")
		sb.WriteString(cell)
		sb.WriteString(strings.Repeat(" ", pad))
		sb.WriteString(" |")
	}
	sb.WriteString("\n")
}
