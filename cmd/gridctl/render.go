package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/pitabwire/dealerdesk/model"
)

// writeTableText prints a view as a bordered table followed by a footer with
// page, sort and filter state. Selected rows are marked with "*".
func writeTableText(w io.Writer, view model.TableView) error {
	re := lipgloss.NewRenderer(w)
	headerStyle := re.NewStyle().Bold(true).Padding(0, 1)
	cellStyle := re.NewStyle().Padding(0, 1)
	selectedStyle := cellStyle.Reverse(true)

	headers := make([]string, 0, len(view.Columns)+1)
	headers = append(headers, "ID")
	for _, c := range view.Columns {
		headers = append(headers, c.Header+sortMarker(c.Sorted))
	}

	rows := make([][]string, 0, len(view.Rows))
	for _, row := range view.Rows {
		fields := make([]string, 0, len(row.Cells)+1)
		id := string(row.ID)
		if row.Selected {
			id += "*"
		}
		fields = append(fields, id)
		for _, cell := range row.Cells {
			fields = append(fields, cellText(cell))
		}
		rows = append(rows, fields)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(re.NewStyle().Faint(true)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row >= 0 && row < len(view.Rows) && view.Rows[row].Selected:
				return selectedStyle
			default:
				return cellStyle
			}
		})
	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return err
	}

	fmt.Fprintf(w, "\npage %d/%d, %d rows", view.Page, view.TotalPages, view.TotalCount)
	if view.Sort.Key != "" {
		fmt.Fprintf(w, ", sort %s %s", view.Sort.Key, view.Sort.Direction)
	}
	if view.Search != "" {
		fmt.Fprintf(w, ", search %q", view.Search)
	}
	for _, key := range slices.Sorted(maps.Keys(view.Filters)) {
		fmt.Fprintf(w, ", %s=%s", key, view.Filters[key])
	}
	_, err := fmt.Fprintln(w)
	return err
}

// cellText flattens a cell value for a single text column. Composite values
// are printed as compact JSON.
func cellText(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case map[string]any, []any:
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Sprint(c)
		}
		return string(data)
	default:
		return fmt.Sprint(c)
	}
}

func sortMarker(dir string) string {
	switch dir {
	case model.SortAsc:
		return " ^"
	case model.SortDesc:
		return " v"
	default:
		return ""
	}
}
