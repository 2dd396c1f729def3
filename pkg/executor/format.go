package executor

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
)

const maxRenderRows = 50

// FormatValue formats a single cell for display. Floats are rounded to two
// decimal places to avoid long decimals confusing downstream consumers.
func FormatValue(v any) string {
	switch val := v.(type) {
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%.0f", val)
		}
		return fmt.Sprintf("%.2f", val)
	case float32:
		if val == float32(int32(val)) {
			return fmt.Sprintf("%.0f", val)
		}
		return fmt.Sprintf("%.2f", val)
	case nil:
		return ""
	default:
		s := fmt.Sprintf("%v", v)
		if len(s) > 100 {
			s = s[:97] + "..."
		}
		return s
	}
}

// Render writes the result as an ASCII table, capped at 50 rows.
func Render(w io.Writer, result Result) {
	if result.TotalRows == 0 {
		fmt.Fprintln(w, "Query returned no results.")
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(result.Columns)
	table.SetAutoFormatHeaders(false)

	display := min(maxRenderRows, len(result.Rows))
	for i := 0; i < display; i++ {
		row := make([]string, len(result.Columns))
		for j, col := range result.Columns {
			row[j] = FormatValue(result.Rows[i][col])
		}
		table.Append(row)
	}
	table.Render()

	if result.TotalRows > display {
		fmt.Fprintf(w, "... and %d more rows\n", result.TotalRows-display)
	}
}

// FormatForPrompt renders a result as plain text suitable for inclusion in
// an LLM prompt, capped at 50 rows.
func FormatForPrompt(result Result) string {
	if result.TotalRows == 0 {
		return "Query returned no results."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Columns: %s\n", strings.Join(result.Columns, ", ")))
	sb.WriteString(fmt.Sprintf("Rows (%d total):\n", result.TotalRows))

	display := min(maxRenderRows, len(result.Rows))
	for i := 0; i < display; i++ {
		values := make([]string, len(result.Columns))
		for j, col := range result.Columns {
			values[j] = FormatValue(result.Rows[i][col])
		}
		sb.WriteString(strings.Join(values, " | ") + "\n")
	}

	if result.TotalRows > display {
		sb.WriteString(fmt.Sprintf("... and %d more rows\n", result.TotalRows-display))
	}

	return sb.String()
}
