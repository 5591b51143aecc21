// ASCII table rendering, the "+"/"-"/"|"-bordered output spec.md §6
// specifies, column widths auto-fit to the widest cell (header or
// value), NULL rendered as the literal text NULL. Grounded on the
// teacher's root main.go result-printing style, generalized from the
// teacher's single fmt.Println(result) (a pre-formatted string built
// by engine_adapter.go) to a dedicated renderer operating on
// engine.ResultSet, since this repo's engine returns structured
// results instead of pre-stringified ones.
package main

import (
	"fmt"
	"strings"

	"github.com/relcore/relcore/internal/engine"
)

// headerFor builds one column's display header: "alias.name" when an
// alias is present, per spec.md §4.H's "* returns all columns with
// alias.name headers" wording, applied uniformly to every projected
// column so joined and plain SELECTs render consistently.
func headerFor(alias, col string) string {
	if alias == "" {
		return col
	}
	return alias + "." + col
}

// RenderResultSet returns rs rendered as an ASCII table string.
func RenderResultSet(rs *engine.ResultSet) string {
	headers := make([]string, len(rs.Columns))
	for i := range rs.Columns {
		headers[i] = headerFor(rs.Aliases[i], rs.Columns[i])
	}

	cells := make([][]string, len(rs.Rows))
	for i, row := range rs.Rows {
		cells[i] = make([]string, len(row))
		for j, v := range row {
			cells[i][j] = v.String()
		}
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range cells {
		for j, c := range row {
			if len(c) > widths[j] {
				widths[j] = len(c)
			}
		}
	}

	var b strings.Builder
	writeBorder(&b, widths)
	writeRow(&b, headers, widths)
	writeBorder(&b, widths)
	for _, row := range cells {
		writeRow(&b, row, widths)
	}
	writeBorder(&b, widths)
	return b.String()
}

func writeBorder(b *strings.Builder, widths []int) {
	b.WriteByte('+')
	for _, w := range widths {
		b.WriteString(strings.Repeat("-", w+2))
		b.WriteByte('+')
	}
	b.WriteByte('\n')
}

func writeRow(b *strings.Builder, cells []string, widths []int) {
	b.WriteByte('|')
	for i, w := range widths {
		c := ""
		if i < len(cells) {
			c = cells[i]
		}
		fmt.Fprintf(b, " %-*s |", w, c)
	}
	b.WriteByte('\n')
}
