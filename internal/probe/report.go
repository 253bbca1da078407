package probe

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// RenderTable writes a human-readable summary of res to w.
func RenderTable(w io.Writer, res Result) error {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "raw name", "column", "type", "non-empty"})
	for i, c := range res.Columns {
		n := 0
		if i < len(res.NonEmpty) {
			n = res.NonEmpty[i]
		}
		t.AppendRow(table.Row{c.Position, c.RawName, c.Name, c.Type.String(), fmt.Sprintf("%d/%d", n, res.SampledRows)})
	}
	t.AppendSeparator()
	t.SetStyle(table.StyleLight)
	t.Style().Format = table.FormatOptions{
		Footer: text.FormatDefault,
		Header: text.FormatDefault,
		Row:    text.FormatDefault,
	}
	t.Style().Options.DrawBorder = false

	_, err := fmt.Fprintf(w, "sampled_rows=%d\n%s\n", res.SampledRows, t.Render())
	return err
}
