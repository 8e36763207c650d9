package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
)

// formatter writes command results as text tables or JSON.
type formatter struct {
	format string
	out    io.Writer
}

func newFormatter(opts *RootOptions, out io.Writer) *formatter {
	return &formatter{format: opts.Format, out: out}
}

// emit writes data as indented JSON, or calls text to render it for humans.
func (f *formatter) emit(data any, text func(w io.Writer) error) error {
	if f.format == "json" {
		enc := json.NewEncoder(f.out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	return text(f.out)
}

// table renders rows separated by tabs and aligns the columns.
func table(w io.Writer, header []any, rows [][]any) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	writeRow(tw, header)
	for _, row := range rows {
		writeRow(tw, row)
	}
	return tw.Flush()
}

func writeRow(w io.Writer, cells []any) {
	for i, cell := range cells {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, cell)
	}
	fmt.Fprintln(w)
}
