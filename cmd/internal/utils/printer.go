package utils

import (
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
)

// TablePrinter can be used to print data as a table
type TablePrinter struct {
	out io.Writer
}

// NewTablePrinter returns a new table printer writing to stdout
func NewTablePrinter() *TablePrinter {
	return NewTablePrinterTo(os.Stdout)
}

// NewTablePrinterTo returns a new table printer writing to out
func NewTablePrinterTo(out io.Writer) *TablePrinter {
	return &TablePrinter{
		out: out,
	}
}

// Print prints the table
func (t *TablePrinter) Print(headers []string, data [][]string) error {
	table := tablewriter.NewWriter(t.out)

	header := make([]any, 0, len(headers))
	for _, h := range headers {
		header = append(header, h)
	}
	table.Header(header...)

	if err := table.Bulk(data); err != nil {
		return err
	}

	return table.Render()
}
