package logger

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
)

// PrintTable writes the values as a two column table sorted by key
func PrintTable(w io.Writer, values map[string]float64) {
	keys := make([]string, 0, len(values))
	width := 0
	for k := range values {
		keys = append(keys, k)
		if len(k) > width {
			width = len(k)
		}
	}
	sort.Strings(keys)

	rule := strings.Repeat("-", width) + "  " + strings.Repeat("-", 12)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, rule)
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%.6g\n", k, values[k])
	}
	fmt.Fprintln(tw, rule)
	tw.Flush()
}
