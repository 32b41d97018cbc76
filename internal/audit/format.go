package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// FormatText writes a human-readable report: one row per molecule, actor
// totals, then either an OK line or the list of violations.
func FormatText(w io.Writer, r *Report) {
	fmt.Fprintf(w, "Audited %d lines, expecting %d molecules\n\n", r.Lines, r.Molecules)

	if len(r.Groups) == 0 {
		fmt.Fprintf(w, "No molecules were released\n")
	} else {
		fmt.Fprintf(w, "%-8s %-8s %-12s %-6s %s\n", "MOLECULE", "RELEASER", "HYDROGEN", "OXYGEN", "LINES")
		fmt.Fprintf(w, "%-8s %-8s %-12s %-6s %s\n", "--------", "--------", "------------", "------", "-----")
		for _, g := range r.Groups {
			fmt.Fprintf(w, "%-8d %-8s %-12s %-6s %d-%d\n",
				g.ID,
				g.Releaser,
				formatMembers(g.Hydrogen),
				formatMembers(g.Oxygen),
				g.FirstSeq,
				g.LastSeq,
			)
		}
	}

	fmt.Fprintf(w, "\nActors: %d hydrogen, %d oxygen, %d finished\n", r.Hydrogen, r.Oxygen, r.Finished)

	if r.OK() {
		fmt.Fprintf(w, "\nOK: log is consistent\n")
		return
	}

	noun := "violation"
	if len(r.Violations) != 1 {
		noun = "violations"
	}
	fmt.Fprintf(w, "\n%d %s:\n", len(r.Violations), noun)
	for _, v := range r.Violations {
		where := "end"
		if v.Seq > 0 {
			where = fmt.Sprintf("seq %d", v.Seq)
		}
		fmt.Fprintf(w, "  %s [%s] %s\n", where, v.Rule, v.Message)
	}
}

// FormatJSON writes the report as indented JSON.
func FormatJSON(w io.Writer, r *Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report to JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	fmt.Fprintln(w)
	return nil
}

func formatMembers(members []string) string {
	if len(members) == 0 {
		return "-"
	}
	return strings.Join(members, ", ")
}
