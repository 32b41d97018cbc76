// Package audit verifies a finished run log against the guarantees of the
// molecule assembly protocol.
package audit

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/dyluth/h2o/pkg/runlog"
)

// Rule names the guarantee a violation breaks.
const (
	RuleSequence      = "sequence"
	RuleLifecycle     = "lifecycle"
	RulePopulation    = "population"
	RuleGate          = "gate"
	RuleSerialization = "serialization"
	RuleRendezvous    = "rendezvous"
	RuleBarrier       = "barrier"
)

// Violation is one broken guarantee. Seq is 0 for violations only detectable
// at the end of the log.
type Violation struct {
	Seq     int    `json:"seq"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Group is one molecule as reconstructed from the log.
type Group struct {
	ID       int      `json:"id"`
	Releaser string   `json:"releaser"`
	Hydrogen []string `json:"hydrogen"`
	Oxygen   []string `json:"oxygen"`
	FirstSeq int      `json:"first_seq"`
	LastSeq  int      `json:"last_seq"`
	bonded   int
}

func (g *Group) size() int {
	return len(g.Hydrogen) + len(g.Oxygen)
}

func (g *Group) has(actor string) bool {
	for _, m := range g.Hydrogen {
		if m == actor {
			return true
		}
	}
	for _, m := range g.Oxygen {
		if m == actor {
			return true
		}
	}
	return false
}

// Report is the result of Check.
type Report struct {
	Lines      int         `json:"lines"`
	Molecules  int         `json:"molecules"`
	Hydrogen   int         `json:"hydrogen"`
	Oxygen     int         `json:"oxygen"`
	Finished   int         `json:"finished"`
	Groups     []*Group    `json:"groups"`
	Violations []Violation `json:"violations"`
}

// OK reports whether the log satisfied every rule.
func (r *Report) OK() bool {
	return len(r.Violations) == 0
}

func (r *Report) violate(seq int, rule, format string, a ...any) {
	r.Violations = append(r.Violations, Violation{Seq: seq, Rule: rule, Message: fmt.Sprintf(format, a...)})
}

// Parse reads a run log. Blank lines are skipped; any other malformed line is
// an error naming its line number.
func Parse(r io.Reader) ([]runlog.Entry, error) {
	var entries []runlog.Entry
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		e, err := runlog.ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	return entries, nil
}

type actorKey struct {
	kind  runlog.Kind
	index int
}

// Check verifies entries for a run of the given number of molecules. When
// molecules is 0 it is inferred from the number of oxygen actors seen.
func Check(entries []runlog.Entry, molecules int) *Report {
	report := &Report{Lines: len(entries), Groups: []*Group{}, Violations: []Violation{}}

	if molecules <= 0 {
		molecules = countActors(entries, runlog.Oxygen)
	}
	report.Molecules = molecules

	checkSequence(report, entries)
	checkLifecycle(report, entries)
	checkPopulation(report, entries, molecules)
	checkGroups(report, entries, molecules)

	return report
}

func countActors(entries []runlog.Entry, kind runlog.Kind) int {
	seen := make(map[int]bool)
	for _, e := range entries {
		if e.Kind == kind {
			seen[e.Index] = true
		}
	}
	return len(seen)
}

func checkSequence(report *Report, entries []runlog.Entry) {
	for i, e := range entries {
		if e.Seq != i+1 {
			report.violate(e.Seq, RuleSequence, "expected sequence number %d, got %d", i+1, e.Seq)
			return
		}
	}
}

func checkLifecycle(report *Report, entries []runlog.Entry) {
	last := make(map[actorKey]runlog.Phase)
	var order []actorKey

	for _, e := range entries {
		k := actorKey{e.Kind, e.Index}
		prev, seen := last[k]
		if !seen {
			order = append(order, k)
		}

		want := 0
		if seen {
			want = prev.Rank() + 1
		}
		if e.Phase.Rank() != want {
			if seen {
				report.violate(e.Seq, RuleLifecycle, "%s logged %q after %q", e.Actor(), e.Phase, prev)
			} else {
				report.violate(e.Seq, RuleLifecycle, "%s logged %q before %q", e.Actor(), e.Phase, runlog.PhaseStarted)
			}
		}
		last[k] = e.Phase
	}

	for _, k := range order {
		if last[k] != runlog.PhaseFinished {
			report.violate(0, RuleLifecycle, "%c %d never finished (last phase %q)", k.kind.Char(), k.index, last[k])
		}
	}
}

func checkPopulation(report *Report, entries []runlog.Entry, molecules int) {
	seen := make(map[actorKey]bool)
	for _, e := range entries {
		k := actorKey{e.Kind, e.Index}
		if !seen[k] {
			seen[k] = true
			if e.Kind == runlog.Hydrogen {
				report.Hydrogen++
			} else {
				report.Oxygen++
			}
			if limit := populationLimit(e.Kind, molecules); e.Index > limit {
				report.violate(e.Seq, RulePopulation, "unexpected actor %s (at most %d expected)", e.Actor(), limit)
			}
		}
		if e.Phase == runlog.PhaseFinished {
			report.Finished++
		}
	}

	for _, kind := range []runlog.Kind{runlog.Hydrogen, runlog.Oxygen} {
		for i := 1; i <= populationLimit(kind, molecules); i++ {
			if !seen[actorKey{kind, i}] {
				report.violate(0, RulePopulation, "%c %d never logged", kind.Char(), i)
			}
		}
	}
}

func populationLimit(kind runlog.Kind, molecules int) int {
	if kind == runlog.Hydrogen {
		return 2 * molecules
	}
	return molecules
}

func checkGroups(report *Report, entries []runlog.Entry, molecules int) {
	var current *Group
	totalBonded := 0

	for _, e := range entries {
		actor := e.Actor()

		switch e.Phase {
		case runlog.PhaseReady:
			if current != nil && current.bonded < 3 {
				report.violate(e.Seq, RuleSerialization, "molecule %d released before molecule %d finished bonding", len(report.Groups)+1, current.ID)
			}
			current = &Group{
				ID:       len(report.Groups) + 1,
				Releaser: actor,
				Hydrogen: []string{},
				Oxygen:   []string{},
				FirstSeq: e.Seq,
				LastSeq:  e.Seq,
			}
			report.Groups = append(report.Groups, current)

		case runlog.PhaseBeginBonding:
			switch {
			case current == nil:
				report.violate(e.Seq, RuleGate, "%s began bonding before any molecule was released", actor)
				continue
			case current.size() == 3:
				report.violate(e.Seq, RuleSerialization, "%s began bonding in molecule %d which already has 3 members", actor, current.ID)
			case current.bonded > 0:
				report.violate(e.Seq, RuleRendezvous, "%s began bonding after a member of molecule %d bonded", actor, current.ID)
			}
			if e.Kind == runlog.Hydrogen {
				current.Hydrogen = append(current.Hydrogen, actor)
			} else {
				current.Oxygen = append(current.Oxygen, actor)
			}
			current.LastSeq = e.Seq

		case runlog.PhaseBonded:
			totalBonded++
			if current == nil || !current.has(actor) {
				report.violate(e.Seq, RuleRendezvous, "%s bonded outside the current molecule", actor)
				continue
			}
			if current.size() < 3 {
				report.violate(e.Seq, RuleRendezvous, "%s bonded before all 3 members of molecule %d began bonding", actor, current.ID)
			}
			current.bonded++
			current.LastSeq = e.Seq

		case runlog.PhaseFinished:
			if totalBonded < 3*molecules {
				report.violate(e.Seq, RuleBarrier, "%s finished before all actors bonded (%d/%d)", actor, totalBonded, 3*molecules)
			}
		}
	}

	for _, g := range report.Groups {
		if len(g.Hydrogen) != 2 || len(g.Oxygen) != 1 {
			report.violate(0, RuleGate, "molecule %d has %d hydrogen and %d oxygen members", g.ID, len(g.Hydrogen), len(g.Oxygen))
		}
		if !g.has(g.Releaser) {
			report.violate(0, RuleGate, "molecule %d releaser %s did not bond in it", g.ID, g.Releaser)
		}
		if g.bonded != g.size() {
			report.violate(0, RuleRendezvous, "molecule %d: %d of %d members bonded", g.ID, g.bonded, g.size())
		}
	}
	if len(report.Groups) != molecules {
		report.violate(0, RuleGate, "formed %d molecules, expected %d", len(report.Groups), molecules)
	}
}
