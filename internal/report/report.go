// Package report renders an analysis run as Markdown and HTML. The
// report is a projection of the persisted run record; it never computes
// new statistics.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"transitcausal/domain/causal"
	"transitcausal/domain/core"
)

// Markdown renders the full run report.
func Markdown(run *causal.AnalysisRun) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Causal Analysis Run %s\n\n", run.ID)
	fmt.Fprintf(&b, "- Generated: %s\n", run.CreatedAt.Time().Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "- Treatment: `%s`\n", run.Treatment)
	fmt.Fprintf(&b, "- Panel fingerprint: `%s`\n", run.PanelHash)
	fmt.Fprintf(&b, "- Bootstrap seed: %d\n\n", run.Seed)

	writeIdentification(&b, run)
	writeEstimates(&b, run)
	writeRefutations(&b, run)
	writeCounterfactuals(&b, run)
	writeIntervals(&b, run)
	writeWarnings(&b, run)

	return b.String()
}

// HTML renders the report as a complete standalone page.
func HTML(run *causal.AnalysisRun) []byte {
	md := Markdown(run)
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.Tables)
	doc := p.Parse([]byte(md))
	renderer := html.NewRenderer(html.RendererOptions{
		Title: fmt.Sprintf("Causal Analysis Run %s", run.ID),
		Flags: html.CommonFlags | html.CompletePage,
	})
	return markdown.Render(doc, renderer)
}

func writeIdentification(b *strings.Builder, run *causal.AnalysisRun) {
	b.WriteString("## Identification\n\n")
	b.WriteString("| Outcome | Identifiable | Adjustment Set | Source |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, e := range run.Estimands {
		source := "backdoor"
		if e.Overridden {
			source = "override"
		}
		set := "(none)"
		if len(e.AdjustmentSet) > 0 {
			parts := make([]string, len(e.AdjustmentSet))
			for i, k := range e.SortedAdjustmentSet() {
				parts[i] = k.String()
			}
			set = strings.Join(parts, ", ")
		}
		fmt.Fprintf(b, "| %s | %t | %s | %s |\n", e.Outcome, e.Identifiable, set, source)
	}
	b.WriteString("\n")
}

func writeEstimates(b *strings.Builder, run *causal.AnalysisRun) {
	b.WriteString("## Effect Estimates\n\n")
	if len(run.Estimates) == 0 {
		b.WriteString("No outcome could be estimated.\n\n")
		return
	}
	b.WriteString("| Outcome | Method | Effect | Std Err | 95% CI | p-value | N | Flags |\n")
	b.WriteString("|---|---|---|---|---|---|---|---|\n")
	for _, e := range run.Estimates {
		flags := ""
		if e.LowPower {
			flags = "low power"
		}
		fmt.Fprintf(b, "| %s | %s | %.4f | %.4f | [%.4f, %.4f] | %.4f | %d | %s |\n",
			e.Outcome, e.Method, e.Point, e.StdErr, e.CILower, e.CIUpper, e.PValue, e.SampleSize, flags)
	}
	b.WriteString("\n")
}

func writeRefutations(b *strings.Builder, run *causal.AnalysisRun) {
	b.WriteString("## Refutation Battery\n\n")
	if len(run.Refutations) == 0 {
		b.WriteString("No refutation tests were run.\n\n")
		return
	}
	passed, total := run.RefutationsPassed()
	fmt.Fprintf(b, "%d of %d tests passed.\n\n", passed, total)
	b.WriteString("| Outcome | Test | Original | Refuted | Deviation | Verdict |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, r := range run.Refutations {
		verdict := "FAIL"
		if r.Passed {
			verdict = "pass"
		}
		fmt.Fprintf(b, "| %s | %s | %.4f | %.4f | %.1f%% | %s |\n",
			r.Outcome, r.Test, r.OriginalEstimate, r.RefutedEstimate, r.RelativeDeviation*100, verdict)
	}
	b.WriteString("\n")
}

// writeCounterfactuals aggregates the per-entity projections to the mean
// relative impact per scenario and outcome, with the clamp count carried
// as a caveat.
func writeCounterfactuals(b *strings.Builder, run *causal.AnalysisRun) {
	b.WriteString("## Counterfactual Scenarios\n\n")
	if len(run.Counterfactuals) == 0 {
		b.WriteString("No counterfactual projections were produced.\n\n")
		return
	}

	type cell struct {
		sum, baseline, projected float64
		n, clamped               int
	}
	type key struct {
		scenario string
		outcome  core.VariableKey
	}
	cells := make(map[key]*cell)
	for _, cf := range run.Counterfactuals {
		k := key{cf.Scenario, cf.Outcome}
		c, ok := cells[k]
		if !ok {
			c = &cell{}
			cells[k] = c
		}
		c.sum += cf.RelativeImpact
		c.baseline += cf.BaselineValue
		c.projected += cf.CounterfactualValue
		c.n++
		if cf.Clamped {
			c.clamped++
		}
	}
	keys := make([]key, 0, len(cells))
	for k := range cells {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].scenario != keys[j].scenario {
			return keys[i].scenario < keys[j].scenario
		}
		return keys[i].outcome < keys[j].outcome
	})

	b.WriteString("| Scenario | Outcome | Mean Baseline | Mean Projected | Mean Impact | Entities | Clamped |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	for _, k := range keys {
		c := cells[k]
		n := float64(c.n)
		fmt.Fprintf(b, "| %s | %s | %.2f | %.2f | %+.1f%% | %d | %d |\n",
			k.scenario, k.outcome, c.baseline/n, c.projected/n, c.sum/n*100, c.n, c.clamped)
	}
	b.WriteString("\n")
}

func writeIntervals(b *strings.Builder, run *causal.AnalysisRun) {
	b.WriteString("## Uncertainty\n\n")
	if len(run.Intervals) == 0 {
		b.WriteString("Interval unavailable for this run.\n\n")
		return
	}
	b.WriteString("| Scenario | Outcome | Impact | Interval | Level | Resamples |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, iv := range run.Intervals {
		fmt.Fprintf(b, "| %s | %s | %+.1f%% | [%+.1f%%, %+.1f%%] | %.0f%% | %d |\n",
			iv.Scenario, iv.Outcome, iv.Point*100, iv.Lower*100, iv.Upper*100, iv.Level*100, iv.Resamples)
	}
	b.WriteString("\n")
}

func writeWarnings(b *strings.Builder, run *causal.AnalysisRun) {
	if len(run.Warnings) == 0 {
		return
	}
	b.WriteString("## Warnings\n\n")
	for _, w := range run.Warnings {
		fmt.Fprintf(b, "- %s\n", w)
	}
	b.WriteString("\n")
}
