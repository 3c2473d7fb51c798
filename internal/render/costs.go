package render

import (
	"bytes"
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/janekbaraniewski/openpulse/internal/core"
)

// Costs renders a digest as a per-day, per-model table with a totals
// footer.
func Costs(title string, d core.ConsumptionDigest) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(headingStyle.Render(title) + dimStyle.Render(fmt.Sprintf("  last %d days", d.WindowDays)) + "\n")
	if d.IsEmpty() {
		buf.WriteString(dimStyle.Render("No usage found in local logs.") + "\n")
		return buf.String(), nil
	}

	table := tablewriter.NewTable(&buf,
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Settings: tw.Settings{Separators: tw.Separators{BetweenRows: tw.Off}},
		})),
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignRight}},
		}),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header([]string{"Day", "Model", "Input", "Cached", "Cache write", "Output", "Cost"})

	for _, s := range d.Slices {
		if err := table.Append(ledgerRow(s.Day, s.Model, s.Ledger, s.CostUSD)); err != nil {
			return "", fmt.Errorf("render: costs row: %w", err)
		}
	}
	table.Footer(ledgerRow("Total", "", d.Window, d.WindowCostUSD))
	if err := table.Render(); err != nil {
		return "", fmt.Errorf("render: costs table: %w", err)
	}
	return buf.String(), nil
}

func ledgerRow(day, model string, l core.TokenLedger, cost float64) []string {
	return []string{
		day,
		model,
		FormatTokens(l.Input),
		FormatTokens(l.CachedInput),
		FormatTokens(l.CacheWrite),
		FormatTokens(l.Output),
		FormatMoney(cost, "$"),
	}
}
