package reporting

import (
	"fmt"
	"strings"
	"time"

	"supply-controller/internal/chain"
	"supply-controller/internal/controller"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Supply Controller Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Period: %s .. %s (%d days with data)\n\n", r.FromDay, r.ToDay, r.Summary.DayCount))

	// Controller state
	sb.WriteString("## Controller State\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")
	if r.State.HasBookmark {
		sb.WriteString(fmt.Sprintf("| Bookmark | %d |\n", r.State.Bookmark))
	} else {
		sb.WriteString("| Bookmark | none |\n")
	}
	sb.WriteString(fmt.Sprintf("| Threshold (msct) | %.6f |\n", r.State.Threshold))
	sb.WriteString(fmt.Sprintf("| Beginning | %t |\n", r.State.Beginning))
	if r.State.OpenDay != "" {
		sb.WriteString(fmt.Sprintf("| Open Day | %s |\n", r.State.OpenDay))
	}
	sb.WriteString("\n")

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Volume | %.4f |\n", r.Summary.TotalVolume))
	sb.WriteString(fmt.Sprintf("| Minted | %.4f |\n", r.Summary.Minted))
	sb.WriteString(fmt.Sprintf("| Burned | %.4f |\n", r.Summary.Burned))
	sb.WriteString(fmt.Sprintf("| Contraction | %.4f |\n", r.Summary.Contraction))
	sb.WriteString(fmt.Sprintf("| Holders | %d |\n", r.Summary.LatestHolderCount))
	sb.WriteString(fmt.Sprintf("| Total Supply | %.4f |\n", r.Summary.TotalSupply))
	sb.WriteString(fmt.Sprintf("| Circulating | %.4f |\n", r.Summary.CirculatingBalance))
	sb.WriteString(fmt.Sprintf("| Treasury | %.4f |\n", r.Summary.TreasuryBalance))
	sb.WriteString("\n")

	// Daily metrics
	sb.WriteString("## Daily Metrics\n\n")
	if len(r.Days) > 0 {
		sb.WriteString("| Day | Volume | C→U | U→U | U→C | C→T | U→T | Holders | Senders | Wallets | Minted | Burned | Contraction |\n")
		sb.WriteString("|-----|--------|-----|-----|-----|-----|-----|---------|---------|---------|--------|--------|-------------|\n")
		for _, m := range r.Days {
			sb.WriteString(fmt.Sprintf("| %s | %.4f | %.4f | %.4f | %.4f | %.4f | %.4f | %d | %d | %d | %.4f | %.4f | %.4f |\n",
				m.Day, m.Volume, m.CircToUser, m.UserToUser, m.UserToCirc, m.CircToTres, m.UserToTres,
				m.HolderCount, m.UniqueSenders, m.ActiveWallets, m.Minted, m.Burned, m.CirculationContraction))
		}
	} else {
		sb.WriteString("No daily metrics available.\n")
	}
	sb.WriteString("\n")

	// Preview
	if r.Preview != nil {
		renderPreview(&sb, r.Preview)
	}

	return sb.String()
}

func renderPreview(sb *strings.Builder, d *controller.Decision) {
	sb.WriteString("## Decision Preview\n\n")
	if d.Outcome == controller.OutcomeNoDecision {
		sb.WriteString(fmt.Sprintf("**No decision:** %s\n", d.Reason))
		return
	}

	sb.WriteString("| Term | Value |\n")
	sb.WriteString("|------|-------|\n")
	sb.WriteString(fmt.Sprintf("| v_t | %.6f |\n", d.VolumeRatio))
	sb.WriteString(fmt.Sprintf("| h_t | %.6f |\n", d.HolderGrowth))
	sb.WriteString(fmt.Sprintf("| c_t | %.6f |\n", d.Concentration))
	sb.WriteString(fmt.Sprintf("| D | %.6f |\n", d.Demand))
	sb.WriteString(fmt.Sprintf("| msct | %.6f |\n", d.Threshold))
	sb.WriteString(fmt.Sprintf("| new msct | %.6f |\n", d.NewThreshold))
	sb.WriteString(fmt.Sprintf("| g_t | %.6f |\n", d.HeatGap))
	sb.WriteString(fmt.Sprintf("| percent | %.6f |\n", d.Percent))
	sb.WriteString(fmt.Sprintf("| adjustSupply arg | %s |\n", chain.ScaleDecision(d.Percent)))
}
