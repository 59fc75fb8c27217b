package reporting

import (
	"fmt"
	"strings"

	"supply-controller/internal/domain"
)

// RenderCSV renders daily metrics as CSV string, one row per day.
func RenderCSV(records []*domain.DailyMetrics) string {
	var sb strings.Builder

	// Header
	sb.WriteString("day,volume,circ_to_user,user_to_user,user_to_circ,circ_to_tres,user_to_tres,")
	sb.WriteString("holder_count,unique_senders,active_wallets,minted,burned,circulation_contraction,")
	sb.WriteString("total_supply,circulating_balance,treasury_balance\n")

	// Rows
	for _, m := range records {
		sb.WriteString(fmt.Sprintf("%s,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%d,%d,%d,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f\n",
			m.Day,
			m.Volume,
			m.CircToUser,
			m.UserToUser,
			m.UserToCirc,
			m.CircToTres,
			m.UserToTres,
			m.HolderCount,
			m.UniqueSenders,
			m.ActiveWallets,
			m.Minted,
			m.Burned,
			m.CirculationContraction,
			m.TotalSupply,
			m.CirculatingBalance,
			m.TreasuryBalance,
		))
	}

	return sb.String()
}
