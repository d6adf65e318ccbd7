// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"fmt"
	"strings"

	"github.com/tradewire-foundation/tradewire/store"
)

// FormatOpened renders the alert for a newly accepted opening signal,
// with a summary of today's activity.
func FormatOpened(sig store.Signal, stats store.DayStats) (subject, body string) {
	subject = fmt.Sprintf("Signal #%d: %s %s", sig.ID, sig.Action, sig.Symbol)

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s at %.5f\n", sig.Action, sig.Symbol, sig.Price)
	fmt.Fprintf(&b, "Signal ID: %d\n", sig.ID)
	b.WriteString("\n")
	writeDaySummary(&b, stats)
	return subject, b.String()
}

// FormatClosed renders the alert for a realized close, including the
// position's profit or loss.
func FormatClosed(sig store.Signal, stats store.DayStats) (subject, body string) {
	outcome := "profit"
	if sig.ProfitLoss < 0 {
		outcome = "loss"
	}
	subject = fmt.Sprintf("Closed #%d: %s %s (%s %+.5f)", sig.ID, sig.Action, sig.Symbol, outcome, sig.ProfitLoss)

	var b strings.Builder
	fmt.Fprintf(&b, "Closed %s %s: opened %.5f, closed %.5f\n", sig.Action, sig.Symbol, sig.Price, sig.ClosePrice)
	fmt.Fprintf(&b, "P/L: %+.5f\n", sig.ProfitLoss)
	b.WriteString("\n")
	writeDaySummary(&b, stats)
	return subject, b.String()
}

// FormatReport renders the alert for a give-up report.
func FormatReport(reportType, details string) (subject, body string) {
	subject = fmt.Sprintf("Relay report: %s", reportType)
	return subject, details
}

func writeDaySummary(b *strings.Builder, stats store.DayStats) {
	fmt.Fprintf(b, "Today: %d signals (%d buy / %d sell), %d closed",
		stats.Total, stats.Buys, stats.Sells, stats.Closed)
	if stats.Closed > 0 {
		fmt.Fprintf(b, ", %dW/%dL, P/L %+.5f", stats.Wins, stats.Losses, stats.TotalProfitLoss)
	}
	b.WriteString("\n")
}
