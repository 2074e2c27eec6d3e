package notifier

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/ordinex/signalrelay/internal/domain"
)

// FormatSignal renders a qualified signal as a Telegram HTML message.
func FormatSignal(sig domain.QualifiedSignal, alertOnly bool) string {
	var b strings.Builder

	if alertOnly {
		b.WriteString("🔔 <b>Signal alert</b> (below execution threshold)\n")
	} else {
		b.WriteString("🚀 <b>Executing signal</b>\n")
	}
	b.WriteString(fmt.Sprintf("%s <b>%s %s</b>\n", sideIcon(sig.Side), sig.Side, sig.Pair.String()))
	b.WriteString(fmt.Sprintf("Score: %.2f | Confluence: %d\n", sig.Score, sig.Confluence))

	b.WriteString(fmt.Sprintf("Entry: %s", price(sig.Entry)))
	if sig.Stop.IsPositive() {
		b.WriteString(fmt.Sprintf(" | Stop: %s", price(sig.Stop)))
	}
	if sig.Target.IsPositive() {
		b.WriteString(fmt.Sprintf(" | Target: %s", price(sig.Target)))
	}
	b.WriteString("\n")

	if sig.GroupSize > 1 {
		b.WriteString(fmt.Sprintf("Selected from %d candidates\n", sig.GroupSize))
	}
	b.WriteString(sig.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC"))

	return b.String()
}

// FormatSummary renders the fan-out outcome as a Telegram HTML message,
// one line per account.
func FormatSummary(summary domain.ExecutionSummary) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("📊 <b>Execution summary</b> | %s %s\n", summary.Side, summary.Pair.String()))
	b.WriteString(fmt.Sprintf("Score: %.2f\n\n", summary.Score))

	for _, res := range summary.Results {
		b.WriteString(fmt.Sprintf("%s <b>%s</b> (%s): %s",
			statusIcon(res.Status), res.AccountID, res.Platform, res.Status))
		if res.Status == domain.StatusSuccess {
			b.WriteString(fmt.Sprintf(", qty %s @ %s", res.FilledQuantity, price(res.FilledPrice)))
		} else if res.Error != "" {
			b.WriteString(fmt.Sprintf(", %s", res.Error))
		}
		b.WriteString("\n")
	}

	b.WriteString(fmt.Sprintf("\n✅ %d | ❌ %d | ⏭ %d\n",
		summary.SuccessCount, summary.FailureCount, summary.SkippedCount))
	b.WriteString(summary.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC"))

	return b.String()
}

// price keeps small altcoin prices exact and adds thousands separators
// to large ones.
func price(d decimal.Decimal) string {
	f, _ := d.Float64()
	if f >= 1000 {
		return humanize.CommafWithDigits(f, 2)
	}
	return d.String()
}

func sideIcon(side domain.Side) string {
	if side == domain.SideShort {
		return "📉"
	}
	return "📈"
}

func statusIcon(status domain.ExecStatus) string {
	switch status {
	case domain.StatusSuccess:
		return "✅"
	case domain.StatusSkippedInactive:
		return "⏭"
	default:
		return "❌"
	}
}
