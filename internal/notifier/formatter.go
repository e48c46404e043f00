package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"SignalSentinel/internal/lifecycle"
	"SignalSentinel/internal/milestone"
	"SignalSentinel/internal/model"
)

// Formatter renders signal lifecycle events as Telegram HTML messages.
type Formatter struct {
	Decimals int
}

func (f Formatter) px(v float64) string { return fmt.Sprintf("%.*f", f.Decimals, v) }

func arrow(d model.Direction) string {
	if d == model.Sell {
		return "🔴"
	}
	return "🟢"
}

func header(b *strings.Builder, icon, title string, sig *model.Signal) {
	fmt.Fprintf(b, "%s <b>%s</b> | %s %s %s\n", icon, title, sig.Symbol, sig.Direction, sig.Timeframe)
}

// Entry announces a new signal.
func (f Formatter) Entry(sig *model.Signal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s %s</b> | %s\n\n", arrow(sig.Direction), sig.Direction, sig.Symbol, sig.Timeframe)
	fmt.Fprintf(&b, "Entry: %s\n", f.px(sig.Entry))
	fmt.Fprintf(&b, "Stop loss: %s\n", f.px(sig.StopLoss))
	for i, tp := range sig.Levels() {
		fmt.Fprintf(&b, "TP%d: %s (%d%%)\n", i+1, f.px(tp.Price), tp.Allocation)
	}
	if sig.Rationale != "" {
		fmt.Fprintf(&b, "\n<i>%s</i>\n", html.EscapeString(sig.Rationale))
	}
	fmt.Fprintf(&b, "\nStrategy: %s", sig.StrategyID)
	return b.String()
}

func (f Formatter) TakeProfit(sig *model.Signal, level int, price float64) string {
	var b strings.Builder
	header(&b, "🎯", fmt.Sprintf("TP%d hit", level), sig)
	tp := sig.TakeProfits[level-1]
	fmt.Fprintf(&b, "\nTarget %s reached at %s, close %d%% of the position.\n", f.px(tp.Price), f.px(price), tp.Allocation)
	fmt.Fprintf(&b, "Stop now at %s.", f.px(sig.EffectiveSL))
	return b.String()
}

func (f Formatter) Breakeven(sig *model.Signal, price float64) string {
	var b strings.Builder
	header(&b, "🛡", "Move stop to breakeven", sig)
	fmt.Fprintf(&b, "\nPrice %s is %.0f%% of the way to TP1. Stop moved to entry %s.",
		f.px(price), sig.Progress(price)*100, f.px(sig.Entry))
	return b.String()
}

func (f Formatter) Zone(sig *model.Signal, kind model.ZoneKind, zone int, price float64) string {
	var b strings.Builder
	if kind == model.ZoneCaution {
		header(&b, "⚠️", "Caution", sig)
		fmt.Fprintf(&b, "\nPrice %s has covered %.0f%% of the distance to the stop at %s.",
			f.px(price), milestone.Threshold(zone, milestone.CautionZones)*100, f.px(sig.EffectiveSL))
		return b.String()
	}
	header(&b, "📈", "Progress", sig)
	fmt.Fprintf(&b, "\nPrice %s is %.0f%% of the way to TP1 %s.",
		f.px(price), milestone.Threshold(zone, milestone.ProgressZones)*100, f.px(sig.TakeProfits[0].Price))
	return b.String()
}

func (f Formatter) Thesis(sig *model.Signal, status model.ThesisStatus, notes string) string {
	var b strings.Builder
	icon := map[model.ThesisStatus]string{
		model.ThesisIntact:    "✅",
		model.ThesisWeakening: "🟠",
		model.ThesisBroken:    "❌",
	}[status]
	header(&b, icon, "Thesis "+string(status), sig)
	fmt.Fprintf(&b, "\n%s", html.EscapeString(notes))
	if status == model.ThesisBroken {
		b.WriteString("\nConsider closing early.")
	}
	return b.String()
}

func (f Formatter) Timeout(sig *model.Signal, price float64, held time.Duration) string {
	var b strings.Builder
	header(&b, "⏰", "Max hold reached", sig)
	fmt.Fprintf(&b, "\nOpen for %s without a result. Price %s, entry %s, stop %s.",
		held.Truncate(time.Minute), f.px(price), f.px(sig.Entry), f.px(sig.EffectiveSL))
	return b.String()
}

func (f Formatter) Closed(sig *model.Signal, res model.CloseResult, exit lifecycle.Exit) string {
	var b strings.Builder
	icon := "🏁"
	switch res.Status {
	case model.StatusWon:
		icon = "✅"
	case model.StatusLost:
		icon = "❌"
	}
	header(&b, icon, "Signal "+string(res.Status), sig)
	fmt.Fprintf(&b, "\nClosed at %s (%s): %+.1f pips.", f.px(res.Price), strings.ReplaceAll(string(exit), "_", " "), res.Pips)
	return b.String()
}

// ManualIntervention is the admin alert for a signal that went out but could not be recorded.
func (f Formatter) ManualIntervention(tenantID string, err error) string {
	return fmt.Sprintf("🚨 <b>Manual intervention required</b> | tenant %s\n\n%s\n\nSignal generation for this tenant is halted until restart.",
		html.EscapeString(tenantID), html.EscapeString(err.Error()))
}

// Status summarizes a tenant's selection and live signal.
func (f Formatter) Status(sel model.BotSelection, sig *model.Signal) string {
	var b strings.Builder
	b.WriteString("📊 <b>Status</b>\n\n")
	fmt.Fprintf(&b, "Active strategy: %s\n", sel.Active)
	if sel.Queued != "" {
		fmt.Fprintf(&b, "Queued: %s (after the open signal closes)\n", sel.Queued)
	}
	if sig == nil {
		b.WriteString("No open signal.")
		return b.String()
	}
	fmt.Fprintf(&b, "\n%s %s %s @ %s [%s]\n", arrow(sig.Direction), sig.Direction, sig.Symbol, f.px(sig.Entry), sig.Status)
	fmt.Fprintf(&b, "Stop: %s", f.px(sig.EffectiveSL))
	for i, tp := range sig.Levels() {
		mark := ""
		if tp.Hit {
			mark = " ✔"
		}
		fmt.Fprintf(&b, " | TP%d %s%s", i+1, f.px(tp.Price), mark)
	}
	fmt.Fprintf(&b, "\nThesis: %s", sig.ThesisStatus)
	return b.String()
}

// History lists recent signals, newest first, with the result of closed ones.
func (f Formatter) History(sigs []*model.Signal) string {
	var b strings.Builder
	b.WriteString("🗂 <b>Recent signals</b>\n")
	if len(sigs) == 0 {
		b.WriteString("\nNo signals yet.")
		return b.String()
	}
	for _, sig := range sigs {
		fmt.Fprintf(&b, "\n%s %s %s @ %s [%s]", sig.CreatedAt.UTC().Format("01-02 15:04"),
			sig.Direction, sig.Symbol, f.px(sig.Entry), sig.Status)
		if sig.Status.Terminal() && sig.Status != model.StatusBroadcastFailed {
			fmt.Fprintf(&b, " %+.1f pips", sig.ResultPips)
		}
	}
	return b.String()
}

// Strategies lists the selectable strategy ids.
func (f Formatter) Strategies(ids []string, active string) string {
	var b strings.Builder
	b.WriteString("🧭 <b>Strategies</b>\n\n")
	for _, id := range ids {
		if id == active {
			fmt.Fprintf(&b, "• %s (active)\n", id)
		} else {
			fmt.Fprintf(&b, "• %s\n", id)
		}
	}
	b.WriteString("\nSwitch with /switch &lt;id&gt;")
	return b.String()
}
