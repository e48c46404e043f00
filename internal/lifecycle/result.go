package lifecycle

import (
	"time"

	"github.com/shopspring/decimal"

	"SignalSentinel/internal/model"
)

// Exit names what ended a signal.
type Exit string

const (
	ExitStopLoss   Exit = "stop_loss"
	ExitTakeProfit Exit = "take_profit"
	ExitExpired    Exit = "expired"
	ExitCancelled  Exit = "cancelled"
)

// Result computes the terminal outcome of closing sig at price.
//
// Expiry and cancellation keep their own status. Otherwise the signal is won when
// any target was hit, when it closed in profit, or when a breakeven stop took it
// out; everything else is lost.
func Result(sig *model.Signal, exit Exit, price, pipSize float64, decimals int32, at time.Time) model.CloseResult {
	delta := decimal.NewFromFloat(price).Sub(decimal.NewFromFloat(sig.Entry)).
		Mul(decimal.NewFromFloat(sig.Direction.Sign())).Round(decimals)
	pips := delta.Div(decimal.NewFromFloat(pipSize)).Round(1)

	r := model.CloseResult{
		Price: price,
		Delta: delta.InexactFloat64(),
		Pips:  pips.InexactFloat64(),
		At:    at,
	}
	switch {
	case exit == ExitExpired:
		r.Status = model.StatusExpired
	case exit == ExitCancelled:
		r.Status = model.StatusCancelled
	case sig.AnyTPHit() || delta.IsPositive():
		r.Status = model.StatusWon
	case exit == ExitStopLoss && sig.BreakevenTriggered:
		r.Status = model.StatusWon
	default:
		r.Status = model.StatusLost
	}
	return r
}
