package strategy

import (
	"fmt"
	"strings"

	"SignalSentinel/internal/calculator"
	"SignalSentinel/internal/model"
)

// confirmation is one named vote for or against a direction.
type confirmation struct {
	Name   string
	OK     bool
	Detail string
}

func confirmRSI(dir model.Direction, rsi, buyMax, sellMin float64) confirmation {
	c := confirmation{Name: "RSI", Detail: fmt.Sprintf("%.1f", rsi)}
	if dir == model.Buy {
		c.OK = rsi <= buyMax
	} else {
		c.OK = rsi >= sellMin
	}
	return c
}

func confirmStochastic(dir model.Direction, st calculator.StochasticResult) confirmation {
	c := confirmation{Name: "Stoch", Detail: fmt.Sprintf("K %.1f / D %.1f", st.K, st.D)}
	if dir == model.Buy {
		c.OK = st.K > st.D && st.D < 50
	} else {
		c.OK = st.K < st.D && st.D > 50
	}
	return c
}

func confirmMACD(dir model.Direction, m calculator.MACDResult) confirmation {
	return confirmation{
		Name:   "MACD",
		OK:     m.Histogram*dir.Sign() > 0,
		Detail: fmt.Sprintf("hist %+.3f", m.Histogram),
	}
}

func confirmADX(dir model.Direction, a calculator.ADXResult, min float64) confirmation {
	aligned := a.PlusDI > a.MinusDI
	if dir == model.Sell {
		aligned = a.MinusDI > a.PlusDI
	}
	return confirmation{
		Name:   "ADX",
		OK:     a.ADX >= min && aligned,
		Detail: fmt.Sprintf("%.1f (+DI %.1f / -DI %.1f)", a.ADX, a.PlusDI, a.MinusDI),
	}
}

func confirmBands(dir model.Direction, price float64, b calculator.Bands) confirmation {
	c := confirmation{Name: "BB", Detail: fmt.Sprintf("mid %.2f", b.Middle)}
	if dir == model.Buy {
		c.OK = price <= b.Middle
	} else {
		c.OK = price >= b.Middle
	}
	return c
}

func countConfirmations(cs []confirmation) int {
	n := 0
	for _, c := range cs {
		if c.OK {
			n++
		}
	}
	return n
}

// describe renders the passing confirmations for the rationale.
func describe(cs []confirmation) string {
	var parts []string
	for _, c := range cs {
		if c.OK {
			parts = append(parts, c.Name+" "+c.Detail)
		}
	}
	return strings.Join(parts, ", ")
}

// bandPosition maps price to 0 at the lower band and 1 at the upper band.
func bandPosition(price float64, b calculator.Bands) float64 {
	if b.Upper == b.Lower {
		return 0.5
	}
	return (price - b.Lower) / (b.Upper - b.Lower)
}
