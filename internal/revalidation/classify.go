package revalidation

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"SignalSentinel/internal/model"
)

// biasPivots are the neutral levels of the directional snapshot keys. A reading
// still supports a BUY while it stays at or above the lower of its entry value
// and the pivot; SELL is mirrored.
var biasPivots = map[string]float64{
	model.SnapRSI:        50,
	model.SnapMACDHist:   0,
	model.SnapStochK:     50,
	model.SnapEMASpread:  0,
	model.SnapPriceVsEMA: 0,
	model.SnapBBPos:      0.5,
}

// strengthFloor is the share of the entry ADX that must survive.
const strengthFloor = 0.75

const (
	intactShare    = 0.75
	weakeningShare = 0.40
)

// Classify compares the current indicator basket with the one recorded at entry.
// Keys without a directional reading (ATR, range bounds) and keys missing from
// either side are not scored. With nothing to score the thesis stays intact.
func Classify(dir model.Direction, entry, current *model.Snapshot) (model.ThesisStatus, string) {
	var scored, supporting int
	var against []string
	for _, key := range entry.Keys() {
		was, _ := entry.Get(key)
		now, ok := current.Get(key)
		if !ok {
			continue
		}
		holds, scorable := supports(dir, key, was, now)
		if !scorable {
			continue
		}
		scored++
		if holds {
			supporting++
		} else {
			against = append(against, fmt.Sprintf("%s %.2f (entry %.2f)", key, now, was))
		}
	}
	if scored == 0 {
		return model.ThesisIntact, "no comparable indicators"
	}

	share := float64(supporting) / float64(scored)
	status := model.ThesisBroken
	switch {
	case share >= intactShare:
		status = model.ThesisIntact
	case share >= weakeningShare:
		status = model.ThesisWeakening
	}
	notes := fmt.Sprintf("%d/%d indicators still support %s", supporting, scored, dir)
	if len(against) > 0 {
		sort.Strings(against)
		notes += "; against: " + strings.Join(against, ", ")
	}
	return status, notes
}

func supports(dir model.Direction, key string, was, now float64) (holds, scorable bool) {
	if key == model.SnapADX {
		return now >= was*strengthFloor, true
	}
	pivot, ok := biasPivots[key]
	if !ok {
		return false, false
	}
	if dir == model.Sell {
		return now <= math.Max(was, pivot), true
	}
	return now >= math.Min(was, pivot), true
}
