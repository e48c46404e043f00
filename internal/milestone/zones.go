package milestone

// Zone is a fraction of the distance travelled toward a reference price.
type Zone struct {
	Level     int
	Threshold float64
}

var (
	// ProgressZones measure the move from entry toward TP1.
	ProgressZones = []Zone{{1, 0.30}, {2, 0.50}, {3, 0.70}}
	// CautionZones measure the move from entry toward the effective stop.
	CautionZones = []Zone{{1, 0.50}, {2, 0.80}}
)

// ZoneFor returns the highest zone whose threshold frac has reached, or 0.
func ZoneFor(frac float64, zones []Zone) int {
	level := 0
	for _, z := range zones {
		if frac >= z.Threshold && z.Level > level {
			level = z.Level
		}
	}
	return level
}

// Threshold returns the fraction for a zone level, or 0 when unknown.
func Threshold(level int, zones []Zone) float64 {
	for _, z := range zones {
		if z.Level == level {
			return z.Threshold
		}
	}
	return 0
}
