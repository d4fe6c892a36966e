package routetable

import (
	"math"

	"github.com/adhocmesh/adhocmeshd/internal/l2"
)

// MAC is the next-hop identity action values are keyed on.
type MAC = l2.MAC

// actionStat tracks the running mean and sample count for one next-hop
// action, so a new reward can be folded in without replaying history.
type actionStat struct {
	mean float64
	n    int
}

// estimator holds the sample-average value estimate for every next-hop
// MAC seen against one destination. It has no locking of its own; callers
// hold the owning entry's lock.
type estimator struct {
	stats map[MAC]*actionStat
}

func newEstimator() *estimator {
	return &estimator{stats: make(map[MAC]*actionStat)}
}

// update folds reward into the running mean for mac using the
// sample-average rule: mean <- (mean*n + r) / (n+1), rounded to two
// decimal places so small floating-point drift doesn't make two otherwise
// equal actions compare unequal.
func (e *estimator) update(mac MAC, reward float64) float64 {
	s, ok := e.stats[mac]
	if !ok {
		s = &actionStat{}
		e.stats[mac] = s
	}
	mean := (s.mean*float64(s.n) + reward) / float64(s.n+1)
	mean = round2(mean)
	s.mean = mean
	s.n++
	return mean
}

// value returns the current estimate for mac, or 0 if mac has never
// received a reward.
func (e *estimator) value(mac MAC) float64 {
	s, ok := e.stats[mac]
	if !ok {
		return 0
	}
	return s.mean
}

// forget drops mac's running estimate, used when a next-hop stops being a
// neighbor.
func (e *estimator) forget(mac MAC) {
	delete(e.stats, mac)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
