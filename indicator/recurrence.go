package indicator

// Incremental indicator recurrences. Each updates in O(1) from the previous
// value and the newest bar; none ever recomputes from full history.

// ema is an exponential moving average seeded by a simple average of the
// first `period` inputs.
type ema struct {
	period int
	k      float64
	sum    float64
	count  int
	value  float64
	ready  bool
}

func newEMA(period int) *ema {
	return &ema{period: period, k: 2.0 / (float64(period) + 1)}
}

func (e *ema) update(v float64) {
	if !e.ready {
		e.sum += v
		e.count++
		if e.count == e.period {
			e.value = e.sum / float64(e.period)
			e.ready = true
		}
		return
	}
	e.value += e.k * (v - e.value)
}

// wilderRSI is the standard smoothed RSI. It keeps the previous output so
// callers can observe oscillator direction.
type wilderRSI struct {
	period    int
	prevClose float64
	seeded    bool
	sumGain   float64
	sumLoss   float64
	count     int
	avgGain   float64
	avgLoss   float64
	value     float64
	prev      float64
	ready     bool
}

func newWilderRSI(period int) *wilderRSI {
	return &wilderRSI{period: period}
}

func (r *wilderRSI) update(close float64) {
	if !r.seeded {
		r.prevClose = close
		r.seeded = true
		return
	}
	delta := close - r.prevClose
	r.prevClose = close
	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	if !r.ready {
		r.sumGain += gain
		r.sumLoss += loss
		r.count++
		if r.count == r.period {
			r.avgGain = r.sumGain / float64(r.period)
			r.avgLoss = r.sumLoss / float64(r.period)
			r.prev = r.compute()
			r.value = r.prev
			r.ready = true
		}
		return
	}

	n := float64(r.period)
	r.avgGain = (r.avgGain*(n-1) + gain) / n
	r.avgLoss = (r.avgLoss*(n-1) + loss) / n
	r.prev = r.value
	r.value = r.compute()
}

func (r *wilderRSI) compute() float64 {
	if r.avgLoss == 0 {
		return 100
	}
	rs := r.avgGain / r.avgLoss
	return 100 - 100/(1+rs)
}

// wilderATR is the average true range with Wilder smoothing, seeded by a
// simple average of the first `period` true ranges.
type wilderATR struct {
	period    int
	prevClose float64
	seeded    bool
	sum       float64
	count     int
	value     float64
	ready     bool
}

func newWilderATR(period int) *wilderATR {
	return &wilderATR{period: period}
}

func (a *wilderATR) update(high, low, close float64) {
	tr := high - low
	if a.seeded {
		if hc := abs(high - a.prevClose); hc > tr {
			tr = hc
		}
		if lc := abs(low - a.prevClose); lc > tr {
			tr = lc
		}
	}
	a.prevClose = close
	a.seeded = true

	if !a.ready {
		a.sum += tr
		a.count++
		if a.count == a.period {
			a.value = a.sum / float64(a.period)
			a.ready = true
		}
		return
	}
	n := float64(a.period)
	a.value = (a.value*(n-1) + tr) / n
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
