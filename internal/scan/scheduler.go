package scan

// Scheduler spreads a fixed number of measurements evenly over a revolution.
//
// The threshold is accumulated as a float so a non-integer step interval
// never drifts: exactly perRevolution measurements fire per revolution.
type Scheduler struct {
	perRevolution int
	interval      float64
}

func NewScheduler(p Params) Scheduler {
	return Scheduler{perRevolution: p.MeasurementsPerRevolution, interval: p.MeasureInterval()}
}

// Due reports whether a measurement should be taken at s. When it is due the
// returned state has the measurement counted and the threshold advanced.
func (sc Scheduler) Due(s State) (State, bool) {
	if float64(s.StepsInRevolution) < s.NextMeasureThreshold {
		return s, false
	}
	if s.MeasurementsThisRevolution >= sc.perRevolution {
		return s, false
	}
	s.MeasurementsThisRevolution++
	s.NextMeasureThreshold += sc.interval
	return s, true
}
