package schedule

// Interval is a half-open range of the day, [Start, End).
type Interval struct {
	Start Clock
	End   Clock
}

// Span builds the interval that starts at start and lasts the given minutes.
func Span(start Clock, minutes int) Interval {
	return Interval{Start: start, End: start.Add(minutes)}
}

// Overlaps reports whether the two half-open intervals intersect.
// Touching boundaries (a.End == b.Start) do not overlap, so back-to-back bookings are legal.
// This is the only overlap test in the module: slot generation and booking validation both use it.
func (a Interval) Overlaps(b Interval) bool {
	return a.Start < b.End && a.End > b.Start
}

// OverlapsAny reports whether a intersects at least one of the given intervals.
func (a Interval) OverlapsAny(others []Interval) bool {
	for _, o := range others {
		if a.Overlaps(o) {
			return true
		}
	}
	return false
}

// Within reports whether a fits entirely inside outer.
func (a Interval) Within(outer Interval) bool {
	return a.Start >= outer.Start && a.End <= outer.End
}

func (a Interval) Minutes() int {
	return int(a.End - a.Start)
}

func (a Interval) String() string {
	return "[" + a.Start.String() + "," + a.End.String() + ")"
}
