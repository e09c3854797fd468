package timeline

// ResolveGaps removes Absent entries from a contiguous background timeline by
// stretching neighbouring segments over them. The input slice is not modified.
//
// A run of Absent segments is absorbed by the resolved segment preceding it.
// A leading run that has no predecessor borrows the first resolved segment
// after it, which is stretched backwards to the run's start. When nothing in
// the timeline is resolved the whole run is returned as one Absent segment.
func ResolveGaps(segs []BackgroundSegment) []BackgroundSegment {
	if len(segs) == 0 {
		return nil
	}

	merged := mergeRuns(segs)

	// Повторяем финальный проход до неподвижной точки.
	for {
		next, changed := absorbIntoPredecessor(merged)
		merged = next
		if !changed {
			break
		}
	}

	return borrowLeading(merged)
}

// mergeRuns collapses every run of Absent segments into one segment and folds
// it into the preceding resolved segment when the two are adjacent.
func mergeRuns(segs []BackgroundSegment) []BackgroundSegment {
	out := make([]BackgroundSegment, 0, len(segs))

	for i := 0; i < len(segs); {
		seg := segs[i]
		if !seg.Media.IsAbsent() {
			out = append(out, seg)
			i++
			continue
		}

		j := i + 1
		for j < len(segs) && segs[j].Media.IsAbsent() {
			j++
		}
		run := Interval{Start: seg.Interval.Start, End: segs[j-1].Interval.End}

		if n := len(out); n > 0 && !out[n-1].Media.IsAbsent() && out[n-1].Interval.End == run.Start {
			out[n-1].Interval.End = run.End
		} else {
			out = append(out, BackgroundSegment{Interval: run, Media: Absent()})
		}
		i = j
	}

	return out
}

func absorbIntoPredecessor(segs []BackgroundSegment) ([]BackgroundSegment, bool) {
	out := make([]BackgroundSegment, 0, len(segs))
	changed := false

	for _, seg := range segs {
		n := len(out)
		switch {
		case !seg.Media.IsAbsent():
			out = append(out, seg)
		case n > 0:
			// Предыдущий сегмент (разрешённый или заглушка) забирает пустой интервал.
			if seg.Interval.End > out[n-1].Interval.End {
				out[n-1].Interval.End = seg.Interval.End
			}
			changed = true
		default:
			out = append(out, seg)
		}
	}

	return out, changed
}

func borrowLeading(segs []BackgroundSegment) []BackgroundSegment {
	if len(segs) < 2 || !segs[0].Media.IsAbsent() {
		return segs
	}
	out := make([]BackgroundSegment, 0, len(segs)-1)
	next := segs[1]
	next.Interval.Start = segs[0].Interval.Start
	out = append(out, next)
	return append(out, segs[2:]...)
}
