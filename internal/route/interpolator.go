package route

// Position is the result of mapping a cumulative distance traveled onto
// the route polyline.
type Position struct {
	Latitude  float64
	Longitude float64
	Heading   float64

	SegmentIndex       int
	SegmentProgress    float64 // in [0, 1]
	DistanceCoveredKm  float64
	ProgressPercentage float64

	SegmentLengthKm       float64
	DistanceIntoSegmentKm float64
	AtEnd                 bool
}

// PositionAt maps a cumulative distance along the polyline to a
// geographic position via linear interpolation between consecutive
// waypoints, using the cumulative-distance table. Negative distances
// clamp to the route start, distances at or beyond the route length
// clamp to the final waypoint; wrapping or reversing past the end is the
// engine's decision, not the interpolator's.
func (r *Route) PositionAt(distanceKm float64) Position {
	total := r.LengthKm()
	last := len(r.Waypoints) - 1

	if distanceKm <= 0 || total <= 0 {
		wp := r.Waypoints[0]
		heading := 0.0
		if last > 0 {
			next := r.Waypoints[1]
			heading = Bearing(wp.Lat(), wp.Lon(), next.Lat(), next.Lon())
		}
		return Position{
			Latitude:        wp.Lat(),
			Longitude:       wp.Lon(),
			Heading:         heading,
			SegmentLengthKm: r.segmentLengthKm(0),
			AtEnd:           total <= 0,
		}
	}

	if distanceKm >= total {
		prev := r.Waypoints[last-1]
		wp := r.Waypoints[last]
		seg := last - 1
		return Position{
			Latitude:              wp.Lat(),
			Longitude:             wp.Lon(),
			Heading:               Bearing(prev.Lat(), prev.Lon(), wp.Lat(), wp.Lon()),
			SegmentIndex:          seg,
			SegmentProgress:       1,
			DistanceCoveredKm:     total,
			ProgressPercentage:    100,
			SegmentLengthKm:       r.segmentLengthKm(seg),
			DistanceIntoSegmentKm: r.segmentLengthKm(seg),
			AtEnd:                 true,
		}
	}

	// Walk the cumulative table to the segment containing distanceKm.
	// A degenerate zero-length segment never satisfies the strict
	// inequality, so it is skipped rather than divided by.
	seg := 0
	for i := 1; i <= last; i++ {
		if distanceKm < r.cumKm[i] {
			seg = i - 1
			break
		}
	}

	segLen := r.segmentLengthKm(seg)
	into := distanceKm - r.cumKm[seg]
	progress := 0.0
	if segLen > 0 {
		progress = Clamp(into/segLen, 0, 1)
	} else {
		progress = 1
	}

	prev := r.Waypoints[seg]
	next := r.Waypoints[seg+1]
	lat, lon, heading := InterpolateAlongSegment(prev.Lat(), prev.Lon(), next.Lat(), next.Lon(), progress)

	return Position{
		Latitude:              lat,
		Longitude:             lon,
		Heading:               heading,
		SegmentIndex:          seg,
		SegmentProgress:       progress,
		DistanceCoveredKm:     distanceKm,
		ProgressPercentage:    100 * distanceKm / total,
		SegmentLengthKm:       segLen,
		DistanceIntoSegmentKm: into,
	}
}

// DistanceAt is the inverse of PositionAt for a segment/progress pair.
func (r *Route) DistanceAt(segmentIndex int, segmentProgress float64) float64 {
	if segmentIndex < 0 {
		return 0
	}
	if segmentIndex >= len(r.Waypoints)-1 {
		return r.LengthKm()
	}
	return r.cumKm[segmentIndex] + Clamp(segmentProgress, 0, 1)*r.segmentLengthKm(segmentIndex)
}

func (r *Route) segmentLengthKm(i int) float64 {
	if i < 0 || i+1 >= len(r.cumKm) {
		return 0
	}
	return r.cumKm[i+1] - r.cumKm[i]
}
