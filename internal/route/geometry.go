package route

import "math"

const earthRadiusKm = 6371.0

// Haversine calculates the distance between two points in kilometers.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	deltaPhi := (lat2 - lat1) * math.Pi / 180
	deltaLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// Bearing calculates the bearing from point 1 to point 2 in degrees (0-360).
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	deltaLambda := (lon2 - lon1) * math.Pi / 180

	x := math.Sin(deltaLambda) * math.Cos(phi2)
	y := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(deltaLambda)

	bearing := math.Atan2(x, y) * 180 / math.Pi
	return math.Mod(bearing+360, 360)
}

// InterpolateAlongSegment interpolates a position along a segment between
// two waypoints. Linear interpolation is good enough for the segment
// lengths in the catalog. Returns (lat, lon, bearing).
func InterpolateAlongSegment(prevLat, prevLon, nextLat, nextLon, progress float64) (float64, float64, float64) {
	lat := prevLat + (nextLat-prevLat)*progress
	lon := prevLon + (nextLon-prevLon)*progress
	bearing := Bearing(prevLat, prevLon, nextLat, nextLon)
	return lat, lon, bearing
}

// Clamp constrains a value between min and max.
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
