// Package geo provides the great-circle math used to rank stations and
// address rules by proximity. Only the resulting ordering is load-bearing;
// the spherical-Earth approximation is accurate enough for comparison keys.
package geo

import "math"

const earthRadiusKm = 6371

// DistanceKm returns the haversine distance in kilometres between two
// coordinates. NaN inputs propagate NaN; callers validate coordinates.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := radians(lat1)
	phi2 := radians(lat2)
	dPhi := radians(lat2 - lat1)
	dLambda := radians(lon2 - lon1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
