package geo

import "math"

const earthRadiusKm = 6371.0

func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// PolygonAreaM2 returns the area enclosed by the vertices in square meters,
// using the spherical excess approximation. Fewer than three vertices enclose
// nothing.
func PolygonAreaM2(lats, lngs []float64) float64 {
	n := len(lats)
	if n < 3 || len(lngs) != n {
		return 0
	}

	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += toRad(lngs[j]-lngs[i]) * (2 + math.Sin(toRad(lats[i])) + math.Sin(toRad(lats[j])))
	}

	r := earthRadiusKm * 1000
	return math.Abs(sum * r * r / 2)
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
