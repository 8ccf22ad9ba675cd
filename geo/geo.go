package geo

import "math"

const earthRadiusKm = 6371.0

// Point is a WGS-84 coordinate in decimal degrees.
type Point struct {
	Lat float64
	Lng float64
}

// DistanceKm returns the haversine great-circle distance between a and b.
func DistanceKm(a, b Point) float64 {
	if a == b {
		return 0
	}
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// TravelMinutes estimates driving time at the given average speed,
// rounded to whole minutes. Coincident endpoints cost nothing.
func TravelMinutes(a, b Point, speedKmh float64) int {
	if speedKmh <= 0 {
		speedKmh = 50
	}
	d := DistanceKm(a, b)
	if d == 0 {
		return 0
	}
	return int(math.Round(d / speedKmh * 60))
}

// Matrix memoizes pairwise travel minutes over a fixed point set.
// The optimizer builds one per solve; lookups after that are O(1).
type Matrix struct {
	points  []Point
	minutes [][]int
}

func NewMatrix(points []Point, speedKmh float64) *Matrix {
	n := len(points)
	m := &Matrix{points: points, minutes: make([][]int, n)}
	for i := 0; i < n; i++ {
		m.minutes[i] = make([]int, n)
		for j := 0; j < i; j++ {
			t := TravelMinutes(points[i], points[j], speedKmh)
			m.minutes[i][j] = t
			m.minutes[j][i] = t
		}
	}
	return m
}

func (m *Matrix) Minutes(i, j int) int { return m.minutes[i][j] }

func (m *Matrix) Point(i int) Point { return m.points[i] }

func (m *Matrix) Len() int { return len(m.points) }
