package geo

import (
	"math"
	"testing"
)

var (
	paris = Point{Lat: 48.8566, Lng: 2.3522}
	lyon  = Point{Lat: 45.7640, Lng: 4.8357}
	lille = Point{Lat: 50.6292, Lng: 3.0573}
)

func TestDistanceKnownPair(t *testing.T) {
	// Paris to Lyon is roughly 392 km great-circle.
	d := DistanceKm(paris, lyon)
	if d < 380 || d > 405 {
		t.Errorf("Paris-Lyon = %.1f km, want ~392", d)
	}
}

func TestDistanceSymmetry(t *testing.T) {
	ab := DistanceKm(paris, lyon)
	ba := DistanceKm(lyon, paris)
	if math.Abs(ab-ba) > 1e-9 {
		t.Errorf("asymmetric: %v vs %v", ab, ba)
	}
}

func TestDistanceIdentity(t *testing.T) {
	if d := DistanceKm(paris, paris); d != 0 {
		t.Errorf("self distance = %v, want 0", d)
	}
}

func TestDistanceTriangleInequality(t *testing.T) {
	direct := DistanceKm(lille, lyon)
	viaParis := DistanceKm(lille, paris) + DistanceKm(paris, lyon)
	if direct > viaParis+1e-9 {
		t.Errorf("triangle inequality violated: %v > %v", direct, viaParis)
	}
}

func TestTravelMinutes(t *testing.T) {
	if m := TravelMinutes(paris, paris, 50); m != 0 {
		t.Errorf("zero-distance travel = %d, want 0", m)
	}
	// ~392 km at 50 km/h is ~470 minutes.
	m := TravelMinutes(paris, lyon, 50)
	if m < 455 || m > 490 {
		t.Errorf("Paris-Lyon at 50 km/h = %d min, want ~470", m)
	}
	// Non-positive speed falls back to the 50 km/h default.
	if got := TravelMinutes(paris, lyon, 0); got != m {
		t.Errorf("default speed = %d, want %d", got, m)
	}
}

func TestMatrix(t *testing.T) {
	m := NewMatrix([]Point{paris, lyon, lille}, 50)
	if m.Len() != 3 {
		t.Fatalf("Len = %d, want 3", m.Len())
	}
	for i := 0; i < 3; i++ {
		if m.Minutes(i, i) != 0 {
			t.Errorf("diagonal [%d][%d] = %d, want 0", i, i, m.Minutes(i, i))
		}
		for j := 0; j < 3; j++ {
			if m.Minutes(i, j) != m.Minutes(j, i) {
				t.Errorf("matrix asymmetric at %d,%d", i, j)
			}
		}
	}
	if m.Minutes(0, 1) != TravelMinutes(paris, lyon, 50) {
		t.Errorf("memoized value differs from direct computation")
	}
	if m.Point(2) != lille {
		t.Errorf("Point(2) = %v, want %v", m.Point(2), lille)
	}
}
