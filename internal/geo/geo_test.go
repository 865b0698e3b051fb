package geo

import (
	"math"
	"testing"

	"github.com/example/ride-dispatch/internal/models"
)

func TestDistanceZero(t *testing.T) {
	p := models.Coord{Lat: 12.97, Lng: 77.59}
	if d := DistanceKm(p, p); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestDistanceKnownPair(t *testing.T) {
	// Bangalore MG Road -> Whitefield, roughly 13.5 km straight line.
	a := models.Coord{Lat: 12.9758, Lng: 77.6045}
	b := models.Coord{Lat: 12.9698, Lng: 77.7500}
	d := DistanceKm(a, b)
	if d < 13 || d > 17 {
		t.Fatalf("distance out of expected band: %f km", d)
	}
}

func TestDistanceSymmetric(t *testing.T) {
	a := models.Coord{Lat: 1, Lng: 2}
	b := models.Coord{Lat: 3, Lng: 4}
	if math.Abs(DistanceKm(a, b)-DistanceKm(b, a)) > 1e-9 {
		t.Fatal("distance not symmetric")
	}
}

func TestETADefaultSpeed(t *testing.T) {
	a := models.Coord{Lat: 0, Lng: 0}
	b := models.Coord{Lat: 0, Lng: 0.27} // ~30 km at the equator
	sec := ETASeconds(a, b, 0)
	// 30 km at the 30 km/h default is about an hour
	if sec < 3500 || sec > 3700 {
		t.Fatalf("eta out of expected band: %f sec", sec)
	}
}
