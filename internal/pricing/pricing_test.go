package pricing

import (
	"testing"

	"github.com/example/ride-dispatch/internal/models"
)

func TestQuoteTotalIsComponentSum(t *testing.T) {
	a := models.Coord{Lat: 12.97, Lng: 77.59}
	b := models.Coord{Lat: 12.93, Lng: 77.62}
	f := Quote(a, b, "car", 1)
	want := f.Base + f.Distance + f.Time
	if diff := f.Total - want; diff > 0.02 || diff < -0.02 {
		t.Fatalf("total %f != components %f", f.Total, want)
	}
}

func TestQuoteSurgeMultiplies(t *testing.T) {
	a := models.Coord{Lat: 12.97, Lng: 77.59}
	b := models.Coord{Lat: 12.93, Lng: 77.62}
	base := Quote(a, b, "auto", 1)
	surged := Quote(a, b, "auto", 2)
	if surged.Total < base.Total*1.9 {
		t.Fatalf("surge not applied: base=%f surged=%f", base.Total, surged.Total)
	}
}

func TestQuoteSurgeBelowOneClamped(t *testing.T) {
	a := models.Coord{Lat: 12.97, Lng: 77.59}
	b := models.Coord{Lat: 12.93, Lng: 77.62}
	f := Quote(a, b, "bike", 0.5)
	if f.Surge != 1 {
		t.Fatalf("expected clamped surge 1, got %f", f.Surge)
	}
}

func TestQuoteUnknownClassFallsBackToCar(t *testing.T) {
	a := models.Coord{Lat: 12.97, Lng: 77.59}
	b := models.Coord{Lat: 12.93, Lng: 77.62}
	if Quote(a, b, "spaceship", 1) != Quote(a, b, "car", 1) {
		t.Fatal("unknown class should use car tariff")
	}
}

func TestSettleSplit(t *testing.T) {
	s := Settle(200, 0.2)
	if s.Commission != 40 || s.Earnings != 160 {
		t.Fatalf("unexpected split: %+v", s)
	}
}

func TestSettleClampsRate(t *testing.T) {
	if s := Settle(100, 1.5); s.Commission != 100 || s.Earnings != 0 {
		t.Fatalf("rate above 1 not clamped: %+v", s)
	}
	if s := Settle(100, -0.1); s.Commission != 0 || s.Earnings != 100 {
		t.Fatalf("negative rate not clamped: %+v", s)
	}
}
