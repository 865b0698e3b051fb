package pricing

import (
	"math"

	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
)

// Rate is the per-class tariff used to quote a ride.
type Rate struct {
	Base      float64 // flat pickup fee
	PerKm     float64
	PerMinute float64
}

// rates maps a requested vehicle class to its tariff. Unknown classes
// fall back to the car rate.
var rates = map[string]Rate{
	"bike": {Base: 15, PerKm: 6, PerMinute: 0.8},
	"auto": {Base: 25, PerKm: 9, PerMinute: 1.0},
	"car":  {Base: 45, PerKm: 12, PerMinute: 1.5},
	"suv":  {Base: 60, PerKm: 16, PerMinute: 2.0},
}

func rateFor(vehicleClass string) Rate {
	if r, ok := rates[vehicleClass]; ok {
		return r
	}
	return rates["car"]
}

// Quote computes the fare breakdown for a trip. surge < 1 is clamped
// to 1 so a misconfigured multiplier never discounts below base tariff.
func Quote(pickup, drop models.Coord, vehicleClass string, surge float64) models.Fare {
	if surge < 1 {
		surge = 1
	}
	r := rateFor(vehicleClass)
	km := geo.DistanceKm(pickup, drop)
	minutes := geo.ETASeconds(pickup, drop, 0) / 60

	f := models.Fare{
		Base:     r.Base,
		Distance: round2(r.PerKm * km),
		Time:     round2(r.PerMinute * minutes),
		Surge:    surge,
	}
	f.Total = round2((f.Base + f.Distance + f.Time) * surge)
	return f
}

// Settle splits a completed ride's total into platform commission and
// driver earnings.
func Settle(total, commissionRate float64) models.Settlement {
	if commissionRate < 0 {
		commissionRate = 0
	}
	if commissionRate > 1 {
		commissionRate = 1
	}
	c := round2(total * commissionRate)
	return models.Settlement{Commission: c, Earnings: round2(total - c)}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
