package selector

import (
	"context"
	"sort"

	"github.com/example/ride-dispatch/internal/directory"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
)

// compatible maps a requested vehicle class to the driver vehicle
// codes that can serve it.
var compatible = map[string][]string{
	"bike": {"bike", "scooter"},
	"auto": {"auto"},
	"car":  {"car", "car_4"},
	"suv":  {"suv", "car_6"},
}

// Options tune one matching pass. Zero values fall back to defaults.
type Options struct {
	RadiusKm        float64 // default 15
	MaxResults      int     // default 10
	ExpandOnNoMatch bool
	SpeedKmh        float64 // for ETA annotation
}

func (o Options) withDefaults() Options {
	if o.RadiusKm <= 0 {
		o.RadiusKm = 15
	}
	if o.MaxResults <= 0 {
		o.MaxResults = 10
	}
	if o.SpeedKmh <= 0 {
		o.SpeedKmh = 30
	}
	return o
}

// Selection is the result of one matching pass. An empty Pool means no
// supply at all; a non-empty Pool with no Candidates means no match —
// callers treat the two differently.
type Selection struct {
	Candidates []models.Candidate
	// Pool is the full online set fetched for this pass; the
	// coordinator falls back to it when Candidates is empty.
	Pool []models.Driver
	// Degraded is set when the vehicle filter came up empty and the
	// pass fell back to the whole online pool.
	Degraded bool
}

type Selector struct {
	Dir  directory.Directory
	Opts Options
}

// Select filters and ranks the online drivers for one ride request.
// It never errors on "nothing matched"; only the directory call can
// fail.
func (s *Selector) Select(ctx context.Context, req models.RideRequest) (Selection, error) {
	opts := s.Opts.withDefaults()

	pool, err := s.Dir.ListOnlineDrivers(ctx)
	if err != nil {
		return Selection{}, err
	}
	sel := Selection{Pool: pool}
	if len(pool) == 0 {
		return sel, nil
	}

	codes := compatible[req.VehicleClass]
	matched := filterVehicle(pool, codes)
	if len(matched) == 0 {
		if !opts.ExpandOnNoMatch {
			return sel, nil
		}
		// Degraded-match mode: nobody drives the requested class, so
		// offer to the whole online pool. Logged by the caller.
		matched = pool
		sel.Degraded = true
	}

	within := filterDistance(matched, req.Pickup, opts.RadiusKm)
	if len(within) == 0 && opts.ExpandOnNoMatch {
		within = filterDistance(matched, req.Pickup, opts.RadiusKm*2)
	}
	if len(within) == 0 {
		return sel, nil
	}

	cands := make([]models.Candidate, 0, len(within))
	for _, m := range within {
		c := models.Candidate{
			Driver:     m.d,
			DistanceKm: m.distKm,
			ETASeconds: geo.ETASeconds(*m.d.Loc, req.Pickup, opts.SpeedKmh),
		}
		c.Score = Score(m.d, m.distKm, !sel.Degraded)
		cands = append(cands, c)
	}

	sort.Slice(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}
		if cands[i].DistanceKm != cands[j].DistanceKm {
			return cands[i].DistanceKm < cands[j].DistanceKm
		}
		return cands[i].Driver.ID < cands[j].Driver.ID
	})
	if len(cands) > opts.MaxResults {
		cands = cands[:opts.MaxResults]
	}
	sel.Candidates = cands
	return sel, nil
}

func filterVehicle(pool []models.Driver, codes []string) []models.Driver {
	if len(codes) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	out := make([]models.Driver, 0, len(pool))
	for _, d := range pool {
		if _, ok := set[d.VehicleCode]; ok {
			out = append(out, d)
		}
	}
	return out
}

type measured struct {
	d      models.Driver
	distKm float64
}

// filterDistance keeps drivers within radiusKm of pickup. A driver
// without a last-known location is excluded, never treated as
// distance zero.
func filterDistance(pool []models.Driver, pickup models.Coord, radiusKm float64) []measured {
	out := make([]measured, 0, len(pool))
	for _, d := range pool {
		if d.Loc == nil || !d.Loc.Valid() {
			continue
		}
		km := geo.DistanceKm(*d.Loc, pickup)
		if km <= radiusKm {
			out = append(out, measured{d: d, distKm: km})
		}
	}
	return out
}

// Score rates a driver 0-100 against one request. Each component is
// capped before summing; the sum is capped again at 100.
func Score(d models.Driver, distKm float64, vehicleMatched bool) float64 {
	score := proximityPoints(distKm)

	rating := d.Rating
	if rating < 0 {
		rating = 0
	}
	if rating > 5 {
		rating = 5
	}
	score += 30 * (rating / 5)

	switch {
	case d.Online && d.Available:
		score += 20
	case d.Online:
		score += 10
	}

	score += experiencePoints(d.CompletedRides)

	if vehicleMatched {
		score += 5
	}
	if score > 100 {
		score = 100
	}
	return score
}

func proximityPoints(distKm float64) float64 {
	switch {
	case distKm <= 2:
		return 40
	case distKm <= 5:
		return 32
	case distKm <= 10:
		return 24
	case distKm <= 15:
		return 16
	default:
		return 8
	}
}

func experiencePoints(completed int) float64 {
	switch {
	case completed > 100:
		return 10
	case completed > 50:
		return 8
	case completed > 20:
		return 6
	case completed > 5:
		return 4
	default:
		return 0
	}
}
