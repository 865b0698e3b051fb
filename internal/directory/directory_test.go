package directory

import (
	"context"
	"math"
	"testing"

	"github.com/example/ride-dispatch/internal/models"
)

func TestMemoryListsOnlyOnline(t *testing.T) {
	m := NewMemory()
	m.Upsert(context.Background(), models.Driver{ID: "on", Online: true})
	m.Upsert(context.Background(), models.Driver{ID: "off", Online: false})
	got, err := m.ListOnlineDrivers(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "on" {
		t.Fatalf("online drivers = %+v", got)
	}
}

func TestRecordCompletion(t *testing.T) {
	m := NewMemory()
	m.Upsert(context.Background(), models.Driver{ID: "d", Rating: 4, CompletedRides: 3, Online: true})
	if err := m.RecordCompletion(context.Background(), "d", 5); err != nil {
		t.Fatal(err)
	}
	d, _ := m.Get("d")
	if d.CompletedRides != 4 {
		t.Fatalf("count = %d", d.CompletedRides)
	}
	want := (4.0*3 + 5) / 4
	if math.Abs(d.Rating-want) > 1e-9 {
		t.Fatalf("rating = %f, want %f", d.Rating, want)
	}
}

func TestRecordCompletionWithoutRating(t *testing.T) {
	m := NewMemory()
	m.Upsert(context.Background(), models.Driver{ID: "d", Rating: 4.2, CompletedRides: 10, Online: true})
	m.RecordCompletion(context.Background(), "d", 0)
	d, _ := m.Get("d")
	if d.Rating != 4.2 || d.CompletedRides != 11 {
		t.Fatalf("unrated completion changed rating: %+v", d)
	}
}

func TestFoldRatingFirstRide(t *testing.T) {
	if got := FoldRating(0, 0, 5); got != 5 {
		t.Fatalf("first rating = %f", got)
	}
}
