package routing

import (
	"context"
	"drt-simulator/internal/domain"
	"drt-simulator/internal/ports"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testEpoch = 1705276800 // 2024-01-15T00:00:00Z

func newTestOTP(t *testing.T, h http.HandlerFunc) *OTPPlanner {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	p, err := NewOTPPlanner(srv.URL, testEpoch, time.UTC)
	if err != nil {
		t.Fatalf("new planner: %v", err)
	}
	p.backoff = time.Millisecond
	return p
}

func TestOTPPlannerParsesItinerary(t *testing.T) {
	ms := func(sim int64) int64 { return (testEpoch + sim) * 1000 }

	var gotQuery map[string]string
	p := newTestOTP(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/plan" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotQuery = map[string]string{}
		for k, v := range r.URL.Query() {
			gotQuery[k] = v[0]
		}
		fmt.Fprintf(w, `{"plan":{"itineraries":[{"legs":[
			{"mode":"CAR","startTime":%d,"endTime":%d,"distance":3000,
			 "from":{"lat":52.0,"lon":21.0},"to":{"lat":52.02,"lon":21.0,"stopId":"1:4711"},
			 "steps":[{"distance":1000,"lat":52.0,"lon":21.0},{"distance":2000,"lat":52.01,"lon":21.0}]},
			{"mode":"RAIL","startTime":%d,"endTime":%d,"distance":9000,
			 "from":{"lat":52.02,"lon":21.0,"stopId":"1:4711"},"to":{"lat":52.1,"lon":21.0,"stopId":"1:99"}}
		]}]}}`, ms(32400), ms(32700), ms(33000), ms(33900))
	})

	from := domain.Coord{Lat: 52.0, Lon: 21.0}
	to := domain.Coord{Lat: 52.1, Lon: 21.0}
	trips, err := p.PlanTransit(context.Background(), from, to, 32400, ports.PlanOptions{
		Modes:             []domain.Mode{domain.ModeKissRide},
		MaxPreTransitTime: 600,
		BannedStops:       []string{"1:7"},
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	if gotQuery["date"] != "01-15-2024" || gotQuery["time"] != "09:00:00" {
		t.Fatalf("date/time = %q %q", gotQuery["date"], gotQuery["time"])
	}
	if gotQuery["mode"] != "CAR_PICKUP,TRANSIT,WALK" {
		t.Fatalf("mode = %q", gotQuery["mode"])
	}
	if gotQuery["maxPreTransitTime"] != "600" || gotQuery["bannedStops"] != "1:7" {
		t.Fatalf("query = %v", gotQuery)
	}

	if len(trips) != 1 {
		t.Fatalf("trips = %d, want 1", len(trips))
	}
	trip := trips[0]
	if trip.MainMode != domain.ModeKissRide {
		t.Fatalf("main mode = %s", trip.MainMode)
	}
	if trip.StartTime() != 32400 || trip.EndTime() != 33900 {
		t.Fatalf("trip span = [%v, %v]", trip.StartTime(), trip.EndTime())
	}
	car := trip.Legs[0]
	if car.ToStop != "4711" {
		t.Fatalf("to stop = %q", car.ToStop)
	}
	if car.Steps[0].Duration != 100 || car.Steps[1].Duration != 200 {
		t.Fatalf("step durations = %v, %v", car.Steps[0].Duration, car.Steps[1].Duration)
	}
	if err := car.Validate(); err != nil {
		t.Fatalf("car leg invalid: %v", err)
	}
	if trip.Legs[1].Mode != domain.ModeRail || len(trip.Legs[1].Steps) != 1 {
		t.Fatalf("rail leg = %+v", trip.Legs[1])
	}
}

func TestOTPPlannerErrorTaxonomy(t *testing.T) {
	tests := []struct {
		id   int
		want error
	}{
		{409, ports.ErrTrivialPath},
		{404, ports.ErrNoPath},
		{400, ports.ErrNoPath},
		{470, ports.ErrNoPath},
		{500, ports.ErrGeneralRouting},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.id), func(t *testing.T) {
			p := newTestOTP(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprintf(w, `{"error":{"id":%d,"msg":"nope"}}`, tt.id)
			})
			_, err := p.PlanTransit(context.Background(),
				domain.Coord{Lat: 1, Lon: 1}, domain.Coord{Lat: 2, Lon: 2}, 0,
				ports.PlanOptions{Modes: []domain.Mode{domain.ModeTransit}})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestOTPPlannerRetriesServerErrors(t *testing.T) {
	calls := 0
	p := newTestOTP(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "busy", http.StatusServiceUnavailable)
	})

	_, err := p.PlanTransit(context.Background(),
		domain.Coord{Lat: 1, Lon: 1}, domain.Coord{Lat: 2, Lon: 2}, 0,
		ports.PlanOptions{Modes: []domain.Mode{domain.ModeTransit}})
	if err == nil || !IsServerError(err) {
		t.Fatalf("err = %v, want server error", err)
	}
	if calls != maxAttempts {
		t.Fatalf("calls = %d, want %d", calls, maxAttempts)
	}
}

func TestOTPPlannerSamePoint(t *testing.T) {
	p := newTestOTP(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("planner should not be called")
	})
	c := domain.Coord{Lat: 1, Lon: 1}
	if _, err := p.PlanTransit(context.Background(), c, c, 0, ports.PlanOptions{}); !errors.Is(err, ports.ErrTrivialPath) {
		t.Fatalf("err = %v", err)
	}
}
