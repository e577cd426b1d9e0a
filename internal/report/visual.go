package report

import (
	"drt-simulator/internal/domain"
	"drt-simulator/internal/services/fleet"
	"drt-simulator/internal/simulation"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func line(steps []domain.Step) orb.LineString {
	if len(steps) == 0 {
		return nil
	}
	ls := orb.LineString{steps[0].Start.Point()}
	for _, s := range steps {
		if p := s.End.Point(); p != ls[len(ls)-1] {
			ls = append(ls, p)
		}
	}
	return ls
}

// Visual renders vehicle tracks and delivered rides as GeoJSON line strings.
func Visual(res *simulation.Result) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, v := range res.Vehicles {
		ls := line(v.Track)
		if len(ls) < 2 {
			continue
		}
		f := geojson.NewFeature(ls)
		f.Properties["kind"] = "vehicle"
		f.Properties["vehicle"] = v.ID
		f.Properties["kilometers"] = v.Kilometers
		fc.Append(f)
	}

	for _, b := range res.Bookings {
		if b.Status != fleet.BookingDelivered {
			continue
		}
		ls := line(b.Leg.Steps)
		if len(ls) < 2 {
			continue
		}
		f := geojson.NewFeature(ls)
		f.Properties["kind"] = "ride"
		f.Properties["person"] = b.Request.Person
		f.Properties["vehicle"] = b.Vehicle
		f.Properties["pickup_s"] = b.PickupTime
		f.Properties["dropoff_s"] = b.DropoffTime
		fc.Append(f)
	}
	return fc
}
