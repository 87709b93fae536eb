package geo

import (
	"context"

	"github.com/sells-group/property-scorer/internal/model"
)

// Locator is implemented by resolvers that can geocode an address to
// coordinates.
type Locator interface {
	Locate(ctx context.Context, addr string) (lat, lon *float64)
}

// ProximityOptions controls ApplyProximity.
type ProximityOptions struct {
	Hubs            []Hub
	MaxDriveMinutes float64
	// PrimaryOnly restricts resolution to the primary hub. Used for
	// legacy-derived properties, whose other hub fields stay unset.
	PrimaryOnly bool
}

// ApplyProximity fills county, coordinates, hub distances and the
// within-drive flags of p. A flag is true exactly when the estimated drive
// time is at most MaxDriveMinutes. Fields whose value cannot be resolved are
// left as they were.
func ApplyProximity(ctx context.Context, r Resolver, p *model.Property, opts ProximityOptions) {
	if !p.CountyKnown() && p.FullAddress != "" {
		p.County = r.ResolveCounty(ctx, p.FullAddress)
	}

	if !p.HasCoordinates() && p.FullAddress != "" {
		if loc, ok := r.(Locator); ok {
			if lat, lon := loc.Locate(ctx, p.FullAddress); lat != nil && lon != nil {
				p.Lat, p.Lon = lat, lon
			}
		}
	}

	hubs := opts.Hubs
	if len(hubs) == 0 {
		hubs = DefaultHubs()
	}
	origin := Origin{Address: p.FullAddress, Lat: p.Lat, Lon: p.Lon}
	for _, hub := range hubs {
		if opts.PrimaryOnly && !hub.Primary {
			continue
		}
		d := r.ResolveDistance(ctx, origin, hub)
		if d == nil {
			continue
		}
		miles := d.Miles
		within := d.EstimatedDriveMinutes <= opts.MaxDriveMinutes
		switch hub.Name {
		case HubNashville:
			p.DistanceNashMi = &miles
			p.Within30MinNash = within
		case HubMtJuliet:
			p.DistanceMtJulietMi = &miles
			p.Within30MinMtJuliet = within
		}
	}
}
