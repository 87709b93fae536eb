package geo

import (
	"context"

	"github.com/sells-group/property-scorer/internal/model"
)

const unknownCounty = model.UnknownCounty

// Origin is what a distance is measured from: coordinates when known,
// otherwise an address to geocode.
type Origin struct {
	Address string
	Lat     *float64
	Lon     *float64
}

// HasCoordinates reports whether the origin carries both coordinates.
func (o Origin) HasCoordinates() bool {
	return o.Lat != nil && o.Lon != nil
}

// Resolver resolves county and hub distances. Implementations never fail:
// ResolveCounty returns "Unknown" and ResolveDistance returns nil when a
// value cannot be determined.
type Resolver interface {
	ResolveCounty(ctx context.Context, address string) string
	ResolveDistance(ctx context.Context, origin Origin, hub Hub) *Distance
}

// StaticResolver resolves only from the city table and origin coordinates.
// It never performs I/O.
type StaticResolver struct {
	Counties CountyTable
}

// ResolveCounty implements Resolver.
func (r StaticResolver) ResolveCounty(_ context.Context, address string) string {
	table := r.Counties
	if table == nil {
		table = DefaultCountyTable()
	}
	if c, ok := table.ForAddress(address); ok {
		return c
	}
	return unknownCounty
}

// ResolveDistance implements Resolver.
func (r StaticResolver) ResolveDistance(_ context.Context, origin Origin, hub Hub) *Distance {
	if !origin.HasCoordinates() {
		return nil
	}
	d := DistanceTo(*origin.Lat, *origin.Lon, hub)
	return &d
}
