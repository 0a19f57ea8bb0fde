package route

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// defaultRoutesYAML is the embedded demo catalog, used when no routes
// file is configured.
//
//go:embed routes.yml
var defaultRoutesYAML []byte

// Waypoint is one ordered point on a route polyline. Coordinates are
// [lon, lat], matching the GeoJSON convention used by the fixture files.
type Waypoint struct {
	Name        string     `yaml:"name" validate:"required"`
	Order       int        `yaml:"order" validate:"gte=0"`
	Coordinates [2]float64 `yaml:"coordinates"`
}

// Lat returns the waypoint latitude.
func (w Waypoint) Lat() float64 { return w.Coordinates[1] }

// Lon returns the waypoint longitude.
func (w Waypoint) Lon() float64 { return w.Coordinates[0] }

// VehicleInfo describes the vehicle class assigned to a route.
type VehicleInfo struct {
	Type     string `yaml:"type" validate:"required"`
	Capacity int    `yaml:"capacity" validate:"gt=0"`
}

// Route is an immutable route definition: ordered waypoints plus the
// derived cumulative-distance table.
type Route struct {
	ID        string      `yaml:"id" validate:"required"`
	Name      string      `yaml:"name" validate:"required"`
	Start     string      `yaml:"start"`
	End       string      `yaml:"end"`
	Vehicle   VehicleInfo `yaml:"vehicle"`
	Schedules []string    `yaml:"schedules"`
	Waypoints []Waypoint  `yaml:"waypoints" validate:"min=2,dive"`

	// cumKm[i] is the distance in km from the first waypoint to
	// waypoint i along the polyline. cumKm[len-1] is the route length.
	cumKm []float64
}

// LengthKm returns the total polyline length in kilometers.
func (r *Route) LengthKm() float64 {
	if len(r.cumKm) == 0 {
		return 0
	}
	return r.cumKm[len(r.cumKm)-1]
}

// CumulativeKm returns the distance from the route start to waypoint i.
func (r *Route) CumulativeKm(i int) float64 {
	return r.cumKm[i]
}

// buildDistanceTable sorts waypoints by order and derives the
// cumulative-distance table.
func (r *Route) buildDistanceTable() {
	sort.SliceStable(r.Waypoints, func(i, j int) bool {
		return r.Waypoints[i].Order < r.Waypoints[j].Order
	})

	r.cumKm = make([]float64, len(r.Waypoints))
	for i := 1; i < len(r.Waypoints); i++ {
		prev := r.Waypoints[i-1]
		cur := r.Waypoints[i]
		r.cumKm[i] = r.cumKm[i-1] + Haversine(prev.Lat(), prev.Lon(), cur.Lat(), cur.Lon())
	}
}

// Catalog is the read-only collection of route definitions.
type Catalog struct {
	routes map[string]*Route
	order  []string
}

type catalogFile struct {
	Routes []*Route `yaml:"routes"`
}

// LoadCatalog reads a route catalog from a YAML file. An empty path
// loads the embedded demo catalog.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultRoutesYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read routes file: %w", err)
		}
		data = b
	}
	return parseCatalog(data)
}

func parseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse routes yaml: %w", err)
	}
	if len(file.Routes) == 0 {
		return nil, fmt.Errorf("route catalog is empty")
	}

	v := validator.New()
	c := &Catalog{routes: make(map[string]*Route, len(file.Routes))}
	for _, r := range file.Routes {
		if err := v.Struct(r); err != nil {
			return nil, fmt.Errorf("invalid route %q: %w", r.ID, err)
		}
		for _, wp := range r.Waypoints {
			if wp.Lat() < -90 || wp.Lat() > 90 || wp.Lon() < -180 || wp.Lon() > 180 {
				return nil, fmt.Errorf("invalid route %q: waypoint %q coordinates out of range", r.ID, wp.Name)
			}
		}
		if _, dup := c.routes[r.ID]; dup {
			return nil, fmt.Errorf("duplicate route id %q", r.ID)
		}
		r.buildDistanceTable()
		c.routes[r.ID] = r
		c.order = append(c.order, r.ID)
	}
	return c, nil
}

// NewCatalog builds a catalog from already-constructed routes. Intended
// for tests and programmatic setups.
func NewCatalog(routes ...*Route) *Catalog {
	c := &Catalog{routes: make(map[string]*Route, len(routes))}
	for _, r := range routes {
		r.buildDistanceTable()
		c.routes[r.ID] = r
		c.order = append(c.order, r.ID)
	}
	return c
}

// Route returns the route with the given id.
func (c *Catalog) Route(id string) (*Route, bool) {
	r, ok := c.routes[id]
	return r, ok
}

// Routes returns all routes in catalog order.
func (c *Catalog) Routes() []*Route {
	out := make([]*Route, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.routes[id])
	}
	return out
}

// Len returns the number of routes in the catalog.
func (c *Catalog) Len() int {
	return len(c.routes)
}
