package transport

import (
	"fmt"
	"slices"
	"sync"

	"github.com/FerroO2000/rtpsgroup/wire"
)

// Route matches a local endpoint with a remote one reachable at the given locators.
type Route struct {
	Endpoint wire.GUID
	Remote   wire.GUID
	Locators []wire.Locator
}

type routeTable map[wire.GUID][]wire.Destination

func newRouteTable(routes []Route) routeTable {
	table := make(routeTable)
	for _, route := range routes {
		table.add(route)
	}
	return table
}

func (rt routeTable) add(route Route) {
	dests := rt[route.Endpoint]
	for _, loc := range route.Locators {
		dst := wire.Destination{GUID: route.Remote, Locator: loc}
		if !slices.Contains(dests, dst) {
			dests = append(dests, dst)
		}
	}
	rt[route.Endpoint] = dests
}

func (rt routeTable) resolve(endpoint wire.GUID) []wire.Destination {
	return slices.Clone(rt[endpoint])
}

// parseRoute builds a route from its textual form.
func parseRoute(endpoint, remote string, locators []string) (Route, error) {
	route := Route{}

	var err error
	route.Endpoint, err = wire.ParseGUID(endpoint)
	if err != nil {
		return route, fmt.Errorf("endpoint: %w", err)
	}

	route.Remote, err = wire.ParseGUID(remote)
	if err != nil {
		return route, fmt.Errorf("remote: %w", err)
	}

	route.Locators = make([]wire.Locator, 0, len(locators))
	for _, s := range locators {
		loc, err := wire.ParseLocator(s)
		if err != nil {
			return route, err
		}
		route.Locators = append(route.Locators, loc)
	}

	return route, nil
}

///////////////////////
//  STATIC RESOLVER  //
///////////////////////

// StaticResolver resolves the endpoints from an in-memory route table.
// It is safe for concurrent use.
type StaticResolver struct {
	mux   sync.RWMutex
	table routeTable
}

// NewStaticResolver returns a resolver over the given routes.
func NewStaticResolver(routes ...Route) *StaticResolver {
	return &StaticResolver{
		table: newRouteTable(routes),
	}
}

// Resolve returns the destinations of the endpoint.
// An endpoint without routes has no destinations.
func (sr *StaticResolver) Resolve(endpoint wire.GUID) ([]wire.Destination, error) {
	sr.mux.RLock()
	defer sr.mux.RUnlock()

	return sr.table.resolve(endpoint), nil
}

// SetRoutes replaces all the routes.
func (sr *StaticResolver) SetRoutes(routes ...Route) {
	table := newRouteTable(routes)

	sr.mux.Lock()
	sr.table = table
	sr.mux.Unlock()
}

// AddRoute adds a route.
func (sr *StaticResolver) AddRoute(route Route) {
	sr.mux.Lock()
	sr.table.add(route)
	sr.mux.Unlock()
}
