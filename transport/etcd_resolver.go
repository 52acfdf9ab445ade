package transport

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/FerroO2000/rtpsgroup/internal/config"
	"github.com/FerroO2000/rtpsgroup/internal/telemetry"
	"github.com/FerroO2000/rtpsgroup/wire"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// ErrInvalidRouteKey is returned when an etcd key does not follow the route layout.
var ErrInvalidRouteKey = errors.New("transport: invalid route key")

//////////////
//  CONFIG  //
//////////////

// EtcdResolverConfig is the configuration of an [EtcdResolver].
type EtcdResolverConfig struct {
	// Endpoints are the etcd endpoints.
	//
	// Default: localhost:2379
	Endpoints []string

	// DialTimeout is the timeout for the connection to etcd.
	//
	// Default: 5s
	DialTimeout time.Duration

	// Prefix is the key prefix of the routes.
	// A route is stored under <prefix><endpoint>/<remote> and its value
	// is the comma separated list of locators.
	//
	// Default: /rtps/routes/
	Prefix string
}

// NewEtcdResolverConfig returns the default configuration of an etcd resolver.
func NewEtcdResolverConfig() *EtcdResolverConfig {
	return &EtcdResolverConfig{
		Endpoints:   []string{"localhost:2379"},
		DialTimeout: 5 * time.Second,
		Prefix:      "/rtps/routes/",
	}
}

// Validate checks the configuration.
func (c *EtcdResolverConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckLen(ac, "Endpoints", &c.Endpoints, []string{"localhost:2379"})
	config.CheckDuration(ac, "DialTimeout", &c.DialTimeout, 5*time.Second)
	config.CheckNotEmpty(ac, "Prefix", &c.Prefix, "/rtps/routes/")

	if !strings.HasSuffix(c.Prefix, "/") {
		c.Prefix += "/"
	}
}

/////////////////////
//  ETCD RESOLVER  //
/////////////////////

// EtcdResolver resolves the endpoints from the routes stored in etcd.
// The routes are cached locally and kept current while [EtcdResolver.Watch] runs.
type EtcdResolver struct {
	tel *telemetry.Telemetry
	cfg *EtcdResolverConfig

	client *clientv3.Client

	static *StaticResolver

	mux      sync.Mutex
	routes   map[string]Route
	revision int64
}

// NewEtcdResolver connects to etcd and loads the current routes.
func NewEtcdResolver(ctx context.Context, cfg *EtcdResolverConfig) (*EtcdResolver, error) {
	tel := telemetry.New("resolver", "etcd")
	config.NewValidator(tel).Validate(cfg)

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, err
	}

	er := &EtcdResolver{
		tel: tel,
		cfg: cfg,

		client: client,

		static: NewStaticResolver(),
		routes: make(map[string]Route),
	}

	if err := er.load(ctx); err != nil {
		client.Close()
		return nil, err
	}

	return er, nil
}

// Resolve returns the destinations of the endpoint.
func (er *EtcdResolver) Resolve(endpoint wire.GUID) ([]wire.Destination, error) {
	return er.static.Resolve(endpoint)
}

// PutRoute stores a route in etcd.
func (er *EtcdResolver) PutRoute(ctx context.Context, route Route) error {
	locators := make([]string, 0, len(route.Locators))
	for _, loc := range route.Locators {
		locators = append(locators, loc.String())
	}

	_, err := er.client.Put(ctx, routeKey(er.cfg.Prefix, route), strings.Join(locators, ","))
	return err
}

func (er *EtcdResolver) load(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, er.cfg.DialTimeout)
	defer cancel()

	resp, err := er.client.Get(ctx, er.cfg.Prefix, clientv3.WithPrefix())
	if err != nil {
		return err
	}

	er.mux.Lock()
	defer er.mux.Unlock()

	for _, kv := range resp.Kvs {
		er.putLocked(kv)
	}
	er.revision = resp.Header.Revision

	er.publishLocked()

	return nil
}

// Watch applies the changes of the routes until the context is done.
func (er *EtcdResolver) Watch(ctx context.Context) error {
	er.mux.Lock()
	rev := er.revision
	er.mux.Unlock()

	watchCh := er.client.Watch(ctx, er.cfg.Prefix, clientv3.WithPrefix(), clientv3.WithRev(rev+1))

	for {
		select {
		case <-ctx.Done():
			return nil

		case resp, ok := <-watchCh:
			if !ok {
				return nil
			}

			if err := resp.Err(); err != nil {
				return err
			}

			er.apply(resp.Events, resp.Header.Revision)
		}
	}
}

func (er *EtcdResolver) apply(events []*clientv3.Event, revision int64) {
	er.mux.Lock()
	defer er.mux.Unlock()

	for _, ev := range events {
		switch ev.Type {
		case mvccpb.PUT:
			er.putLocked(ev.Kv)
		case mvccpb.DELETE:
			delete(er.routes, string(ev.Kv.Key))
		}
	}
	er.revision = revision

	er.publishLocked()
}

func (er *EtcdResolver) putLocked(kv *mvccpb.KeyValue) {
	key := string(kv.Key)

	route, err := parseRouteKey(er.cfg.Prefix, key, string(kv.Value))
	if err != nil {
		er.tel.LogWarn("skipping invalid route", "key", key, "reason", err)
		return
	}

	er.routes[key] = route
}

func (er *EtcdResolver) publishLocked() {
	keys := slices.Sorted(maps.Keys(er.routes))

	routes := make([]Route, 0, len(keys))
	for _, key := range keys {
		routes = append(routes, er.routes[key])
	}

	er.static.SetRoutes(routes...)
	er.tel.LogDebug("routes updated", "routes", len(routes), "revision", er.revision)
}

// Close closes the etcd client.
func (er *EtcdResolver) Close() error {
	return er.client.Close()
}

func routeKey(prefix string, route Route) string {
	return prefix + route.Endpoint.String() + "/" + route.Remote.String()
}

// parseRouteKey parses a route stored under <prefix><endpoint>/<remote>.
func parseRouteKey(prefix, key, value string) (Route, error) {
	rest, ok := strings.CutPrefix(key, prefix)
	if !ok {
		return Route{}, fmt.Errorf("%w: %q is outside %q", ErrInvalidRouteKey, key, prefix)
	}

	endpoint, remote, ok := strings.Cut(rest, "/")
	if !ok {
		return Route{}, fmt.Errorf("%w: %q has no remote endpoint", ErrInvalidRouteKey, key)
	}

	var locators []string
	for loc := range strings.SplitSeq(value, ",") {
		if loc = strings.TrimSpace(loc); loc != "" {
			locators = append(locators, loc)
		}
	}

	return parseRoute(endpoint, remote, locators)
}
