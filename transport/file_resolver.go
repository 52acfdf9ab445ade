package transport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/FerroO2000/rtpsgroup/internal/config"
	"github.com/FerroO2000/rtpsgroup/internal/telemetry"
	"github.com/FerroO2000/rtpsgroup/wire"
	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
)

//////////////
//  CONFIG  //
//////////////

// FileResolverConfig is the configuration of a [FileResolver].
type FileResolverConfig struct {
	// Path is the path of the TOML route file.
	Path string

	// ReloadDelay is how long the resolver waits after the last change
	// of the file before reloading it.
	//
	// Default: 100ms
	ReloadDelay time.Duration
}

// NewFileResolverConfig returns the default configuration for the given route file.
func NewFileResolverConfig(path string) *FileResolverConfig {
	return &FileResolverConfig{
		Path:        path,
		ReloadDelay: 100 * time.Millisecond,
	}
}

// Validate checks the configuration.
func (c *FileResolverConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckDuration(ac, "ReloadDelay", &c.ReloadDelay, 100*time.Millisecond)
}

//////////////////
//  ROUTE FILE  //
//////////////////

// routeFile is the layout of the route file:
//
//	[[route]]
//	endpoint = "0102030405060708090a0b0c.00000102"
//	remote = "a1a2a3a4a5a6a7a8a9aaabac.00000107"
//	locators = ["udpv4:127.0.0.1:7411"]
type routeFile struct {
	Routes []fileRoute `toml:"route"`
}

type fileRoute struct {
	Endpoint string   `toml:"endpoint"`
	Remote   string   `toml:"remote"`
	Locators []string `toml:"locators"`
}

// LoadRoutes reads the routes from a TOML route file.
func LoadRoutes(path string) ([]Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file routeFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	routes := make([]Route, 0, len(file.Routes))
	for idx, fr := range file.Routes {
		route, err := parseRoute(fr.Endpoint, fr.Remote, fr.Locators)
		if err != nil {
			return nil, fmt.Errorf("route %d of %s: %w", idx, path, err)
		}
		routes = append(routes, route)
	}

	return routes, nil
}

/////////////////////
//  FILE RESOLVER  //
/////////////////////

// FileResolver resolves the endpoints from a TOML route file.
// The file is read once on creation and again on every change
// while [FileResolver.Watch] runs.
type FileResolver struct {
	tel *telemetry.Telemetry
	cfg *FileResolverConfig

	static *StaticResolver

	mux    sync.Mutex
	reload *time.Timer
}

// NewFileResolver returns a resolver over the routes of the file.
func NewFileResolver(cfg *FileResolverConfig) (*FileResolver, error) {
	tel := telemetry.New("resolver", filepath.Base(cfg.Path))
	config.NewValidator(tel).Validate(cfg)

	routes, err := LoadRoutes(cfg.Path)
	if err != nil {
		return nil, err
	}

	return &FileResolver{
		tel: tel,
		cfg: cfg,

		static: NewStaticResolver(routes...),
	}, nil
}

// Resolve returns the destinations of the endpoint.
func (fr *FileResolver) Resolve(endpoint wire.GUID) ([]wire.Destination, error) {
	return fr.static.Resolve(endpoint)
}

// Reload reads the route file again.
// If the file is invalid the current routes are kept.
func (fr *FileResolver) Reload() error {
	routes, err := LoadRoutes(fr.cfg.Path)
	if err != nil {
		return err
	}

	fr.static.SetRoutes(routes...)
	fr.tel.LogInfo("routes reloaded", "routes", len(routes))

	return nil
}

// Watch reloads the route file whenever it changes, until the context is done.
func (fr *FileResolver) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Editors often replace the file, so the directory is watched
	path := filepath.Clean(fr.cfg.Path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	defer fr.stopReload()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(event.Name) != path {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			fr.scheduleReload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			fr.tel.LogWarn("route file watcher error", "reason", err)
		}
	}
}

func (fr *FileResolver) scheduleReload() {
	fr.mux.Lock()
	defer fr.mux.Unlock()

	if fr.reload != nil {
		fr.reload.Stop()
	}

	fr.reload = time.AfterFunc(fr.cfg.ReloadDelay, func() {
		if err := fr.Reload(); err != nil {
			fr.tel.LogError("failed to reload routes", err)
		}
	})
}

func (fr *FileResolver) stopReload() {
	fr.mux.Lock()
	defer fr.mux.Unlock()

	if fr.reload != nil {
		fr.reload.Stop()
	}
}
