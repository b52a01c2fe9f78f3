package resourcecache

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/resource-cache/internal/route"
)

// Defaults.
const (
	DefaultVersion            = "v1"
	DefaultImageMaxAge        = 7 * 24 * time.Hour
	DefaultNavigationFallback = "/index.html"
	DefaultSeedConcurrency    = 4
)

// DefaultPrecache lists the entry points seeded into the static partition on install.
var DefaultPrecache = []string{
	"/",
	"/index.html",
	"/static/css/main.css",
	"/static/js/main.js",
	"/manifest.json",
}

// Config controls partition naming and policy behavior.
type Config struct {
	// Version suffixes every partition name.
	Version   string
	APIPrefix string
	Precache  []string
	// NavigationFallback is served for HTML requests when the static route is offline.
	NavigationFallback string
	// ImageMaxAge is the freshness window; entries older than this are revalidated.
	ImageMaxAge     time.Duration
	SeedConcurrency int
}

func (c *Config) setDefaults() {
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.APIPrefix == "" {
		c.APIPrefix = route.DefaultAPIPrefix
	}
	if c.Precache == nil {
		c.Precache = append([]string(nil), DefaultPrecache...)
	}
	if c.NavigationFallback == "" {
		c.NavigationFallback = DefaultNavigationFallback
	}
	if c.ImageMaxAge == 0 {
		c.ImageMaxAge = DefaultImageMaxAge
	}
	if c.SeedConcurrency <= 0 {
		c.SeedConcurrency = DefaultSeedConcurrency
	}
}

func (c *Config) validate() error {
	if c.ImageMaxAge < 0 {
		return errors.New("image max age must not be negative")
	}
	if c.APIPrefix[0] != '/' {
		return fmt.Errorf("api prefix %q must start with /", c.APIPrefix)
	}
	return nil
}
