package geo

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"authlog-service/internal/util"
)

// Location is the structured result of a geo-IP lookup. Failed is set when
// the provider could not resolve the IP; the IP field is still populated so
// downstream summaries degrade gracefully.
type Location struct {
	IP          string  `json:"ip"`
	Country     string  `json:"country,omitempty"`
	CountryCode string  `json:"country_code,omitempty"`
	Region      string  `json:"region,omitempty"`
	City        string  `json:"city,omitempty"`
	PostalCode  string  `json:"postal_code,omitempty"`
	Latitude    float64 `json:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`
	Timezone    string  `json:"timezone,omitempty"`
	Continent   string  `json:"continent,omitempty"`
	Failed      bool    `json:"failed,omitempty"`
}

// Summary returns "City, Country" when both are known, empty otherwise.
func (l *Location) Summary() string {
	if l.City != "" && l.Country != "" {
		return l.City + ", " + l.Country
	}
	return ""
}

// Metadata flattens the location into the open key-value enrichment map
// stored on the activity record.
func (l *Location) Metadata() map[string]string {
	meta := map[string]string{"geo_ip": l.IP}
	if l.Failed {
		meta["geo_failed"] = "true"
		return meta
	}
	if l.Country != "" {
		meta["geo_country"] = l.Country
	}
	if l.CountryCode != "" {
		meta["geo_country_code"] = l.CountryCode
	}
	if l.Region != "" {
		meta["geo_region"] = l.Region
	}
	if l.City != "" {
		meta["geo_city"] = l.City
	}
	if l.PostalCode != "" {
		meta["geo_postal_code"] = l.PostalCode
	}
	if l.Latitude != 0 || l.Longitude != 0 {
		meta["geo_latitude"] = strconv.FormatFloat(l.Latitude, 'f', -1, 64)
		meta["geo_longitude"] = strconv.FormatFloat(l.Longitude, 'f', -1, 64)
	}
	if l.Timezone != "" {
		meta["geo_timezone"] = l.Timezone
	}
	if l.Continent != "" {
		meta["geo_continent"] = l.Continent
	}
	return meta
}

// Provider is the outbound geo-IP lookup contract.
type Provider interface {
	Lookup(ctx context.Context, ip string) (*Location, error)
	Close() error
}

// Resolver wraps a Provider and absorbs its failures: Resolve never returns
// an error and never exceeds the configured timeout budget.
type Resolver struct {
	provider Provider
	timeout  time.Duration
	logger   *zap.Logger
}

func NewResolver(provider Provider, timeout time.Duration, logger *zap.Logger) *Resolver {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Resolver{
		provider: provider,
		timeout:  timeout,
		logger:   logger,
	}
}

// Resolve looks up the location for an IP. On any provider failure it logs a
// warning and returns a minimal result carrying only the IP and a failure
// flag.
func (r *Resolver) Resolve(ctx context.Context, ip string) *Location {
	fallback := &Location{IP: ip, Failed: true}

	if r.provider == nil || ip == "" {
		return fallback
	}
	if net.ParseIP(ip) == nil {
		r.logger.Warn("geo lookup skipped for unparseable ip", util.String("ip", ip))
		return fallback
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	location, err := r.provider.Lookup(lookupCtx, ip)
	if err != nil {
		r.logger.Warn("geo lookup failed",
			util.String("ip", ip),
			util.ErrorField(err))
		return fallback
	}
	if location == nil {
		return fallback
	}

	location.IP = ip
	return location
}

// Close releases the underlying provider.
func (r *Resolver) Close() error {
	if r.provider == nil {
		return nil
	}
	if err := r.provider.Close(); err != nil {
		return fmt.Errorf("failed to close geo provider: %w", err)
	}
	return nil
}
