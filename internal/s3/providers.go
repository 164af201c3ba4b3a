package s3

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ProviderConfig describes an S3-compatible service that can hold envelope
// objects.
type ProviderConfig struct {
	Name              string
	DefaultEndpoint   string
	DefaultRegion     string
	EndpointTemplate  string // filled with the region when no endpoint is configured
	RequiresPathStyle bool
}

// KnownProviders contains configuration for known S3-compatible providers.
// AWS has no default endpoint: the SDK resolves it from the region.
var KnownProviders = map[string]ProviderConfig{
	"aws": {
		Name:          "AWS S3",
		DefaultRegion: "us-east-1",
	},
	"minio": {
		Name:              "MinIO",
		DefaultEndpoint:   "http://localhost:9000",
		DefaultRegion:     "us-east-1",
		RequiresPathStyle: true,
	},
	"garage": {
		Name:              "Garage",
		DefaultEndpoint:   "http://localhost:3900",
		DefaultRegion:     "garage",
		RequiresPathStyle: true,
	},
	"wasabi": {
		Name:             "Wasabi",
		DefaultEndpoint:  "https://s3.wasabisys.com",
		DefaultRegion:    "us-east-1",
		EndpointTemplate: "https://s3.%s.wasabisys.com",
	},
	"digitalocean": {
		Name:             "DigitalOcean Spaces",
		DefaultEndpoint:  "https://nyc3.digitaloceanspaces.com",
		DefaultRegion:    "nyc3",
		EndpointTemplate: "https://%s.digitaloceanspaces.com",
	},
	"backblaze": {
		Name:              "Backblaze B2",
		DefaultEndpoint:   "https://s3.us-west-000.backblazeb2.com",
		DefaultRegion:     "us-west-000",
		EndpointTemplate:  "https://s3.%s.backblazeb2.com",
		RequiresPathStyle: true,
	},
	"cloudflare": {
		Name:          "Cloudflare R2",
		DefaultRegion: "auto",
	},
}

// Endpoint is the resolved connection target for a provider.
type Endpoint struct {
	URL       string // empty means the SDK default
	Region    string
	PathStyle bool
}

// GetProviderConfig returns the configuration for a given provider.
func GetProviderConfig(provider string) (ProviderConfig, error) {
	if provider == "" {
		return ProviderConfig{}, fmt.Errorf("provider name is required")
	}
	cfg, ok := KnownProviders[strings.ToLower(provider)]
	if !ok {
		return ProviderConfig{}, fmt.Errorf("unknown provider: %s (supported: %s)",
			provider, strings.Join(providerNames(), ", "))
	}
	return cfg, nil
}

// ResolveEndpoint fills in the endpoint, region and addressing style a
// provider needs. An explicit endpoint always wins over provider defaults.
func ResolveEndpoint(provider, endpoint, region string, forcePathStyle bool) (Endpoint, error) {
	cfg, err := GetProviderConfig(provider)
	if err != nil {
		return Endpoint{}, err
	}

	if region == "" {
		region = cfg.DefaultRegion
	}

	if endpoint == "" {
		if cfg.EndpointTemplate != "" && region != "" {
			endpoint = fmt.Sprintf(cfg.EndpointTemplate, region)
		} else {
			endpoint = cfg.DefaultEndpoint
		}
	}
	if endpoint != "" {
		endpoint = normalizeEndpoint(endpoint)
		if err := ValidateEndpoint(endpoint); err != nil {
			return Endpoint{}, err
		}
	} else if cfg.DefaultEndpoint == "" && cfg.EndpointTemplate == "" && provider != "aws" {
		return Endpoint{}, fmt.Errorf("provider %s requires an endpoint", cfg.Name)
	}

	return Endpoint{
		URL:       endpoint,
		Region:    region,
		PathStyle: forcePathStyle || cfg.RequiresPathStyle,
	}, nil
}

// normalizeEndpoint adds https:// to a bare host and drops a trailing slash.
// An endpoint that already names a scheme is kept as given.
func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	return strings.TrimSuffix(endpoint, "/")
}

// ValidateEndpoint validates that an endpoint URL is well-formed.
func ValidateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint must use http:// or https:// scheme")
	}
	if u.Host == "" {
		return fmt.Errorf("endpoint must include a hostname")
	}
	return nil
}

func providerNames() []string {
	names := make([]string, 0, len(KnownProviders))
	for name := range KnownProviders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
