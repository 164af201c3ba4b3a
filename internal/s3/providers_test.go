package s3

import (
	"testing"
)

func TestGetProviderConfig(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		wantErr  bool
		check    func(*testing.T, ProviderConfig)
	}{
		{
			name:     "AWS provider",
			provider: "aws",
			check: func(t *testing.T, config ProviderConfig) {
				if config.Name != "AWS S3" {
					t.Errorf("expected name 'AWS S3', got %s", config.Name)
				}
				if config.DefaultEndpoint != "" {
					t.Errorf("AWS should leave endpoint resolution to the SDK, got %s", config.DefaultEndpoint)
				}
			},
		},
		{
			name:     "MinIO provider",
			provider: "minio",
			check: func(t *testing.T, config ProviderConfig) {
				if !config.RequiresPathStyle {
					t.Error("MinIO should require path-style addressing")
				}
			},
		},
		{
			name:     "Case insensitive",
			provider: "GARAGE",
		},
		{
			name:     "Unknown provider",
			provider: "unknown",
			wantErr:  true,
		},
		{
			name:     "Empty provider",
			provider: "",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := GetProviderConfig(tt.provider)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.check != nil {
				tt.check(t, config)
			}
		})
	}
}

func TestResolveEndpoint(t *testing.T) {
	tests := []struct {
		name          string
		provider      string
		endpoint      string
		region        string
		pathStyle     bool
		wantErr       bool
		wantEndpoint  string
		wantRegion    string
		wantPathStyle bool
	}{
		{
			name:       "AWS uses SDK endpoint",
			provider:   "aws",
			region:     "eu-west-1",
			wantRegion: "eu-west-1",
		},
		{
			name:       "AWS default region",
			provider:   "aws",
			wantRegion: "us-east-1",
		},
		{
			name:         "AWS explicit endpoint",
			provider:     "aws",
			endpoint:     "https://s3.us-west-2.amazonaws.com/",
			region:       "us-west-2",
			wantEndpoint: "https://s3.us-west-2.amazonaws.com",
			wantRegion:   "us-west-2",
		},
		{
			name:          "MinIO default endpoint",
			provider:      "minio",
			wantEndpoint:  "http://localhost:9000",
			wantRegion:    "us-east-1",
			wantPathStyle: true,
		},
		{
			name:         "DigitalOcean template",
			provider:     "digitalocean",
			region:       "ams3",
			wantEndpoint: "https://ams3.digitaloceanspaces.com",
			wantRegion:   "ams3",
		},
		{
			name:          "Forced path style",
			provider:      "wasabi",
			region:        "eu-central-1",
			pathStyle:     true,
			wantEndpoint:  "https://s3.eu-central-1.wasabisys.com",
			wantRegion:    "eu-central-1",
			wantPathStyle: true,
		},
		{
			name:         "Scheme added",
			provider:     "cloudflare",
			endpoint:     "account.r2.cloudflarestorage.com",
			wantEndpoint: "https://account.r2.cloudflarestorage.com",
			wantRegion:   "auto",
		},
		{
			name:     "Cloudflare requires endpoint",
			provider: "cloudflare",
			wantErr:  true,
		},
		{
			name:     "Invalid endpoint",
			provider: "minio",
			endpoint: "ftp://minio:9000",
			wantErr:  true,
		},
		{
			name:     "Unknown provider",
			provider: "unknown",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep, err := ResolveEndpoint(tt.provider, tt.endpoint, tt.region, tt.pathStyle)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", ep)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ep.URL != tt.wantEndpoint {
				t.Errorf("expected endpoint %q, got %q", tt.wantEndpoint, ep.URL)
			}
			if ep.Region != tt.wantRegion {
				t.Errorf("expected region %q, got %q", tt.wantRegion, ep.Region)
			}
			if ep.PathStyle != tt.wantPathStyle {
				t.Errorf("expected path style %v, got %v", tt.wantPathStyle, ep.PathStyle)
			}
		})
	}
}

func TestValidateEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		wantErr  bool
	}{
		{name: "https", endpoint: "https://s3.amazonaws.com"},
		{name: "http with port", endpoint: "http://localhost:9000"},
		{name: "no scheme", endpoint: "s3.amazonaws.com", wantErr: true},
		{name: "bad scheme", endpoint: "ftp://s3.amazonaws.com", wantErr: true},
		{name: "no host", endpoint: "https://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEndpoint(tt.endpoint)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEndpoint(%q) error = %v, wantErr %v", tt.endpoint, err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "minio:9000", want: "https://minio:9000"},
		{in: " s3.example.com/ ", want: "https://s3.example.com"},
		{in: "http://localhost:9000/", want: "http://localhost:9000"},
		{in: "https://s3.amazonaws.com", want: "https://s3.amazonaws.com"},
		{in: "ftp://minio:9000", want: "ftp://minio:9000"},
		{in: "s3://bucket", want: "s3://bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := normalizeEndpoint(tt.in); got != tt.want {
				t.Errorf("normalizeEndpoint(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
