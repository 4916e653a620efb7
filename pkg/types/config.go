// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make
// network requests.
type HTTPConfig struct {
	// Timeout bounds API requests (connect through body read). Download
	// streams use their own transport-level limits instead.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with every request.
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// WaitRange is a jittered cooldown range in seconds. Each enforced wait
// draws a uniform target from [Min, Max].
type WaitRange struct {
	Min float64 `json:"min" yaml:"min" mapstructure:"min"`
	Max float64 `json:"max" yaml:"max" mapstructure:"max"`
}

// RateConfig holds the per-fetcher cooldown ranges. Download ranges are
// deliberately an order of magnitude above search ranges because download
// endpoints are throttled far more aggressively upstream.
type RateConfig struct {
	SearchWait   WaitRange `json:"search_wait" yaml:"search_wait" mapstructure:"search_wait"`
	DownloadWait WaitRange `json:"download_wait" yaml:"download_wait" mapstructure:"download_wait"`
}

// ThreeGPPConfig holds settings specific to the 3GPP fetcher.
type ThreeGPPConfig struct {
	// ConvertToPDF converts extracted office documents to PDF during
	// download processing.
	ConvertToPDF bool `json:"convert_to_pdf" yaml:"convert_to_pdf" mapstructure:"convert_to_pdf"`
}

// APIKeys holds optional per-source credentials.
type APIKeys struct {
	// USPTO is the PatentsView API key, attached as X-Api-Key.
	USPTO string `json:"uspto,omitempty" yaml:"uspto,omitempty" mapstructure:"uspto"`
}

// Config is the process-wide configuration, loaded once at startup and
// passed into fetcher constructors. It is never read ad hoc from globals.
type Config struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// OutputDir is the base directory for downloads.
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`

	// SearchLimit is the default maximum number of search results.
	SearchLimit int `json:"search_limit" yaml:"search_limit" mapstructure:"search_limit"`

	// ConvertToMarkdown converts downloaded documents to Markdown.
	ConvertToMarkdown bool `json:"convert_to_md" yaml:"convert_to_md" mapstructure:"convert_to_md"`

	// Rate is the default cooldown configuration. The 3GPP fetcher
	// overrides the download range with ThreeGPPRate when set.
	Rate RateConfig `json:"rate" yaml:"rate" mapstructure:"rate"`

	// ThreeGPPRate overrides Rate for the 3GPP FTP mirrors, which
	// tolerate a much shorter cooldown than the publisher sites.
	ThreeGPPRate *RateConfig `json:"3gpp_rate,omitempty" yaml:"3gpp_rate,omitempty" mapstructure:"3gpp_rate"`

	// ThreeGPP holds 3GPP-specific download behavior.
	ThreeGPP ThreeGPPConfig `json:"3gpp" yaml:"3gpp" mapstructure:"3gpp"`

	// Keys holds optional API credentials.
	Keys APIKeys `json:"api_keys" yaml:"api_keys" mapstructure:"api_keys"`

	// HistoryPath is the SQLite download-history database. Empty
	// disables history tracking.
	HistoryPath string `json:"history_path,omitempty" yaml:"history_path,omitempty" mapstructure:"history_path"`
}

// DefaultConfig returns the built-in defaults, mirrored by the config file
// schema: short jittered search waits, long jittered download waits.
func DefaultConfig() Config {
	return Config{
		HTTPConfig: HTTPConfig{
			Timeout:   30 * time.Second,
			UserAgent: "paper-fetch/0.1",
		},
		OutputDir:   "downloads",
		SearchLimit: 10,
		Rate: RateConfig{
			SearchWait:   WaitRange{Min: 0, Max: 2},
			DownloadWait: WaitRange{Min: 10, Max: 40},
		},
		ThreeGPPRate: &RateConfig{
			SearchWait:   WaitRange{Min: 0, Max: 1},
			DownloadWait: WaitRange{Min: 1, Max: 3},
		},
		ThreeGPP: ThreeGPPConfig{ConvertToPDF: true},
	}
}
