package config

import "maps"

// SiteConfig holds the crawl settings for a single host.
type SiteConfig struct {
	// Cookie is an HTTP cookie sent with every request to this host.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are extra HTTP headers sent with every request to this host.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Concurrency overrides the global concurrency for this host.
	// If zero, the global value is used.
	Concurrency int `yaml:"concurrency,omitempty"`

	// MaxPages overrides the global page cap for this host.
	// If zero, the global value is used.
	MaxPages int `yaml:"maxPages,omitempty"`

	// IgnorePatterns are glob patterns of URL paths that are never crawled.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns, if set, restrict crawling to URL paths matching one of
	// these glob patterns. The start URL is always crawled.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`
}

// File represents the structure of the .hostcrawl configuration file.
type File struct {
	// Sites maps host keys (e.g. "example.com" or "example.com:8080") to
	// their configuration.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults applies to every host unless overridden in Sites.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for a host key, merging the
// site-specific entry over the defaults. A nil File yields a zero SiteConfig.
func (cf *File) GetSiteConfig(hostKey string) SiteConfig {
	if cf == nil {
		return SiteConfig{}
	}

	result := cf.Defaults
	// Copy so that merging never writes into Defaults.Headers.
	result.Headers = maps.Clone(cf.Defaults.Headers)

	siteConfig, ok := cf.Sites[hostKey]
	if !ok {
		return result
	}

	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if siteConfig.Concurrency != 0 {
		result.Concurrency = siteConfig.Concurrency
	}
	if siteConfig.MaxPages != 0 {
		result.MaxPages = siteConfig.MaxPages
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(siteConfig.Headers))
		}
		maps.Copy(result.Headers, siteConfig.Headers)
	}
	if len(siteConfig.IgnorePatterns) > 0 {
		result.IgnorePatterns = siteConfig.IgnorePatterns
	}
	if len(siteConfig.FollowPatterns) > 0 {
		result.FollowPatterns = siteConfig.FollowPatterns
	}

	return result
}
