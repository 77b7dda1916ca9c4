// Package config provides configuration structures and utilities for
// hostcrawl. It defines the run options set from CLI flags and the optional
// per-site YAML file (.hostcrawl) that carries cookies, headers and crawl
// limits for individual hosts.
package config
