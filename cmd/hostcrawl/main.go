// Package main provides the entry point for the hostcrawl CLI.
//
// hostcrawl discovers every page of a site reachable by following links from
// a start URL, without leaving the start URL's host.
//
// Usage:
//
//	hostcrawl crawl <url>
//	hostcrawl history <host>
//
// See --help for all available options.
package main

func main() {
	Execute()
}
