// Package model defines the data structures shared by the pipeline, the
// report writers and the history database.
//
// CrawlReport is the central type: one per start URL, filled from a
// crawler.Result by ApplyResult.
//
// Design decision: We separate models into their own package so that report
// and database do not depend on each other, and neither depends on how the
// crawl is run.
package model
