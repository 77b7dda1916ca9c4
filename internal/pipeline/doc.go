// Package pipeline runs crawls as a sequence of steps.
//
// A Pipeline is built per target: CrawlStep runs the crawler with the
// target's site settings and fills the report, and SaveStep (deferred, so it
// also runs after an interrupt) stores it in the history database.
// DefaultPipeline wires both from a transport client and the configuration.
//
// BatchProcessor crawls several targets concurrently. Each target gets its
// own pipeline and report; a failed target never stops the others.
package pipeline
