// Package search defines the core types and interfaces shared by the crawl
// frontier, the indexer, the ranking engine, and the storage backends of the
// realtime search crawler.
package search
