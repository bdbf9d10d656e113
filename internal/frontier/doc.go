// Package frontier drives the crawl loop: it selects batches of due origins,
// runs one crawl task per origin under the concurrency throttle, classifies
// failures as permanent or retryable, and writes each outcome back to the
// origin store with exponential backoff for retries.
package frontier
