// Package main is the paper-harvester command line.
//
// The crawl command walks the proceedings catalog: the root page yields the
// newest index pages, each index page yields item pages, and each item page
// yields one metadata record plus a downloaded artifact. Index and item pages
// are processed by two bounded errgroup pools. Items whose artifact URL is
// already in the metadata store are skipped, so re-running a crawl only adds
// what is new.
//
// The enrich command labels every stored item that has no label yet. It reads
// the first pages of each artifact, asks the configured Gemini model to pick
// one label from a closed set, and rewrites the store once at the end of the
// pass. Rate-limit replies are retried with exponential backoff; every other
// failure yields the Unknown label.
//
// The run command performs a crawl followed by an enrichment pass, and stats
// prints totals for the current store.
//
// Configuration comes from an optional YAML file (--config) and HARVESTER_*
// environment variables, e.g. HARVESTER_CATALOG_MAX_INDEXES=2 or
// HARVESTER_STORE_DRIVER=postgres. The Gemini key may also be supplied as
// GEMINI_API_KEY. Setting metrics.addr exposes /metrics and /healthz while a
// command runs. SIGINT and SIGTERM stop scheduling new work; enrichment still
// persists the labels it gathered.
package main
