// Package harvest defines the shared domain types, collaborator interfaces,
// and error taxonomy used by the crawl and enrichment pipelines.
//
// Items flow through two phases. The crawl phase discovers item pages,
// downloads their artifacts, and appends one Item per new artifact URL. The
// enrichment phase later assigns a Label to every Item that lacks one.
package harvest
