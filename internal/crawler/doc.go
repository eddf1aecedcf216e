// Package crawler holds the contracts shared by spiders, fetchers, workers and
// storage: fetch/render requests, run bookkeeping types, retry policy and host
// matching helpers.
package crawler
