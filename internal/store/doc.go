// Package store defines interfaces for persistence dependencies (activities,
// users, favourites and scrape runs). Implementations live in other packages;
// this package must not import database drivers or concrete clients.
package store
