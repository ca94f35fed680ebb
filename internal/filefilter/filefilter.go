// Package filefilter narrows a slice of file records for listing queries.
// Filtering happens in memory after the store loads an org's files, so every
// step composes over the same slice and the store query stays simple.
package filefilter

import (
	"strings"

	"filedrive/api/internal/store"
)

// Params describes one listing query. FavoritesOnly and DeletedOnly select
// mutually exclusive views; when both are false only live files are returned.
type Params struct {
	OrgID         string
	Query         string
	Type          store.FileType
	FavoritesOnly bool
	DeletedOnly   bool
}

// Apply filters files down to the records matching p, preserving input order.
// favoriteFileIDs holds the caller's favorited file IDs within p.OrgID; it is
// only consulted when FavoritesOnly is set. Records from a different org are
// always dropped. The result is never nil.
func Apply(files []store.File, favoriteFileIDs map[string]struct{}, p Params) []store.File {
	out := make([]store.File, 0, len(files))
	for _, f := range files {
		if f.OrgID != p.OrgID {
			continue
		}
		if !matchesView(f, favoriteFileIDs, p) {
			continue
		}
		if p.Query != "" && !strings.Contains(f.Name, p.Query) {
			continue
		}
		if p.Type != "" && f.Type != p.Type {
			continue
		}
		out = append(out, f)
	}
	return out
}

func matchesView(f store.File, favoriteFileIDs map[string]struct{}, p Params) bool {
	switch {
	case p.FavoritesOnly:
		_, ok := favoriteFileIDs[f.ID]
		return ok
	case p.DeletedOnly:
		return f.PendingDelete
	default:
		return !f.PendingDelete
	}
}
