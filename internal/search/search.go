// Package search indexes file metadata and answers full-text queries over it.
package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Snippet string `json:"snippet"`
	OrgID   string `json:"orgId"`
	Type    string `json:"type"`
}

// Query describes a search request. OrgIDs restricts hits to the
// organizations the caller can access; an empty list matches nothing.
type Query struct {
	Text       string
	OrgIDs     []string
	FilterType string // empty = all types
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push file records into a search index.
type Indexer interface {
	IndexFile(f FileRecord) error
	DeleteFile(id string) error
}

// FileRecord is the data we index for a file.
type FileRecord struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	OrgID string `json:"orgId"`
	Type  string `json:"type"`
}
