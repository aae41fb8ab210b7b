// Package search finds documents by title and extracted text, through
// Meilisearch when it is reachable and PostgreSQL full-text search otherwise.
package search

import "context"

// Result is a single search hit returned to the caller.
type Result struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Snippet    string `json:"snippet"`
	Status     string `json:"status"`
	Visibility string `json:"visibility"`
}

// Query describes a search request. ViewerID limits hits to documents the
// viewer may read.
type Query struct {
	Text     string
	ViewerID string
	Limit    int
	Offset   int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Backend string   `json:"backend"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// DocumentRecord is the data indexed for a document.
type DocumentRecord struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Text       string   `json:"text"`
	CreatedBy  string   `json:"createdBy"`
	Editors    []string `json:"editors"`
	Status     string   `json:"status"`
	Visibility string   `json:"visibility"`
	UpdatedAt  int64    `json:"updatedAt"`
}

func normalizePage(q Query) (int, int) {
	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
