package models

// RawHit is one fragment-level nearest-neighbour hit. Hits are never deduplicated.
type RawHit struct {
	ID       string   `json:"id"`
	Metadata Metadata `json:"metadata"`
	// Distance is the cosine distance (1 - cosine similarity); lower is closer.
	Distance float64 `json:"distance"`
}

// CardResult is one deduplicated card in a search response.
type CardResult struct {
	Identity    string         `json:"identity"`
	Metadata    Metadata       `json:"metadata"`
	Distance    float64        `json:"distance"`
	Similarity  float64        `json:"similarity"`
	Record      *ExtractedInfo `json:"record,omitempty"`
	MatchedSlot string         `json:"matched_slot,omitempty"`
	// Score is the keyword relevance of a lookup result; zero for semantic search.
	Score float64 `json:"score,omitempty"`
	Rank  int     `json:"rank"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Results       []*CardResult `json:"results"`
	Total         int           `json:"total"`
	Query         string        `json:"query"`
	ExpandedQuery string        `json:"expanded_query"`
	// Fetched is the number of raw fragment hits requested from the store on the last pass.
	Fetched   int   `json:"fetched"`
	QueryTime int64 `json:"query_time_ms"`
}

// LookupResponse is the response for a keyword lookup.
type LookupResponse struct {
	Results   []*CardResult `json:"results"`
	Total     int           `json:"total"`
	Query     string        `json:"query"`
	// Suggestion is a corrected query offered when nothing matched.
	Suggestion string `json:"suggestion,omitempty"`
	QueryTime  int64  `json:"query_time_ms"`
}

// IndexStats summarizes what the store and indices hold.
type IndexStats struct {
	Cards          int    `json:"cards"`
	Fragments      int    `json:"fragments"`
	Vectors        int    `json:"vectors"`
	KeywordDocs    uint64 `json:"keyword_docs"`
	NeedsRebuild   bool   `json:"needs_rebuild"`
	DiskUsageBytes int64  `json:"disk_usage_bytes,omitempty"`
}
