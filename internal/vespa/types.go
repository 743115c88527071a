package vespa

// SearchRequest is a query against the Vespa search API.
type SearchRequest struct {
	// YQL selects the documents, e.g. "select * from doc where true".
	YQL string
	// Hits is the number of results to return.
	Hits int
	// Ranking names the rank profile.
	Ranking string
	// Query is the user query text bound to userQuery() and text features.
	Query string
	// Inputs are ranking inputs keyed by feature name, e.g.
	// "query(q_embedding)", with values already in tensor literal form.
	Inputs map[string]string
}

// Hit is a single ranked document.
type Hit struct {
	ID        string  `json:"id"`
	Relevance float64 `json:"relevance"`
	Title     string  `json:"title,omitempty"`
}

// SearchResult is the parsed search response.
type SearchResult struct {
	Hits       []Hit
	TotalCount int64
}

// searchResponse mirrors the subset of the Vespa JSON result we read.
type searchResponse struct {
	Root struct {
		ID     string `json:"id"`
		Fields struct {
			TotalCount int64 `json:"totalCount"`
		} `json:"fields"`
		Errors   []responseError `json:"errors"`
		Children []struct {
			ID        string         `json:"id"`
			Relevance float64        `json:"relevance"`
			Fields    map[string]any `json:"fields"`
		} `json:"children"`
	} `json:"root"`
}

type responseError struct {
	Code    int    `json:"code"`
	Summary string `json:"summary"`
	Message string `json:"message"`
}
