package models

// Order selects how search results are sorted.
type Order string

const (
	// OrderRelevance sorts by rank descending, then by name. With no text it
	// degrades to OrderName.
	OrderRelevance Order = ""
	OrderName      Order = "name"
	OrderRecent    Order = "recent"
)

// ContactQuery is the single query description consumed by the search engine.
type ContactQuery struct {
	Text         string
	FileStatus   FileStatus
	ClientStatus ClientStatus
	Order        Order
	Limit        int
	Offset       int
}

// SearchHit is one ranked row. Rank is zero for rows reached only by substring match.
type SearchHit struct {
	Contact
	Rank float64 `json:"rank"`
}

// SearchPage is one window of a search.
type SearchPage struct {
	Hits   []SearchHit `json:"results"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// DegreeEntry pairs a contact with its edge count in one direction.
type DegreeEntry struct {
	Contact Contact `json:"contact"`
	Degree  int     `json:"degree"`
}

// LinkStats summarises link coverage. Linked+Unlinked always equals Total.
type LinkStats struct {
	Total    int `json:"total"`
	Linked   int `json:"linked"`
	Unlinked int `json:"unlinked"`
}

// RelationshipReport is the graph-wide aggregate.
type RelationshipReport struct {
	TopFiles   []DegreeEntry `json:"top_files"`
	TopClients []DegreeEntry `json:"top_clients"`
	Stats      LinkStats     `json:"stats"`
}
