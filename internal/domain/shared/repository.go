package shared

// Page bounds a query. A zero Limit means no limit.
type Page struct {
	Limit  int
	Offset int
}

// DefaultBatchSize is the page size drivers use when scanning candidates
const DefaultBatchSize = 500
