package api

// Resource is a named quantity with a finite, non-negative capacity.
type Resource struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Capacity float64 `json:"capacity"`
}

// Allocation is an outstanding grant of Amount units of a resource to a
// consumer (a session id when allocated through the engine).
type Allocation struct {
	ResourceID  string  `json:"resource_id"`
	ConsumerKey string  `json:"consumer_key"`
	Amount      float64 `json:"amount"`
}
