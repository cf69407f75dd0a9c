package types

// PageInfo contains pagination metadata for list responses. Listings on this
// surface are limit-bounded windows over recent rows; HasMore reports whether
// the window was filled, i.e. older rows may exist beyond it.
type PageInfo struct {
	Limit   int  `json:"limit"`
	Count   int  `json:"count"`
	HasMore bool `json:"has_more"`
}

// ResponseMeta contains non-blocking metadata returned with API responses.
type ResponseMeta struct {
	Warnings   []string  `json:"warnings,omitempty"`
	Pagination *PageInfo `json:"pagination,omitempty"`
}
