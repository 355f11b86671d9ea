// Package search holds the product search result schema, the request
// validation rules, the error taxonomy shared by every surface, and the
// boundary that turns agent output into typed results.
package search

// Hit is one product listing found on a platform.
type Hit struct {
	URL    string `json:"url" jsonschema_description:"The URL of the product that was found"`
	Title  string `json:"title" jsonschema_description:"The title of the product that was found"`
	Rating string `json:"rating" jsonschema_description:"The rating of the product (stars, number of ratings given etc.)"`
}

// PlatformBlock groups the hits returned for one platform, in the order the
// agent returned them.
type PlatformBlock struct {
	Platform string `json:"platform" jsonschema_description:"Name of the platform"`
	Results  []Hit  `json:"results" jsonschema_description:"List of results for this platform"`
}

// SearchResponse is the single value produced per search.
type SearchResponse struct {
	Platforms []PlatformBlock `json:"platforms" jsonschema_description:"Aggregated list of all results grouped by platform"`
}

// HitCount returns the number of hits across all blocks.
func (r SearchResponse) HitCount() int {
	n := 0
	for _, b := range r.Platforms {
		n += len(b.Results)
	}
	return n
}

// PlatformNames lists block names in response order.
func (r SearchResponse) PlatformNames() []string {
	names := make([]string, 0, len(r.Platforms))
	for _, b := range r.Platforms {
		names = append(names, b.Platform)
	}
	return names
}
