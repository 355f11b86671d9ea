package search

import "strings"

// Supported platforms in display order.
var Platforms = []string{"Amazon", "Best Buy", "Ebay", "Walmart", "Target", "Costco", "Newegg"}

// Canonical maps a platform name to its supported spelling, ignoring case and
// surrounding whitespace. "eBay" and "bestbuy" are accepted.
func Canonical(name string) (string, bool) {
	key := platformKey(name)
	if key == "" {
		return "", false
	}
	for _, p := range Platforms {
		if platformKey(p) == key {
			return p, true
		}
	}
	return "", false
}

func platformKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), ""))
}
