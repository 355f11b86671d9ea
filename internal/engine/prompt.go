package engine

import (
	"strings"

	"github.com/basket/shopscout/internal/search"
)

const baseSystemPrompt = "To find products, first use the search_engine tool. " +
	"When finding products, use the web_data tool for the platform. " +
	"If none exists, scrape as markdown. " +
	"Example: Don't use web_data_bestbuy_products for search. " +
	"Use it only for getting data on specific products you already found in search."

// SystemPrompt is the fixed task description plus the platform constraint
// for req.
func SystemPrompt(req search.Request) string {
	var b strings.Builder
	b.WriteString(baseSystemPrompt)
	b.WriteString("\n\nOnly search these platforms: ")
	b.WriteString(strings.Join(req.Platforms, ", "))
	b.WriteString(". Return one entry in \"platforms\" per platform searched, using exactly these names, ")
	b.WriteString("and never include results from any other site. ")
	b.WriteString("For each product give its URL, its title and its rating as text (stars, number of ratings given etc.).")
	return b.String()
}
