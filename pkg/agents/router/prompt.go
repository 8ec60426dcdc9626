package router

import "fmt"

const promptTemplate = `You are an intent router for an e-commerce assistant.
Classify the user message into exactly one of three intents.

Respond ONLY with valid JSON (no markdown, no extra text):
{"next_agent":"<agent>","reason":"<short reason>","input":"<user text>"}

<agent> must be one of: product-search | order-agent | none

Rules:
• product-search – browsing, searching, comparing, asking about products,
  OR any request that mentions a product/item the user might want
  (e.g. "I need a table", "looking for headphones") when there is no
  prior conversation context about that specific item.
• order-agent    – placing, modifying, tracking, or cancelling an order,
  BUT only when the user explicitly refers to an existing order or
  a product already identified/selected in the conversation.
• none           – cannot confidently classify.

Important: When in doubt, prefer %s.%s
`

const productSearchHint = ` A phrase like "I need X"
or "I want X" without prior context about X means the user is looking to
discover or browse products, not place an order yet.`

// Prompt returns the classification instructions favouring preference.
func Prompt(preference NextAgent) string {
	hint := ""
	if preference == ProductSearch {
		hint = productSearchHint
	}
	return fmt.Sprintf(promptTemplate, preference, hint)
}
