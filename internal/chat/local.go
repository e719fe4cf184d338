package chat

import (
	"strings"

	"artemis-proxy/internal/models"
)

const genericReply = "I’m here to help with shopping, delivery, returns, gifts, or talking to artisans. Ask me anything."

var localRules = []struct {
	keywords []string
	reply    string
}{
	{
		keywords: []string{"material", "made of"},
		reply:    "It’s artisan-made with premium materials chosen for the design. For exact materials, ask the artisan via “Chat with Artisan.”",
	},
	{
		keywords: []string{"care", "wash", "clean"},
		reply:    "Avoid harsh chemicals and moisture; wipe with a soft dry cloth. Store away from direct sun.",
	},
	{
		keywords: []string{"ship", "deliver", "pincode", "zip", "eta"},
		reply:    "Tap “Check delivery” on the product page and enter your PIN. Standard orders arrive in ~3–6 days in most cities.",
	},
}

// LocalReply answers without any network call. Product-specific answers are
// only given when the user is looking at a product.
func LocalReply(messages []models.Message, pc *models.PageContext) string {
	if pc == nil || pc.Product == nil {
		return genericReply
	}
	last := ""
	if len(messages) > 0 {
		last = strings.ToLower(messages[len(messages)-1].Content)
	}
	for _, rule := range localRules {
		for _, kw := range rule.keywords {
			if strings.Contains(last, kw) {
				return rule.reply
			}
		}
	}
	return genericReply
}
