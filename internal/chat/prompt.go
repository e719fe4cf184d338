package chat

import (
	"fmt"
	"strings"

	"artemis-proxy/internal/models"
)

const defaultPersona = "friendly and helpful"

// historyWindow caps how many trailing turns go into a flat text prompt.
const historyWindow = 10

// SystemPrompt describes the assistant and the page the user is on.
func SystemPrompt(pc *models.PageContext, opts *models.Options) string {
	persona := defaultPersona
	if opts != nil && opts.Persona != "" {
		persona = opts.Persona
	}
	if pc == nil {
		pc = &models.PageContext{}
	}

	basics := fmt.Sprintf("You are Artemis, an AI assistant for an artisan marketplace. Your personality is %s. "+
		"Be concise, kind, and helpful. Never invent unavailable product specifics (dimensions, materials) — "+
		"instead, suggest asking the artisan.", persona)

	page := ""
	if pc.Path != "" {
		page = fmt.Sprintf("Current page: %s.", pc.Path)
	}

	prod := "Product: none."
	if p := pc.Product; p != nil {
		prod = fmt.Sprintf("Product: %s • Category: %s • Price: ₹%s • Stock: %s • Origin: %s • Techniques: %s",
			p.Name, p.Category, p.Price, p.Stock, p.Region, strings.Join(p.Techniques, ", "))
	}

	role := ""
	if pc.Role != "" {
		role = fmt.Sprintf("User role: %s.", pc.Role)
	}

	return strings.Join([]string{
		basics,
		page,
		prod,
		role,
		"Guidelines: Help with materials/care/gifting/delivery generally; for exact details, recommend “Chat with Artisan.”",
	}, "\n")
}

// HuggingFacePrompt flattens the conversation into a single instruct-style
// prompt for text-generation models.
func HuggingFacePrompt(system string, messages []models.Message) string {
	var parts []string
	if system != "" {
		parts = append(parts, "<system>\n"+system+"\n</system>\n")
	}

	if len(messages) > historyWindow {
		messages = messages[len(messages)-historyWindow:]
	}
	hist := make([]string, 0, len(messages))
	for _, m := range messages {
		if m.Content == "" {
			continue
		}
		if m.Role == "assistant" {
			hist = append(hist, "Assistant: "+m.Content)
		} else {
			hist = append(hist, "User: "+m.Content)
		}
	}
	parts = append(parts, strings.Join(hist, "\n"), "\nAssistant:")
	return strings.Join(parts, "\n")
}
