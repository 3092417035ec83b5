// Package responder picks a canned chat reply for a visitor message.
//
// Matching is case-insensitive substring containment against an ordered rule
// table. The first rule with a matching keyword wins, so a message that hits
// several categories always gets the earliest one. Substring matching means
// "hi" also matches inside "this" or "shipping"; that imprecision is kept.
package responder

import "strings"

// Category names a reply rule.
type Category string

const (
	CategoryProducts    Category = "products"
	CategoryIntegration Category = "integration"
	CategorySales       Category = "sales"
	CategoryPricing     Category = "pricing"
	CategorySecurity    Category = "security"
	CategoryGreeting    Category = "greeting"
	CategoryGratitude   Category = "gratitude"
	CategoryDefault     Category = "default"
)

// ReplyRule maps a set of lower-case keywords to a reply.
type ReplyRule struct {
	Category Category
	Keywords []string
	Reply    string
}

func (r ReplyRule) matches(lower string) bool {
	for _, kw := range r.Keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

const (
	ReplyProducts    = "We offer four main products: NeoX Collection for payments, NeoX Payout for bulk transfers, NeoX Control for virtual cards, and Payment Gateway for seamless integrations. Which one interests you most?"
	ReplyIntegration = "Our documentation at docs.neox.vn has comprehensive guides for integration. Would you like me to connect you with our technical team for personalized assistance?"
	ReplySales       = "I'd be happy to connect you with our sales team! Please provide your email and we'll reach out within 24 hours. You can also contact us directly through our contact form."
	ReplyPricing     = "Our pricing varies based on transaction volume and specific needs. I recommend speaking with our sales team to get a custom quote that fits your business. Shall I arrange a call?"
	ReplySecurity    = "Security is our top priority! We're PCI DSS certified, licensed by the State Bank of Vietnam, and follow strict AML & KYC procedures. All transactions are encrypted and monitored 24/7."
	ReplyGreeting    = "Hello! 👋 Welcome to NeoX. How can I assist you with our payment solutions today?"
	ReplyGratitude   = "You're welcome! Is there anything else I can help you with?"
	ReplyDefault     = "Thanks for your message! For specific questions, I recommend checking our documentation or speaking with our support team. Would you like me to connect you with a specialist?"
)

// rules is evaluated top to bottom. Order is part of the contract.
var rules = []ReplyRule{
	{Category: CategoryProducts, Keywords: []string{"product", "collection", "payout", "control", "gateway"}, Reply: ReplyProducts},
	{Category: CategoryIntegration, Keywords: []string{"integration", "api", "help", "setup"}, Reply: ReplyIntegration},
	{Category: CategorySales, Keywords: []string{"sales", "contact", "demo"}, Reply: ReplySales},
	{Category: CategoryPricing, Keywords: []string{"pricing", "cost", "fee"}, Reply: ReplyPricing},
	{Category: CategorySecurity, Keywords: []string{"security", "compliance", "safe"}, Reply: ReplySecurity},
	{Category: CategoryGreeting, Keywords: []string{"hi", "hello", "hey"}, Reply: ReplyGreeting},
	{Category: CategoryGratitude, Keywords: []string{"thank"}, Reply: ReplyGratitude},
}

// Rules returns a deep copy of the ordered rule table.
func Rules() []ReplyRule {
	out := make([]ReplyRule, len(rules))
	for i, r := range rules {
		r.Keywords = append([]string(nil), r.Keywords...)
		out[i] = r
	}
	return out
}

// Respond returns the reply for message. It is total: unmatched input,
// including the empty string, gets ReplyDefault.
func Respond(message string) string {
	_, reply := Classify(message)
	return reply
}

// Classify is Respond plus the category that produced the reply.
func Classify(message string) (Category, string) {
	lower := strings.ToLower(message)
	for _, r := range rules {
		if r.matches(lower) {
			return r.Category, r.Reply
		}
	}
	return CategoryDefault, ReplyDefault
}

// QuickReply is a predefined prompt the widget offers as a button.
type QuickReply struct {
	Label   string `json:"label"`
	Message string `json:"message"`
}

var quickReplies = []QuickReply{
	{Label: "Products", Message: "Tell me about your products"},
	{Label: "Integration", Message: "I need integration support"},
	{Label: "Talk to sales", Message: "I'd like to book a demo"},
	{Label: "Pricing", Message: "What is your pricing?"},
}

// QuickReplies returns the widget's predefined prompts.
func QuickReplies() []QuickReply {
	out := make([]QuickReply, len(quickReplies))
	copy(out, quickReplies)
	return out
}
