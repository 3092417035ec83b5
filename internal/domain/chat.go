package domain

// ConversationTurn pairs a visitor message with the canned reply it produced.
// Turns are never persisted.
type ConversationTurn struct {
	ID             string
	ConversationID string
	Message        string
	Reply          string
}
