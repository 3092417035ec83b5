package usecase

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"neox-site/internal/domain"
	"neox-site/internal/responder"
)

const defaultMaxMessage = 500

type ChatInput struct {
	Message        string
	ConversationID string
}

// ChatService validates widget input and answers it with a canned reply.
// It holds no conversation state.
type ChatService struct {
	maxMessageLen int
	respond       func(string) string
}

func NewChatService(maxMessageLen int) *ChatService {
	if maxMessageLen <= 0 {
		maxMessageLen = defaultMaxMessage
	}
	return &ChatService{
		maxMessageLen: maxMessageLen,
		respond:       responder.Respond,
	}
}

func (s *ChatService) Chat(_ context.Context, in ChatInput) (domain.ConversationTurn, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return domain.ConversationTurn{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if utf8.RuneCountInString(message) > s.maxMessageLen {
		return domain.ConversationTurn{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}

	convID := strings.TrimSpace(in.ConversationID)
	if convID == "" {
		convID = newUUID()
	}
	return domain.ConversationTurn{
		ID:             newUUID(),
		ConversationID: convID,
		Message:        message,
		Reply:          s.respond(message),
	}, nil
}

// QuickReplies lists the prompts the widget renders as buttons.
func (s *ChatService) QuickReplies() []responder.QuickReply {
	return responder.QuickReplies()
}

var newUUID = func() string {
	return uuid.NewString()
}
