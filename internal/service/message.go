package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/atelierhq/portal-server-go/internal/config"
	apperrors "github.com/atelierhq/portal-server-go/internal/errors"
	"github.com/atelierhq/portal-server-go/internal/model"
	redisclient "github.com/atelierhq/portal-server-go/internal/redis"
	"github.com/atelierhq/portal-server-go/internal/repository"
	"github.com/atelierhq/portal-server-go/internal/sse"
)

// EventPublisher is the slice of the SSE broker the message service needs.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event sse.Event) error
}

// MessageService handles the per-project message log and the read-state
// watermarks that drive unread counts.
//
// Live fan-out happens strictly after the message is committed. A message
// that failed to persist is never announced, and a fan-out failure never
// fails the post; pollers pick the message up on the next list call either
// way.
type MessageService struct {
	messageRepo   repository.MessageRepository
	readStateRepo repository.ReadStateRepository
	broker        EventPublisher
}

func NewMessageService(messageRepo repository.MessageRepository, readStateRepo repository.ReadStateRepository, broker EventPublisher) *MessageService {
	return &MessageService{
		messageRepo:   messageRepo,
		readStateRepo: readStateRepo,
		broker:        broker,
	}
}

// MessagePage is a chronological slice of a project's log plus the total
// count for paging.
type MessagePage struct {
	Messages []model.Message `json:"messages"`
	Total    int             `json:"total"`
	Limit    int             `json:"limit"`
	Offset   int             `json:"offset"`
}

// ListMessages returns one page of the project log in chronological order.
// The offset counts back from the newest message, so offset 0 is always the
// most recent page.
func (s *MessageService) ListMessages(ctx context.Context, projectID string, limit, offset int) (*MessagePage, error) {
	if limit <= 0 || limit > config.MessagePageLimit {
		limit = config.MessagePageLimit
	}
	if offset < 0 {
		offset = 0
	}

	messages, err := s.messageRepo.FindByProjectID(ctx, projectID, limit, offset)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	total, err := s.messageRepo.CountByProjectID(ctx, projectID)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	// Rows come back newest-first for paging; present oldest-first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return &MessagePage{
		Messages: messages,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	}, nil
}

// PostMessage appends a message to the project log and broadcasts it to live
// subscribers after the commit.
func (s *MessageService) PostMessage(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	body := strings.TrimSpace(params.Body)
	if body == "" {
		return nil, apperrors.MissingRequired("body")
	}
	// The cap is in characters, not bytes; multibyte text gets the full
	// length.
	if utf8.RuneCountInString(body) > config.MessageBodyMaxLen {
		return nil, apperrors.InvalidInput("body", "message is too long")
	}
	if !params.AuthorRole.Valid() {
		return nil, apperrors.InvalidInput("authorRole", "unknown author role")
	}
	params.Body = body

	message, err := s.messageRepo.Create(ctx, params)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	go s.fanOut(message)

	return message, nil
}

// MarkRead advances the reader's watermark for the project to now. The
// operation is idempotent; marking an already-read project just moves the
// watermark forward.
func (s *MessageService) MarkRead(ctx context.Context, projectID string, role model.AuthorRole, readerID string) (*model.ReadState, error) {
	state, err := s.readStateRepo.Upsert(ctx, projectID, role, readerID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return state, nil
}

// UnreadCount counts messages authored by the opposite role after the
// reader's watermark. A reader with no watermark has everything from the
// other side unread.
func (s *MessageService) UnreadCount(ctx context.Context, projectID string, role model.AuthorRole, readerID string) (int, error) {
	state, err := s.readStateRepo.Find(ctx, projectID, role, readerID)
	if err != nil {
		return 0, apperrors.Database(err)
	}

	var after time.Time
	if state != nil {
		after = state.LastReadAt
	}

	count, err := s.messageRepo.CountUnread(ctx, projectID, role.Other(), after)
	if err != nil {
		return 0, apperrors.Database(err)
	}
	return count, nil
}

// fanOut publishes the committed message to the project channel, and to the
// operator dashboard channel when a client wrote it. Runs detached from the
// request; errors are logged and dropped.
func (s *MessageService) fanOut(message *model.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	event := sse.Event{Type: "message", Data: message.ToEventData()}

	if err := s.broker.Publish(ctx, redisclient.ProjectChannel(message.ProjectID), event); err != nil {
		log.Warn().Err(err).
			Str("messageId", message.ID).
			Str("projectId", message.ProjectID).
			Msg("failed to publish message event")
	}

	if message.AuthorRole == model.RoleClient {
		if err := s.broker.Publish(ctx, redisclient.OperatorChannel, event); err != nil {
			log.Warn().Err(err).
				Str("messageId", message.ID).
				Msg("failed to publish operator notification")
		}
	}
}
