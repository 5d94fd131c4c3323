// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"pai-dashboard-go/internal/apperror"
	"pai-dashboard-go/internal/model"
	"pai-dashboard-go/internal/repository"
	"pai-dashboard-go/pkg/log"
)

const (
	defaultConversationTitle = "New Conversation"
	defaultUserID            = "anonymous"

	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// MessageIndex 是消息全文索引。由 pkg/es 实现，未配置时为 nil。
type MessageIndex interface {
	IndexMessage(ctx context.Context, doc model.MessageDocument) error
	DeleteConversation(ctx context.Context, conversationID string) error
	SearchMessages(ctx context.Context, query string, limit int) ([]model.SearchHit, error)
}

// TranscriptStore 保存导出的会话记录。由 pkg/storage 实现，未配置时为 nil。
type TranscriptStore interface {
	PutJSON(ctx context.Context, objectName string, v interface{}) error
	PresignedURL(ctx context.Context, objectName string) (string, error)
}

// Transcript 是导出到对象存储的会话内容。
type Transcript struct {
	Conversation model.Conversation `json:"conversation"`
	Messages     []model.Message    `json:"messages"`
	ExportedAt   time.Time          `json:"exportedAt"`
}

// ExportResult 描述一次导出的位置。
type ExportResult struct {
	ObjectName string `json:"objectName"`
	URL        string `json:"url"`
}

// ConversationService 定义了会话与消息的业务逻辑接口。
type ConversationService interface {
	CreateConversation(ctx context.Context, title, userID string) (*model.Conversation, error)
	AppendMessage(ctx context.Context, conversationID, role, content string, processingTime *int64) (*model.Message, error)
	GetConversation(ctx context.Context, id string) (*model.Conversation, []model.Message, error)
	ListConversations(ctx context.Context) ([]model.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	RenameConversation(ctx context.Context, id, title string) error
	SetFeedback(ctx context.Context, messageID string, feedback int) error
	SearchMessages(ctx context.Context, query string, limit int) ([]model.SearchHit, error)
	ExportConversation(ctx context.Context, id string) (*ExportResult, error)
}

type conversationService struct {
	convRepo    repository.ConversationRepository
	messageRepo repository.MessageRepository
	index       MessageIndex
	transcripts TranscriptStore
	now         func() time.Time
}

// NewConversationService 创建一个新的 ConversationService。index 与 transcripts 可以为 nil。
func NewConversationService(
	convRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	index MessageIndex,
	transcripts TranscriptStore,
) ConversationService {
	return &conversationService{
		convRepo:    convRepo,
		messageRepo: messageRepo,
		index:       index,
		transcripts: transcripts,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *conversationService) CreateConversation(ctx context.Context, title, userID string) (*model.Conversation, error) {
	if strings.TrimSpace(title) == "" {
		title = defaultConversationTitle
	}
	if strings.TrimSpace(userID) == "" {
		userID = defaultUserID
	}
	now := s.now()
	conv := &model.Conversation{
		ID:        uuid.NewString(),
		Title:     title,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.convRepo.Create(ctx, conv); err != nil {
		return nil, err
	}
	log.Infow("Conversation created", "conversationId", conv.ID, "userId", userID)
	return conv, nil
}

// AppendMessage 校验角色与内容后写入消息。会话不存在时返回 NOT_FOUND。
func (s *conversationService) AppendMessage(ctx context.Context, conversationID, role, content string, processingTime *int64) (*model.Message, error) {
	if role != model.RoleUser && role != model.RoleAssistant {
		return nil, apperror.Validation("role", "role must be 'user' or 'assistant'")
	}
	if content == "" {
		return nil, apperror.Validation("content", "content is required")
	}

	msg := &model.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Tokens:         model.EstimateTokens(content),
		CreatedAt:      s.now(),
		ProcessingTime: processingTime,
	}
	if err := s.messageRepo.Append(ctx, msg); err != nil {
		return nil, err
	}

	if s.index != nil {
		if err := s.index.IndexMessage(ctx, model.NewMessageDocument(msg)); err != nil {
			log.Warnw("Failed to index message", "messageId", msg.ID, "error", err)
		}
	}
	return msg, nil
}

func (s *conversationService) GetConversation(ctx context.Context, id string) (*model.Conversation, []model.Message, error) {
	conv, err := s.convRepo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	messages, err := s.messageRepo.ListByConversation(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return conv, messages, nil
}

func (s *conversationService) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	return s.convRepo.List(ctx)
}

// DeleteConversation 删除会话及其消息。会话不存在也返回成功。
func (s *conversationService) DeleteConversation(ctx context.Context, id string) error {
	if err := s.convRepo.Delete(ctx, id); err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.DeleteConversation(ctx, id); err != nil {
			log.Warnw("Failed to remove conversation from search index", "conversationId", id, "error", err)
		}
	}
	log.Infow("Conversation deleted", "conversationId", id)
	return nil
}

func (s *conversationService) RenameConversation(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return apperror.Validation("title", "title is required")
	}
	return s.convRepo.UpdateTitle(ctx, id, title)
}

func (s *conversationService) SetFeedback(ctx context.Context, messageID string, feedback int) error {
	if feedback < -1 || feedback > 1 {
		return apperror.Validation("feedback", "feedback must be -1, 0 or 1")
	}
	return s.messageRepo.SetFeedback(ctx, messageID, feedback)
}

// SearchMessages 优先使用全文索引，索引不可用时回退到数据库子串匹配。
func (s *conversationService) SearchMessages(ctx context.Context, query string, limit int) ([]model.SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperror.Validation("q", "query is required")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	if s.index != nil {
		hits, err := s.index.SearchMessages(ctx, query, limit)
		if err == nil {
			return hits, nil
		}
		log.Warnw("Search index query failed, falling back to database", "error", err)
	}
	return s.messageRepo.Search(ctx, query, limit)
}

// ExportConversation 将会话写入对象存储并返回带签名的下载地址。
func (s *conversationService) ExportConversation(ctx context.Context, id string) (*ExportResult, error) {
	if s.transcripts == nil {
		return nil, apperror.Unavailable("object storage is not configured", nil)
	}
	conv, messages, err := s.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	objectName := fmt.Sprintf("conversations/%s/%s.json", conv.ID, now.Format("20060102T150405Z"))
	transcript := Transcript{Conversation: *conv, Messages: messages, ExportedAt: now}
	if err := s.transcripts.PutJSON(ctx, objectName, transcript); err != nil {
		return nil, apperror.Unavailable("failed to write transcript", err)
	}
	url, err := s.transcripts.PresignedURL(ctx, objectName)
	if err != nil {
		return nil, apperror.Unavailable("failed to sign transcript url", err)
	}
	log.Infow("Conversation exported", "conversationId", conv.ID, "object", objectName)
	return &ExportResult{ObjectName: objectName, URL: url}, nil
}
