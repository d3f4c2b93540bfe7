package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	dbmodel "llamsh/internal/db"

	"llamsh/internal/agent"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionInfo is a row in the `sessions` listing.
type SessionInfo struct {
	ID           string
	Title        string
	Model        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int64
}

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(gdb *gorm.DB) (*Store, error) {
	if gdb == nil {
		return nil, errors.New("db is required")
	}
	return &Store{db: gdb, now: time.Now}, nil
}

// CreateSession registers a new conversation and returns its id.
func (s *Store) CreateSession(model string) (string, error) {
	if s == nil || s.db == nil {
		return "", errors.New("store is not initialized")
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	now := s.now().UTC().Unix()
	row := dbmodel.Session{
		ID:        id,
		Model:     strings.TrimSpace(model),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

// SaveMessages persists messages[fromIndex:] in order. The first user
// message becomes the session title if none is set yet.
func (s *Store) SaveMessages(sessionID string, messages []agent.Message, fromIndex int) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if fromIndex < 0 || fromIndex > len(messages) {
		return fmt.Errorf("save index %d out of range (have %d messages)", fromIndex, len(messages))
	}
	pending := messages[fromIndex:]
	if len(pending) == 0 {
		return nil
	}
	now := s.now().UTC().Unix()
	rows := make([]dbmodel.Message, 0, len(pending))
	title := ""
	for _, msg := range pending {
		toolCalls := ""
		if len(msg.ToolCalls) > 0 {
			raw, err := json.Marshal(msg.ToolCalls)
			if err != nil {
				return fmt.Errorf("marshal tool calls: %w", err)
			}
			toolCalls = string(raw)
		}
		rows = append(rows, dbmodel.Message{
			SessionID:  sessionID,
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCalls:  toolCalls,
			ToolCallID: msg.ToolCallID,
			CreatedAt:  now,
		})
		if title == "" && msg.Role == "user" && strings.TrimSpace(msg.Content) != "" {
			title = clipTitle(msg.Content)
		}
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rows).Error; err != nil {
			return err
		}
		updates := map[string]any{"updated_at": now}
		if err := tx.Model(&dbmodel.Session{}).Where("id = ?", sessionID).Updates(updates).Error; err != nil {
			return err
		}
		if title != "" {
			if err := tx.Model(&dbmodel.Session{}).
				Where("id = ? AND title = ''", sessionID).
				Update("title", title).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadSession returns the full ordered message list for a session.
func (s *Store) LoadSession(sessionID string) ([]agent.Message, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	var rows []dbmodel.Message
	if err := s.db.Where("session_id = ?", sessionID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	out := make([]agent.Message, 0, len(rows))
	for _, row := range rows {
		msg := agent.Message{
			Role:       row.Role,
			Content:    row.Content,
			ToolCallID: row.ToolCallID,
		}
		if strings.TrimSpace(row.ToolCalls) != "" {
			if err := json.Unmarshal([]byte(row.ToolCalls), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("decode tool calls for message %d: %w", row.ID, err)
			}
		}
		out = append(out, msg)
	}
	return out, nil
}

// LatestSessionID returns the most recently updated session id, or "".
func (s *Store) LatestSessionID() (string, error) {
	if s == nil || s.db == nil {
		return "", errors.New("store is not initialized")
	}
	var row dbmodel.Session
	err := s.db.Order("updated_at DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return row.ID, nil
}

func (s *Store) ListSessions(limit int) ([]SessionInfo, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	if limit <= 0 {
		limit = 20
	}
	var rows []dbmodel.Session
	if err := s.db.Order("updated_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]SessionInfo, 0, len(rows))
	for _, row := range rows {
		var count int64
		if err := s.db.Model(&dbmodel.Message{}).
			Where("session_id = ? AND role != 'system'", row.ID).
			Count(&count).Error; err != nil {
			return nil, err
		}
		title := row.Title
		if title == "" {
			title = "(untitled)"
		}
		out = append(out, SessionInfo{
			ID:           row.ID,
			Title:        title,
			Model:        row.Model,
			CreatedAt:    time.Unix(row.CreatedAt, 0).UTC(),
			UpdatedAt:    time.Unix(row.UpdatedAt, 0).UTC(),
			MessageCount: count,
		})
	}
	return out, nil
}

func clipTitle(content string) string {
	content = strings.TrimSpace(content)
	if len(content) > 80 {
		return content[:80]
	}
	return content
}
