package persistence

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"github.com/petrijr/orchestra/pkg/api"
)

// EncodeMetadata serializes session metadata as JSON. A nil or empty map
// encodes to nil so stores can keep the column empty.
func EncodeMetadata(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := sonic.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return data, nil
}

// DecodeMetadata is the inverse of EncodeMetadata. Numbers come back as
// float64, the same as any JSON round trip.
func DecodeMetadata(data []byte) (map[string]any, error) {
	out := make(map[string]any)
	if len(data) == 0 {
		return out, nil
	}
	if err := sonic.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return out, nil
}

// sessionPayload is the self-contained encoding used by key-value backends.
type sessionPayload struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Status      string         `json:"status"`
	CreatedAt   int64          `json:"created_at"`
	UpdatedAt   int64          `json:"updated_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func encodeSession(s *api.Session) ([]byte, error) {
	return sonic.Marshal(sessionPayload{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		Status:      string(s.Status),
		CreatedAt:   s.CreatedAt.UnixNano(),
		UpdatedAt:   s.UpdatedAt.UnixNano(),
		Metadata:    s.Metadata,
	})
}

func decodeSession(data []byte) (*api.Session, error) {
	var p sessionPayload
	if err := sonic.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	s := api.NewSession(p.ID)
	s.Name = p.Name
	s.Description = p.Description
	if p.Status != "" {
		s.Status = api.SessionStatus(p.Status)
	}
	s.CreatedAt = fromUnixNano(p.CreatedAt)
	s.UpdatedAt = fromUnixNano(p.UpdatedAt)
	if p.Metadata != nil {
		s.Metadata = p.Metadata
	}
	return s, nil
}

type projectPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	SessionID   string `json:"session_id,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}

func encodeProject(p *api.Project) ([]byte, error) {
	return sonic.Marshal(projectPayload{
		Name:        p.Name,
		Description: p.Description,
		SessionID:   p.SessionID,
		CreatedAt:   p.CreatedAt.UnixNano(),
	})
}

func decodeProject(data []byte) (*api.Project, error) {
	var p projectPayload
	if err := sonic.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode project: %w", err)
	}
	return &api.Project{
		Name:        p.Name,
		Description: p.Description,
		SessionID:   p.SessionID,
		CreatedAt:   fromUnixNano(p.CreatedAt),
	}, nil
}

// Timestamps are stored as UTC nanoseconds so every backend orders and
// compares them the same way.
func fromUnixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
