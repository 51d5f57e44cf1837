package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/workbridge-io/workbridge/core/registry"
	"github.com/workbridge-io/workbridge/core/workflow"
)

// Connection is a stored credential record for one org-scoped
// integration connection. Data is stored as-is; encryption at rest is
// handled outside this service.
type Connection struct {
	ID        string         `json:"id"`
	OrgID     string         `json:"org_id"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Service persists connections in Redis and resolves them for step
// execution. Implements workflow.CredentialResolver.
type Service struct {
	client redis.UniversalClient
}

func New(client redis.UniversalClient) *Service {
	return &Service{client: client}
}

// Save stores/overwrites a connection record.
func (s *Service) Save(ctx context.Context, conn *Connection) error {
	if conn == nil || conn.ID == "" || conn.OrgID == "" {
		return fmt.Errorf("connection id and org id required")
	}
	conn.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(conn)
	if err != nil {
		return fmt.Errorf("marshal connection: %w", err)
	}
	return s.client.Set(ctx, connKey(conn.OrgID, conn.ID), payload, 0).Err()
}

// Delete removes a connection record.
func (s *Service) Delete(ctx context.Context, orgID, connectionID string) error {
	return s.client.Del(ctx, connKey(orgID, connectionID)).Err()
}

// Resolve returns the credentials for a step's connection reference.
// Missing connections fail with workflow.ErrConnectionNotFound; expired
// ones with workflow.ErrConnectionExpired.
func (s *Service) Resolve(ctx context.Context, orgID, connectionID string) (*registry.Credentials, error) {
	if connectionID == "" {
		return nil, fmt.Errorf("%w: empty connection id", workflow.ErrConnectionNotFound)
	}
	data, err := s.client.Get(ctx, connKey(orgID, connectionID)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", workflow.ErrConnectionNotFound, connectionID)
	}
	if err != nil {
		return nil, err
	}
	var conn Connection
	if err := json.Unmarshal(data, &conn); err != nil {
		return nil, fmt.Errorf("unmarshal connection %s: %w", connectionID, err)
	}
	if conn.ExpiresAt != nil && conn.ExpiresAt.Before(time.Now()) {
		return nil, fmt.Errorf("%w: %s", workflow.ErrConnectionExpired, connectionID)
	}
	return &registry.Credentials{Type: conn.Type, Data: conn.Data}, nil
}

func connKey(orgID, connectionID string) string {
	return "cred:" + orgID + ":" + connectionID
}
