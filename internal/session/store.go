package session

import (
	"context"
	"time"

	"github.com/terra-clan/coaching-engine/internal/models"
)

// Store keeps sessions for at most their TTL. Implementations are ephemeral.
type Store interface {
	Save(ctx context.Context, s *models.Session, ttl time.Duration) error
	// Load returns nil, nil when the session does not exist
	Load(ctx context.Context, id string) (*models.Session, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.Session, error)
	Ping(ctx context.Context) error
	Close() error
}

// clone deep-copies a session so stored values never alias caller values
func clone(s *models.Session) *models.Session {
	out := *s
	out.Selection = s.Selection.Clone()
	out.Quiz.Answers = s.Quiz.Answers.Clone()
	if s.Quiz.Results != nil {
		out.Quiz.Results = append([]models.Recommendation(nil), s.Quiz.Results...)
	}
	return &out
}
