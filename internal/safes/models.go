package safes

import (
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophsafe/internal/common"
	"github.com/google/uuid"
)

var ErrDuplicateNickname = errors.New("nickname already registered")

// Safe is one registered database file.
type Safe struct {
	ID               string
	Nickname         string
	Path             string
	Format           string
	LastSelectedItem string
	CreatedAt        time.Time
	LastOpenedAt     time.Time
}

// normalize fills the id and creation time and validates the required fields.
func (s *Safe) normalize(now time.Time) error {
	s.Nickname = strings.TrimSpace(s.Nickname)
	if s.Nickname == "" || s.Path == "" {
		return common.ErrorValidation
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	return nil
}
