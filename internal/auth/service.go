package auth

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/lotline-erp/lotline-erp/internal/shared"
)

// Service resolves bearer tokens to actor ids.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Authenticate validates a bearer token of the form "<id>.<secret>" and
// returns the actor id it belongs to. Every failure collapses to
// ErrInvalidCredentials so callers cannot probe which part was wrong.
func (s *Service) Authenticate(ctx context.Context, bearer string) (string, error) {
	id, secret, ok := splitToken(bearer)
	if !ok {
		return "", shared.ErrInvalidCredentials
	}
	token, err := s.repo.GetToken(ctx, id)
	if err != nil {
		return "", shared.ErrInvalidCredentials
	}
	if !token.IsActive {
		return "", shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(token.SecretHash), []byte(secret)); err != nil {
		return "", shared.ErrInvalidCredentials
	}
	if err := s.repo.TouchToken(ctx, token.ID, time.Now()); err != nil {
		s.logger.Warn("touch token", slog.Int64("token_id", token.ID), slog.Any("error", err))
	}
	return token.ActorID, nil
}

func splitToken(bearer string) (int64, string, bool) {
	idPart, secret, found := strings.Cut(bearer, ".")
	if !found || secret == "" {
		return 0, "", false
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", false
	}
	return id, secret, true
}
