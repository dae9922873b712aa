package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"relo/internal/apperr"
)

// TokenIssuer is implemented by auth.TokenService.
type TokenIssuer interface {
	IssueAccess(userID string) (string, error)
	IssueRefresh(userID string) (string, error)
	ValidateRefresh(token string) (string, error)
}

type Service struct {
	repo   Store
	tokens TokenIssuer
	cost   int
}

func NewService(repo Store, tokens TokenIssuer) *Service {
	return &Service{
		repo:   repo,
		tokens: tokens,
		cost:   bcrypt.DefaultCost,
	}
}

// WithBcryptCost overrides the hashing cost; tests use bcrypt.MinCost.
func (s *Service) WithBcryptCost(cost int) *Service {
	s.cost = cost
	return s
}

func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*Profile, error) {
	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, apperr.Internal("hash password", err)
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = req.Username
	}
	u := &User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: string(hashedPwd),
		DisplayName:  displayName,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.CreateUser(ctx, u); err != nil {
		if errors.Is(err, ErrTaken) {
			return nil, apperr.Validation("username already taken", err)
		}
		return nil, err
	}
	return u.Profile(), nil
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	u, err := s.repo.GetUserByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.Unauthorized("invalid credentials", err)
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, apperr.Unauthorized("invalid credentials", err)
	}
	return s.issuePair(u)
}

// Refresh trades a refresh token for a new token pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*LoginResponse, error) {
	userID, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, apperr.Unauthorized("invalid refresh token", err)
	}
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.Unauthorized("invalid refresh token", err)
		}
		return nil, err
	}
	return s.issuePair(u)
}

func (s *Service) issuePair(u *User) (*LoginResponse, error) {
	access, err := s.tokens.IssueAccess(u.ID)
	if err != nil {
		return nil, apperr.Internal("issue token", err)
	}
	refresh, err := s.tokens.IssueRefresh(u.ID)
	if err != nil {
		return nil, apperr.Internal("issue token", err)
	}
	return &LoginResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ID:           u.ID,
		Username:     u.Username,
	}, nil
}

// Resolve loads the profile a Ref points at.
func (s *Service) Resolve(ctx context.Context, ref Ref) (*Profile, error) {
	u, err := s.repo.GetUserByID(ctx, ref.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("user", err)
		}
		return nil, err
	}
	return u.Profile(), nil
}

// ResolveMany returns the profiles of ids keyed by id. Unknown ids are
// absent from the map.
func (s *Service) ResolveMany(ctx context.Context, ids []string) (map[string]*Profile, error) {
	users, err := s.repo.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*Profile, len(users))
	for _, u := range users {
		out[u.ID] = u.Profile()
	}
	return out, nil
}

func (s *Service) SearchUsers(ctx context.Context, query string) ([]*Profile, error) {
	users, err := s.repo.SearchUsers(ctx, strings.TrimSpace(query), 10)
	if err != nil {
		return nil, err
	}
	out := make([]*Profile, 0, len(users))
	for _, u := range users {
		out = append(out, u.Profile())
	}
	return out, nil
}
