package drop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"darkdrop/internal/model"
)

const (
	sessionTokenBytes = 32
	apiKeyBytes       = 32
)

// Credentials are the raw secrets presented with a request.
type Credentials struct {
	BearerToken string
	APIKey      string
}

// Authenticate resolves credentials to an identity. A bearer token takes
// precedence; the API key is only consulted when no token is present.
func (s *DropService) Authenticate(ctx context.Context, creds Credentials) (model.Identity, error) {
	switch {
	case creds.BearerToken != "":
		return s.authenticateSession(ctx, creds.BearerToken)
	case creds.APIKey != "":
		return s.authenticateAgent(ctx, creds.APIKey)
	default:
		return model.Identity{}, fmt.Errorf("%w: no credentials provided", ErrUnauthenticated)
	}
}

func (s *DropService) authenticateSession(ctx context.Context, token string) (model.Identity, error) {
	session, user, err := s.database.GetSessionByToken(ctx, token)
	if err != nil {
		return model.Identity{}, storeErr("finding session", err)
	}
	if session == nil || user == nil {
		return model.Identity{}, fmt.Errorf("%w: invalid session token", ErrUnauthenticated)
	}
	if !session.ExpiresAt.After(s.clock.Now()) {
		return model.Identity{}, fmt.Errorf("%w: invalid session token", ErrUnauthenticated)
	}
	return model.UserIdentity(user.ID, user.Name), nil
}

func (s *DropService) authenticateAgent(ctx context.Context, apiKey string) (model.Identity, error) {
	agent, err := s.database.GetAgentByAPIKey(ctx, apiKey)
	if err != nil {
		return model.Identity{}, storeErr("finding agent", err)
	}
	if agent == nil || agent.Status != model.AgentActive {
		return model.Identity{}, fmt.Errorf("%w: invalid api key", ErrUnauthenticated)
	}

	if err := s.database.UpdateAgentUsage(ctx, agent.ID, s.clock.Now()); err != nil {
		s.logger.Warn("failed to record agent usage", "agent", agent.ID, "error", err)
	}
	return model.AgentIdentity(agent.ID, agent.Name), nil
}

// Register creates a user with a bcrypt-hashed password.
func (s *DropService) Register(ctx context.Context, email, password, name string) (*model.User, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if email == "" || password == "" || name == "" {
		return nil, validationErr("email, password and name are required")
	}
	if !strings.Contains(email, "@") {
		return nil, validationErr("invalid email %q", email)
	}

	existing, err := s.database.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, storeErr("checking for existing user", err)
	}
	if existing != nil {
		return nil, validationErr("user %s already exists", email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, validationErr("password is too long")
		}
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &model.User{
		ID:           s.idgen.New(),
		Email:        email,
		PasswordHash: string(hash),
		Name:         name,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.database.CreateUser(ctx, user); err != nil {
		return nil, storeErr("creating user", err)
	}

	s.logger.Info("user registered", "user", user.ID)
	return user, nil
}

// LoginResult is a freshly issued session.
type LoginResult struct {
	Token       string
	ExpiresAt   time.Time
	User        *model.User
	Memberships []*model.Membership
}

// Login verifies a password and issues a session token.
// Unknown emails and wrong passwords fail identically.
func (s *DropService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, validationErr("email and password are required")
	}

	user, err := s.database.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, storeErr("finding user", err)
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, fmt.Errorf("%w: invalid email or password", ErrUnauthenticated)
	}

	token, err := newSecret(sessionTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generating session token: %w", err)
	}
	now := s.clock.Now()
	session := &model.Session{
		ID:        s.idgen.New(),
		UserID:    user.ID,
		Token:     token,
		ExpiresAt: now.Add(s.opts.SessionTTL),
		CreatedAt: now,
	}
	if err := s.database.CreateSession(ctx, session); err != nil {
		return nil, storeErr("creating session", err)
	}

	if err := s.database.UpdateUserLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to record login time", "user", user.ID, "error", err)
	} else {
		user.LastLogin = &now
	}

	memberships, err := s.database.ListMemberships(ctx, model.UserIdentity(user.ID, user.Name))
	if err != nil {
		return nil, storeErr("listing memberships", err)
	}

	s.logger.Info("user logged in", "user", user.ID)
	return &LoginResult{
		Token:       token,
		ExpiresAt:   session.ExpiresAt,
		User:        user,
		Memberships: memberships,
	}, nil
}

// Logout deletes the session. Unknown tokens are not an error.
func (s *DropService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("%w: no session token", ErrUnauthenticated)
	}
	if err := s.database.DeleteSession(ctx, token); err != nil {
		return storeErr("deleting session", err)
	}
	return nil
}

// ListAccounts returns the active accounts the identity can access.
func (s *DropService) ListAccounts(ctx context.Context, identity model.Identity) ([]*model.Membership, error) {
	if !identity.Valid() {
		return nil, fmt.Errorf("listing accounts: %w", ErrUnauthenticated)
	}
	memberships, err := s.database.ListMemberships(ctx, identity)
	if err != nil {
		return nil, storeErr("listing memberships", err)
	}
	return memberships, nil
}

// SweepSessions deletes every session that has expired by now.
func (s *DropService) SweepSessions(ctx context.Context) (int64, error) {
	n, err := s.database.DeleteExpiredSessions(ctx, s.clock.Now())
	if err != nil {
		return 0, storeErr("deleting expired sessions", err)
	}
	return n, nil
}
