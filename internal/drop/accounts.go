package drop

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"darkdrop/internal/model"
)

var accountIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// AccountRequest describes a new tenant.
type AccountRequest struct {
	ID                string
	Name              string
	Domain            string
	StorageQuota      int64
	EncryptionEnabled bool
}

// CreateAccount provisions a tenant. Used by the CLI; no identity is involved.
func (s *DropService) CreateAccount(ctx context.Context, req AccountRequest) (*model.Account, error) {
	req.ID = strings.TrimSpace(req.ID)
	req.Name = strings.TrimSpace(req.Name)
	if !accountIDPattern.MatchString(req.ID) {
		return nil, validationErr("invalid account id %q", req.ID)
	}
	if req.Name == "" {
		return nil, validationErr("account name is required")
	}
	if req.StorageQuota < 0 {
		return nil, validationErr("storage quota must not be negative")
	}

	existing, err := s.database.GetAccount(ctx, req.ID)
	if err != nil {
		return nil, storeErr("checking for existing account", err)
	}
	if existing != nil {
		return nil, validationErr("account %s already exists", req.ID)
	}

	account := &model.Account{
		ID:                req.ID,
		Name:              req.Name,
		Domain:            strings.TrimSpace(req.Domain),
		Status:            model.AccountActive,
		StorageQuota:      req.StorageQuota,
		EncryptionEnabled: req.EncryptionEnabled,
		CreatedAt:         s.clock.Now(),
	}
	if err := s.database.CreateAccount(ctx, account); err != nil {
		return nil, storeErr("creating account", err)
	}

	s.logger.Info("account created", "account", account.ID)
	return account, nil
}

// GetAccount returns the account if the actor can read it.
func (s *DropService) GetAccount(ctx context.Context, actor Actor, accountID string) (*model.Account, error) {
	if err := s.require(ctx, actor, accountID, model.RoleRead); err != nil {
		return nil, err
	}
	account, err := s.database.GetAccount(ctx, accountID)
	if err != nil {
		return nil, storeErr("finding account", err)
	}
	if account == nil {
		return nil, notFoundErr("account %s", accountID)
	}
	return account, nil
}

// AllAccounts lists every tenant regardless of status. For operators only.
func (s *DropService) AllAccounts(ctx context.Context) ([]*model.Account, error) {
	accounts, err := s.database.ListAccounts(ctx)
	if err != nil {
		return nil, storeErr("listing accounts", err)
	}
	return accounts, nil
}

// SetAccountEncryption toggles encryption at rest for future uploads.
// Existing files keep the form they were stored in.
func (s *DropService) SetAccountEncryption(ctx context.Context, accountID string, enabled bool) (*model.Account, error) {
	return s.updateAccount(ctx, accountID, func(a *model.Account) error {
		a.EncryptionEnabled = enabled
		return nil
	})
}

// SetAccountStatus suspends or reactivates an account.
func (s *DropService) SetAccountStatus(ctx context.Context, accountID string, status model.AccountStatus) (*model.Account, error) {
	return s.updateAccount(ctx, accountID, func(a *model.Account) error {
		if status != model.AccountActive && status != model.AccountSuspended {
			return validationErr("unknown account status %q", status)
		}
		a.Status = status
		return nil
	})
}

// SetAccountQuota changes the storage quota. 0 removes the limit.
func (s *DropService) SetAccountQuota(ctx context.Context, accountID string, quota int64) (*model.Account, error) {
	return s.updateAccount(ctx, accountID, func(a *model.Account) error {
		if quota < 0 {
			return validationErr("storage quota must not be negative")
		}
		a.StorageQuota = quota
		return nil
	})
}

func (s *DropService) updateAccount(ctx context.Context, accountID string, mutate func(*model.Account) error) (*model.Account, error) {
	account, err := s.database.GetAccount(ctx, accountID)
	if err != nil {
		return nil, storeErr("finding account", err)
	}
	if account == nil {
		return nil, notFoundErr("account %s", accountID)
	}
	if err := mutate(account); err != nil {
		return nil, err
	}
	if err := s.database.UpdateAccount(ctx, account); err != nil {
		return nil, storeErr("updating account", err)
	}
	s.logger.Info("account updated", "account", account.ID, "status", account.Status, "encryption", account.EncryptionEnabled)
	return account, nil
}

// UserByEmail finds a user for operator commands. Email matching is
// case-insensitive.
func (s *DropService) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, validationErr("email is required")
	}
	user, err := s.database.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, storeErr("finding user", err)
	}
	if user == nil {
		return nil, notFoundErr("user %s", email)
	}
	return user, nil
}

// CreateAgent provisions a machine identity with a fresh API key.
// The key is only ever returned here.
func (s *DropService) CreateAgent(ctx context.Context, name string) (*model.Agent, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationErr("agent name is required")
	}
	key, err := newSecret(apiKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("generating api key: %w", err)
	}

	agent := &model.Agent{
		ID:        s.idgen.New(),
		Name:      name,
		APIKey:    key,
		Status:    model.AgentActive,
		CreatedAt: s.clock.Now(),
	}
	if err := s.database.CreateAgent(ctx, agent); err != nil {
		return nil, storeErr("creating agent", err)
	}

	s.logger.Info("agent created", "agent", agent.ID)
	return agent, nil
}

// RevokeAgent stops an agent's API key from authenticating.
func (s *DropService) RevokeAgent(ctx context.Context, agentID string) error {
	agent, err := s.database.GetAgentByID(ctx, agentID)
	if err != nil {
		return storeErr("finding agent", err)
	}
	if agent == nil {
		return notFoundErr("agent %s", agentID)
	}
	if err := s.database.UpdateAgentStatus(ctx, agentID, model.AgentRevoked); err != nil {
		return storeErr("revoking agent", err)
	}
	s.logger.Info("agent revoked", "agent", agentID)
	return nil
}

// GrantPermission gives identity the role on the account, replacing any
// role it already held there.
func (s *DropService) GrantPermission(ctx context.Context, accountID string, identity model.Identity, role model.Role) (*model.Permission, error) {
	if !identity.Valid() {
		return nil, validationErr("invalid identity %q", identity)
	}
	if role.Rank() == 0 {
		return nil, validationErr("unknown role %q", role)
	}

	account, err := s.database.GetAccount(ctx, accountID)
	if err != nil {
		return nil, storeErr("finding account", err)
	}
	if account == nil {
		return nil, notFoundErr("account %s", accountID)
	}

	switch identity.Kind {
	case model.IdentityUser:
		user, err := s.database.GetUserByID(ctx, identity.ID)
		if err != nil {
			return nil, storeErr("finding user", err)
		}
		if user == nil {
			return nil, notFoundErr("user %s", identity.ID)
		}
		identity.Name = user.Name
	case model.IdentityAgent:
		agent, err := s.database.GetAgentByID(ctx, identity.ID)
		if err != nil {
			return nil, storeErr("finding agent", err)
		}
		if agent == nil {
			return nil, notFoundErr("agent %s", identity.ID)
		}
		identity.Name = agent.Name
	}

	permission := &model.Permission{
		ID:        s.idgen.New(),
		AccountID: accountID,
		Identity:  identity,
		Role:      role,
		CreatedAt: s.clock.Now(),
	}
	if err := s.database.GrantPermission(ctx, permission); err != nil {
		return nil, storeErr("granting permission", err)
	}

	s.logger.Info("permission granted", "account", accountID, "identity", identity.String(), "role", role)
	return permission, nil
}
