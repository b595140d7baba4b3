package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"darkdrop/internal/model"
)

const accountColumns = `id, name, domain, status, storage_used, storage_quota, encryption_enabled, created_at`

func scanAccount(row scanner) (*model.Account, error) {
	var a model.Account
	var status string
	if err := row.Scan(&a.ID, &a.Name, &a.Domain, &status, &a.StorageUsed, &a.StorageQuota, &a.EncryptionEnabled, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Status = model.AccountStatus(status)
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

// Account operations

func (s *SQLiteDatabase) CreateAccount(ctx context.Context, account *model.Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID, account.Name, account.Domain, string(account.Status), account.StorageUsed,
		account.StorageQuota, account.EncryptionEnabled, utc(account.CreatedAt))
	if err != nil {
		return constraintErr("creating account", err)
	}
	return nil
}

func (s *SQLiteDatabase) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	return getAccount(ctx, s.db, id)
}

func getAccount(ctx context.Context, q dbtx, id string) (*model.Account, error) {
	row := q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding account: %w", err)
	}
	return account, nil
}

func (s *SQLiteDatabase) ListAccounts(ctx context.Context) ([]*model.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*model.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (s *SQLiteDatabase) UpdateAccount(ctx context.Context, account *model.Account) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET name = ?, domain = ?, status = ?, storage_quota = ?, encryption_enabled = ? WHERE id = ?`,
		account.Name, account.Domain, string(account.Status), account.StorageQuota, account.EncryptionEnabled, account.ID)
	if err != nil {
		return fmt.Errorf("updating account: %w", err)
	}
	return expectOne(res, "account "+account.ID)
}

// User operations

const userColumns = `id, email, password_hash, name, created_at, last_login`

func scanUser(row scanner) (*model.User, error) {
	var u model.User
	var lastLogin sql.NullTime
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.CreatedAt, &lastLogin); err != nil {
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.LastLogin = timePtr(lastLogin)
	return &u, nil
}

func (s *SQLiteDatabase) CreateUser(ctx context.Context, user *model.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.PasswordHash, user.Name, utc(user.CreatedAt), nullTime(user.LastLogin))
	if err != nil {
		return constraintErr("creating user", err)
	}
	return nil
}

func (s *SQLiteDatabase) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return s.getUser(ctx, `id = ?`, id)
}

func (s *SQLiteDatabase) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.getUser(ctx, `email = ? COLLATE NOCASE`, email)
}

func (s *SQLiteDatabase) getUser(ctx context.Context, where string, arg any) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding user: %w", err)
	}
	return user, nil
}

func (s *SQLiteDatabase) UpdateUserLogin(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET last_login = ? WHERE id = ?`, utc(at), id)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return expectOne(res, "user "+id)
}

// Agent operations

const agentColumns = `id, name, api_key, status, created_at, last_used`

func scanAgent(row scanner) (*model.Agent, error) {
	var a model.Agent
	var status string
	var lastUsed sql.NullTime
	if err := row.Scan(&a.ID, &a.Name, &a.APIKey, &status, &a.CreatedAt, &lastUsed); err != nil {
		return nil, err
	}
	a.Status = model.AgentStatus(status)
	a.CreatedAt = a.CreatedAt.UTC()
	a.LastUsed = timePtr(lastUsed)
	return &a, nil
}

func (s *SQLiteDatabase) CreateAgent(ctx context.Context, agent *model.Agent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (`+agentColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		agent.ID, agent.Name, agent.APIKey, string(agent.Status), utc(agent.CreatedAt), nullTime(agent.LastUsed))
	if err != nil {
		return constraintErr("creating agent", err)
	}
	return nil
}

func (s *SQLiteDatabase) GetAgentByID(ctx context.Context, id string) (*model.Agent, error) {
	return s.getAgent(ctx, `id = ?`, id)
}

func (s *SQLiteDatabase) GetAgentByAPIKey(ctx context.Context, apiKey string) (*model.Agent, error) {
	return s.getAgent(ctx, `api_key = ?`, apiKey)
}

func (s *SQLiteDatabase) getAgent(ctx context.Context, where string, arg any) (*model.Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE `+where, arg)
	agent, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding agent: %w", err)
	}
	return agent, nil
}

func (s *SQLiteDatabase) UpdateAgentUsage(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE agents SET last_used = ? WHERE id = ?`, utc(at), id)
	if err != nil {
		return fmt.Errorf("updating agent usage: %w", err)
	}
	return expectOne(res, "agent "+id)
}

func (s *SQLiteDatabase) UpdateAgentStatus(ctx context.Context, id string, status model.AgentStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE agents SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("updating agent status: %w", err)
	}
	return expectOne(res, "agent "+id)
}

// Permission operations

// identityColumn returns the permissions column holding the identity's id.
func identityColumn(kind model.IdentityKind) (string, error) {
	switch kind {
	case model.IdentityUser:
		return "user_id", nil
	case model.IdentityAgent:
		return "agent_id", nil
	default:
		return "", fmt.Errorf("unknown identity kind %q", kind)
	}
}

func (s *SQLiteDatabase) GrantPermission(ctx context.Context, permission *model.Permission) error {
	col, err := identityColumn(permission.Identity.Kind)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO permissions (id, account_id, `+col+`, role, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (account_id, `+col+`) DO UPDATE SET role = excluded.role`,
		permission.ID, permission.AccountID, permission.Identity.ID, string(permission.Role), utc(permission.CreatedAt))
	if err != nil {
		return fmt.Errorf("granting permission: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) GetRole(ctx context.Context, accountID string, identity model.Identity) (model.Role, bool, error) {
	col, err := identityColumn(identity.Kind)
	if err != nil {
		return "", false, err
	}
	var role string
	err = s.db.QueryRowContext(ctx,
		`SELECT p.role FROM permissions p
		 JOIN accounts a ON a.id = p.account_id
		 WHERE p.account_id = ? AND p.`+col+` = ? AND a.status = 'active'`,
		accountID, identity.ID).Scan(&role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("finding permission: %w", err)
	}
	return model.Role(role), true, nil
}

func (s *SQLiteDatabase) ListMemberships(ctx context.Context, identity model.Identity) ([]*model.Membership, error) {
	col, err := identityColumn(identity.Kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.name, a.domain, p.role FROM permissions p
		 JOIN accounts a ON a.id = p.account_id
		 WHERE p.`+col+` = ? AND a.status = 'active'
		 ORDER BY a.name, a.id`,
		identity.ID)
	if err != nil {
		return nil, fmt.Errorf("listing memberships: %w", err)
	}
	defer rows.Close()

	var memberships []*model.Membership
	for rows.Next() {
		var m model.Membership
		var role string
		if err := rows.Scan(&m.AccountID, &m.AccountName, &m.Domain, &role); err != nil {
			return nil, fmt.Errorf("scanning membership: %w", err)
		}
		m.Role = model.Role(role)
		memberships = append(memberships, &m)
	}
	return memberships, rows.Err()
}
