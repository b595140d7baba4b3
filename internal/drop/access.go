package drop

import (
	"context"
	"fmt"

	"darkdrop/internal/model"
)

// CheckPermission reports whether identity holds at least the required role
// on the account. Every call consults the database; nothing is cached.
// A missing permission, a missing account and a suspended account are all
// denials, not errors.
func (s *DropService) CheckPermission(ctx context.Context, accountID string, identity model.Identity, required model.Role) (bool, error) {
	if !identity.Valid() {
		return false, fmt.Errorf("checking permission: %w", ErrUnauthenticated)
	}
	if required.Rank() == 0 {
		return false, validationErr("unknown role %q", required)
	}
	if accountID == "" {
		return false, validationErr("account id is required")
	}

	role, found, err := s.database.GetRole(ctx, accountID, identity)
	if err != nil {
		return false, storeErr("checking permission", err)
	}
	return found && role.Satisfies(required), nil
}

// require fails with ErrForbidden unless the actor holds the role.
func (s *DropService) require(ctx context.Context, actor Actor, accountID string, required model.Role) error {
	ok, err := s.CheckPermission(ctx, accountID, actor.Identity, required)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s needs %s access to account %s", ErrForbidden, actor.Identity, required, accountID)
	}
	return nil
}

// authorizeFile resolves a file and checks the role against the account the
// file belongs to.
func (s *DropService) authorizeFile(ctx context.Context, actor Actor, fileID string, required model.Role) (*model.File, error) {
	if !actor.Identity.Valid() {
		return nil, fmt.Errorf("resolving file: %w", ErrUnauthenticated)
	}
	if fileID == "" {
		return nil, validationErr("file id is required")
	}

	file, err := s.database.GetFile(ctx, fileID)
	if err != nil {
		return nil, storeErr("finding file", err)
	}
	if file == nil {
		return nil, notFoundErr("file %s", fileID)
	}

	if err := s.require(ctx, actor, file.AccountID, required); err != nil {
		return nil, err
	}
	return file, nil
}
