package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/finsolve/chatbot/internal/access"
)

// seedUser is one development account created on an empty store.
type seedUser struct {
	username string
	password string
	role     access.Role
}

// defaultUsers mirrors the accounts the original data set ships with.
// Development convenience only; production stores are provisioned via
// AddUser.
var defaultUsers = []seedUser{
	{"peter", "finance123", access.RoleFinance},
	{"jane", "marketing456", access.RoleMarketing},
	{"alice", "hr789", access.RoleHR},
	{"bob", "eng101", access.RoleEngineering},
	{"tony", "exec2023", access.RoleCLevel},
	{"emma", "emp303", access.RoleEmployee},
}

// Seed populates an empty user store with the default accounts. A store
// that already has users is left untouched.
func (s *Service) Seed(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return fmt.Errorf("counting users: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, u := range defaultUsers {
		if err := s.AddUser(ctx, u.username, u.password, u.role); err != nil {
			// Concurrent seeding can race on individual inserts; an
			// existing user means someone else won, which is fine.
			if errors.Is(err, ErrUserExists) {
				continue
			}
			return err
		}
	}

	s.logger.Info("seeded default users", "count", len(defaultUsers))
	return nil
}
