package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"accessdesk.org/internal/ids"
	"accessdesk.org/internal/rbac"
)

// Directory is an in-memory user directory used for token issuance. User
// provisioning proper lives outside this service; the directory only holds
// the identities seeded at startup.
type Directory struct {
	mu    sync.RWMutex
	users map[string]directoryUser // keyed by lower-cased email
}

type directoryUser struct {
	actor        Actor
	passwordHash string
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{users: make(map[string]directoryUser)}
}

// Register adds a user. The role must be valid and the email unique.
func (d *Directory) Register(email, name, role, password string) (Actor, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return Actor{}, errors.New("valid email is required")
	}
	parsed, err := rbac.ParseRole(role)
	if err != nil {
		return Actor{}, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return Actor{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.users[email]; exists {
		return Actor{}, fmt.Errorf("user %s already registered", email)
	}
	actor := Actor{
		SubjectID: ids.New(),
		Email:     email,
		Name:      strings.TrimSpace(name),
		Role:      parsed,
	}
	d.users[email] = directoryUser{actor: actor, passwordHash: hash}
	return actor, nil
}

// Authenticate verifies email and password, returning the actor on success.
func (d *Directory) Authenticate(email, password string) (Actor, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	d.mu.RLock()
	user, ok := d.users[email]
	d.mu.RUnlock()
	if !ok {
		return Actor{}, ErrUnauthorized
	}
	if err := VerifyPassword(user.passwordHash, password); err != nil {
		return Actor{}, ErrUnauthorized
	}
	return user.actor, nil
}

// Seed registers users from a comma-separated list of email:role:password
// entries, e.g.
// "alice@corp.example:ADMIN:s3cret,bob@corp.example:EMPLOYEE:hunter2".
func (d *Directory) Seed(list string) error {
	list = strings.TrimSpace(list)
	if list == "" {
		return nil
	}
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 {
			return fmt.Errorf("malformed seed entry %q (want email:role:password)", entry)
		}
		name := parts[0]
		if at := strings.Index(name, "@"); at > 0 {
			name = name[:at]
		}
		if _, err := d.Register(parts[0], name, parts[1], parts[2]); err != nil {
			return fmt.Errorf("seed user %q: %w", parts[0], err)
		}
	}
	return nil
}
