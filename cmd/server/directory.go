package server

import (
	"context"
	"crypto/subtle"

	"github.com/ledgerly/sentinel/config"
	"github.com/ledgerly/sentinel/helper"
	sentinelhttp "github.com/ledgerly/sentinel/http"
)

// staticDirectory serves the accounts declared in the config file. It exists
// for deployments without an external user service; production wires the
// business layer's user service into the handler instead.
type staticDirectory struct {
	byEmail map[string]config.UserBlock
	byID    map[string]config.UserBlock
}

func newStaticDirectory(users []config.UserBlock) *staticDirectory {
	dir := &staticDirectory{
		byEmail: make(map[string]config.UserBlock, len(users)),
		byID:    make(map[string]config.UserBlock, len(users)),
	}
	for _, u := range users {
		dir.byEmail[u.Email] = u
		dir.byID[u.ID] = u
	}
	return dir
}

func (d *staticDirectory) Authenticate(ctx context.Context, email, password string) (*sentinelhttp.User, error) {
	u, ok := d.byEmail[email]
	if !ok {
		// Hash anyway so present and absent accounts take the same time.
		helper.GetHash(password)
		return nil, sentinelhttp.ErrInvalidCredentials
	}

	hash := helper.GetHash(password)
	if subtle.ConstantTimeCompare([]byte(hash), []byte(u.PasswordHash)) != 1 {
		return nil, sentinelhttp.ErrInvalidCredentials
	}

	return &sentinelhttp.User{ID: u.ID, Name: u.Name, Email: u.Email}, nil
}

func (d *staticDirectory) FindUserByID(ctx context.Context, id string) (*sentinelhttp.User, error) {
	u, ok := d.byID[id]
	if !ok {
		return nil, sentinelhttp.ErrUserNotFound
	}
	return &sentinelhttp.User{ID: u.ID, Name: u.Name, Email: u.Email}, nil
}
