// Package auth delegates credential checks to an external WordPress
// instance and caches successful logins in redis.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aocrec/mgxhub/internal/logger"
)

const (
	wpUsersMeRoute = "/wp-json/wp/v2/users/me"
	loginKeyPrefix = "mgxhub:login:"
)

// Authenticator validates credentials against the WordPress REST API. A
// successful login is cached for Expire so that every request does not hit
// WordPress. Without redis the in-memory map serves the same purpose for a
// single process.
type Authenticator struct {
	URL    string
	Expire time.Duration

	rdb    *redis.Client
	client *http.Client

	mu    sync.Mutex
	local map[string]localEntry
}

type localEntry struct {
	username string
	expires  time.Time
}

func NewAuthenticator(wordpressURL string, expireMinutes int, rdb *redis.Client) *Authenticator {
	if expireMinutes <= 0 {
		expireMinutes = 15
	}
	return &Authenticator{
		URL:    wordpressURL,
		Expire: time.Duration(expireMinutes) * time.Minute,
		rdb:    rdb,
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				// Self-signed WordPress installs are common enough that
				// strict verification would lock admins out.
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
		local: make(map[string]localEntry),
	}
}

func loginKey(username, password string) string {
	sum := sha256.Sum256([]byte(username + password))
	return loginKeyPrefix + hex.EncodeToString(sum[:])
}

// wpUser is the subset of the users/me response the delegate looks at.
type wpUser struct {
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

// verify asks WordPress whether the credentials are valid, and with admin
// set whether the identity carries the administrator role.
func (a *Authenticator) verify(ctx context.Context, username, password string, admin bool) bool {
	if a.URL == "" || username == "" || password == "" {
		return false
	}

	endpoint, err := url.JoinPath(a.URL, wpUsersMeRoute)
	if err != nil {
		logger.Warnf("[AUTH] bad wordpress url: %v", err)
		return false
	}
	if admin {
		endpoint += "?context=edit"
	} else {
		endpoint += "?context=view"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false
	}
	req.SetBasicAuth(username, password)

	resp, err := a.client.Do(req)
	if err != nil {
		logger.Warnf("[AUTH] wordpress unreachable: %v", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var user wpUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return false
	}
	if admin {
		for _, role := range user.Roles {
			if role == "administrator" {
				return true
			}
		}
		return false
	}
	return user.Name == username
}

func (a *Authenticator) cached(ctx context.Context, key string) bool {
	if a.rdb != nil {
		n, err := a.rdb.Exists(ctx, key).Result()
		return err == nil && n > 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.local[key]
	if ok && time.Now().After(entry.expires) {
		delete(a.local, key)
		return false
	}
	return ok
}

func (a *Authenticator) remember(ctx context.Context, key, username string) {
	if a.rdb != nil {
		if err := a.rdb.Set(ctx, key, username, a.Expire).Err(); err != nil {
			logger.Warnf("[AUTH] cannot cache login: %v", err)
		}
		return
	}
	a.mu.Lock()
	a.local[key] = localEntry{username: username, expires: time.Now().Add(a.Expire)}
	a.mu.Unlock()
}

// CheckUser reports whether the credentials belong to a valid user,
// consulting the login cache first. Admin logins are cached under a
// distinct key so a user verdict never satisfies an admin check.
func (a *Authenticator) CheckUser(ctx context.Context, username, password string) bool {
	key := loginKey(username, password)
	if a.cached(ctx, key) {
		return true
	}
	if a.verify(ctx, username, password, false) {
		a.remember(ctx, key, username)
		return true
	}
	return false
}

// CheckAdmin reports whether the credentials belong to an administrator.
func (a *Authenticator) CheckAdmin(ctx context.Context, username, password string) bool {
	key := loginKey(username, password) + ":admin"
	if a.cached(ctx, key) {
		return true
	}
	if a.verify(ctx, username, password, true) {
		a.remember(ctx, key, username)
		return true
	}
	return false
}

// OnlineUsers lists the usernames with a live login cache entry.
func (a *Authenticator) OnlineUsers(ctx context.Context) ([]string, error) {
	if a.rdb == nil {
		a.mu.Lock()
		defer a.mu.Unlock()
		now := time.Now()
		users := make([]string, 0, len(a.local))
		for key, entry := range a.local {
			if now.After(entry.expires) {
				delete(a.local, key)
				continue
			}
			users = append(users, entry.username)
		}
		return users, nil
	}

	var users []string
	iter := a.rdb.Scan(ctx, 0, loginKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		name, err := a.rdb.Get(ctx, iter.Val()).Result()
		if err == nil && !strings.HasSuffix(iter.Val(), ":admin") {
			users = append(users, name)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("online users scan failed: %w", err)
	}
	return users, nil
}

// LogoutAll drops every cached login, forcing revalidation.
func (a *Authenticator) LogoutAll(ctx context.Context) error {
	if a.rdb == nil {
		a.mu.Lock()
		a.local = make(map[string]localEntry)
		a.mu.Unlock()
		return nil
	}

	iter := a.rdb.Scan(ctx, 0, loginKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := a.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("logout failed: %w", err)
		}
	}
	return iter.Err()
}
