package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	jwtExpiry        = 7 * 24 * time.Hour
	bcryptCost       = 12
	minPasswordLen   = 4
	minUsernameLen   = 2
	maxUsernameLen   = 16
	loginRateWindow  = 60 * time.Second
	maxLoginAttempts = 10
)

// Client-safe auth errors. Anything else is logged and reported as internal.
var (
	ErrBadUsername   = fmt.Errorf("username must be %d-%d characters", minUsernameLen, maxUsernameLen)
	ErrBadPassword   = fmt.Errorf("password must be at least %d characters", minPasswordLen)
	ErrUsernameTaken = errors.New("username already taken")
	ErrBadLogin      = errors.New("invalid username or password")
	ErrRateLimited   = errors.New("too many login attempts, try again later")
	ErrInvalidToken  = errors.New("invalid token")
	ErrAuthInternal  = errors.New("internal error")
)

// Auth handles accounts and session tokens
type Auth struct {
	db        *DB
	jwtSecret []byte
	now       func() time.Time

	rateMu  sync.Mutex
	rateMap map[string]*rateEntry // IP -> attempts
}

type rateEntry struct {
	Count   int
	ResetAt time.Time
}

// NewAuth creates an Auth. An empty secret loads or creates one in the DB.
func NewAuth(db *DB, secret string) (*Auth, error) {
	key := []byte(secret)
	if secret == "" {
		var err error
		if key, err = loadOrCreateSecret(db); err != nil {
			return nil, err
		}
	}
	return &Auth{
		db:        db,
		jwtSecret: key,
		now:       time.Now,
		rateMap:   make(map[string]*rateEntry),
	}, nil
}

// loadOrCreateSecret loads the JWT secret from the database, or generates
// and persists a new one if none exists.
func loadOrCreateSecret(db *DB) ([]byte, error) {
	if h := db.GetSetting("jwt_secret"); h != "" {
		if b, err := hex.DecodeString(h); err == nil && len(b) == 32 {
			return b, nil
		}
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate jwt secret: %w", err)
	}
	if err := db.SetSetting("jwt_secret", hex.EncodeToString(secret)); err != nil {
		return nil, fmt.Errorf("persist jwt secret: %w", err)
	}
	return secret, nil
}

// Register creates a new account and returns its ID and a token
func (a *Auth) Register(username, password string) (int64, string, error) {
	username = strings.TrimSpace(username)
	if n := utf8.RuneCountInString(username); n < minUsernameLen || n > maxUsernameLen {
		return 0, "", ErrBadUsername
	}
	if len(password) < minPasswordLen {
		return 0, "", ErrBadPassword
	}

	exists, err := a.db.UsernameExists(username)
	if err != nil {
		Log.Errorw("username lookup", "err", err)
		return 0, "", ErrAuthInternal
	}
	if exists {
		return 0, "", ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return 0, "", ErrAuthInternal
	}
	id, err := a.db.CreateAccount(username, string(hash))
	if err != nil {
		Log.Errorw("create account", "username", username, "err", err)
		return 0, "", ErrAuthInternal
	}

	token, err := a.generateToken(id, username)
	if err != nil {
		return 0, "", ErrAuthInternal
	}
	return id, token, nil
}

// Login authenticates a user and returns a JWT
func (a *Auth) Login(username, password, ip string) (int64, string, error) {
	if !a.checkRate(ip) {
		return 0, "", ErrRateLimited
	}

	acct, err := a.db.GetAccountByUsername(strings.TrimSpace(username))
	if err != nil {
		Log.Errorw("account lookup", "err", err)
		return 0, "", ErrAuthInternal
	}
	if acct == nil {
		return 0, "", ErrBadLogin
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PassHash), []byte(password)); err != nil {
		return 0, "", ErrBadLogin
	}

	token, err := a.generateToken(acct.ID, acct.Username)
	if err != nil {
		return 0, "", ErrAuthInternal
	}
	return acct.ID, token, nil
}

// ValidateToken validates a JWT and returns (accountID, username, error)
func (a *Auth) ValidateToken(tokenStr string) (int64, string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.jwtSecret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, "", ErrInvalidToken
	}
	pid, ok := claims["pid"].(float64)
	if !ok {
		return 0, "", ErrInvalidToken
	}
	username, ok := claims["usr"].(string)
	if !ok {
		return 0, "", ErrInvalidToken
	}
	return int64(pid), username, nil
}

func (a *Auth) generateToken(accountID int64, username string) (string, error) {
	now := a.now()
	claims := jwt.MapClaims{
		"pid": accountID,
		"usr": username,
		"exp": now.Add(jwtExpiry).Unix(),
		"iat": now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtSecret)
}

func (a *Auth) checkRate(ip string) bool {
	a.rateMu.Lock()
	defer a.rateMu.Unlock()

	now := a.now()
	entry, ok := a.rateMap[ip]
	if !ok || now.After(entry.ResetAt) {
		a.rateMap[ip] = &rateEntry{Count: 1, ResetAt: now.Add(loginRateWindow)}
		return true
	}
	entry.Count++
	return entry.Count <= maxLoginAttempts
}
