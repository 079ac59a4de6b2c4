package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/argon2"

	"github.com/solhem/memberpages/internal/apperror"
	"github.com/solhem/memberpages/internal/sanitize"
)

// sessionKeyPrefix is the Redis key prefix for session data.
const sessionKeyPrefix = "session:"

// sessionTokenBytes is the number of random bytes in a session token.
// 32 bytes = 256 bits of entropy, hex-encoded to 64 characters.
const sessionTokenBytes = 32

// rememberTTL is the extended session lifetime granted by "remember me".
const rememberTTL = 30 * 24 * time.Hour

// argon2id parameters tuned for a self-hosted membership site running on
// modest hardware (2-4 CPU cores, 2-4 GB RAM). These follow OWASP
// recommendations for argon2id: memory=64MB, iterations=3, parallelism=4.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // 64 MB in KiB
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// defaultRole is the role assigned to self-registered members.
const defaultRole = "subscriber"

// Service defines the business logic contract for member accounts.
// Handlers call these methods -- they never touch the repository directly.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (*User, error)
	Login(ctx context.Context, input LoginInput) (token string, user *User, err error)
	LoginUser(ctx context.Context, user *User, remember bool) (token string, err error)
	UpdateProfile(ctx context.Context, userID int64, input ProfileInput) (user *User, passwordChanged bool, err error)
	ValidateSession(ctx context.Context, token string) (*Session, error)
	DestroySession(ctx context.Context, token string) error

	FindByID(ctx context.Context, id int64) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	UniqueUsername(ctx context.Context, base string) (string, error)
}

// service implements Service with argon2id hashing and Redis sessions.
type service struct {
	repo       UserRepository
	redis      *redis.Client
	sessionTTL time.Duration
}

// NewService creates an account service with the given dependencies.
func NewService(repo UserRepository, rdb *redis.Client, sessionTTL time.Duration) Service {
	return &service{
		repo:       repo,
		redis:      rdb,
		sessionTTL: sessionTTL,
	}
}

// Register creates a new member account. It validates uniqueness, hashes
// the password with argon2id, and persists the user with the default role.
func (s *service) Register(ctx context.Context, input RegisterInput) (*User, error) {
	username := strings.ToLower(strings.TrimSpace(input.Username))
	email := strings.ToLower(strings.TrimSpace(input.Email))

	// Check uniqueness before doing expensive hashing.
	taken, err := s.repo.UsernameExists(ctx, username)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("checking username: %w", err))
	}
	if taken {
		return nil, apperror.NewConflict("this username is already taken")
	}

	taken, err = s.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("checking email: %w", err))
	}
	if taken {
		return nil, apperror.NewConflict("an account with this email already exists")
	}

	hash, err := hashPassword(input.Password)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	display := strings.TrimSpace(input.DisplayName)
	if display == "" {
		display = username
	}

	user := &User{
		Username:     username,
		Email:        email,
		DisplayName:  display,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		PasswordHash: hash,
		Roles:        []string{defaultRole},
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating user: %w", err))
	}

	slog.Info("user registered",
		slog.Int64("user_id", user.ID),
		slog.String("username", user.Username),
	)

	return user, nil
}

// Login authenticates a member by username-or-email and password. On
// success it creates a new session in Redis and returns the session token
// for the cookie.
func (s *service) Login(ctx context.Context, input LoginInput) (string, *User, error) {
	user, err := s.findByIdentifier(ctx, strings.TrimSpace(input.Identifier))
	if err != nil {
		// Don't reveal whether the account exists -- use generic message.
		if apperror.SafeCode(err) == 404 {
			return "", nil, apperror.NewUnauthorized("invalid username or password")
		}
		return "", nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	if !verifyPassword(input.Password, user.PasswordHash) {
		return "", nil, apperror.NewUnauthorized("invalid username or password")
	}

	token, err := s.LoginUser(ctx, user, input.Remember)
	if err != nil {
		return "", nil, err
	}

	return token, user, nil
}

// LoginUser creates a session for an already-resolved user. The social
// login bridge and the post-registration auto-login use this directly,
// bypassing the password check.
func (s *service) LoginUser(ctx context.Context, user *User, remember bool) (string, error) {
	ttl := s.sessionTTL
	if remember && rememberTTL > ttl {
		ttl = rememberTTL
	}

	token, err := s.createSession(ctx, user, ttl)
	if err != nil {
		return "", apperror.NewInternal(fmt.Errorf("creating session: %w", err))
	}

	// Non-critical; a failed timestamp must not fail the login.
	if err := s.repo.UpdateLastLogin(ctx, user.ID); err != nil {
		slog.Warn("failed to update last login",
			slog.Int64("user_id", user.ID),
			slog.Any("error", err),
		)
	}

	slog.Info("user logged in",
		slog.Int64("user_id", user.ID),
		slog.String("username", user.Username),
	)

	return token, nil
}

// UpdateProfile applies a profile edit. Email is re-checked for uniqueness
// only when it changes. A non-empty Password replaces the stored hash;
// passwordChanged tells the handler to rotate the session credential.
func (s *service) UpdateProfile(ctx context.Context, userID int64, input ProfileInput) (*User, bool, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if apperror.SafeCode(err) == 404 {
			return nil, false, err
		}
		return nil, false, apperror.NewInternal(fmt.Errorf("loading user: %w", err))
	}

	newEmail := strings.ToLower(strings.TrimSpace(input.Email))
	if newEmail != user.Email {
		taken, err := s.repo.EmailExists(ctx, newEmail)
		if err != nil {
			return nil, false, apperror.NewInternal(fmt.Errorf("checking email: %w", err))
		}
		if taken {
			return nil, false, apperror.NewConflict("an account with this email already exists")
		}
		user.Email = newEmail
	}

	user.DisplayName = sanitize.Text(input.DisplayName)
	user.FirstName = sanitize.Text(input.FirstName)
	user.LastName = sanitize.Text(input.LastName)
	user.Website = strings.TrimSpace(input.Website)
	user.Bio = sanitize.Text(input.Bio)
	if user.DisplayName == "" {
		user.DisplayName = user.Username
	}

	user.Meta = AuthorMeta{
		Title:           sanitize.Text(input.Meta.Title),
		Location:        sanitize.Text(input.Meta.Location),
		Tagline:         sanitize.Text(input.Meta.Tagline),
		FavoriteWorks:   sanitize.Text(input.Meta.FavoriteWorks),
		LongBio:         sanitize.Bio(input.Meta.LongBio),
		Twitter:         sanitize.Text(input.Meta.Twitter),
		Twitch:          sanitize.Text(input.Meta.Twitch),
		YouTube:         sanitize.Text(input.Meta.YouTube),
		Discord:         sanitize.Text(input.Meta.Discord),
		BackgroundImage: strings.TrimSpace(input.Meta.BackgroundImage),
	}
	user.Meta.LongBioText = sanitize.Text(user.Meta.LongBio)
	if user.Meta.LongBioText != "" && user.Bio == "" {
		user.Bio = user.Meta.LongBioText
	}

	if err := s.repo.UpdateProfile(ctx, user); err != nil {
		return nil, false, apperror.NewInternal(fmt.Errorf("saving profile: %w", err))
	}

	passwordChanged := false
	if input.Password != "" {
		hash, err := hashPassword(input.Password)
		if err != nil {
			return nil, false, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
		}
		if err := s.repo.UpdatePassword(ctx, userID, hash); err != nil {
			return nil, false, apperror.NewInternal(fmt.Errorf("saving password: %w", err))
		}
		passwordChanged = true
	}

	slog.Info("profile updated",
		slog.Int64("user_id", user.ID),
		slog.Bool("password_changed", passwordChanged),
	)

	return user, passwordChanged, nil
}

// ValidateSession looks up a session token in Redis and returns the session
// data if it exists and hasn't expired.
func (s *service) ValidateSession(ctx context.Context, token string) (*Session, error) {
	data, err := s.redis.Get(ctx, sessionKeyPrefix+token).Bytes()
	if err == redis.Nil {
		return nil, apperror.NewUnauthorized("session expired or invalid")
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("reading session from Redis: %w", err))
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("unmarshaling session: %w", err))
	}

	return &session, nil
}

// DestroySession removes a session from Redis, logging the member out.
func (s *service) DestroySession(ctx context.Context, token string) error {
	if err := s.redis.Del(ctx, sessionKeyPrefix+token).Err(); err != nil {
		return apperror.NewInternal(fmt.Errorf("deleting session from Redis: %w", err))
	}
	return nil
}

// FindByID exposes the ID lookup for the profile renderer.
func (s *service) FindByID(ctx context.Context, id int64) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

// FindByEmail exposes the email lookup for the social login bridge.
func (s *service) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}

// UniqueUsername derives an available login name from base, appending a
// numeric suffix on collision (jane, jane1, jane2, ...). The social login
// bridge uses this with the email's local part.
func (s *service) UniqueUsername(ctx context.Context, base string) (string, error) {
	base = sanitizeUsername(base)
	if base == "" {
		base = "member"
	}

	candidate := base
	for i := 1; ; i++ {
		taken, err := s.repo.UsernameExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("checking username %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
}

// findByIdentifier resolves a login identifier that may be a username or
// an email address.
func (s *service) findByIdentifier(ctx context.Context, identifier string) (*User, error) {
	if strings.Contains(identifier, "@") {
		return s.repo.FindByEmail(ctx, strings.ToLower(identifier))
	}
	return s.repo.FindByUsername(ctx, strings.ToLower(identifier))
}

// createSession generates a random session token, stores the session data
// in Redis with the given TTL, and returns the token.
func (s *service) createSession(ctx context.Context, user *User, ttl time.Duration) (string, error) {
	token, err := generateSessionToken()
	if err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}

	session := Session{
		UserID:      user.ID,
		Username:    user.Username,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Roles:       user.Roles,
		CreatedAt:   time.Now().UTC(),
	}

	data, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("marshaling session: %w", err)
	}

	if err := s.redis.Set(ctx, sessionKeyPrefix+token, data, ttl).Err(); err != nil {
		return "", fmt.Errorf("storing session in Redis: %w", err)
	}

	return token, nil
}

// --- Password Hashing (argon2id) ---

// hashPassword creates an argon2id hash of the given password. The output
// format is: $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
// This format is compatible with most argon2 libraries and allows self-
// contained verification without separate salt storage.
func hashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads, b64Salt, b64Hash)

	return encoded, nil
}

// verifyPassword checks a plaintext password against an argon2id hash
// string. Returns true if the password matches.
func verifyPassword(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false
	}

	var memory uint32
	var iterations uint32
	var parallelism uint8
	_, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism)
	if err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expectedHash)))

	return subtle.ConstantTimeCompare(expectedHash, computedHash) == 1
}

// --- Helpers ---

// generateSessionToken creates a cryptographically random hex-encoded token.
func generateSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// sanitizeUsername lowercases and strips everything but [a-z0-9._-].
func sanitizeUsername(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}
