package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/matheusnogalha/draft-os/internal/domain"
	"github.com/matheusnogalha/draft-os/internal/repository"
)

const (
	minPasswordLength  = 6
	defaultTokenExpiry = 24 * time.Hour
)

// Credentials 是登录成功后签发的访问凭证。
// 编辑会话在 ExpiresAt 之后停止保存，客户端需要重新登录。
type Credentials struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    uint      `json:"user_id"`
}

// tokenClaims 是签发的 JWT 载荷，Auth 中间件读取 user_id 与 exp
type tokenClaims struct {
	UserID uint `json:"user_id"`
	jwt.RegisteredClaims
}

// AuthOption 配置 AuthService
type AuthOption func(*AuthService)

// WithAuthClock 替换签发 token 时使用的时间源
func WithAuthClock(now func() time.Time) AuthOption {
	return func(s *AuthService) {
		if now != nil {
			s.now = now
		}
	}
}

// AuthService 管理作者账号并签发访问 token。
type AuthService struct {
	users  repository.UserRepository
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthService 创建 AuthService。expiryHours 不大于 0 时使用 24 小时。
func NewAuthService(users repository.UserRepository, secret string, expiryHours int, opts ...AuthOption) (*AuthService, error) {
	if users == nil {
		panic("UserRepository cannot be nil for AuthService")
	}
	if secret == "" {
		return nil, errors.New("JWT secret key cannot be empty")
	}
	s := &AuthService{
		users:  users,
		secret: []byte(secret),
		ttl:    defaultTokenExpiry,
		now:    time.Now,
	}
	if expiryHours > 0 {
		s.ttl = time.Duration(expiryHours) * time.Hour
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register 创建作者账号。用户名不能包含 @，登录时据此区分用户名与邮箱。
func (s *AuthService) Register(ctx context.Context, username, password, email string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	email = normalizeEmail(email)
	logCtx := logrus.WithFields(logrus.Fields{"username": username, "email": email})

	switch {
	case username == "" || strings.Contains(username, "@"):
		return nil, fmt.Errorf("%w: username is required and must not contain '@'", ErrInvalidInput)
	case email == "" || !strings.Contains(email, "@"):
		return nil, fmt.Errorf("%w: a valid email is required", ErrInvalidInput)
	case len(password) < minPasswordLength:
		return nil, fmt.Errorf("%w: password needs at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	if _, err := s.users.FindByUsername(ctx, username); err == nil {
		logCtx.Warn("Registration rejected: username already taken")
		return nil, ErrRegistrationFailed
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		logCtx.WithError(err).Error("Failed to check username availability")
		return nil, ErrInternalServer
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		logCtx.WithError(err).Error("Failed to hash password")
		return nil, ErrInternalServer
	}

	user := &domain.User{Username: username, Email: email, Password: string(hash)}
	if err := s.users.Save(ctx, user); err != nil {
		// 邮箱冲突或并发注册由唯一索引拦截
		if errors.Is(err, repository.ErrDuplicateEntry) {
			logCtx.WithError(err).Warn("Registration rejected: username or email already exists")
			return nil, ErrRegistrationFailed
		}
		logCtx.WithError(err).Error("Failed to save new user")
		return nil, ErrInternalServer
	}

	logCtx.WithField("user_id", user.ID).Info("User registered")
	user.Password = ""
	return user, nil
}

// Login 校验用户名 (或邮箱) 与密码并签发 token。
// 账号不存在与密码错误返回同一个 ErrAuthenticationFailed。
func (s *AuthService) Login(ctx context.Context, login, password string) (*Credentials, error) {
	login = strings.TrimSpace(login)
	logCtx := logrus.WithField("login", login)

	user, err := s.lookup(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			logCtx.Warn("Login failed: unknown account")
			return nil, ErrAuthenticationFailed
		}
		logCtx.WithError(err).Error("Login failed: user lookup error")
		return nil, ErrInternalServer
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		logCtx.WithField("user_id", user.ID).Warn("Login failed: wrong password")
		return nil, ErrAuthenticationFailed
	}

	creds, err := s.issue(user.ID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to sign token")
		return nil, ErrInternalServer
	}
	logCtx.WithFields(logrus.Fields{"user_id": user.ID, "expires_at": creds.ExpiresAt}).Info("User logged in")
	return creds, nil
}

// Profile 返回当前作者的账号信息 (不含密码哈希)。
func (s *AuthService) Profile(ctx context.Context, userID uint) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to load profile")
		return nil, ErrInternalServer
	}
	user.Password = ""
	return user, nil
}

func (s *AuthService) lookup(ctx context.Context, login string) (*domain.User, error) {
	if strings.Contains(login, "@") {
		return s.users.FindByEmail(ctx, normalizeEmail(login))
	}
	return s.users.FindByUsername(ctx, login)
}

func (s *AuthService) issue(userID uint) (*Credentials, error) {
	issuedAt := s.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(s.ttl)
	claims := tokenClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Credentials{Token: signed, ExpiresAt: expiresAt, UserID: userID}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
