package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/vantutran2k1/haulbook/internal/core/domain"
	"github.com/vantutran2k1/haulbook/internal/core/port"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ErrAccountDeactivated rejects a valid token whose account an admin disabled.
var ErrAccountDeactivated = fmt.Errorf("%w: account is deactivated", domain.ErrUnauthorized)

type AuthService struct {
	store     port.Store
	gate      *Gate
	jwtSecret []byte
	tokenTTL  time.Duration
	timeout   time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewAuthService(store port.Store, gate *Gate, jwtSecret string, tokenTTL, storeTimeout time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		store:     store,
		gate:      gate,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		timeout:   storeTimeout,
		logger:    logger,
		now:       time.Now,
	}
}

type RegisterInput struct {
	Phone         string
	Name          string
	Password      string
	Role          string
	LicenseNumber string
	ServiceArea   string
}

type Session struct {
	Token    string          `json:"token"`
	User     domain.User     `json:"user"`
	Identity domain.Identity `json:"identity"`
}

func (s *AuthService) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func (s *AuthService) CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// NormalizePhone accepts 10-digit Indian numbers with or without the 91 prefix.
func NormalizePhone(phone string) (string, error) {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case len(d) == 10:
		return "+91" + d, nil
	case len(d) == 12 && strings.HasPrefix(d, "91"):
		return "+" + d, nil
	default:
		return "", fmt.Errorf("%w: phone must be a 10 digit number", domain.ErrValidation)
	}
}

// Register creates a customer or driver account. Admins are never self-registered.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (Session, error) {
	role, err := domain.ParseRole(in.Role)
	if err != nil {
		return Session{}, err
	}
	if role == domain.RoleAdmin {
		return Session{}, fmt.Errorf("%w: admin accounts cannot be registered", domain.ErrForbidden)
	}
	return s.createAccount(ctx, in, role)
}

// EnsureAdmin creates the bootstrap admin account if no admin exists yet.
func (s *AuthService) EnsureAdmin(ctx context.Context, phone, password string) error {
	if phone == "" || password == "" {
		return nil
	}

	countCtx, cancel := context.WithTimeout(ctx, s.timeout)
	count, err := s.store.CountUsersByRole(countCtx, domain.RoleAdmin)
	cancel()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	_, err = s.createAccount(ctx, RegisterInput{Phone: phone, Name: "Administrator", Password: password}, domain.RoleAdmin)
	if err != nil {
		return err
	}
	s.logger.Info("bootstrap admin created", zap.String("phone", phone))
	return nil
}

func (s *AuthService) createAccount(ctx context.Context, in RegisterInput, role domain.Role) (Session, error) {
	phone, err := NormalizePhone(in.Phone)
	if err != nil {
		return Session{}, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return Session{}, fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if len(in.Password) < 6 {
		return Session{}, fmt.Errorf("%w: password must have at least 6 characters", domain.ErrValidation)
	}

	hash, err := s.HashPassword(in.Password)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := domain.User{
		ID:           uuid.NewString(),
		Phone:        phone,
		Name:         strings.TrimSpace(in.Name),
		Role:         role,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
	}
	identity := domain.Identity{UserID: user.ID, Role: role}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err = s.store.ExecTx(ctx, func(q port.Querier) error {
		if err := q.CreateUser(ctx, user); err != nil {
			return err
		}
		if role != domain.RoleDriver {
			return nil
		}
		driver := domain.Driver{
			ID:            uuid.NewString(),
			UserID:        user.ID,
			LicenseNumber: strings.TrimSpace(in.LicenseNumber),
			ServiceArea:   strings.TrimSpace(in.ServiceArea),
			Status:        domain.DriverStatusOffline,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		identity.DriverID = driver.ID
		return q.CreateDriver(ctx, driver)
	})
	if err != nil {
		return Session{}, err
	}

	token, err := s.GenerateToken(identity)
	if err != nil {
		return Session{}, err
	}

	s.logger.Info("account registered", zap.String("user_id", user.ID), zap.String("role", string(role)))
	return Session{Token: token, User: user, Identity: identity}, nil
}

func (s *AuthService) Login(ctx context.Context, phone, password string) (Session, error) {
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return Session{}, domain.ErrUnauthorized
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.store.GetUserByPhone(ctx, normalized)
	if errors.Is(err, domain.ErrNotFound) {
		return Session{}, fmt.Errorf("%w: invalid phone or password", domain.ErrUnauthorized)
	}
	if err != nil {
		return Session{}, err
	}
	if !s.CheckPasswordHash(password, user.PasswordHash) {
		return Session{}, fmt.Errorf("%w: invalid phone or password", domain.ErrUnauthorized)
	}
	if !user.IsActive {
		return Session{}, ErrAccountDeactivated
	}

	identity := domain.Identity{UserID: user.ID, Role: user.Role}
	if user.Role == domain.RoleDriver {
		driver, err := s.store.GetDriverByUserID(ctx, user.ID)
		if err != nil {
			return Session{}, err
		}
		identity.DriverID = driver.ID
	}

	token, err := s.GenerateToken(identity)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, User: user, Identity: identity}, nil
}

func (s *AuthService) GenerateToken(id domain.Identity) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":  id.UserID,
		"role": string(id.Role),
		"exp":  now.Add(s.tokenTTL).Unix(),
		"iat":  now.Unix(),
	}
	if id.DriverID != "" {
		claims["drv"] = id.DriverID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken turns a bearer token into the caller's identity.
func (s *AuthService) ValidateToken(tokenString string) (domain.Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return domain.Identity{}, fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}

	sub, _ := claims["sub"].(string)
	roleStr, _ := claims["role"].(string)
	role, err := domain.ParseRole(roleStr)
	if sub == "" || err != nil {
		return domain.Identity{}, fmt.Errorf("%w: invalid token claims", domain.ErrUnauthorized)
	}

	id := domain.Identity{UserID: sub, Role: role}
	if role == domain.RoleDriver {
		id.DriverID, _ = claims["drv"].(string)
		if id.DriverID == "" {
			return domain.Identity{}, fmt.Errorf("%w: driver token without driver id", domain.ErrUnauthorized)
		}
	}
	return id, nil
}

// Authenticate validates a bearer token and rejects accounts that were
// deactivated after the token was issued.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (domain.Identity, error) {
	id, err := s.ValidateToken(tokenString)
	if err != nil {
		return domain.Identity{}, err
	}

	user, err := read(ctx, s.timeout, func(ctx context.Context) (domain.User, error) {
		return s.store.GetUser(ctx, id.UserID)
	})
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.Identity{}, fmt.Errorf("%w: account no longer exists", domain.ErrUnauthorized)
	case err != nil:
		return domain.Identity{}, err
	case !user.IsActive:
		return domain.Identity{}, ErrAccountDeactivated
	}
	return id, nil
}

// SetUserActive activates or deactivates an account; a nil active toggles it.
// Admins cannot deactivate themselves. A driver holding an active booking
// cannot be deactivated, and an available driver is taken offline.
func (s *AuthService) SetUserActive(ctx context.Context, actor domain.Identity, userID string, active *bool) (domain.User, error) {
	if err := s.gate.Authorize(actor, ActionManageUsers); err != nil {
		return domain.User{}, err
	}

	now := s.now()
	var out domain.User
	err := runTx(ctx, s.store, s.timeout, func(ctx context.Context, q port.Querier) error {
		u, err := q.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		next := !u.IsActive
		if active != nil {
			next = *active
		}
		if !next && u.ID == actor.UserID {
			return fmt.Errorf("%w: admins cannot deactivate their own account", domain.ErrForbidden)
		}
		u.IsActive = next

		if !next && u.Role == domain.RoleDriver {
			if err := s.takeDriverOffline(ctx, q, u.ID, now); err != nil {
				return err
			}
		}
		if err := q.UpdateUser(ctx, u); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}

	s.logger.Info("account status changed",
		zap.String("user_id", out.ID),
		zap.Bool("active", out.IsActive),
		zap.String("by", actor.UserID))
	return out, nil
}

func (s *AuthService) takeDriverOffline(ctx context.Context, q port.Querier, userID string, now time.Time) error {
	d, err := q.GetDriverByUserID(ctx, userID)
	if err != nil {
		return err
	}
	d, err = q.LockDriver(ctx, d.ID)
	if err != nil {
		return err
	}
	busy, err := q.HasActiveBooking(ctx, d.ID)
	if err != nil {
		return err
	}
	if busy {
		return fmt.Errorf("%w: driver %s has an active booking", domain.ErrInvalidTransition, d.ID)
	}
	if d.Status != domain.DriverStatusAvailable {
		return nil
	}
	d.Status = domain.DriverStatusOffline
	d.UpdatedAt = now
	return q.UpdateDriver(ctx, d)
}
