package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"text-adapter/internal/domain"
	"text-adapter/internal/repository"
)

const defaultVerificationTTL = 2 * time.Minute

type UserStore interface {
	CreateUser(ctx context.Context, u domain.User) error
	DeleteUser(ctx context.Context, u domain.User) error
	GetUser(ctx context.Context, userID string) (domain.User, error)
	FindUserIDByLogin(ctx context.Context, login string) (string, error)
	ActivateUser(ctx context.Context, userID string, verifiedAt time.Time) error
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
	PutVerificationCode(ctx context.Context, code domain.VerificationCode) error
	GetVerificationCode(ctx context.Context, userID string) (domain.VerificationCode, error)
}

type CodeMailer interface {
	SendVerificationCode(ctx context.Context, recipient, code string, ttl time.Duration) error
}

// AccountService implements registration, email verification, login and
// password change.
type AccountService struct {
	users  UserStore
	mailer CodeMailer
	ttl    time.Duration

	hashCost int
	now      func() time.Time
	newID    func() string
	newCode  func() (string, error)
}

type RegisterInput struct {
	Username       string
	Password       string
	Email          string
	NativeLanguage string
	RussianLevel   string
}

type VerifyInput struct {
	UserID string
	Code   string
}

type VerifyOutput struct {
	User            domain.User
	AlreadyVerified bool
}

type LoginInput struct {
	Login    string
	Password string
}

type ChangePasswordInput struct {
	UserID          string
	CurrentPassword string
	NewPassword     string
}

func NewAccountService(users UserStore, mailer CodeMailer, ttl time.Duration) (*AccountService, error) {
	if users == nil {
		return nil, errors.New("usecase: user store must not be nil")
	}
	if mailer == nil {
		return nil, errors.New("usecase: mailer must not be nil")
	}
	if ttl <= 0 {
		ttl = defaultVerificationTTL
	}
	return &AccountService{
		users:    users,
		mailer:   mailer,
		ttl:      ttl,
		hashCost: bcrypt.DefaultCost,
		now:      time.Now,
		newID:    uuid.NewString,
		newCode:  newVerificationCode,
	}, nil
}

// Register creates an unverified user and mails a verification code. When
// the mail cannot be sent the user is removed again.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	if missing := missingFields(map[string]string{
		"username":        in.Username,
		"password":        in.Password,
		"email":           in.Email,
		"native_language": in.NativeLanguage,
		"russian_level":   in.RussianLevel,
	}, "username", "password", "email", "native_language", "russian_level"); len(missing) > 0 {
		return domain.User{}, newError(ErrorInvalidInput, "Не хватает данных: "+strings.Join(missing, ", "), nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return domain.User{}, newError(ErrorInternal, "Регистрация не прошла", err)
	}

	user := domain.User{
		ID:             s.newID(),
		Username:       strings.TrimSpace(in.Username),
		Email:          strings.TrimSpace(in.Email),
		PasswordHash:   string(hash),
		NativeLanguage: strings.TrimSpace(in.NativeLanguage),
		RussianLevel:   strings.TrimSpace(in.RussianLevel),
		Status:         domain.UserStatusUnverified,
		RegisteredAt:   s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return domain.User{}, newError(ErrorConflict, "Логин или почта уже зарегистрирован", err)
		}
		return domain.User{}, newError(ErrorInternal, "Регистрация не прошла", err)
	}

	code, err := s.issueCode(ctx, user.ID)
	if err == nil {
		err = s.mailer.SendVerificationCode(ctx, user.Email, code, s.ttl)
	}
	if err != nil {
		slog.Error("verification code not delivered, rolling back registration", "user_id", user.ID, "err", err)
		if delErr := s.users.DeleteUser(ctx, user); delErr != nil {
			slog.Error("registration rollback failed", "user_id", user.ID, "err", delErr)
		}
		return domain.User{}, newError(ErrorInternal, "Регистрация не прошла. Не удалось отправить код на почту.", err)
	}

	slog.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Verify activates the user when code matches the pending one.
func (s *AccountService) Verify(ctx context.Context, in VerifyInput) (VerifyOutput, error) {
	userID := strings.TrimSpace(in.UserID)
	code := strings.TrimSpace(in.Code)
	if userID == "" || code == "" {
		return VerifyOutput{}, newError(ErrorInvalidInput, "Отсутствует user_id или verification_code", nil)
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return VerifyOutput{}, newError(ErrorNotFound, "Пользователь отсутствует", err)
		}
		return VerifyOutput{}, newError(ErrorInternal, "Верификация не прошла", err)
	}
	if user.Status == domain.UserStatusActive {
		return VerifyOutput{User: user, AlreadyVerified: true}, nil
	}

	pending, err := s.users.GetVerificationCode(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return VerifyOutput{}, newError(ErrorNotFound, "Код подтверждения отсутствует или уже не действует", err)
		}
		return VerifyOutput{}, newError(ErrorInternal, "Верификация не прошла", err)
	}
	now := s.now().UTC()
	if pending.Expired(now) {
		return VerifyOutput{}, newError(ErrorGone, "Код подтверждения отсутствует или уже не действует", nil)
	}
	if pending.Code != code {
		return VerifyOutput{}, newError(ErrorUnauthorized, "Код подтверждения неверный", nil)
	}

	if err := s.users.ActivateUser(ctx, userID, now); err != nil {
		return VerifyOutput{}, newError(ErrorInternal, "Верификация не прошла", err)
	}
	user.Status = domain.UserStatusActive
	user.VerifiedAt = &now
	slog.Info("user verified", "user_id", userID)
	return VerifyOutput{User: user}, nil
}

// Login accepts a username or an email as the login.
func (s *AccountService) Login(ctx context.Context, in LoginInput) (domain.User, error) {
	if strings.TrimSpace(in.Login) == "" || in.Password == "" {
		return domain.User{}, newError(ErrorInvalidInput, "Missing login or password", nil)
	}

	userID, err := s.users.FindUserIDByLogin(ctx, in.Login)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, newError(ErrorUnauthorized, "Wrong login or password", nil)
		}
		return domain.User{}, newError(ErrorInternal, "Login failed", err)
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, newError(ErrorUnauthorized, "Wrong login or password", nil)
		}
		return domain.User{}, newError(ErrorInternal, "Login failed", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)) != nil {
		return domain.User{}, newError(ErrorUnauthorized, "Wrong login or password", nil)
	}
	if user.Status != domain.UserStatusActive {
		return domain.User{}, newError(ErrorForbidden, "Account not verified. Please verify your email first.", nil)
	}
	return user, nil
}

func (s *AccountService) ChangePassword(ctx context.Context, in ChangePasswordInput) error {
	if strings.TrimSpace(in.UserID) == "" || in.CurrentPassword == "" || in.NewPassword == "" {
		return newError(ErrorInvalidInput, "user_id, current_password and new_password are required", nil)
	}

	user, err := s.users.GetUser(ctx, in.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return newError(ErrorNotFound, "user not found", err)
		}
		return newError(ErrorInternal, "password change failed", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.CurrentPassword)) != nil {
		return newError(ErrorUnauthorized, "invalid current password", nil)
	}
	if in.NewPassword == in.CurrentPassword {
		return newError(ErrorInvalidInput, "new password must be different from current password", nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), s.hashCost)
	if err != nil {
		return newError(ErrorInternal, "password change failed", err)
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, string(hash)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return newError(ErrorNotFound, "user not found", err)
		}
		return newError(ErrorInternal, "password change failed", err)
	}
	slog.Info("password changed", "user_id", user.ID)
	return nil
}

// issueCode stores a fresh code for userID, replacing any earlier one.
func (s *AccountService) issueCode(ctx context.Context, userID string) (string, error) {
	code, err := s.newCode()
	if err != nil {
		return "", fmt.Errorf("usecase: generate verification code: %w", err)
	}
	now := s.now().UTC()
	if err := s.users.PutVerificationCode(ctx, domain.VerificationCode{
		UserID:    userID,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}); err != nil {
		return "", err
	}
	return code, nil
}

// newVerificationCode returns a random six-digit code.
func newVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func missingFields(values map[string]string, order ...string) []string {
	var missing []string
	for _, name := range order {
		if strings.TrimSpace(values[name]) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}
