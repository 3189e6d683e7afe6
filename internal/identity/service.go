package identity

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MrEthical07/authflow/internal"
	"github.com/MrEthical07/authflow/internal/limiters"
	"github.com/MrEthical07/authflow/internal/rate"
	"github.com/MrEthical07/authflow/internal/stores"
	"github.com/MrEthical07/authflow/jwt"
	"github.com/MrEthical07/authflow/password"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Verification purposes.
const (
	PurposeRegister      = "register"
	PurposeResetPassword = "reset_password"
)

// Request field names as they appear in request bodies and field errors.
const (
	FieldUsername    = "username"
	FieldEmail       = "email"
	FieldPassword    = "password"
	FieldNewPassword = "new_password"
	FieldCode        = "code"
	FieldPurpose     = "purpose"
	FieldCaptcha     = "captcha_answer"
)

// Deps are the collaborators of a Service. Redis, Tokens and Mailer are required.
type Deps struct {
	Redis    redis.UniversalClient
	Tokens   *jwt.Manager
	Mailer   Mailer
	Hasher   *password.Argon2
	Logger   *zap.Logger
	Settings Settings
}

// Service implements registration, code verification, password reset and
// login on top of Redis.
type Service struct {
	settings Settings
	logger   *zap.Logger

	users    *stores.UserStore
	codes    *stores.CodeStore
	captchas *stores.CaptchaStore

	sends    *limiters.CodeSendLimiter
	signups  *limiters.RegistrationLimiter
	lockout  *limiters.LockoutLimiter
	failures *rate.Limiter

	hasher   *password.Argon2
	tokens   *jwt.Manager
	mailer   Mailer
	validate *validator.Validate

	now   func() time.Time
	newID func() string
}

// New wires a Service from deps.
func New(deps Deps) (*Service, error) {
	if deps.Redis == nil {
		return nil, errors.New("identity: redis client is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("identity: token manager is required")
	}
	if deps.Mailer == nil {
		return nil, errors.New("identity: mailer is required")
	}
	if err := deps.Settings.Validate(); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	hasher := deps.Hasher
	if hasher == nil {
		cfg := password.DefaultConfig()
		cfg.MinPasswordBytes = deps.Settings.MinPasswordLength
		h, err := password.NewArgon2(cfg)
		if err != nil {
			return nil, err
		}
		hasher = h
	}

	st := deps.Settings
	return &Service{
		settings: st,
		logger:   logger.Named("identity"),
		users:    stores.NewUserStore(deps.Redis),
		codes:    stores.NewCodeStore(deps.Redis, "code"),
		captchas: stores.NewCaptchaStore(deps.Redis),
		sends: limiters.NewCodeSendLimiter(deps.Redis, limiters.CodeSendConfig{
			Cooldown:    st.SendCooldown,
			HourlyLimit: st.HourlySendLimit,
		}),
		signups: limiters.NewRegistrationLimiter(deps.Redis, limiters.RegistrationConfig{
			EnableIPThrottle: st.RegistrationsPerIP > 0,
			MaxAttempts:      st.RegistrationsPerIP,
			Cooldown:         st.RegistrationIPCooldown,
		}),
		lockout: limiters.NewLockoutLimiter(deps.Redis, limiters.LockoutConfig{
			Enabled:   st.MaxLoginAttempts > 0,
			Threshold: st.MaxLoginAttempts,
			Duration:  st.LockoutDuration,
		}),
		failures: rate.New(deps.Redis, rate.Config{
			CaptchaThreshold: st.CaptchaAfterFailures,
			IPWindow:         st.FailureWindow,
		}),
		hasher:   hasher,
		tokens:   deps.Tokens,
		mailer:   deps.Mailer,
		validate: validator.New(),
		now:      time.Now,
		newID:    uuid.NewString,
	}, nil
}

// Settings returns the policies the service runs with.
func (s *Service) Settings() Settings {
	return s.settings
}

// UserView is the public shape of an account.
type UserView struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	IsActive      bool      `json:"is_active"`
	IsSuperuser   bool      `json:"is_superuser"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

func viewOf(u *stores.User) *UserView {
	return &UserView{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		IsActive:      u.IsActive,
		IsSuperuser:   u.IsSuperuser,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	}
}

// RegisterInput is the payload of Register.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	ClientIP string
}

// Register creates an account. The first account becomes the superuser.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*UserView, error) {
	username := strings.TrimSpace(in.Username)
	email := normalizeEmail(in.Email)

	if err := s.checkUsername(username); err != nil {
		return nil, err
	}
	if err := s.checkEmail(email); err != nil {
		return nil, err
	}
	hash, err := s.hashPassword(FieldPassword, in.Password)
	if err != nil {
		return nil, err
	}

	if err := s.signups.Enforce(ctx, in.ClientIP); err != nil {
		if errors.Is(err, limiters.ErrRegistrationRateLimited) {
			return nil, newError(CodeRateLimited, MsgRateLimited)
		}
		return nil, unavailable(err)
	}

	user := &stores.User{
		ID:            s.newID(),
		Username:      username,
		Email:         email,
		PasswordHash:  hash,
		EmailVerified: !s.settings.RequireEmailVerification,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, stores.ErrUsernameTaken):
			return nil, fieldError(CodeUsernameExists, MsgUsernameRegistered, FieldUsername, MsgUsernameRegistered)
		case errors.Is(err, stores.ErrEmailTaken):
			return nil, fieldError(CodeEmailExists, MsgEmailRegistered, FieldEmail, MsgEmailRegistered)
		default:
			return nil, unavailable(err)
		}
	}

	s.logger.Info("user registered",
		zap.String("user_id", user.ID),
		zap.Bool("superuser", user.IsSuperuser),
	)
	return viewOf(user), nil
}

// SendCodeInput is the payload of SendCode.
type SendCodeInput struct {
	Email   string
	Purpose string
}

// SendCode emails a fresh code for purpose. A reset request for an unknown
// address succeeds without sending anything.
func (s *Service) SendCode(ctx context.Context, in SendCodeInput) error {
	email := normalizeEmail(in.Email)
	if err := s.checkEmail(email); err != nil {
		return err
	}
	if in.Purpose != PurposeRegister && in.Purpose != PurposeResetPassword {
		return validationError(FieldPurpose, MsgFieldInvalidPurpose)
	}

	left, err := s.sends.CheckCooldown(ctx, email, in.Purpose)
	if err != nil {
		if errors.Is(err, limiters.ErrSendCooldown) {
			e := newError(CodeEmailSendTooFrequent, MsgEmailSendTooFrequent, ceilSeconds(left))
			e.RetryAfter = left
			return e
		}
		return unavailable(err)
	}

	user, err := s.users.ByEmail(ctx, email)
	switch {
	case errors.Is(err, stores.ErrUserNotFound):
		if in.Purpose == PurposeResetPassword {
			s.logger.Debug("reset code requested for unknown email")
			if err := s.sends.StartCooldown(ctx, email, in.Purpose); err != nil {
				return unavailable(err)
			}
			return nil
		}
		return fieldError(CodeUserNotFound, MsgUserNotFound, FieldEmail, MsgUserNotFound)
	case err != nil:
		return unavailable(err)
	}
	if in.Purpose == PurposeRegister && user.EmailVerified {
		return fieldError(CodeEmailAlreadyVerified, MsgEmailAlreadyVerified, FieldEmail, MsgEmailAlreadyVerified)
	}

	if err := s.sends.CheckRequest(ctx, email); err != nil {
		if errors.Is(err, limiters.ErrSendRateLimited) {
			return newError(CodeRateLimited, MsgEmailRateLimited)
		}
		return unavailable(err)
	}

	code, err := internal.NewNumericCode(s.settings.CodeLength)
	if err != nil {
		return unavailable(err)
	}
	if err := s.codes.Save(ctx, email, in.Purpose, internal.HashCode(code), s.settings.CodeTTL); err != nil {
		return unavailable(err)
	}

	msg := codeMessage(s.settings.SiteName, email, in.Purpose, code, s.settings.CodeTTL)
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Error("verification email failed", zap.String("purpose", in.Purpose), zap.Error(err))
		// An undelivered code must not stay redeemable, and no cooldown starts.
		if delErr := s.codes.Delete(ctx, email, in.Purpose); delErr != nil {
			s.logger.Warn("could not drop undelivered code", zap.Error(delErr))
		}
		return &Error{Code: CodeEmailSendFailed, Key: MsgEmailSendFailed, Err: err}
	}

	if err := s.sends.StartCooldown(ctx, email, in.Purpose); err != nil {
		return unavailable(err)
	}
	s.logger.Info("verification code sent", zap.String("purpose", in.Purpose), zap.String("user_id", user.ID))
	return nil
}

// VerifyCode redeems a code. A register code marks the email verified.
func (s *Service) VerifyCode(ctx context.Context, email, code, purpose string) error {
	email = normalizeEmail(email)
	if err := s.checkEmail(email); err != nil {
		return err
	}
	if purpose != PurposeRegister && purpose != PurposeResetPassword {
		return validationError(FieldPurpose, MsgFieldInvalidPurpose)
	}
	if err := s.consumeCode(ctx, email, code, purpose); err != nil {
		return err
	}
	if purpose != PurposeRegister {
		return nil
	}

	user, err := s.users.ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, stores.ErrUserNotFound) {
			return newError(CodeUserNotFound, MsgUserNotFound)
		}
		return unavailable(err)
	}
	if err := s.users.MarkEmailVerified(ctx, user.ID); err != nil {
		return unavailable(err)
	}
	s.logger.Info("email verified", zap.String("user_id", user.ID))
	return nil
}

// ResetPassword redeems a reset code and replaces the password.
func (s *Service) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email = normalizeEmail(email)
	if err := s.checkEmail(email); err != nil {
		return err
	}
	hash, err := s.hashPassword(FieldNewPassword, newPassword)
	if err != nil {
		return err
	}
	if err := s.consumeCode(ctx, email, code, PurposeResetPassword); err != nil {
		return err
	}

	user, err := s.users.ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, stores.ErrUserNotFound) {
			return newError(CodeVerificationExpired, MsgCodeExpired)
		}
		return unavailable(err)
	}
	if err := s.users.SetPasswordHash(ctx, user.ID, hash); err != nil {
		return unavailable(err)
	}
	if err := s.lockout.Reset(ctx, user.ID); err != nil {
		s.logger.Warn("lockout reset failed", zap.String("user_id", user.ID), zap.Error(err))
	}
	s.logger.Info("password reset", zap.String("user_id", user.ID))
	return nil
}

func (s *Service) consumeCode(ctx context.Context, email, code, purpose string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return validationError(FieldCode, MsgFieldRequired)
	}
	_, err := s.codes.Consume(ctx, email, purpose, internal.HashCode(code), s.settings.MaxCodeAttempts)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrCodeMismatch):
		return newError(CodeVerificationInvalid, MsgCodeInvalid)
	case errors.Is(err, stores.ErrCodeNotFound), errors.Is(err, stores.ErrCodeAttemptsExceeded):
		return newError(CodeVerificationExpired, MsgCodeExpired)
	default:
		return unavailable(err)
	}
}

// LoginInput is the payload of Login.
type LoginInput struct {
	Username      string
	Password      string
	CaptchaID     string
	CaptchaAnswer string
	ClientIP      string
}

// Token is the result of a successful login.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Login checks the captcha, the lockout and the password, in that order,
// and issues an access token.
func (s *Service) Login(ctx context.Context, in LoginInput) (*Token, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, validationError(FieldUsername, MsgFieldRequired)
	}
	if in.Password == "" {
		return nil, validationError(FieldPassword, MsgFieldRequired)
	}

	required := s.settings.CaptchaEnabled
	if !required {
		need, err := s.failures.NeedsCaptcha(ctx, in.ClientIP)
		if err != nil {
			return nil, unavailable(err)
		}
		required = need
	}
	// A supplied captcha is always checked and always consumed.
	if in.CaptchaID != "" {
		if err := s.checkCaptcha(ctx, in.CaptchaID, in.CaptchaAnswer); err != nil {
			return nil, err
		}
	} else if required {
		return nil, newError(CodeCaptchaRequired, MsgCaptchaRequired)
	}

	user, err := s.users.ByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, stores.ErrUserNotFound) {
			s.recordIPFailure(ctx, in.ClientIP)
			return nil, newError(CodeInvalidCredentials, MsgIncorrectCredentials)
		}
		return nil, unavailable(err)
	}

	left, err := s.lockout.Locked(ctx, user.ID)
	if err != nil {
		return nil, unavailable(err)
	}
	if left > 0 {
		e := newError(CodeAccountLocked, MsgAccountLocked, ceilMinutes(left))
		e.RetryAfter = left
		return nil, e
	}

	ok, err := s.hasher.Verify(in.Password, user.PasswordHash)
	if err != nil && !errors.Is(err, password.ErrPasswordTooLong) {
		s.logger.Error("stored password hash unreadable", zap.String("user_id", user.ID), zap.Error(err))
		return nil, unavailable(err)
	}
	if !ok {
		s.recordIPFailure(ctx, in.ClientIP)
		locked, _, lockErr := s.lockout.RecordFailure(ctx, user.ID)
		if lockErr != nil {
			return nil, unavailable(lockErr)
		}
		if locked {
			s.logger.Warn("account locked after failed logins", zap.String("user_id", user.ID))
			e := newError(CodeTooManyLoginAttempts, MsgAccountLockedAttempts)
			e.RetryAfter = s.settings.LockoutDuration
			return nil, e
		}
		return nil, newError(CodeInvalidCredentials, MsgIncorrectCredentials)
	}

	if !user.IsActive {
		return nil, newError(CodeInactiveUser, MsgInactiveUser)
	}
	if s.settings.RequireEmailVerification && !user.EmailVerified && !user.IsSuperuser {
		return nil, newError(CodeEmailNotVerified, MsgEmailNotVerified)
	}

	if err := s.lockout.Reset(ctx, user.ID); err != nil {
		s.logger.Warn("lockout reset failed", zap.String("user_id", user.ID), zap.Error(err))
	}
	if err := s.failures.Reset(ctx, in.ClientIP); err != nil {
		s.logger.Warn("ip failure reset failed", zap.Error(err))
	}
	s.upgradeHash(ctx, user.ID, in.Password, user.PasswordHash)

	access, err := s.tokens.CreateAccess(jwt.Subject{
		UserID:    user.ID,
		Username:  user.Username,
		Superuser: user.IsSuperuser,
	})
	if err != nil {
		return nil, unavailable(err)
	}
	return &Token{
		AccessToken: access,
		TokenType:   "bearer",
		ExpiresIn:   int(s.tokens.AccessTTL() / time.Second),
	}, nil
}

// upgradeHash replaces a hash made with weaker parameters than the current
// hasher's. A failure only postpones the upgrade to the next login.
func (s *Service) upgradeHash(ctx context.Context, id, pw, stored string) {
	upgrade, err := s.hasher.NeedsUpgrade(stored)
	if err != nil || !upgrade {
		return
	}
	hash, err := s.hasher.Hash(pw)
	if err == nil {
		err = s.users.SetPasswordHash(ctx, id, hash)
	}
	if err != nil {
		s.logger.Warn("password rehash failed", zap.String("user_id", id), zap.Error(err))
		return
	}
	s.logger.Debug("password rehashed", zap.String("user_id", id))
}

// Me returns the account with id.
func (s *Service) Me(ctx context.Context, id string) (*UserView, error) {
	user, err := s.users.ByID(ctx, id)
	if err != nil {
		if errors.Is(err, stores.ErrUserNotFound) {
			return nil, newError(CodeUserNotFound, MsgUserNotFound)
		}
		return nil, unavailable(err)
	}
	return viewOf(user), nil
}

// CaptchaRequired reports whether a login from ip must carry a captcha.
func (s *Service) CaptchaRequired(ctx context.Context, ip string) (bool, error) {
	if s.settings.CaptchaEnabled {
		return true, nil
	}
	need, err := s.failures.NeedsCaptcha(ctx, ip)
	if err != nil {
		return false, unavailable(err)
	}
	return need, nil
}

func (s *Service) recordIPFailure(ctx context.Context, ip string) {
	if err := s.failures.RecordFailure(ctx, ip); err != nil {
		s.logger.Warn("ip failure not recorded", zap.Error(err))
	}
}

func (s *Service) checkUsername(username string) error {
	n := utf8.RuneCountInString(username)
	switch {
	case n == 0:
		return validationError(FieldUsername, MsgFieldRequired)
	case n < s.settings.MinUsernameLength:
		return validationError(FieldUsername, MsgFieldTooShort, s.settings.MinUsernameLength)
	case n > s.settings.MaxUsernameLength:
		return validationError(FieldUsername, MsgFieldTooLong, s.settings.MaxUsernameLength)
	}
	return nil
}

func (s *Service) checkEmail(email string) error {
	if email == "" {
		return validationError(FieldEmail, MsgFieldRequired)
	}
	if err := s.validate.Var(email, "email"); err != nil {
		return validationError(FieldEmail, MsgFieldInvalidEmail)
	}
	return nil
}

func (s *Service) hashPassword(field, pw string) (string, error) {
	if pw == "" {
		return "", validationError(field, MsgFieldRequired)
	}
	if utf8.RuneCountInString(pw) < s.settings.MinPasswordLength {
		return "", validationError(field, MsgPasswordTooShort, s.settings.MinPasswordLength)
	}
	hash, err := s.hasher.Hash(pw)
	switch {
	case err == nil:
		return hash, nil
	case errors.Is(err, password.ErrPasswordTooShort):
		return "", validationError(field, MsgPasswordTooShort, s.settings.MinPasswordLength)
	case errors.Is(err, password.ErrPasswordTooLong):
		return "", validationError(field, MsgPasswordTooLong)
	default:
		return "", unavailable(err)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ceilSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}

func ceilMinutes(d time.Duration) int {
	return int((d + time.Minute - 1) / time.Minute)
}
