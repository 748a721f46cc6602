package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"rfpdesk/internal/session"
	"rfpdesk/internal/util"
	"rfpdesk/pkg/apiclient"
	"rfpdesk/pkg/auth"
	"rfpdesk/pkg/domain"
)

var (
	// ErrCredentialsRequired is returned when email or password is empty.
	ErrCredentialsRequired = errors.New("email and password required")
	// ErrSessionEventsDisabled is returned by WatchSession without Redis.
	ErrSessionEventsDisabled = errors.New("session events need redisAddr and sessionChannel")
)

// Login authenticates, resolves the role when the backend omits it and stores
// the session. With remember set the credentials are sealed for next time;
// otherwise any saved credentials are forgotten.
func (a *App) Login(ctx context.Context, email, password string, remember bool) (domain.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return domain.Session{}, ErrCredentialsRequired
	}
	logger := util.LoggerFromContext(ctx)
	res, err := a.api.Login(ctx, email, password)
	if err != nil {
		logger.Warn("login failed", "email", email, "err", err)
		return domain.Session{}, fmt.Errorf("login: %w", err)
	}
	if res.Token == "" {
		return domain.Session{}, errors.New("login: backend returned no token")
	}
	role := res.Role
	if role == "" {
		role = a.resolveRole(ctx, res.Token, email)
	}
	sess := domain.Session{
		Email:    email,
		Token:    res.Token,
		Role:     role,
		UserID:   res.UserID,
		ImageURL: res.ImageURL,
	}
	if err := a.sessions.Set(ctx, sess); err != nil {
		return domain.Session{}, fmt.Errorf("store session: %w", err)
	}
	creds := domain.SavedCredentials{Email: email, Password: password, RememberMe: remember}
	if err := a.sessions.SaveCredentials(creds); err != nil {
		logger.Warn("save credentials failed", "err", err)
	}
	logger.Info("logged in", "email", email, "role", role, "user_id", res.UserID)
	return sess, nil
}

// resolveRole reads the user directory with the fresh token. The session is
// not stored yet, so the request carries the token explicitly.
func (a *App) resolveRole(ctx context.Context, token, email string) domain.UserRole {
	client := apiclient.NewClient(apiclient.Config{
		BaseURL:   a.cfg.APIBaseURL,
		Timeout:   a.cfg.RequestTimeout,
		Tokens:    apiclient.StaticToken(token),
		Transport: a.cfg.Transport,
	})
	users, err := client.ListUsers(ctx)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("resolve role failed, defaulting to reviewer", "err", err)
		return domain.RoleReviewer
	}
	return session.ResolveRole(users, email)
}

func (a *App) Logout(ctx context.Context) error {
	return a.sessions.Clear(ctx)
}

// WatchSession calls fn for every login and logout seen by this process,
// including those relayed from other processes, until ctx is done.
func (a *App) WatchSession(ctx context.Context, fn func(session.Event)) error {
	if a.broadcaster == nil {
		return ErrSessionEventsDisabled
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := a.sessions.Subscribe(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return a.sessions.Relay(gctx)
	})
	g.Go(func() error {
		for ev := range events {
			fn(ev)
		}
		return nil
	})
	return g.Wait()
}

// SavedLogin returns the remembered credentials, if any.
func (a *App) SavedLogin() (domain.SavedCredentials, bool, error) {
	return a.sessions.Credentials()
}

// Identity is the current session together with what its token claims.
// Verified is set only when a JWKS URL is configured and the signature
// checked out; VerifyErr carries the reason when it did not.
type Identity struct {
	Session   domain.Session
	Token     session.TokenInfo
	Expired   bool
	Verified  bool
	VerifyErr error
}

func (a *App) WhoAmI(ctx context.Context) (Identity, error) {
	sess, err := a.sessions.Require()
	if err != nil {
		return Identity{}, err
	}
	id := Identity{Session: sess}
	if info, err := session.InspectToken(sess.Token); err == nil {
		id.Token = info
		id.Expired = info.Expired(time.Now())
	}
	if a.verifier != nil {
		if _, err := a.verifier.Verify(ctx, sess.Token); err != nil {
			util.LoggerFromContext(ctx).Warn("token verification failed", "user_id", sess.UserID, "err", err)
			id.VerifyErr = err
		} else {
			id.Verified = true
		}
	}
	return id, nil
}

// ChangePassword checks the new password locally before calling the backend.
func (a *App) ChangePassword(ctx context.Context, oldPassword, newPassword, confirm string) error {
	if err := auth.ValidateChange(oldPassword, newPassword, confirm); err != nil {
		return err
	}
	if err := a.api.ChangePassword(ctx, oldPassword, newPassword); err != nil {
		return a.authFailure(ctx, fmt.Errorf("change password: %w", err))
	}
	if creds, ok, err := a.sessions.Credentials(); err == nil && ok {
		creds.Password = newPassword
		if err := a.sessions.SaveCredentials(creds); err != nil {
			util.LoggerFromContext(ctx).Warn("update saved credentials failed", "err", err)
		}
	}
	return nil
}

func (a *App) ForgotPassword(ctx context.Context, email string) error {
	if strings.TrimSpace(email) == "" {
		return errors.New("email is required")
	}
	return a.api.ForgotPassword(ctx, strings.TrimSpace(email))
}

// ResetPassword verifies the one-time code and sets the new password.
func (a *App) ResetPassword(ctx context.Context, email, otp, newPassword, confirm string) error {
	if newPassword != confirm {
		return auth.ErrPasswordMismatch
	}
	if len(newPassword) < auth.MinPasswordLength {
		return auth.ErrPasswordTooShort
	}
	if err := a.api.VerifyOTP(ctx, email, otp); err != nil {
		return fmt.Errorf("verify code: %w", err)
	}
	if err := a.api.ResetPassword(ctx, email, newPassword); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	return nil
}

// UpdateProfile changes username or email and keeps the session in step.
func (a *App) UpdateProfile(ctx context.Context, upd apiclient.ProfileUpdate) (domain.User, error) {
	sess, err := a.sessions.Require()
	if err != nil {
		return domain.User{}, err
	}
	user, err := a.api.UpdateProfile(ctx, upd)
	if err != nil {
		return domain.User{}, a.authFailure(ctx, fmt.Errorf("update profile: %w", err))
	}
	if user.Email != "" {
		sess.Email = user.Email
	}
	if user.ImageURL != "" {
		sess.ImageURL = user.ImageURL
	}
	if err := a.sessions.Set(ctx, sess); err != nil {
		return user, fmt.Errorf("store session: %w", err)
	}
	return user, nil
}

// authFailure clears the session on 401/403 and reports ErrLoginRequired.
func (a *App) authFailure(ctx context.Context, err error) error {
	if !apiclient.IsAuth(err) {
		return err
	}
	if cerr := a.sessions.Clear(ctx); cerr != nil {
		util.LoggerFromContext(ctx).Warn("clear session failed", "err", cerr)
	}
	return fmt.Errorf("%w: %v", session.ErrLoginRequired, err)
}
