package core

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/padraicbc/kmtapi/models"
)

var (
	experienceLevels = []string{"beginner", "intermediate", "experienced", "expert"}
	workStatuses     = []string{"available", "unavailable", "busy"}
)

// Registration is the input to RegisterMarshal and CreateManager.
type Registration struct {
	Name     string
	Email    string
	Phone    string
	Password string
	Profile  models.Profile
}

func (r *Registration) normalize() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Phone = strings.TrimSpace(r.Phone)
	if r.Name == "" {
		return newError(KindInvalidArgument, "name is required")
	}
	if r.Email == "" {
		return newError(KindInvalidArgument, "email is required")
	}
	if strings.TrimSpace(r.Password) == "" {
		return newError(KindInvalidArgument, "password is required")
	}
	return validateProfile(r.Profile)
}

func validateProfile(p models.Profile) error {
	if p.ExperienceLevel != "" && !slices.Contains(experienceLevels, p.ExperienceLevel) {
		return newError(KindInvalidArgument, "unknown experience level %q", p.ExperienceLevel)
	}
	if p.WorkStatus != "" && !slices.Contains(workStatuses, p.WorkStatus) {
		return newError(KindInvalidArgument, "unknown work status %q", p.WorkStatus)
	}
	return nil
}

// RegisterMarshal creates a pending marshal account with a freshly allocated
// KMT-<n> identifier. Nothing is stored if allocation fails.
func (s *Service) RegisterMarshal(ctx context.Context, reg Registration) (*models.User, error) {
	if err := reg.normalize(); err != nil {
		return nil, err
	}
	if reg.Profile.WorkStatus == "" {
		reg.Profile.WorkStatus = "available"
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.hashCost)
	if err != nil {
		return nil, newError(KindInvalidArgument, "password: %v", err)
	}

	marshalID, err := s.ids.NextMarshalID(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	u := &models.User{
		ID:        uuid.New(),
		Name:      reg.Name,
		Email:     reg.Email,
		Phone:     reg.Phone,
		Password:  string(hash),
		Role:      models.RoleMarshal,
		Status:    models.AccountPending,
		MarshalID: &marshalID,
		Profile:   reg.Profile,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		switch {
		case errors.Is(err, ErrMarshalIDTaken):
			// The counter is behind existing accounts, e.g. after an import
			// that did not advance it.
			s.log.Error("marshal id already allocated", zap.String("marshal_id", marshalID))
			return nil, &Error{Kind: KindUnavailable, Msg: "marshal id " + marshalID + " already allocated", Err: ErrMarshalIDTaken}
		case errors.Is(err, ErrConflict):
			return nil, newError(KindConflict, "email already registered")
		}
		return nil, storeErr("create marshal", err)
	}
	s.log.Info("marshal registered", zap.String("marshal_id", marshalID))
	return u, nil
}

// CreateManager creates an approved manager account. Managers carry no
// marshal identifier.
func (s *Service) CreateManager(ctx context.Context, reg Registration) (*models.User, error) {
	if err := reg.normalize(); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.hashCost)
	if err != nil {
		return nil, newError(KindInvalidArgument, "password: %v", err)
	}

	now := s.now()
	u := &models.User{
		ID:        uuid.New(),
		Name:      reg.Name,
		Email:     reg.Email,
		Phone:     reg.Phone,
		Password:  string(hash),
		Role:      models.RoleManager,
		Status:    models.AccountApproved,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, newError(KindConflict, "email already registered")
		}
		return nil, storeErr("create manager", err)
	}
	return u, nil
}

// Authenticate checks an email/password pair. Suspended and rejected accounts
// cannot sign in.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	u, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, newError(KindForbidden, "incorrect email or password")
		}
		return nil, storeErr("load user", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		return nil, newError(KindForbidden, "incorrect email or password")
	}
	if u.Status == models.AccountSuspended || u.Status == models.AccountRejected {
		return nil, newError(KindForbidden, "account is %s", u.Status)
	}
	return u, nil
}

// Me returns the caller's own account.
func (s *Service) Me(ctx context.Context, caller Caller) (*models.User, error) {
	u, err := s.store.GetUser(ctx, caller.ID)
	if err != nil {
		return nil, notFound("user", err)
	}
	return u, nil
}

// UpdateProfile replaces the caller's profile.
func (s *Service) UpdateProfile(ctx context.Context, caller Caller, p models.Profile) (*models.User, error) {
	if err := validateProfile(p); err != nil {
		return nil, err
	}
	if err := s.store.UpdateProfile(ctx, caller.ID, p, s.now()); err != nil {
		return nil, notFound("user", err)
	}
	return s.Me(ctx, caller)
}

// SetAccountStatus moderates a marshal account.
func (s *Service) SetAccountStatus(ctx context.Context, caller Caller, userID uuid.UUID, status models.AccountStatus) (*models.User, error) {
	if err := requireManager(caller); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, newError(KindInvalidArgument, "unknown account status %q", status)
	}
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, notFound("user", err)
	}
	if u.Role != models.RoleMarshal {
		return nil, newError(KindInvalidArgument, "only marshal accounts are moderated")
	}
	now := s.now()
	if err := s.store.UpdateAccountStatus(ctx, userID, status, now); err != nil {
		return nil, notFound("user", err)
	}
	u.Status = status
	u.UpdatedAt = now
	s.log.Info("account status changed", zap.String("user", userID.String()), zap.String("status", string(status)))
	return u, nil
}

// Inbox returns the caller's notifications in insertion order.
func (s *Service) Inbox(ctx context.Context, caller Caller) ([]models.Notification, error) {
	ns, err := s.store.ListNotifications(ctx, caller.ID)
	if err != nil {
		return nil, storeErr("list notifications", err)
	}
	return ns, nil
}

// MarkNotificationRead flags one of the caller's notifications as read.
func (s *Service) MarkNotificationRead(ctx context.Context, caller Caller, id int64) error {
	if err := s.store.MarkNotificationRead(ctx, caller.ID, id); err != nil {
		return notFound("notification", err)
	}
	return nil
}
