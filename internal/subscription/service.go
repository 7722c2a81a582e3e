package subscription

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"renewal-service/internal/apperr"
	"renewal-service/internal/logging"
	"renewal-service/internal/models"
)

type Repository interface {
	CreateSubscription(ctx context.Context, s models.Subscription) error
	GetSubscription(ctx context.Context, id string) (models.Subscription, error)
	FindSubscriptionBySession(ctx context.Context, sessionID string) (*models.Subscription, error)
	FindActiveSubscription(ctx context.Context, email string, now time.Time) (*models.Subscription, error)
	FindPendingSubscription(ctx context.Context, email string, plan models.PlanType) (*models.Subscription, error)
	TransitionSubscription(ctx context.Context, c models.StatusChange) (bool, error)
}

type CreateInput struct {
	Email    string          `json:"email" validate:"required,email"`
	PlanType models.PlanType `json:"planType" validate:"required,oneof=monthly annual lifetime"`
	UserID   string          `json:"userId"`
	Currency string          `json:"currency" validate:"omitempty,len=3,alpha"`
}

// Service owns subscription status. No other component writes it.
type Service struct {
	repo     Repository
	currency string
	now      func() time.Time
	validate *validator.Validate
	logger   *logging.Logger
}

func NewService(repo Repository, defaultCurrency string, now func() time.Time, logger *logging.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	})
	return &Service{
		repo:     repo,
		currency: strings.ToUpper(defaultCurrency),
		now:      now,
		validate: validate,
		logger:   logger,
	}
}

// Create stores a new subscription in pending status.
func (s *Service) Create(ctx context.Context, in CreateInput) (models.Subscription, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := s.validate.Struct(in); err != nil {
		return models.Subscription{}, validationError(err)
	}
	plan, ok := LookupPlan(in.PlanType)
	if !ok {
		return models.Subscription{}, &apperr.ValidationError{Field: "planType", Reason: "unknown plan"}
	}
	currency := s.currency
	if in.Currency != "" {
		currency = strings.ToUpper(in.Currency)
	}

	now := s.now()
	sub := models.Subscription{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		Email:     in.Email,
		PlanType:  plan.Type,
		PlanName:  plan.Name,
		Amount:    plan.Amount,
		Currency:  currency,
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateSubscription(ctx, sub); err != nil {
		return models.Subscription{}, &apperr.PersistenceError{Op: "create subscription", Err: err}
	}
	s.logger.WithFields(logrus.Fields{"subscription_id": sub.ID, "plan": sub.PlanType}).Info("Created pending subscription")
	return sub, nil
}

// UpdateStatus moves a subscription to status to. It reports false without error when the
// subscription is already in that status.
func (s *Service) UpdateStatus(ctx context.Context, id string, to models.Status, refs models.ProviderRefs) (bool, error) {
	current, err := s.get(ctx, id)
	if err != nil {
		return false, err
	}
	if current.Status == to {
		s.logNoop(current, refs)
		return false, nil
	}
	if !CanTransition(current.Status, to) {
		return false, fmt.Errorf("subscription %s %s -> %s: %w", id, current.Status, to, apperr.ErrInvalidTransition)
	}

	now := s.now()
	change := models.StatusChange{ID: id, From: current.Status, To: to, Refs: refs, At: now}
	if to == models.StatusPaid {
		change.ExpiresAt = ExpiresAt(current.PlanType, now)
	}

	changed, err := s.repo.TransitionSubscription(ctx, change)
	if err != nil {
		return false, &apperr.PersistenceError{Op: "update subscription status", Err: err}
	}
	if changed {
		s.logger.WithFields(logrus.Fields{"subscription_id": id, "from": current.Status, "to": to}).Info("Subscription status changed")
		return true, nil
	}

	// Another writer got there first; settle on whatever it wrote.
	latest, err := s.get(ctx, id)
	if err != nil {
		return false, err
	}
	if latest.Status == to {
		s.logNoop(latest, refs)
		return false, nil
	}
	return false, fmt.Errorf("subscription %s %s -> %s: %w", id, latest.Status, to, apperr.ErrInvalidTransition)
}

func (s *Service) Cancel(ctx context.Context, id string) (bool, error) {
	return s.UpdateStatus(ctx, id, models.StatusCancelled, models.ProviderRefs{})
}

func (s *Service) Expire(ctx context.Context, id string) (bool, error) {
	return s.UpdateStatus(ctx, id, models.StatusExpired, models.ProviderRefs{})
}

// FindActiveByEmail returns the paid, unexpired subscription for email, or nil.
func (s *Service) FindActiveByEmail(ctx context.Context, email string) (*models.Subscription, error) {
	sub, err := s.repo.FindActiveSubscription(ctx, normalizeEmail(email), s.now())
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "find active subscription", Err: err}
	}
	return sub, nil
}

// FindPendingByEmailAndPlan returns the most recently created pending subscription, or nil.
func (s *Service) FindPendingByEmailAndPlan(ctx context.Context, email string, plan models.PlanType) (*models.Subscription, error) {
	sub, err := s.repo.FindPendingSubscription(ctx, normalizeEmail(email), plan)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "find pending subscription", Err: err}
	}
	return sub, nil
}

func (s *Service) FindBySessionRef(ctx context.Context, sessionID string) (*models.Subscription, error) {
	sub, err := s.repo.FindSubscriptionBySession(ctx, sessionID)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "find subscription by session", Err: err}
	}
	return sub, nil
}

func (s *Service) get(ctx context.Context, id string) (models.Subscription, error) {
	sub, err := s.repo.GetSubscription(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return models.Subscription{}, err
		}
		return models.Subscription{}, &apperr.PersistenceError{Op: "get subscription", Err: err}
	}
	return sub, nil
}

func (s *Service) logNoop(sub models.Subscription, refs models.ProviderRefs) {
	entry := s.logger.WithFields(logrus.Fields{"subscription_id": sub.ID, "status": sub.Status})
	if refs.SessionID != "" && sub.SessionID != nil && *sub.SessionID != refs.SessionID {
		entry.Warnf("Status already applied by session %s, ignoring session %s", *sub.SessionID, refs.SessionID)
		return
	}
	entry.Info("Status already applied, nothing to do")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &apperr.ValidationError{Field: verrs[0].Field(), Reason: "failed " + verrs[0].Tag() + " check"}
	}
	return &apperr.ValidationError{Reason: err.Error()}
}
