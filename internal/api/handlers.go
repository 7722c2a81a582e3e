package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"renewal-service/internal/apperr"
	"renewal-service/internal/logging"
	"renewal-service/internal/models"
	"renewal-service/internal/payments"
	"renewal-service/internal/realtime"
	"renewal-service/internal/renewal"
	"renewal-service/internal/subscription"
	"renewal-service/internal/sweep"
)

const (
	maxWebhookBody = 1 << 20
	historyLimit   = 20
)

type Sweeper interface {
	Run(ctx context.Context, now time.Time) (models.RunReport, error)
	Remind(ctx context.Context, sub models.Subscriber, now time.Time) (sweep.Manual, error)
}

type WebhookHandler interface {
	Handle(ctx context.Context, payload []byte) (payments.Outcome, error)
}

type Subscriptions interface {
	Create(ctx context.Context, in subscription.CreateInput) (models.Subscription, error)
	FindActiveByEmail(ctx context.Context, email string) (*models.Subscription, error)
	Cancel(ctx context.Context, id string) (bool, error)
}

type Subscribers interface {
	GetSubscriber(ctx context.Context, id string) (models.Subscriber, error)
}

type NotificationLog interface {
	LastSentAt(ctx context.Context, subscriberID string) (*time.Time, error)
}

type NotificationHistory interface {
	ListNotifications(ctx context.Context, subscriberID string, limit int) ([]models.NotificationRecord, error)
}

type Hub interface {
	AddConnection(ownerID string, conn realtime.Conn) bool
	RemoveConnection(ownerID string, conn realtime.Conn)
}

// Dependencies are the collaborators the HTTP surface calls into.
type Dependencies struct {
	Sweeper       Sweeper
	Webhooks      WebhookHandler
	Subscriptions Subscriptions
	Subscribers   Subscribers
	Notifications NotificationLog
	History       NotificationHistory
	Hub           Hub
	Clock         renewal.Clock
	// CheckoutLinks maps a plan type to its hosted checkout URL.
	CheckoutLinks map[string]string
	// WebhookSecret enables Stripe-Signature verification when set.
	WebhookSecret string
}

type Handler struct {
	deps     Dependencies
	logger   *logging.Logger
	upgrader websocket.Upgrader
}

func NewHandler(deps Dependencies, logger *logging.Logger) *Handler {
	if deps.Clock == nil {
		deps.Clock = renewal.SystemClock{}
	}
	return &Handler{
		deps:   deps,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type sweepResponse struct {
	Success bool `json:"success"`
	models.RunReport
}

// CheckSubscriptions runs one sweep for the scheduler. The sweep outlives a dropped
// connection; every datastore and provider call carries its own timeout.
func (h *Handler) CheckSubscriptions(c *gin.Context) {
	now := h.deps.Clock.Now()
	report, err := h.deps.Sweeper.Run(context.WithoutCancel(c.Request.Context()), now)
	if err != nil {
		h.logger.Errorf("Subscription sweep failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success":   false,
			"error":     err.Error(),
			"timestamp": h.deps.Clock.Now(),
		})
		return
	}

	h.logger.Infof("Subscription sweep: %d evaluated, %d sent, %d errors", report.TotalEvaluated, report.Sent, report.Errors)
	c.JSON(http.StatusOK, sweepResponse{Success: true, RunReport: report})
}

func (h *Handler) PaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		h.logger.Errorf("Failed to read webhook body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if h.deps.WebhookSecret != "" {
		header := c.GetHeader(payments.SignatureHeader)
		if err := payments.VerifySignature(payload, header, h.deps.WebhookSecret, h.deps.Clock.Now(), payments.DefaultSignatureTolerance); err != nil {
			h.logger.Warnf("Rejected webhook: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
			return
		}
	}

	outcome, err := h.deps.Webhooks.Handle(c.Request.Context(), payload)
	if err != nil {
		if apperr.IsValidation(err) {
			h.logger.Errorf("Unparseable webhook body: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
			return
		}
		h.logger.Errorf("Webhook processing failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook processing failed"})
		return
	}

	h.logger.Infof("Webhook processed: %s", outcome)
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *Handler) CreateSubscription(c *gin.Context) {
	var in subscription.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.logger.Errorf("Invalid request body for subscription: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	sub, err := h.deps.Subscriptions.Create(c.Request.Context(), in)
	if err != nil {
		if apperr.IsValidation(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Errorf("Failed to create subscription: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create subscription"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":      true,
		"subscription": sub,
		"stripeLink":   h.deps.CheckoutLinks[string(sub.PlanType)],
	})
}

func (h *Handler) GetActiveSubscription(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}

	sub, err := h.deps.Subscriptions.FindActiveByEmail(c.Request.Context(), email)
	if err != nil {
		h.logger.Errorf("Failed to find active subscription: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get subscription"})
		return
	}
	if sub == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No active subscription"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "subscription": sub})
}

func (h *Handler) CancelSubscription(c *gin.Context) {
	id := c.Param("id")
	changed, err := h.deps.Subscriptions.Cancel(c.Request.Context(), id)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Subscription not found"})
		return
	case errors.Is(err, apperr.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "Subscription can no longer be cancelled"})
		return
	case err != nil:
		h.logger.Errorf("Failed to cancel subscription %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel subscription"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "changed": changed})
}

// GetSubscriberStatus returns how a subscriber classifies right now and when it was last reminded.
func (h *Handler) GetSubscriberStatus(c *gin.Context) {
	sub, ok := h.subscriber(c)
	if !ok {
		return
	}
	if sub.AnchorDate.IsZero() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Subscriber has no subscription date"})
		return
	}
	last, err := h.deps.Notifications.LastSentAt(c.Request.Context(), sub.ID)
	if err != nil {
		h.logger.Errorf("Failed to read notification log for %s: %v", sub.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get notifications"})
		return
	}

	history, err := h.deps.History.ListNotifications(c.Request.Context(), sub.ID, historyLimit)
	if err != nil {
		h.logger.Errorf("Failed to list notifications for %s: %v", sub.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get notifications"})
		return
	}

	status := renewal.Classify(sub.AnchorDate, h.deps.Clock.Now())
	c.JSON(http.StatusOK, gin.H{
		"cliente":             sub,
		"dias_restantes":      status.DaysRemaining,
		"tier":                status.Tier,
		"mensaje":             status.Message,
		"fecha_vencimiento":   renewal.ExpirationDate(sub.AnchorDate),
		"ultima_notificacion": last,
		"historial":           history,
	})
}

// SendReminder reminds one subscriber now, under the same cooldown as a sweep.
func (h *Handler) SendReminder(c *gin.Context) {
	sub, ok := h.subscriber(c)
	if !ok {
		return
	}
	res, err := h.deps.Sweeper.Remind(context.WithoutCancel(c.Request.Context()), sub, h.deps.Clock.Now())
	if err != nil {
		if apperr.IsValidation(err) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		h.logger.Errorf("Manual reminder for %s failed: %v", sub.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send reminder"})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) subscriber(c *gin.Context) (models.Subscriber, bool) {
	id := c.Param("id")
	sub, err := h.deps.Subscribers.GetSubscriber(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Subscriber not found"})
			return models.Subscriber{}, false
		}
		h.logger.Errorf("Failed to get subscriber %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get subscriber"})
		return models.Subscriber{}, false
	}
	return sub, true
}

// ReminderFeed upgrades to a websocket that receives reminders sent for owner_id.
func (h *Handler) ReminderFeed(c *gin.Context) {
	ownerID := c.Query("owner_id")
	if ownerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner_id is required"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed for owner %s: %v", ownerID, err)
		return
	}
	if !h.deps.Hub.AddConnection(ownerID, conn) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many connections"))
		_ = conn.Close()
		return
	}
	defer func() {
		h.deps.Hub.RemoveConnection(ownerID, conn)
		_ = conn.Close()
	}()

	// The feed is push only; reading keeps control frames flowing and detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
