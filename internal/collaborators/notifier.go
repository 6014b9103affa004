package collaborators

import (
	"context"

	"github.com/go-resty/resty/v2"
	"github.com/seatpay/backend/internal/models"
)

// NotificationClient hands user notifications to the notification service
type NotificationClient struct {
	http *resty.Client
}

// NewNotificationClient creates a new notification service client
func NewNotificationClient(opts Options) *NotificationClient {
	return &NotificationClient{http: newClient(opts)}
}

// Notify posts a notification
func (c *NotificationClient) Notify(ctx context.Context, n models.Notification) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(n).
		Post("/notifications")
	return check("notify", resp, err, nil)
}
