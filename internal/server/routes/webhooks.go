package routes

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/fr0stylo/synclink/internal/webhooks"
)

const maxWebhookBodyBytes = 1 << 20

// WebhookReceiver verifies and applies one provider delivery.
type WebhookReceiver interface {
	Receive(ctx context.Context, req webhooks.Request) (webhooks.Ack, error)
}

// WebhookRoutes registers provider webhook endpoints.
type WebhookRoutes struct {
	receiver  WebhookReceiver
	publicURL string
}

// NewWebhookRoutes constructs webhook routes. publicURL is the externally
// visible origin providers sign against.
func NewWebhookRoutes(receiver WebhookReceiver, publicURL string) *WebhookRoutes {
	return &WebhookRoutes{receiver: receiver, publicURL: strings.TrimRight(publicURL, "/")}
}

func (w *WebhookRoutes) RegisterRoutes(s *echo.Echo) {
	s.GET("/webhooks/:provider", w.handleWebhook)
	s.POST("/webhooks/:provider", w.handleWebhook)
}

func (w *WebhookRoutes) handleWebhook(c echo.Context) error {
	request := c.Request()
	// One extra byte lets the router reject oversized bodies instead of seeing a truncated one.
	body, err := io.ReadAll(io.LimitReader(request.Body, maxWebhookBodyBytes+1))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}

	ack, err := w.receiver.Receive(request.Context(), webhooks.Request{
		Provider: c.Param("provider"),
		Method:   request.Method,
		URL:      w.signedURL(request),
		Headers:  request.Header,
		Query:    request.URL.Query(),
		Body:     body,
	})
	if err != nil {
		code := webhooks.HTTPStatus(err)
		message := http.StatusText(code)
		if code < http.StatusInternalServerError {
			message = err.Error()
		}
		return c.JSON(code, map[string]string{"error": message})
	}
	switch ack.Status {
	case webhooks.AckChallenge:
		return c.String(http.StatusOK, ack.Challenge)
	case webhooks.AckDropped:
		return c.JSON(http.StatusAccepted, ack)
	}
	return c.JSON(http.StatusOK, ack)
}

func (w *WebhookRoutes) signedURL(request *http.Request) string {
	if w.publicURL != "" {
		return w.publicURL + request.URL.RequestURI()
	}
	scheme := "http"
	if request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + request.Host + request.URL.RequestURI()
}
