package controllers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/notemarket/notemarket/internal/pkg/settlement"
	"github.com/notemarket/notemarket/internal/pkg/usercontext"
)

const (
	HeaderWebhookSignature = "X-Webhook-Signature"
	HeaderWebhookTimestamp = "X-Webhook-Timestamp"
)

// PaymentSettler is the part of the settlement service the HTTP layer needs.
type PaymentSettler interface {
	HandleGatewayEvent(ctx context.Context, rawBody []byte, signatureHeader string, claimedAt time.Time) settlement.Outcome
	VerifyPayment(ctx context.Context, in settlement.VerifyPaymentInput) settlement.Outcome
}

type PaymentController struct {
	settler PaymentSettler
}

func NewPaymentController(settler PaymentSettler) *PaymentController {
	return &PaymentController{settler: settler}
}

// HandleGatewayWebhook receives captured-payment events from the payment gateway.
// The gateway retries on any non-2xx answer.
func (pc *PaymentController) HandleGatewayWebhook(c *fiber.Ctx) error {
	claimedAt, ok := parseUnixHeader(c.Get(HeaderWebhookTimestamp))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_timestamp"})
	}

	// Fiber reuses the request buffer after the handler returns.
	body := append([]byte(nil), c.Body()...)
	out := pc.settler.HandleGatewayEvent(c.UserContext(), body, c.Get(HeaderWebhookSignature), claimedAt)
	return writeOutcome(c, out)
}

type verifyPaymentRequest struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

// HandleVerifyPayment lets a buyer settle their own order after checkout.
func (pc *PaymentController) HandleVerifyPayment(c *fiber.Ctx) error {
	var req verifyPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	}

	out := pc.settler.VerifyPayment(c.UserContext(), settlement.VerifyPaymentInput{
		UserID:    usercontext.GetUserID(c),
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	})
	return writeOutcome(c, out)
}

func writeOutcome(c *fiber.Ctx, out settlement.Outcome) error {
	if out.StatusCode >= fiber.StatusBadRequest {
		body := fiber.Map{"error": out.Result}
		if out.OrderID != "" {
			body["order_id"] = out.OrderID
		}
		return c.Status(out.StatusCode).JSON(body)
	}

	body := fiber.Map{"status": out.Result}
	if out.OrderID != "" {
		body["order_id"] = out.OrderID
	}
	if out.Settled > 0 {
		body["settled"] = out.Settled
	}
	return c.Status(out.StatusCode).JSON(body)
}

// parseUnixHeader returns the zero time for an empty header.
func parseUnixHeader(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, true
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}, false
	}
	return time.Unix(secs, 0), true
}
