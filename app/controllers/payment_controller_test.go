package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notemarket/notemarket/app/models"
	"github.com/notemarket/notemarket/internal/pkg/alert"
	"github.com/notemarket/notemarket/internal/pkg/database"
	"github.com/notemarket/notemarket/internal/pkg/settlement"
	"github.com/notemarket/notemarket/internal/pkg/usercontext"
)

type fakeSettler struct {
	body      []byte
	signature string
	claimedAt time.Time
	verify    settlement.VerifyPaymentInput
	out       settlement.Outcome
}

func (f *fakeSettler) HandleGatewayEvent(_ context.Context, rawBody []byte, signatureHeader string, claimedAt time.Time) settlement.Outcome {
	f.body, f.signature, f.claimedAt = rawBody, signatureHeader, claimedAt
	return f.out
}

func (f *fakeSettler) VerifyPayment(_ context.Context, in settlement.VerifyPaymentInput) settlement.Outcome {
	f.verify = in
	return f.out
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestHandleGatewayWebhook_PassesHeaders(t *testing.T) {
	settler := &fakeSettler{out: settlement.Outcome{StatusCode: http.StatusOK, Result: settlement.ResultSettled, OrderID: "order_9", Settled: 2}}
	app := fiber.New()
	app.Post("/webhook", NewPaymentController(settler).HandleGatewayWebhook)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(`{"event":"payment.captured"}`))
	req.Header.Set(HeaderWebhookSignature, "abc123")
	req.Header.Set(HeaderWebhookTimestamp, "1700000000")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"event":"payment.captured"}`, string(settler.body))
	assert.Equal(t, "abc123", settler.signature)
	assert.Equal(t, int64(1700000000), settler.claimedAt.Unix())

	body := decodeBody(t, resp)
	assert.Equal(t, "settled", body["status"])
	assert.Equal(t, "order_9", body["order_id"])
	assert.Equal(t, float64(2), body["settled"])
}

func TestHandleGatewayWebhook_TimestampHeader(t *testing.T) {
	settler := &fakeSettler{out: settlement.Outcome{StatusCode: http.StatusUnauthorized, Result: settlement.ResultSignatureInvalid}}
	app := fiber.New()
	app.Post("/webhook", NewPaymentController(settler).HandleGatewayWebhook)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(`{}`))
	req.Header.Set(HeaderWebhookTimestamp, "yesterday")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_timestamp", decodeBody(t, resp)["error"])

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(`{}`)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.True(t, settler.claimedAt.IsZero())
	assert.Equal(t, "invalid_signature", decodeBody(t, resp)["error"])
}

func TestHandleVerifyPayment_UsesAuthenticatedUser(t *testing.T) {
	settler := &fakeSettler{out: settlement.Outcome{StatusCode: http.StatusForbidden, Result: settlement.ResultForbidden, OrderID: "order_2"}}
	app := fiber.New()
	app.Post("/verify", func(c *fiber.Ctx) error {
		usercontext.Set(c, usercontext.UserContext{UserID: 11, IsAuthenticated: true})
		return c.Next()
	}, NewPaymentController(settler).HandleVerifyPayment)

	req := httptest.NewRequest(http.MethodPost, "/verify", bytes.NewBufferString(`{"order_id":"order_2","payment_id":"pay_2","signature":"ff"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, settlement.VerifyPaymentInput{UserID: 11, OrderID: "order_2", PaymentID: "pay_2", Signature: "ff"}, settler.verify)
	assert.Equal(t, "forbidden", decodeBody(t, resp)["error"])
}

func TestParseUnixHeader(t *testing.T) {
	ts, ok := parseUnixHeader("")
	assert.True(t, ok)
	assert.True(t, ts.IsZero())

	_, ok = parseUnixHeader("-5")
	assert.False(t, ok)

	ts, ok = parseUnixHeader(" 42 ")
	assert.True(t, ok)
	assert.Equal(t, int64(42), ts.Unix())
}

// A sender retry of the same captured event settles once and acknowledges twice.
func TestGatewayWebhook_EndToEndRetry(t *testing.T) {
	db, err := database.OpenSQLite(t.Name())
	require.NoError(t, err)

	const secret = "whsec_e2e"
	svc, err := settlement.NewServiceFromDB(settlement.Config{WebhookSecret: secret}, db, alert.NewDispatcher(alert.Config{}, nil))
	require.NoError(t, err)

	note := models.Note{SellerID: 5, Title: "Thermodynamics", FileKey: "notes/thermo.pdf"}
	require.NoError(t, db.Create(&note).Error)
	require.NoError(t, db.Create(&models.Transaction{
		GatewayOrderID: "order_1",
		BuyerID:        9,
		SellerID:       5,
		NoteID:         note.ID,
		SellerEarning:  decimal.NewFromInt(90),
		Status:         models.TransactionStatusPending,
	}).Error)

	app := fiber.New()
	app.Post("/api/v1/payments/webhook", NewPaymentController(svc).HandleGatewayWebhook)

	body := fmt.Sprintf(`{"event":"payment.captured","created_at":%d,"payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1","amount":9000,"currency":"INR","status":"captured"}}}}`, time.Now().Unix())
	send := func() *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewBufferString(body))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		req.Header.Set(HeaderWebhookSignature, settlement.Sign([]byte(body), secret))
		req.Header.Set(HeaderWebhookTimestamp, strconv.FormatInt(time.Now().Unix(), 10))
		resp, err := app.Test(req, 5000)
		require.NoError(t, err)
		return resp
	}

	first := send()
	second := send()
	assert.Equal(t, http.StatusOK, first.StatusCode)
	assert.Equal(t, http.StatusOK, second.StatusCode)
	assert.Equal(t, "settled", decodeBody(t, first)["status"])
	assert.Equal(t, "already_processed", decodeBody(t, second)["status"])

	var purchases int64
	require.NoError(t, db.Model(&models.Purchase{}).Count(&purchases).Error)
	assert.Equal(t, int64(1), purchases)

	var wallet models.SellerWallet
	require.NoError(t, db.Where("seller_id = ?", 5).First(&wallet).Error)
	assert.True(t, decimal.NewFromInt(90).Equal(wallet.PendingBalance))

	var logs []models.WebhookLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, models.WebhookLogStatusProcessed, logs[0].Status)
}
