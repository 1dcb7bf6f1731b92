package settlement

const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentVerified = "payment.verified"
)

// Result codes reported in Outcome.Result and as the metrics label.
const (
	ResultSettled            = "settled"
	ResultIgnored            = "ignored"
	ResultAlreadyProcessed   = "already_processed"
	ResultUnknownOrder       = "unknown_order"
	ResultSignatureMissing   = "signature_missing"
	ResultSignatureMalformed = "signature_malformed"
	ResultSignatureInvalid   = "invalid_signature"
	ResultTimestampMissing   = "timestamp_missing"
	ResultReplayRejected     = "replay_rejected"
	ResultInvalidPayload     = "invalid_payload"
	ResultForbidden          = "forbidden"
	ResultSettlementFailed   = "settlement_failed"
)

// GatewayEvent is the body the payment gateway POSTs.
type GatewayEvent struct {
	Event     string `json:"event"`
	CreatedAt int64  `json:"created_at"`
	Payload   struct {
		Payment struct {
			Entity PaymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

type PaymentEntity struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// Outcome is everything a caller learns about a settlement call.
type Outcome struct {
	StatusCode int    `json:"-"`
	Result     string `json:"result"`
	OrderID    string `json:"order_id,omitempty"`
	Settled    int    `json:"settled,omitempty"`
}

// VerifyPaymentInput is a client-initiated "I paid, verify me" request.
type VerifyPaymentInput struct {
	UserID    uint   `json:"-" validate:"required"`
	OrderID   string `json:"order_id" validate:"required,max=191"`
	PaymentID string `json:"payment_id" validate:"required,max=191"`
	Signature string `json:"signature" validate:"required"`
}

// EventID derives the idempotency key. Gateway payment ids are never reused.
func EventID(paymentID string) string {
	return "payment:" + paymentID
}

type settleRequest struct {
	source    string
	eventType string
	orderID   string
	paymentID string
	buyerID   uint
	payload   []byte
}
