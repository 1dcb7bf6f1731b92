package settlement

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign returns the hex HMAC-SHA256 of payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a hex HMAC-SHA256 header against payload in constant time.
func VerifySignature(payload []byte, signatureHeader, secret string) error {
	sig := strings.TrimSpace(signatureHeader)
	if sig == "" {
		return ErrSignatureMissing
	}
	decoded, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return ErrSignatureMalformed
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), decoded) {
		return ErrSignatureMismatch
	}
	return nil
}

// PaymentSignaturePayload is the message the checkout client signature covers.
func PaymentSignaturePayload(orderID, paymentID string) []byte {
	return []byte(orderID + "|" + paymentID)
}
