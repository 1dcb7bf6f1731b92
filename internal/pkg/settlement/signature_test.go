package settlement

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"event":"payment.captured"}`)
	secret := "whsec_test"
	valid := Sign(payload, secret)

	tests := []struct {
		name   string
		header string
		secret string
		want   error
	}{
		{name: "valid", header: valid, secret: secret, want: nil},
		{name: "uppercase hex", header: strings.ToUpper(valid), secret: secret, want: nil},
		{name: "surrounding whitespace", header: "  " + valid + "\n", secret: secret, want: nil},
		{name: "missing", header: "", secret: secret, want: ErrSignatureMissing},
		{name: "blank", header: "   ", secret: secret, want: ErrSignatureMissing},
		{name: "not hex", header: "zz-not-hex", secret: secret, want: ErrSignatureMalformed},
		{name: "odd length", header: valid[:len(valid)-1], secret: secret, want: ErrSignatureMalformed},
		{name: "wrong secret", header: valid, secret: "other", want: ErrSignatureMismatch},
		{name: "truncated", header: valid[:32], secret: secret, want: ErrSignatureMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySignature(payload, tt.header, tt.secret)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestVerifySignature_BodyTampering(t *testing.T) {
	secret := "whsec_test"
	sig := Sign([]byte(`{"amount":100}`), secret)
	assert.ErrorIs(t, VerifySignature([]byte(`{"amount":1}`), sig, secret), ErrSignatureMismatch)
}

func TestPaymentSignaturePayload(t *testing.T) {
	assert.Equal(t, []byte("order_1|pay_1"), PaymentSignaturePayload("order_1", "pay_1"))
	assert.Equal(t, "payment:pay_1", EventID("pay_1"))
}
