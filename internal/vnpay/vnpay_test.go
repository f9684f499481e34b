package vnpay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "SECRETKEY0123456789"

var testNow = time.Date(2026, 3, 14, 8, 30, 5, 0, time.UTC)

func newTestSigner(t *testing.T, rate string) *Signer {
	t.Helper()
	s, err := NewSigner(Config{
		TmnCode:      "DINEIN01",
		HashSecret:   testSecret,
		PaymentURL:   "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		ReturnURL:    "https://shop.example/return?x=1",
		ExchangeRate: decimal.RequireFromString(rate),
	}, WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	return s
}

func hmacHex(data string) string {
	mac := hmac.New(sha512.New, []byte(testSecret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// gatewayQuery builds a query string signed the way the gateway signs callbacks.
func gatewayQuery(params map[string]string) string {
	canonical := canonicalize(params)
	return canonical + "&vnp_SecureHash=" + hmacHex(canonical)
}

func successParams() map[string]string {
	return map[string]string{
		"vnp_TmnCode":           "DINEIN01",
		"vnp_TxnRef":            "7d7a3c1e-order",
		"vnp_Amount":            "55000000",
		"vnp_OrderInfo":         "Thanh toan don hang 260314-AB12CD",
		"vnp_ResponseCode":      "00",
		"vnp_TransactionStatus": "00",
		"vnp_TransactionNo":     "14422574",
		"vnp_BankCode":          "NCB",
		"vnp_BankTranNo":        "VNP14422574",
		"vnp_CardType":          "ATM",
		"vnp_PayDate":           "20260314153512",
	}
}

func TestEncodeComponent(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abcXYZ019", "abcXYZ019"},
		{"-_.!~*'()", "-_.!~*'()"},
		{"a b", "a+b"},
		{"https://x.y/z?a=1&b=2", "https%3A%2F%2Fx.y%2Fz%3Fa%3D1%26b%3D2"},
		{"#+%", "%23%2B%25"},
		{"Đơn", "%C4%90%C6%A1n"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, encodeComponent(tt.in))
		})
	}
}

func TestSign_KnownVector(t *testing.T) {
	s := newTestSigner(t, "25000")

	got, err := s.Sign(PaymentRequest{
		TxnRef:    "order-1",
		Amount:    decimal.RequireFromString("22.00"),
		OrderInfo: "Thanh toan don hang #A1",
		IPAddr:    "127.0.0.1",
		BankCode:  "NCB",
	})
	require.NoError(t, err)

	canonical := "vnp_Amount=55000000" +
		"&vnp_BankCode=NCB" +
		"&vnp_Command=pay" +
		"&vnp_CreateDate=20260314153005" +
		"&vnp_CurrCode=VND" +
		"&vnp_IpAddr=127.0.0.1" +
		"&vnp_Locale=vn" +
		"&vnp_OrderInfo=Thanh+toan+don+hang+%23A1" +
		"&vnp_OrderType=other" +
		"&vnp_ReturnUrl=https%3A%2F%2Fshop.example%2Freturn%3Fx%3D1" +
		"&vnp_TmnCode=DINEIN01" +
		"&vnp_TxnRef=order-1" +
		"&vnp_Version=2.1.0"

	want := "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html?" + canonical + "&vnp_SecureHash=" + hmacHex(canonical)
	assert.Equal(t, want, got)
}

func TestSign_OmitsEmptyBankCode(t *testing.T) {
	s := newTestSigner(t, "1")

	got, err := s.Sign(PaymentRequest{TxnRef: "o", Amount: decimal.NewFromInt(10000), IPAddr: "::1", Locale: "en"})
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.NotContains(t, u.RawQuery, "vnp_BankCode")
	assert.Equal(t, "en", u.Query().Get("vnp_Locale"))
	assert.Equal(t, "1000000", u.Query().Get("vnp_Amount"))
}

func TestSign_RoundTrip(t *testing.T) {
	s := newTestSigner(t, "25000")

	for _, info := range []string{
		"plain",
		"with spaces and #hash & ampersand",
		"Thanh toán đơn hàng",
		"quotes ' ( ) * ! ~",
	} {
		got, err := s.Sign(PaymentRequest{TxnRef: "ref", Amount: decimal.RequireFromString("3.99"), OrderInfo: info, IPAddr: "10.0.0.1"})
		require.NoError(t, err)

		u, err := url.Parse(got)
		require.NoError(t, err)

		canonical, hash := canonicalizeRaw(u.RawQuery)
		assert.Equal(t, hmacHex(canonical), hash, info)
		assert.Equal(t, info, u.Query().Get("vnp_OrderInfo"))
	}
}

func TestSign_Errors(t *testing.T) {
	s := newTestSigner(t, "1")

	_, err := s.Sign(PaymentRequest{Amount: decimal.NewFromInt(1000)})
	require.Error(t, err)

	_, err = s.Sign(PaymentRequest{TxnRef: "o", Amount: decimal.NewFromInt(49)})
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestSettlementAmount(t *testing.T) {
	tests := []struct {
		rate   string
		amount string
		want   int64
	}{
		{"1", "150000", 15000000},
		{"1", "149949", 14990000},
		{"1", "149950", 15000000},
		{"25000", "22.00", 55000000},
		{"25000", "1.234", 3090000},
	}
	for _, tt := range tests {
		s := newTestSigner(t, tt.rate)
		assert.Equal(t, tt.want, s.SettlementAmount(decimal.RequireFromString(tt.amount)), "%s x %s", tt.amount, tt.rate)
	}
}

func TestDisplayAmount(t *testing.T) {
	s := newTestSigner(t, "25000")
	assert.True(t, decimal.RequireFromString("22").Equal(s.DisplayAmount(55000000)))

	s = newTestSigner(t, "1")
	assert.True(t, decimal.NewFromInt(150000).Equal(s.DisplayAmount(15000000)))
}

func TestVerifyQuery_Success(t *testing.T) {
	s := newTestSigner(t, "25000")

	cb, err := s.VerifyQuery(gatewayQuery(successParams()))
	require.NoError(t, err)

	assert.True(t, cb.Success)
	assert.Equal(t, "7d7a3c1e-order", cb.TxnRef)
	assert.Equal(t, int64(55000000), cb.Amount)
	assert.True(t, decimal.NewFromInt(22).Equal(cb.DisplayAmount))
	assert.Equal(t, "14422574", cb.TransactionNo)
	assert.Equal(t, "Transaction successful", cb.Message)
	assert.Equal(t, time.Date(2026, 3, 14, 8, 35, 12, 0, time.UTC), cb.PayDate.UTC())
}

func TestVerify_IgnoresSecureHashType(t *testing.T) {
	s := newTestSigner(t, "1")
	q := gatewayQuery(successParams()) + "&vnp_SecureHashType=HmacSHA512"

	_, err := s.VerifyQuery(q)
	require.NoError(t, err)

	values, err := url.ParseQuery(q)
	require.NoError(t, err)
	_, err = s.VerifyValues(values)
	require.NoError(t, err)
}

func TestVerifyQuery_LeadingQuestionMark(t *testing.T) {
	s := newTestSigner(t, "1")

	_, err := s.VerifyQuery("?" + gatewayQuery(successParams()))
	require.NoError(t, err)
}

func TestVerifyQuery_Declined(t *testing.T) {
	s := newTestSigner(t, "1")

	tests := []struct {
		response string
		status   string
		message  string
	}{
		{"24", "02", "Customer cancelled the transaction"},
		{"51", "02", "Insufficient account balance"},
		{"00", "01", "Transaction successful"},
		{"42", "02", "Unknown error"},
	}
	for _, tt := range tests {
		p := successParams()
		p["vnp_ResponseCode"] = tt.response
		p["vnp_TransactionStatus"] = tt.status

		cb, err := s.VerifyQuery(gatewayQuery(p))
		require.NoError(t, err)
		assert.False(t, cb.Success, tt.response)
		assert.Equal(t, tt.message, cb.Message)
	}
}

func TestVerifyQuery_TamperedCharacter(t *testing.T) {
	s := newTestSigner(t, "1")
	q := gatewayQuery(successParams())

	for i := 0; i < len(q); i++ {
		b := []byte(q)
		if b[i] == 'x' {
			b[i] = 'y'
		} else {
			b[i] = 'x'
		}

		_, err := s.VerifyQuery(string(b))
		require.ErrorIs(t, err, ErrInvalidSignature, "position %d", i)
	}
}

func TestVerifyQuery_MissingHash(t *testing.T) {
	s := newTestSigner(t, "1")

	_, err := s.VerifyQuery(canonicalize(successParams()))
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyQuery_WrongSecret(t *testing.T) {
	other, err := NewSigner(Config{TmnCode: "DINEIN01", HashSecret: "other", PaymentURL: "https://example"})
	require.NoError(t, err)

	_, err = other.VerifyQuery(gatewayQuery(successParams()))
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyQuery_PreservesRawEncoding(t *testing.T) {
	s := newTestSigner(t, "1")

	// The sender encodes spaces as %20 and signs that form.
	p := successParams()
	canonical := strings.ReplaceAll(canonicalize(p), "+", "%20")
	raw := canonical + "&vnp_SecureHash=" + hmacHex(canonical)

	cb, err := s.VerifyQuery(raw)
	require.NoError(t, err)
	assert.Equal(t, "Thanh toan don hang 260314-AB12CD", cb.OrderInfo)

	// Re-encoding the decoded values yields "+" and no longer matches.
	values, err := url.ParseQuery(raw)
	require.NoError(t, err)
	_, err = s.VerifyValues(values)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyValues(t *testing.T) {
	s := newTestSigner(t, "1")

	values, err := url.ParseQuery(gatewayQuery(successParams()))
	require.NoError(t, err)

	cb, err := s.VerifyValues(values)
	require.NoError(t, err)
	assert.True(t, cb.Success)

	values.Set("vnp_Amount", "55000001")
	_, err = s.VerifyValues(values)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_Malformed(t *testing.T) {
	s := newTestSigner(t, "1")

	tests := []struct {
		name   string
		mutate func(map[string]string)
	}{
		{"missing txn ref", func(p map[string]string) { delete(p, "vnp_TxnRef") }},
		{"non numeric amount", func(p map[string]string) { p["vnp_Amount"] = "12a" }},
		{"missing response code", func(p map[string]string) { delete(p, "vnp_ResponseCode") }},
		{"short pay date", func(p map[string]string) { p["vnp_PayDate"] = "2026031415" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := successParams()
			tt.mutate(p)

			_, err := s.VerifyQuery(gatewayQuery(p))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
		})
	}
}

func TestNewSigner_Validation(t *testing.T) {
	_, err := NewSigner(Config{HashSecret: "s", PaymentURL: "u"})
	require.Error(t, err)
	_, err = NewSigner(Config{TmnCode: "t", PaymentURL: "u"})
	require.Error(t, err)
	_, err = NewSigner(Config{TmnCode: "t", HashSecret: "s"})
	require.Error(t, err)
	_, err = NewSigner(Config{TmnCode: "t", HashSecret: "s", PaymentURL: "u", ExchangeRate: decimal.NewFromInt(-1)})
	require.Error(t, err)
}

func TestReason(t *testing.T) {
	assert.Equal(t, "Transaction successful", Reason("00"))
	assert.Equal(t, "Customer cancelled the transaction", Reason("24"))
	assert.Equal(t, Reason("99"), Reason(""))
	assert.Equal(t, Reason("99"), Reason("XX"))
}
