// Package vnpay implements the VNPay payment gateway's redirect signing and
// callback verification (HMAC-SHA512 over a canonical query string).
package vnpay

import (
	"net/url"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

const (
	paramSecureHash     = "vnp_SecureHash"
	paramSecureHashType = "vnp_SecureHashType"

	// DateLayout is the gateway's yyyyMMddHHmmss timestamp layout.
	DateLayout = "20060102150405"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidAmount    = errors.New("amount below the smallest settlement unit")
	ErrMalformed        = errors.New("malformed gateway callback")
)

// Config is the merchant configuration shared with the gateway.
type Config struct {
	TmnCode    string
	HashSecret string
	PaymentURL string
	ReturnURL  string

	Version   string
	Command   string
	CurrCode  string
	OrderType string
	Locale    string

	// ExchangeRate converts one display-currency unit into settlement units.
	ExchangeRate decimal.Decimal
	// Location is the zone timestamps are rendered and parsed in.
	Location *time.Location
}

func (c *Config) setDefaults() {
	if c.Version == "" {
		c.Version = "2.1.0"
	}
	if c.Command == "" {
		c.Command = "pay"
	}
	if c.CurrCode == "" {
		c.CurrCode = "VND"
	}
	if c.OrderType == "" {
		c.OrderType = "other"
	}
	if c.Locale == "" {
		c.Locale = "vn"
	}
	if c.ExchangeRate.IsZero() {
		c.ExchangeRate = decimal.NewFromInt(1)
	}
	if c.Location == nil {
		c.Location = time.FixedZone("GMT+7", 7*60*60)
	}
}

// Signer signs outbound redirects and verifies inbound callbacks.
type Signer struct {
	cfg    Config
	secret []byte
	now    func() time.Time
}

// Option configures a Signer.
type Option func(*Signer)

// WithClock overrides the clock used for vnp_CreateDate.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

// NewSigner validates cfg and returns a Signer.
func NewSigner(cfg Config, opts ...Option) (*Signer, error) {
	cfg.setDefaults()
	switch {
	case cfg.TmnCode == "":
		return nil, errors.New("vnpay: tmn code is required")
	case cfg.HashSecret == "":
		return nil, errors.New("vnpay: hash secret is required")
	case cfg.PaymentURL == "":
		return nil, errors.New("vnpay: payment url is required")
	case cfg.ExchangeRate.IsNegative():
		return nil, errors.Errorf("vnpay: negative exchange rate %s", cfg.ExchangeRate)
	}
	if _, err := url.Parse(cfg.PaymentURL); err != nil {
		return nil, errors.Wrap(err, "vnpay: parse payment url")
	}

	s := &Signer{
		cfg:    cfg,
		secret: []byte(cfg.HashSecret),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// PaymentRequest describes one redirect to the gateway.
type PaymentRequest struct {
	TxnRef    string
	Amount    decimal.Decimal
	OrderInfo string
	IPAddr    string
	BankCode  string
	Locale    string
	ReturnURL string
}

// SettlementAmount converts a display amount into the vnp_Amount value:
// settlement currency rounded to the nearest 100, times 100.
func (s *Signer) SettlementAmount(amount decimal.Decimal) int64 {
	settled := amount.Mul(s.cfg.ExchangeRate).Div(decimal.NewFromInt(100)).Round(0).Mul(decimal.NewFromInt(100))
	return settled.Mul(decimal.NewFromInt(100)).IntPart()
}

// DisplayAmount converts a vnp_Amount value back into display currency.
func (s *Signer) DisplayAmount(vnpAmount int64) decimal.Decimal {
	if s.cfg.ExchangeRate.IsZero() {
		return decimal.Zero
	}
	return decimal.NewFromInt(vnpAmount).Div(decimal.NewFromInt(100)).Div(s.cfg.ExchangeRate)
}

// Sign returns the redirect URL for req.
func (s *Signer) Sign(req PaymentRequest) (string, error) {
	if req.TxnRef == "" {
		return "", errors.New("vnpay: txn ref is required")
	}
	amount := s.SettlementAmount(req.Amount)
	if amount <= 0 {
		return "", errors.Wrapf(ErrInvalidAmount, "amount %s", req.Amount)
	}

	locale := req.Locale
	if locale == "" {
		locale = s.cfg.Locale
	}
	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = s.cfg.ReturnURL
	}
	info := req.OrderInfo
	if info == "" {
		info = "Payment for order " + req.TxnRef
	}

	params := map[string]string{
		"vnp_Version":    s.cfg.Version,
		"vnp_Command":    s.cfg.Command,
		"vnp_TmnCode":    s.cfg.TmnCode,
		"vnp_Amount":     decimal.NewFromInt(amount).String(),
		"vnp_CurrCode":   s.cfg.CurrCode,
		"vnp_TxnRef":     req.TxnRef,
		"vnp_OrderInfo":  info,
		"vnp_OrderType":  s.cfg.OrderType,
		"vnp_Locale":     locale,
		"vnp_ReturnUrl":  returnURL,
		"vnp_IpAddr":     req.IPAddr,
		"vnp_CreateDate": s.now().In(s.cfg.Location).Format(DateLayout),
	}
	if req.BankCode != "" {
		params["vnp_BankCode"] = req.BankCode
	}

	canonical := canonicalize(params)
	return s.cfg.PaymentURL + "?" + canonical + "&" + paramSecureHash + "=" + sign(s.secret, canonical), nil
}

// VerifyQuery verifies a callback delivered as a raw query string. The
// signature is computed over the pairs exactly as they were encoded by the
// gateway.
func (s *Signer) VerifyQuery(rawQuery string) (*Callback, error) {
	canonical, hash := canonicalizeRaw(rawQuery)
	if hash == "" || !equalHash(sign(s.secret, canonical), hash) {
		return nil, ErrInvalidSignature
	}

	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	return s.parseCallback(values)
}

// VerifyValues verifies a callback whose parameters were already decoded.
// Values are re-encoded with the canonical encoder before hashing.
func (s *Signer) VerifyValues(values url.Values) (*Callback, error) {
	hash := values.Get(paramSecureHash)
	params := make(map[string]string, len(values))
	for k := range values {
		params[k] = values.Get(k)
	}
	if hash == "" || !equalHash(sign(s.secret, canonicalize(params)), hash) {
		return nil, ErrInvalidSignature
	}
	return s.parseCallback(values)
}
