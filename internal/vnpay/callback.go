package vnpay

import (
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// callbackParams is the closed set of parameters the gateway sends to the
// return URL and the IPN endpoint.
type callbackParams struct {
	TmnCode           string `validate:"required"`
	TxnRef            string `validate:"required"`
	Amount            string `validate:"required,numeric"`
	OrderInfo         string
	ResponseCode      string `validate:"required,len=2,numeric"`
	TransactionStatus string `validate:"omitempty,len=2,numeric"`
	TransactionNo     string `validate:"omitempty,numeric"`
	BankCode          string
	BankTranNo        string
	CardType          string
	PayDate           string `validate:"omitempty,len=14,numeric"`
}

func paramsFrom(v url.Values) callbackParams {
	return callbackParams{
		TmnCode:           v.Get("vnp_TmnCode"),
		TxnRef:            v.Get("vnp_TxnRef"),
		Amount:            v.Get("vnp_Amount"),
		OrderInfo:         v.Get("vnp_OrderInfo"),
		ResponseCode:      v.Get("vnp_ResponseCode"),
		TransactionStatus: v.Get("vnp_TransactionStatus"),
		TransactionNo:     v.Get("vnp_TransactionNo"),
		BankCode:          v.Get("vnp_BankCode"),
		BankTranNo:        v.Get("vnp_BankTranNo"),
		CardType:          v.Get("vnp_CardType"),
		PayDate:           v.Get("vnp_PayDate"),
	}
}

// Callback is a verified gateway notification.
type Callback struct {
	TmnCode           string
	TxnRef            string
	Amount            int64
	OrderInfo         string
	ResponseCode      string
	TransactionStatus string
	TransactionNo     string
	BankCode          string
	BankTranNo        string
	CardType          string
	PayDate           time.Time

	// Success is true only when both the response code and the transaction
	// status are "00".
	Success bool
	// Message is the reason text for ResponseCode.
	Message string
	// DisplayAmount is Amount converted back into display currency.
	DisplayAmount decimal.Decimal
}

func (s *Signer) parseCallback(v url.Values) (*Callback, error) {
	p := paramsFrom(v)
	if err := getValidator().Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, len(verrs))
			for i, fe := range verrs {
				fields[i] = fe.Field() + ":" + fe.Tag()
			}
			return nil, errors.Wrap(ErrMalformed, strings.Join(fields, ", "))
		}
		return nil, errors.Wrap(err, "validate callback")
	}

	amount, err := strconv.ParseInt(p.Amount, 10, 64)
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, "vnp_Amount: "+err.Error())
	}

	cb := &Callback{
		TmnCode:           p.TmnCode,
		TxnRef:            p.TxnRef,
		Amount:            amount,
		OrderInfo:         p.OrderInfo,
		ResponseCode:      p.ResponseCode,
		TransactionStatus: p.TransactionStatus,
		TransactionNo:     p.TransactionNo,
		BankCode:          p.BankCode,
		BankTranNo:        p.BankTranNo,
		CardType:          p.CardType,
		Success:           p.ResponseCode == ResponseSuccess && p.TransactionStatus == ResponseSuccess,
		Message:           Reason(p.ResponseCode),
		DisplayAmount:     s.DisplayAmount(amount),
	}
	if p.PayDate != "" {
		cb.PayDate, err = time.ParseInLocation(DateLayout, p.PayDate, s.cfg.Location)
		if err != nil {
			return nil, errors.Wrap(ErrMalformed, "vnp_PayDate: "+err.Error())
		}
	}
	return cb, nil
}
