package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/dinein/internal/domain/order"
	"github.com/xenking/dinein/internal/domain/payment"
	"github.com/xenking/dinein/internal/domain/table"
)

const maxBodyBytes = 1 << 20

type placeOrderRequest struct {
	TableID string        `json:"tableId" validate:"required,max=64"`
	Notes   string        `json:"notes" validate:"max=500"`
	Items   []lineRequest `json:"items" validate:"max=100,dive"`
}

type lineRequest struct {
	MenuItemID        string   `json:"menuItemId" validate:"required,max=64"`
	Quantity          int      `json:"quantity"`
	SpecialRequest    string   `json:"specialRequest" validate:"max=200"`
	ModifierOptionIDs []string `json:"modifiers" validate:"max=50,dive,required"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=ACCEPTED PREPARING READY SERVED COMPLETED CANCELLED"`
}

type checkoutRequest struct {
	Method   string `json:"method" validate:"required,oneof=CASH CARD VNPAY"`
	BankCode string `json:"bankCode" validate:"omitempty,alphanum,max=20"`
	Locale   string `json:"locale" validate:"omitempty,oneof=vn en"`
}

// decodeBody decodes a JSON object body field by field.
func decodeBody(w http.ResponseWriter, r *http.Request, field func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return badRequest("read body: %v", err)
	}
	if err := jx.DecodeBytes(body).Obj(field); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}

func decodeStrings(d *jx.Decoder) ([]string, error) {
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		out = append(out, s)
		return err
	})
	return out, err
}

// decodeModifiers reads [{ "modifierOptionId": "..." }] selections.
func decodeModifiers(d *jx.Decoder) ([]string, error) {
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			if key != "modifierOptionId" {
				return d.Skip()
			}
			s, err := d.Str()
			out = append(out, s)
			return err
		})
	})
	return out, err
}

func (req *placeOrderRequest) decode(d *jx.Decoder, key string) (err error) {
	switch key {
	case "tableId":
		req.TableID, err = d.Str()
	case "notes":
		req.Notes, err = d.Str()
	case "items":
		err = d.Arr(func(d *jx.Decoder) error {
			var line lineRequest
			if err := d.Obj(line.decode); err != nil {
				return err
			}
			req.Items = append(req.Items, line)
			return nil
		})
	default:
		err = d.Skip()
	}
	return err
}

func (line *lineRequest) decode(d *jx.Decoder, key string) (err error) {
	switch key {
	case "menuItemId":
		line.MenuItemID, err = d.Str()
	case "quantity":
		line.Quantity, err = d.Int()
	case "specialRequest":
		line.SpecialRequest, err = d.Str()
	case "modifiers":
		var ids []string
		ids, err = decodeModifiers(d)
		line.ModifierOptionIDs = append(line.ModifierOptionIDs, ids...)
	case "modifierOptionIds":
		var ids []string
		ids, err = decodeStrings(d)
		line.ModifierOptionIDs = append(line.ModifierOptionIDs, ids...)
	default:
		err = d.Skip()
	}
	return err
}

func (req *statusRequest) decode(d *jx.Decoder, key string) (err error) {
	if key == "status" {
		req.Status, err = d.Str()
		return err
	}
	return d.Skip()
}

func (req *checkoutRequest) decode(d *jx.Decoder, key string) (err error) {
	switch key {
	case "method":
		req.Method, err = d.Str()
	case "bankCode":
		req.BankCode, err = d.Str()
	case "locale":
		req.Locale, err = d.Str()
	default:
		err = d.Skip()
	}
	return err
}

func (req *placeOrderRequest) domain() order.PlaceOrderRequest {
	lines := make([]order.LineRequest, len(req.Items))
	for i, l := range req.Items {
		lines[i] = order.LineRequest{
			MenuItemID:        l.MenuItemID,
			Quantity:          l.Quantity,
			SpecialRequest:    l.SpecialRequest,
			ModifierOptionIDs: l.ModifierOptionIDs,
		}
	}
	return order.PlaceOrderRequest{TableID: req.TableID, Notes: req.Notes, Items: lines}
}

func writeJSON(w http.ResponseWriter, code int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}

func field(e *jx.Encoder, name, value string) {
	e.Field(name, func(e *jx.Encoder) { e.Str(value) })
}

func optField(e *jx.Encoder, name, value string) {
	if value != "" {
		field(e, name, value)
	}
}

func moneyField(e *jx.Encoder, name string, v decimal.Decimal) {
	field(e, name, v.StringFixed(2))
}

func timeField(e *jx.Encoder, name string, t *time.Time) {
	if t != nil && !t.IsZero() {
		field(e, name, t.UTC().Format(time.RFC3339))
	}
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		field(e, "id", o.ID)
		field(e, "orderNumber", o.OrderNumber)
		field(e, "tableId", o.TableID)
		field(e, "status", string(o.Status))
		field(e, "paymentStatus", string(o.PaymentStatus))
		moneyField(e, "subtotal", o.Subtotal)
		moneyField(e, "tax", o.Tax)
		moneyField(e, "discount", o.Discount)
		moneyField(e, "total", o.Total)
		optField(e, "notes", o.Notes)
		timeField(e, "createdAt", &o.CreatedAt)
		timeField(e, "confirmedAt", o.ConfirmedAt)
		timeField(e, "completedAt", o.CompletedAt)
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i := range o.Items {
					encodeItem(e, &o.Items[i])
				}
			})
		})
		if o.Table != nil {
			e.Field("table", func(e *jx.Encoder) { encodeTable(e, o.Table) })
		}
	})
}

func encodeItem(e *jx.Encoder, it *order.Item) {
	e.Obj(func(e *jx.Encoder) {
		field(e, "id", it.ID)
		field(e, "menuItemId", it.MenuItemID)
		field(e, "name", it.Name)
		moneyField(e, "unitPrice", it.UnitPrice)
		e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
		moneyField(e, "modifiersTotal", it.ModifiersTotal)
		moneyField(e, "subtotal", it.Subtotal)
		field(e, "status", string(it.Status))
		optField(e, "specialRequest", it.SpecialRequest)
		e.Field("selectedModifiers", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, m := range it.Modifiers {
					e.Obj(func(e *jx.Encoder) {
						field(e, "id", m.ID)
						field(e, "optionId", m.OptionID)
						field(e, "optionName", m.OptionName)
						field(e, "groupName", m.GroupName)
						moneyField(e, "priceAdjustment", m.PriceAdjustment)
					})
				}
			})
		})
	})
}

func encodeTable(e *jx.Encoder, t *table.Table) {
	e.Obj(func(e *jx.Encoder) {
		field(e, "id", t.ID)
		field(e, "number", t.Number)
		field(e, "status", string(t.Status))
	})
}

func encodePayment(e *jx.Encoder, p *payment.Payment) {
	e.Obj(func(e *jx.Encoder) {
		field(e, "id", p.ID)
		field(e, "orderId", p.OrderID)
		moneyField(e, "amount", p.Amount)
		field(e, "method", string(p.Method))
		field(e, "status", string(p.Status))
		optField(e, "transactionId", p.TransactionID)
		timeField(e, "paidAt", p.PaidAt)
		timeField(e, "createdAt", &p.CreatedAt)
	})
}
