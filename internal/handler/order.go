package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/orderdesk/internal/domain/order"
)

const maxBodySize = 1 << 20

// Response messages, kept byte-for-byte with the original storefront.
const (
	msgOrderProcessed = "Order berhasil diproses"
	msgCustomerBusy   = "Order sedang diproses. Harap tunggu hingga selesai."
)

// CreateOrder handles POST /order: decode, submit, map the outcome to
// 201, 409, or 500.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req, err := decodeCreateOrder(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	o, err := h.orders.Submit(r.Context(), req)
	switch {
	case errors.Is(err, order.ErrCustomerBusy):
		writeConflict(w)
	case err != nil:
		zctx.From(r.Context()).Error("Submit order",
			zap.Int64("customer_id", req.CustomerID),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeCreated(w, o)
	}
}

// decodeCreateOrder parses the submission body and applies boundary
// validation so the service only sees well-formed requests.
func decodeCreateOrder(data []byte) (order.CreateOrderRequest, error) {
	var req order.CreateOrderRequest
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "customer_id":
			v, err := d.Int64()
			if err != nil {
				return err
			}
			req.CustomerID = v
		case "name":
			v, err := d.Str()
			if err != nil {
				return err
			}
			req.Name = v
		case "email":
			v, err := d.Str()
			if err != nil {
				return err
			}
			req.Email = v
		case "address":
			v, err := d.Str()
			if err != nil {
				return err
			}
			req.Address = v
		case "payment_type":
			v, err := d.Str()
			if err != nil {
				return err
			}
			req.PaymentType = v
		case "item":
			return d.Obj(func(d *jx.Decoder, key string) error {
				switch key {
				case "id_product":
					v, err := d.Int64()
					if err != nil {
						return err
					}
					req.Item.ProductID = v
				case "name":
					v, err := d.Str()
					if err != nil {
						return err
					}
					req.Item.Name = v
				case "price":
					v, err := d.Float64()
					if err != nil {
						return err
					}
					req.Item.Price = decimal.NewFromFloat(v)
				case "qty":
					v, err := d.Int()
					if err != nil {
						return err
					}
					req.Item.Quantity = v
				default:
					return d.Skip()
				}
				return nil
			})
		default:
			return d.Skip()
		}
		return nil
	}); err != nil {
		return req, errors.Wrap(err, "parse order request")
	}

	if req.CustomerID <= 0 {
		return req, errors.New("customer_id must be positive")
	}
	if req.Item.ProductID <= 0 {
		return req, errors.New("item.id_product must be positive")
	}
	if req.Item.Quantity <= 0 {
		return req, errors.New("item.qty must be positive")
	}
	if req.Item.Price.IsNegative() {
		return req, errors.New("item.price must not be negative")
	}
	return req, nil
}

func writeCreated(w http.ResponseWriter, o *order.Order) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("message")
	e.Str(msgOrderProcessed)
	e.FieldStart("result")
	e.ObjStart()
	e.FieldStart("order_number")
	e.Str(o.Number)
	e.FieldStart("customer_id")
	e.Int64(o.CustomerID)
	e.FieldStart("name")
	e.Str(o.Name)
	e.FieldStart("address")
	e.Str(o.Address)
	e.FieldStart("total")
	e.Float64(o.Total.InexactFloat64())
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.ObjEnd()
	e.ObjEnd()
	writeJSON(w, http.StatusCreated, e.Bytes())
}

func writeConflict(w http.ResponseWriter) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("message")
	e.Str(msgCustomerBusy)
	e.FieldStart("result")
	e.ObjStart()
	e.FieldStart("order_number")
	e.Null()
	e.ObjEnd()
	e.ObjEnd()
	writeJSON(w, http.StatusConflict, e.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("error")
	e.Str(msg)
	e.ObjEnd()
	writeJSON(w, status, e.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
