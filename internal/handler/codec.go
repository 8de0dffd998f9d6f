package handler

import (
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/sales-order-api/internal/domain/order"
)

// decodeCreateRequest reads {"customerId":1,"items":[{"catalogItemId":1,
// "quantity":2}]}. Unknown fields are ignored; null counts as absent.
func decodeCreateRequest(body []byte) (order.CreateRequest, error) {
	var req order.CreateRequest
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "customerId":
			v, err := optInt64(d, key)
			req.CustomerID = v
			return err
		case "items":
			if d.Next() == jx.Null {
				return d.Null()
			}
			return d.Arr(func(d *jx.Decoder) error {
				item, err := decodeItem(d, len(req.Items))
				if err != nil {
					return err
				}
				req.Items = append(req.Items, item)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		var vErr *order.ValidationError
		if errors.As(err, &vErr) {
			return order.CreateRequest{}, vErr
		}
		return order.CreateRequest{}, &order.ValidationError{Field: "body", Reason: "malformed JSON"}
	}
	return req, nil
}

func decodeItem(d *jx.Decoder, idx int) (order.ItemRequest, error) {
	var item order.ItemRequest
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "catalogItemId":
			v, err := optInt64(d, fmt.Sprintf("items[%d].catalogItemId", idx))
			item.CatalogItemID = v
			return err
		case "quantity":
			v, err := optInt64(d, fmt.Sprintf("items[%d].quantity", idx))
			item.Quantity = int(v)
			return err
		default:
			return d.Skip()
		}
	})
	return item, err
}

func optInt64(d *jx.Decoder, field string) (int64, error) {
	switch d.Next() {
	case jx.Null:
		return 0, d.Null()
	case jx.Number:
		v, err := d.Int64()
		if err != nil {
			return 0, &order.ValidationError{Field: field, Reason: "must be an integer"}
		}
		return v, nil
	default:
		return 0, &order.ValidationError{Field: field, Reason: "must be an integer"}
	}
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func (h *Handler) encodeView(e *jx.Encoder, v *order.View) {
	o := v.Order
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.ID)
	e.FieldStart("orderReference")
	e.Str(o.Reference)
	e.FieldStart("customerId")
	e.Int64(o.CustomerID)
	e.FieldStart("customerName")
	e.Str(v.CustomerName)

	e.FieldStart("items")
	e.ArrStart()
	for _, l := range o.Lines {
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(l.ID)
		e.FieldStart("itemName")
		e.Str(l.ItemName)
		e.FieldStart("itemPrice")
		e.Str(l.UnitPrice.StringFixed(h.scale))
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("totalPrice")
		e.Str(l.LineTotal.StringFixed(h.scale))
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("subtotal")
	e.Str(o.Subtotal.StringFixed(h.scale))
	e.FieldStart("vat")
	e.Str(o.VAT.StringFixed(h.scale))
	e.FieldStart("total")
	e.Str(o.Total.StringFixed(h.scale))
	e.FieldStart("creationDate")
	e.Str(v.CreationDate)
	e.FieldStart("cancellationDate")
	if v.CancellationDate == "" {
		e.Null()
	} else {
		e.Str(v.CancellationDate)
	}
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.ObjEnd()
}

func (h *Handler) encodePage(e *jx.Encoder, p order.Page[order.View]) {
	e.ObjStart()
	e.FieldStart("content")
	e.ArrStart()
	for i := range p.Content {
		h.encodeView(e, &p.Content[i])
	}
	e.ArrEnd()
	e.FieldStart("page")
	e.Int(p.Number)
	e.FieldStart("size")
	e.Int(p.Size)
	e.FieldStart("totalElements")
	e.Int64(p.TotalElements)
	e.FieldStart("totalPages")
	e.Int(p.TotalPages)
	e.FieldStart("first")
	e.Bool(p.First)
	e.FieldStart("last")
	e.Bool(p.Last)
	e.ObjEnd()
}
