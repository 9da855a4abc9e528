package api

import (
	"net/http"

	"github.com/safar/go-stock-ledger/internal/ledger"
	"github.com/safar/go-stock-ledger/internal/models"
)

type purchaseRequest struct {
	ItemID    int64 `json:"item_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice int64 `json:"unit_price" validate:"gte=0"`
}

type purchaseResponse struct {
	Item     *models.Item     `json:"item"`
	Purchase *models.Purchase `json:"purchase"`
}

func (h *Handler) createPurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	item, purchase, err := h.engine.ApplyPurchase(r.Context(), ownerFrom(r), req.ItemID, req.Quantity, req.UnitPrice)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, purchaseResponse{Item: item, Purchase: purchase})
}

type saleLineRequest struct {
	ItemID   int64 `json:"item_id" validate:"required,gt=0"`
	Quantity int64 `json:"quantity" validate:"required,gt=0"`
}

// saleRequest sells either explicit lines or a single product by name.
type saleRequest struct {
	Lines       []saleLineRequest `json:"lines" validate:"required_without=ProductName,omitempty,max=100,dive"`
	ProductName string            `json:"product_name" validate:"max=200"`
	Quantity    int64             `json:"quantity" validate:"required_with=ProductName,omitempty,gt=0"`
	OrderID     string            `json:"order_id" validate:"max=64"`
	Discount    int64             `json:"discount" validate:"gte=0"`
}

type saleResponse struct {
	OrderID string              `json:"order_id"`
	Records []models.SaleRecord `json:"records"`
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	ownerID := ownerFrom(r)

	var records []models.SaleRecord
	var err error
	if len(req.Lines) == 0 {
		records, err = h.engine.SellByName(ctx, ledger.NamedSaleRequest{
			OwnerID:     ownerID,
			ProductName: req.ProductName,
			Quantity:    req.Quantity,
			OrderID:     req.OrderID,
			Discount:    req.Discount,
		})
	} else {
		lines := make([]ledger.SaleLineRequest, len(req.Lines))
		for i, l := range req.Lines {
			lines[i] = ledger.SaleLineRequest{ItemID: l.ItemID, Quantity: l.Quantity}
		}
		records, err = h.engine.ApplySale(ctx, ledger.SaleRequest{
			OwnerID:  ownerID,
			Lines:    lines,
			OrderID:  req.OrderID,
			Discount: req.Discount,
		})
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := saleResponse{Records: records}
	if len(records) > 0 && records[0].OrderID != nil {
		resp.OrderID = *records[0].OrderID
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (h *Handler) reverseSale(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid sale id")
		return
	}

	if err := h.engine.ReverseSale(r.Context(), ownerFrom(r), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
