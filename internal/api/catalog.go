package api

import (
	"net/http"
	"strconv"

	"github.com/safar/go-stock-ledger/internal/store"
)

type createCategoryRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	category, err := h.engine.CreateCategory(r.Context(), ownerFrom(r), req.Name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, category)
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.store.ListCategories(r.Context(), ownerFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, categories)
}

type createItemRequest struct {
	Name         string `json:"name" validate:"required,max=200"`
	CategoryID   *int64 `json:"category_id" validate:"omitempty,gt=0"`
	Company      string `json:"company" validate:"max=200"`
	SellingPrice int64  `json:"selling_price" validate:"gte=0"`
	Quantity     int64  `json:"quantity" validate:"gte=0"`
	AverageCost  int64  `json:"average_cost" validate:"gte=0"`
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	item, err := h.engine.CreateItem(r.Context(), store.NewItem{
		OwnerID:      ownerFrom(r),
		Name:         req.Name,
		CategoryID:   req.CategoryID,
		Company:      req.Company,
		SellingPrice: req.SellingPrice,
		Quantity:     req.Quantity,
		AverageCost:  req.AverageCost,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ItemFilter{OwnerID: ownerFrom(r), Query: q.Get("q")}
	if raw := q.Get("below"); raw != "" {
		below, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid below parameter")
			return
		}
		filter.BelowQuantity = &below
	}

	items, err := h.store.ListItems(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	respondJSON(w, http.StatusOK, store.Paginate(items, page, pageSize))
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	item, err := h.store.GetItem(r.Context(), ownerFrom(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

type updateItemRequest struct {
	Name          *string `json:"name" validate:"omitempty,max=200"`
	CategoryID    *int64  `json:"category_id" validate:"omitempty,gt=0"`
	ClearCategory bool    `json:"clear_category"`
	Company       *string `json:"company" validate:"omitempty,max=200"`
	SellingPrice  *int64  `json:"selling_price" validate:"omitempty,gte=0"`
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	var req updateItemRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	item, err := h.engine.UpdateItem(r.Context(), ownerFrom(r), id, store.ItemUpdate{
		Name:          req.Name,
		CategoryID:    req.CategoryID,
		ClearCategory: req.ClearCategory,
		Company:       req.Company,
		SellingPrice:  req.SellingPrice,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	if err := h.engine.DeleteItem(r.Context(), ownerFrom(r), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPurchases(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	ctx := r.Context()
	if _, err := h.store.GetItem(ctx, ownerFrom(r), id); err != nil {
		h.writeError(w, r, err)
		return
	}

	purchases, err := h.store.ListPurchases(ctx, ownerFrom(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, purchases)
}
