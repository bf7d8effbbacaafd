package rest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/abgdnv/storekeeper/internal/service"
	"github.com/abgdnv/storekeeper/internal/store"
	"github.com/abgdnv/storekeeper/pkg/web"
)

type productResponse struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Quantity int64   `json:"quantity"`
	Price    float64 `json:"price"`
	ImageRef *string `json:"imageRef"`
}

func toProductResponse(p *store.Product) *productResponse {
	if p == nil {
		return nil
	}
	return &productResponse{ID: p.ID, Name: p.Name, Quantity: p.Quantity, Price: p.Price, ImageRef: p.ImageRef}
}

func toProductList(list []store.Product) []productResponse {
	out := make([]productResponse, len(list))
	for i := range list {
		out[i] = *toProductResponse(&list[i])
	}
	return out
}

// List retrieves all products in insertion order.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	list, err := h.products.List(r.Context())
	if err != nil {
		h.respondError(w, r, mLogger, err, "Failed to fetch products")
		return
	}
	mLogger.DebugContext(r.Context(), "Successfully retrieved product list", "count", len(list))
	web.RespondJSON(w, mLogger, http.StatusOK, toProductList(list))
}

// Get retrieves a product by its ID.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	found, err := h.products.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, mLogger, err, fmt.Sprintf("Failed to retrieve product with ID %d", id))
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, toProductResponse(found))
}

// Create handles the creation of a new product.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var input service.ProductInput
	if !web.DecodeJSON(w, r, mLogger, &input) {
		return
	}
	mLogger.DebugContext(r.Context(), "Received request to create product", "product", input)

	created, err := h.products.Create(r.Context(), input)
	if err != nil {
		h.respondError(w, r, mLogger, err, "Failed to create product")
		return
	}
	mLogger.InfoContext(r.Context(), "Product created successfully", "ID", created.ID, "Name", created.Name)
	web.RespondJSON(w, mLogger, http.StatusCreated, toProductResponse(created))
}

// Update replaces every field of a product.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	var input service.ProductInput
	if !web.DecodeJSON(w, r, mLogger, &input) {
		return
	}
	mLogger.DebugContext(r.Context(), "Received request to update product", "ID", id)

	updated, err := h.products.Update(r.Context(), id, input)
	if err != nil {
		h.respondError(w, r, mLogger, err, fmt.Sprintf("Failed to update product with ID %d", id))
		return
	}
	mLogger.InfoContext(r.Context(), "Product updated successfully", "ID", updated.ID, "Name", updated.Name)
	web.RespondJSON(w, mLogger, http.StatusOK, toProductResponse(updated))
}

// Delete deletes a product by its ID.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	if err := h.products.Delete(r.Context(), id); err != nil {
		h.respondError(w, r, mLogger, err, fmt.Sprintf("Failed to delete product with ID %d", id))
		return
	}
	mLogger.InfoContext(r.Context(), "Product deleted successfully", "ID", id)
	w.WriteHeader(http.StatusNoContent)
}

// StreamAll sends the product list as server-sent events, once on connect
// and again after every change.
func (h *Handler) StreamAll(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	snapshots, err := h.products.WatchAll(r.Context())
	if err != nil {
		h.respondError(w, r, mLogger, err, "Failed to subscribe to products")
		return
	}
	streamEvents(w, r, mLogger, snapshots, func(list []store.Product) any { return toProductList(list) })
}

// Stream sends a single product as server-sent events. A deleted or unknown
// product is sent as null.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	values, err := h.products.Watch(r.Context(), id)
	if err != nil {
		h.respondError(w, r, mLogger, err, fmt.Sprintf("Failed to subscribe to product with ID %d", id))
		return
	}
	streamEvents(w, r, mLogger, values, func(p *store.Product) any { return toProductResponse(p) })
}

// streamEvents writes every value from ch as a "snapshot" event until ch is
// closed or the client goes away.
func streamEvents[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ch <-chan T, render func(T) any) {
	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for {
		select {
		case <-r.Context().Done():
			return
		case v, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(render(v))
			if err != nil {
				logger.ErrorContext(r.Context(), "Error encoding snapshot", "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", payload); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				logger.WarnContext(r.Context(), "Streaming not supported by response writer", "error", err)
				return
			}
		}
	}
}
