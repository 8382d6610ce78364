package api

import (
	"net/http"

	"github.com/chipiona/stock-engine/prereservation"
	"github.com/chipiona/stock-engine/reservation"
	"github.com/chipiona/stock-engine/stock"
)

// =============================================================================
// RESERVATION HANDLERS
// =============================================================================

// ListReservations lists reservations, optionally for one producto_id.
func (h *Handler) ListReservations(w http.ResponseWriter, r *http.Request) {
	productID, err := queryID(r, "producto_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	list, err := h.Reservations.List(r.Context(), productID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(list, toReservationDTO))
}

func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	res, err := h.Reservations.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTO(*res))
}

func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req CreateReservationRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.Reservations.Create(r.Context(), reservation.CreateRequest{
		ComercialID: req.ComercialID,
		ProductoID:  req.ProductoID,
		Cantidad:    req.Cantidad,
		Fecha:       req.Fecha,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReservationResultDTO(res))
}

// EditReservation changes quantity and commercial, subject to the quota.
func (h *Handler) EditReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req EditReservationRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.Reservations.Edit(r.Context(), reservation.EditRequest{
		ID:        id,
		Comercial: stock.CommercialRef{ID: req.ComercialID, Nombre: req.ComercialNombre},
		Cantidad:  req.Cantidad,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationResultDTO(res))
}

func (h *Handler) DeleteReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	res, err := h.Reservations.Delete(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationResultDTO(res))
}

// MaxEditable reports the headroom of a reservation without writing.
func (h *Handler) MaxEditable(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	q, err := h.Reservations.MaxEditable(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// =============================================================================
// PRE-RESERVATION HANDLERS
// =============================================================================

// ListPreReservations lists pre-reservations, optionally filtered by ?estado=.
func (h *Handler) ListPreReservations(w http.ResponseWriter, r *http.Request) {
	estado := stock.PreReservationState(r.URL.Query().Get("estado"))
	list, err := h.PreReservations.List(r.Context(), estado)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(list, toPreReservationDTO))
}

func (h *Handler) GetPreReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	pre, err := h.PreReservations.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPreReservationDTO(*pre))
}

func (h *Handler) CreatePreReservation(w http.ResponseWriter, r *http.Request) {
	var req CreatePreReservationRequest
	if !h.decode(w, r, &req) {
		return
	}
	semana, err := stock.ResolveWeek(req.Semana, req.Fecha)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	pre, err := h.PreReservations.Create(r.Context(), prereservation.CreateRequest{
		DelegacionID: req.DelegacionID,
		Producto:     stock.ProductRef{ID: req.ProductoID, Nombre: req.ProductoNombre},
		Cantidad:     req.Cantidad,
		Semana:       semana,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPreReservationDTO(*pre))
}

// ConvertPreReservation splits a pre-reservation across suppliers.
func (h *Handler) ConvertPreReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req ConvertRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.PreReservations.Convert(r.Context(), id, prereservation.Split(req.Split))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ConvertResultDTO{
		PreReserva:   toPreReservationDTO(out.PreReservation),
		Asignaciones: mapSlice(out.Allocations, toAllocationResultDTO),
		Reservas:     mapSlice(out.Reservations, toReservationDTO),
	})
}

func (h *Handler) CancelPreReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	pre, err := h.PreReservations.Cancel(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPreReservationDTO(*pre))
}

// PreReservationSuppliers lists the candidate suppliers for a split.
func (h *Handler) PreReservationSuppliers(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	options, err := h.PreReservations.SupplierOptions(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(options))
}
