package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/mael-queau/roboct0-api/apperr"
	"github.com/mael-queau/roboct0-api/quotes"
)

type createQuoteRequest struct {
	Content string     `json:"content"`
	Date    *time.Time `json:"date"`
}

func (r createQuoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Content, validation.Required),
	)
}

type updateQuoteRequest struct {
	Content *string    `json:"content"`
	Date    *time.Time `json:"date"`
}

func quoteIndex(r *http.Request) (int, error) {
	n, err := strconv.Atoi(chi.URLParam(r, "quoteID"))
	if err != nil || n < 1 {
		return 0, apperr.New(apperr.InvalidRequest, "Quote id must be a positive integer.")
	}
	return n, nil
}

func (h *Handlers) HandleSearchQuotes(w http.ResponseWriter, r *http.Request) {
	page, err := pageParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	force, err := forceParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.Quotes.Search(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("query"), page, force)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

func (h *Handlers) HandleRandomQuote(w http.ResponseWriter, r *http.Request) {
	force, err := forceParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := h.Quotes.Random(r.Context(), chi.URLParam(r, "id"), force)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, q)
}

func (h *Handlers) HandleGetQuote(w http.ResponseWriter, r *http.Request) {
	index, err := quoteIndex(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	force, err := forceParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := h.Quotes.Get(r.Context(), chi.URLParam(r, "id"), index, force)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, q)
}

func (h *Handlers) HandleCreateQuote(w http.ResponseWriter, r *http.Request) {
	force, err := forceParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req createQuoteRequest
	if err := decodeValid(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	q, err := h.Quotes.Create(r.Context(), chi.URLParam(r, "id"), req.Content, req.Date, force)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, q)
}

func (h *Handlers) HandleUpdateQuote(w http.ResponseWriter, r *http.Request) {
	index, err := quoteIndex(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	force, err := forceParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateQuoteRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	q, err := h.Quotes.Update(r.Context(), chi.URLParam(r, "id"), index, quotes.Patch{Content: req.Content, Date: req.Date}, force)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, q)
}

func (h *Handlers) HandleToggleQuote(w http.ResponseWriter, r *http.Request) {
	index, err := quoteIndex(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	force, err := forceParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req toggleRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	q, err := h.Quotes.Toggle(r.Context(), chi.URLParam(r, "id"), index, req.Enabled, force)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, q)
}

func (h *Handlers) HandleDeleteQuote(w http.ResponseWriter, r *http.Request) {
	index, err := quoteIndex(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	force, err := forceParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Quotes.Delete(r.Context(), chi.URLParam(r, "id"), index, force); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, true, "The quote was deleted.")
}
