package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mael-queau/roboct0-api/accounts"
)

// toggleRequest is the optional body of every toggle endpoint. A missing
// "enabled" inverts the current flag.
type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *Handlers) HandleSearchAccounts(p accounts.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
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
		list, err := h.Accounts.Search(r.Context(), p, r.URL.Query().Get("query"), page, force)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, list)
	}
}

func (h *Handlers) HandleGetAccount(p accounts.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		force, err := forceParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		a, err := h.Accounts.Get(r.Context(), p, chi.URLParam(r, "id"), force)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, a)
	}
}

func (h *Handlers) HandleToggleAccount(p accounts.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req toggleRequest
		if err := decodeJSON(r, &req, true); err != nil {
			writeError(w, r, err)
			return
		}
		a, err := h.Accounts.Toggle(r.Context(), p, chi.URLParam(r, "id"), req.Enabled)
		if err != nil {
			writeError(w, r, err)
			return
		}
		state := "disabled"
		if a.Enabled {
			state = "enabled"
		}
		writeJSON(w, http.StatusOK, envelope{Success: true, Data: a, Message: fmt.Sprintf("The %s is now %s.", p.Noun(), state)})
	}
}

func (h *Handlers) HandleDeleteAccount(p accounts.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.Accounts.Delete(r.Context(), p, chi.URLParam(r, "id")); err != nil {
			writeError(w, r, err)
			return
		}
		writeMessage(w, http.StatusOK, true, fmt.Sprintf("The %s was deleted.", p.Noun()))
	}
}

func (h *Handlers) HandleVerifyAccount(p accounts.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		enabled, err := h.Accounts.Verify(r.Context(), p, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]bool{"enabled": enabled})
	}
}
