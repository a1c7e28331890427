package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mael-queau/roboct0-api/accounts"
)

// HandleBeginFlow redirects the caller to the provider consent page.
func (h *Handlers) HandleBeginFlow(w http.ResponseWriter, r *http.Request) {
	name := accounts.Provider(chi.URLParam(r, "provider"))
	authURL, err := h.Flow.BeginFlow(r.Context(), name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleCallback completes the flow and reports the linked account.
func (h *Handlers) HandleCallback(w http.ResponseWriter, r *http.Request) {
	name := accounts.Provider(chi.URLParam(r, "provider"))
	res, err := h.Flow.HandleCallback(r.Context(), name, r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Message: fmt.Sprintf("Successfully linked the %s %s.", res.Account.Provider.Noun(), res.Account.Username),
		Data:    res.Account,
	})
}
