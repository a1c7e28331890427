package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/mael-queau/roboct0-api/apperr"
	"github.com/mael-queau/roboct0-api/commands"
)

type createCommandRequest struct {
	Keyword string `json:"keyword"`
	Content string `json:"content"`
}

func (r createCommandRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Keyword, validation.Required, validation.Match(commands.KeywordPattern)),
		validation.Field(&r.Content, validation.Required),
	)
}

type updateCommandRequest struct {
	Content string `json:"content"`
}

func (r updateCommandRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Content, validation.Required),
	)
}

type setVariableRequest struct {
	Value *int `json:"value"`
}

func (r setVariableRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Value, validation.NotNil),
	)
}

type incrementVariableRequest struct {
	Delta *int `json:"delta"`
}

// decodeValid decodes the body into dst and runs its validation rules.
func decodeValid(r *http.Request, dst validation.Validatable, optional bool) error {
	if err := decodeJSON(r, dst, optional); err != nil {
		return err
	}
	if err := dst.Validate(); err != nil {
		return apperr.Wrap(apperr.InvalidRequest, err, err.Error())
	}
	return nil
}

func (h *Handlers) HandleListCommands(w http.ResponseWriter, r *http.Request) {
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
	list, err := h.Commands.List(r.Context(), chi.URLParam(r, "id"), page, force)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

func (h *Handlers) HandleCreateCommand(w http.ResponseWriter, r *http.Request) {
	force, err := forceParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req createCommandRequest
	if err := decodeValid(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	cmd, err := h.Commands.Create(r.Context(), chi.URLParam(r, "id"), req.Keyword, req.Content, force)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, cmd)
}

func (h *Handlers) HandleGetCommand(w http.ResponseWriter, r *http.Request) {
	force, err := forceParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cmd, err := h.Commands.Get(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "keyword"), force)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, cmd)
}

func (h *Handlers) HandleUpdateCommand(w http.ResponseWriter, r *http.Request) {
	force, err := forceParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateCommandRequest
	if err := decodeValid(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	cmd, err := h.Commands.Update(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "keyword"), req.Content, force)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, cmd)
}

func (h *Handlers) HandleToggleCommand(w http.ResponseWriter, r *http.Request) {
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
	cmd, err := h.Commands.Toggle(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "keyword"), req.Enabled, force)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, cmd)
}

func (h *Handlers) HandleDeleteCommand(w http.ResponseWriter, r *http.Request) {
	force, err := forceParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Commands.Delete(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "keyword"), force); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, true, "The command was deleted.")
}

func (h *Handlers) HandleSetVariable(w http.ResponseWriter, r *http.Request) {
	force, err := forceParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req setVariableRequest
	if err := decodeValid(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.Commands.SetVariable(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "keyword"),
		chi.URLParam(r, "name"), *req.Value, force)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, v)
}

// HandleIncrementVariable adds delta (default 1) to a counter.
func (h *Handlers) HandleIncrementVariable(w http.ResponseWriter, r *http.Request) {
	force, err := forceParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req incrementVariableRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	delta := 1
	if req.Delta != nil {
		delta = *req.Delta
	}
	v, err := h.Commands.IncrementVariable(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "keyword"),
		chi.URLParam(r, "name"), delta, force)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, v)
}
