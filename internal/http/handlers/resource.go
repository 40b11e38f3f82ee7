package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/tourbook/internal/apperr"
	"github.com/diagnosis/tourbook/internal/crud"
	"github.com/diagnosis/tourbook/internal/http/response"
	"github.com/diagnosis/tourbook/internal/query"
)

func idParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.BadInput("Invalid " + name + ": " + raw + ".")
	}
	return id, nil
}

// optionalID reads a path id that may be absent, as on nested routes.
func optionalID(r *http.Request, name string) (int64, error) {
	if chi.URLParam(r, name) == "" {
		return 0, nil
	}
	return idParam(r, name)
}

// Resource serves the generic list/get/create/update/delete endpoints for
// one engine. Base narrows listings, e.g. to a parent from the path.
type Resource[T any] struct {
	Engine *crud.Engine[T]
	Base   func(r *http.Request) (query.Filter, error)
}

func (h Resource[T]) List(w http.ResponseWriter, r *http.Request) {
	var base query.Filter
	if h.Base != nil {
		var err error
		if base, err = h.Base(r); err != nil {
			response.Error(w, r, err)
			return
		}
	}

	page, err := h.Engine.GetAll(r.Context(), r.URL.Query(), base, true)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	docs, err := crud.Project(page.Results, h.Engine.Entity().Schema, page.Fields)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.List(w, docs, page.Count)
}

func (h Resource[T]) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		response.Error(w, r, err)
		return
	}
	rec, err := h.Engine.GetOne(r.Context(), id, true)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.Success(w, http.StatusOK, rec)
}

func (h Resource[T]) Create(w http.ResponseWriter, r *http.Request) {
	body, err := response.ReadBody(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	rec := h.Engine.Blank()
	if err := crud.MergeJSON[T](body)(rec); err != nil {
		response.Error(w, r, err)
		return
	}
	created, err := h.Engine.Create(r.Context(), rec)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.Success(w, http.StatusCreated, created)
}

func (h Resource[T]) Update(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		response.Error(w, r, err)
		return
	}
	body, err := response.ReadBody(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	updated, err := h.Engine.UpdateOne(r.Context(), id, crud.MergeJSON[T](body))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.Success(w, http.StatusOK, updated)
}

func (h Resource[T]) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		response.Error(w, r, err)
		return
	}
	if err := h.Engine.DeleteOne(r.Context(), id); err != nil {
		response.Error(w, r, err)
		return
	}
	response.NoContent(w)
}
