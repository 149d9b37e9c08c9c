package handlers

import (
	"net/http"

	"github.com/doublec/ranchportal/internal/services"
)

const documentsPath = "/staff/documents"

// GET /staff/documents
func (h *Handlers) AdminDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.ListDocuments(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, "staff_documents.tmpl", map[string]any{
		"Title":     "Documents",
		"Documents": docs,
	})
}

// POST /staff/documents publishes a new version of a code.
func (h *Handlers) AdminPublishDocument(w http.ResponseWriter, r *http.Request) {
	actor, _ := IdentityFrom(r.Context())
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	_, err := h.svc.PublishDocument(r.Context(), actor, services.DocumentInput{
		Code:       r.FormValue("code"),
		Name:       r.FormValue("name"),
		Content:    r.FormValue("content"),
		IsRequired: checked(r, "is_required"),
	})
	if err != nil {
		h.back(w, r, documentsPath, err)
		return
	}
	redirect(w, r, documentsPath, "ok", "published")
}

// GET /staff/documents/{id}/edit
func (h *Handlers) AdminDocumentEditForm(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	doc, err := h.svc.Document(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, "staff_document_edit.tmpl", map[string]any{
		"Title":    "Edit " + doc.Code,
		"Document": doc,
	})
}

// POST /staff/documents/{id}
func (h *Handlers) AdminUpdateDocument(w http.ResponseWriter, r *http.Request) {
	actor, _ := IdentityFrom(r.Context())
	id, err := urlID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to := documentsPath + "/" + id.String() + "/edit"
	if _, err := h.svc.UpdateDocumentContent(r.Context(), actor, id, r.FormValue("name"), r.FormValue("content")); err != nil {
		h.back(w, r, to, err)
		return
	}
	redirect(w, r, to, "ok", "saved")
}

// POST /staff/documents/{id}/flags
func (h *Handlers) AdminDocumentFlags(w http.ResponseWriter, r *http.Request) {
	actor, _ := IdentityFrom(r.Context())
	id, err := urlID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to := documentsPath + "/" + id.String() + "/edit"
	if _, err := h.svc.SetDocumentFlags(r.Context(), actor, id, checked(r, "is_active"), checked(r, "is_required")); err != nil {
		h.back(w, r, to, err)
		return
	}
	redirect(w, r, to, "ok", "saved")
}

// GET /staff/signed/{id}
func (h *Handlers) AdminSignedDocument(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sd, err := h.svc.SignedDocument(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, "signed_document.tmpl", map[string]any{"Title": "Signed document", "Signed": sd})
}
