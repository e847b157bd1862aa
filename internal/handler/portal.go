package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/atelierhq/portal-server-go/internal/errors"
	"github.com/atelierhq/portal-server-go/internal/middleware"
	"github.com/atelierhq/portal-server-go/internal/model"
	"github.com/atelierhq/portal-server-go/internal/service"
)

// multipart parse ceiling before spilling to disk
const uploadMemoryLimit = 10 << 20

// PortalHandler is the client-facing API surface. Every route runs behind
// the portal auth middleware, so a grant is always present; per-resource
// authorization still goes through the access service on each request.
type PortalHandler struct {
	accessService   *service.AccessService
	manifestService *service.ManifestService
	messageService  *service.MessageService
	uploadService   *service.UploadService
	documentService *service.DocumentService
	paymentService  *service.PaymentService
}

func NewPortalHandler(
	accessService *service.AccessService,
	manifestService *service.ManifestService,
	messageService *service.MessageService,
	uploadService *service.UploadService,
	documentService *service.DocumentService,
	paymentService *service.PaymentService,
) *PortalHandler {
	return &PortalHandler{
		accessService:   accessService,
		manifestService: manifestService,
		messageService:  messageService,
		uploadService:   uploadService,
		documentService: documentService,
		paymentService:  paymentService,
	}
}

func (h *PortalHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/manifest", h.GetManifest)

	r.Get("/projects/{projectID}/messages", h.ListMessages)
	r.Post("/projects/{projectID}/messages", h.PostMessage)
	r.Post("/projects/{projectID}/messages/read", h.MarkRead)

	r.Get("/projects/{projectID}/uploads", h.ListUploads)
	r.Post("/projects/{projectID}/uploads", h.CreateUpload)
	r.Get("/uploads/{uploadID}/download", h.DownloadUpload)

	r.Get("/documents", h.ListDocuments)
	r.Get("/documents/{documentID}/download", h.DownloadDocument)

	r.Get("/projects/{projectID}/invoices", h.ListInvoices)
	r.Get("/invoices/{invoiceID}", h.GetInvoice)
	r.Post("/invoices/{invoiceID}/checkout", h.CreateCheckout)
	r.Post("/checkout/confirm", h.ConfirmCheckout)

	return r
}

func grantToken(r *http.Request) (*service.Grant, string) {
	grant := middleware.GetGrant(r.Context())
	return grant, grant.Token.TokenValue
}

func (h *PortalHandler) GetManifest(w http.ResponseWriter, r *http.Request) {
	_, token := grantToken(r)

	manifest, err := h.manifestService.GetManifest(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, manifest)
}

func (h *PortalHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	_, token := grantToken(r)

	_, project, err := h.accessService.ValidateProject(r.Context(), token, chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, err)
		return
	}

	pagination := ParsePagination(r)
	page, err := h.messageService.ListMessages(r.Context(), project.ID, pagination.Limit, pagination.Offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (h *PortalHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	grant, token := grantToken(r)

	_, project, err := h.accessService.ValidateProject(r.Context(), token, chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "invalid JSON"))
		return
	}

	message, err := h.messageService.PostMessage(r.Context(), model.CreateMessageParams{
		ProjectID:  project.ID,
		AuthorRole: model.RoleClient,
		AuthorID:   &grant.Identity.ID,
		Body:       req.Body,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, message)
}

func (h *PortalHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	grant, token := grantToken(r)

	_, project, err := h.accessService.ValidateProject(r.Context(), token, chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, err)
		return
	}

	state, err := h.messageService.MarkRead(r.Context(), project.ID, model.RoleClient, grant.Identity.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, state)
}

func (h *PortalHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	_, token := grantToken(r)

	_, project, err := h.accessService.ValidateProject(r.Context(), token, chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, err)
		return
	}

	pagination := ParsePagination(r)
	page, err := h.uploadService.ListUploads(r.Context(), project.ID, pagination.Limit, pagination.Offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (h *PortalHandler) CreateUpload(w http.ResponseWriter, r *http.Request) {
	grant, token := grantToken(r)

	_, project, err := h.accessService.ValidateProject(r.Context(), token, chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, err)
		return
	}

	if err := r.ParseMultipartForm(uploadMemoryLimit); err != nil {
		writeError(w, apperrors.InvalidInput("file", "invalid multipart form"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, apperrors.MissingRequired("file"))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")

	upload, err := h.uploadService.CreateUpload(r.Context(), project.ID, model.RoleClient, &grant.Identity.ID,
		header.Filename, contentType, header.Size, file)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, upload)
}

func (h *PortalHandler) DownloadUpload(w http.ResponseWriter, r *http.Request) {
	_, token := grantToken(r)

	_, upload, err := h.accessService.ValidateUpload(r.Context(), token, chi.URLParam(r, "uploadID"))
	if err != nil {
		writeError(w, err)
		return
	}

	url, err := h.uploadService.SignedDownloadURL(upload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *PortalHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	grant, _ := grantToken(r)

	docs, err := h.documentService.ListForOrganization(r.Context(), grant.OrganizationID())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (h *PortalHandler) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	_, token := grantToken(r)

	_, doc, err := h.accessService.ValidateDocument(r.Context(), token, chi.URLParam(r, "documentID"))
	if err != nil {
		writeError(w, err)
		return
	}

	url, err := h.documentService.SignedDownloadURL(doc)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *PortalHandler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	_, token := grantToken(r)

	_, project, err := h.accessService.ValidateProject(r.Context(), token, chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, err)
		return
	}

	invoices, err := h.paymentService.ListForProject(r.Context(), project.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"invoices": invoices})
}

func (h *PortalHandler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	_, token := grantToken(r)

	_, invoice, err := h.accessService.ValidateInvoice(r.Context(), token, chi.URLParam(r, "invoiceID"))
	if err != nil {
		writeError(w, err)
		return
	}

	detail, err := h.paymentService.GetDetail(r.Context(), invoice)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

func (h *PortalHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	_, token := grantToken(r)

	grant, invoice, err := h.accessService.ValidateInvoice(r.Context(), token, chi.URLParam(r, "invoiceID"))
	if err != nil {
		writeError(w, err)
		return
	}

	session, err := h.paymentService.CreateCheckoutSession(r.Context(), grant, invoice)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

func (h *PortalHandler) ConfirmCheckout(w http.ResponseWriter, r *http.Request) {
	grant, _ := grantToken(r)

	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeError(w, apperrors.MissingRequired("sessionId"))
		return
	}

	invoice, err := h.paymentService.ConfirmCheckoutSession(r.Context(), grant, req.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, invoice)
}
