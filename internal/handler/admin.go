package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atelierhq/portal-server-go/internal/audit"
	apperrors "github.com/atelierhq/portal-server-go/internal/errors"
	"github.com/atelierhq/portal-server-go/internal/model"
	"github.com/atelierhq/portal-server-go/internal/repository"
	"github.com/atelierhq/portal-server-go/internal/service"
)

// sharedOperatorReader is the read-state reader id used when no operator id
// is supplied; it makes the operator side a shared inbox.
const sharedOperatorReader = "operators"

// AdminHandler is the internal operator surface: token lifecycle plus the
// operator side of project messaging. It never sees portal tokens; operator
// auth middleware gates the whole router.
type AdminHandler struct {
	tokenService   *service.TokenService
	messageService *service.MessageService
	projectRepo    repository.ProjectRepository
}

func NewAdminHandler(tokenService *service.TokenService, messageService *service.MessageService, projectRepo repository.ProjectRepository) *AdminHandler {
	return &AdminHandler{
		tokenService:   tokenService,
		messageService: messageService,
		projectRepo:    projectRepo,
	}
}

func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/identities/{identityID}/token", h.IssueToken)
	r.Get("/identities/{identityID}/token", h.TokenStatus)
	r.Delete("/tokens/{tokenID}", h.RevokeToken)

	r.Get("/projects/{projectID}/messages", h.ListMessages)
	r.Post("/projects/{projectID}/messages", h.PostMessage)
	r.Post("/projects/{projectID}/messages/read", h.MarkRead)

	return r
}

func (h *AdminHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	identityID := chi.URLParam(r, "identityID")

	issued, err := h.tokenService.Issue(r.Context(), identityID)
	if err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:       audit.EventTokenIssued,
		IdentityID: identityID,
		ResourceID: issued.Token.ID,
	})

	writeJSON(w, http.StatusCreated, issued)
}

func (h *AdminHandler) TokenStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.tokenService.Status(r.Context(), chi.URLParam(r, "identityID"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (h *AdminHandler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	tokenID := chi.URLParam(r, "tokenID")

	if err := h.tokenService.Revoke(r.Context(), tokenID); err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:       audit.EventTokenRevoked,
		ResourceID: tokenID,
	})

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) requireProject(w http.ResponseWriter, r *http.Request) *model.Project {
	project, err := h.projectRepo.FindByID(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, apperrors.Database(err))
		return nil
	}
	if project == nil {
		writeError(w, apperrors.AccessDenied())
		return nil
	}
	return project
}

func (h *AdminHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	project := h.requireProject(w, r)
	if project == nil {
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

func (h *AdminHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	project := h.requireProject(w, r)
	if project == nil {
		return
	}

	var req struct {
		Body     string  `json:"body"`
		AuthorID *string `json:"authorId,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "invalid JSON"))
		return
	}

	message, err := h.messageService.PostMessage(r.Context(), model.CreateMessageParams{
		ProjectID:  project.ID,
		AuthorRole: model.RoleOperator,
		AuthorID:   req.AuthorID,
		Body:       req.Body,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, message)
}

func (h *AdminHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	project := h.requireProject(w, r)
	if project == nil {
		return
	}

	var req struct {
		ReaderID string `json:"readerId"`
	}
	// An empty body means the shared operator inbox.
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.ReaderID == "" {
		req.ReaderID = sharedOperatorReader
	}

	state, err := h.messageService.MarkRead(r.Context(), project.ID, model.RoleOperator, req.ReaderID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, state)
}
