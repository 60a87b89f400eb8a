// Administrative HTTP handlers.
//
// These routes are mounted under /admin only when an admin token is
// configured, and every request must carry it in X-Admin-Token:
//   - GET    /admin/domains/{domain}/stats
//   - POST   /admin/domains/{domain}/modules/{module}/reconcile
//   - PUT    /admin/domains/{domain}/modules/{module}/title
//   - DELETE /admin/domains/{domain}/modules/{module}
//   - DELETE /admin/domains/{domain}
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-reactions-backend/internal/domain"
)

// AdminService defines the ledger's maintenance operations.
type AdminService interface {
	Stats(ctx context.Context, domainID string) (domain.CollectionStats, error)
	Reconcile(ctx context.Context, domainID, moduleID string) (domain.Snapshot, error)
	RemoveModule(ctx context.Context, domainID, moduleID string) error
	DropDomain(ctx context.Context, domainID string) error
}

// DomainStats godoc
// @ID          domainStats
// @Summary     Domain statistics
// @Description Returns module and active-reaction counts for a domain.
// @Tags        Admin
// @Produce     json
// @Security    AdminToken
//
// @Param       domain  path  string  true  "Tenant domain"  example(example.com)
//
// @Success     200  {object} domain.CollectionStats
// @Failure     401  {object} handlers.ErrorResponse "Missing or invalid admin token"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/domains/{domain}/stats [get]
func (h *Handlers) DomainStats(c *gin.Context) {
	st, err := h.admin.Stats(c.Request.Context(), c.Param("domain"))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

// UpdateTitle godoc
// @ID          updateTitle
// @Summary     Rename a module
// @Description Stores a normalized title (whitespace collapsed, length capped) and returns the updated aggregate.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    AdminToken
//
// @Param       domain  path  string                        true  "Tenant domain"  example(example.com)
// @Param       module  path  string                        true  "Module id"      example(article-42)
// @Param       body    body  handlers.UpdateTitleRequest   true  "New title"
//
// @Success     200  {object} domain.Snapshot
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Missing or invalid admin token"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/domains/{domain}/modules/{module}/title [put]
func (h *Handlers) UpdateTitle(c *gin.Context) {
	var req UpdateTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	snap, err := h.reactions.UpdateTitle(c.Request.Context(), c.Param("domain"), c.Param("module"), req.Title)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, snap)
}

// Reconcile godoc
// @ID          reconcileModule
// @Summary     Recompute a module's counters
// @Description Rebuilds option counters from the stored user reactions. Existing option keys are kept and zeroed when unused.
// @Tags        Admin
// @Produce     json
// @Security    AdminToken
//
// @Param       domain  path  string  true  "Tenant domain"  example(example.com)
// @Param       module  path  string  true  "Module id"      example(article-42)
//
// @Success     200  {object} domain.Snapshot
// @Failure     401  {object} handlers.ErrorResponse "Missing or invalid admin token"
// @Failure     404  {object} handlers.ErrorResponse "Module not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/domains/{domain}/modules/{module}/reconcile [post]
func (h *Handlers) Reconcile(c *gin.Context) {
	snap, err := h.admin.Reconcile(c.Request.Context(), c.Param("domain"), c.Param("module"))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, snap)
}

// RemoveModule godoc
// @ID          removeModule
// @Summary     Delete a module
// @Description Deletes a module with its counters and user reactions.
// @Tags        Admin
// @Security    AdminToken
//
// @Param       domain  path  string  true  "Tenant domain"  example(example.com)
// @Param       module  path  string  true  "Module id"      example(article-42)
//
// @Success     204  {string} string "No Content"
// @Failure     401  {object} handlers.ErrorResponse "Missing or invalid admin token"
// @Failure     404  {object} handlers.ErrorResponse "Module not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/domains/{domain}/modules/{module} [delete]
func (h *Handlers) RemoveModule(c *gin.Context) {
	if err := h.admin.RemoveModule(c.Request.Context(), c.Param("domain"), c.Param("module")); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}

// DropDomain godoc
// @ID          dropDomain
// @Summary     Delete a domain
// @Description Deletes every module, reaction and vote token of a domain.
// @Tags        Admin
// @Security    AdminToken
//
// @Param       domain  path  string  true  "Tenant domain"  example(example.com)
//
// @Success     204  {string} string "No Content"
// @Failure     401  {object} handlers.ErrorResponse "Missing or invalid admin token"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/domains/{domain} [delete]
func (h *Handlers) DropDomain(c *gin.Context) {
	ctx := c.Request.Context()
	d := c.Param("domain")
	if err := h.admin.DropDomain(ctx, d); err != nil {
		failService(c, err)
		return
	}
	if err := h.tokens.DropDomain(ctx, d); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}
