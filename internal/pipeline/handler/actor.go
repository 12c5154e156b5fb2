package handler

import (
	"realty_crm_backend/internal/pipeline/domain"
	"realty_crm_backend/platform/apperr"
	"realty_crm_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// actorFrom turns the authenticated identity into the actor passed to the
// pipeline services. It aborts with 401 for anonymous callers and 403 when
// the token is not bound to a tenant.
func actorFrom(c *gin.Context) (domain.Actor, bool) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return domain.Actor{}, false
	}
	if id.TenantID() == nil {
		httpkit.HandleError(c, apperr.Forbidden("tenant required"))
		c.Abort()
		return domain.Actor{}, false
	}

	role := domain.RoleAgent
	if id.HasRole(domain.RoleAdmin) {
		role = domain.RoleAdmin
	}
	return domain.Actor{UserID: id.UserID(), TenantID: *id.TenantID(), Role: role}, true
}
