package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListMemberships(c *gin.Context) {
	orgID := queryAlias(c, "org_id", "p_org")
	withOrg(c, orgID)

	items, err := s.membershipSvc.List(c.Request.Context(), storeFrom(c), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) UpdateMemberRole(c *gin.Context) {
	var body memberBody
	if err := bindJSON(c, &body); err != nil {
		AbortWithError(c, err)
		return
	}

	req := body.resolveUpdate()
	withOrg(c, req.OrgID)
	if err := s.membershipSvc.UpdateRole(c.Request.Context(), storeFrom(c), req); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) DeleteMember(c *gin.Context) {
	var body memberBody
	if err := bindJSON(c, &body); err != nil {
		AbortWithError(c, err)
		return
	}

	req := body.resolveDelete()
	withOrg(c, req.OrgID)
	if err := s.membershipSvc.Delete(c.Request.Context(), storeFrom(c), req); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) ListMyOrganizations(c *gin.Context) {
	items, err := s.membershipSvc.ListMine(c.Request.Context(), storeFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) CheckPermission(c *gin.Context) {
	orgID := queryAlias(c, "org_id", "p_org")
	withOrg(c, orgID)

	allowed, err := s.membershipSvc.HasPermission(c.Request.Context(), storeFrom(c), queryAlias(c, "perm", "p_perm"), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"allowed": allowed})
}
