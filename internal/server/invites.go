package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	invitedomain "github.com/smallbiznis/orgaccess/internal/invite/domain"
)

func (s *Server) CreateInvite(c *gin.Context) {
	var body createInviteBody
	if err := bindJSON(c, &body); err != nil {
		AbortWithError(c, err)
		return
	}

	req := body.resolve()
	req.Origin = s.origin(c)
	withOrg(c, req.OrgID)

	result, err := s.inviteSvc.Create(c.Request.Context(), storeFrom(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) AcceptInvite(c *gin.Context) {
	mode, err := invitedomain.ParseOutputMode(c.Query("noRedirect"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.inviteSvc.Accept(c.Request.Context(), storeFrom(c), invitedomain.AcceptRequest{
		Token:  c.Query("token"),
		Origin: s.origin(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if mode == invitedomain.OutputJSON {
		c.JSON(http.StatusOK, result)
		return
	}
	c.Redirect(http.StatusFound, result.RedirectURL)
}

func (s *Server) ResendInvite(c *gin.Context) {
	var body resendInviteBody
	if err := bindJSON(c, &body); err != nil {
		AbortWithError(c, err)
		return
	}

	req := body.resolve()
	req.Origin = s.origin(c)
	withOrg(c, req.OrgID)

	result, err := s.inviteSvc.Resend(c.Request.Context(), storeFrom(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) RevokeInvite(c *gin.Context) {
	var body revokeInviteBody
	if err := bindJSON(c, &body); err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.inviteSvc.Revoke(c.Request.Context(), storeFrom(c), body.resolve()); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) origin(c *gin.Context) string {
	return invitedomain.ResolveOrigin(s.cfg.App.Origin, c.GetHeader("X-Forwarded-Proto"), c.GetHeader("X-Forwarded-Host"))
}
