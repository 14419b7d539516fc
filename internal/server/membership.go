package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	membershipdomain "github.com/smallbiznis/pasar/internal/membership/domain"
	"github.com/smallbiznis/pasar/pkg/db/pagination"
)

func (s *Server) RequestJoin(c *gin.Context) {
	resp, err := s.membershipSvc.RequestJoin(c.Request.Context(), currentUserID(c), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelJoinRequest(c *gin.Context) {
	if err := s.membershipSvc.CancelRequest(c.Request.Context(), currentUserID(c), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"cancelled": true}})
}

func (s *Server) LeaveGroup(c *gin.Context) {
	if err := s.membershipSvc.Leave(c.Request.Context(), currentUserID(c), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"left": true}})
}

func (s *Server) ListMembers(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.membershipSvc.ListMembers(c.Request.Context(), currentUserID(c), membershipdomain.ListMemberRequest{
		GroupID:   strings.TrimSpace(c.Param("id")),
		Status:    strings.TrimSpace(query.Status),
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ApproveMember(c *gin.Context) {
	groupID := strings.TrimSpace(c.Param("id"))
	memberUserID := strings.TrimSpace(c.Param("user_id"))

	resp, err := s.membershipSvc.Approve(c.Request.Context(), currentUserID(c), groupID, memberUserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		actorID := currentUserID(c).String()
		_ = s.auditSvc.AuditLog(c.Request.Context(), parseSnowflake(groupID), "user", &actorID, "member.approve", "membership", &memberUserID, nil)
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RejectMember(c *gin.Context) {
	groupID := strings.TrimSpace(c.Param("id"))
	memberUserID := strings.TrimSpace(c.Param("user_id"))

	if err := s.membershipSvc.Reject(c.Request.Context(), currentUserID(c), groupID, memberUserID); err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		actorID := currentUserID(c).String()
		_ = s.auditSvc.AuditLog(c.Request.Context(), parseSnowflake(groupID), "user", &actorID, "member.reject", "membership", &memberUserID, nil)
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"rejected": true}})
}

func (s *Server) RemoveMember(c *gin.Context) {
	groupID := strings.TrimSpace(c.Param("id"))
	memberUserID := strings.TrimSpace(c.Param("user_id"))

	if err := s.membershipSvc.RemoveMember(c.Request.Context(), currentUserID(c), groupID, memberUserID); err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		actorID := currentUserID(c).String()
		_ = s.auditSvc.AuditLog(c.Request.Context(), parseSnowflake(groupID), "user", &actorID, "member.remove", "membership", &memberUserID, nil)
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"removed": true}})
}

type transferLeadershipRequest struct {
	NewLeaderUserID string `json:"new_leader_user_id"`
}

func (s *Server) TransferLeadership(c *gin.Context) {
	var req transferLeadershipRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.NewLeaderUserID) == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	groupID := strings.TrimSpace(c.Param("id"))
	newLeaderUserID := strings.TrimSpace(req.NewLeaderUserID)

	if err := s.membershipSvc.TransferLeadership(c.Request.Context(), currentUserID(c), groupID, newLeaderUserID); err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		actorID := currentUserID(c).String()
		_ = s.auditSvc.AuditLog(c.Request.Context(), parseSnowflake(groupID), "user", &actorID, "group.transfer", "membership", &newLeaderUserID, nil)
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"transferred": true}})
}

type inviteMemberRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) InviteMember(c *gin.Context) {
	var req inviteMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	groupID := strings.TrimSpace(c.Param("id"))
	inviteeID := strings.TrimSpace(req.UserID)

	if err := s.membershipSvc.Invite(c.Request.Context(), currentUserID(c), groupID, inviteeID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"invited": true}})
}
