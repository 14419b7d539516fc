package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	groupdomain "github.com/smallbiznis/pasar/internal/group/domain"
	"github.com/smallbiznis/pasar/pkg/db/pagination"
)

func parseSnowflake(raw string) *snowflake.ID {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	return &id
}

type createGroupRequest struct {
	Name               string `json:"name"`
	Description        string `json:"description"`
	Visibility         string `json:"visibility"`
	MustApprovePosts   bool   `json:"must_approve_posts"`
	AllowMemberInvites *bool  `json:"allow_member_invites"`
}

func (s *Server) CreateGroup(c *gin.Context) {
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	allowInvites := true
	if req.AllowMemberInvites != nil {
		allowInvites = *req.AllowMemberInvites
	}
	resp, err := s.groupSvc.Create(c.Request.Context(), currentUserID(c), groupdomain.CreateGroupRequest{
		Name:               strings.TrimSpace(req.Name),
		Description:        strings.TrimSpace(req.Description),
		Visibility:         strings.TrimSpace(req.Visibility),
		MustApprovePosts:   req.MustApprovePosts,
		AllowMemberInvites: allowInvites,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		actorID := currentUserID(c).String()
		targetID := resp.ID
		_ = s.auditSvc.AuditLog(c.Request.Context(), parseSnowflake(resp.ID), "user", &actorID, "group.create", "group", &targetID, map[string]any{
			"name": resp.Name,
			"slug": resp.Slug,
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListGroups(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Visibility string `form:"visibility"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.groupSvc.List(c.Request.Context(), groupdomain.ListGroupRequest{
		PageToken:  query.PageToken,
		PageSize:   int32(query.PageSize),
		Visibility: strings.TrimSpace(query.Visibility),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetGroupByID(c *gin.Context) {
	resp, err := s.groupSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateGroupRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Visibility  *string `json:"visibility"`
}

func (s *Server) UpdateGroup(c *gin.Context) {
	var req updateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.groupSvc.Update(c.Request.Context(), currentUserID(c), strings.TrimSpace(c.Param("id")), groupdomain.UpdateGroupRequest{
		Name:        req.Name,
		Description: req.Description,
		Visibility:  req.Visibility,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteGroup(c *gin.Context) {
	groupID := strings.TrimSpace(c.Param("id"))
	if err := s.groupSvc.Delete(c.Request.Context(), currentUserID(c), groupID); err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		actorID := currentUserID(c).String()
		_ = s.auditSvc.AuditLog(c.Request.Context(), parseSnowflake(groupID), "user", &actorID, "group.delete", "group", &groupID, nil)
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}

type setPostPolicyRequest struct {
	MustApprovePosts *bool `json:"must_approve_posts"`
}

func (s *Server) SetGroupPostPolicy(c *gin.Context) {
	var req setPostPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.MustApprovePosts == nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	groupID := strings.TrimSpace(c.Param("id"))
	resp, err := s.groupSvc.SetPostPolicy(c.Request.Context(), currentUserID(c), groupID, *req.MustApprovePosts)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		actorID := currentUserID(c).String()
		_ = s.auditSvc.AuditLog(c.Request.Context(), parseSnowflake(groupID), "user", &actorID, "group.post_policy", "group", &groupID, map[string]any{
			"must_approve_posts":  resp.MustApprovePosts,
			"auto_approved_count": resp.AutoApprovedCount,
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
