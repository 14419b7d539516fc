package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	postdomain "github.com/smallbiznis/pasar/internal/post/domain"
	"github.com/smallbiznis/pasar/pkg/db/pagination"
)

type createPostRequest struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	PriceCent int64  `json:"price_cent"`
	Currency  string `json:"currency"`
}

func (s *Server) CreatePost(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.postSvc.Create(c.Request.Context(), currentUserID(c), strings.TrimSpace(c.Param("id")), postdomain.CreatePostRequest{
		Title:     strings.TrimSpace(req.Title),
		Body:      req.Body,
		PriceCent: req.PriceCent,
		Currency:  strings.TrimSpace(req.Currency),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPosts(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status   string `form:"status"`
		AuthorID string `form:"author_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.postSvc.List(c.Request.Context(), currentUserID(c), postdomain.ListPostRequest{
		GroupID:   strings.TrimSpace(c.Param("id")),
		Status:    strings.TrimSpace(query.Status),
		AuthorID:  strings.TrimSpace(query.AuthorID),
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPostByID(c *gin.Context) {
	resp, err := s.postSvc.GetByID(c.Request.Context(), currentUserID(c), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updatePostRequest struct {
	Title     *string `json:"title"`
	Body      *string `json:"body"`
	PriceCent *int64  `json:"price_cent"`
}

func (s *Server) UpdatePost(c *gin.Context) {
	var req updatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.postSvc.Update(c.Request.Context(), currentUserID(c), strings.TrimSpace(c.Param("id")), postdomain.UpdatePostRequest{
		Title:     req.Title,
		Body:      req.Body,
		PriceCent: req.PriceCent,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) HidePost(c *gin.Context) {
	if err := s.postSvc.Hide(c.Request.Context(), currentUserID(c), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"hidden": true}})
}

func (s *Server) RepublishPost(c *gin.Context) {
	resp, err := s.postSvc.Republish(c.Request.Context(), currentUserID(c), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ApprovePost(c *gin.Context) {
	s.decidePost(c, true)
}

func (s *Server) RejectPost(c *gin.Context) {
	s.decidePost(c, false)
}

func (s *Server) decidePost(c *gin.Context, approve bool) {
	postID := strings.TrimSpace(c.Param("id"))

	resp, err := s.postSvc.SetApproval(c.Request.Context(), currentUserID(c), postID, approve)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		action := "post.reject"
		if approve {
			action = "post.approve"
		}
		actorID := currentUserID(c).String()
		_ = s.auditSvc.AuditLog(c.Request.Context(), parseSnowflake(resp.GroupID), "user", &actorID, action, "post", &postID, nil)
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) MarkPostSold(c *gin.Context) {
	resp, err := s.postSvc.MarkSold(c.Request.Context(), currentUserID(c), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type adminSetPostStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) AdminSetPostStatus(c *gin.Context) {
	var req adminSetPostStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Status) == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	postID := strings.TrimSpace(c.Param("id"))
	resp, err := s.postSvc.AdminSetStatus(c.Request.Context(), currentUserID(c), postID, strings.TrimSpace(req.Status))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		actorID := currentUserID(c).String()
		_ = s.auditSvc.AuditLog(c.Request.Context(), parseSnowflake(resp.GroupID), "admin", &actorID, "post.admin_status", "post", &postID, map[string]any{
			"status": resp.Status,
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
