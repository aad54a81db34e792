package server

import (
	"net/http"

	"gamification/internal/db"
	"gamification/internal/moderation"

	"github.com/gin-gonic/gin"
)

type editRequestListQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=PENDING APPROVED REJECTED"`
	GameID uint   `form:"game_id"`
}

type reviewRequest struct {
	RequestID uint `json:"request_id" binding:"required"`
}

var (
	editRequestListMessages = bindMessages{
		"Status": {"oneof": "status must be PENDING, APPROVED or REJECTED"},
	}
	reviewMessages = bindMessages{
		"RequestID": {"required": "request_id is required"},
	}
)

func (s *Server) handleAdminEditRequestList(c *gin.Context) {
	var query editRequestListQuery
	if !bindQuery(c, &query, editRequestListMessages, "invalid query") {
		return
	}
	page, perPage := parsePagination(c, defaultPageSize, maxPageSize)
	requests, total, err := s.moderation.List(c.Request.Context(), moderation.ListFilter{
		Status:  db.EditRequestStatus(query.Status),
		GameID:  query.GameID,
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writePage(c, requests, buildPagination(page, perPage, total))
}

func (s *Server) handleAdminEditRequestDetail(c *gin.Context) {
	id, ok := bindID(c, "edit request")
	if !ok {
		return
	}
	req, err := s.moderation.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeData(c, http.StatusOK, req)
}

func (s *Server) handleAdminEditRequestApprove(c *gin.Context) {
	var req reviewRequest
	if !bindJSON(c, &req, reviewMessages, "invalid review request") {
		return
	}
	approved, err := s.moderation.Approve(c.Request.Context(), identityFrom(c), req.RequestID)
	if err != nil {
		writeError(c, err)
		return
	}
	writeData(c, http.StatusOK, approved)
}

func (s *Server) handleAdminEditRequestReject(c *gin.Context) {
	var req reviewRequest
	if !bindJSON(c, &req, reviewMessages, "invalid review request") {
		return
	}
	rejected, err := s.moderation.Reject(c.Request.Context(), identityFrom(c), req.RequestID)
	if err != nil {
		writeError(c, err)
		return
	}
	writeData(c, http.StatusOK, rejected)
}
