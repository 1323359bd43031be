package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"qrattend/internal/apperr"
	"qrattend/internal/attendance"
)

func (h *Handler) generateQR(c *gin.Context) {
	issued, err := h.Issuer.Create(c.Request.Context(), c.Param("classId"), actor(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, issued)
}

func (h *Handler) activeSession(c *gin.Context) {
	s, err := h.Issuer.ActiveFor(c.Request.Context(), c.Param("classId"), actor(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if s == nil {
		c.JSON(http.StatusOK, gin.H{"hasActiveSession": false})
		return
	}
	body := gin.H{
		"hasActiveSession": true,
		"sessionId":        s.ID,
		"expiresAt":        s.ExpiresAt,
	}
	if s.TeacherID == actor(c).ID {
		body["sessionCode"] = s.Code
	}
	if h.Tally != nil {
		if n, err := h.Tally.Count(c.Request.Context(), s.ID); err != nil {
			h.Logger.Warn("read check-in tally", zap.String("session_id", s.ID), zap.Error(err))
		} else {
			body["checkins"] = n
		}
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) invalidateSession(c *gin.Context) {
	if err := h.Issuer.Invalidate(c.Request.Context(), c.Param("sessionId"), actor(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session invalidated"})
}

func (h *Handler) mark(c *gin.Context) {
	var req attendance.MarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, bindError(err))
		return
	}
	loc, ok := req.Locate()
	if !ok {
		h.respondError(c, apperr.New(apperr.Validation, "sessionCode or qrCode is required"))
		return
	}
	conf, err := h.Marks.Mark(c.Request.Context(), actor(c), loc)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Attendance marked successfully",
		"attendance": gin.H{
			"id":       conf.Record.ID,
			"class":    conf.ClassName,
			"classId":  conf.Record.ClassID,
			"date":     conf.Record.Day,
			"markedAt": conf.Record.MarkedAt,
			"status":   conf.Record.Status,
		},
	})
}

func (h *Handler) classAttendance(c *gin.Context) {
	entries, err := h.Reports.ClassRecords(c.Request.Context(), actor(c), c.Param("classId"), c.Query("date"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *Handler) myAttendance(c *gin.Context) {
	entries, err := h.Reports.StudentRecords(c.Request.Context(), actor(c), c.Query("classId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *Handler) stats(c *gin.Context) {
	stats, err := h.Reports.Stats(c.Request.Context(), actor(c), c.Param("classId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) summary(c *gin.Context) {
	sum, err := h.Reports.Summary(c.Request.Context(), actor(c), c.Param("classId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}
