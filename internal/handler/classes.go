package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"qrattend/internal/classes"
)

type createClassRequest struct {
	Name       string           `json:"name" binding:"required"`
	Code       string           `json:"code" binding:"required,classcode"`
	Department string           `json:"department"`
	Schedule   classes.Schedule `json:"schedule"`
}

type joinRequest struct {
	Code string `json:"code" binding:"required"`
}

type addStudentRequest struct {
	Email string `json:"email" binding:"required,email"`
}

func (h *Handler) createClass(c *gin.Context) {
	var req createClassRequest
	if !h.bind(c, &req) {
		return
	}
	class, err := h.Classes.Create(c.Request.Context(), actor(c), classes.CreateInput{
		Name:       req.Name,
		Code:       req.Code,
		Department: req.Department,
		Schedule:   req.Schedule,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, class)
}

func (h *Handler) listClasses(c *gin.Context) {
	list, err := h.Classes.ListForUser(c.Request.Context(), actor(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) getClass(c *gin.Context) {
	class, members, err := h.Classes.Detail(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"class": class, "students": members})
}

func (h *Handler) joinClass(c *gin.Context) {
	code := c.Param("code")
	if code == "" {
		var req joinRequest
		if !h.bind(c, &req) {
			return
		}
		code = req.Code
	}
	class, err := h.Classes.Join(c.Request.Context(), actor(c), code)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Successfully joined class", "class": class})
}

func (h *Handler) addStudent(c *gin.Context) {
	var req addStudentRequest
	if !h.bind(c, &req) {
		return
	}
	_, student, err := h.Classes.AddStudentByEmail(c.Request.Context(), actor(c), c.Param("id"), req.Email)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Student added successfully", "student": student})
}

func (h *Handler) deleteClass(c *gin.Context) {
	if err := h.Classes.Delete(c.Request.Context(), actor(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Class deleted successfully"})
}
