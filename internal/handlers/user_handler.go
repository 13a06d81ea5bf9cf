package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/pharmavault-api/internal/middleware"
	"github.com/sjperalta/pharmavault-api/internal/models"
	"github.com/sjperalta/pharmavault-api/internal/repository"
	"github.com/sjperalta/pharmavault-api/internal/services"
)

type UserHandler struct {
	userService *services.UserService
}

func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// @Summary List Users
// @Description Get a paginated list of users
// @Tags Users
// @Accept json
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Param search_term query string false "Search by name or email"
// @Param role query string false "Filter by role"
// @Param status query string false "Filter by status (all for every status)"
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} map[string]string
// @Security BearerAuth
// @Router /users [get]
func (h *UserHandler) Index(c *gin.Context) {
	query := repository.NewListQuery()
	query.Page, query.PerPage = pagination(c, 20)
	query.Search = c.Query("search_term")
	query.Filters["role"] = c.Query("role")

	status := c.Query("status")
	if status == "" {
		status = models.StatusActive
	} else if status == "all" {
		status = ""
	}
	query.Filters["status"] = status

	users, total, err := h.userService.List(c.Request.Context(), query)
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]models.UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, users[i].ToResponse())
	}

	c.JSON(http.StatusOK, gin.H{"users": responses, "pagination": paginationBody(query.Page, query.PerPage, total)})
}

type CreateUserRequest struct {
	Email          string `json:"email" binding:"required,email"`
	Password       string `json:"password" binding:"required"`
	FullName       string `json:"full_name"`
	FullNamePascal string `json:"FullName"` // some clients send PascalCase
	Role           string `json:"role"`
	Department     string `json:"department"`
}

// @Summary Create User
// @Description Create a new account (Admin only)
// @Tags Users
// @Accept json
// @Produce json
// @Param request body CreateUserRequest true "User Data"
// @Success 201 {object} models.UserResponse
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /users [post]
func (h *UserHandler) Create(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	if req.FullName == "" && req.FullNamePascal != "" {
		req.FullName = req.FullNamePascal
	}
	if req.FullName == "" {
		badRequest(c, "full_name is required")
		return
	}

	user, err := h.userService.Create(c.Request.Context(), services.CreateUserInput{
		Email:      req.Email,
		Password:   req.Password,
		FullName:   req.FullName,
		Role:       req.Role,
		Department: req.Department,
	}, middleware.GetPrincipal(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": user.ToResponse(), "message": "user created"})
}

// @Summary Get User
// @Description Get a user by ID (Admin only)
// @Tags Users
// @Produce json
// @Param user_id path int true "User ID"
// @Success 200 {object} models.UserResponse
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /users/{user_id} [get]
func (h *UserHandler) Show(c *gin.Context) {
	id, ok := paramUint(c, "user_id")
	if !ok {
		badRequest(c, "invalid user_id")
		return
	}
	user, err := h.userService.FindByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user.ToResponse()})
}
