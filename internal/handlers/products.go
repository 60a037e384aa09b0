package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/artisanhq/atelier/internal/services"
	"github.com/artisanhq/atelier/pkg/response"
)

// ProductHandler exposes the product catalogue. Reads are open to any
// authenticated user; writes are admin-only and wired behind RequireAdmin.
type ProductHandler struct {
	products *services.ProductService
}

func NewProductHandler(products *services.ProductService) *ProductHandler {
	return &ProductHandler{products: products}
}

// GET /api/products
func (h *ProductHandler) List(c *gin.Context) {
	products, err := h.products.List(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"products": products})
}

type createProductRequest struct {
	Name      string  `json:"name" validate:"required"`
	BasePrice float64 `json:"base_price" validate:"gte=0"`
}

// POST /api/admin/products
func (h *ProductHandler) Create(c *gin.Context) {
	var req createProductRequest
	if !bindAndValidate(c, &req) {
		return
	}

	product, err := h.products.Create(requestContext(c), req.Name, req.BasePrice)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"product": product})
}

type updateProductRequest struct {
	BasePrice float64 `json:"base_price" validate:"gte=0"`
}

// PATCH /api/admin/products/:id
func (h *ProductHandler) UpdateBasePrice(c *gin.Context) {
	var req updateProductRequest
	if !bindAndValidate(c, &req) {
		return
	}

	product, err := h.products.UpdateBasePrice(requestContext(c), c.Param("id"), req.BasePrice)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"product": product})
}
