package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uclouvain/osis-score-encoding/internal/service"
	appErrors "github.com/uclouvain/osis-score-encoding/pkg/errors"
	"github.com/uclouvain/osis-score-encoding/pkg/response"
)

// AddressHandler manages the per-offer score sheet address block.
type AddressHandler struct {
	addresses *service.AddressService
}

// NewAddressHandler constructs handler.
func NewAddressHandler(addresses *service.AddressService) *AddressHandler {
	return &AddressHandler{addresses: addresses}
}

// Get godoc
// @Summary Read the offer's score sheet address and its form constraints
// @Tags Offers
// @Produce json
// @Param acronym path string true "Offer acronym"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /offers/{acronym}/score-sheet-address [get]
func (h *AddressHandler) Get(c *gin.Context) {
	address, constraints, err := h.addresses.Get(c.Request.Context(), principalFromContext(c), c.Param("acronym"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"address": address, "constraints": constraints}, nil)
}

// Update godoc
// @Summary Store the offer's score sheet address
// @Tags Offers
// @Accept json
// @Produce json
// @Param acronym path string true "Offer acronym"
// @Param payload body service.ScoreSheetAddressRequest true "Address form"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /offers/{acronym}/score-sheet-address [put]
func (h *AddressHandler) Update(c *gin.Context) {
	var req service.ScoreSheetAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	address, err := h.addresses.Update(c.Request.Context(), principalFromContext(c), c.Param("acronym"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, address, nil)
}
