package webhook

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/referral/intake/pkg/pagination"
)

// DeliveryHandler exposes the delivery log via Echo HTTP routes.
type DeliveryHandler struct {
	store DeliveryStore
}

// NewDeliveryHandler creates a new DeliveryHandler.
func NewDeliveryHandler(store DeliveryStore) *DeliveryHandler {
	return &DeliveryHandler{store: store}
}

// RegisterRoutes binds the delivery log routes to the given Echo group.
func (h *DeliveryHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/deliveries", h.ListDeliveries)
}

// ListDeliveries handles GET /deliveries?kind=document|record.
func (h *DeliveryHandler) ListDeliveries(c echo.Context) error {
	kind := c.QueryParam("kind")
	if kind != "" && kind != KindDocument && kind != KindRecord {
		return echo.NewHTTPError(http.StatusBadRequest, "kind must be document or record")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.store.ListDeliveries(c.Request().Context(), kind, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}
