package handlers

import (
	"net/http"

	core "github.com/PaulFidika/subkit/core"
	sublang "github.com/PaulFidika/subkit/lang"
	"github.com/gin-gonic/gin"
)

type productView struct {
	ID           string `json:"id"`
	DisplayName  string `json:"display_name"`
	Description  string `json:"description"`
	DisplayPrice string `json:"display_price"`
	PriceLabel   string `json:"price_label"`
	CurrencyCode string `json:"currency_code,omitempty"`
	PeriodUnit   string `json:"period_unit,omitempty"`
	PeriodValue  int    `json:"period_value,omitempty"`
}

func HandleSubscriptionProductsGET(svc core.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ps, err := svc.Products(ctx)
		if err != nil {
			// Products is empty on failure; the client shows nothing to buy.
			c.JSON(http.StatusBadGateway, gin.H{"error": "catalog_unavailable", "data": []productView{}})
			return
		}
		out := make([]productView, 0, len(ps))
		for _, p := range ps {
			out = append(out, productView{
				ID:           p.ID,
				DisplayName:  p.DisplayName,
				Description:  p.Description,
				DisplayPrice: p.DisplayPrice,
				PriceLabel:   sublang.PriceLabelFromContext(ctx, p.DisplayPrice, p.Period),
				CurrencyCode: p.CurrencyCode,
				PeriodUnit:   string(p.Period.Unit),
				PeriodValue:  p.Period.Value,
			})
		}
		c.JSON(http.StatusOK, gin.H{"data": out})
	}
}
