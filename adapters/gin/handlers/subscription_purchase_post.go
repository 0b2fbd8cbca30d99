package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/PaulFidika/subkit/adapters/ginutil"
	core "github.com/PaulFidika/subkit/core"
	"github.com/PaulFidika/subkit/entitlements"
	"github.com/gin-gonic/gin"
)

type purchaseRequest struct {
	ProductID string `json:"product_id"`
}

type purchaseView struct {
	Outcome     string                          `json:"outcome"`
	Purchased   bool                            `json:"purchased"`
	Transaction *entitlements.TransactionRecord `json:"transaction,omitempty"`
	Error       string                          `json:"error,omitempty"`
}

// HandleSubscriptionPurchasePOST runs a purchase. Every outcome, including
// user_cancelled, answers 200; only request and catalog problems are errors.
func HandleSubscriptionPurchasePOST(svc core.Provider, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLSubscriptionPurchase) {
			ginutil.TooMany(c)
			return
		}
		var req purchaseRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ProductID) == "" {
			ginutil.BadRequest(c, "missing_product_id")
			return
		}
		out, err := svc.Purchase(c.Request.Context(), strings.TrimSpace(req.ProductID))
		switch {
		case errors.Is(err, core.ErrUnknownProduct):
			ginutil.NotFound(c, "unknown_product")
			return
		case err != nil:
			ginutil.Unavailable(c, "catalog_unavailable")
			return
		}
		c.JSON(http.StatusOK, outcomeView(out, svc.Purchased()))
	}
}

func outcomeView(out entitlements.Outcome, purchased bool) purchaseView {
	v := purchaseView{Purchased: purchased}
	switch o := out.(type) {
	case entitlements.Success:
		tx := o.Transaction
		v.Outcome, v.Transaction = o.Name(), &tx
	case entitlements.Pending:
		v.Outcome = o.Name()
	case entitlements.UserCancelled:
		v.Outcome = o.Name()
	case entitlements.Unknown:
		v.Outcome = o.Name()
		if o.Err != nil {
			v.Error = o.Err.Error()
		}
	default:
		v.Outcome = entitlements.Unknown{}.Name()
	}
	return v
}
