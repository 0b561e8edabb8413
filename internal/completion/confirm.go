package completion

import (
	"strconv"

	"github.com/dreamshop/gateway/internal/payment/paypal"
	"github.com/dreamshop/gateway/internal/payment/stripepay"
)

const (
	stripeMethodTitle = "Carta di credito (Stripe)"
	paypalMethodTitle = "PayPal"
)

func parseID(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func FromPaymentIntent(pi *stripepay.PaymentIntent) Confirmation {
	return Confirmation{
		Provider:    ProviderStripe,
		Reference:   pi.ID,
		Succeeded:   pi.Succeeded(),
		OrderID:     parseID(pi.Metadata[stripepay.MetaOrderID]),
		UserID:      parseID(pi.Metadata[stripepay.MetaUserID]),
		FeeToken:    pi.Metadata[stripepay.MetaFeeToken],
		MethodID:    ProviderStripe,
		MethodTitle: stripeMethodTitle,
	}
}

// FromPayPalCapture binds a capture through the reference_id (order id) and
// custom_id (user id) set when the PayPal order was created.
func FromPayPalCapture(c *paypal.Capture) Confirmation {
	return Confirmation{
		Provider:    ProviderPayPal,
		Reference:   c.CaptureID,
		Succeeded:   c.Completed() && c.CaptureID != "",
		OrderID:     parseID(c.ReferenceID),
		UserID:      parseID(c.CustomID),
		MethodID:    ProviderPayPal,
		MethodTitle: paypalMethodTitle,
	}
}
