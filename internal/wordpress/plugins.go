package wordpress

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dreamshop/gateway/internal/models"
)

func (c *Client) GetResinShippingFee(ctx context.Context, token string) (*models.ResinShippingFee, error) {
	var fee models.ResinShippingFee
	err := c.doJSON(ctx, Request{
		Method: http.MethodGet,
		Path:   ResinShippingPath + "/fee/" + token,
		Auth:   AuthBasic,
	}, &fee)
	if err != nil {
		return nil, fmt.Errorf("get resin shipping fee: %w", err)
	}
	if fee.Token == "" {
		fee.Token = token
	}
	return &fee, nil
}

type markFeePaidRequest struct {
	TransactionID string `json:"transaction_id"`
	PaymentMethod string `json:"payment_method"`
}

func (c *Client) MarkResinShippingFeePaid(ctx context.Context, token, transactionID, method string) (*models.ResinShippingFee, error) {
	var fee models.ResinShippingFee
	err := c.doJSON(ctx, Request{
		Method: http.MethodPost,
		Path:   ResinShippingPath + "/fee/" + token + "/pay",
		Auth:   AuthBasic,
		Body:   markFeePaidRequest{TransactionID: transactionID, PaymentMethod: method},
	}, &fee)
	if err != nil {
		return nil, fmt.Errorf("mark resin shipping fee paid: %w", err)
	}
	return &fee, nil
}
