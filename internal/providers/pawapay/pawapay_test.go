package pawapay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/seatpay/backend/internal/models"
	"github.com/seatpay/backend/internal/providers"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePawaPay struct {
	response string
	lastBody map[string]interface{}
	lastPath string
	lastAuth string
	statuses map[string]string
}

func (f *fakePawaPay) server(t *testing.T) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.lastPath = r.URL.Path
		f.lastAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodGet {
			body, ok := f.statuses[r.URL.Path]
			if !ok {
				body = `[]`
			}
			_, _ = w.Write([]byte(body))
			return
		}
		f.lastBody = map[string]interface{}{}
		_ = json.NewDecoder(r.Body).Decode(&f.lastBody)
		_, _ = w.Write([]byte(f.response))
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, f *fakePawaPay) *Client {
	server := f.server(t)
	c := NewClient(Config{
		BaseURL:  server.URL,
		APIToken: "pp-token",
		HTTP:     providers.HTTPOptions{Timeout: time.Second, RetryCount: -1},
	}, nil)
	c.now = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }
	return c
}

func TestPayin_Accepted(t *testing.T) {
	f := &fakePawaPay{response: `{"depositId":"dep-1","status":"ACCEPTED","created":"2024-03-01T10:00:01Z"}`}
	c := newTestClient(t, f)

	res, err := c.Payin(context.Background(), providers.PayinRequest{
		ReferenceID: "dep-1",
		PhoneNumber: "237699123456",
		Amount:      decimal.NewFromInt(1500),
		Currency:    "XAF",
		Reason:      "Seat on ride #42!",
	})
	require.NoError(t, err)

	assert.Equal(t, "dep-1", res.ProviderReferenceID)
	assert.Equal(t, "ACCEPTED", res.RawStatus)
	assert.Equal(t, "/deposits", f.lastPath)
	assert.Equal(t, "Bearer pp-token", f.lastAuth)
	assert.Equal(t, "dep-1", f.lastBody["depositId"])
	assert.Equal(t, "1500", f.lastBody["amount"])
	assert.Equal(t, "ORANGE_CMR", f.lastBody["correspondent"])
	assert.Equal(t, "2024-03-01T10:00:00Z", f.lastBody["customerTimestamp"])
	assert.Equal(t, "seat on ride 42", f.lastBody["statementDescription"])
}

func TestPayin_SynchronousRejection(t *testing.T) {
	f := &fakePawaPay{response: `{"depositId":"dep-1","status":"REJECTED","rejectionReason":{"rejectionCode":"INVALID_PAYER_FORMAT","rejectionMessage":"bad msisdn"}}`}
	c := newTestClient(t, f)

	_, err := c.Payin(context.Background(), providers.PayinRequest{ReferenceID: "dep-1", PhoneNumber: "237677123456", Amount: decimal.NewFromInt(1500), Currency: "XAF"})
	require.Error(t, err)
	assert.ErrorIs(t, err, providers.ErrProviderRejected)
	assert.Contains(t, err.Error(), "INVALID_PAYER_FORMAT")
	assert.Equal(t, "MTN_MOMO_CMR", f.lastBody["correspondent"])
}

func TestPayout(t *testing.T) {
	f := &fakePawaPay{response: `{"payoutId":"pay-1","status":"ENQUEUED"}`}
	c := newTestClient(t, f)

	res, err := c.Payout(context.Background(), providers.PayoutRequest{ReferenceID: "pay-1", PhoneNumber: "237677123456", Amount: decimal.NewFromInt(5000), Currency: "XAF", CustomerName: "Driver"})
	require.NoError(t, err)
	assert.Equal(t, "ENQUEUED", res.RawStatus)
	assert.Equal(t, "/payouts", f.lastPath)
	assert.Equal(t, "pay-1", f.lastBody["payoutId"])
	assert.NotNil(t, f.lastBody["recipient"])
}

func TestRefund(t *testing.T) {
	f := &fakePawaPay{response: `{"refundId":"ref-1","status":"ACCEPTED"}`}
	c := newTestClient(t, f)

	res, err := c.Refund(context.Background(), providers.RefundRequest{ReferenceID: "ref-1", OriginalReferenceID: "dep-1", Amount: decimal.NewFromInt(500), Currency: "XAF"})
	require.NoError(t, err)
	assert.False(t, res.RefundViaPayout)
	assert.Equal(t, "/refunds", f.lastPath)
	assert.Equal(t, "dep-1", f.lastBody["depositId"])
	assert.Equal(t, "ref-1", f.lastBody["refundId"])
}

func TestCheckStatus(t *testing.T) {
	f := &fakePawaPay{statuses: map[string]string{
		"/deposits/dep-1": `[{"depositId":"dep-1","status":"COMPLETED","amount":"1500","currency":"XAF"}]`,
		"/payouts/pay-1":  `[{"payoutId":"pay-1","status":"FAILED","failureReason":{"failureCode":"RECIPIENT_NOT_FOUND","failureMessage":"unknown wallet"}}]`,
	}}
	c := newTestClient(t, f)
	ctx := context.Background()

	res, err := c.CheckStatus(ctx, providers.StatusQuery{Kind: models.KindPayin, ProviderReferenceID: "dep-1"})
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, "COMPLETED", res.RawStatus)

	res, err = c.CheckStatus(ctx, providers.StatusQuery{Kind: models.KindPayout, ProviderReferenceID: "pay-1"})
	require.NoError(t, err)
	assert.Equal(t, "FAILED", res.RawStatus)
	assert.Equal(t, "RECIPIENT_NOT_FOUND: unknown wallet", res.Reason)

	res, err = c.CheckStatus(ctx, providers.StatusQuery{Kind: models.KindRefund, ProviderReferenceID: "nope"})
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Equal(t, "/refunds/nope", f.lastPath)
}

func TestParseCallback(t *testing.T) {
	c := NewClient(Config{}, nil)

	cb, err := c.ParseCallback([]byte(`{"depositId":"dep-1","status":"COMPLETED"}`))
	require.NoError(t, err)
	assert.Equal(t, "dep-1", cb.ReferenceID)
	assert.Equal(t, models.KindPayin, cb.Kind)

	cb, err = c.ParseCallback([]byte(`{"payoutId":"pay-1","status":"FAILED","failureReason":{"failureCode":"OTHER_ERROR"}}`))
	require.NoError(t, err)
	assert.Equal(t, models.KindPayout, cb.Kind)
	assert.Equal(t, "OTHER_ERROR", cb.Reason)

	cb, err = c.ParseCallback([]byte(`{"refundId":"r-1","status":"COMPLETED"}`))
	require.NoError(t, err)
	assert.Equal(t, models.KindRefund, cb.Kind)

	_, err = c.ParseCallback([]byte(`{"status":"COMPLETED"}`))
	assert.Error(t, err)
}

func TestStatementDescription(t *testing.T) {
	assert.Equal(t, "seat on ride 42", StatementDescription("Seat on ride #42!"))
	assert.Equal(t, "Seat payment", StatementDescription(""))
	assert.Equal(t, "Seat payment", StatementDescription("!!"))
	assert.LessOrEqual(t, len(StatementDescription("Refund for the cancelled booking from Douala to Yaounde")), 22)
}

func TestValidateConfig(t *testing.T) {
	assert.ErrorIs(t, NewClient(Config{}, nil).ValidateConfig(), providers.ErrNotConfigured)
	assert.NoError(t, NewClient(Config{APIToken: "x"}, nil).ValidateConfig())
}
