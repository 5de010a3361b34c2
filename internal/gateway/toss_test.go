package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTossClientConfirm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/confirm", r.URL.Path)
		assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("test_sk:")), r.Header.Get("Authorization"))

		var req ConfirmRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, ConfirmRequest{PaymentKey: "pk-1", OrderID: "O-1", Amount: 12345}, req)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"paymentKey":"pk-1","orderId":"O-1","status":"DONE","totalAmount":12345}`))
	}))
	defer srv.Close()

	client := NewTossClient(srv.URL, "test_sk", time.Second)
	resp, err := client.Confirm(context.Background(), ConfirmRequest{PaymentKey: "pk-1", OrderID: "O-1", Amount: 12345})
	require.NoError(t, err)
	assert.True(t, resp.Succeeded())
	assert.Equal(t, int64(12345), resp.Amount)
}

func TestTossClientCancelPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/pk-9/cancel", r.URL.Path)
		var req CancelRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(500), req.Amount)
		assert.Equal(t, "change of mind", req.Reason)
		_, _ = w.Write([]byte(`{"paymentKey":"pk-9","orderId":"O-9","status":"PARTIAL_CANCELED","totalAmount":1000}`))
	}))
	defer srv.Close()

	resp, err := NewTossClient(srv.URL, "sk", time.Second).Cancel(context.Background(), "pk-9", CancelRequest{Amount: 500, Reason: "change of mind"})
	require.NoError(t, err)
	assert.Equal(t, "PARTIAL_CANCELED", resp.Status)
}

func TestTossClientErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{name: "client error", status: http.StatusBadRequest, want: ErrGatewayRejected},
		{name: "server error", status: http.StatusBadGateway, want: ErrGatewayUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"code":"REJECT_CARD_PAYMENT","message":"declined"}`))
			}))
			defer srv.Close()

			_, err := NewTossClient(srv.URL, "sk", time.Second).Confirm(context.Background(), ConfirmRequest{OrderID: "O"})
			require.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestTossClientTimeoutIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := NewTossClient(srv.URL, "sk", 50*time.Millisecond).Confirm(context.Background(), ConfirmRequest{OrderID: "O"})
	require.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestResponseClassification(t *testing.T) {
	var nilResp *Response
	assert.False(t, nilResp.Succeeded())
	assert.True(t, (&Response{Status: StatusSuccess}).Succeeded())
	assert.True(t, (&Response{Status: StatusExpired}).IsTerminalFailure())
	assert.False(t, (&Response{Status: "IN_PROGRESS"}).IsTerminalFailure())
}
