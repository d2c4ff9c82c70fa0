package binance

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/adshao/go-binance/v2/common"
	"github.com/stretchr/testify/assert"

	"tvbridge/internal/gateway/exchange"
)

func TestClassifyAPICodes(t *testing.T) {
	cases := []struct {
		name      string
		code      int64
		transient bool
	}{
		{"internal error", -1001, true},
		{"rate limited", -1003, true},
		{"backend timeout", -1007, true},
		{"server busy", -1008, true},
		{"timestamp drift", -1021, true},
		{"bad signature", -1022, false},
		{"filter failure", -1013, false},
		{"bad api key", -2014, false},
		{"margin insufficient", -2019, false},
		{"precision over maximum", -1111, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classify("PlaceMarketOrder", &common.APIError{Code: tc.code, Message: tc.name})
			assert.Error(t, err)
			assert.Equal(t, tc.transient, exchange.IsTransient(err))
		})
	}
}

func TestClassifyTransportErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{"deadline", context.DeadlineExceeded},
		{"canceled", context.Canceled},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "fapi.binance.com"}},
		{"unrecognized", errors.New("connection reset by peer")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classify("GetBalance", tc.err)
			assert.True(t, exchange.IsTransient(err), "transport failures retry")
		})
	}
}

func TestClassifyNil(t *testing.T) {
	assert.NoError(t, classify("GetPrice", nil))
}

func TestClassifyPreservesChain(t *testing.T) {
	apiErr := &common.APIError{Code: -2022, Message: "ReduceOnly Order is rejected."}
	err := classify("PlaceMarketOrder", fmt.Errorf("close order: %w", apiErr))

	// The venue code stays reachable through the classification wrapper.
	assert.Equal(t, int64(-2022), apiCode(err))
	var got *common.APIError
	assert.True(t, errors.As(err, &got))
	assert.Equal(t, apiErr.Code, got.Code)
}

func TestAPICode(t *testing.T) {
	assert.Equal(t, int64(-4046), apiCode(&common.APIError{Code: -4046}))
	assert.Equal(t, int64(0), apiCode(errors.New("not a venue rejection")))
	assert.Equal(t, int64(0), apiCode(nil))
}
