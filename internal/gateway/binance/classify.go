package binance

import (
	"context"
	"errors"
	"net"

	"github.com/adshao/go-binance/v2/common"

	"tvbridge/internal/gateway/exchange"
)

// transientAPICodes are venue responses worth retrying: timeouts, rate
// limits, internal errors and clock drift. Everything else the API rejects
// deterministically, so retrying would only repeat the refusal.
var transientAPICodes = map[int64]bool{
	-1001: true, // DISCONNECTED / internal error
	-1003: true, // TOO_MANY_REQUESTS
	-1007: true, // TIMEOUT waiting for backend
	-1008: true, // SERVER_BUSY
	-1021: true, // INVALID_TIMESTAMP (recvWindow drift)
}

// classify wraps an SDK error as transient or permanent. Transport-level
// failures default to transient; explicit API rejections default to
// permanent unless their code is in the retry set.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		if transientAPICodes[apiErr.Code] {
			return exchange.Transient(op, err)
		}
		return exchange.Permanent(op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return exchange.Transient(op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return exchange.Transient(op, err)
	}
	return exchange.Transient(op, err)
}

// apiCode extracts the venue error code, 0 when the error is not an API
// rejection.
func apiCode(err error) int64 {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
