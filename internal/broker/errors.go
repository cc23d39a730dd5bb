package broker

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotConnected is returned by account reads while the session is down
	ErrNotConnected = errors.New("not connected to broker")
	// ErrBridgeClosed is returned once the worker has stopped
	ErrBridgeClosed = errors.New("execution bridge closed")
	// ErrNoPosition is returned when closing a symbol that is not held
	ErrNoPosition = errors.New("no open position")
	// ErrSubscriptionRequired can be wrapped by sessions that detect a missing
	// market data entitlement themselves
	ErrSubscriptionRequired = errors.New("market data subscription required")
)

// BrokerError is a coded error reported by the broker
type BrokerError struct {
	Code    int
	Message string
}

func (e *BrokerError) Error() string {
	return fmt.Sprintf("broker error %d: %s", e.Code, e.Message)
}

// Broker codes meaning the account lacks the market data subscription for a symbol
var subscriptionCodes = map[int]struct{}{
	354:   {},
	10089: {},
	10090: {},
	10167: {},
	10168: {},
}

var subscriptionSignatures = []string{
	"not subscribed",
	"market data permission",
	"market data subscription",
	"subscription required",
	"delayed market data",
}

// IsSubscriptionError reports whether err means the symbol cannot be priced
// by the broker because of a missing entitlement
func IsSubscriptionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSubscriptionRequired) {
		return true
	}

	var be *BrokerError
	if errors.As(err, &be) {
		if _, ok := subscriptionCodes[be.Code]; ok {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, sig := range subscriptionSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
