package broker

import (
	"context"
	"strings"
)

// Price resolves a quote for symbol, preferring the broker session.
//
// A symbol that recently failed with a subscription error skips the session
// until its cooldown expires. Any other session failure falls through to the
// secondary source without marking the symbol. When neither source has a
// price the second return value is false; this is not an error.
func (b *Bridge) Price(ctx context.Context, symbol string) (Quote, bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return Quote{}, false
	}

	log := b.log.With().Str("symbol", symbol).Logger()

	if b.health.Unhealthy(symbol, b.cfg.Now()) {
		log.Debug().Msg("Symbol in subscription cooldown, skipping broker price")
	} else if b.IsConnected() {
		var price float64
		err := b.connectedCall(ctx, func(ctx context.Context) error {
			var err error
			price, err = b.session.Price(ctx, symbol)
			return err
		})
		switch {
		case err == nil && price > 0:
			return Quote{Symbol: symbol, Price: price, Source: SourceBroker}, true
		case IsSubscriptionError(err):
			b.health.MarkFailure(symbol, b.cfg.Now())
			log.Warn().Err(err).Msg("No market data subscription, using fallback source")
		case err != nil:
			log.Debug().Err(err).Msg("Broker price failed, trying fallback source")
		default:
			log.Debug().Float64("price", price).Msg("Broker returned no usable price")
		}
	}

	if b.fallback == nil {
		return Quote{}, false
	}

	price, err := b.fallback.Price(ctx, symbol)
	if err != nil {
		log.Warn().Err(err).Msg("Fallback price source failed")
		return Quote{}, false
	}
	if price <= 0 {
		return Quote{}, false
	}
	return Quote{Symbol: symbol, Price: price, Source: SourceFallback}, true
}
