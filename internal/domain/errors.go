package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrRateLimited       = errors.New("rate limited")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrUnsupportedMarket = errors.New("unsupported market")
)

// IsFatalFetch reports whether a position-fetch error must stop the watcher
// rather than be retried at the next interval. Revoked credentials and
// unsupported markets never heal on their own; everything else on the fetch
// path (rate limits, network blips) is treated as transient.
func IsFatalFetch(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrUnsupportedMarket)
}
