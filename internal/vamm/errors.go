package vamm

import "errors"

var (
	// ErrUnauthorized rejects callers that are not the configured owner or
	// margin engine for the attempted operation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMarketClosed rejects trading operations while open == false.
	ErrMarketClosed = errors.New("market is closed")

	// ErrSettleTooEarly rejects funding settlement before next_funding_time.
	ErrSettleTooEarly = errors.New("settle funding called too early")

	// ErrFluctuationLimitExceeded rejects swaps that move price past the
	// configured intra-block bound without the override flag.
	ErrFluctuationLimitExceeded = errors.New("fluctuation limit exceeded")
)
