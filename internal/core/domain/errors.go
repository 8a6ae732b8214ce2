package domain

import "errors"

var (
	ErrNoDistribution    = errors.New("no distribution point for source")
	ErrGraphNotReady     = errors.New("media graph not ready")
	ErrSessionClosed     = errors.New("session closed")
	ErrOfferInFlight     = errors.New("offer creation already in flight")
	ErrUnexpectedAnswer  = errors.New("answer received outside negotiation")
	ErrNegotiationFailed = errors.New("negotiation failed")
)
