package service

import (
	"time"

	"github.com/iliyamo/event-ticketing/internal/clock"
)

type options struct {
	clock            clock.Clock
	publisher        EventPublisher
	gatewayTimeout   time.Duration
	currency         string
	admissionWindow  time.Duration
	maxRSVPQuantity  int
	verifier         CredentialVerifier
	issueConcurrency int
	newCode          func() (string, error)
}

func defaultOptions() options {
	return options{
		clock:            clock.Real{},
		gatewayTimeout:   10 * time.Second,
		currency:         "usd",
		admissionWindow:  2 * time.Hour,
		maxRSVPQuantity:  10,
		issueConcurrency: 4,
		newCode:          randomCode,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Option configures any of the services; each service ignores settings it
// does not use.
type Option func(*options)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clock.Clock) Option { return func(o *options) { o.clock = c } }

// WithPublisher enables domain event publishing.
func WithPublisher(p EventPublisher) Option { return func(o *options) { o.publisher = p } }

// WithGatewayTimeout bounds each payment gateway call.
func WithGatewayTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.gatewayTimeout = d
		}
	}
}

// WithCurrency sets the currency used when an event carries none.
func WithCurrency(c string) Option { return func(o *options) { o.currency = c } }

// WithAdmissionWindow sets how long before an event's start tickets are accepted.
func WithAdmissionWindow(d time.Duration) Option { return func(o *options) { o.admissionWindow = d } }

// WithMaxRSVPQuantity caps the party size of a single RSVP.
func WithMaxRSVPQuantity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRSVPQuantity = n
		}
	}
}

// WithCredentialVerifier lets the validator accept signed QR tokens in
// addition to raw codes.
func WithCredentialVerifier(v CredentialVerifier) Option { return func(o *options) { o.verifier = v } }

// WithIssueConcurrency bounds parallel credential rendering per reservation.
func WithIssueConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.issueConcurrency = n
		}
	}
}

// WithCodeGenerator replaces the ticket code source.
func WithCodeGenerator(fn func() (string, error)) Option { return func(o *options) { o.newCode = fn } }
