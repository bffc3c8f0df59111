package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mymunastore/aretenvi/internal/ids"
	"github.com/mymunastore/aretenvi/internal/types"
)

const defaultMaxAttempts = 8

var (
	ErrNotFound = errors.New("registration not found")
	// ErrReferenceExhausted means every generated reference collided with an
	// existing one.
	ErrReferenceExhausted = errors.New("could not allocate a unique reference number")
	ErrIncomplete         = errors.New("registration is missing required fields")
)

// Submission is what the intake flow hands over once the client confirms.
type Submission struct {
	ConversationID string
	CorrelationKey string
	Fields         types.Fields
}

// Sink persists finalized registrations. Finalize is idempotent per
// ConversationID: a repeated call returns the registration created first.
type Sink interface {
	Finalize(ctx context.Context, sub Submission) (types.Registration, error)
	Lookup(ctx context.Context, ref string) (types.Registration, error)
	Close() error
}

type ReferenceGenerator func(time.Time) (string, error)

type Option func(*options)

type options struct {
	prefix      string
	source      string
	location    *time.Location
	maxAttempts int
	now         func() time.Time
	generate    ReferenceGenerator
}

func WithReferencePrefix(prefix string) Option {
	return func(o *options) {
		if strings.TrimSpace(prefix) != "" {
			o.prefix = prefix
		}
	}
}

func WithSource(source string) Option {
	return func(o *options) {
		if strings.TrimSpace(source) != "" {
			o.source = source
		}
	}
}

// WithLocation sets the zone used for the date part of reference numbers.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.location = loc
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithReferenceGenerator(fn ReferenceGenerator) Option {
	return func(o *options) {
		if fn != nil {
			o.generate = fn
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		prefix:      ids.DefaultReferencePrefix,
		source:      types.RegistrationSourceWhatsApp,
		location:    time.UTC,
		maxAttempts: defaultMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.generate == nil {
		prefix := o.prefix
		o.generate = func(t time.Time) (string, error) {
			return ids.NewReference(prefix, t)
		}
	}
	return o
}

func (o options) build(sub Submission, ref string, now time.Time) types.Registration {
	return types.Registration{
		ID:              ids.New(),
		ReferenceNumber: ref,
		ConversationID:  sub.ConversationID,
		CorrelationKey:  sub.CorrelationKey,
		Fields:          sub.Fields.Clone(),
		Source:          o.source,
		Status:          types.RegistrationStatusPending,
		CreatedAt:       now.UTC(),
	}
}

// allocate runs the generate-and-verify loop. taken reports whether a
// candidate is already in use.
func (o options) allocate(now time.Time, taken func(ref string) (bool, error)) (string, error) {
	for attempt := 0; attempt < o.maxAttempts; attempt++ {
		ref, err := o.generate(now.In(o.location))
		if err != nil {
			return "", err
		}
		used, err := taken(ref)
		if err != nil {
			return "", err
		}
		if !used {
			return ref, nil
		}
	}
	return "", ErrReferenceExhausted
}

func validateSubmission(sub Submission) error {
	if strings.TrimSpace(sub.ConversationID) == "" {
		return fmt.Errorf("conversation id is required")
	}
	if strings.TrimSpace(sub.CorrelationKey) == "" {
		return fmt.Errorf("correlation key is required")
	}
	f := sub.Fields
	missing := make([]string, 0)
	for _, field := range []struct {
		name  string
		value string
	}{
		{"full_name", f.FullName},
		{"email", f.Email},
		{"phone", f.Phone},
		{"service_type", f.ServiceType},
		{"property_type", f.PropertyType},
		{"location", f.Location},
		{"preferred_contact_time", f.PreferredContactTime},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrIncomplete, strings.Join(missing, ", "))
	}
	return nil
}
