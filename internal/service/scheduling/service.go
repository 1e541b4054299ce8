// Package scheduling turns availability into slots, claims slot runs, and
// keeps recurring series materialized.
package scheduling

import (
	"context"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"slotengine/internal/availability"
	"slotengine/internal/events"
	"slotengine/internal/hold"
	"slotengine/internal/store"
)

type Config struct {
	// Location interprets availability windows and slot patterns.
	Location    *time.Location
	HorizonDays int
	WeeksAhead  int
	// LowWater is the number of future instances below which a rule is topped up.
	LowWater int
	HoldTTL  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = 60
	}
	if c.WeeksAhead <= 0 {
		c.WeeksAhead = 8
	}
	if c.LowWater <= 0 {
		c.LowWater = 5
	}
	if c.HoldTTL <= 0 {
		c.HoldTTL = hold.DefaultTTL
	}
	return c
}

type Service struct {
	store    store.Store
	windows  availability.Source
	holds    hold.Store
	notifier events.Notifier
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
	cfg      Config
}

type Option func(*Service)

func WithAvailability(src availability.Source) Option {
	return func(s *Service) { s.windows = src }
}

func WithHolds(h hold.Store) Option {
	return func(s *Service) { s.holds = h }
}

func WithNotifier(n events.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(st store.Store, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:    st,
		notifier: events.Discard,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:   otel.Tracer("slotengine/scheduling"),
		now:      time.Now,
		cfg:      cfg.withDefaults(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.windows == nil {
		s.windows = availability.NewStoreSource(st)
	}
	if s.holds == nil {
		s.holds = hold.NewMemory(s.now)
	}
	s.logger = s.logger.With("component", "scheduling")
	return s
}

func (s *Service) Location() *time.Location {
	return s.cfg.Location
}

func (s *Service) notify(ctx context.Context, kind events.Kind, providerID, listingID, entityID string) {
	s.notifier.Notify(ctx, events.Change{
		Kind:       kind,
		ProviderID: providerID,
		ListingID:  listingID,
		EntityID:   entityID,
		At:         s.now().UTC(),
	})
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "scheduling."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
