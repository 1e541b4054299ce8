package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"slotengine/internal/domain"
	"slotengine/internal/events"
	"slotengine/internal/service/scheduling"
)

// ErrBadRequest marks request shapes rejected before reaching the service.
var ErrBadRequest = errors.New("bad request")

type badRequest struct{ msg string }

func (e *badRequest) Error() string        { return e.msg }
func (e *badRequest) Is(target error) bool { return target == ErrBadRequest }

func invalid(msg string) error { return &badRequest{msg: msg} }

// Scheduler is the subset of the scheduling service the API exposes.
type Scheduler interface {
	Location() *time.Location
	GenerateSlots(ctx context.Context, cfg scheduling.GenerateConfig) (scheduling.GenerateResult, error)
	ToggleSlot(ctx context.Context, slotID uuid.UUID) (domain.Slot, error)
	EnableAllSlots(ctx context.Context, providerID, listingID string) (int, error)
	DisableAllSlots(ctx context.Context, providerID, listingID string) (int, error)
	CreateRecurringBooking(ctx context.Context, req scheduling.BookingRequest) (scheduling.BookingResult, error)
	GenerateInstances(ctx context.Context, weeksAhead int) (int, error)
	Extend(ctx context.Context) (int, error)
	CheckConsistency(ctx context.Context) (scheduling.AuditReport, error)
	RepairOrphans(ctx context.Context) (scheduling.RepairReport, error)
	Transition(ctx context.Context, id uuid.UUID, to domain.AppointmentStatus) (domain.Appointment, error)
	ClearRecurrence(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	HoldSlots(ctx context.Context, req scheduling.HoldRequest) (scheduling.Hold, error)
	ReplaceAvailability(ctx context.Context, providerID, listingID string, days []domain.DayTemplate) ([]domain.AvailabilityWindow, error)
	FindRun(ctx context.Context, q scheduling.RunQuery) ([]domain.Slot, error)
}

// ChangeFeed serves poll-mode change notifications.
type ChangeFeed interface {
	Since(providerID string, cursor uint64) ([]events.Change, uint64, bool)
}

// Handler binds decoded requests to the scheduler. Both transports call it so
// they agree on validation and response shapes.
type Handler struct {
	svc  Scheduler
	feed ChangeFeed
}

// NewHandler builds a handler. feed may be nil when polling is disabled.
func NewHandler(svc Scheduler, feed ChangeFeed) *Handler {
	return &Handler{svc: svc, feed: feed}
}

func (h *Handler) GenerateSlots(ctx context.Context, req GenerateSlotsRequest) (GenerateSlotsResponse, error) {
	cfg := scheduling.GenerateConfig{ProviderID: req.ProviderID, ListingID: req.ListingID, Days: req.Days}
	if req.From != "" {
		from, err := time.ParseInLocation("2006-01-02", req.From, h.svc.Location())
		if err != nil {
			return GenerateSlotsResponse{}, invalid("from must be a date (YYYY-MM-DD)")
		}
		cfg.From = from
	}
	res, err := h.svc.GenerateSlots(ctx, cfg)
	if err != nil {
		return GenerateSlotsResponse{}, err
	}
	out := GenerateSlotsResponse{
		SlotsByDate: make(map[string][]Slot, len(res.SlotsByDate)),
		Stats:       res.Stats,
		Inserted:    res.Inserted,
	}
	for day, slots := range res.SlotsByDate {
		out.SlotsByDate[day] = slotsOf(slots)
	}
	return out, nil
}

func (h *Handler) ToggleSlot(ctx context.Context, req SlotRequest) (Slot, error) {
	id, err := parseID("slot_id", req.SlotID)
	if err != nil {
		return Slot{}, err
	}
	sl, err := h.svc.ToggleSlot(ctx, id)
	if err != nil {
		return Slot{}, err
	}
	return SlotOf(sl), nil
}

func (h *Handler) EnableAllSlots(ctx context.Context, req ListingRequest) (CountResponse, error) {
	n, err := h.svc.EnableAllSlots(ctx, req.ProviderID, req.ListingID)
	return CountResponse{Count: n}, err
}

func (h *Handler) DisableAllSlots(ctx context.Context, req ListingRequest) (CountResponse, error) {
	n, err := h.svc.DisableAllSlots(ctx, req.ProviderID, req.ListingID)
	return CountResponse{Count: n}, err
}

func (h *Handler) CreateRecurringBooking(ctx context.Context, req BookingRequest) (BookingResponse, error) {
	rec := domain.Recurrence(strings.ToLower(strings.TrimSpace(req.Recurrence)))
	if rec == "" {
		rec = domain.RecurrenceNone
	}
	if !rec.Valid() {
		return BookingResponse{}, invalid("invalid recurrence")
	}
	res, err := h.svc.CreateRecurringBooking(ctx, scheduling.BookingRequest{
		ClaimRequest: scheduling.ClaimRequest{
			ProviderID:   req.ProviderID,
			ListingID:    req.ListingID,
			ClientID:     req.ClientID,
			Start:        req.StartTime,
			Duration:     time.Duration(req.DurationMinutes) * time.Minute,
			HolderID:     req.HolderID,
			Timezone:     req.Timezone,
			Location:     req.Location,
			ContactName:  req.ContactName,
			ContactEmail: req.ContactEmail,
			ContactPhone: req.ContactPhone,
			Notes:        req.Notes,
			CreatedBy:    req.CreatedBy,
		},
		Recurrence: rec,
		WeeksAhead: req.WeeksAhead,
	})
	if err != nil {
		return BookingResponse{}, err
	}
	return BookingResponse{
		Success:      res.Success,
		Appointments: appointmentsOf(res.Appointments),
		GroupID:      res.GroupID,
		Count:        res.Count,
	}, nil
}

func (h *Handler) GenerateInstances(ctx context.Context, req GenerateInstancesRequest) (CountResponse, error) {
	n, err := h.svc.GenerateInstances(ctx, req.WeeksAhead)
	return CountResponse{Count: n}, err
}

func (h *Handler) ExtendInstances(ctx context.Context) (CountResponse, error) {
	n, err := h.svc.Extend(ctx)
	return CountResponse{Count: n}, err
}

func (h *Handler) CheckConsistency(ctx context.Context) (scheduling.AuditReport, error) {
	return h.svc.CheckConsistency(ctx)
}

func (h *Handler) RepairOrphans(ctx context.Context) (scheduling.RepairReport, error) {
	return h.svc.RepairOrphans(ctx)
}

func (h *Handler) TransitionAppointment(ctx context.Context, req TransitionRequest) (Appointment, error) {
	id, err := parseID("appointment_id", req.AppointmentID)
	if err != nil {
		return Appointment{}, err
	}
	to := domain.AppointmentStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !to.Valid() {
		return Appointment{}, invalid("invalid status")
	}
	appt, err := h.svc.Transition(ctx, id, to)
	if err != nil {
		return Appointment{}, err
	}
	return AppointmentOf(appt), nil
}

func (h *Handler) ClearRecurrence(ctx context.Context, req AppointmentRequest) (Appointment, error) {
	id, err := parseID("appointment_id", req.AppointmentID)
	if err != nil {
		return Appointment{}, err
	}
	appt, err := h.svc.ClearRecurrence(ctx, id)
	if err != nil {
		return Appointment{}, err
	}
	return AppointmentOf(appt), nil
}

func (h *Handler) HoldSlots(ctx context.Context, req HoldRequest) (scheduling.Hold, error) {
	return h.svc.HoldSlots(ctx, scheduling.HoldRequest{
		ProviderID: req.ProviderID,
		ListingID:  req.ListingID,
		Start:      req.StartTime,
		Duration:   time.Duration(req.DurationMinutes) * time.Minute,
		HolderID:   req.HolderID,
	})
}

func (h *Handler) ReplaceAvailability(ctx context.Context, req AvailabilityRequest) (AvailabilityResponse, error) {
	days := make([]domain.DayTemplate, 0, len(req.Days))
	for _, d := range req.Days {
		if d.DayOfWeek < 0 || d.DayOfWeek > 6 {
			return AvailabilityResponse{}, invalid("day_of_week must be between 0 and 6")
		}
		tpl := domain.DayTemplate{DayOfWeek: time.Weekday(d.DayOfWeek), Enabled: d.Enabled}
		for _, r := range d.Ranges {
			start, err := parseClock(r.Start)
			if err != nil {
				return AvailabilityResponse{}, err
			}
			end, err := parseClock(r.End)
			if err != nil {
				return AvailabilityResponse{}, err
			}
			tpl.Ranges = append(tpl.Ranges, domain.ClockRange{Start: start, End: end})
		}
		days = append(days, tpl)
	}
	windows, err := h.svc.ReplaceAvailability(ctx, req.ProviderID, req.ListingID, days)
	if err != nil {
		return AvailabilityResponse{}, err
	}
	out := AvailabilityResponse{Windows: make([]Window, 0, len(windows))}
	for _, w := range windows {
		out.Windows = append(out.Windows, Window{
			DayOfWeek: int(w.DayOfWeek),
			StartTime: w.StartTime.String(),
			EndTime:   w.EndTime.String(),
			ListingID: w.ListingID,
		})
	}
	return out, nil
}

func (h *Handler) FindRun(ctx context.Context, req FindRunRequest) (FindRunResponse, error) {
	quote, err := quoteFor(req.BasePrice, req.Recommended)
	if err != nil {
		return FindRunResponse{}, invalid(err.Error())
	}
	slots, err := h.svc.FindRun(ctx, scheduling.RunQuery{
		ProviderID: req.ProviderID,
		ListingID:  req.ListingID,
		Duration:   time.Duration(req.DurationMinutes) * time.Minute,
		From:       req.From,
		To:         req.To,
	})
	if err != nil {
		return FindRunResponse{}, err
	}
	return FindRunResponse{Slots: slotsOf(slots), Quote: quote}, nil
}

func (h *Handler) Changes(_ context.Context, req ChangesRequest) (ChangesResponse, error) {
	if h.feed == nil {
		return ChangesResponse{}, invalid("change feed is disabled")
	}
	if strings.TrimSpace(req.ProviderID) == "" {
		return ChangesResponse{}, invalid("provider_id is required")
	}
	changes, next, truncated := h.feed.Since(req.ProviderID, req.Since)
	if changes == nil {
		changes = []events.Change{}
	}
	return ChangesResponse{Changes: changes, Next: next, Truncated: truncated}, nil
}

func parseID(field, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, invalid("invalid " + field)
	}
	return id, nil
}

// parseClock trims s and reports a bad clock as a bad request.
func parseClock(s string) (domain.Clock, error) {
	c, err := domain.ParseClock(strings.TrimSpace(s))
	if err != nil {
		return 0, invalid(err.Error())
	}
	return c, nil
}
