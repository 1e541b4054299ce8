package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"slotengine/internal/domain"
	"slotengine/internal/events"
	"slotengine/internal/service/scheduling"
	"slotengine/internal/store"
	"slotengine/internal/transport/api"
	"slotengine/internal/transport/api/apitest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubFeed []events.Change

func (f stubFeed) Since(providerID string, cursor uint64) ([]events.Change, uint64, bool) {
	var out []events.Change
	next := cursor
	for _, c := range f {
		if c.ProviderID == providerID && c.Seq > cursor {
			out = append(out, c)
			next = c.Seq
		}
	}
	return out, next, false
}

func newRouter(fake *apitest.Scheduler, feed api.ChangeFeed) *gin.Engine {
	return NewServer(api.NewHandler(fake, feed), slog.Default()).Router()
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return w, resp
}

func TestCreateBooking_Created(t *testing.T) {
	start := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	group := uuid.New()
	r := newRouter(&apitest.Scheduler{
		CreateRecurringBookingFn: func(ctx context.Context, req scheduling.BookingRequest) (scheduling.BookingResult, error) {
			if req.Recurrence != domain.RecurrenceWeekly || req.Duration != time.Hour || req.WeeksAhead != 4 {
				t.Fatalf("request = %+v", req)
			}
			appt := domain.Appointment{ID: uuid.New(), ProviderID: req.ProviderID, StartTime: req.Start, EndTime: req.Start.Add(req.Duration)}
			return scheduling.BookingResult{Success: true, Appointments: []domain.Appointment{appt}, GroupID: &group, Count: 1}, nil
		},
	}, nil)

	w, resp := doJSON(t, r, http.MethodPost, "/v1/bookings", map[string]any{
		"provider_id":      "p1",
		"listing_id":       "l1",
		"client_id":        "c1",
		"start_time":       start,
		"duration_minutes": 60,
		"recurrence":       "weekly",
		"weeks_ahead":      4,
		"created_by":       "u1",
	})
	if w.Code != http.StatusCreated || resp.Code != CodeOK {
		t.Fatalf("status=%d resp=%+v", w.Code, resp)
	}
	data := resp.Data.(map[string]any)
	if data["group_id"] != group.String() || data["count"].(float64) != 1 {
		t.Fatalf("data = %v", data)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID header")
	}
}

func TestCreateBooking_SlotUnavailableIsConflict(t *testing.T) {
	start := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	r := newRouter(&apitest.Scheduler{
		CreateRecurringBookingFn: func(ctx context.Context, req scheduling.BookingRequest) (scheduling.BookingResult, error) {
			return scheduling.BookingResult{}, &scheduling.SlotUnavailableError{ProviderID: "p1", ListingID: "l1", Start: start, Reason: "slot already reserved"}
		},
	}, nil)

	w, resp := doJSON(t, r, http.MethodPost, "/v1/bookings", map[string]any{"start_time": start, "duration_minutes": 30})
	if w.Code != http.StatusConflict || resp.Code != CodeUnavailable {
		t.Fatalf("status=%d resp=%+v", w.Code, resp)
	}
	if resp.Data.(map[string]any)["slot_start"] != "2026-03-03T10:00:00Z" {
		t.Fatalf("data = %v", resp.Data)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantHTTP int
		wantCode int
	}{
		{"validation", &scheduling.ValidationError{}, http.StatusBadRequest, CodeInvalid},
		{"not found", store.ErrNotFound, http.StatusNotFound, CodeNotFound},
		{"internal", errors.New("db down"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(&apitest.Scheduler{
				ToggleSlotFn: func(ctx context.Context, id uuid.UUID) (domain.Slot, error) {
					return domain.Slot{}, tt.err
				},
			}, nil)
			w, resp := doJSON(t, r, http.MethodPost, "/v1/slots/"+uuid.NewString()+"/toggle", nil)
			if w.Code != tt.wantHTTP || resp.Code != tt.wantCode {
				t.Fatalf("status=%d resp=%+v", w.Code, resp)
			}
		})
	}
}

func TestToggleSlot_RejectsBadID(t *testing.T) {
	r := newRouter(&apitest.Scheduler{}, nil)
	w, resp := doJSON(t, r, http.MethodPost, "/v1/slots/not-a-uuid/toggle", nil)
	if w.Code != http.StatusBadRequest || resp.Code != CodeInvalid {
		t.Fatalf("status=%d resp=%+v", w.Code, resp)
	}
}

func TestMalformedBody(t *testing.T) {
	r := newRouter(&apitest.Scheduler{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/holds", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestTransition_UsesPathID(t *testing.T) {
	id := uuid.New()
	r := newRouter(&apitest.Scheduler{
		TransitionFn: func(ctx context.Context, got uuid.UUID, to domain.AppointmentStatus) (domain.Appointment, error) {
			if got != id || to != domain.StatusConfirmed {
				t.Fatalf("Transition(%s, %s)", got, to)
			}
			return domain.Appointment{ID: id, Status: to}, nil
		},
	}, nil)
	w, resp := doJSON(t, r, http.MethodPost, "/v1/appointments/"+id.String()+"/status", map[string]string{"status": "confirmed"})
	if w.Code != http.StatusOK || resp.Data.(map[string]any)["status"] != "confirmed" {
		t.Fatalf("status=%d resp=%+v", w.Code, resp)
	}
}

func TestFindRun_Query(t *testing.T) {
	from := time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)
	r := newRouter(&apitest.Scheduler{
		FindRunFn: func(ctx context.Context, q scheduling.RunQuery) ([]domain.Slot, error) {
			if q.ProviderID != "p1" || q.Duration != 30*time.Minute || !q.From.Equal(from) {
				t.Fatalf("query = %+v", q)
			}
			return []domain.Slot{{ID: uuid.New(), StartTime: from, EndTime: from.Add(30 * time.Minute), Type: domain.SlotTypeNormal}}, nil
		},
	}, nil)

	path := "/v1/runs?provider_id=p1&listing_id=l1&duration_minutes=30&from=2026-03-03T08:00:00Z&to=2026-03-04T08:00:00Z&base_price=50&recommended=true"
	w, resp := doJSON(t, r, http.MethodGet, path, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d resp=%+v", w.Code, resp)
	}
	quote := resp.Data.(map[string]any)["quote"].(map[string]any)
	if quote["total"] != "45" {
		t.Fatalf("quote = %v", quote)
	}

	w, _ = doJSON(t, r, http.MethodGet, "/v1/runs?duration_minutes=30&from=yesterday", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad from: status = %d", w.Code)
	}
}

func TestChanges_Cursor(t *testing.T) {
	r := newRouter(&apitest.Scheduler{}, stubFeed{
		{Seq: 1, ProviderID: "p1", Kind: events.KindSlots},
		{Seq: 2, ProviderID: "p1", Kind: events.KindAppointment},
	})
	w, resp := doJSON(t, r, http.MethodGet, "/v1/providers/p1/changes?since=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d resp=%+v", w.Code, resp)
	}
	data := resp.Data.(map[string]any)
	if data["next"].(float64) != 2 || len(data["changes"].([]any)) != 1 {
		t.Fatalf("data = %v", data)
	}

	w, _ = doJSON(t, r, http.MethodGet, "/v1/providers/p1/changes?since=-3", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad cursor: status = %d", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	r := newRouter(&apitest.Scheduler{}, nil)
	w, resp := doJSON(t, r, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK || resp.Message != "success" {
		t.Fatalf("status=%d resp=%+v", w.Code, resp)
	}
}
