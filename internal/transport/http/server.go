// Package http exposes the scheduling API as JSON over HTTP.
package http

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"slotengine/internal/transport/api"
)

type Server struct {
	api *api.Handler
	log *slog.Logger
}

func NewServer(h *api.Handler, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{api: h, log: log.With(slog.String("component", "http.scheduling"))}
}

// Router builds the gin engine with all routes mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), Logger(s.log))
	r.GET("/healthz", func(c *gin.Context) { ok(c, gin.H{"status": "ok"}) })
	s.RegisterRoutes(r)
	return r
}

func (s *Server) RegisterRoutes(r gin.IRouter) {
	v1 := r.Group("/v1")
	{
		v1.POST("/slots/generate", s.generateSlots)
		v1.POST("/slots/:id/toggle", s.toggleSlot)
		v1.POST("/providers/:provider/listings/:listing/slots/enable", s.enableAll)
		v1.POST("/providers/:provider/listings/:listing/slots/disable", s.disableAll)
		v1.PUT("/providers/:provider/availability", s.replaceAvailability)
		v1.GET("/providers/:provider/changes", s.changes)
		v1.GET("/runs", s.findRun)
		v1.POST("/holds", s.holdSlots)

		v1.POST("/bookings", s.createBooking)
		v1.POST("/appointments/:id/status", s.transition)
		v1.DELETE("/appointments/:id/recurrence", s.clearRecurrence)

		v1.POST("/instances/generate", s.generateInstances)
		v1.POST("/instances/extend", s.extendInstances)
		v1.GET("/audit", s.checkConsistency)
		v1.POST("/audit/repair", s.repairOrphans)
	}
}

func bind[Req any](c *gin.Context) (Req, bool) {
	var req Req
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed request body")
		return req, false
	}
	return req, true
}

func (s *Server) generateSlots(c *gin.Context) {
	req, valid := bind[api.GenerateSlotsRequest](c)
	if !valid {
		return
	}
	res, err := s.api.GenerateSlots(c.Request.Context(), req)
	if err != nil {
		fail(c, s.log, err)
		return
	}
	ok(c, res)
}

func (s *Server) toggleSlot(c *gin.Context) {
	res, err := s.api.ToggleSlot(c.Request.Context(), api.SlotRequest{SlotID: c.Param("id")})
	if err != nil {
		fail(c, s.log, err)
		return
	}
	ok(c, res)
}

func (s *Server) enableAll(c *gin.Context) {
	res, err := s.api.EnableAllSlots(c.Request.Context(), api.ListingRequest{ProviderID: c.Param("provider"), ListingID: c.Param("listing")})
	if err != nil {
		fail(c, s.log, err)
		return
	}
	ok(c, res)
}

func (s *Server) disableAll(c *gin.Context) {
	res, err := s.api.DisableAllSlots(c.Request.Context(), api.ListingRequest{ProviderID: c.Param("provider"), ListingID: c.Param("listing")})
	if err != nil {
		fail(c, s.log, err)
		return
	}
	ok(c, res)
}

func (s *Server) replaceAvailability(c *gin.Context) {
	req, valid := bind[api.AvailabilityRequest](c)
	if !valid {
		return
	}
	req.ProviderID = c.Param("provider")
	res, err := s.api.ReplaceAvailability(c.Request.Context(), req)
	if err != nil {
		fail(c, s.log, err)
		return
	}
	ok(c, res)
}

func (s *Server) changes(c *gin.Context) {
	var since uint64
	if raw := c.Query("since"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			badRequest(c, "since must be a sequence number")
			return
		}
		since = v
	}
	res, err := s.api.Changes(c.Request.Context(), api.ChangesRequest{ProviderID: c.Param("provider"), Since: since})
	if err != nil {
		fail(c, s.log, err)
		return
	}
	ok(c, res)
}

func (s *Server) findRun(c *gin.Context) {
	minutes, err := strconv.Atoi(c.Query("duration_minutes"))
	if err != nil {
		badRequest(c, "duration_minutes must be an integer")
		return
	}
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		badRequest(c, "from must be an RFC 3339 timestamp")
		return
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		badRequest(c, "to must be an RFC 3339 timestamp")
		return
	}
	recommended, _ := strconv.ParseBool(c.Query("recommended"))
	res, err := s.api.FindRun(c.Request.Context(), api.FindRunRequest{
		ProviderID:      c.Query("provider_id"),
		ListingID:       c.Query("listing_id"),
		DurationMinutes: minutes,
		From:            from,
		To:              to,
		BasePrice:       c.Query("base_price"),
		Recommended:     recommended,
	})
	if err != nil {
		fail(c, s.log, err)
		return
	}
	ok(c, res)
}

func (s *Server) holdSlots(c *gin.Context) {
	req, valid := bind[api.HoldRequest](c)
	if !valid {
		return
	}
	res, err := s.api.HoldSlots(c.Request.Context(), req)
	if err != nil {
		fail(c, s.log, err)
		return
	}
	created(c, res)
}

func (s *Server) createBooking(c *gin.Context) {
	req, valid := bind[api.BookingRequest](c)
	if !valid {
		return
	}
	res, err := s.api.CreateRecurringBooking(c.Request.Context(), req)
	if err != nil {
		fail(c, s.log, err)
		return
	}
	created(c, res)
}

func (s *Server) transition(c *gin.Context) {
	req, valid := bind[api.TransitionRequest](c)
	if !valid {
		return
	}
	req.AppointmentID = c.Param("id")
	res, err := s.api.TransitionAppointment(c.Request.Context(), req)
	if err != nil {
		fail(c, s.log, err)
		return
	}
	ok(c, res)
}

func (s *Server) clearRecurrence(c *gin.Context) {
	res, err := s.api.ClearRecurrence(c.Request.Context(), api.AppointmentRequest{AppointmentID: c.Param("id")})
	if err != nil {
		fail(c, s.log, err)
		return
	}
	ok(c, res)
}

func (s *Server) generateInstances(c *gin.Context) {
	req, valid := bind[api.GenerateInstancesRequest](c)
	if !valid {
		return
	}
	res, err := s.api.GenerateInstances(c.Request.Context(), req)
	if err != nil {
		fail(c, s.log, err)
		return
	}
	ok(c, res)
}

func (s *Server) extendInstances(c *gin.Context) {
	res, err := s.api.ExtendInstances(c.Request.Context())
	if err != nil {
		fail(c, s.log, err)
		return
	}
	ok(c, res)
}

func (s *Server) checkConsistency(c *gin.Context) {
	res, err := s.api.CheckConsistency(c.Request.Context())
	if err != nil {
		fail(c, s.log, err)
		return
	}
	ok(c, res)
}

func (s *Server) repairOrphans(c *gin.Context) {
	res, err := s.api.RepairOrphans(c.Request.Context())
	if err != nil {
		fail(c, s.log, err)
		return
	}
	ok(c, res)
}
