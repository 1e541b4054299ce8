package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"slotengine/internal/service/scheduling"
	"slotengine/internal/transport/api"
)

const serviceName = "slotengine.v1.SchedulingService"

// SchedulingServiceServer is the handler contract of slotengine.v1.SchedulingService.
// Messages are google.protobuf.Struct documents carrying the JSON shapes of
// package api.
type SchedulingServiceServer interface {
	GenerateSlots(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ToggleSlot(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EnableAllSlots(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DisableAllSlots(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateRecurringBooking(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GenerateInstances(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExtendInstances(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CheckConsistency(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RepairOrphans(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TransitionAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ClearRecurrence(context.Context, *structpb.Struct) (*structpb.Struct, error)
	HoldSlots(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReplaceAvailability(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FindRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Changes(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type rpcMethod func(SchedulingServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, m rpcMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(SchedulingServiceServer)
			if interceptor == nil {
				return m(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return m(s, ctx, req.(*structpb.Struct))
			})
		},
	}
}

var schedulingServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*SchedulingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GenerateSlots", SchedulingServiceServer.GenerateSlots),
		unary("ToggleSlot", SchedulingServiceServer.ToggleSlot),
		unary("EnableAllSlots", SchedulingServiceServer.EnableAllSlots),
		unary("DisableAllSlots", SchedulingServiceServer.DisableAllSlots),
		unary("CreateRecurringBooking", SchedulingServiceServer.CreateRecurringBooking),
		unary("GenerateInstances", SchedulingServiceServer.GenerateInstances),
		unary("ExtendInstances", SchedulingServiceServer.ExtendInstances),
		unary("CheckConsistency", SchedulingServiceServer.CheckConsistency),
		unary("RepairOrphans", SchedulingServiceServer.RepairOrphans),
		unary("TransitionAppointment", SchedulingServiceServer.TransitionAppointment),
		unary("ClearRecurrence", SchedulingServiceServer.ClearRecurrence),
		unary("HoldSlots", SchedulingServiceServer.HoldSlots),
		unary("ReplaceAvailability", SchedulingServiceServer.ReplaceAvailability),
		unary("FindRun", SchedulingServiceServer.FindRun),
		unary("Changes", SchedulingServiceServer.Changes),
	},
	Metadata: "slotengine/v1/scheduling.proto",
}

// RegisterSchedulingServiceServer registers srv on s.
func RegisterSchedulingServiceServer(s grpc.ServiceRegistrar, srv SchedulingServiceServer) {
	s.RegisterService(&schedulingServiceDesc, srv)
}

type SchedulingServer struct {
	api *api.Handler
	log *slog.Logger
}

var _ SchedulingServiceServer = (*SchedulingServer)(nil)

func NewSchedulingServer(h *api.Handler, log *slog.Logger) *SchedulingServer {
	if log == nil {
		log = slog.Default()
	}
	return &SchedulingServer{
		api: h,
		log: log.With(slog.String("component", "grpc.scheduling")),
	}
}

func (s *SchedulingServer) GenerateSlots(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "GenerateSlots"))
	return serve(ctx, log, in, func(ctx context.Context, req api.GenerateSlotsRequest) (api.GenerateSlotsResponse, error) {
		res, err := s.api.GenerateSlots(ctx, req)
		if err == nil {
			log.Info(
				"slots generated",
				slog.String("provider_id", req.ProviderID),
				slog.String("listing_id", req.ListingID),
				slog.Int("inserted", res.Inserted),
				slog.Int("total", res.Stats.Total),
			)
		}
		return res, err
	})
}

func (s *SchedulingServer) ToggleSlot(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, s.log.With(slog.String("rpc", "ToggleSlot")), in, s.api.ToggleSlot)
}

func (s *SchedulingServer) EnableAllSlots(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, s.log.With(slog.String("rpc", "EnableAllSlots")), in, s.api.EnableAllSlots)
}

func (s *SchedulingServer) DisableAllSlots(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, s.log.With(slog.String("rpc", "DisableAllSlots")), in, s.api.DisableAllSlots)
}

func (s *SchedulingServer) CreateRecurringBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "CreateRecurringBooking"))
	return serve(ctx, log, in, func(ctx context.Context, req api.BookingRequest) (api.BookingResponse, error) {
		res, err := s.api.CreateRecurringBooking(ctx, req)
		if err == nil {
			attrs := []any{
				slog.String("provider_id", req.ProviderID),
				slog.String("listing_id", req.ListingID),
				slog.String("client_id", req.ClientID),
				slog.Int("count", res.Count),
			}
			if res.GroupID != nil {
				attrs = append(attrs, slog.String("group_id", res.GroupID.String()))
			}
			log.Info("booking created", attrs...)
		}
		return res, err
	})
}

func (s *SchedulingServer) GenerateInstances(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, s.log.With(slog.String("rpc", "GenerateInstances")), in, s.api.GenerateInstances)
}

func (s *SchedulingServer) ExtendInstances(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, s.log.With(slog.String("rpc", "ExtendInstances")), in, func(ctx context.Context, _ struct{}) (api.CountResponse, error) {
		return s.api.ExtendInstances(ctx)
	})
}

func (s *SchedulingServer) CheckConsistency(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, s.log.With(slog.String("rpc", "CheckConsistency")), in, func(ctx context.Context, _ struct{}) (scheduling.AuditReport, error) {
		return s.api.CheckConsistency(ctx)
	})
}

func (s *SchedulingServer) RepairOrphans(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, s.log.With(slog.String("rpc", "RepairOrphans")), in, func(ctx context.Context, _ struct{}) (scheduling.RepairReport, error) {
		return s.api.RepairOrphans(ctx)
	})
}

func (s *SchedulingServer) TransitionAppointment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "TransitionAppointment"))
	return serve(ctx, log, in, func(ctx context.Context, req api.TransitionRequest) (api.Appointment, error) {
		appt, err := s.api.TransitionAppointment(ctx, req)
		if err == nil {
			log.Info("appointment transitioned", slog.String("appointment_id", appt.ID), slog.String("status", appt.Status))
		}
		return appt, err
	})
}

func (s *SchedulingServer) ClearRecurrence(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, s.log.With(slog.String("rpc", "ClearRecurrence")), in, s.api.ClearRecurrence)
}

func (s *SchedulingServer) HoldSlots(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, s.log.With(slog.String("rpc", "HoldSlots")), in, s.api.HoldSlots)
}

func (s *SchedulingServer) ReplaceAvailability(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, s.log.With(slog.String("rpc", "ReplaceAvailability")), in, s.api.ReplaceAvailability)
}

func (s *SchedulingServer) FindRun(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, s.log.With(slog.String("rpc", "FindRun")), in, s.api.FindRun)
}

func (s *SchedulingServer) Changes(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, s.log.With(slog.String("rpc", "Changes")), in, s.api.Changes)
}

func serve[Req, Resp any](ctx context.Context, log *slog.Logger, in *structpb.Struct, fn func(context.Context, Req) (Resp, error)) (*structpb.Struct, error) {
	var req Req
	if err := decode(in, &req); err != nil {
		log.Warn("invalid request", slog.String("reason", "decode"), slog.Any("err", err))
		return nil, status.Error(codes.InvalidArgument, "malformed request")
	}
	resp, err := fn(ctx, req)
	if err != nil {
		return nil, toStatus(log, err)
	}
	out, err := encode(resp)
	if err != nil {
		log.Error("encode response failed", slog.Any("err", err))
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

func toStatus(log *slog.Logger, err error) error {
	switch api.Classify(err) {
	case api.ClassInvalid:
		log.Warn("invalid request", slog.Any("err", err))
		return status.Error(codes.InvalidArgument, err.Error())
	case api.ClassUnavailable:
		var ue *scheduling.SlotUnavailableError
		errors.As(err, &ue)
		log.Info(
			"slot unavailable",
			slog.String("provider_id", ue.ProviderID),
			slog.String("listing_id", ue.ListingID),
			slog.Time("start_time", ue.Start),
			slog.String("reason", ue.Reason),
		)
		return status.Error(codes.FailedPrecondition, ue.Error())
	case api.ClassNotFound:
		log.Info("not found", slog.Any("err", err))
		return status.Error(codes.NotFound, "not found")
	default:
		log.Error("request failed", slog.Any("err", err))
		return status.Error(codes.Internal, "internal error")
	}
}

func decode(in *structpb.Struct, dst any) error {
	if in == nil {
		return nil
	}
	b, err := protojson.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

func encode(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, err
	}
	return out, nil
}
