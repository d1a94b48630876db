package grpcapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	apiv1 "github.com/yungbote/neurobridge-kt/internal/inference/httpapi/v1"
	"github.com/yungbote/neurobridge-kt/internal/platform/apierr"
	"github.com/yungbote/neurobridge-kt/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-kt/internal/platform/logger"
)

// Server adapts a predictor to the Struct-based gRPC service.
type Server struct {
	log       *logger.Logger
	predictor apiv1.Predictor
	health    *health.Server
}

// NewGRPCServer builds a grpc.Server with the predictor and health
// services registered. The health status starts NOT_SERVING; call
// SetServing once the models are loaded.
func NewGRPCServer(log *logger.Logger, p apiv1.Predictor) (*grpc.Server, *Server) {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{log: log.With("service", "GRPCServer"), predictor: p, health: health.NewServer()}
	gs := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(s.recoverUnary, s.logUnary),
	)
	gs.RegisterService(&ServiceDesc, s)
	healthpb.RegisterHealthServer(gs, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return gs, s
}

func (s *Server) SetServing() {
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
}

func (s *Server) Shutdown() { s.health.Shutdown() }

func (s *Server) Predict(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.predictor == nil {
		return nil, status.Error(codes.Unavailable, "models are still loading")
	}
	raw, err := in.MarshalJSON()
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "encode request: %v", err)
	}
	var req apiv1.PredictRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	if err := req.Validate(); err != nil {
		return nil, toStatus(err)
	}
	p, err := s.predictor.Predict(ctx, req.Input())
	if err != nil {
		return nil, toStatus(err)
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out := new(structpb.Struct)
	if err := out.UnmarshalJSON(b); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func toStatus(err error) error {
	code := codes.Internal
	switch st, _ := apierr.StatusOf(err); st {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		code = codes.InvalidArgument
	case http.StatusUnauthorized:
		code = codes.Unauthenticated
	case http.StatusTooManyRequests:
		code = codes.ResourceExhausted
	case http.StatusServiceUnavailable:
		code = codes.Unavailable
	}
	return status.Error(code, err.Error())
}

func (s *Server) logUnary(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	ctx = withRequestID(ctx)
	resp, err := handler(ctx, req)
	code := status.Code(err)
	fields := []interface{}{"method", info.FullMethod, "code", code.String(), "duration_ms", time.Since(start).Milliseconds()}
	fields = append(fields, ctxutil.LogFields(ctx)...)
	switch code {
	case codes.OK:
		s.log.Info("grpc request", fields...)
	case codes.Internal, codes.Unknown:
		s.log.Error("grpc request", append(fields, "error", err)...)
	default:
		s.log.Warn("grpc request", append(fields, "error", err)...)
	}
	return resp, err
}

func (s *Server) recoverUnary(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("panic recovered", "method", info.FullMethod, "panic", rec)
			err = status.Error(codes.Internal, "internal server error")
		}
	}()
	return handler(ctx, req)
}

// withRequestID takes x-request-id from incoming metadata, minting one when
// the caller sent none.
func withRequestID(ctx context.Context) context.Context {
	id := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get("x-request-id"); len(v) > 0 {
			id = strings.TrimSpace(v[0])
		}
	}
	if id == "" {
		id = uuid.New().String()
	}
	r := ctxutil.Request{RequestID: id}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		r.TraceID = sc.TraceID().String()
	}
	return ctxutil.WithRequest(ctx, r)
}
