package grpcapi

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yungbote/neurobridge-kt/internal/inference/config"
	"github.com/yungbote/neurobridge-kt/internal/inference/engine/mock"
	"github.com/yungbote/neurobridge-kt/internal/inference/selector"
	"github.com/yungbote/neurobridge-kt/internal/kt/model"
)

func dial(t *testing.T, enh, base *mock.Engine) (*grpc.ClientConn, *Server) {
	t.Helper()
	sel, err := selector.New(nil, enh, base, config.SelectorConfig{}, nil)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	gs, srv := NewGRPCServer(nil, sel)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })
	return cc, srv
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func TestPredictOverGRPC(t *testing.T) {
	cc, _ := dial(t, mock.New(model.VariantEnhanced, []float64{0.25, 0.75}), mock.New(model.VariantBaseline, []float64{0, 0}))
	client := NewClient(cc)

	out, err := client.Predict(context.Background(), mustStruct(t, map[string]any{
		"q_ids":       []any{1, 0},
		"correctness": []any{1, 0},
		"confidence":  []any{0.7, 0.3},
		"difficulty":  []any{0.2, 0.6},
	}))
	require.NoError(t, err)
	m := out.AsMap()
	assert.Equal(t, "DKT+", m["model_used"])
	assert.Equal(t, []any{0.25, 0.75}, m["predicted_probabilities"])
	assert.Equal(t, []any{float64(0), float64(1)}, m["question_ids"])
}

func TestPredictValidationIsInvalidArgument(t *testing.T) {
	enh := mock.New(model.VariantEnhanced, []float64{0.5})
	cc, _ := dial(t, enh, mock.New(model.VariantBaseline, []float64{0}))

	_, err := NewClient(cc).Predict(context.Background(), mustStruct(t, map[string]any{
		"q_ids":       []any{1, 2},
		"correctness": []any{1},
		"confidence":  []any{0.7, 0.3},
		"difficulty":  []any{0.2, 0.6},
	}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Zero(t, enh.Calls())
}

func TestPredictServerFailureIsInternal(t *testing.T) {
	enh := &mock.Engine{Variant: model.VariantEnhanced, Err: errors.New("down")}
	base := &mock.Engine{Variant: model.VariantBaseline, Err: errors.New("down")}
	cc, _ := dial(t, enh, base)

	_, err := NewClient(cc).Predict(context.Background(), mustStruct(t, map[string]any{
		"q_ids":       []any{1},
		"correctness": []any{1},
		"confidence":  []any{0.7},
		"difficulty":  []any{0.2},
	}))
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestHealthFollowsReadiness(t *testing.T) {
	cc, srv := dial(t, mock.New(model.VariantEnhanced, nil), mock.New(model.VariantBaseline, nil))
	hc := healthpb.NewHealthClient(cc)

	resp, err := hc.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	srv.SetServing()
	resp, err = hc.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
