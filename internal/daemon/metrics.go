package daemon

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	grpcstatus "google.golang.org/grpc/status"
)

// RPCMetrics counts served RPCs by method and status code.
type RPCMetrics struct {
	calls *prometheus.CounterVec
}

// NewRPCMetrics registers the RPC counters on reg.
func NewRPCMetrics(reg prometheus.Registerer) (*RPCMetrics, error) {
	m := &RPCMetrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chansyncd_rpc_total",
			Help: "RPCs served, by full method name and status code.",
		}, []string{"method", "code"}),
	}
	if err := reg.Register(m.calls); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *RPCMetrics) observe(method string, err error) {
	m.calls.WithLabelValues(method, grpcstatus.Code(err).String()).Inc()
}

func (m *RPCMetrics) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		m.observe(info.FullMethod, err)
		return resp, err
	}
}

func (m *RPCMetrics) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		err := handler(srv, ss)
		m.observe(info.FullMethod, err)
		return err
	}
}
