package daemon

import (
	"github.com/matheus3301/chansync/internal/api"
	"github.com/matheus3301/chansync/internal/bus"
	"github.com/matheus3301/chansync/internal/status"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var healthServices = []string{
	"",
	api.MessageServiceName,
	api.ChannelServiceName,
	api.SessionServiceName,
}

// healthMirror keeps the gRPC health service in step with the status
// machine.
type healthMirror struct {
	srv   *health.Server
	quit  chan struct{}
	done  chan struct{}
	unsub func()
}

func servingStatus(s status.State) healthpb.HealthCheckResponse_ServingStatus {
	if s == status.Serving {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

func (h *healthMirror) set(s status.State) {
	st := servingStatus(s)
	for _, name := range healthServices {
		h.srv.SetServingStatus(name, st)
	}
}

func startHealthMirror(srv *health.Server, b *bus.Bus, m *status.Machine) *healthMirror {
	ch, unsub := b.Subscribe(status.KindStatusChanged, 16)
	h := &healthMirror{srv: srv, quit: make(chan struct{}), done: make(chan struct{}), unsub: unsub}
	h.set(m.Current())

	go func() {
		defer close(h.done)
		for {
			select {
			case evt := <-ch:
				if change, ok := evt.Payload.(status.StatusChange); ok {
					h.set(change.To)
				}
			case <-h.quit:
				return
			}
		}
	}()
	return h
}

// Close stops mirroring and marks every service as not serving.
func (h *healthMirror) Close() {
	h.unsub()
	close(h.quit)
	<-h.done
	h.srv.Shutdown()
}
