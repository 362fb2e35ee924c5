package api

import (
	"context"
	"time"

	"github.com/matheus3301/chansync/internal/status"
	"github.com/matheus3301/chansync/internal/store"
)

// SessionService implements the SessionService gRPC service.
type SessionService struct {
	sessionName string
	startedAt   time.Time
	machine     *status.Machine
	db          *store.DB
}

// NewSessionService creates a new session service.
func NewSessionService(sessionName string, machine *status.Machine, db *store.DB) *SessionService {
	return &SessionService{
		sessionName: sessionName,
		startedAt:   time.Now(),
		machine:     machine,
		db:          db,
	}
}

func (s *SessionService) GetStatus(_ context.Context, _ *GetStatusRequest) (*GetStatusResponse, error) {
	current, _, reason := s.machine.Snapshot()

	resp := &GetStatusResponse{
		Session:       s.sessionName,
		Status:        string(current),
		StatusMessage: reason,
		UptimeMs:      time.Since(s.startedAt).Milliseconds(),
	}

	// Populate store details when available.
	if s.db != nil {
		if v, ok, err := s.db.SchemaVersion(); err == nil && ok {
			resp.SchemaVersion = v
		}
		if n, err := s.db.ChannelCount(); err == nil {
			resp.ChannelCount = n
		}
	}

	return resp, nil
}

var _ SessionServiceServer = (*SessionService)(nil)
