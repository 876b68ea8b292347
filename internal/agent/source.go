package agent

import (
	"context"

	"github.com/fiscaldesk/printflow/internal/db"
	"github.com/fiscaldesk/printflow/internal/jobstore"
)

// StoreSource drives a poller directly against the job store, for agents
// running in the same process as the server.
type StoreSource struct {
	store   *jobstore.Store
	devices *db.DeviceStore
	agentID string
}

func NewStoreSource(store *jobstore.Store, devices *db.DeviceStore, agentID string) *StoreSource {
	return &StoreSource{store: store, devices: devices, agentID: agentID}
}

func (s *StoreSource) PendingJobs(ctx context.Context, deviceID string, limit int) ([]*db.PrintJob, error) {
	if s.devices != nil {
		// Heartbeat; a failed touch does not block polling.
		_ = s.devices.Touch(ctx, deviceID)
	}
	return s.store.PendingForDevice(ctx, deviceID, limit)
}

func (s *StoreSource) Claim(ctx context.Context, jobID string) error {
	return s.store.Claim(ctx, jobID)
}

func (s *StoreSource) ReportPrinted(ctx context.Context, jobID string) error {
	_, err := s.store.MarkPrinted(ctx, jobID, s.agentID)
	return err
}

func (s *StoreSource) ReportError(ctx context.Context, jobID, message string) error {
	return s.store.MarkError(ctx, jobID, message)
}
