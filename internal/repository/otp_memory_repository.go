package repository

import (
	"context"
	"sync"

	"github.com/jmiconnect/portal/internal/models"
)

// MemoryOTPRepository keeps OTP records in process memory. Records are lost
// on restart.
type MemoryOTPRepository struct {
	mu      sync.Mutex
	records map[string]models.OTPRecord
}

func NewMemoryOTPRepository() *MemoryOTPRepository {
	return &MemoryOTPRepository{records: make(map[string]models.OTPRecord)}
}

func (r *MemoryOTPRepository) Put(_ context.Context, identifier string, record models.OTPRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[identifier] = record
	return nil
}

func (r *MemoryOTPRepository) Get(_ context.Context, identifier string) (*models.OTPRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[identifier]
	if !ok {
		return nil, ErrNotFound
	}
	return &record, nil
}

func (r *MemoryOTPRepository) MarkUsed(_ context.Context, identifier, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[identifier]
	if !ok || record.Used || record.Code != code {
		return false, nil
	}
	record.Used = true
	r.records[identifier] = record
	return true, nil
}

func (r *MemoryOTPRepository) DeleteIfCode(_ context.Context, identifier, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[identifier]
	if !ok || record.Code != code {
		return false, nil
	}
	delete(r.records, identifier)
	return true, nil
}
