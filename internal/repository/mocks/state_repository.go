package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/matheusnogalha/draft-os/internal/repository"
)

// StateRepository 是 repository.StateRepository 的 mock
type StateRepository struct {
	mock.Mock
}

// GetContentCache provides a mock function with given fields: ctx, chapterID
func (_m *StateRepository) GetContentCache(ctx context.Context, chapterID string) (*repository.CachedContent, error) {
	ret := _m.Called(ctx, chapterID)

	var r0 *repository.CachedContent
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*repository.CachedContent)
	}
	return r0, ret.Error(1)
}

// SetContentCache provides a mock function with given fields: ctx, chapterID, entry, ttl
func (_m *StateRepository) SetContentCache(ctx context.Context, chapterID string, entry repository.CachedContent, ttl time.Duration) error {
	ret := _m.Called(ctx, chapterID, entry, ttl)
	return ret.Error(0)
}

// InvalidateContentCache provides a mock function with given fields: ctx, chapterID
func (_m *StateRepository) InvalidateContentCache(ctx context.Context, chapterID string) error {
	ret := _m.Called(ctx, chapterID)
	return ret.Error(0)
}

// AcquireEditLease provides a mock function with given fields: ctx, chapterID, sessionID, ttl
func (_m *StateRepository) AcquireEditLease(ctx context.Context, chapterID, sessionID string, ttl time.Duration) error {
	ret := _m.Called(ctx, chapterID, sessionID, ttl)
	return ret.Error(0)
}

// ReleaseEditLease provides a mock function with given fields: ctx, chapterID, sessionID
func (_m *StateRepository) ReleaseEditLease(ctx context.Context, chapterID, sessionID string) error {
	ret := _m.Called(ctx, chapterID, sessionID)
	return ret.Error(0)
}

// PublishStatus provides a mock function with given fields: ctx, chapterID, payload
func (_m *StateRepository) PublishStatus(ctx context.Context, chapterID string, payload []byte) error {
	ret := _m.Called(ctx, chapterID, payload)
	return ret.Error(0)
}

// CheckRateLimit provides a mock function with given fields: ctx, key, limit, window
func (_m *StateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	ret := _m.Called(ctx, key, limit, window)
	return ret.Bool(0), ret.Error(1)
}
