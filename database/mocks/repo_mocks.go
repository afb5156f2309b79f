/*
Copyright 2025 Vidigest Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/vidigest/vidigest/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Content item methods

func (m *MockDataSource) CreateContentItem(ctx context.Context, item *model.ContentItem) (bool, error) {
	args := m.Called(ctx, item)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) GetContentItem(ctx context.Context, videoID string) (*model.ContentItem, error) {
	args := m.Called(ctx, videoID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ContentItem), args.Error(1)
}

func (m *MockDataSource) UpdateContentSummaries(ctx context.Context, item *model.ContentItem) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

// Ledger entry methods

func (m *MockDataSource) EnsureLedgerEntry(ctx context.Context, videoID, channelID string) error {
	args := m.Called(ctx, videoID, channelID)
	return args.Error(0)
}

func (m *MockDataSource) ClaimLedgerEntry(ctx context.Context, videoID, claimToken string, expiresAt time.Time) (bool, error) {
	args := m.Called(ctx, videoID, claimToken, expiresAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) CompleteLedgerEntry(ctx context.Context, videoID, claimToken string) (bool, error) {
	args := m.Called(ctx, videoID, claimToken)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) FailLedgerEntry(ctx context.Context, videoID, claimToken, reason string) error {
	args := m.Called(ctx, videoID, claimToken, reason)
	return args.Error(0)
}

func (m *MockDataSource) SkipLedgerEntryPermanent(ctx context.Context, videoID, claimToken, reason string) error {
	args := m.Called(ctx, videoID, claimToken, reason)
	return args.Error(0)
}

func (m *MockDataSource) ReleaseLedgerEntry(ctx context.Context, videoID, claimToken, reason string) error {
	args := m.Called(ctx, videoID, claimToken, reason)
	return args.Error(0)
}

func (m *MockDataSource) GetLedgerEntry(ctx context.Context, videoID string) (*model.LedgerEntry, error) {
	args := m.Called(ctx, videoID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.LedgerEntry), args.Error(1)
}

// Delivery message methods

func (m *MockDataSource) EnqueueDeliveryMessage(ctx context.Context, msg *model.DeliveryMessage) (bool, error) {
	args := m.Called(ctx, msg)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) GetDeliveryMessage(ctx context.Context, messageID string) (*model.DeliveryMessage, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DeliveryMessage), args.Error(1)
}

func (m *MockDataSource) MarkDeliveryProcessing(ctx context.Context, messageID string) (bool, error) {
	args := m.Called(ctx, messageID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) MarkDeliveryDelivered(ctx context.Context, messageID string) (bool, error) {
	args := m.Called(ctx, messageID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) RecordDeliveryFailure(ctx context.Context, messageID string, nextRetryAt time.Time, lastError string) error {
	args := m.Called(ctx, messageID, nextRetryAt, lastError)
	return args.Error(0)
}

func (m *MockDataSource) MarkDeliveryDeadLetter(ctx context.Context, messageID, lastError string) error {
	args := m.Called(ctx, messageID, lastError)
	return args.Error(0)
}

func (m *MockDataSource) GetStalledDeliveries(ctx context.Context, cutoff time.Time, limit int) ([]*model.DeliveryMessage, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.DeliveryMessage), args.Error(1)
}

func (m *MockDataSource) ReleaseStalledDelivery(ctx context.Context, messageID string, cutoff time.Time) (bool, error) {
	args := m.Called(ctx, messageID, cutoff)
	return args.Bool(0), args.Error(1)
}
