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

package vidigest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/vidigest/vidigest/database/mocks"
)

func TestLedgerClaim(t *testing.T) {
	ds := new(mocks.MockDataSource)
	ledger := NewProcessingLedger(ds, 15*time.Minute)

	ds.On("EnsureLedgerEntry", mock.Anything, "v123", "ch-7").Return(nil)
	ds.On("ClaimLedgerEntry", mock.Anything, "v123", mock.Anything, mock.Anything).Return(true, nil)

	claim, err := ledger.Claim(context.Background(), "v123", "ch-7")
	assert.NoError(t, err)
	assert.Equal(t, "v123", claim.VideoID)
	assert.NotEmpty(t, claim.Token)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), claim.ExpiresAt, time.Second)
	ds.AssertExpectations(t)
}

func TestLedgerClaim_AlreadyClaimed(t *testing.T) {
	ds := new(mocks.MockDataSource)
	ledger := NewProcessingLedger(ds, 15*time.Minute)

	ds.On("EnsureLedgerEntry", mock.Anything, "v123", "ch-7").Return(nil)
	ds.On("ClaimLedgerEntry", mock.Anything, "v123", mock.Anything, mock.Anything).Return(false, nil)

	claim, err := ledger.Claim(context.Background(), "v123", "ch-7")
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
	assert.Nil(t, claim)
}

func TestLedgerClaim_DistinctTokens(t *testing.T) {
	ds := new(mocks.MockDataSource)
	ledger := NewProcessingLedger(ds, time.Minute)

	ds.On("EnsureLedgerEntry", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	ds.On("ClaimLedgerEntry", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true, nil)

	first, err := ledger.Claim(context.Background(), "v1", "ch-7")
	assert.NoError(t, err)
	second, err := ledger.Claim(context.Background(), "v2", "ch-7")
	assert.NoError(t, err)
	assert.NotEqual(t, first.Token, second.Token)
}

func TestLedgerComplete(t *testing.T) {
	ds := new(mocks.MockDataSource)
	ledger := NewProcessingLedger(ds, time.Minute)
	claim := &Claim{VideoID: "v123", Token: "tok-1"}

	ds.On("CompleteLedgerEntry", mock.Anything, "v123", "tok-1").Return(true, nil)

	assert.NoError(t, ledger.Complete(context.Background(), claim))
	ds.AssertExpectations(t)
}

func TestLedgerComplete_ClaimLost(t *testing.T) {
	ds := new(mocks.MockDataSource)
	ledger := NewProcessingLedger(ds, time.Minute)
	claim := &Claim{VideoID: "v123", Token: "stale-token"}

	// The claim expired and another worker took over; the late completion
	// must not land.
	ds.On("CompleteLedgerEntry", mock.Anything, "v123", "stale-token").Return(false, nil)

	assert.ErrorIs(t, ledger.Complete(context.Background(), claim), ErrClaimLost)
}

func TestLedgerRelease(t *testing.T) {
	ds := new(mocks.MockDataSource)
	ledger := NewProcessingLedger(ds, time.Minute)
	claim := &Claim{VideoID: "v123", Token: "tok-1"}

	ds.On("ReleaseLedgerEntry", mock.Anything, "v123", "tok-1", "captions not ready").Return(nil)

	assert.NoError(t, ledger.Release(context.Background(), claim, "captions not ready"))
	ds.AssertExpectations(t)
}

func TestLedgerSkipPermanent(t *testing.T) {
	ds := new(mocks.MockDataSource)
	ledger := NewProcessingLedger(ds, time.Minute)
	claim := &Claim{VideoID: "v123", Token: "tok-1"}

	ds.On("SkipLedgerEntryPermanent", mock.Anything, "v123", "tok-1", "members only").Return(nil)

	assert.NoError(t, ledger.SkipPermanent(context.Background(), claim, "members only"))
	ds.AssertExpectations(t)
}
