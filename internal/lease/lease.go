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

package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ChannelLease is a time-bounded exclusive lease on one channel's pipeline
// run. Two coordinator processes racing on the same channel resolve here;
// per-item exclusion is handled by the ledger claim, this only prevents two
// runs from walking the same channel at once. The owner token ensures that
// only the lease holder can release or extend it.
type ChannelLease struct {
	client redis.UniversalClient
	key    string
	owner  string
}

func NewChannelLease(client redis.UniversalClient, channelID, owner string) *ChannelLease {
	return &ChannelLease{
		client: client,
		key:    fmt.Sprintf("vidigest:channel:%s", channelID),
		owner:  owner,
	}
}

func (l *ChannelLease) Acquire(ctx context.Context, ttl time.Duration) error {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("channel lease %s is already held", l.key)
	}
	return nil
}

func (l *ChannelLease) Release(ctx context.Context) error {
	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	result, err := l.client.Eval(ctx, script, []string{l.key}, l.owner).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("release failed, lease %s expired or owned elsewhere", l.key)
	}
	return nil
}

// Extend pushes the lease expiry out by extension. Called between items on
// long channel runs so the lease outlives slow gateway calls.
func (l *ChannelLease) Extend(ctx context.Context, extension time.Duration) error {
	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('pexpire', KEYS[1], ARGV[2]) else return 0 end"
	result, err := l.client.Eval(ctx, script, []string{l.key}, l.owner, fmt.Sprintf("%d", extension.Milliseconds())).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("extend failed, lease %s expired or owned elsewhere", l.key)
	}
	return nil
}
