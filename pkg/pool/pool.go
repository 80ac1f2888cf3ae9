// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package pool groups probed member devices into filesystem pools and
// resolves requested identifiers against them.
package pool

import (
	"bytes"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/siderolabs/gen/maps"
	"github.com/siderolabs/gen/optional"
	"github.com/siderolabs/gen/xslices"

	"github.com/siderolabs/poolfs-mount/pkg/probe"
)

// ErrPoolNotFound indicates the requested identifier matches no discovered pool.
var ErrPoolNotFound = errors.New("filesystem pool not found")

// Pool is one discovered filesystem: every scanned member claiming the same
// identifier, in scan order.
//
// The identifier is immutable and the member set is never empty.
type Pool struct {
	id      uuid.UUID
	members []probe.Member
}

// Registry resolves filesystem identifiers against the pools of one scan.
type Registry struct {
	pools map[uuid.UUID]*Pool
}

// Group partitions scan results into pools keyed by filesystem identifier.
//
// A member is never dropped because its sequence number or user UUID disagrees
// with its siblings; reconciling stale metadata is a verification concern, not
// a discovery one. When one device path appears more than once, the most
// recent read wins. Grouping is idempotent; results of two different scans
// must be re-grouped on their union, never merged.
func Group(result *probe.Result) *Registry {
	latest := make(map[string]probe.Member, len(result.Members))
	order := make([]string, 0, len(result.Members))

	for _, member := range result.Members {
		path := member.Device.Path()

		if _, ok := latest[path]; !ok {
			order = append(order, path)
		}

		latest[path] = member
	}

	pools := map[uuid.UUID]*Pool{}

	for _, path := range order {
		member := latest[path]

		p := pools[member.SuperBlock.UUID]
		if p == nil {
			p = &Pool{id: member.SuperBlock.UUID}
			pools[member.SuperBlock.UUID] = p
		}

		p.members = append(p.members, member)
	}

	return &Registry{pools: pools}
}

// Lookup returns the pool with exactly the given identifier.
func (r *Registry) Lookup(id uuid.UUID) (*Pool, error) {
	p, ok := r.pools[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, id)
	}

	return p, nil
}

// Pools returns the discovered pools sorted by identifier.
func (r *Registry) Pools() []*Pool {
	pools := maps.Values(r.pools)

	slices.SortFunc(pools, func(a, b *Pool) int {
		return bytes.Compare(a.id[:], b.id[:])
	})

	return pools
}

// Len returns the number of discovered pools.
func (r *Registry) Len() int {
	return len(r.pools)
}

// ID returns the filesystem identifier.
func (p *Pool) ID() uuid.UUID {
	return p.id
}

// Members returns the pool members in scan order.
func (p *Pool) Members() []probe.Member {
	return slices.Clone(p.members)
}

// DevicePaths returns the member device paths in scan order.
func (p *Pool) DevicePaths() []string {
	return xslices.Map(p.members, func(m probe.Member) string { return m.Device.Path() })
}

// Encrypted reports whether any member requires a passphrase to mount.
func (p *Pool) Encrypted() bool {
	return slices.ContainsFunc(p.members, func(m probe.Member) bool { return m.SuperBlock.Encrypted() })
}

// ExpectedDevices returns the member count the pool was formatted with, if it
// was recorded.
func (p *Pool) ExpectedDevices() optional.Optional[int] {
	if nr := p.newest().SuperBlock.NrDevices; nr > 0 {
		return optional.Some(int(nr))
	}

	return optional.None[int]()
}

// Degraded reports whether fewer members were discovered than the pool was
// formatted with. It is always false when the member count is unrecorded.
func (p *Pool) Degraded() bool {
	expected, ok := p.ExpectedDevices().Get()

	return ok && len(p.members) < expected
}

// UserUUID returns the user-facing UUID from the most recent superblock.
func (p *Pool) UserUUID() uuid.UUID {
	return p.newest().SuperBlock.UserUUID
}

// Label returns the pool label from the most recent superblock.
func (p *Pool) Label() string {
	return p.newest().SuperBlock.Label
}

// Seq returns the highest superblock write sequence among the members.
func (p *Pool) Seq() uint64 {
	return p.newest().SuperBlock.Seq
}

// Version returns the on-disk format version from the most recent superblock.
func (p *Pool) Version() uint16 {
	return p.newest().SuperBlock.Version
}

// Size returns the total size of the member devices in bytes.
func (p *Pool) Size() uint64 {
	var size uint64

	for _, m := range p.members {
		size += m.Device.Size()
	}

	return size
}

// newest returns the member whose superblock carries the highest write
// sequence; on a tie the earliest by scan order wins.
func (p *Pool) newest() probe.Member {
	newest := p.members[0]

	for _, m := range p.members[1:] {
		if m.SuperBlock.Seq > newest.SuperBlock.Seq {
			newest = m
		}
	}

	return newest
}
