// Copyright 2026 The kpt Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ledger remembers the state before the last upgrade so that it can
// be restored.
package ledger

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/kptdev/scriptkit/internal/errors"
	"github.com/kptdev/scriptkit/internal/gitutil"
	"github.com/kptdev/scriptkit/internal/install"
	"github.com/kptdev/scriptkit/internal/types"
	"k8s.io/klog/v2"
)

var hashRe = regexp.MustCompile(`^[0-9a-f]{7,64}$`)

// NothingToRollbackError is returned when no snapshot exists.
type NothingToRollbackError struct {
	Marker string
}

func (e *NothingToRollbackError) Error() string {
	return fmt.Sprintf("nothing to roll back: %s does not exist", e.Marker)
}

// StaleMarkerError is returned when the snapshot names a commit that no
// longer exists or is not a commit hash at all.
type StaleMarkerError struct {
	Marker string
	Hash   string
}

func (e *StaleMarkerError) Error() string {
	return fmt.Sprintf("rollback marker %s references %q which is not a reachable commit", e.Marker, e.Hash)
}

// Ledger stores one commit hash in the rollback marker file.
type Ledger struct {
	ic *install.Context
	// git checks commit reachability for the repository the hash belongs to.
	git *gitutil.Gateway
}

// New returns the ledger of a target. Hashes are looked up with g.
func New(ic *install.Context, g *gitutil.Gateway) *Ledger {
	return &Ledger{ic: ic, git: g}
}

// Snapshot records hash as the state to return to.
func (l *Ledger) Snapshot(ctx context.Context, hash string) error {
	const op errors.Op = "ledger.Snapshot"
	klog.V(2).Infof("snapshot %s to %s", hash, l.ic.RollbackMarkerPath())
	if err := l.ic.FS.WriteFile(ctx, l.ic.RollbackMarkerPath(), []byte(hash+"\n")); err != nil {
		return errors.E(op, l.ic.Target(), err)
	}
	return nil
}

// Peek returns the recorded hash without validating it.
func (l *Ledger) Peek() (string, bool) {
	b, err := os.ReadFile(l.ic.RollbackMarkerPath())
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(b)), true
}

// Restore validates the snapshot, passes it to apply and removes the marker
// when apply succeeds.
func (l *Ledger) Restore(ctx context.Context, apply func(hash string) error) error {
	const op errors.Op = "ledger.Restore"
	marker := l.ic.RollbackMarkerPath()
	hash, found := l.Peek()
	if !found {
		return errors.E(op, errors.Precondition, l.ic.Target(), &NothingToRollbackError{Marker: marker})
	}
	if !hashRe.MatchString(hash) || !l.git.CommitExists(ctx, hash) {
		return errors.E(op, errors.Corrupt, l.ic.Target(), &StaleMarkerError{Marker: marker, Hash: hash})
	}
	if err := apply(hash); err != nil {
		return errors.E(op, l.ic.Target(), err)
	}
	if err := l.Clear(ctx); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// Clear removes the marker.
func (l *Ledger) Clear(ctx context.Context) error {
	const op errors.Op = "ledger.Clear"
	if _, found := l.Peek(); !found {
		return nil
	}
	if err := l.ic.FS.Remove(ctx, l.ic.RollbackMarkerPath()); err != nil {
		return errors.E(op, l.ic.Target(), err)
	}
	return nil
}

// ShortHash abbreviates a commit hash for display and directory names.
func ShortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

// Scope returns the scope of the ledger's target.
func (l *Ledger) Scope() types.Scope {
	return l.ic.Scope
}
