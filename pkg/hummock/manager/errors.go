// SPDX-License-Identifier: AGPL-3.0-only

package manager

import "github.com/pkg/errors"

// Business rejections (§7): returned to the caller verbatim, with no
// state change. Distinct from invariant violations, which are logged
// with full context and from transient errors, which callers retry.
var (
	ErrInvalidContext               = errors.New("hummock: invalid or unregistered context")
	ErrCompactionTaskAlreadyAssigned = errors.New("hummock: compaction task already assigned")
	ErrInvalidEpoch                 = errors.New("hummock: epoch not greater than max_committed_epoch")
	ErrCommitsDisabled              = errors.New("hummock: commits are disabled")
	ErrUnknownGroup                 = errors.New("hummock: unknown compaction group")
	ErrTaskNotFound                 = errors.New("hummock: compaction task not found")
)
