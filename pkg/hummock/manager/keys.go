// SPDX-License-Identifier: AGPL-3.0-only

package manager

import "strconv"

// key renders a uint64 id as the metastore key string used across every
// namespace in §6.1.
func key(id uint64) string {
	return strconv.FormatUint(id, 10)
}
