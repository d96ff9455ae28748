// SPDX-License-Identifier: AGPL-3.0-only

package hummockpb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestMarshalUnmarshalRoundTrip exercises the gogo/protobuf proto.Marshal
// and proto.Unmarshal entry points directly, rather than each message's
// own Marshal/Unmarshal methods, to prove the two dispatch to the same
// bytes.
func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	in := &PinnedVersion{ContextId: 7, MinPinnedVersionId: 42}

	viaProto, err := Marshal(in)
	require.NoError(t, err)

	direct, err := in.Marshal()
	require.NoError(t, err)
	require.Equal(t, direct, viaProto, "proto.Marshal must dispatch to the message's own Marshal method")

	var out PinnedVersion
	require.NoError(t, Unmarshal(viaProto, &out))
	require.Equal(t, *in, out)
}
