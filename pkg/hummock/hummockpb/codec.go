// SPDX-License-Identifier: AGPL-3.0-only

package hummockpb

import "github.com/gogo/protobuf/proto"

// Marshal and Unmarshal are the single choke point every metastore call
// site in pkg/hummock/manager routes through. They dispatch to
// github.com/gogo/protobuf/proto rather than calling a message's
// Marshal/Unmarshal methods directly: proto.Marshal and proto.Unmarshal
// detect that these generated-message-shaped types already satisfy
// gogo/protobuf's Marshaler/Unmarshaler interfaces and hand off to those
// methods exactly as they would for a compiler-generated message, so
// nothing here duplicates what the library already does.
func Marshal(m proto.Message) ([]byte, error) {
	return proto.Marshal(m)
}

func Unmarshal(data []byte, m proto.Message) error {
	return proto.Unmarshal(data, m)
}
