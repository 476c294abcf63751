// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"fmt"

	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// MarshalVector serializes an embedding vector to bytes: a varint element
// count followed by raw little-endian float32 values. The encoding is exact
// within float32 precision.
func MarshalVector(v []float32) []byte {
	size := varint.PositiveInt.Size(len(v))
	for _, f := range v {
		size += raw.Float32.Size(f)
	}

	buf := make([]byte, size)
	n := varint.PositiveInt.Marshal(len(v), buf)
	for _, f := range v {
		n += raw.Float32.Marshal(f, buf[n:])
	}
	return buf
}

// UnmarshalVector deserializes an embedding vector from bytes.
func UnmarshalVector(data []byte) ([]float32, error) {
	length, n, err := varint.PositiveInt.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: vector length: %w", ErrSerializationFailed, err)
	}

	v := make([]float32, 0, length)
	for i := 0; i < length; i++ {
		f, m, err := raw.Float32.Unmarshal(data[n:])
		if err != nil {
			return nil, fmt.Errorf("%w: element %d of %d", ErrTruncatedData, i, length)
		}
		n += m
		v = append(v, f)
	}

	if n != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrSerializationFailed, len(data)-n)
	}
	return v, nil
}
