/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"strconv"
	"strings"

	"code.cloudfoundry.org/bytefmt"
	"gopkg.in/yaml.v3"
)

// BytesCount is a size in bytes that may be configured either as an integer
// or as a human-readable string (e.g. "250M", "1Gi").
type BytesCount uint64

// String returns the human-readable representation.
func (b BytesCount) String() string {
	return bytefmt.ByteSize(uint64(b))
}

// UnmarshalYAML allows decoding from both integers and human-readable strings.
func (b *BytesCount) UnmarshalYAML(value *yaml.Node) error {
	var num uint64
	if err := value.Decode(&num); err == nil {
		*b = BytesCount(num)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid bytes count: %v", value.Value)
	}
	parsed, err := ParseBytesCount(s)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// UnmarshalText allows decoding from text (used by mapstructure hooks and env vars).
func (b *BytesCount) UnmarshalText(text []byte) error {
	parsed, err := ParseBytesCount(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// MarshalYAML encodes as a human-readable string.
func (b BytesCount) MarshalYAML() (interface{}, error) {
	return b.String(), nil
}

// ParseBytesCount parses integers and human-readable sizes. Kubernetes-style
// power-of-two suffixes ("Ki", "Mi", ...) are accepted as well.
func ParseBytesCount(s string) (BytesCount, error) {
	v := strings.TrimSpace(s)
	if num, err := strconv.ParseInt(v, 10, 64); err == nil {
		if num < 0 {
			return 0, fmt.Errorf("negative value is not allowed: %d", num)
		}
		return BytesCount(num), nil
	}
	for _, k8sSuffix := range [...]string{"Ki", "Mi", "Gi", "Ti", "Pi", "Ei"} {
		if strings.HasSuffix(v, k8sSuffix) {
			v = v[:len(v)-1]
			break
		}
	}
	num, err := bytefmt.ToBytes(v)
	if err != nil {
		return 0, fmt.Errorf("invalid bytes count (%s): %w", s, err)
	}
	return BytesCount(num), nil
}
