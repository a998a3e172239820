//go:build !unix

package util

import (
	"net"
	"strings"
)

// InheritedListener always reports no inherited listener on this platform.
func InheritedListener() (net.Listener, error) {
	return nil, nil
}

// IsAddrInUse checks if the error indicates an "address already in use" condition.
func IsAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "address already in use") ||
		strings.Contains(msg, "only one usage of each socket address")
}
