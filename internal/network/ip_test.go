package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDialAddr(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{":8090", "127.0.0.1:8090"},
		{"0.0.0.0:8090", "127.0.0.1:8090"},
		{"[::]:8090", "127.0.0.1:8090"},
		{"10.0.0.5:80", "10.0.0.5:80"},
		{"example.com:443", "example.com:443"},
		{"no-port", "no-port"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DialAddr(tt.in), tt.in)
	}
}
