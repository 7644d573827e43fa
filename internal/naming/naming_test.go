package naming

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnique(t *testing.T) {
	tests := []struct {
		name   string
		fn     func(string) string
		base   string
		prefix string
	}{
		{name: "vnet", fn: VirtualNetwork, base: "vm1", prefix: "vm1-vnet"},
		{name: "public-ip", fn: PublicIP, base: "vm1", prefix: "vm1-ip"},
		{name: "security-group", fn: SecurityGroup, base: "vm1", prefix: "vm1-sg"},
		{name: "network-interface", fn: NetworkInterface, base: "web", prefix: "web-if"},
		{name: "os-disk", fn: OSDisk, base: "web2", prefix: "web2-os"},
		{name: "extension", fn: Extension, base: "web", prefix: "web-"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.fn(tt.base)
			require.True(t, strings.HasPrefix(got, tt.prefix), "got %q", got)
			require.Len(t, got, len(tt.prefix)+RandomLength)
		})
	}

	t.Run("length-formula", func(t *testing.T) {
		got := Unique("custom", "base")
		require.Len(t, got, len("custom")+len("base")+1+RandomLength)
	})

	t.Run("lowercase-alphanumeric-tail", func(t *testing.T) {
		got := Unique("x", "y")
		for _, r := range got[len("x-y"):] {
			require.True(t, (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'), "unexpected rune %q in %q", r, got)
		}
	})

	t.Run("distinct", func(t *testing.T) {
		seen := make(map[string]struct{})
		for range 100 {
			n := Unique("vm", "if")
			_, dup := seen[n]
			require.False(t, dup, "duplicate name %q", n)
			seen[n] = struct{}{}
		}
	})
}

func TestReplica(t *testing.T) {
	require.Equal(t, "web", Replica("web", 1))
	require.Equal(t, "web2", Replica("web", 2))
	require.Equal(t, "web10", Replica("web", 10))
	require.Equal(t, "web", Replica("web", 0))
}
