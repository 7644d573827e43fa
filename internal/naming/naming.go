// Package naming produces collision-resistant names for provider resources.
//
// A unique name is the base, a dash, a resource kind suffix, and a random
// lowercase alphanumeric tail:
//
//	vm1-vnetx7b4kq2d9w
//
// Callers are responsible for any provider-specific sanitization of the base.
package naming

import (
	"strconv"

	"k8s.io/apimachinery/pkg/util/rand"
)

// RandomLength is the number of random characters appended to every unique
// name.
const RandomLength = 10

const (
	suffixVirtualNetwork   = "vnet"
	suffixPublicIP         = "ip"
	suffixSecurityGroup    = "sg"
	suffixNetworkInterface = "if"
	suffixOSDisk           = "os"
	suffixExtension        = ""
)

// Unique returns base + "-" + suffix followed by RandomLength random
// characters. The result is always len(base)+len(suffix)+1+RandomLength long.
func Unique(base, suffix string) string {
	return base + "-" + suffix + rand.String(RandomLength)
}

func VirtualNetwork(base string) string   { return Unique(base, suffixVirtualNetwork) }
func PublicIP(base string) string         { return Unique(base, suffixPublicIP) }
func SecurityGroup(base string) string    { return Unique(base, suffixSecurityGroup) }
func NetworkInterface(base string) string { return Unique(base, suffixNetworkInterface) }
func OSDisk(base string) string           { return Unique(base, suffixOSDisk) }
func Extension(base string) string        { return Unique(base, suffixExtension) }

// Replica returns the VM name of the n-th replica (1-indexed) of a request
// tagged tag. The first replica keeps the tag as is.
func Replica(tag string, n int) string {
	if n <= 1 {
		return tag
	}
	return tag + strconv.Itoa(n)
}
