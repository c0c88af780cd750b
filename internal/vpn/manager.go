package vpn

import (
	"fmt"
	"net/netip"
)

// AddressManager answers VPN subnet questions for a device: the size of its
// virtual subnet and the indexed virtual IPs assigned to endpoint devices.
type AddressManager interface {
	// SubnetSize returns the number of usable endpoint addresses in the
	// device's virtual subnet.
	SubnetSize(vpnIP string) int

	// EndpointIP returns the virtual address at the given index within the
	// device's subnet.
	EndpointIP(vpnIP string, index int) (string, error)
}

// PrefixManager derives endpoint addresses from a fixed per-device prefix
// length applied to the device's VPN address.
type PrefixManager struct {
	prefixBits int
}

// NewPrefixManager creates a manager for the given per-device prefix length
func NewPrefixManager(prefixBits int) *PrefixManager {
	return &PrefixManager{prefixBits: prefixBits}
}

// SubnetSize returns the usable endpoint count for the device subnet
func (m *PrefixManager) SubnetSize(vpnIP string) int {
	if vpnIP == "" {
		return 0
	}
	hostBits := 32 - m.prefixBits
	if hostBits <= 0 || hostBits > 16 {
		return 0
	}
	// network and broadcast addresses excluded
	return (1 << hostBits) - 2
}

// EndpointIP returns the index-th address after the device's own
func (m *PrefixManager) EndpointIP(vpnIP string, index int) (string, error) {
	addr, err := netip.ParseAddr(vpnIP)
	if err != nil {
		return "", fmt.Errorf("parse vpn ip: %w", err)
	}
	if !addr.Is4() {
		return "", fmt.Errorf("vpn ip must be IPv4: %s", vpnIP)
	}
	if index < 0 || index >= m.SubnetSize(vpnIP) {
		return "", fmt.Errorf("endpoint index %d out of subnet range", index)
	}

	for i := 0; i <= index; i++ {
		addr = addr.Next()
	}
	return addr.String(), nil
}
