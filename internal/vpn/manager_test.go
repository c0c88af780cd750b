package vpn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubnetSize(t *testing.T) {
	m := NewPrefixManager(28)
	assert.Equal(t, 14, m.SubnetSize("10.8.0.1"))
	assert.Equal(t, 0, m.SubnetSize(""))

	assert.Equal(t, 6, NewPrefixManager(29).SubnetSize("10.8.0.1"))
	assert.Equal(t, 0, NewPrefixManager(32).SubnetSize("10.8.0.1"))
	assert.Equal(t, 0, NewPrefixManager(8).SubnetSize("10.8.0.1"))
}

func TestEndpointIP(t *testing.T) {
	m := NewPrefixManager(28)

	ip, err := m.EndpointIP("10.8.0.1", 0)
	require.NoError(t, err)
	assert.Equal(t, "10.8.0.2", ip)

	ip, err = m.EndpointIP("10.8.0.1", 2)
	require.NoError(t, err)
	assert.Equal(t, "10.8.0.4", ip)

	_, err = m.EndpointIP("10.8.0.1", 14)
	assert.Error(t, err)
	_, err = m.EndpointIP("10.8.0.1", -1)
	assert.Error(t, err)
	_, err = m.EndpointIP("not-an-ip", 1)
	assert.Error(t, err)
	_, err = m.EndpointIP("2001:db8::1", 1)
	assert.Error(t, err)
}
