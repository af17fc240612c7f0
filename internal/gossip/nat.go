package gossip

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/huin/goupnp/dcps/internetgateway1"
	"github.com/jackpal/gateway"
	natpmp "github.com/jackpal/go-nat-pmp"
)

// natTraversal discovers the LAN gateway and maps the gossip listener's
// TCP port through it, grounded on core/nat_traversal.go's NATManager.
// It tries NAT-PMP first and falls back to UPnP IGDv1, the same order
// the teacher uses.
type natTraversal struct {
	ip         net.IP
	pmp        *natpmp.Client
	upnp       *internetgateway1.WANIPConnection1
	mappedPort int
}

// newNATTraversal discovers the gateway and the node's external IP.
// It returns an error whenever neither protocol can find a gateway, so
// callers can treat NAT traversal as best-effort and keep listening
// locally regardless.
func newNATTraversal() (*natTraversal, error) {
	m := &natTraversal{}
	if gw, err := gateway.DiscoverGateway(); err == nil {
		m.pmp = natpmp.NewClient(gw)
		if res, err := m.pmp.GetExternalAddress(); err == nil {
			m.ip = net.IPv4(res.ExternalIPAddress[0], res.ExternalIPAddress[1], res.ExternalIPAddress[2], res.ExternalIPAddress[3])
		}
	}
	if m.ip == nil {
		if clients, _, err := internetgateway1.NewWANIPConnection1Clients(); err == nil && len(clients) > 0 {
			m.upnp = clients[0]
			if ipStr, err := m.upnp.GetExternalIPAddress(); err == nil {
				m.ip = net.ParseIP(ipStr)
			}
		}
	}
	if m.ip == nil {
		return nil, fmt.Errorf("gossip: nat: gateway not found")
	}
	return m, nil
}

// ExternalIP returns the gateway-reported public address.
func (m *natTraversal) ExternalIP() net.IP { return m.ip }

// Map opens the given TCP port on the gateway, preferring NAT-PMP.
func (m *natTraversal) Map(port int) error {
	if m.pmp != nil {
		if _, err := m.pmp.AddPortMapping("tcp", port, port, 3600); err == nil {
			m.mappedPort = port
			return nil
		}
	}
	if m.upnp != nil {
		if err := m.upnp.AddPortMapping("", uint16(port), "TCP", uint16(port), m.ip.String(), true, "cashew", 3600); err == nil {
			m.mappedPort = port
			return nil
		}
	}
	return fmt.Errorf("gossip: nat: mapping failed")
}

// Unmap removes the previously mapped port, if any.
func (m *natTraversal) Unmap() error {
	if m.mappedPort == 0 {
		return nil
	}
	if m.pmp != nil {
		if _, err := m.pmp.AddPortMapping("tcp", m.mappedPort, m.mappedPort, 0); err != nil {
			return err
		}
		m.mappedPort = 0
		return nil
	}
	if m.upnp != nil {
		if err := m.upnp.DeletePortMapping("", uint16(m.mappedPort), "TCP"); err != nil {
			return err
		}
		m.mappedPort = 0
	}
	return nil
}

// tcpPort extracts the TCP port from a libp2p multiaddress string such
// as "/ip4/0.0.0.0/tcp/4001".
func tcpPort(addr string) (int, error) {
	parts := strings.Split(addr, "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == "tcp" {
			return strconv.Atoi(parts[i+1])
		}
	}
	return 0, fmt.Errorf("gossip: nat: no tcp port in %s", addr)
}
