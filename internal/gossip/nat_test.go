package gossip

import "testing"

func TestTCPPortExtractsFromMultiaddr(t *testing.T) {
	cases := []struct {
		addr    string
		want    int
		wantErr bool
	}{
		{addr: "/ip4/0.0.0.0/tcp/4001", want: 4001},
		{addr: "/ip6/::/tcp/9000", want: 9000},
		{addr: "/ip4/0.0.0.0/udp/4001/quic-v1", wantErr: true},
		{addr: "garbage", wantErr: true},
	}
	for _, tc := range cases {
		got, err := tcpPort(tc.addr)
		if tc.wantErr {
			if err == nil {
				t.Errorf("tcpPort(%q): expected error, got %d", tc.addr, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("tcpPort(%q): unexpected error: %v", tc.addr, err)
			continue
		}
		if got != tc.want {
			t.Errorf("tcpPort(%q) = %d, want %d", tc.addr, got, tc.want)
		}
	}
}

func TestNATTraversalUnmapNoopWithoutMapping(t *testing.T) {
	m := &natTraversal{}
	if err := m.Unmap(); err != nil {
		t.Fatalf("Unmap on a never-mapped traversal should be a no-op: %v", err)
	}
}
