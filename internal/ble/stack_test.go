package ble

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type peerEvent struct {
	addr      string
	connected bool
}

func TestPeerFilter(t *testing.T) {
	const central = "AA:BB:CC:DD:EE:01"
	const other = "AA:BB:CC:DD:EE:02"

	tests := []struct {
		name   string
		events []peerEvent
		want   []bool
	}{
		{
			name:   "connect then disconnect",
			events: []peerEvent{{central, true}, {central, false}},
			want:   []bool{true, true},
		},
		{
			name:   "unrelated device disconnects",
			events: []peerEvent{{other, false}, {central, true}, {other, false}, {central, false}},
			want:   []bool{false, true, false, true},
		},
		{
			name:   "second connect while a peer is held",
			events: []peerEvent{{central, true}, {other, true}, {other, false}, {central, false}, {other, true}},
			want:   []bool{true, false, false, true, true},
		},
		{
			name:   "repeated disconnect",
			events: []peerEvent{{central, true}, {central, false}, {central, false}},
			want:   []bool{true, true, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f peerFilter
			var got []bool
			for _, e := range tt.events {
				got = append(got, f.accept(e.addr, e.connected))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
