package main

import "testing"

func TestRelayEndpoint(t *testing.T) {
	tests := []struct {
		raw, id, peerType string
		want              string
		wantErr           bool
	}{
		{"wss://relay.example.com", "alice", "desktop", "wss://relay.example.com/ws?id=alice&type=desktop", false},
		{"ws://localhost:8080/ws", "bob", "", "ws://localhost:8080/ws?id=bob", false},
		{"http://10.0.0.2:8080", "c", "", "ws://10.0.0.2:8080/ws?id=c", false},
		{"https://relay.example.com/anything", "d", "", "wss://relay.example.com/ws?id=d", false},
		{"  wss://relay.example.com  ", "e e", "", "wss://relay.example.com/ws?id=e+e", false},
		{"relay.example.com", "f", "", "", true},
		{"", "g", "", "", true},
	}

	for _, tt := range tests {
		got, err := relayEndpoint(tt.raw, tt.id, tt.peerType)
		if (err != nil) != tt.wantErr {
			t.Fatalf("relayEndpoint(%q) error = %v, wantErr %t", tt.raw, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("relayEndpoint(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
