//go:build !windows

package telnetcore

import (
	"net"
	"strconv"
	"syscall"
	"testing"
	"time"
)

// TestSerializeConnection_LeavesDescriptorOpen guards against regressing
// the fd lifetime bug where closing the *os.File returned by
// Connection.File also closed the duplicated descriptor meant to survive
// the successor process's exec.
func TestSerializeConnection_LeavesDescriptorOpen(t *testing.T) {
	port := freePort(t)
	m := New()
	if !m.ListenPlainTelnet("127.0.0.1", port) {
		t.Fatal("ListenPlainTelnet failed")
	}
	go m.Run(1)
	defer m.Stop()

	cli, err := net.Dial("tcp", "127.0.0.1:"+strconv.Itoa(port))
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer cli.Close()

	var id string
	deadline := time.After(2 * time.Second)
	for id == "" {
		ids := m.Connections()
		if len(ids) > 0 {
			id = ids[0]
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for connection registration")
		default:
		}
	}

	c := m.Lookup(id)
	cd, err := serializeConnection(id, c)
	if err != nil {
		t.Fatalf("serializeConnection failed: %v", err)
	}

	dup, err := syscall.Dup(int(cd.FD))
	if err != nil {
		t.Fatalf("descriptor %d was already closed by serializeConnection: %v", cd.FD, err)
	}
	syscall.Close(dup)
}
