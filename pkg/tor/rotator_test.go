package tor

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reformagkh/pkg/config"
	"reformagkh/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// fakeControlPort speaks just enough of the Tor control protocol for password auth and signals.
type fakeControlPort struct {
	ln       net.Listener
	password string

	mu       sync.Mutex
	commands []string
}

func newFakeControlPort(t *testing.T, password string) *fakeControlPort {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	f := &fakeControlPort{ln: ln, password: password}
	t.Cleanup(func() { ln.Close() })
	go f.serve()
	return f
}

func (f *fakeControlPort) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeControlPort) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	authed := false
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		f.mu.Lock()
		f.commands = append(f.commands, line)
		f.mu.Unlock()

		verb, arg, _ := strings.Cut(line, " ")
		switch strings.ToUpper(verb) {
		case "PROTOCOLINFO":
			io.WriteString(conn, "250-PROTOCOLINFO 1\r\n250-AUTH METHODS=HASHEDPASSWORD\r\n250-VERSION Tor=\"0.4.8.10\"\r\n250 OK\r\n")
		case "AUTHENTICATE":
			if strings.Trim(arg, `"`) == f.password {
				authed = true
				io.WriteString(conn, "250 OK\r\n")
			} else {
				io.WriteString(conn, "515 Authentication failed: Password did not match HashedControlPassword value from configuration\r\n")
			}
		case "SIGNAL":
			if !authed {
				io.WriteString(conn, "514 Authentication required.\r\n")
				continue
			}
			io.WriteString(conn, "250 OK\r\n")
		case "QUIT":
			io.WriteString(conn, "250 closing connection\r\n")
			return
		default:
			io.WriteString(conn, "510 Unrecognized command\r\n")
		}
	}
}

func (f *fakeControlPort) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func torConfig(addr, password string) config.TorConfig {
	return config.TorConfig{ControlAddr: addr, ControlPassword: password, ControlTimeout: 2 * time.Second}
}

func TestRotate_SendsNewnym(t *testing.T) {
	port := newFakeControlPort(t, "password")
	rotator := NewControlRotator(torConfig(port.ln.Addr().String(), "password"), testLogger())

	require.NoError(t, rotator.Rotate(context.Background()))
	require.NoError(t, rotator.Rotate(context.Background()))
	assert.Equal(t, 2, rotator.Rotations())

	require.Eventually(t, func() bool {
		n := 0
		for _, c := range port.received() {
			if c == "SIGNAL NEWNYM" {
				n++
			}
		}
		return n == 2
	}, time.Second, 10*time.Millisecond)
}

func TestRotate_WrongPassword(t *testing.T) {
	port := newFakeControlPort(t, "password")
	rotator := NewControlRotator(torConfig(port.ln.Addr().String(), "nope"), testLogger())

	err := rotator.Rotate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrRotation)
	assert.Equal(t, 0, rotator.Rotations())
	for _, c := range port.received() {
		assert.NotEqual(t, "SIGNAL NEWNYM", c)
	}
}

func TestRotate_UnreachableControlPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	rotator := NewControlRotator(torConfig(addr, "password"), testLogger())
	err = rotator.Rotate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrRotation)
	assert.Contains(t, err.Error(), "unreachable")
	assert.Equal(t, "Tor_Rotation", utils.CategorizeError(err))
}

func TestNoopRotator(t *testing.T) {
	err := NoopRotator{}.Rotate(context.Background())
	assert.ErrorIs(t, err, utils.ErrRotation)
}

func TestCheckConnectivity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	}))
	defer server.Close()

	require.NoError(t, CheckConnectivity(context.Background(), server.Client(), server.URL, testLogger()))
	require.NoError(t, CheckConnectivity(context.Background(), server.Client(), "", testLogger()), "empty URL disables the check")
	require.NoError(t, CheckConnectivity(context.Background(), server.Client(), config.TorCheckOff, testLogger()))

	server.Close()
	err := CheckConnectivity(context.Background(), server.Client(), server.URL, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tor isn't running")
}
