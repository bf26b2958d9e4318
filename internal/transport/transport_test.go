package transport

import (
	"bytes"
	"context"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	mail "github.com/xhit/go-simple-mail/v2"

	"github.com/oarkflow/sendlist/internal/config"
	"github.com/oarkflow/sendlist/internal/message"
	"github.com/oarkflow/sendlist/internal/recipient"
)

// fakeServer is a minimal SMTP server accepting every command.
type fakeServer struct {
	ln net.Listener

	mu          sync.Mutex
	connections int
	messages    []string
	rcpts       []string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeServer{ln: ln}
	go s.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return s
}

func (s *fakeServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.connections++
		s.mu.Unlock()
		go s.handle(conn)
	}
}

func (s *fakeServer) handle(conn net.Conn) {
	defer conn.Close()
	tp := textproto.NewConn(conn)

	_ = tp.PrintfLine("220 localhost ESMTP fake")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		cmd := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			_ = tp.PrintfLine("250-localhost")
			_ = tp.PrintfLine("250 8BITMIME")
		case strings.HasPrefix(cmd, "RCPT TO:"):
			s.mu.Lock()
			s.rcpts = append(s.rcpts, line[len("RCPT TO:"):])
			s.mu.Unlock()
			_ = tp.PrintfLine("250 OK")
		case cmd == "DATA":
			_ = tp.PrintfLine("354 Go ahead")
			data, err := tp.ReadDotBytes()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.messages = append(s.messages, string(data))
			s.mu.Unlock()
			_ = tp.PrintfLine("250 Queued")
		case cmd == "QUIT":
			_ = tp.PrintfLine("221 Bye")
			return
		default:
			_ = tp.PrintfLine("250 OK")
		}
	}
}

func (s *fakeServer) snapshot() (int, []string, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connections, append([]string(nil), s.messages...), append([]string(nil), s.rcpts...)
}

func testConfig(port int) *config.Config {
	return &config.Config{
		Host:       "127.0.0.1",
		Port:       port,
		User:       "user",
		Password:   "secret",
		Encryption: config.EncryptionNone,
		Auth:       config.AuthNone,
		From:       "news@example.com",
	}
}

func testMessage(t *testing.T, rec recipient.Record, opts message.Options) *message.Message {
	t.Helper()
	a, err := message.NewAssembler(opts)
	require.NoError(t, err)
	msg, err := a.Assemble(rec, "Hello "+rec.Name, "Body for "+rec.Name)
	require.NoError(t, err)
	return msg
}

func TestSMTP_SendReusesSession(t *testing.T) {
	srv := newFakeServer(t)
	tr := NewSMTP(testConfig(srv.port()))
	defer tr.Close()

	opts := message.Options{From: "news@example.com"}
	require.NoError(t, tr.Send(context.Background(),
		testMessage(t, recipient.Record{Name: "Alice", Email: "alice@x.com"}, opts)))
	require.NoError(t, tr.Send(context.Background(),
		testMessage(t, recipient.Record{Name: "Bob", Email: "bob@x.com"}, opts)))
	require.NoError(t, tr.Close())

	connections, messages, rcpts := srv.snapshot()
	assert.Equal(t, 1, connections)
	require.Len(t, messages, 2)
	assert.Contains(t, messages[0], "Body for Alice")
	assert.Contains(t, messages[1], "Body for Bob")
	assert.Contains(t, rcpts[0], "alice@x.com")
	assert.Contains(t, rcpts[len(rcpts)-1], "bob@x.com")
}

func TestSMTP_SendIncludesCopies(t *testing.T) {
	srv := newFakeServer(t)
	tr := NewSMTP(testConfig(srv.port()))
	defer tr.Close()

	cc, bcc := "cc@example.com", "bcc@example.com"
	msg := testMessage(t, recipient.Record{Name: "Alice", Email: "alice@x.com"},
		message.Options{From: "news@example.com", CC: &cc, BCC: &bcc})
	require.NoError(t, tr.Send(context.Background(), msg))

	_, messages, rcpts := srv.snapshot()
	require.Len(t, messages, 1)
	joined := strings.Join(rcpts, " ")
	assert.Contains(t, joined, "alice@x.com")
	assert.Contains(t, joined, "cc@example.com")
	assert.Contains(t, joined, "bcc@example.com")
	assert.NotContains(t, messages[0], "bcc@example.com")
}

func TestSMTP_ConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	tr := NewSMTP(testConfig(port))
	msg := testMessage(t, recipient.Record{Name: "Alice", Email: "alice@x.com"}, message.Options{From: "news@example.com"})

	err = tr.Send(context.Background(), msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect")
	assert.NoError(t, tr.Close())
}

func TestSMTP_CanceledContext(t *testing.T) {
	tr := NewSMTP(testConfig(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	msg := testMessage(t, recipient.Record{Name: "Alice", Email: "alice@x.com"}, message.Options{From: "news@example.com"})
	require.ErrorIs(t, tr.Send(ctx, msg), context.Canceled)
}

func TestSMTPServerSettings(t *testing.T) {
	cfg := testConfig(465)
	cfg.Encryption = config.EncryptionTLS
	cfg.Auth = config.AuthLogin

	srv := smtpServer(cfg)
	assert.Equal(t, "127.0.0.1", srv.Host)
	assert.Equal(t, 465, srv.Port)
	assert.Equal(t, "user", srv.Username)
	assert.Equal(t, "secret", srv.Password)
	assert.Equal(t, mail.EncryptionSSLTLS, srv.Encryption)
	assert.Equal(t, mail.AuthLogin, srv.Authentication)
	assert.True(t, srv.KeepAlive)

	cfg.Encryption = config.EncryptionStartTLS
	cfg.Auth = config.AuthAuto
	srv = smtpServer(cfg)
	assert.Equal(t, mail.EncryptionSTARTTLS, srv.Encryption)
	assert.Equal(t, mail.AuthAuto, srv.Authentication)
}

func TestWriter_Send(t *testing.T) {
	var buf bytes.Buffer
	tr := NewWriter(&buf)

	msg := testMessage(t, recipient.Record{Name: "Alice", Email: "alice@x.com"}, message.Options{From: "news@example.com"})
	require.NoError(t, tr.Send(context.Background(), msg))
	require.NoError(t, tr.Close())

	assert.Contains(t, buf.String(), "Body for Alice")
	assert.True(t, strings.HasPrefix(buf.String(), "\n"))
	assert.True(t, strings.HasSuffix(buf.String(), "\n-----"))
}
