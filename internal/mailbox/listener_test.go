package mailbox

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidycrm/mailsync/internal/database"
	"github.com/tidycrm/mailsync/internal/resolve"
	"github.com/tidycrm/mailsync/internal/signature"
	"github.com/tidycrm/mailsync/pkg/models"
)

// scriptedIMAPServer speaks just enough IMAP for a client to log in,
// select an empty INBOX and keep polling it.
type scriptedIMAPServer struct {
	ln net.Listener

	mu    sync.Mutex
	conns []net.Conn
	alive int
	noops int
}

func startIMAPServer(t *testing.T, addr string) *scriptedIMAPServer {
	t.Helper()
	ln, err := net.Listen("tcp", addr)
	require.NoError(t, err)

	s := &scriptedIMAPServer{ln: ln}
	go s.acceptLoop()
	t.Cleanup(s.close)
	return s
}

func (s *scriptedIMAPServer) addr() string { return s.ln.Addr().String() }

func (s *scriptedIMAPServer) close() {
	s.ln.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		c.Close()
	}
}

func (s *scriptedIMAPServer) aliveConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

func (s *scriptedIMAPServer) noopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.noops
}

func (s *scriptedIMAPServer) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.alive++
		s.mu.Unlock()
		go s.serve(conn)
	}
}

func (s *scriptedIMAPServer) serve(conn net.Conn) {
	defer func() {
		conn.Close()
		s.mu.Lock()
		s.alive--
		s.mu.Unlock()
	}()

	fmt.Fprint(conn, "* OK [CAPABILITY IMAP4rev1] ready\r\n")

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		tag := fields[0]
		cmd := strings.ToUpper(fields[1])
		if cmd == "UID" && len(fields) > 2 {
			cmd = strings.ToUpper(fields[2])
		}

		switch cmd {
		case "CAPABILITY":
			fmt.Fprintf(conn, "* CAPABILITY IMAP4rev1\r\n%s OK CAPABILITY completed\r\n", tag)
		case "SELECT":
			fmt.Fprintf(conn, "* 0 EXISTS\r\n* 0 RECENT\r\n* FLAGS (\\Seen)\r\n* OK [UIDVALIDITY 1] UIDs valid\r\n%s OK [READ-WRITE] SELECT completed\r\n", tag)
		case "SEARCH":
			fmt.Fprintf(conn, "* SEARCH\r\n%s OK SEARCH completed\r\n", tag)
		case "NOOP":
			s.mu.Lock()
			s.noops++
			s.mu.Unlock()
			fmt.Fprintf(conn, "%s OK NOOP completed\r\n", tag)
		case "LOGOUT":
			fmt.Fprintf(conn, "* BYE\r\n%s OK LOGOUT completed\r\n", tag)
			return
		default:
			fmt.Fprintf(conn, "%s OK %s completed\r\n", tag, cmd)
		}
	}
}

func listenerAccount(t *testing.T, server *scriptedIMAPServer, id int64) *models.MailAccount {
	t.Helper()
	host, portStr, err := net.SplitHostPort(server.addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return &models.MailAccount{
		ID:           id,
		OwnerID:      1,
		Email:        "mario.rossi@acme.it",
		IMAPHost:     host,
		IMAPPort:     port,
		IMAPSecurity: models.SecurityNone,
		IMAPUsername: "mario.rossi@acme.it",
		IMAPPassword: "secret",
	}
}

func newTestSupervisor(t *testing.T, reconnectDelay time.Duration) *Supervisor {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	receiver := NewReceiver(ReceiverDeps{
		DB:          db,
		Signatures:  signature.NewParser("en"),
		Companies:   resolve.NewCompanyMatcher(db, false, logger),
		Contacts:    resolve.NewContactMatcher(db, logger),
		DialTimeout: 5 * time.Second,
		PollTimeout: 20 * time.Millisecond,
		Logger:      logger,
	})
	return NewSupervisor(receiver, reconnectDelay, time.Minute, logger)
}

func TestListenerLifecycle(t *testing.T) {
	server := startIMAPServer(t, "127.0.0.1:0")
	sv := newTestSupervisor(t, time.Minute)
	defer sv.StopAll()
	account := listenerAccount(t, server, 1)

	require.NoError(t, sv.Start(context.Background(), account))
	require.Eventually(t, func() bool { return server.aliveConns() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "connected", sv.Status(account.ID))

	sv.Stop(account.ID)
	require.Eventually(t, func() bool { return server.aliveConns() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "disconnected", sv.Status(account.ID))
}

func TestConcurrentStartKeepsOneConnection(t *testing.T) {
	server := startIMAPServer(t, "127.0.0.1:0")
	sv := newTestSupervisor(t, time.Minute)
	account := listenerAccount(t, server, 2)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sv.Start(context.Background(), account)
		}()
	}
	wg.Wait()

	// The losing connection must be torn down, not orphaned.
	require.Eventually(t, func() bool { return server.aliveConns() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "connected", sv.Status(account.ID))

	sv.StopAll()
	require.Eventually(t, func() bool { return server.aliveConns() == 0 }, 5*time.Second, 10*time.Millisecond)

	before := server.noopCount()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, before, server.noopCount(), "a stopped listener must not keep polling")
}

func TestReconnectRetriesUntilServerReturns(t *testing.T) {
	server := startIMAPServer(t, "127.0.0.1:0")
	addr := server.addr()
	sv := newTestSupervisor(t, 25*time.Millisecond)
	defer sv.StopAll()
	account := listenerAccount(t, server, 3)

	require.NoError(t, sv.Start(context.Background(), account))
	require.Eventually(t, func() bool { return server.aliveConns() == 1 }, 5*time.Second, 10*time.Millisecond)

	// Take the server away long enough for at least one reconnect attempt
	// to fail outright.
	server.close()
	time.Sleep(150 * time.Millisecond)

	revived := startIMAPServer(t, addr)
	require.Eventually(t, func() bool { return revived.aliveConns() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "connected", sv.Status(account.ID))
}
