package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tidycrm/mailsync/pkg/models"
)

// Supervisor holds at most one long-lived listener connection per account
// in a registry keyed by account id. It is the only cross-request shared
// mutable state in the pipeline; all registry writes go through its mutex.
type Supervisor struct {
	receiver       *Receiver
	reconnectDelay time.Duration
	drainTimeout   time.Duration
	logger         *slog.Logger

	mu       sync.Mutex
	clients  map[int64]*listenerConn
	halted   map[int64]bool
	shutdown bool
}

type listenerConn struct {
	client  *Client
	account *models.MailAccount
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewSupervisor creates a listener supervisor. drainTimeout bounds a
// single pass over the mailbox; zero means two minutes.
func NewSupervisor(receiver *Receiver, reconnectDelay, drainTimeout time.Duration, logger *slog.Logger) *Supervisor {
	if drainTimeout <= 0 {
		drainTimeout = 2 * time.Minute
	}
	return &Supervisor{
		receiver:       receiver,
		reconnectDelay: reconnectDelay,
		drainTimeout:   drainTimeout,
		logger:         logger.With("component", "listener"),
		clients:        make(map[int64]*listenerConn),
		halted:         make(map[int64]bool),
	}
}

// Start establishes a persistent connection for the account and begins
// reacting to new mail. A connection already registered for the account is
// torn down first.
func (s *Supervisor) Start(ctx context.Context, account *models.MailAccount) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return fmt.Errorf("listener supervisor is stopped")
	}
	delete(s.halted, account.ID)
	if old, exists := s.clients[account.ID]; exists {
		old.cancel()
		old.client.Stop()
		delete(s.clients, account.ID)
	}
	s.mu.Unlock()

	c := NewClient(ConfigFromAccount(account, s.receiver.dialTimeout, s.receiver.pollTimeout), s.logger)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	if _, err := c.SelectInbox(ctx); err != nil {
		c.Stop()
		return err
	}

	connCtx, cancel := context.WithCancel(context.Background())
	conn := &listenerConn{client: c, account: account, ctx: connCtx, cancel: cancel}

	// The registry may have changed while we were connecting: a concurrent
	// Stop wins outright, and a connection raced in by a concurrent Start
	// must be torn down before this one takes its slot.
	s.mu.Lock()
	if s.shutdown || s.halted[account.ID] {
		s.mu.Unlock()
		cancel()
		c.Stop()
		return nil
	}
	if raced, exists := s.clients[account.ID]; exists {
		raced.cancel()
		raced.client.Stop()
	}
	s.clients[account.ID] = conn
	s.mu.Unlock()

	go s.run(conn)

	s.logger.Info("listener started", "account_id", account.ID, "email", account.Email)
	return nil
}

// run drains the inbox once, then watches for new mail until the
// connection drops or the listener is stopped.
func (s *Supervisor) run(conn *listenerConn) {
	s.drain(conn)

	err := conn.client.Idle(conn.ctx, func() {
		s.drain(conn)
	})

	s.unregister(conn)

	if err != nil && conn.ctx.Err() == nil {
		// Connection-level failure: come back after the configured delay.
		// A graceful stop does not reconnect; the periodic sync job is the
		// fallback path.
		s.logger.Warn("listener connection lost, scheduling reconnect",
			"account_id", conn.account.ID, "delay", s.reconnectDelay, "error", err)
		s.scheduleReconnect(conn)
	}
}

// scheduleReconnect re-establishes the account's connection after the
// configured delay, re-arming itself for as long as the attempts keep
// failing at the transport level. Stopping the account or the supervisor
// ends the loop.
func (s *Supervisor) scheduleReconnect(conn *listenerConn) {
	time.AfterFunc(s.reconnectDelay, func() {
		s.mu.Lock()
		skip := s.shutdown || s.halted[conn.account.ID] || conn.ctx.Err() != nil
		s.mu.Unlock()
		if skip {
			return
		}
		if err := s.Start(context.Background(), conn.account); err != nil {
			s.logger.Error("listener reconnect failed, retrying",
				"account_id", conn.account.ID, "delay", s.reconnectDelay, "error", err)
			s.scheduleReconnect(conn)
		}
	})
}

func (s *Supervisor) drain(conn *listenerConn) {
	ctx, cancel := context.WithTimeout(conn.ctx, s.drainTimeout)
	defer cancel()

	if _, err := s.receiver.Drain(ctx, conn.client, conn.account); err != nil {
		s.logger.Error("listener drain failed", "account_id", conn.account.ID, "error", err)
	}
}

// unregister removes the connection from the registry, but only if it is
// still the registered one: Start may already have replaced it.
func (s *Supervisor) unregister(conn *listenerConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, exists := s.clients[conn.account.ID]; exists && current == conn {
		delete(s.clients, conn.account.ID)
	}
}

// Stop tears down the account's listener connection, if any. A reconnect
// pending for the account is abandoned.
func (s *Supervisor) Stop(accountID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.halted[accountID] = true
	conn, exists := s.clients[accountID]
	if !exists {
		return
	}
	conn.cancel()
	conn.client.Stop()
	delete(s.clients, accountID)

	s.logger.Info("listener stopped", "account_id", accountID)
}

// StopAll tears down every listener connection and shuts the supervisor
// down for good, including reconnects still waiting on their delay.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shutdown = true
	for id, conn := range s.clients {
		conn.cancel()
		conn.client.Stop()
		delete(s.clients, id)
	}
	s.logger.Info("all listeners stopped")
}

// Status reports the connection state of an account's listener
func (s *Supervisor) Status(accountID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, exists := s.clients[accountID]
	if !exists {
		return "disconnected"
	}
	if conn.client.IsConnected() {
		return "connected"
	}
	return "reconnecting"
}

// RestoreAll starts listeners for all given accounts in parallel, used at
// process startup
func (s *Supervisor) RestoreAll(ctx context.Context, accounts []*models.MailAccount) {
	s.logger.Info("restoring listeners", "count", len(accounts))

	var wg sync.WaitGroup
	for _, account := range accounts {
		wg.Add(1)
		go func(acc *models.MailAccount) {
			defer wg.Done()
			if err := s.Start(ctx, acc); err != nil {
				s.logger.Error("failed to restore listener", "email", acc.Email, "error", err)
			}
		}(account)
	}
	wg.Wait()

	s.logger.Info("finished restoring listeners")
}
