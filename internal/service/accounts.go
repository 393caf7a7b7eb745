package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/tidycrm/mailsync/internal/database"
	"github.com/tidycrm/mailsync/internal/mailbox"
	"github.com/tidycrm/mailsync/pkg/models"
)

// syncScheduler is the slice of the job queue the facade drives.
type syncScheduler interface {
	Enqueue(accountID int64) string
	ScheduleRecurring(accountID int64, every time.Duration)
	Cancel(accountID int64)
}

// listenerControl is the slice of the mailbox supervisor the facade drives.
type listenerControl interface {
	Start(ctx context.Context, account *models.MailAccount) error
	Stop(accountID int64)
	Status(accountID int64) string
}

// outboundChecker verifies outbound parameters without sending anything.
type outboundChecker interface {
	Check(account *models.MailAccount) error
}

// AccountParams carries everything needed to connect a mailbox.
type AccountParams struct {
	DisplayName  string
	Email        string
	IMAPHost     string
	IMAPPort     int
	IMAPSecurity models.SecurityMode
	IMAPUsername string
	IMAPPassword string
	SMTPHost     string
	SMTPPort     int
	SMTPSecurity models.SecurityMode
	SMTPUsername string
	SMTPPassword string
	IsActive     bool
	IsPrimary    bool
	SyncMinutes  int
}

// AccountUpdate is a partial update; nil fields keep their current value.
type AccountUpdate struct {
	DisplayName  *string
	IMAPHost     *string
	IMAPPort     *int
	IMAPSecurity *models.SecurityMode
	IMAPUsername *string
	IMAPPassword *string
	SMTPHost     *string
	SMTPPort     *int
	SMTPSecurity *models.SecurityMode
	SMTPUsername *string
	SMTPPassword *string
	IsActive     *bool
	IsPrimary    *bool
	SyncMinutes  *int
}

// ConnectionCheck is the outcome of probing both servers.
type ConnectionCheck struct {
	InboundOK   bool
	InboundErr  string
	OutboundOK  bool
	OutboundErr string
}

// AccountService manages mail accounts and keeps the scheduler and the
// mailbox listeners in step with their activation state.
type AccountService struct {
	db          *database.DB
	queue       syncScheduler
	listeners   listenerControl
	smtp        outboundChecker
	dialTimeout time.Duration
	logger      *slog.Logger
}

// AccountServiceDeps bundles the dependencies of AccountService.
type AccountServiceDeps struct {
	DB          *database.DB
	Queue       syncScheduler
	Listeners   listenerControl
	SMTP        outboundChecker
	DialTimeout time.Duration
	Logger      *slog.Logger
}

// NewAccountService creates an AccountService
func NewAccountService(deps AccountServiceDeps) *AccountService {
	return &AccountService{
		db:          deps.DB,
		queue:       deps.Queue,
		listeners:   deps.Listeners,
		smtp:        deps.SMTP,
		dialTimeout: deps.DialTimeout,
		logger:      deps.Logger.With("component", "account_service"),
	}
}

// List returns the owner's accounts.
func (s *AccountService) List(ctx context.Context, ownerID int64) ([]*models.MailAccount, error) {
	accounts, err := s.db.GetAccountsByOwner(ctx, ownerID)
	if err != nil {
		return nil, internalErr("failed to list accounts", err)
	}
	return accounts, nil
}

// Get returns one account by id.
func (s *AccountService) Get(ctx context.Context, id int64) (*models.MailAccount, error) {
	account, err := s.db.GetAccountByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, notFoundErr("account")
	}
	if err != nil {
		return nil, internalErr("failed to load account", err)
	}
	return account, nil
}

// Create validates the parameters, stores the account and, when it is
// active, installs its recurring sync job and starts its listener. No
// network attempt happens before validation passes.
func (s *AccountService) Create(ctx context.Context, ownerID int64, params AccountParams) (*models.MailAccount, error) {
	if err := validateParams(&params); err != nil {
		return nil, err
	}

	account := &models.MailAccount{
		OwnerID:      ownerID,
		DisplayName:  params.DisplayName,
		Email:        strings.ToLower(strings.TrimSpace(params.Email)),
		IMAPHost:     params.IMAPHost,
		IMAPPort:     params.IMAPPort,
		IMAPSecurity: params.IMAPSecurity,
		IMAPUsername: params.IMAPUsername,
		IMAPPassword: params.IMAPPassword,
		SMTPHost:     params.SMTPHost,
		SMTPPort:     params.SMTPPort,
		SMTPSecurity: params.SMTPSecurity,
		SMTPUsername: params.SMTPUsername,
		SMTPPassword: params.SMTPPassword,
		IsActive:     params.IsActive,
		IsPrimary:    params.IsPrimary,
		SyncMinutes:  params.SyncMinutes,
	}

	if account.IsPrimary {
		if err := s.db.ClearPrimaryAccount(ctx, ownerID); err != nil {
			return nil, internalErr("failed to clear previous primary account", err)
		}
	}
	if err := s.db.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			return nil, validationErr("email", "an account with this address already exists")
		}
		return nil, internalErr("failed to create account", err)
	}

	if account.IsActive {
		s.activate(ctx, account)
	}

	s.logger.Info("account created",
		"account_id", account.ID, "owner_id", ownerID, "email", account.Email, "active", account.IsActive)
	return account, nil
}

// Update applies a partial update. When the activation state flips, the
// scheduler and the listener follow.
func (s *AccountService) Update(ctx context.Context, id int64, upd AccountUpdate) (*models.MailAccount, error) {
	account, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	wasActive := account.IsActive

	applyUpdate(account, upd)

	params := paramsOf(account)
	if err := validateParams(&params); err != nil {
		return nil, err
	}

	if account.IsPrimary {
		if err := s.db.ClearPrimaryAccount(ctx, account.OwnerID); err != nil {
			return nil, internalErr("failed to clear previous primary account", err)
		}
	}
	if err := s.db.UpdateAccount(ctx, account); err != nil {
		return nil, internalErr("failed to update account", err)
	}

	switch {
	case account.IsActive && !wasActive:
		s.activate(ctx, account)
	case !account.IsActive && wasActive:
		s.deactivate(account.ID)
	case account.IsActive:
		// Connection parameters or interval may have changed.
		s.queue.ScheduleRecurring(account.ID, syncInterval(account))
		if err := s.listeners.Start(ctx, account); err != nil {
			s.logger.Warn("listener restart failed", "account_id", account.ID, "error", err)
		}
	}

	s.logger.Info("account updated", "account_id", account.ID, "active", account.IsActive)
	return account, nil
}

// Delete removes the account and its emails, and tears down its job and
// listener first.
func (s *AccountService) Delete(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	s.deactivate(id)
	if err := s.db.DeleteAccount(ctx, id); err != nil {
		return internalErr("failed to delete account", err)
	}

	s.logger.Info("account deleted", "account_id", id)
	return nil
}

// TestConnection probes both servers with the given parameters. Nothing
// is persisted; both probes run even when the first one fails.
func (s *AccountService) TestConnection(ctx context.Context, params AccountParams) (*ConnectionCheck, error) {
	if err := validateParams(&params); err != nil {
		return nil, err
	}

	probe := &models.MailAccount{
		Email:        params.Email,
		IMAPHost:     params.IMAPHost,
		IMAPPort:     params.IMAPPort,
		IMAPSecurity: params.IMAPSecurity,
		IMAPUsername: params.IMAPUsername,
		IMAPPassword: params.IMAPPassword,
		SMTPHost:     params.SMTPHost,
		SMTPPort:     params.SMTPPort,
		SMTPSecurity: params.SMTPSecurity,
		SMTPUsername: params.SMTPUsername,
		SMTPPassword: params.SMTPPassword,
		IsActive:     true,
	}

	check := &ConnectionCheck{InboundOK: true, OutboundOK: true}
	if err := mailbox.Check(ctx, probe, s.dialTimeout, s.logger); err != nil {
		check.InboundOK = false
		check.InboundErr = err.Error()
	}
	if err := s.smtp.Check(probe); err != nil {
		check.OutboundOK = false
		check.OutboundErr = err.Error()
	}
	return check, nil
}

// ListenerStatus reports the listener connection state for an account.
func (s *AccountService) ListenerStatus(accountID int64) string {
	return s.listeners.Status(accountID)
}

func (s *AccountService) activate(ctx context.Context, account *models.MailAccount) {
	s.queue.ScheduleRecurring(account.ID, syncInterval(account))
	if err := s.listeners.Start(ctx, account); err != nil {
		// The listener reconnects on its own; the recurring job still runs.
		s.logger.Warn("listener start failed", "account_id", account.ID, "error", err)
	}
}

func (s *AccountService) deactivate(accountID int64) {
	s.queue.Cancel(accountID)
	s.listeners.Stop(accountID)
}

func syncInterval(account *models.MailAccount) time.Duration {
	return time.Duration(account.SyncMinutes) * time.Minute
}

func validateParams(p *AccountParams) error {
	email := strings.TrimSpace(p.Email)
	if email == "" {
		return validationErr("email", "is required")
	}
	if !strings.Contains(email, "@") || strings.HasPrefix(email, "@") || strings.HasSuffix(email, "@") {
		return validationErr("email", "is not a valid address")
	}
	if p.IMAPHost == "" {
		return validationErr("imap_host", "is required")
	}
	if p.IMAPPort < 1 || p.IMAPPort > 65535 {
		return validationErr("imap_port", "must be between 1 and 65535")
	}
	if !p.IMAPSecurity.Valid() {
		return validationErr("imap_security", "must be one of tls, starttls, none")
	}
	if p.IMAPUsername == "" {
		return validationErr("imap_username", "is required")
	}
	if p.IMAPPassword == "" {
		return validationErr("imap_password", "is required")
	}
	if p.SMTPHost == "" {
		return validationErr("smtp_host", "is required")
	}
	if p.SMTPPort < 1 || p.SMTPPort > 65535 {
		return validationErr("smtp_port", "must be between 1 and 65535")
	}
	if !p.SMTPSecurity.Valid() {
		return validationErr("smtp_security", "must be one of tls, starttls, none")
	}
	if p.SyncMinutes < 1 {
		return validationErr("sync_minutes", "must be at least 1")
	}
	return nil
}

func applyUpdate(a *models.MailAccount, upd AccountUpdate) {
	if upd.DisplayName != nil {
		a.DisplayName = *upd.DisplayName
	}
	if upd.IMAPHost != nil {
		a.IMAPHost = *upd.IMAPHost
	}
	if upd.IMAPPort != nil {
		a.IMAPPort = *upd.IMAPPort
	}
	if upd.IMAPSecurity != nil {
		a.IMAPSecurity = *upd.IMAPSecurity
	}
	if upd.IMAPUsername != nil {
		a.IMAPUsername = *upd.IMAPUsername
	}
	if upd.IMAPPassword != nil {
		a.IMAPPassword = *upd.IMAPPassword
	}
	if upd.SMTPHost != nil {
		a.SMTPHost = *upd.SMTPHost
	}
	if upd.SMTPPort != nil {
		a.SMTPPort = *upd.SMTPPort
	}
	if upd.SMTPSecurity != nil {
		a.SMTPSecurity = *upd.SMTPSecurity
	}
	if upd.SMTPUsername != nil {
		a.SMTPUsername = *upd.SMTPUsername
	}
	if upd.SMTPPassword != nil {
		a.SMTPPassword = *upd.SMTPPassword
	}
	if upd.IsActive != nil {
		a.IsActive = *upd.IsActive
	}
	if upd.IsPrimary != nil {
		a.IsPrimary = *upd.IsPrimary
	}
	if upd.SyncMinutes != nil {
		a.SyncMinutes = *upd.SyncMinutes
	}
}

func paramsOf(a *models.MailAccount) AccountParams {
	return AccountParams{
		DisplayName:  a.DisplayName,
		Email:        a.Email,
		IMAPHost:     a.IMAPHost,
		IMAPPort:     a.IMAPPort,
		IMAPSecurity: a.IMAPSecurity,
		IMAPUsername: a.IMAPUsername,
		IMAPPassword: a.IMAPPassword,
		SMTPHost:     a.SMTPHost,
		SMTPPort:     a.SMTPPort,
		SMTPSecurity: a.SMTPSecurity,
		SMTPUsername: a.SMTPUsername,
		SMTPPassword: a.SMTPPassword,
		IsActive:     a.IsActive,
		IsPrimary:    a.IsPrimary,
		SyncMinutes:  a.SyncMinutes,
	}
}
