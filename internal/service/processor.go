package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"authlog-service/internal/bucketing"
	"authlog-service/internal/config"
	"authlog-service/internal/device"
	"authlog-service/internal/fingerprint"
	"authlog-service/internal/geo"
	"authlog-service/internal/models"
	"authlog-service/internal/repository"
	"authlog-service/internal/util"
)

// AlertNotifier is the outbound notification contract the event pipeline
// depends on. Delivery failures are the implementation's problem; the
// pipeline never sees them.
type AlertNotifier interface {
	LoginAlert(ctx context.Context, record *models.AuthLog, suspicious bool)
	SessionHijackAlert(ctx context.Context, subject models.Subject, rc models.RequestContext)
}

// ActivityPublisher streams persisted records to downstream consumers.
// Publishing is best effort; a broker outage must not fail the event.
type ActivityPublisher interface {
	PublishActivity(ctx context.Context, record *models.AuthLog) error
}

// LoginResult is the outcome of processing a login event.
type LoginResult struct {
	// Record is nil when recording for logins is disabled.
	Record     *models.AuthLog `json:"record,omitempty"`
	Suspicious bool            `json:"suspicious"`
	// Blocked is non-nil when the login tripped the blocking rules.
	Blocked *models.BlockResponse `json:"blocked,omitempty"`
}

// EventProcessor is the core pipeline: it enriches incoming auth events,
// computes anomaly flags, persists records, and drives the reactive tail
// (blocking, notification, streaming, hooks).
type EventProcessor struct {
	config       *config.Config
	store        repository.ActivityStore
	fingerprints repository.FingerprintStore
	geoResolver  *geo.Resolver
	devices      *device.Parser
	engine       *fingerprint.Engine
	buckets      *bucketing.Manager
	limiter      *LoginRateLimiter
	hooks        *HookExecutor
	notifier     AlertNotifier
	publisher    ActivityPublisher
	blockHandler BlockHandler
	logger       *zap.Logger

	now func() time.Time
}

type ProcessorDeps struct {
	Config       *config.Config
	Store        repository.ActivityStore
	Fingerprints repository.FingerprintStore
	GeoResolver  *geo.Resolver
	Devices      *device.Parser
	Engine       *fingerprint.Engine
	Buckets      *bucketing.Manager
	Limiter      *LoginRateLimiter
	Hooks        *HookExecutor
	Notifier     AlertNotifier
	Publisher    ActivityPublisher
	BlockHandler BlockHandler
	Logger       *zap.Logger
}

func NewEventProcessor(deps ProcessorDeps) *EventProcessor {
	return &EventProcessor{
		config:       deps.Config,
		store:        deps.Store,
		fingerprints: deps.Fingerprints,
		geoResolver:  deps.GeoResolver,
		devices:      deps.Devices,
		engine:       deps.Engine,
		buckets:      deps.Buckets,
		limiter:      deps.Limiter,
		hooks:        deps.Hooks,
		notifier:     deps.Notifier,
		publisher:    deps.Publisher,
		blockHandler: deps.BlockHandler,
		logger:       deps.Logger,
		now:          time.Now,
	}
}

// HandleLogin processes a successful authentication. The identifier is the
// login credential the client presented (used only for clearing lockout
// state); it is never persisted.
func (p *EventProcessor) HandleLogin(ctx context.Context, subject models.Subject, identifier string, rc models.RequestContext) (*LoginResult, error) {
	if !p.config.Enabled || !p.config.LogEvents.Login {
		return &LoginResult{}, nil
	}

	record := p.newRecord(ctx, subject, rc, models.EventLogin)
	loginAt := record.CreatedAt
	record.LoginAt = &loginAt

	whitelisted := p.config.IsWhitelisted(rc.IP)
	if !whitelisted {
		if err := p.computeAnomalyFlags(ctx, record, subject, rc); err != nil {
			return nil, err
		}
	}

	if err := p.store.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}

	p.storeFingerprint(ctx, rc)
	p.clearLockoutOnSuccess(ctx, identifier, rc)

	result := &LoginResult{Record: record}
	result.Suspicious = IsSuspicious(record, p.config.Suspicion)

	if result.Suspicious && p.config.Suspicion.BlockEnabled && p.blockHandler != nil {
		result.Blocked = p.blockHandler(record)
		p.logger.Warn("suspicious login blocked",
			util.String("subject", subject.String()),
			util.String("ip", rc.IP),
			util.Bool("new_device", record.IsNewDevice),
			util.Bool("new_location", record.IsNewLocation))
		// A blocked login is not announced to the account holder and does
		// not run hooks; the record and the block outcome are the audit trail.
		p.publish(ctx, record)
		return result, nil
	}

	if p.notifier != nil && !whitelisted {
		if !p.config.Notification.OnlyOnSuspicious || result.Suspicious {
			p.notifier.LoginAlert(ctx, record, result.Suspicious)
		}
	}

	p.publish(ctx, record)
	p.hooks.Run(ctx, models.EventLogin, record)

	return result, nil
}

// HandleLogout closes the subject's open login record, if any. A logout
// with no matching open session is a no-op, not an error.
func (p *EventProcessor) HandleLogout(ctx context.Context, subject models.Subject, rc models.RequestContext) (*models.AuthLog, error) {
	if !p.config.Enabled || !p.config.LogEvents.Logout {
		return nil, nil
	}

	sessionID := ""
	if p.config.SessionTrack.Enabled {
		sessionID = rc.SessionID
	}

	record, err := p.store.FindOpenSession(ctx, subject, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find open session: %w", err)
	}

	if err := p.store.CloseSession(ctx, record, p.now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to record logout: %w", err)
	}

	if p.fingerprints != nil && record.SessionID != "" {
		if err := p.fingerprints.Delete(ctx, record.SessionID); err != nil {
			p.logger.Warn("failed to drop session fingerprint on logout",
				util.ErrorField(err))
		}
	}

	p.publish(ctx, record)
	p.hooks.Run(ctx, models.EventLogout, record)

	return record, nil
}

// HandleFailed processes a failed authentication attempt. When failed-login
// recording is disabled the call is a complete no-op: no record is written
// and no lockout state changes. The record carries no subject since no
// principal was authenticated.
func (p *EventProcessor) HandleFailed(ctx context.Context, identifier string, rc models.RequestContext) (*models.AuthLog, error) {
	if !p.config.Enabled || !p.config.LogEvents.FailedLogin {
		return nil, nil
	}

	if p.limiter != nil {
		key := p.limiter.ResolveIdentifier(rc.IP, identifier)
		if _, err := p.limiter.RegisterFailure(ctx, key); err != nil {
			p.logger.Error("failed to register login failure",
				util.String("ip", rc.IP),
				util.ErrorField(err))
		}
	}

	record := p.newRecord(ctx, models.Subject{}, rc, models.EventFailed)
	if err := p.store.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to record failed login: %w", err)
	}

	p.publish(ctx, record)
	p.hooks.Run(ctx, models.EventFailed, record)

	return record, nil
}

// HandlePasswordReset records a password reset for the subject. Anomaly
// flags are not computed for resets.
func (p *EventProcessor) HandlePasswordReset(ctx context.Context, subject models.Subject, rc models.RequestContext) (*models.AuthLog, error) {
	if !p.config.Enabled || !p.config.LogEvents.PasswordReset {
		return nil, nil
	}
	return p.recordPlainEvent(ctx, subject, rc, models.EventPasswordReset)
}

// HandleReAuthenticated records a re-authentication (password confirm,
// step-up) for the subject. Anomaly flags are not computed.
func (p *EventProcessor) HandleReAuthenticated(ctx context.Context, subject models.Subject, rc models.RequestContext) (*models.AuthLog, error) {
	if !p.config.Enabled || !p.config.LogEvents.ReAuthenticated {
		return nil, nil
	}
	return p.recordPlainEvent(ctx, subject, rc, models.EventReAuthenticated)
}

// PreAuthCheck evaluates a login attempt before credentials are verified.
// It returns a non-nil block response when the attempt would be flagged as
// suspicious for the claimed account. The evaluation is ephemeral: the
// record it builds is never persisted, so a blocked attempt cannot seed
// the subject's device or location history, and the guard never reveals
// whether the account exists.
func (p *EventProcessor) PreAuthCheck(ctx context.Context, subject models.Subject, rc models.RequestContext) (*models.BlockResponse, error) {
	if !p.config.Enabled || !p.config.Suspicion.BlockEnabled || p.blockHandler == nil {
		return nil, nil
	}
	if subject.IsZero() || p.config.IsWhitelisted(rc.IP) {
		return nil, nil
	}

	record := p.newRecord(ctx, subject, rc, models.EventFailed)
	if err := p.computeAnomalyFlags(ctx, record, subject, rc); err != nil {
		return nil, err
	}
	if !IsSuspicious(record, p.config.Suspicion) {
		return nil, nil
	}

	p.logger.Warn("suspicious login attempt blocked pre-auth",
		util.String("ip", rc.IP),
		util.Bool("new_device", record.IsNewDevice),
		util.Bool("new_location", record.IsNewLocation))

	return p.blockHandler(record), nil
}

// VerifySession checks the stored fingerprint for the request's session
// against the fingerprint derived from the request. It returns false only
// on a genuine mismatch; a session with no stored fingerprint passes.
func (p *EventProcessor) VerifySession(ctx context.Context, rc models.RequestContext) (bool, error) {
	if p.fingerprints == nil || rc.SessionID == "" {
		return true, nil
	}
	stored, err := p.fingerprints.Get(ctx, rc.SessionID)
	if err != nil {
		return false, fmt.Errorf("failed to load session fingerprint: %w", err)
	}
	if stored == "" {
		return true, nil
	}
	return p.engine.Matches(stored, rc), nil
}

// TerminateSession closes the session's open record and drops its stored
// fingerprint. Used by the hijack guard after a mismatch.
func (p *EventProcessor) TerminateSession(ctx context.Context, subject models.Subject, rc models.RequestContext) {
	if _, err := p.HandleLogout(ctx, subject, rc); err != nil {
		p.logger.Error("failed to terminate session",
			util.String("subject", subject.String()),
			util.ErrorField(err))
	}
	if p.fingerprints != nil && rc.SessionID != "" {
		if err := p.fingerprints.Delete(ctx, rc.SessionID); err != nil {
			p.logger.Warn("failed to flush session fingerprint",
				util.ErrorField(err))
		}
	}
}

// NotifyHijack fans a session-hijack alert out to the configured channels.
func (p *EventProcessor) NotifyHijack(ctx context.Context, subject models.Subject, rc models.RequestContext) {
	if p.notifier == nil {
		return
	}
	p.notifier.SessionHijackAlert(ctx, subject, rc)
}

// Limiter exposes the rate limiter for the HTTP guard layer.
func (p *EventProcessor) Limiter() *LoginRateLimiter {
	return p.limiter
}

// Store exposes the activity store for the history query endpoints.
func (p *EventProcessor) Store() repository.ActivityStore {
	return p.store
}

func (p *EventProcessor) recordPlainEvent(ctx context.Context, subject models.Subject, rc models.RequestContext, level models.EventLevel) (*models.AuthLog, error) {
	record := p.newRecord(ctx, subject, rc, level)
	if err := p.store.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to record %s event: %w", level, err)
	}

	p.publish(ctx, record)
	p.hooks.Run(ctx, level, record)

	return record, nil
}

// newRecord builds an enriched record. Geo and device enrichment failures
// are absorbed; an unenriched record is still worth keeping.
func (p *EventProcessor) newRecord(ctx context.Context, subject models.Subject, rc models.RequestContext, level models.EventLevel) *models.AuthLog {
	now := p.now().UTC()

	record := &models.AuthLog{
		ID:            uuid.New(),
		SubjectType:   subject.Type,
		SubjectID:     subject.ID,
		SubjectBucket: p.buckets.SubjectBucket(subject),
		IPAddress:     rc.IP,
		UserAgent:     rc.UserAgent,
		Referrer:      rc.Referrer,
		SessionID:     rc.SessionID,
		EventLevel:    level,
		CreatedAt:     now,
	}

	info := p.devices.Parse(rc.UserAgent)
	record.Browser = info.Browser
	record.Platform = info.Platform
	record.Device = info.Device
	record.IsMobile = info.IsMobile

	if p.geoResolver != nil && rc.IP != "" {
		location := p.geoResolver.Resolve(ctx, rc.IP)
		if !location.Failed {
			record.Country = location.Country
			record.City = location.City
			record.Location = location.Summary()
		}
		record.Metadata = location.Metadata()
	}

	return record
}

// computeAnomalyFlags marks the record as new-device or new-location based
// on the subject's prior history. Both checks run before the record is
// persisted so the record itself never matches.
func (p *EventProcessor) computeAnomalyFlags(ctx context.Context, record *models.AuthLog, subject models.Subject, rc models.RequestContext) error {
	if subject.IsZero() {
		return nil
	}

	if rc.UserAgent != "" {
		seen, err := p.store.ExistsForSubject(ctx, subject, repository.AttrUserAgent, rc.UserAgent)
		if err != nil {
			return fmt.Errorf("failed to check device history: %w", err)
		}
		record.IsNewDevice = !seen
	}

	if rc.IP != "" {
		seen, err := p.store.ExistsForSubject(ctx, subject, repository.AttrIPAddress, rc.IP)
		if err != nil {
			return fmt.Errorf("failed to check location history: %w", err)
		}
		record.IsNewLocation = !seen
	}

	return nil
}

func (p *EventProcessor) storeFingerprint(ctx context.Context, rc models.RequestContext) {
	if !p.config.SessionTrack.Enabled || p.fingerprints == nil || rc.SessionID == "" {
		return
	}
	fp := p.engine.Generate(rc)
	if err := p.fingerprints.Save(ctx, rc.SessionID, fp, p.config.SessionTrack.FingerprintTTL); err != nil {
		p.logger.Warn("failed to store session fingerprint",
			util.ErrorField(err))
	}
}

func (p *EventProcessor) clearLockoutOnSuccess(ctx context.Context, identifier string, rc models.RequestContext) {
	if p.limiter == nil || !p.config.Lockout.ClearOnSuccess {
		return
	}
	key := p.limiter.ResolveIdentifier(rc.IP, identifier)
	if err := p.limiter.Clear(ctx, key); err != nil {
		p.logger.Warn("failed to clear lockout state after login",
			util.ErrorField(err))
	}
}

func (p *EventProcessor) publish(ctx context.Context, record *models.AuthLog) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishActivity(ctx, record); err != nil {
		p.logger.Warn("failed to publish activity record",
			util.String("event", string(record.EventLevel)),
			util.ErrorField(err))
	}
}
