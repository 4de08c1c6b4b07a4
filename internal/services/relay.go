package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/google/uuid"
	"github.com/samber/do"
	"github.com/uptrace/bun"

	"pulsepay/internal/chain"
	"pulsepay/internal/datastore"
	"pulsepay/internal/datastore/redis_store"
	"pulsepay/internal/interfaces"
	"pulsepay/internal/models"
	"pulsepay/internal/qr"
	"pulsepay/internal/relay"

	"github.com/go-redis/redis_rate/v10"
)

var (
	ErrNoPendingApproval = errors.New("no transaction awaiting approval")
	// ErrStaleApproval means the approval id no longer matches the staged
	// session; the buttons the user tapped belong to a superseded payload.
	ErrStaleApproval = errors.New("approval no longer valid")
	ErrRelayLocked   = errors.New("relay already in progress")
)

const (
	defaultApprovalTTL   = 10 * time.Minute
	defaultSubmitTimeout = 2 * time.Minute
	historyPageSize      = 10
)

var scanRateLimit = redis_rate.Limit{Rate: 10, Period: time.Minute, Burst: 10}

// SessionStore is the staging area for decoded-but-unapproved payloads.
type SessionStore interface {
	Get(ctx context.Context, userID int64) (*models.RelaySession, error)
	Put(ctx context.Context, session *models.RelaySession, ttl time.Duration) error
	Delete(ctx context.Context, userID int64) error
}

// SubmitOutcome is what the bot reports back after an approval runs.
type SubmitOutcome struct {
	State    models.RelayState
	Hash     string
	VMStatus string
	// Unknown marks a broadcast whose fate could not be confirmed in time;
	// the hash is still valid for a later lookup.
	Unknown bool
}

type ServiceRelay struct {
	container *do.Injector

	chain      chain.Client
	sessions   SessionStore
	rs         *redsync.Redsync
	postgresDB *bun.DB
	limiter    interfaces.Limiter

	approvalTTL   time.Duration
	submitTimeout time.Duration
}

func NewServiceRelay(container *do.Injector) (*ServiceRelay, error) {
	chainClient, err := do.Invoke[chain.Client](container)
	if err != nil {
		return nil, err
	}

	sessions, err := do.Invoke[*redis_store.SessionStore](container)
	if err != nil {
		return nil, err
	}

	rs, err := do.Invoke[*redsync.Redsync](container)
	if err != nil {
		return nil, err
	}

	postgresDB, err := do.Invoke[*bun.DB](container)
	if err != nil {
		return nil, err
	}

	limiter, err := do.Invoke[interfaces.Limiter](container)
	if err != nil {
		return nil, err
	}

	return &ServiceRelay{
		container:     container,
		chain:         chainClient,
		sessions:      sessions,
		rs:            rs,
		postgresDB:    postgresDB,
		limiter:       limiter,
		approvalTTL:   defaultApprovalTTL,
		submitTimeout: defaultSubmitTimeout,
	}, nil
}

// HandleImage runs the scan half of the pipeline: photo bytes in, a staged
// session awaiting approval out. Scan failures leave the session where it
// was so the user can retry with a clearer photo.
func (service *ServiceRelay) HandleImage(ctx context.Context, userID int64, img []byte) (*models.RelaySession, error) {
	if service.limiter != nil {
		if err := service.limiter.Allow(ctx, dbKeyRateLimitScan(userID), scanRateLimit); err != nil {
			return nil, err
		}
	}

	session := models.NewRelaySession(userID)
	if err := session.Apply(models.EventImageReceived); err != nil {
		return nil, err
	}

	token, err := qr.Scan(img)
	if err != nil {
		_ = session.Apply(models.EventScanFailed)
		return session, err
	}
	if err := session.Apply(models.EventScanned); err != nil {
		return nil, err
	}

	payload, err := relay.Decode(token)
	if err != nil {
		_ = session.Apply(models.EventDecodeFailed)
		return session, err
	}
	if err := relay.Verify(payload); err != nil {
		_ = session.Apply(models.EventDecodeFailed)
		return session, err
	}

	summary := relay.Summarize(payload)
	if summary == nil {
		_ = session.Apply(models.EventDecodeFailed)
		return session, relay.ErrExtractionFailed
	}

	if err := session.Apply(models.EventDecoded); err != nil {
		return nil, err
	}

	session.ApprovalID = uuid.NewString()
	session.Token = token
	session.Summary = models.SessionSummary{
		Kind:       string(summary.Kind),
		Sender:     summary.Sender,
		Recipient:  summary.Recipient,
		Amount:     summary.Amount,
		FunctionID: summary.FunctionID,
	}
	if summary.AmountOctas != nil {
		session.Summary.AmountOctas = summary.AmountOctas.String()
	}

	if err := service.sessions.Put(ctx, session, service.approvalTTL); err != nil {
		return nil, err
	}
	return session, nil
}

// Approve submits the staged payload identified by approvalID. The payload is
// re-decoded from the staged token, so what was summarized is exactly what
// goes on the wire.
func (service *ServiceRelay) Approve(ctx context.Context, userID int64, approvalID string) (*SubmitOutcome, error) {
	session, err := service.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if session == nil || session.State != models.StateAwaitingApproval {
		return nil, ErrNoPendingApproval
	}
	if session.ApprovalID != approvalID {
		return nil, ErrStaleApproval
	}

	if service.rs != nil {
		mutex := service.rs.NewMutex(dbKeyRelaySubmitLock(userID), redsync.WithExpiry(service.submitTimeout+30*time.Second))
		if err := mutex.TryLockContext(ctx); err != nil {
			return nil, classifyLockErr(err)
		}
		defer func() {
			_, _ = mutex.UnlockContext(ctx)
		}()
	}

	payload, err := relay.Decode(session.Token)
	if err != nil {
		return nil, err
	}

	if err := session.Apply(models.EventApproved); err != nil {
		return nil, err
	}
	_ = service.sessions.Put(ctx, session, service.approvalTTL)

	submitCtx, cancel := context.WithTimeout(ctx, service.submitTimeout)
	defer cancel()

	submitted, err := service.chain.Submit(submitCtx, payload)
	if err != nil {
		_ = session.Apply(models.EventSubmitFailed)
		_ = service.sessions.Delete(ctx, userID)
		if errors.Is(err, chain.ErrBroadcastTimeout) {
			// the request was in flight when the deadline hit; the node may
			// have accepted it, so this is an unknown outcome with no hash
			service.logOutcome(ctx, session, "", models.RelayStatusUnknown, err.Error())
			return &SubmitOutcome{State: session.State, Unknown: true}, nil
		}
		service.logOutcome(ctx, session, "", models.RelayStatusFailure, err.Error())
		return &SubmitOutcome{State: session.State}, err
	}

	logRow := service.logOutcome(ctx, session, submitted.Hash, models.RelayStatusSubmitted, "")

	final, err := service.chain.AwaitFinality(submitCtx, submitted.Hash)
	if err != nil {
		// The broadcast went out; without confirmation the outcome stays
		// unknown and the cron recheck settles it later.
		_ = session.Apply(models.EventSubmitFailed)
		_ = service.sessions.Delete(ctx, userID)
		service.updateOutcome(ctx, logRow, models.RelayStatusUnknown, err.Error())
		return &SubmitOutcome{State: session.State, Hash: submitted.Hash, Unknown: true}, nil
	}

	outcome := &SubmitOutcome{Hash: final.Hash, VMStatus: final.VMStatus}
	if final.Success {
		_ = session.Apply(models.EventSubmitSucceeded)
		service.updateOutcome(ctx, logRow, models.RelayStatusSuccess, final.VMStatus)
	} else {
		_ = session.Apply(models.EventSubmitFailed)
		service.updateOutcome(ctx, logRow, models.RelayStatusFailure, final.VMStatus)
	}
	outcome.State = session.State
	_ = service.sessions.Delete(ctx, userID)
	return outcome, nil
}

// Cancel discards the staged payload. Cancelling with nothing staged is not
// an error; the answer is the same either way.
func (service *ServiceRelay) Cancel(ctx context.Context, userID int64) (*models.RelaySession, error) {
	session, err := service.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}
	if session.State == models.StateAwaitingApproval {
		_ = session.Apply(models.EventCancelled)
	}
	if err := service.sessions.Delete(ctx, userID); err != nil {
		return nil, err
	}
	return session, nil
}

func (service *ServiceRelay) Pending(ctx context.Context, userID int64) (*models.RelaySession, error) {
	return service.sessions.Get(ctx, userID)
}

func (service *ServiceRelay) History(ctx context.Context, userID int64) ([]models.RelayLog, error) {
	if service.postgresDB == nil {
		return nil, nil
	}
	return datastore.ListRelayLogsByUser(ctx, service.postgresDB, userID, historyPageSize)
}

func (service *ServiceRelay) logOutcome(ctx context.Context, session *models.RelaySession, hash, status, detail string) *models.RelayLog {
	if service.postgresDB == nil {
		return nil
	}
	row := &models.RelayLog{
		UserID:      session.UserID,
		TxHash:      hash,
		Sender:      session.Summary.Sender,
		Recipient:   session.Summary.Recipient,
		AmountOctas: session.Summary.AmountOctas,
		FunctionID:  session.Summary.FunctionID,
		Status:      status,
		Detail:      detail,
	}
	inserted, err := datastore.InsertRelayLog(ctx, service.postgresDB, row)
	if err != nil {
		return nil
	}
	return inserted
}

func (service *ServiceRelay) updateOutcome(ctx context.Context, row *models.RelayLog, status, detail string) {
	if service.postgresDB == nil || row == nil {
		return
	}
	_ = datastore.UpdateRelayLogStatus(ctx, service.postgresDB, row.ID, status, detail)
}

// classifyLockErr keeps "already in progress" for genuine lock contention
// only; redis transport failures surface as themselves so the user is not
// told a broadcast is running when none is.
func classifyLockErr(err error) error {
	var taken *redsync.ErrTaken
	if errors.As(err, &taken) {
		return ErrRelayLocked
	}
	var nodeTaken *redsync.ErrNodeTaken
	if errors.As(err, &nodeTaken) {
		return ErrRelayLocked
	}
	return err
}

func dbKeyRateLimitScan(userID int64) string {
	return fmt.Sprintf("relay:ratelimit:scan:%d", userID)
}

func dbKeyRelaySubmitLock(userID int64) string {
	return fmt.Sprintf("relay:lock:submit:%d", userID)
}

// MemorySessionStore keeps sessions in process memory. It backs single-node
// deployments and tests; production wires the redis store instead.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[int64]*models.RelaySession
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: map[int64]*models.RelaySession{}}
}

func (s *MemorySessionStore) Get(_ context.Context, userID int64) (*models.RelaySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[userID]
	if !ok {
		return nil, nil
	}
	copied := *session
	return &copied, nil
}

func (s *MemorySessionStore) Put(_ context.Context, session *models.RelaySession, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	s.sessions[session.UserID] = &copied
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}
