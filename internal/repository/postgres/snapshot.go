package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"recurring-billing-backend/internal/domain"
	"recurring-billing-backend/internal/logger"
	"recurring-billing-backend/internal/repository"
	"recurring-billing-backend/internal/utils"
)

var errSnapshotClosed = errors.New("snapshot closed")

var snapshotTxOptions = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}

// BeginSnapshot opens a REPEATABLE READ READ ONLY leader transaction and
// exports its snapshot. Ledger lookups run on follower transactions that
// import the same snapshot, so every query of a report sees the same
// committed state no matter which connection serves it.
//
// ctx bounds the lifetime of the snapshot's transactions, not a single query.
func (s *Store) BeginSnapshot(ctx context.Context) (repository.AgingSnapshot, error) {
	leader, err := s.db.BeginTx(ctx, snapshotTxOptions)
	if err != nil {
		return nil, fmt.Errorf("%w: begin snapshot: %v", repository.ErrStoreUnavailable, err)
	}

	var id string
	logger.DatabaseCall("export_snapshot", "SELECT pg_export_snapshot()")
	if err := leader.QueryRowContext(ctx, "SELECT pg_export_snapshot()").Scan(&id); err != nil {
		logger.DatabaseResult("export_snapshot", 0, err)
		_ = leader.Rollback()
		return nil, fmt.Errorf("%w: export snapshot: %v", repository.ErrStoreUnavailable, err)
	}
	logger.DatabaseResult("export_snapshot", 1, nil, "snapshot_id", id)

	return &snapshot{
		ctx:       ctx,
		db:        s.db,
		leader:    leader,
		id:        id,
		idle:      make(chan *follower, s.maxFollowers),
		slots:     make(chan struct{}, s.maxFollowers),
		followers: make(map[*follower]struct{}, s.maxFollowers),
	}, nil
}

type snapshot struct {
	ctx    context.Context
	db     *sql.DB
	leader *sql.Tx
	id     string

	idle  chan *follower // followers ready for a query
	slots chan struct{}  // one token per open follower, bounded by maxFollowers

	mu        sync.Mutex
	followers map[*follower]struct{}
	closed    bool
}

// follower is a transaction that imported the leader's snapshot, pinned to
// its own pool connection.
type follower struct {
	conn *sql.Conn
	tx   *sql.Tx
}

func (f *follower) close() {
	_ = f.tx.Rollback()
	_ = f.conn.Close()
}

func (sn *snapshot) ListActiveDueBy(ctx context.Context, asOf utils.Date, scheduleType domain.ScheduleType) ([]domain.ScheduleAccount, error) {
	return listActiveDueBy(ctx, sn.leader, asOf, scheduleType)
}

func (sn *snapshot) SumPaymentsInWindow(ctx context.Context, orderID uuid.UUID, start, endExclusive time.Time) (int64, error) {
	f, err := sn.acquire(ctx)
	if err != nil {
		return 0, err
	}

	paid, err := sumPaymentsInWindow(ctx, f.tx, orderID, start, endExclusive)
	if err != nil {
		// A failed or cancelled statement aborts the transaction; it cannot be reused.
		sn.discard(f)
		return 0, err
	}
	sn.release(f)
	return paid, nil
}

// acquire returns an idle follower, opens a new one while under the limit,
// or waits for one to be released. Every wait, including the wait for a
// pool connection, is bounded by ctx.
func (sn *snapshot) acquire(ctx context.Context) (*follower, error) {
	if sn.isClosed() {
		return nil, errSnapshotClosed
	}

	select {
	case f := <-sn.idle:
		return f, nil
	default:
	}

	select {
	case f := <-sn.idle:
		return f, nil
	case sn.slots <- struct{}{}:
		f, err := sn.openFollower(ctx)
		if err != nil {
			<-sn.slots
			return nil, err
		}
		sn.mu.Lock()
		defer sn.mu.Unlock()
		if sn.closed {
			f.close()
			<-sn.slots
			return nil, errSnapshotClosed
		}
		sn.followers[f] = struct{}{}
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (sn *snapshot) isClosed() bool {
	sn.mu.Lock()
	defer sn.mu.Unlock()
	return sn.closed
}

// openFollower waits for a pool connection under ctx, then begins a
// transaction that lives as long as the snapshot.
func (sn *snapshot) openFollower(ctx context.Context) (*follower, error) {
	conn, err := sn.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("follower connection: %w", err)
	}
	tx, err := conn.BeginTx(sn.ctx, snapshotTxOptions)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("begin follower: %w", err)
	}
	f := &follower{conn: conn, tx: tx}

	stmt := "SET TRANSACTION SNAPSHOT " + pq.QuoteLiteral(sn.id)
	logger.DatabaseCall("import_snapshot", stmt)
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		logger.DatabaseResult("import_snapshot", 0, err)
		f.close()
		return nil, fmt.Errorf("import snapshot %s: %w", sn.id, err)
	}
	logger.DatabaseResult("import_snapshot", 0, nil)
	return f, nil
}

func (sn *snapshot) release(f *follower) {
	if sn.isClosed() {
		f.close()
		return
	}
	sn.idle <- f
}

func (sn *snapshot) discard(f *follower) {
	sn.mu.Lock()
	delete(sn.followers, f)
	sn.mu.Unlock()
	f.close()
	<-sn.slots
}

// Close ends every follower and the leader. Read-only transactions are
// rolled back; nothing was written.
func (sn *snapshot) Close() error {
	sn.mu.Lock()
	if sn.closed {
		sn.mu.Unlock()
		return nil
	}
	sn.closed = true
	followers := sn.followers
	sn.followers = nil
	sn.mu.Unlock()

	for f := range followers {
		f.close()
	}
	err := sn.leader.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}
