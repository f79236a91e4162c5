package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"swapguard/internal/config"
	"swapguard/internal/domain"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"gitlab.com/nevasik7/alerting/logger"
)

var ErrWriterClosed = errors.New("clickhouse writer closed")

// EventRow is one hook_events row; 256-bit values are sent as decimal strings
type EventRow struct {
	EventTime  time.Time
	Kind       string
	PoolID     string
	Account    string
	Hash       string
	Price      string
	Amount     string
	Volatility uint64
	Slippage   uint64
	Index      uint64
	Executed   uint64
	Failed     uint64
	Authorized bool // convert to UInt8
	Reason     string
	RunID      string
	Timestamp  uint64
}

func RowFromEvent(ev domain.Event, at time.Time) EventRow {
	row := EventRow{
		EventTime:  at.UTC(),
		Kind:       string(ev.Kind),
		PoolID:     ev.PoolID.Hex(),
		Account:    ev.Account.Hex(),
		Hash:       ev.Hash.Hex(),
		Volatility: ev.Volatility,
		Slippage:   ev.Slippage,
		Index:      ev.Index,
		Executed:   ev.Executed,
		Failed:     ev.Failed,
		Authorized: ev.Authorized,
		Reason:     ev.Reason,
		RunID:      ev.RunID,
		Timestamp:  ev.Timestamp,
	}
	if ev.Price != nil {
		row.Price = ev.Price.Dec()
	}
	if ev.Amount != nil {
		row.Amount = ev.Amount.String()
	}
	return row
}

type insertFunc func(ctx context.Context, rows []EventRow) error

// Writer batches rows in the background and flushes on size or interval
type Writer struct {
	log    logger.Logger
	conn   ch.Conn
	cfg    config.ClickHouseWriterConfig
	table  string
	insert insertFunc

	mu     sync.RWMutex
	closed bool
	inCh   chan EventRow
	wg     sync.WaitGroup
}

func NewWriter(log logger.Logger, cfg *config.ClickHouseConfig, conn *Conn) (*Writer, error) {
	if cfg == nil {
		return nil, errors.New("clickhouse config is required to the writer")
	}
	if conn == nil {
		return nil, errors.New("clickhouse conn is required to the writer")
	}

	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid clickhouse table name %q", table)
	}

	w := newWriter(log, cfg.Writer, nil)
	w.conn = conn.Native
	w.table = table
	w.insert = w.insertBatch
	w.start()
	return w, nil
}

func newWriter(log logger.Logger, cfg config.ClickHouseWriterConfig, insert insertFunc) *Writer {
	// sane defaults
	if cfg.BatchMaxRows <= 0 {
		cfg.BatchMaxRows = 1000
	}
	if cfg.BatchMaxInterval <= 0 {
		cfg.BatchMaxInterval = 200 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}

	return &Writer{
		log:    log,
		cfg:    cfg,
		insert: insert,
		inCh:   make(chan EventRow, 8192),
	}
}

func (w *Writer) start() {
	w.wg.Add(1)
	go w.loop()
}

// Enqueue blocks while the buffer is full
func (w *Writer) Enqueue(row EventRow) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWriterClosed
	}
	w.inCh <- row
	return nil
}

// Emit makes the writer an outbound signal sink. It never blocks the hook: a full buffer drops the row.
func (w *Writer) Emit(_ context.Context, ev domain.Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	select {
	case w.inCh <- RowFromEvent(ev, time.Now()):
	default:
		w.log.Warnf("ClickHouse buffer full, dropping signal kind=%s pool=%s", ev.Kind, ev.PoolID.Hex())
	}
}

// Close flushes what is buffered and stops the loop
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.inCh)
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) loop() {
	defer w.wg.Done()

	batch := make([]EventRow, 0, w.cfg.BatchMaxRows)
	ticker := time.NewTicker(w.cfg.BatchMaxInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := w.withRetry(func() error { return w.insert(context.Background(), batch) }); err != nil {
			w.log.Errorf("Failed insert [%d] rows by batch to clickhouse, error=%v", len(batch), err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case row, ok := <-w.inCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, row)
			if len(batch) >= w.cfg.BatchMaxRows {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// withRetry repeats fn with exponential delay
func (w *Writer) withRetry(fn func() error) error {
	backoff := w.cfg.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt == w.cfg.MaxRetries {
			break
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	return lastErr
}

func (w *Writer) insertBatch(ctx context.Context, rows []EventRow) error {
	batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO "+w.table+
		" (event_time, kind, pool_id, account, hash, price, amount, volatility, slippage, idx, executed, failed, authorized, reason, run_id, ts)")
	if err != nil {
		return err
	}

	for i := range rows {
		r := &rows[i]
		var authorized uint8
		if r.Authorized {
			authorized = 1
		}
		if err = batch.Append(
			r.EventTime, r.Kind, r.PoolID, r.Account, r.Hash, r.Price, r.Amount,
			r.Volatility, r.Slippage, r.Index, r.Executed, r.Failed,
			authorized, r.Reason, r.RunID, r.Timestamp,
		); err != nil {
			_ = batch.Abort()
			return err
		}
	}

	return batch.Send()
}
