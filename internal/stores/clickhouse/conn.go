package clickhouse

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"swapguard/internal/config"

	ch "github.com/ClickHouse/clickhouse-go/v2"
)

const DefaultTable = "hook_events"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

type Conn struct {
	Native ch.Conn
}

func New(ctx context.Context, cfg *config.ClickHouseConfig) (*Conn, error) {
	if cfg == nil {
		return nil, fmt.Errorf("clickhouse config cannot be nil")
	}
	opts, err := ch.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed parse DSN ch, error=%w", err)
	}

	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.Compression == nil {
		opts.Compression = &ch.Compression{Method: ch.CompressionLZ4}
	}
	opts.ClientInfo = ch.ClientInfo{
		Products: []struct{ Name, Version string }{
			{Name: "swapguard", Version: "0.1.0"},
		},
	}

	conn, err := ch.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed Open ch, error=%w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err = conn.Ping(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed ping ch, error=%w", err)
	}

	return &Conn{Native: conn}, nil
}

func (c *Conn) Health(ctx context.Context) error {
	return c.Native.Ping(ctx)
}

func (c *Conn) Close() error {
	return c.Native.Close()
}

// CreateTableSQL is the audit log DDL; one row per outbound hook signal
func CreateTableSQL(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return "", fmt.Errorf("invalid clickhouse table name %q", table)
	}
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			event_time  DateTime64(3, 'UTC'),
			kind        LowCardinality(String),
			pool_id     FixedString(66),
			account     FixedString(42),
			hash        FixedString(66),
			price       String,
			amount      String,
			volatility  UInt64,
			slippage    UInt64,
			idx         UInt64,
			executed    UInt64,
			failed      UInt64,
			authorized  UInt8,
			reason      LowCardinality(String),
			run_id      String,
			ts          UInt64
		)
		ENGINE = MergeTree
		PARTITION BY toYYYYMM(event_time)
		ORDER BY (pool_id, kind, event_time)
	`, table), nil
}

func (c *Conn) EnsureSchema(ctx context.Context, table string) error {
	ddl, err := CreateTableSQL(table)
	if err != nil {
		return err
	}
	if err = c.Native.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return nil
}
