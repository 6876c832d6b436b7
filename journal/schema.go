// journal/schema.go
package journal

const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	trade_id TEXT PRIMARY KEY,
	pair_id TEXT NOT NULL,
	symbol_a TEXT NOT NULL,
	symbol_b TEXT NOT NULL,
	qty_a REAL NOT NULL,
	qty_b REAL NOT NULL,
	entry_price_a REAL NOT NULL,
	entry_price_b REAL NOT NULL,
	exit_price_a REAL NOT NULL,
	exit_price_b REAL NOT NULL,
	entry_z REAL NOT NULL,
	exit_z REAL NOT NULL,
	open_time DATETIME NOT NULL,
	close_time DATETIME NOT NULL,
	realized_pl REAL NOT NULL,
	reason TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_pair ON trades(pair_id);
CREATE INDEX IF NOT EXISTS idx_trades_close ON trades(close_time);

CREATE TABLE IF NOT EXISTS equity (
	time DATETIME NOT NULL,
	equity REAL NOT NULL,
	realized_pl REAL NOT NULL,
	unrealized_pl REAL NOT NULL,
	gross_exposure REAL NOT NULL,
	open_pairs INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_time ON equity(time);
`

// PostgresSchema is the same shape with Postgres column types.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS trades (
	trade_id TEXT PRIMARY KEY,
	pair_id TEXT NOT NULL,
	symbol_a TEXT NOT NULL,
	symbol_b TEXT NOT NULL,
	qty_a DOUBLE PRECISION NOT NULL,
	qty_b DOUBLE PRECISION NOT NULL,
	entry_price_a DOUBLE PRECISION NOT NULL,
	entry_price_b DOUBLE PRECISION NOT NULL,
	exit_price_a DOUBLE PRECISION NOT NULL,
	exit_price_b DOUBLE PRECISION NOT NULL,
	entry_z DOUBLE PRECISION NOT NULL,
	exit_z DOUBLE PRECISION NOT NULL,
	open_time TIMESTAMPTZ NOT NULL,
	close_time TIMESTAMPTZ NOT NULL,
	realized_pl DOUBLE PRECISION NOT NULL,
	reason TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_pair ON trades(pair_id);
CREATE INDEX IF NOT EXISTS idx_trades_close ON trades(close_time);

CREATE TABLE IF NOT EXISTS equity (
	time TIMESTAMPTZ NOT NULL,
	equity DOUBLE PRECISION NOT NULL,
	realized_pl DOUBLE PRECISION NOT NULL,
	unrealized_pl DOUBLE PRECISION NOT NULL,
	gross_exposure DOUBLE PRECISION NOT NULL,
	open_pairs INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_time ON equity(time);
`
