package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(trade_id, run_id, size, entry_bar, exit_bar, entry_price, exit_price, entry_time, exit_time, pl, reason, tag)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.RunID, t.Size, t.EntryBar, t.ExitBar,
		t.EntryPrice, t.ExitPrice, t.EntryTime, t.ExitTime, t.PL, t.Reason, t.Tag,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(run_id, bar, time, balance, equity, margin_used, free_margin, margin_level)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Bar, e.Time, e.Balance, e.Equity, e.MarginUsed, e.FreeMargin, e.MarginLevel,
	)
	return err
}

func (j *SQLite) RecordMarginCall(m MarginCallRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO margin_calls
		(run_id, bar, time, trade_id, size, price, shortfall)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.RunID, m.Bar, m.Time, m.TradeID, m.Size, m.Price, m.Shortfall,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

// GetTrade returns a single trade record by ID.
func (j *SQLite) GetTrade(tradeID string) (TradeRecord, error) {
	row := j.db.QueryRow(`
		SELECT trade_id, run_id, size, entry_bar, exit_bar, entry_price, exit_price, entry_time, exit_time, pl, reason, tag
		FROM trades
		WHERE trade_id = ?`, tradeID)

	var rec TradeRecord
	err := scanTrade(row, &rec)
	if err == sql.ErrNoRows {
		return TradeRecord{}, fmt.Errorf("trade %q not found", tradeID)
	}
	if err != nil {
		return TradeRecord{}, err
	}
	return rec, nil
}

// ListTradesByRun returns the closed trades of one run in exit order.
func (j *SQLite) ListTradesByRun(runID string) ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT trade_id, run_id, size, entry_bar, exit_bar, entry_price, exit_price, entry_time, exit_time, pl, reason, tag
		FROM trades
		WHERE run_id = ?
		ORDER BY exit_bar ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var rec TradeRecord
		if err := scanTrade(rows, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListEquityByRun returns the per-bar equity curve of one run.
func (j *SQLite) ListEquityByRun(runID string) ([]EquitySnapshot, error) {
	rows, err := j.db.Query(`
		SELECT run_id, bar, time, balance, equity, margin_used, free_margin, margin_level
		FROM equity
		WHERE run_id = ?
		ORDER BY bar ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(&e.RunID, &e.Bar, &e.Time, &e.Balance, &e.Equity,
			&e.MarginUsed, &e.FreeMargin, &e.MarginLevel); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListMarginCallsByRun returns the forced liquidations of one run.
func (j *SQLite) ListMarginCallsByRun(runID string) ([]MarginCallRecord, error) {
	rows, err := j.db.Query(`
		SELECT run_id, bar, time, trade_id, size, price, shortfall
		FROM margin_calls
		WHERE run_id = ?
		ORDER BY bar ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MarginCallRecord
	for rows.Next() {
		var m MarginCallRecord
		if err := rows.Scan(&m.RunID, &m.Bar, &m.Time, &m.TradeID, &m.Size,
			&m.Price, &m.Shortfall); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(r rowScanner, rec *TradeRecord) error {
	return r.Scan(
		&rec.TradeID,
		&rec.RunID,
		&rec.Size,
		&rec.EntryBar,
		&rec.ExitBar,
		&rec.EntryPrice,
		&rec.ExitPrice,
		&rec.EntryTime,
		&rec.ExitTime,
		&rec.PL,
		&rec.Reason,
		&rec.Tag,
	)
}
