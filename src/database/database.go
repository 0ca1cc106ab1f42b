package database

import (
	"database/sql"
	stdlog "log"

	"github.com/username/cryptofolio/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	if logger.L != nil {
		logger.L.Info("Checking database migrations", "databasePath", databasePath)
	} else {
		stdlog.Println("Checking database migrations for:", databasePath)
	}
	migrateTransactionsTable()

	createTableStatement := `
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		ts TEXT NOT NULL,
		exchange TEXT NOT NULL,
		channel TEXT NOT NULL,
		asset TEXT NOT NULL,
		action TEXT NOT NULL,
		quantity TEXT NOT NULL,
		price_eur TEXT NOT NULL,
		fee TEXT NOT NULL,
		fee_asset TEXT NOT NULL,
		origin TEXT NOT NULL,
		ref_id TEXT NOT NULL,
		is_taxable INTEGER NOT NULL DEFAULT 1,
		description TEXT,
		supersedes_id TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(origin, ref_id)
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_asset_ts ON transactions(asset, ts);

	CREATE TABLE IF NOT EXISTS sync_progress (
		channel TEXT PRIMARY KEY,
		last_window_end TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS quarantined_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		origin TEXT NOT NULL,
		exchange TEXT NOT NULL,
		ref_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		fields TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(origin, ref_id)
	);

	CREATE TABLE IF NOT EXISTS reconciliation_records (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		exchange TEXT NOT NULL,
		asset TEXT NOT NULL,
		transaction_ids TEXT NOT NULL,
		winner_origin TEXT,
		detail TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err = DB.Exec(createTableStatement)
	if err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		stdlog.Fatalf("failed to create tables: %v", err)
	}
	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.")
	} else {
		stdlog.Println("Database tables ensured/created.")
	}
}

func migrateTransactionsTable() {
	var tableName string
	err := DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='transactions'").Scan(&tableName)
	if err != nil {
		if err == sql.ErrNoRows {
			return
		}
		if logger.L != nil {
			logger.L.Error("Error checking for 'transactions' table", "error", err)
		} else {
			stdlog.Printf("Error checking for 'transactions' table: %v", err)
		}
		return
	}

	rows, err := DB.Query("PRAGMA table_info(transactions)")
	if err != nil {
		if logger.L != nil {
			logger.L.Error("Error querying table schema for 'transactions'", "error", err)
		} else {
			stdlog.Printf("Error querying table schema for 'transactions': %v", err)
		}
		return
	}
	defer rows.Close()

	columnExists := make(map[string]bool)
	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notnullVal int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			if logger.L != nil {
				logger.L.Error("Error scanning column info for 'transactions'", "error", err)
			} else {
				stdlog.Printf("Error scanning column info for 'transactions': %v", err)
			}
			return
		}
		columnExists[name] = true
	}
	if err = rows.Err(); err != nil {
		if logger.L != nil {
			logger.L.Error("Error iterating over column info for 'transactions'", "error", err)
		} else {
			stdlog.Printf("Error iterating over column info for 'transactions': %v", err)
		}
		return
	}

	if _, ok := columnExists["supersedes_id"]; !ok {
		_, err := DB.Exec("ALTER TABLE transactions ADD COLUMN supersedes_id TEXT")
		if err != nil {
			if logger.L != nil {
				logger.L.Error("Error adding 'supersedes_id' column to 'transactions' table", "error", err)
			} else {
				stdlog.Printf("Error adding 'supersedes_id' column to 'transactions' table: %v", err)
			}
		} else {
			if logger.L != nil {
				logger.L.Info("Added 'supersedes_id' column to 'transactions' table")
			} else {
				stdlog.Println("Added 'supersedes_id' column to 'transactions' table")
			}
		}
	}
	if _, ok := columnExists["channel"]; !ok {
		_, err := DB.Exec("ALTER TABLE transactions ADD COLUMN channel TEXT NOT NULL DEFAULT 'spot'")
		if err != nil {
			if logger.L != nil {
				logger.L.Error("Error adding 'channel' column to 'transactions' table", "error", err)
			} else {
				stdlog.Printf("Error adding 'channel' column to 'transactions' table: %v", err)
			}
		} else {
			if logger.L != nil {
				logger.L.Info("Added 'channel' column to 'transactions' table")
			} else {
				stdlog.Println("Added 'channel' column to 'transactions' table")
			}
		}
	}
}
