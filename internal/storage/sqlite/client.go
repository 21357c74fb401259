package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/valgdash/backend/internal/schema"
	"github.com/valgdash/backend/internal/storage/models"
	"github.com/valgdash/backend/internal/tabular"
	"github.com/valgdash/backend/pkg/logger"
	"github.com/valgdash/backend/pkg/utils"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	ddl := `
	CREATE TABLE IF NOT EXISTS national_overview (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		last_updated TEXT NOT NULL,
		turnout_estimate REAL NOT NULL,
		uncertainty REAL NOT NULL,
		party_projections TEXT NOT NULL,
		scenario_notes TEXT NOT NULL,
		primary_chart TEXT
	);

	CREATE TABLE IF NOT EXISTS municipality_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		slug TEXT NOT NULL,
		name TEXT NOT NULL,
		region TEXT NOT NULL,
		leading_party TEXT NOT NULL,
		vote_share REAL NOT NULL,
		turnout REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_slug ON municipality_snapshots(slug);

	CREATE TABLE IF NOT EXISTS parties (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		letter TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		leader_name TEXT,
		logo_url TEXT,
		color TEXT,
		ord INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS pollsters (
		id TEXT PRIMARY KEY,
		code TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		ord INTEGER NOT NULL DEFAULT 0,
		logo_url TEXT,
		website_url TEXT
	);

	CREATE TABLE IF NOT EXISTS polls (
		id TEXT PRIMARY KEY,
		pollster_id TEXT NOT NULL,
		conducted_at TEXT NOT NULL,
		sample_size INTEGER NOT NULL,
		methodology TEXT NOT NULL DEFAULT 'Unknown',
		FOREIGN KEY (pollster_id) REFERENCES pollsters(id)
	);
	CREATE INDEX IF NOT EXISTS idx_polls_conducted ON polls(conducted_at);
	CREATE INDEX IF NOT EXISTS idx_polls_pollster ON polls(pollster_id);

	CREATE TABLE IF NOT EXISTS poll_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		poll_id TEXT NOT NULL,
		party TEXT NOT NULL,
		value REAL NOT NULL,
		FOREIGN KEY (poll_id) REFERENCES polls(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_results_poll ON poll_results(poll_id);

	CREATE TABLE IF NOT EXISTS scenarios (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		probability REAL NOT NULL,
		impacted_parties TEXT NOT NULL,
		chart_summary TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_scenarios_probability ON scenarios(probability);

	CREATE TABLE IF NOT EXISTS regions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		short_name TEXT,
		ord INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS current_election_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		afstemningsomrade TEXT NOT NULL,
		bogstavbetegnelse TEXT NOT NULL,
		listenavn TEXT NOT NULL,
		navn TEXT NOT NULL,
		stemmetal INTEGER NOT NULL,
		municipality TEXT NOT NULL,
		last_pull TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_current_municipality ON current_election_results(municipality);
	CREATE INDEX IF NOT EXISTS idx_current_last_pull ON current_election_results(last_pull);
	`

	_, err := c.db.Exec(ddl)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// InsertRecord applies one validated record. national_overview holds at
// most one row and is replaced wholesale; every other table appends.
func (c *Client) InsertRecord(ctx context.Context, table schema.Table, data tabular.Record) (string, error) {
	switch table {
	case schema.TableNationalOverview:
		return c.replaceNationalOverview(ctx, data)
	case schema.TableMunicipalitySnapshots:
		return c.insertRow(ctx,
			`INSERT INTO municipality_snapshots (slug, name, region, leading_party, vote_share, turnout)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			data["slug"], data["name"], data["region"], data["leadingParty"], data["voteShare"], data["turnout"],
		)
	case schema.TableScenarios:
		return c.insertRow(ctx,
			`INSERT INTO scenarios (name, description, probability, impacted_parties, chart_summary)
			 VALUES (?, ?, ?, ?, ?)`,
			data["name"], data["description"], data["probability"],
			jsonText(data["impactedParties"]), nullableJSONText(data["chartSummary"]),
		)
	case schema.TableCurrentResults:
		return c.insertRow(ctx,
			`INSERT INTO current_election_results (afstemningsomrade, bogstavbetegnelse, listenavn, navn, stemmetal, municipality, last_pull)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			data["afstemningsomrade"], data["bogstavbetegnelse"], data["listenavn"], data["navn"],
			data["stemmetal"], data["municipality"], data["lastPull"],
		)
	case schema.TablePolls:
		return c.insertGenericPoll(ctx, data)
	}
	return "", fmt.Errorf("unknown table: %s", table)
}

func (c *Client) replaceNationalOverview(ctx context.Context, data tabular.Record) (string, error) {
	var existingID int64
	err := c.db.QueryRowContext(ctx, `SELECT id FROM national_overview LIMIT 1`).Scan(&existingID)
	if err != nil && err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to look up national overview: %w", err)
	}

	args := []any{
		data["lastUpdated"], data["turnoutEstimate"], data["uncertainty"],
		jsonText(data["partyProjections"]), jsonText(data["scenarioNotes"]),
		nullableJSONText(data["primaryChart"]),
	}

	if err == nil {
		_, err = c.db.ExecContext(ctx,
			`UPDATE national_overview
			 SET last_updated = ?, turnout_estimate = ?, uncertainty = ?,
			     party_projections = ?, scenario_notes = ?, primary_chart = ?
			 WHERE id = ?`,
			append(args, existingID)...,
		)
		if err != nil {
			return "", fmt.Errorf("failed to replace national overview: %w", err)
		}
		logger.Debug("National overview replaced", zap.Int64("id", existingID))
		return strconv.FormatInt(existingID, 10), nil
	}

	return c.insertRow(ctx,
		`INSERT INTO national_overview (last_updated, turnout_estimate, uncertainty, party_projections, scenario_notes, primary_chart)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		args...,
	)
}

// insertGenericPoll handles the generic per-table ingest variant where
// a poll arrives as one denormalized record carrying its pollster name
// and a parties array.
func (c *Client) insertGenericPoll(ctx context.Context, data tabular.Record) (string, error) {
	pollsterName, _ := data["pollster"].(string)
	pollsterID, err := c.GetOrCreatePollster(ctx, pollsterName, "")
	if err != nil {
		return "", err
	}

	conductedAt, _ := data["conductedAt"].(string)
	sampleSize, _ := data["sampleSize"].(float64)
	methodology, _ := data["methodology"].(string)

	var results []models.PollResult
	if parties, ok := data["parties"].([]any); ok {
		for _, entry := range parties {
			obj, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			party, _ := obj["party"].(string)
			value, _ := obj["value"].(float64)
			results = append(results, models.PollResult{Party: party, Value: value})
		}
	}

	return c.CreatePollWithResults(ctx, pollsterID, conductedAt, int(sampleSize), methodology, results)
}

// GetOrCreatePollster resolves a pollster id: by code when given, else
// by case-insensitive name, else it creates one with code defaulting to
// the slugified name and ord one past the current maximum. The
// check-then-create race is closed by the UNIQUE(code) constraint: a
// conflicting concurrent insert is a no-op here and the winner's row is
// re-read.
func (c *Client) GetOrCreatePollster(ctx context.Context, name, code string) (string, error) {
	if code != "" {
		var id string
		err := c.db.QueryRowContext(ctx, `SELECT id FROM pollsters WHERE code = ?`, code).Scan(&id)
		if err == nil {
			return id, nil
		}
		if err != sql.ErrNoRows {
			return "", fmt.Errorf("failed to look up pollster by code: %w", err)
		}
	}

	var id string
	err := c.db.QueryRowContext(ctx, `SELECT id FROM pollsters WHERE LOWER(name) = LOWER(?)`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to look up pollster by name: %w", err)
	}

	if code == "" {
		code = utils.Slugify(name)
	}

	var nextOrd int
	err = c.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(ord), 0) + 1 FROM pollsters`).Scan(&nextOrd)
	if err != nil {
		return "", fmt.Errorf("failed to compute pollster order: %w", err)
	}

	newID := uuid.NewString()
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO pollsters (id, code, name, ord) VALUES (?, ?, ?, ?)
		 ON CONFLICT(code) DO NOTHING`,
		newID, code, name, nextOrd,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create pollster: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to check pollster insert: %w", err)
	}
	if affected == 0 {
		// A concurrent writer created the same code first.
		err = c.db.QueryRowContext(ctx, `SELECT id FROM pollsters WHERE code = ?`, code).Scan(&id)
		if err != nil {
			return "", fmt.Errorf("failed to re-read pollster after conflict: %w", err)
		}
		return id, nil
	}

	logger.Info("Pollster created",
		zap.String("pollster_id", newID),
		zap.String("name", name),
		zap.String("code", code),
	)
	return newID, nil
}

// CreatePollWithResults inserts one poll header plus its per-party
// results in a single transaction; a failed result insert rolls the
// header back rather than leaving an orphan.
func (c *Client) CreatePollWithResults(ctx context.Context, pollsterID, conductedAt string, sampleSize int, methodology string, results []models.PollResult) (string, error) {
	if methodology == "" {
		methodology = "Unknown"
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	pollID := uuid.NewString()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO polls (id, pollster_id, conducted_at, sample_size, methodology) VALUES (?, ?, ?, ?, ?)`,
		pollID, pollsterID, conductedAt, sampleSize, methodology,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert poll: %w", err)
	}

	for _, result := range results {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO poll_results (poll_id, party, value) VALUES (?, ?, ?)`,
			pollID, result.Party, result.Value,
		)
		if err != nil {
			return "", fmt.Errorf("failed to insert poll result for %s: %w", result.Party, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit poll: %w", err)
	}

	logger.Debug("Poll created",
		zap.String("poll_id", pollID),
		zap.String("conducted_at", conductedAt),
		zap.Int("results", len(results)),
	)
	return pollID, nil
}

func (c *Client) insertRow(ctx context.Context, query string, args ...any) (string, error) {
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return "", fmt.Errorf("failed to insert row: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("failed to read row id: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

func jsonText(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return "null"
	}
	return string(data)
}

func nullableJSONText(value any) any {
	if value == nil {
		return nil
	}
	return jsonText(value)
}
