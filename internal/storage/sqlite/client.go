package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/apolo-agent/backend/internal/storage/models"
	"github.com/apolo-agent/backend/pkg/logger"
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

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS leads (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		name TEXT,
		phone TEXT,
		email TEXT,
		message TEXT,
		notified INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_leads_session ON leads(session_id);
	CREATE INDEX IF NOT EXISTS idx_leads_created ON leads(created_at);

	CREATE TABLE IF NOT EXISTS exchange_history (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		question TEXT NOT NULL,
		answer TEXT,
		vector_results_count INTEGER,
		lead_detected INTEGER DEFAULT 0,
		image_count INTEGER DEFAULT 0,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_exchange_session ON exchange_history(session_id);
	CREATE INDEX IF NOT EXISTS idx_exchange_created ON exchange_history(created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertLead(lead *models.Lead) error {
	query := `
		INSERT INTO leads (id, session_id, name, phone, email, message, notified, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	notified := 0
	if lead.Notified {
		notified = 1
	}

	_, err := c.db.Exec(
		query,
		lead.ID,
		lead.SessionID,
		lead.Name,
		lead.Phone,
		lead.Email,
		lead.Message,
		notified,
		lead.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert lead: %w", err)
	}

	logger.Info("Lead recorded",
		zap.String("lead_id", lead.ID),
		zap.String("session_id", lead.SessionID),
	)

	return nil
}

func (c *Client) MarkLeadNotified(id string) error {
	_, err := c.db.Exec(`UPDATE leads SET notified = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark lead notified: %w", err)
	}
	return nil
}

func (c *Client) GetLeads(limit int) ([]models.Lead, error) {
	query := `
		SELECT id, session_id, name, phone, email, message, notified, created_at
		FROM leads
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get leads: %w", err)
	}
	defer rows.Close()

	var leads []models.Lead
	for rows.Next() {
		var l models.Lead
		var notified int
		var createdAt int64

		err := rows.Scan(&l.ID, &l.SessionID, &l.Name, &l.Phone, &l.Email, &l.Message, &notified, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		l.Notified = notified != 0
		l.CreatedAt = time.Unix(createdAt, 0)
		leads = append(leads, l)
	}

	return leads, rows.Err()
}

func (c *Client) InsertExchange(ex *models.Exchange) error {
	query := `
		INSERT INTO exchange_history (id, session_id, question, answer, vector_results_count,
			lead_detected, image_count, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	leadDetected := 0
	if ex.LeadDetected {
		leadDetected = 1
	}

	_, err := c.db.Exec(
		query,
		ex.ID,
		ex.SessionID,
		ex.Question,
		ex.Answer,
		ex.VectorResults,
		leadDetected,
		ex.ImageCount,
		ex.LatencyMS,
		ex.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert exchange: %w", err)
	}

	return nil
}

func (c *Client) GetSessionHistory(sessionID string, limit int) ([]models.Exchange, error) {
	query := `
		SELECT id, question, answer, vector_results_count, lead_detected, image_count, latency_ms, created_at
		FROM exchange_history
		WHERE session_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get session history: %w", err)
	}
	defer rows.Close()

	var exchanges []models.Exchange
	for rows.Next() {
		var e models.Exchange
		var leadDetected int
		var createdAt int64

		err := rows.Scan(&e.ID, &e.Question, &e.Answer, &e.VectorResults, &leadDetected, &e.ImageCount, &e.LatencyMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		e.SessionID = sessionID
		e.LeadDetected = leadDetected != 0
		e.CreatedAt = time.Unix(createdAt, 0)
		exchanges = append(exchanges, e)
	}

	return exchanges, rows.Err()
}
