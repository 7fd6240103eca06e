package db

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skillmesh/trust-engine/pkg/models"
)

// Optional operator persistence. The engine derives everything from the
// corpus, so the only state worth writing down is the append-only feedback
// log and the TEE pin/attestation history — summaries are always
// recomputable. The engine runs fine without a database.

type PostgresStore struct {
	pool *pgxpool.Pool
}

// schema is the full DDL; idempotent so InitSchema can run on every boot
const schema = `
CREATE TABLE IF NOT EXISTS feedback_log (
    id             TEXT PRIMARY KEY,
    agent_id       TEXT NOT NULL,
    client_address TEXT NOT NULL,
    value          INTEGER NOT NULL,
    value_decimals INTEGER NOT NULL DEFAULT 0,
    ts_ms          BIGINT NOT NULL,
    revoked        BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS feedback_log_agent_idx ON feedback_log (agent_id);
CREATE INDEX IF NOT EXISTS feedback_log_client_idx ON feedback_log (client_address);

CREATE TABLE IF NOT EXISTS code_hash_pins (
    agent_id   TEXT PRIMARY KEY,
    code_hash  TEXT NOT NULL,
    pinned_at  BIGINT NOT NULL,
    pinned_by  TEXT NOT NULL,
    audit_ref  TEXT
);

CREATE TABLE IF NOT EXISTS attestations (
    id               TEXT PRIMARY KEY,
    agent_id         TEXT NOT NULL,
    enclave_id       TEXT NOT NULL,
    platform_type    TEXT NOT NULL,
    code_hash        TEXT NOT NULL,
    report_ts_ms     BIGINT NOT NULL,
    valid            BOOLEAN NOT NULL,
    tier3_eligible   BOOLEAN NOT NULL,
    trust_multiplier DOUBLE PRECISION NOT NULL,
    attestation_hash TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS attestations_agent_idx ON attestations (agent_id);
`

// Connect initializes the connection pool to PostgreSQL using pgx
func Connect(connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %v", err)
	}

	log.Println("Successfully connected to PostgreSQL for Trust Engine")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema creates the tables if they do not exist
func (s *PostgresStore) InitSchema() error {
	if _, err := s.pool.Exec(context.Background(), schema); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}
	log.Println("Trust Engine schema initialized")
	return nil
}

// SaveFeedback appends one entry to the durable log
func (s *PostgresStore) SaveFeedback(ctx context.Context, fb models.Feedback) error {
	sql := `
		INSERT INTO feedback_log (id, agent_id, client_address, value, value_decimals, ts_ms, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING;
	`
	_, err := s.pool.Exec(ctx, sql, fb.ID, fb.AgentID, fb.ClientAddress, fb.Value, fb.ValueDecimals, fb.Timestamp, fb.Revoked)
	return err
}

// MarkFeedbackRevoked flips the revoked flag; the row is never deleted
func (s *PostgresStore) MarkFeedbackRevoked(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE feedback_log SET revoked = TRUE WHERE id = $1`, id)
	return err
}

// LoadFeedback replays the durable log in insertion order for warm boot
func (s *PostgresStore) LoadFeedback(ctx context.Context) ([]models.Feedback, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, agent_id, client_address, value, value_decimals, ts_ms, revoked
		FROM feedback_log ORDER BY ts_ms ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Feedback
	for rows.Next() {
		var fb models.Feedback
		if err := rows.Scan(&fb.ID, &fb.AgentID, &fb.ClientAddress, &fb.Value, &fb.ValueDecimals, &fb.Timestamp, &fb.Revoked); err != nil {
			return nil, err
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}

// SavePin upserts the single pin per agent
func (s *PostgresStore) SavePin(ctx context.Context, pin models.CodeHashPin) error {
	sql := `
		INSERT INTO code_hash_pins (agent_id, code_hash, pinned_at, pinned_by, audit_ref)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (agent_id) DO UPDATE
		SET code_hash = EXCLUDED.code_hash, pinned_at = EXCLUDED.pinned_at,
		    pinned_by = EXCLUDED.pinned_by, audit_ref = EXCLUDED.audit_ref;
	`
	_, err := s.pool.Exec(ctx, sql, pin.AgentID, pin.CodeHash, pin.PinnedAt, pin.PinnedBy, pin.AuditReference)
	return err
}

// LoadPins returns every registered pin for warm boot
func (s *PostgresStore) LoadPins(ctx context.Context) ([]models.CodeHashPin, error) {
	rows, err := s.pool.Query(ctx, `SELECT agent_id, code_hash, pinned_at, pinned_by, COALESCE(audit_ref, '') FROM code_hash_pins`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CodeHashPin
	for rows.Next() {
		var pin models.CodeHashPin
		if err := rows.Scan(&pin.AgentID, &pin.CodeHash, &pin.PinnedAt, &pin.PinnedBy, &pin.AuditReference); err != nil {
			return nil, err
		}
		out = append(out, pin)
	}
	return out, rows.Err()
}

// SaveAttestation records the verified attestation and its outcome
func (s *PostgresStore) SaveAttestation(ctx context.Context, att models.Attestation, result models.VerificationResult) error {
	sql := `
		INSERT INTO attestations
		(id, agent_id, enclave_id, platform_type, code_hash, report_ts_ms, valid, tier3_eligible, trust_multiplier, attestation_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING;
	`
	_, err := s.pool.Exec(ctx, sql,
		att.ID,
		att.Report.AgentID,
		att.EnclaveID,
		string(att.PlatformType),
		att.Report.CodeHash,
		att.Report.Timestamp,
		result.Valid,
		result.Tier3Eligible,
		result.TrustMultiplier,
		att.AttestationHash,
	)
	return err
}

// GetPool exposes the connection pool for auxiliary subsystems
func (s *PostgresStore) GetPool() *pgxpool.Pool {
	return s.pool
}
