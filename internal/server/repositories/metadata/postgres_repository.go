package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/dmitrijs2005/recordkeeper/internal/common"
	"github.com/dmitrijs2005/recordkeeper/internal/dbx"
	"github.com/dmitrijs2005/recordkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/recordkeeper/internal/server/models"
)

// PostgresRepository keeps rows in record_metadata, with the legal tag
// association in record_legal_tags maintained in the same transaction.
type PostgresRepository struct {
	db            dbx.DBTX
	tx            dbx.TxBeginner
	maxWriteBatch int
}

// NewPostgresRepository binds the repository to db. Puts larger than
// maxWriteBatch are cut, and the excess is reported as unprocessed.
func NewPostgresRepository(db *sql.DB, maxWriteBatch int) *PostgresRepository {
	return &PostgresRepository{db: db, tx: db, maxWriteBatch: maxWriteBatch}
}

func placeholders(start, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("$" + strconv.Itoa(start+i))
	}
	return b.String()
}

func (r *PostgresRepository) BatchGet(ctx context.Context, collab *models.CollaborationContext, ids []string) (map[string]*models.RecordMetadata, error) {
	defer metrics.ObserveStoreCall("metadata", "batch_get", time.Now())

	out := make(map[string]*models.RecordMetadata, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = collab.Key(id)
	}
	query := `SELECT body FROM record_metadata WHERE key IN (` + placeholders(1, len(ids)) + `)`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: db error: %v", common.ErrStorageFailure, err)
	}
	defer rows.Close()

	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("%w: scan error: %v", common.ErrStorageFailure, err)
		}
		m := &models.RecordMetadata{}
		if err := json.Unmarshal(body, m); err != nil {
			return nil, fmt.Errorf("%w: decode metadata: %v", common.ErrStorageFailure, err)
		}
		out[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows error: %v", common.ErrStorageFailure, err)
	}
	return out, nil
}

const upsertQuery = `INSERT INTO record_metadata (key, id, namespace, kind, status, latest_version, modify_time, body)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (key) DO UPDATE SET
		kind = EXCLUDED.kind,
		status = EXCLUDED.status,
		latest_version = EXCLUDED.latest_version,
		modify_time = EXCLUDED.modify_time,
		body = EXCLUDED.body`

func (r *PostgresRepository) BatchPut(ctx context.Context, collab *models.CollaborationContext, items []*models.RecordMetadata) ([]string, error) {
	defer metrics.ObserveStoreCall("metadata", "batch_put", time.Now())

	var unprocessed []string
	if r.maxWriteBatch > 0 && len(items) > r.maxWriteBatch {
		for _, m := range items[r.maxWriteBatch:] {
			unprocessed = append(unprocessed, m.ID)
		}
		items = items[:r.maxWriteBatch]
	}

	err := dbx.WithTx(ctx, r.tx, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, m := range items {
			body, err := json.Marshal(m)
			if err != nil {
				return fmt.Errorf("encode metadata %s: %w", m.ID, err)
			}
			key := collab.Key(m.ID)
			if _, err := tx.ExecContext(ctx, upsertQuery,
				key, m.ID, collab.Namespace(), m.Kind, string(m.Status), m.LatestVersion(), modifyTime(m), body); err != nil {
				return fmt.Errorf("db error: %w", err)
			}
			if err := replaceLegalTags(ctx, tx, key, m.Legal.LegalTags); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorageFailure, err)
	}
	return unprocessed, nil
}

func (r *PostgresRepository) PutIfLatest(ctx context.Context, collab *models.CollaborationContext, m *models.RecordMetadata, expected int64) error {
	defer metrics.ObserveStoreCall("metadata", "put_if_latest", time.Now())

	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode metadata %s: %w", m.ID, err)
	}
	key := collab.Key(m.ID)

	query :=
		`UPDATE record_metadata SET kind = $2, status = $3, latest_version = $4, modify_time = $5, body = $6
		 WHERE key = $1 AND latest_version = $7`

	err = dbx.WithTx(ctx, r.tx, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx, query, key, m.Kind, string(m.Status), m.LatestVersion(), modifyTime(m), body, expected)
		if err != nil {
			return fmt.Errorf("%w: db error: %v", common.ErrStorageFailure, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("%w: rows affected error: %v", common.ErrStorageFailure, err)
		}
		if n == 0 {
			return common.ErrVersionConflict
		}
		if err := replaceLegalTags(ctx, tx, key, m.Legal.LegalTags); err != nil {
			return fmt.Errorf("%w: %v", common.ErrStorageFailure, err)
		}
		return nil
	})
	if err != nil && !errors.Is(err, common.ErrVersionConflict) && !common.IsStorageFailure(err) {
		return fmt.Errorf("%w: %v", common.ErrStorageFailure, err)
	}
	return err
}

func replaceLegalTags(ctx context.Context, tx dbx.DBTX, key string, tags []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM record_legal_tags WHERE key = $1`, key); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO record_legal_tags (key, legal_tag) VALUES ($1, $2) ON CONFLICT DO NOTHING`, key, tag); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
}

func modifyTime(m *models.RecordMetadata) time.Time {
	if m.ModifyTime.IsZero() {
		return m.CreateTime
	}
	return m.ModifyTime
}

func (r *PostgresRepository) BatchDelete(ctx context.Context, collab *models.CollaborationContext, ids []string) error {
	defer metrics.ObserveStoreCall("metadata", "batch_delete", time.Now())

	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = collab.Key(id)
	}
	query := `DELETE FROM record_metadata WHERE key IN (` + placeholders(1, len(ids)) + `)`

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: db error: %v", common.ErrStorageFailure, err)
	}
	return nil
}

func (r *PostgresRepository) QueryByLegalTag(ctx context.Context, collab *models.CollaborationContext, tag string, limit int, cursor string) ([]*models.RecordMetadata, string, error) {
	query :=
		`SELECT m.key, m.body FROM record_metadata m
		 JOIN record_legal_tags t ON t.key = m.key
		 WHERE t.legal_tag = $1 AND m.namespace = $2 AND m.key > $3
		 ORDER BY m.key
		 LIMIT $4`

	rows, err := r.db.QueryContext(ctx, query, tag, collab.Namespace(), cursor, limit)
	if err != nil {
		return nil, "", fmt.Errorf("%w: db error: %v", common.ErrStorageFailure, err)
	}
	defer rows.Close()

	var out []*models.RecordMetadata
	var last string
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&last, &body); err != nil {
			return nil, "", fmt.Errorf("%w: scan error: %v", common.ErrStorageFailure, err)
		}
		m := &models.RecordMetadata{}
		if err := json.Unmarshal(body, m); err != nil {
			return nil, "", fmt.Errorf("%w: decode metadata: %v", common.ErrStorageFailure, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("%w: rows error: %v", common.ErrStorageFailure, err)
	}

	if len(out) < limit {
		last = ""
	}
	return out, last, nil
}
