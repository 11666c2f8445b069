package mysql

import (
	"context"
	"database/sql"

	domain "github.com/gamesight/visualqa/internal/domain/phash"
)

// PhashRepository persists the perceptual-hash index so the in-memory
// cache can warm up after a restart. Fingerprints are stored as unsigned
// 64-bit ints.
type PhashRepository struct {
	db *sql.DB
}

func NewPhashRepository(db *sql.DB) *PhashRepository {
	return &PhashRepository{db: db}
}

func (r *PhashRepository) Upsert(ctx context.Context, e *domain.Entry) error {
	const q = `
INSERT INTO perceptual_hash_entries
(fingerprint, hamming_bucket, representative_capture_id, clean, issue_id,
 hit_count, created_at, last_hit_at, expires_at)
VALUES (?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 representative_capture_id=VALUES(representative_capture_id),
 clean=VALUES(clean), issue_id=VALUES(issue_id),
 hit_count=VALUES(hit_count), last_hit_at=VALUES(last_hit_at), expires_at=VALUES(expires_at);
`
	_, err := r.db.ExecContext(ctx, q,
		uint64(e.Fingerprint), e.HammingBucket, e.RepresentativeCaptureID,
		e.Verdict.Clean, e.Verdict.IssueID,
		e.HitCount, e.CreatedAt, e.LastHitAt, e.ExpiresAt,
	)
	return err
}

func (r *PhashRepository) Touch(ctx context.Context, fp domain.Fingerprint, e *domain.Entry) error {
	const q = `UPDATE perceptual_hash_entries SET hit_count=?, last_hit_at=? WHERE fingerprint=?;`
	_, err := r.db.ExecContext(ctx, q, e.HitCount, e.LastHitAt, uint64(fp))
	return err
}

func (r *PhashRepository) Delete(ctx context.Context, fp domain.Fingerprint) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM perceptual_hash_entries WHERE fingerprint=?;`, uint64(fp))
	return err
}

func (r *PhashRepository) LoadAll(ctx context.Context) ([]*domain.Entry, error) {
	const q = `
SELECT fingerprint, hamming_bucket, representative_capture_id, clean, issue_id,
       hit_count, created_at, last_hit_at, expires_at
FROM perceptual_hash_entries;
`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Entry
	for rows.Next() {
		var e domain.Entry
		var fp uint64
		if err := rows.Scan(
			&fp, &e.HammingBucket, &e.RepresentativeCaptureID, &e.Verdict.Clean, &e.Verdict.IssueID,
			&e.HitCount, &e.CreatedAt, &e.LastHitAt, &e.ExpiresAt,
		); err != nil {
			return nil, err
		}
		e.Fingerprint = domain.Fingerprint(fp)
		out = append(out, &e)
	}
	return out, rows.Err()
}
