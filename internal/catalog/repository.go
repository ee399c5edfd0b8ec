package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyProcessing = errors.New("source file is already processing")
	ErrAlreadyCompleted  = errors.New("source file is already completed")
	ErrInvalidTransition = errors.New("invalid status transition")
)

type Repository interface {
	CreateAsset(ctx context.Context, asset *Asset) error
	GetAsset(ctx context.Context, id int64) (*Asset, error)
	CountSlugs(ctx context.Context, slug string) (int, error)

	RegisterSourceFile(ctx context.Context, file *SourceFile) (*SourceFile, bool, error)
	GetSourceFile(ctx context.Context, id int64) (*SourceFile, error)
	GetSourceFileByKey(ctx context.Context, storageKey string) (*SourceFile, error)
	UpdateSourceFileMetadata(ctx context.Context, id int64, md ProbeMetadata) error
	CompleteSourceFile(ctx context.Context, id int64, thumbnailKey string) error

	UpsertRendition(ctx context.Context, rendition *Rendition) error
	UpdateRenditionStatus(ctx context.Context, sourceFileID int64, name string, status Status, errMsg string, sizeBytes int64) error
	ListRenditions(ctx context.Context, sourceFileID int64) ([]*Rendition, error)

	EnqueueTranscode(ctx context.Context, sourceFileID int64, maxAttempts int, runAt time.Time) (*TranscodeJob, error)
	GetJob(ctx context.Context, id string) (*TranscodeJob, error)
	GetLatestJob(ctx context.Context, sourceFileID int64) (*TranscodeJob, error)
	ListDueJobs(ctx context.Context, now time.Time, limit int) ([]*TranscodeJob, error)
	ClaimJob(ctx context.Context, id string) (*TranscodeJob, error)
	UpdateJobStage(ctx context.Context, id string, stage Stage) error
	CompleteJob(ctx context.Context, id string) error
	RetryJob(ctx context.Context, id string, nextRunAt time.Time, errMsg string) error
	ReleaseJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *SQLiteRepository) CreateAsset(ctx context.Context, a *Asset) error {
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.Tags == nil {
		a.Tags = []string{}
	}
	tags, err := json.Marshal(a.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO assets (user_id, title, description, slug, tags, is_published, thumbnail_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.UserID, a.Title, nullString(a.Description), nullString(a.Slug), string(tags), boolToInt(a.IsPublished),
		nullString(a.ThumbnailKey), formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
	if err != nil {
		return err
	}
	a.ID, err = res.LastInsertId()
	return err
}

func (r *SQLiteRepository) GetAsset(ctx context.Context, id int64) (*Asset, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, description, slug, tags, is_published, thumbnail_key, created_at, updated_at
		FROM assets WHERE id = ?
	`, id)

	var a Asset
	var description, slug, thumbnailKey sql.NullString
	var tags, createdAt, updatedAt string
	var published int

	err := row.Scan(&a.ID, &a.UserID, &a.Title, &description, &slug, &tags, &published, &thumbnailKey, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	a.Description = description.String
	a.Slug = slug.String
	a.ThumbnailKey = thumbnailKey.String
	a.IsPublished = published == 1
	if err := json.Unmarshal([]byte(tags), &a.Tags); err != nil {
		a.Tags = []string{}
	}
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}

// CountSlugs counts assets whose slug is slug or a numbered variant of it.
func (r *SQLiteRepository) CountSlugs(ctx context.Context, slug string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM assets WHERE slug = ? OR slug LIKE ?
	`, slug, slug+"-%").Scan(&n)
	return n, err
}

const sourceFileColumns = `id, asset_id, filename, storage_key, mime_type, file_size_bytes, status, error_message,
	duration_seconds, codec_video, bitrate_kbps, width, height, fps, metadata_degraded,
	processing_started_at, processing_completed_at, created_at, updated_at`

// RegisterSourceFile inserts file unless a row with the same storage key
// exists. It returns the stored row and whether it was created by this call.
func (r *SQLiteRepository) RegisterSourceFile(ctx context.Context, f *SourceFile) (*SourceFile, bool, error) {
	now := formatTime(time.Now())
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO source_files (asset_id, filename, storage_key, mime_type, file_size_bytes, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(storage_key) DO NOTHING
	`, f.AssetID, f.Filename, f.StorageKey, f.MimeType, f.SizeBytes, string(StatusPending), now, now)
	if err != nil {
		return nil, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	stored, err := r.GetSourceFileByKey(ctx, f.StorageKey)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, fmt.Errorf("source file %s vanished after insert", f.StorageKey)
	}
	return stored, n == 1, nil
}

func (r *SQLiteRepository) GetSourceFile(ctx context.Context, id int64) (*SourceFile, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sourceFileColumns+` FROM source_files WHERE id = ?`, id)
	return scanSourceFile(row)
}

func (r *SQLiteRepository) GetSourceFileByKey(ctx context.Context, storageKey string) (*SourceFile, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sourceFileColumns+` FROM source_files WHERE storage_key = ?`, storageKey)
	return scanSourceFile(row)
}

func scanSourceFile(row scanner) (*SourceFile, error) {
	var f SourceFile
	var status string
	var errMsg, codec, startedAt, completedAt sql.NullString
	var duration, fps sql.NullFloat64
	var bitrate, width, height sql.NullInt64
	var degraded int
	var createdAt, updatedAt string

	err := row.Scan(&f.ID, &f.AssetID, &f.Filename, &f.StorageKey, &f.MimeType, &f.SizeBytes, &status, &errMsg,
		&duration, &codec, &bitrate, &width, &height, &fps, &degraded,
		&startedAt, &completedAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	f.Status = Status(status)
	f.Error = errMsg.String
	if codec.Valid {
		f.Metadata = &ProbeMetadata{
			DurationSeconds: duration.Float64,
			Codec:           codec.String,
			BitrateKbps:     bitrate.Int64,
			Width:           int(width.Int64),
			Height:          int(height.Int64),
			FPS:             fps.Float64,
			Degraded:        degraded == 1,
		}
	}
	f.ProcessingStartedAt = parseNullTime(startedAt)
	f.ProcessingCompletedAt = parseNullTime(completedAt)
	f.CreatedAt = parseTime(createdAt)
	f.UpdatedAt = parseTime(updatedAt)
	return &f, nil
}

func (r *SQLiteRepository) UpdateSourceFileMetadata(ctx context.Context, id int64, md ProbeMetadata) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE source_files
		SET duration_seconds = ?, codec_video = ?, bitrate_kbps = ?, width = ?, height = ?, fps = ?,
			metadata_degraded = ?, updated_at = ?
		WHERE id = ?
	`, md.DurationSeconds, md.Codec, md.BitrateKbps, md.Width, md.Height, md.FPS,
		boolToInt(md.Degraded), formatTime(time.Now()), id)
	return err
}

// CompleteSourceFile moves a processing source file to completed and, when
// thumbnailKey is set, attaches it to the owning asset in the same transaction.
func (r *SQLiteRepository) CompleteSourceFile(ctx context.Context, id int64, thumbnailKey string) error {
	now := formatTime(time.Now())

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE source_files
		SET status = 'completed', error_message = NULL, processing_completed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'processing'
	`, now, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("complete source file %d: %w", id, ErrInvalidTransition)
	}

	if thumbnailKey != "" {
		if _, err := tx.ExecContext(ctx, `
			UPDATE assets SET thumbnail_key = ?, updated_at = ?
			WHERE id = (SELECT asset_id FROM source_files WHERE id = ?)
		`, thumbnailKey, now, id); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// UpsertRendition writes the rendition for (source file, name). An existing
// row restarts at pending so a new attempt begins from a clean record, except
// a completed row, which keeps its status and size while it is re-encoded.
func (r *SQLiteRepository) UpsertRendition(ctx context.Context, rd *Rendition) error {
	now := formatTime(time.Now())
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO renditions (source_file_id, name, width, height, bitrate_kbps, codec_video, codec_audio, format,
			storage_key, file_size_bytes, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 'pending', ?, ?)
		ON CONFLICT(source_file_id, name) DO UPDATE SET
			width = excluded.width,
			height = excluded.height,
			bitrate_kbps = excluded.bitrate_kbps,
			codec_video = excluded.codec_video,
			codec_audio = excluded.codec_audio,
			format = excluded.format,
			storage_key = excluded.storage_key,
			file_size_bytes = CASE WHEN renditions.status = 'completed' THEN renditions.file_size_bytes ELSE 0 END,
			status = CASE WHEN renditions.status = 'completed' THEN renditions.status ELSE 'pending' END,
			error_message = NULL,
			processing_started_at = CASE WHEN renditions.status = 'completed' THEN renditions.processing_started_at ELSE NULL END,
			processing_completed_at = CASE WHEN renditions.status = 'completed' THEN renditions.processing_completed_at ELSE NULL END,
			updated_at = excluded.updated_at
		RETURNING id, status, file_size_bytes
	`, rd.SourceFileID, rd.Name, rd.Width, rd.Height, rd.BitrateKbps, rd.CodecVideo, rd.CodecAudio, rd.Format,
		rd.StorageKey, now, now)
	var status string
	if err := row.Scan(&rd.ID, &status, &rd.SizeBytes); err != nil {
		return err
	}
	rd.Status = Status(status)
	rd.Error = ""
	return nil
}

var renditionTransitions = map[Status][]any{
	StatusProcessing: {string(StatusPending), string(StatusFailed)},
	StatusCompleted:  {string(StatusProcessing), string(StatusCompleted)},
	StatusFailed:     {string(StatusPending), string(StatusProcessing)},
}

// UpdateRenditionStatus applies a forward status transition. Moves that the
// state machine does not allow return ErrInvalidTransition.
func (r *SQLiteRepository) UpdateRenditionStatus(ctx context.Context, sourceFileID int64, name string, status Status, errMsg string, sizeBytes int64) error {
	from, ok := renditionTransitions[status]
	if !ok {
		return fmt.Errorf("rendition %s -> %s: %w", name, status, ErrInvalidTransition)
	}

	now := formatTime(time.Now())
	var res sql.Result
	var err error
	switch status {
	case StatusProcessing:
		res, err = r.db.ExecContext(ctx, `
			UPDATE renditions SET status = ?, error_message = NULL, processing_started_at = ?, updated_at = ?
			WHERE source_file_id = ? AND name = ? AND status IN (?, ?)
		`, string(status), now, now, sourceFileID, name, from[0], from[1])
	case StatusCompleted:
		res, err = r.db.ExecContext(ctx, `
			UPDATE renditions SET status = ?, file_size_bytes = ?, processing_completed_at = ?, updated_at = ?
			WHERE source_file_id = ? AND name = ? AND status IN (?, ?)
		`, string(status), sizeBytes, now, now, sourceFileID, name, from[0], from[1])
	case StatusFailed:
		res, err = r.db.ExecContext(ctx, `
			UPDATE renditions SET status = ?, error_message = ?, processing_completed_at = ?, updated_at = ?
			WHERE source_file_id = ? AND name = ? AND status IN (?, ?)
		`, string(status), nullString(errMsg), now, now, sourceFileID, name, from[0], from[1])
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rendition %s -> %s: %w", name, status, ErrInvalidTransition)
	}
	return nil
}

func (r *SQLiteRepository) ListRenditions(ctx context.Context, sourceFileID int64) ([]*Rendition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_file_id, name, width, height, bitrate_kbps, codec_video, codec_audio, format,
			storage_key, file_size_bytes, status, error_message, created_at, updated_at
		FROM renditions WHERE source_file_id = ? ORDER BY id ASC
	`, sourceFileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Rendition
	for rows.Next() {
		var rd Rendition
		var status string
		var errMsg sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&rd.ID, &rd.SourceFileID, &rd.Name, &rd.Width, &rd.Height, &rd.BitrateKbps,
			&rd.CodecVideo, &rd.CodecAudio, &rd.Format, &rd.StorageKey, &rd.SizeBytes, &status, &errMsg,
			&createdAt, &updatedAt); err != nil {
			return nil, err
		}
		rd.Status = Status(status)
		rd.Error = errMsg.String
		rd.CreatedAt = parseTime(createdAt)
		rd.UpdatedAt = parseTime(updatedAt)
		out = append(out, &rd)
	}
	return out, rows.Err()
}

// EnqueueTranscode moves the source file from pending or failed to
// processing and records a job for it, both in one transaction. A source file
// that is already processing or completed is rejected, which keeps at most one
// job in flight per file.
func (r *SQLiteRepository) EnqueueTranscode(ctx context.Context, sourceFileID int64, maxAttempts int, runAt time.Time) (*TranscodeJob, error) {
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM source_files WHERE id = ?`, sourceFileID).Scan(&status)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("source file %d: %w", sourceFileID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE source_files
		SET status = 'processing', error_message = NULL, processing_started_at = ?, processing_completed_at = NULL, updated_at = ?
		WHERE id = ? AND status IN ('pending', 'failed')
	`, formatTime(now), formatTime(now), sourceFileID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if Status(status) == StatusCompleted {
			return nil, ErrAlreadyCompleted
		}
		return nil, ErrAlreadyProcessing
	}

	job := &TranscodeJob{
		ID:           NewID(),
		SourceFileID: sourceFileID,
		Status:       JobStatusPending,
		Stage:        StageQueued,
		MaxAttempts:  maxAttempts,
		NextRunAt:    runAt.UTC().Truncate(time.Second),
		CreatedAt:    now.Truncate(time.Second),
		UpdatedAt:    now.Truncate(time.Second),
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transcode_jobs (id, source_file_id, status, stage, attempt, max_attempts, next_run_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?)
	`, job.ID, job.SourceFileID, job.Status, string(job.Stage), job.MaxAttempts,
		formatTime(job.NextRunAt), formatTime(job.CreatedAt), formatTime(job.UpdatedAt)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return job, nil
}

const jobColumns = `id, source_file_id, status, stage, attempt, max_attempts, next_run_at, error, created_at, updated_at`

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*TranscodeJob, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM transcode_jobs WHERE id = ?`, id)
	return scanJob(row)
}

func (r *SQLiteRepository) GetLatestJob(ctx context.Context, sourceFileID int64) (*TranscodeJob, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM transcode_jobs
		WHERE source_file_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1
	`, sourceFileID)
	return scanJob(row)
}

func scanJob(row scanner) (*TranscodeJob, error) {
	var j TranscodeJob
	var stage, nextRunAt, createdAt, updatedAt string
	var errMsg sql.NullString

	err := row.Scan(&j.ID, &j.SourceFileID, &j.Status, &stage, &j.Attempt, &j.MaxAttempts, &nextRunAt, &errMsg, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	j.Stage = Stage(stage)
	j.Error = errMsg.String
	j.NextRunAt = parseTime(nextRunAt)
	j.CreatedAt = parseTime(createdAt)
	j.UpdatedAt = parseTime(updatedAt)
	return &j, nil
}

// ListDueJobs returns pending jobs whose next run time has passed, oldest first.
func (r *SQLiteRepository) ListDueJobs(ctx context.Context, now time.Time, limit int) ([]*TranscodeJob, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM transcode_jobs
		WHERE status = 'pending' AND next_run_at <= ?
		ORDER BY next_run_at ASC, created_at ASC LIMIT ?
	`, formatTime(now), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*TranscodeJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// ClaimJob marks a pending job running and counts the attempt. It returns
// nil when another caller claimed the job first.
func (r *SQLiteRepository) ClaimJob(ctx context.Context, id string) (*TranscodeJob, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transcode_jobs SET status = 'running', stage = 'queued', attempt = attempt + 1, updated_at = ?
		WHERE id = ? AND status = 'pending'
	`, formatTime(time.Now()), id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return r.GetJob(ctx, id)
}

func (r *SQLiteRepository) UpdateJobStage(ctx context.Context, id string, stage Stage) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE transcode_jobs SET stage = ?, updated_at = ? WHERE id = ?
	`, string(stage), formatTime(time.Now()), id)
	return err
}

func (r *SQLiteRepository) CompleteJob(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE transcode_jobs SET status = 'completed', stage = 'done', error = NULL, updated_at = ? WHERE id = ?
	`, formatTime(time.Now()), id)
	return err
}

// RetryJob puts a running job back in the queue to run at nextRunAt. The
// source file stays processing; renditions left mid-encode are failed.
func (r *SQLiteRepository) RetryJob(ctx context.Context, id string, nextRunAt time.Time, errMsg string) error {
	now := formatTime(time.Now())

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE transcode_jobs SET status = 'pending', stage = 'queued', next_run_at = ?, error = ?, updated_at = ?
		WHERE id = ? AND status = 'running'
	`, formatTime(nextRunAt), nullString(errMsg), now, id); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE renditions SET status = 'failed', error_message = ?, updated_at = ?
		WHERE status = 'processing' AND source_file_id = (SELECT source_file_id FROM transcode_jobs WHERE id = ?)
	`, nullString(errMsg), now, id); err != nil {
		return err
	}

	return tx.Commit()
}

// ReleaseJob returns a claimed job that never started to the queue and gives
// back the attempt ClaimJob counted.
func (r *SQLiteRepository) ReleaseJob(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transcode_jobs SET status = 'pending', stage = 'queued', attempt = MAX(attempt - 1, 0), updated_at = ?
		WHERE id = ? AND status = 'running'
	`, formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("release job %s: %w", id, ErrInvalidTransition)
	}
	return nil
}

// FailJob ends a job for good: the job, its source file and any rendition
// still processing become failed with errMsg.
func (r *SQLiteRepository) FailJob(ctx context.Context, id string, errMsg string) error {
	now := formatTime(time.Now())

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var sourceFileID int64
	err = tx.QueryRowContext(ctx, `SELECT source_file_id FROM transcode_jobs WHERE id = ?`, id).Scan(&sourceFileID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE transcode_jobs SET status = 'failed', stage = 'failed', error = ?, updated_at = ? WHERE id = ?
	`, nullString(errMsg), now, id); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE source_files SET status = 'failed', error_message = ?, processing_completed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'processing'
	`, nullString(errMsg), now, now, sourceFileID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE renditions SET status = 'failed', error_message = ?, updated_at = ?
		WHERE source_file_id = ? AND status = 'processing'
	`, nullString(errMsg), now, sourceFileID); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, _ = time.Parse(time.DateTime, s)
	}
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
