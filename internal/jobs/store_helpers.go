package jobs

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

const jobColumns = "id, prompt, model, steps, guidance, seed, width, height, skip_mesh, skip_postprocess, mesh_resolution, bake_texture, validate_mesh, status, run_id, output_dir, image_path, glb_path, error_message, attempts, created_at, updated_at, started_at, finished_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job             Job
		seed            sql.NullInt64
		skipMesh        int
		skipPostprocess int
		bakeTexture     int
		validateMesh    int
		status          string
		runID           sql.NullString
		outputDir       sql.NullString
		imagePath       sql.NullString
		glbPath         sql.NullString
		errorMessage    sql.NullString
		createdRaw      string
		updatedRaw      string
		startedRaw      sql.NullString
		finishedRaw     sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&job.Prompt,
		&job.Model,
		&job.Steps,
		&job.Guidance,
		&seed,
		&job.Width,
		&job.Height,
		&skipMesh,
		&skipPostprocess,
		&job.MeshResolution,
		&bakeTexture,
		&validateMesh,
		&status,
		&runID,
		&outputDir,
		&imagePath,
		&glbPath,
		&errorMessage,
		&job.Attempts,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}
	if seed.Valid {
		v := seed.Int64
		job.Seed = &v
	}
	job.SkipMesh = skipMesh != 0
	job.SkipPostprocess = skipPostprocess != 0
	job.BakeTexture = bakeTexture != 0
	job.ValidateMesh = validateMesh != 0
	job.Status = Status(status)
	job.RunID = runID.String
	job.OutputDir = outputDir.String
	job.ImagePath = imagePath.String
	job.GLBPath = glbPath.String
	job.ErrorMessage = errorMessage.String
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	job.StartedAt = parseNullableTime(startedRaw)
	job.FinishedAt = parseNullableTime(finishedRaw)
	return &job, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt64(value *int64) any {
	if value == nil {
		return nil
	}
	return *value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &t
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
