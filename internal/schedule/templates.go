package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"perch/internal/admission"
	"perch/internal/faults"
	"perch/internal/logging"
)

// Template is a reusable capture preset: everything a job needs except
// the decision to run it. Names are unique so presets can be referred to
// by either ID or name.
type Template struct {
	ID              int64
	Name            string
	DurationSeconds int
	Pattern         *Pattern // nil means the preset produces one-time jobs
	AllowOverride   bool
	CaptureVideo    bool
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Summary renders the preset for display, e.g. "dawn chorus: 1h30m, daily
// at 05:30".
func (t *Template) Summary() string {
	rule := "one-time"
	if t.Pattern != nil {
		rule = t.Pattern.Describe()
	}
	return fmt.Sprintf("%s: %s, %s", t.Name, formatTemplateDuration(t.DurationSeconds), rule)
}

func formatTemplateDuration(seconds int) string {
	mins := seconds / 60
	if mins >= 60 {
		return fmt.Sprintf("%dh%02dm", mins/60, mins%60)
	}
	return fmt.Sprintf("%dm", mins)
}

// TemplateUpdate carries the mutable fields of UpdateTemplate. Nil fields
// retain their stored values.
type TemplateUpdate struct {
	Name            *string
	DurationSeconds *int
	Pattern         *Pattern
	AllowOverride   *bool
	CaptureVideo    *bool
	Notes           *string
}

const templateColumns = `id, name, duration_seconds, pattern_json,
    allow_override, capture_video, notes, created_at, updated_at`

// InsertTemplate persists a new template and returns it with its ID. A
// duplicate name is a conflict, not an error in the template itself.
func (s *Store) InsertTemplate(ctx context.Context, tpl *Template) (*Template, error) {
	if tpl == nil {
		return nil, errors.New("template is nil")
	}
	patternJSON, err := encodePattern(tpl.Pattern)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	tpl.CreatedAt = now
	tpl.UpdatedAt = now

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO templates (
            name, duration_seconds, pattern_json, allow_override,
            capture_video, notes, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tpl.Name,
		tpl.DurationSeconds,
		nullableString(patternJSON),
		boolToInt(tpl.AllowOverride),
		boolToInt(tpl.CaptureVideo),
		nullableString(tpl.Notes),
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, faults.Wrap(faults.ErrConflict, "schedule", "template",
				fmt.Sprintf("template name %q already exists", tpl.Name), nil)
		}
		return nil, fmt.Errorf("insert template: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetTemplate(ctx, id)
}

// GetTemplate fetches a template by identifier. A missing template
// returns (nil, nil).
func (s *Store) GetTemplate(ctx context.Context, id int64) (*Template, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = ?`, id)
	tpl, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return tpl, nil
}

// ListTemplates returns all templates ordered by name.
func (s *Store) ListTemplates(ctx context.Context) ([]*Template, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+templateColumns+` FROM templates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []*Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	return templates, rows.Err()
}

// UpdateTemplate persists changes to an existing template.
func (s *Store) UpdateTemplate(ctx context.Context, tpl *Template) error {
	if tpl == nil {
		return errors.New("template is nil")
	}
	patternJSON, err := encodePattern(tpl.Pattern)
	if err != nil {
		return err
	}
	tpl.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE templates
         SET name = ?, duration_seconds = ?, pattern_json = ?,
             allow_override = ?, capture_video = ?, notes = ?, updated_at = ?
         WHERE id = ?`,
		tpl.Name,
		tpl.DurationSeconds,
		nullableString(patternJSON),
		boolToInt(tpl.AllowOverride),
		boolToInt(tpl.CaptureVideo),
		nullableString(tpl.Notes),
		tpl.UpdatedAt.Format(time.RFC3339Nano),
		tpl.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return faults.Wrap(faults.ErrConflict, "schedule", "template",
				fmt.Sprintf("template name %q already exists", tpl.Name), nil)
		}
		return fmt.Errorf("update template: %w", err)
	}
	return nil
}

// DeleteTemplate removes a template. Jobs created from it are untouched.
func (s *Store) DeleteTemplate(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete template: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanTemplate(scanner interface{ Scan(dest ...any) error }) (*Template, error) {
	var (
		id            int64
		name          string
		duration      int
		patternJSON   sql.NullString
		allowOverride int
		captureVideo  int
		notes         sql.NullString
		createdRaw    string
		updatedRaw    string
	)
	if err := scanner.Scan(
		&id,
		&name,
		&duration,
		&patternJSON,
		&allowOverride,
		&captureVideo,
		&notes,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	pattern, err := decodePattern(patternJSON.String)
	if err != nil {
		return nil, err
	}

	tpl := &Template{
		ID:              id,
		Name:            name,
		DurationSeconds: duration,
		Pattern:         pattern,
		AllowOverride:   allowOverride != 0,
		CaptureVideo:    captureVideo != 0,
		Notes:           notes.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		tpl.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		tpl.UpdatedAt = updated
	}
	return tpl, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateTemplate validates and persists a capture preset.
func (e *Engine) CreateTemplate(ctx context.Context, tpl Template) (*Template, error) {
	if err := e.validateTemplate(&tpl); err != nil {
		return nil, err
	}
	created, err := e.store.InsertTemplate(ctx, &tpl)
	if err != nil {
		return nil, err
	}
	e.logger.Info("template created",
		logging.Int64("template_id", created.ID),
		logging.String("name", created.Name),
	)
	return created, nil
}

// GetTemplate fetches a template, rejecting unknown IDs.
func (e *Engine) GetTemplate(ctx context.Context, id int64) (*Template, error) {
	tpl, err := e.store.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, faults.Wrap(faults.ErrNotFound, "schedule", "template",
			fmt.Sprintf("template %d does not exist", id), nil)
	}
	return tpl, nil
}

// ListTemplates returns every template ordered by name.
func (e *Engine) ListTemplates(ctx context.Context) ([]*Template, error) {
	return e.store.ListTemplates(ctx)
}

// UpdateTemplate applies non-nil fields and revalidates the result.
func (e *Engine) UpdateTemplate(ctx context.Context, id int64, upd TemplateUpdate) (*Template, error) {
	tpl, err := e.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		tpl.Name = *upd.Name
	}
	if upd.DurationSeconds != nil {
		tpl.DurationSeconds = *upd.DurationSeconds
	}
	if upd.Pattern != nil {
		tpl.Pattern = upd.Pattern
	}
	if upd.AllowOverride != nil {
		tpl.AllowOverride = *upd.AllowOverride
	}
	if upd.CaptureVideo != nil {
		tpl.CaptureVideo = *upd.CaptureVideo
	}
	if upd.Notes != nil {
		tpl.Notes = *upd.Notes
	}

	if err := e.validateTemplate(tpl); err != nil {
		return nil, err
	}
	if err := e.store.UpdateTemplate(ctx, tpl); err != nil {
		return nil, err
	}
	e.logger.Info("template updated", logging.Int64("template_id", id))
	return tpl, nil
}

// DeleteTemplate removes a template by identifier.
func (e *Engine) DeleteTemplate(ctx context.Context, id int64) error {
	deleted, err := e.store.DeleteTemplate(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return faults.Wrap(faults.ErrNotFound, "schedule", "template",
			fmt.Sprintf("template %d does not exist", id), nil)
	}
	e.logger.Info("template deleted", logging.Int64("template_id", id))
	return nil
}

// ApplyTemplate creates a job from a template. The job name defaults to
// the template's; a one-time preset needs a start time from the caller,
// a recurring one rejects it.
func (e *Engine) ApplyTemplate(ctx context.Context, id int64, name string, startAt *time.Time) (*Job, error) {
	tpl, err := e.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = tpl.Name
	}
	def := JobDefinition{
		Name:            name,
		DurationSeconds: tpl.DurationSeconds,
		Notes:           tpl.Notes,
		IsRecurring:     tpl.Pattern != nil,
		Pattern:         tpl.Pattern,
		AllowOverride:   tpl.AllowOverride,
		CaptureVideo:    tpl.CaptureVideo,
	}
	if def.IsRecurring {
		if startAt != nil {
			return nil, faults.Wrap(faults.ErrValidation, "schedule", "template",
				"recurring template does not take a start time", nil)
		}
	} else {
		if startAt == nil {
			return nil, faults.Wrap(faults.ErrValidation, "schedule", "template",
				"one-time template requires a start time", nil)
		}
		def.StartAt = startAt
	}
	return e.CreateJob(ctx, def)
}

func (e *Engine) validateTemplate(tpl *Template) error {
	name, err := admission.ValidateName(tpl.Name)
	if err != nil {
		return err
	}
	tpl.Name = name

	notes, err := admission.ValidateNotes(tpl.Notes)
	if err != nil {
		return err
	}
	tpl.Notes = notes

	duration, err := admission.ValidateDuration(tpl.DurationSeconds, tpl.AllowOverride)
	if err != nil {
		return err
	}
	tpl.DurationSeconds = duration

	if tpl.Pattern != nil {
		return tpl.Pattern.Validate()
	}
	return nil
}
