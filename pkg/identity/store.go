package identity

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store persists identities and authentication requests
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a store on db
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

const identityColumns = `subject_id, display_name, email, access_token, refresh_token,
	access_expires_at, cohort_id, authenticated_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIdentity(row rowScanner) (*Identity, error) {
	var (
		ident  Identity
		cohort sql.NullString
	)
	err := row.Scan(&ident.SubjectID, &ident.DisplayName, &ident.Email,
		&ident.Token.AccessToken, &ident.Token.RefreshToken, &ident.Token.AccessExpiresAt,
		&cohort, &ident.AuthenticatedAt, &ident.UpdatedAt)
	if err != nil {
		return nil, err
	}
	ident.CohortID = cohort.String
	return &ident, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// GetIdentity returns the identity of a subject
func (s *Store) GetIdentity(ctx context.Context, subjectID string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE subject_id = $1
	`, subjectID)

	ident, err := scanIdentity(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return ident, nil
}

// FindIdentitiesByEmail returns every identity owning email, ignoring case,
// most recently authenticated first. Profile refreshes can leave more than
// one identity on the same address.
func (s *Store) FindIdentitiesByEmail(ctx context.Context, email string) ([]*Identity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE LOWER(email) = LOWER($1)
		ORDER BY authenticated_at DESC, subject_id
	`, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find identities by email: %w", err)
	}
	defer rows.Close()

	var out []*Identity
	for rows.Next() {
		ident, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		out = append(out, ident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to find identities by email: %w", err)
	}
	return out, nil
}

// SaveIdentity inserts or replaces the identity of a subject
func (s *Store) SaveIdentity(ctx context.Context, ident *Identity) error {
	ident.UpdatedAt = s.timestamp()
	if ident.AuthenticatedAt.IsZero() {
		ident.AuthenticatedAt = ident.UpdatedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identities (`+identityColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (subject_id) DO UPDATE SET
			display_name = $2,
			email = $3,
			access_token = $4,
			refresh_token = $5,
			access_expires_at = $6,
			cohort_id = $7,
			authenticated_at = $8,
			updated_at = $9
	`, ident.SubjectID, ident.DisplayName, ident.Email,
		ident.Token.AccessToken, ident.Token.RefreshToken, ident.Token.AccessExpiresAt.UTC(),
		nullString(ident.CohortID), ident.AuthenticatedAt.UTC(), ident.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save identity: %w", err)
	}
	return nil
}

// ArchiveIdentity copies an identity to archived_identities and deletes it
func (s *Store) ArchiveIdentity(ctx context.Context, ident *Identity) (*ArchivedIdentity, error) {
	archived := &ArchivedIdentity{
		SubjectID:       ident.SubjectID,
		DisplayName:     ident.DisplayName,
		Email:           ident.Email,
		CohortID:        ident.CohortID,
		AuthenticatedAt: ident.AuthenticatedAt,
		ArchivedAt:      s.timestamp(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO archived_identities (
			subject_id, archived_at, display_name, email, cohort_id, authenticated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, archived.SubjectID, archived.ArchivedAt, archived.DisplayName, archived.Email,
		nullString(archived.CohortID), archived.AuthenticatedAt.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to archive identity: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM identities WHERE subject_id = $1`, ident.SubjectID); err != nil {
		return nil, fmt.Errorf("failed to delete archived identity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit archive: %w", err)
	}
	return archived, nil
}

// ListArchivedIdentities returns the archive entries of a subject, newest first
func (s *Store) ListArchivedIdentities(ctx context.Context, subjectID string) ([]*ArchivedIdentity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject_id, archived_at, display_name, email, cohort_id, authenticated_at
		FROM archived_identities
		WHERE subject_id = $1
		ORDER BY archived_at DESC
	`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list archived identities: %w", err)
	}
	defer rows.Close()

	var out []*ArchivedIdentity
	for rows.Next() {
		var (
			a      ArchivedIdentity
			cohort sql.NullString
		)
		if err := rows.Scan(&a.SubjectID, &a.ArchivedAt, &a.DisplayName, &a.Email, &cohort, &a.AuthenticatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan archived identity: %w", err)
		}
		a.CohortID = cohort.String
		out = append(out, &a)
	}
	return out, rows.Err()
}

// ListSubjectIDs returns the subject id of every identity
func (s *Store) ListSubjectIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT subject_id FROM identities ORDER BY subject_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subject ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan subject id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountIdentities returns the number of identities and how many of them
// have a resolved cohort
func (s *Store) CountIdentities(ctx context.Context) (total, withCohort int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(cohort_id) FROM identities
	`).Scan(&total, &withCohort)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count identities: %w", err)
	}
	return total, withCohort, nil
}

// CreateRequest persists a new authentication request
func (s *Store) CreateRequest(ctx context.Context, req *AuthenticationRequest) error {
	if req.RequestedAt.IsZero() {
		req.RequestedAt = s.timestamp()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO authentication_requests (csrf_token, subject_id, requested_at)
		VALUES ($1, $2, $3)
	`, req.CSRFToken, req.SubjectID, req.RequestedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create authentication request: %w", err)
	}
	return nil
}

// GetRequest returns the authentication request for a CSRF token
func (s *Store) GetRequest(ctx context.Context, csrfToken string) (*AuthenticationRequest, error) {
	var (
		req         AuthenticationRequest
		confirmedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT csrf_token, subject_id, requested_at, confirmed_at
		FROM authentication_requests
		WHERE csrf_token = $1
	`, csrfToken).Scan(&req.CSRFToken, &req.SubjectID, &req.RequestedAt, &confirmedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get authentication request: %w", err)
	}
	if confirmedAt.Valid {
		t := confirmedAt.Time
		req.ConfirmedAt = &t
	}
	return &req, nil
}

// MarkConfirmed sets confirmed_at on a pending request. It returns
// ErrAlreadyConfirmed when the request is no longer pending.
func (s *Store) MarkConfirmed(ctx context.Context, csrfToken string) (time.Time, error) {
	at := s.timestamp()
	result, err := s.db.ExecContext(ctx, `
		UPDATE authentication_requests
		SET confirmed_at = $1
		WHERE csrf_token = $2 AND confirmed_at IS NULL
	`, at, csrfToken)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to confirm authentication request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to confirm authentication request: %w", err)
	}
	if rows == 0 {
		return time.Time{}, ErrAlreadyConfirmed
	}
	return at, nil
}

// PurgeRequests deletes pending authentication requests created before
// cutoff. Confirmed requests are kept so a replayed callback still reports
// AlreadyConfirmed.
func (s *Store) PurgeRequests(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM authentication_requests
		WHERE requested_at < $1 AND confirmed_at IS NULL
	`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge authentication requests: %w", err)
	}
	return result.RowsAffected()
}
