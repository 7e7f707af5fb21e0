package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ministerio/gestao-engine/members"
)

// =============================================================================
// MEMBERS STORE (members.Store interface)
// =============================================================================

type MembersStore struct {
	q querier
}

var _ members.Store = (*MembersStore)(nil)

const memberColumns = `id, name, email, phone, birth_date, active, created_at, updated_at`

func (s *MembersStore) InsertMember(ctx context.Context, m members.Member) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO members (`+memberColumns+`)
		VALUES (`+placeholders(8)+`)`,
		m.ID, m.Name, nullString(m.Email), nullString(m.Phone), nullTime(m.BirthDate),
		m.Active, formatTime(m.CreatedAt), formatTime(m.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert member: %w", classify(err))
	}
	return nil
}

func (s *MembersStore) GetMember(ctx context.Context, id members.MemberID) (*members.Member, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE id = ?`, id)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MembersStore) ListMembers(ctx context.Context) ([]members.Member, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+memberColumns+` FROM members ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	out := make([]members.Member, 0)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *MembersStore) SetMemberActive(ctx context.Context, id members.MemberID, active bool, at time.Time) error {
	return execOne(ctx, s.q, "member", string(id),
		`UPDATE members SET active = ?, updated_at = ? WHERE id = ?`,
		active, formatTime(at), id)
}

func scanMember(row scanner) (members.Member, error) {
	var (
		m                  members.Member
		email, phone, born sql.NullString
		createdAt, updated string
	)
	err := row.Scan(&m.ID, &m.Name, &email, &phone, &born, &m.Active, &createdAt, &updated)
	if err != nil {
		if err == sql.ErrNoRows {
			return m, err
		}
		return m, fmt.Errorf("failed to scan member: %w", err)
	}
	m.Email = email.String
	m.Phone = phone.String
	var tp timeParser
	m.BirthDate = tp.parseNull(born)
	m.CreatedAt = tp.parse(createdAt)
	m.UpdatedAt = tp.parse(updated)
	if err := tp.err; err != nil {
		return m, err
	}
	return m, nil
}
