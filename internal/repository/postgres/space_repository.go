package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vogiaan1904/realtime-gateway/internal/models"
	"github.com/vogiaan1904/realtime-gateway/internal/permission"
	"github.com/vogiaan1904/realtime-gateway/pkg/logger"
)

var ErrNotFound = errors.New("not found")

// SpaceRepository is a read-only view over the persistent space schema.
type SpaceRepository interface {
	GetSpace(ctx context.Context, spaceID string) (*models.Space, error)
	GetChannel(ctx context.Context, channelID string) (*models.Channel, error)
	ListRoles(ctx context.Context, spaceID string) ([]models.Role, error)
	GetMember(ctx context.Context, spaceID, userID string) (*models.Member, error)
	// ListMembers pages the roster in join order.
	ListMembers(ctx context.Context, spaceID string, offset, limit int) ([]models.Member, error)
	CountMembers(ctx context.Context, spaceID string) (int, error)
}

type pgSpaceRepository struct {
	pool *pgxpool.Pool
	l    logger.Logger
}

func NewPgSpaceRepository(pool *pgxpool.Pool, l logger.Logger) SpaceRepository {
	return &pgSpaceRepository{
		pool: pool,
		l:    l,
	}
}

const getSpaceSQL = `SELECT id, name, owner_id FROM spaces WHERE id = $1`

func (r *pgSpaceRepository) GetSpace(ctx context.Context, spaceID string) (*models.Space, error) {
	var s models.Space
	err := r.pool.QueryRow(ctx, getSpaceSQL, spaceID).Scan(&s.ID, &s.Name, &s.OwnerID)
	if err != nil {
		return nil, r.mapErr(ctx, "pgSpaceRepository.GetSpace", err)
	}
	return &s, nil
}

const getChannelSQL = `
	SELECT id, space_id, parent_id, type, name
	FROM channels
	WHERE id = $1`

const listOverwritesSQL = `
	SELECT target_id, target_type, allow, deny
	FROM channel_overwrites
	WHERE channel_id = $1
	ORDER BY target_type, target_id`

func (r *pgSpaceRepository) GetChannel(ctx context.Context, channelID string) (*models.Channel, error) {
	var ch models.Channel
	err := r.pool.QueryRow(ctx, getChannelSQL, channelID).Scan(&ch.ID, &ch.SpaceID, &ch.ParentID, &ch.Type, &ch.Name)
	if err != nil {
		return nil, r.mapErr(ctx, "pgSpaceRepository.GetChannel", err)
	}

	rows, err := r.pool.Query(ctx, listOverwritesSQL, channelID)
	if err != nil {
		return nil, r.mapErr(ctx, "pgSpaceRepository.GetChannel.Overwrites", err)
	}
	ch.Overwrites, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (permission.Overwrite, error) {
		var (
			ow          permission.Overwrite
			allow, deny int64
		)
		err := row.Scan(&ow.ID, &ow.Type, &allow, &deny)
		ow.Allow = permission.Bitfield(allow)
		ow.Deny = permission.Bitfield(deny)
		return ow, err
	})
	if err != nil {
		return nil, r.mapErr(ctx, "pgSpaceRepository.GetChannel.Overwrites", err)
	}

	return &ch, nil
}

const listRolesSQL = `
	SELECT id, space_id, name, position, permissions, hoist, color
	FROM roles
	WHERE space_id = $1
	ORDER BY position DESC, id`

func (r *pgSpaceRepository) ListRoles(ctx context.Context, spaceID string) ([]models.Role, error) {
	rows, err := r.pool.Query(ctx, listRolesSQL, spaceID)
	if err != nil {
		return nil, r.mapErr(ctx, "pgSpaceRepository.ListRoles", err)
	}

	roles, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Role, error) {
		var (
			role  models.Role
			perms int64
		)
		err := row.Scan(&role.ID, &role.SpaceID, &role.Name, &role.Position, &perms, &role.Hoist, &role.Color)
		role.Permissions = permission.Bitfield(perms)
		return role, err
	})
	if err != nil {
		return nil, r.mapErr(ctx, "pgSpaceRepository.ListRoles", err)
	}
	return roles, nil
}

const memberColumns = `
	SELECT m.user_id, u.username, COALESCE(u.avatar, ''), u.bot,
	       m.space_id, COALESCE(m.nick, ''), m.joined_at, m.mute, m.deaf,
	       COALESCE(array_agg(mr.role_id) FILTER (WHERE mr.role_id IS NOT NULL), '{}')
	FROM members m
	JOIN users u ON u.id = m.user_id
	LEFT JOIN member_roles mr ON mr.space_id = m.space_id AND mr.user_id = m.user_id`

const getMemberSQL = memberColumns + `
	WHERE m.space_id = $1 AND m.user_id = $2
	GROUP BY m.user_id, u.id, m.space_id`

const listMembersSQL = memberColumns + `
	WHERE m.space_id = $1
	GROUP BY m.user_id, u.id, m.space_id
	ORDER BY m.joined_at, m.user_id
	OFFSET $2 LIMIT $3`

func (r *pgSpaceRepository) GetMember(ctx context.Context, spaceID, userID string) (*models.Member, error) {
	rows, err := r.pool.Query(ctx, getMemberSQL, spaceID, userID)
	if err != nil {
		return nil, r.mapErr(ctx, "pgSpaceRepository.GetMember", err)
	}

	m, err := pgx.CollectExactlyOneRow(rows, scanMember)
	if err != nil {
		return nil, r.mapErr(ctx, "pgSpaceRepository.GetMember", err)
	}
	return &m, nil
}

func (r *pgSpaceRepository) ListMembers(ctx context.Context, spaceID string, offset, limit int) ([]models.Member, error) {
	rows, err := r.pool.Query(ctx, listMembersSQL, spaceID, offset, limit)
	if err != nil {
		return nil, r.mapErr(ctx, "pgSpaceRepository.ListMembers", err)
	}

	members, err := pgx.CollectRows(rows, scanMember)
	if err != nil {
		return nil, r.mapErr(ctx, "pgSpaceRepository.ListMembers", err)
	}
	return members, nil
}

const countMembersSQL = `SELECT COUNT(*) FROM members WHERE space_id = $1`

func (r *pgSpaceRepository) CountMembers(ctx context.Context, spaceID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countMembersSQL, spaceID).Scan(&n); err != nil {
		return 0, r.mapErr(ctx, "pgSpaceRepository.CountMembers", err)
	}
	return n, nil
}

func scanMember(row pgx.CollectableRow) (models.Member, error) {
	var (
		m        models.Member
		joinedAt time.Time
	)
	err := row.Scan(
		&m.User.ID, &m.User.Username, &m.User.Avatar, &m.User.Bot,
		&m.SpaceID, &m.Nick, &joinedAt, &m.SpaceMute, &m.SpaceDeaf,
		&m.RoleIDs,
	)
	m.JoinedAt = joinedAt.UnixMilli()
	return m, err
}

func (r *pgSpaceRepository) mapErr(ctx context.Context, op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	r.l.Errorf(ctx, "%s: %v", op, err)
	return err
}
