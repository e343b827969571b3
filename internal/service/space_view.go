package service

import (
	"context"
	"errors"

	"github.com/vogiaan1904/realtime-gateway/internal/models"
	"github.com/vogiaan1904/realtime-gateway/internal/permission"
	"github.com/vogiaan1904/realtime-gateway/internal/repository/postgres"
)

// spaceView is everything needed to resolve channel permissions for
// members of one space.
type spaceView struct {
	space   *models.Space
	channel *models.Channel
	parent  *models.Channel
	roles   map[string]models.Role
}

func loadSpaceView(ctx context.Context, store SpaceStore, spaceID, channelID string) (*spaceView, error) {
	space, err := store.GetSpace(ctx, spaceID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrSpaceNotFound
		}
		return nil, err
	}

	channel, err := store.GetChannel(ctx, channelID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrChannelNotFound
		}
		return nil, err
	}
	if channel.SpaceID != spaceID {
		return nil, ErrChannelNotFound
	}

	v := &spaceView{space: space, channel: channel, roles: make(map[string]models.Role)}
	if channel.ParentID != nil {
		parent, err := store.GetChannel(ctx, *channel.ParentID)
		if err != nil && !errors.Is(err, postgres.ErrNotFound) {
			return nil, err
		}
		v.parent = parent
	}

	roles, err := store.ListRoles(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	for _, r := range roles {
		v.roles[r.ID] = r
	}
	return v, nil
}

func (v *spaceView) parentOverwrites() []permission.Overwrite {
	if v.parent == nil {
		return nil
	}
	return v.parent.Overwrites
}

func (v *spaceView) listID() string {
	return ComputeListID(v.channel.Overwrites, v.parentOverwrites())
}

// permissions resolves m's effective permissions on the channel.
func (v *spaceView) permissions(m *models.Member) permission.Bitfield {
	everyoneID := v.space.EveryoneRoleID()
	roleBits := make([]permission.Bitfield, 0, len(m.RoleIDs))
	for _, id := range m.RoleIDs {
		if r, ok := v.roles[id]; ok {
			roleBits = append(roleBits, r.Permissions)
		}
	}
	base := permission.Base(v.roles[everyoneID].Permissions, roleBits...)

	return permission.Compute(base, v.parentOverwrites(), v.channel.Overwrites, permission.Actor{
		UserID:     m.User.ID,
		RoleIDs:    m.RoleIDs,
		EveryoneID: everyoneID,
		Owner:      v.space.OwnerID == m.User.ID,
	})
}

func (v *spaceView) canView(m *models.Member) bool {
	return v.permissions(m).Has(permission.ViewChannel)
}

// hoistedRole returns m's highest hoisted role, if any.
func (v *spaceView) hoistedRole(m *models.Member) (models.Role, bool) {
	var best models.Role
	found := false
	for _, id := range m.RoleIDs {
		r, ok := v.roles[id]
		if !ok || !r.Hoist {
			continue
		}
		if !found || r.Position > best.Position {
			best, found = r, true
		}
	}
	return best, found
}
