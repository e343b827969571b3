package permission

type OverwriteType int

const (
	OverwriteRole OverwriteType = iota
	OverwriteMember
)

// Overwrite adjusts permissions for one role or member on a channel or
// category.
type Overwrite struct {
	ID    string        `json:"id"`
	Type  OverwriteType `json:"type"`
	Allow Bitfield      `json:"allow"`
	Deny  Bitfield      `json:"deny"`
}

// Touches reports whether the overwrite allows or denies any bit of p.
func (o Overwrite) Touches(p Bitfield) bool {
	return (o.Allow|o.Deny)&p != 0
}

// Actor identifies whose permissions are being computed. EveryoneID is
// the id of the space's @everyone role, which every member implicitly
// holds.
type Actor struct {
	UserID     string
	RoleIDs    []string
	EveryoneID string
	// Owner short-circuits to All.
	Owner bool
}

// Base combines the @everyone role bits with the bits of every role the
// actor holds.
func Base(everyone Bitfield, roles ...Bitfield) Bitfield {
	b := everyone
	for _, r := range roles {
		b |= r
	}
	return b
}

// Compute resolves the effective permissions for actor on a channel.
// Tiers apply in order: base bits, then the parent category overwrites,
// then the channel's own overwrites. Within a tier the @everyone
// overwrite applies first, then the union of the actor's role
// overwrites, then the actor's member overwrite; at each step deny beats
// allow. Administrator on the base bits grants everything.
func Compute(base Bitfield, parent, channel []Overwrite, actor Actor) Bitfield {
	if actor.Owner || base.Has(Administrator) {
		return All
	}

	perms := base
	perms = applyTier(perms, parent, actor)
	perms = applyTier(perms, channel, actor)
	return perms
}

func applyTier(perms Bitfield, overwrites []Overwrite, actor Actor) Bitfield {
	if len(overwrites) == 0 {
		return perms
	}

	var everyone, member *Overwrite
	var roleAllow, roleDeny Bitfield
	for i := range overwrites {
		ow := &overwrites[i]
		switch {
		case ow.Type == OverwriteRole && ow.ID == actor.EveryoneID:
			everyone = ow
		case ow.Type == OverwriteRole && holds(actor.RoleIDs, ow.ID):
			roleAllow |= ow.Allow
			roleDeny |= ow.Deny
		case ow.Type == OverwriteMember && ow.ID == actor.UserID:
			member = ow
		}
	}

	if everyone != nil {
		perms = (perms | everyone.Allow) &^ everyone.Deny
	}
	perms = (perms | roleAllow) &^ roleDeny
	if member != nil {
		perms = (perms | member.Allow) &^ member.Deny
	}
	return perms
}

func holds(roleIDs []string, id string) bool {
	for _, r := range roleIDs {
		if r == id {
			return true
		}
	}
	return false
}
