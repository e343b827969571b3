package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/vogiaan1904/realtime-gateway/config"
	"github.com/vogiaan1904/realtime-gateway/internal/models"
	"github.com/vogiaan1904/realtime-gateway/internal/protocol"
	"github.com/vogiaan1904/realtime-gateway/internal/repository/postgres"
	"github.com/vogiaan1904/realtime-gateway/pkg/logger"
)

const (
	groupOnline  = "online"
	groupOffline = "offline"
	opSync       = "SYNC"
)

type memberListService struct {
	store    SpaceStore
	presence *PresenceStore
	hub      Hub
	changes  ChangeStream
	debounce *Debouncer
	l        logger.Logger
	delay    time.Duration
}

func NewMemberListService(
	store SpaceStore,
	presence *PresenceStore,
	hub Hub,
	changes ChangeStream,
	debounce *Debouncer,
	l logger.Logger,
	cfg config.GatewayConfig,
) MemberListService {
	return &memberListService{
		store:    store,
		presence: presence,
		hub:      hub,
		changes:  changes,
		debounce: debounce,
		l:        l,
		delay:    cfg.ResyncDelay,
	}
}

// HandleLazyRequest subscribes conn to the first channel of the request
// and syncs every valid range.
func (s *memberListService) HandleLazyRequest(ctx context.Context, conn Conn, in protocol.LazyRequest) error {
	channelID, requested, ok := in.Channels.First()
	if !ok {
		return ErrNoChannelRanges
	}
	ranges := make([]protocol.Range, 0, len(requested))
	for _, r := range requested {
		if r.Valid() {
			ranges = append(ranges, r.Clamp())
		}
	}

	view, err := s.authorize(ctx, conn, in.SpaceID, channelID)
	if err != nil {
		return err
	}

	sub := ListSubscription{
		SpaceID:   in.SpaceID,
		ChannelID: channelID,
		ListID:    view.listID(),
		Ranges:    ranges,
	}
	conn.Lists().Subscribe(sub)
	return s.sync(ctx, conn, view, sub)
}

// Resync recomputes the list behind key and re-emits every subscribed
// range. The subscription follows the list id if it changed.
func (s *memberListService) Resync(ctx context.Context, conn Conn, key string) error {
	sub, ok := conn.Lists().Get(key)
	if !ok {
		return nil
	}

	view, err := s.authorize(ctx, conn, sub.SpaceID, sub.ChannelID)
	if err != nil {
		return err
	}

	if id := view.listID(); id != sub.ListID {
		if _, ok := conn.Lists().Rekey(key, id); !ok {
			return nil
		}
		sub.ListID = id
	}
	return s.sync(ctx, conn, view, sub)
}

func (s *memberListService) ScheduleResync(conn Conn, key string) {
	s.debounce.Schedule(resyncKey(conn, key), s.delay, func() {
		ctx := context.Background()
		if err := s.Resync(ctx, conn, key); err != nil {
			s.l.Debugf(ctx, "service.memberListService.ScheduleResync: conn=%s key=%s: %v", conn.ID(), key, err)
		}
	})
}

// ResyncSpace schedules a resync of every local subscription in spaceID.
func (s *memberListService) ResyncSpace(spaceID string) {
	for _, c := range s.hub.Conns() {
		for _, key := range c.Lists().KeysInSpace(spaceID) {
			s.ScheduleResync(c, key)
		}
	}
}

// OnUserChanged schedules a resync of conn's lists that show uID.
func (s *memberListService) OnUserChanged(conn Conn, uID string) {
	for _, key := range conn.Lists().VisibleKeys(uID) {
		s.ScheduleResync(conn, key)
	}
}

func (s *memberListService) Release(conn Conn) {
	s.debounce.CancelPrefix(conn.ID() + "|")
	conn.Lists().Close()
}

func (s *memberListService) authorize(ctx context.Context, conn Conn, spaceID, channelID string) (*spaceView, error) {
	view, err := loadSpaceView(ctx, s.store, spaceID, channelID)
	if err != nil {
		return nil, err
	}

	requester, err := s.store.GetMember(ctx, spaceID, conn.UserID())
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrNotMember
		}
		return nil, err
	}
	if !view.canView(requester) {
		return nil, ErrMissingViewPerm
	}
	return view, nil
}

func (s *memberListService) sync(ctx context.Context, conn Conn, view *spaceView, sub ListSubscription) error {
	total, err := s.store.CountMembers(ctx, sub.SpaceID)
	if err != nil {
		return err
	}

	var visible []string
	for _, r := range sub.Ranges {
		update, ids, err := s.render(ctx, conn, view, sub, r, total)
		if err != nil {
			return err
		}
		if err := conn.Dispatch(protocol.EventSpaceMemberListUpdate, update); err != nil {
			return err
		}
		visible = append(visible, ids...)
	}

	conn.Lists().SetVisible(sub.Key(), visible)
	s.watch(ctx, conn, visible)
	return nil
}

type groupBucket struct {
	group   MemberListGroup
	order   int
	entries []MemberListEntry
}

// render builds the SYNC for one range: the roster page filtered to
// members who can view the channel, partitioned into hoisted role
// groups, then online, then offline.
func (s *memberListService) render(ctx context.Context, conn Conn, view *spaceView, sub ListSubscription, r protocol.Range, total int) (MemberListUpdate, []string, error) {
	members, err := s.store.ListMembers(ctx, sub.SpaceID, r.Start(), r.End()-r.Start()+1)
	if err != nil {
		return MemberListUpdate{}, nil, err
	}

	viewers := make([]models.Member, 0, len(members))
	ids := make([]string, 0, len(members))
	for i := range members {
		if view.canView(&members[i]) {
			viewers = append(viewers, members[i])
			ids = append(ids, members[i].User.ID)
		}
	}
	presences := s.presence.GetMany(ctx, ids)

	hoisted := make(map[string]*groupBucket)
	online := &groupBucket{group: MemberListGroup{ID: groupOnline, Name: "Online"}}
	offline := &groupBucket{group: MemberListGroup{ID: groupOffline, Name: "Offline"}}
	onlineCount := 0

	for _, m := range viewers {
		p := presences[m.User.ID]
		if m.User.ID != conn.UserID() {
			p = p.Public()
		}
		entry := MemberListEntry{Member: m, Presence: p}

		if !p.Status.Online() {
			offline.entries = append(offline.entries, entry)
			continue
		}
		onlineCount++

		role, ok := view.hoistedRole(&m)
		if !ok {
			online.entries = append(online.entries, entry)
			continue
		}
		b, ok := hoisted[role.ID]
		if !ok {
			b = &groupBucket{group: MemberListGroup{ID: role.ID, Name: role.Name}, order: role.Position}
			hoisted[role.ID] = b
		}
		b.entries = append(b.entries, entry)
	}

	buckets := make([]*groupBucket, 0, len(hoisted)+2)
	for _, b := range hoisted {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].order != buckets[j].order {
			return buckets[i].order > buckets[j].order
		}
		return buckets[i].group.ID < buckets[j].group.ID
	})
	buckets = append(buckets, online, offline)

	groups := make([]MemberListGroup, 0, len(buckets))
	items := make([]MemberListItem, 0, len(viewers)+len(buckets))
	for _, b := range buckets {
		g := b.group
		g.Count = len(b.entries)
		groups = append(groups, g)
		if g.Count == 0 {
			continue
		}
		items = append(items, MemberListItem{Group: &g})
		for i := range b.entries {
			items = append(items, MemberListItem{Member: &b.entries[i]})
		}
	}

	return MemberListUpdate{
		SpaceID:     sub.SpaceID,
		ChannelID:   sub.ChannelID,
		ID:          sub.ListID,
		MemberCount: total,
		OnlineCount: onlineCount,
		Groups:      groups,
		Ops: []MemberListSyncOp{{
			Op:    opSync,
			Range: r,
			Items: items,
		}},
	}, ids, nil
}

// watch subscribes conn once to the change stream of every listed user.
func (s *memberListService) watch(ctx context.Context, conn Conn, uIDs []string) {
	if s.changes == nil {
		return
	}
	for _, uID := range uIDs {
		uID := uID
		err := conn.Lists().Watch(uID, func() (func(), error) {
			return s.changes.Subscribe(UserSubject(uID), func([]byte) {
				s.OnUserChanged(conn, uID)
			})
		})
		if err != nil {
			s.l.Warnf(ctx, "service.memberListService.watch: user=%s: %v", uID, err)
		}
	}
}

// UserSubject is the change stream subject for a user.
func UserSubject(uID string) string {
	return "users." + uID + ".updated"
}

func resyncKey(conn Conn, key string) string {
	return conn.ID() + "|" + key
}
