package gateway

import (
	"context"
	"errors"

	"github.com/vogiaan1904/realtime-gateway/internal/models"
	"github.com/vogiaan1904/realtime-gateway/internal/protocol"
	"github.com/vogiaan1904/realtime-gateway/internal/service"
)

func (s *Server) handle(ctx context.Context, c *Conn, in *protocol.Inbound) error {
	switch in.Op {
	case protocol.OpHeartbeat:
		return s.handleHeartbeat(ctx, c)
	case protocol.OpIdentify:
		return s.handleIdentify(ctx, c, in)
	case protocol.OpResume:
		return s.handleResume(ctx, c, in)
	}

	if !c.session.Authenticated() {
		switch in.Op {
		case protocol.OpPresenceScheduleSet, protocol.OpPresenceScheduleClear, protocol.OpVoiceStateUpdate:
			c.Close(protocol.CloseNotAuthenticated, "not authenticated")
		default:
			s.l.Debugf(ctx, "gateway.Server.handle: dropping %s before authentication", in.Op)
		}
		return nil
	}

	switch in.Op {
	case protocol.OpPresenceUpdate:
		return s.handlePresenceUpdate(ctx, c, in)
	case protocol.OpPresenceScheduleSet:
		return s.handleScheduleSet(ctx, c, in)
	case protocol.OpPresenceScheduleClear:
		return s.svc.Presence.ClearScheduledStatus(ctx, c.UserID())
	case protocol.OpLazyRequest:
		return s.handleLazyRequest(ctx, c, in)
	case protocol.OpVoiceStateUpdate:
		return s.handleVoiceStateUpdate(ctx, c, in)
	}
	return nil
}

func (s *Server) handleHeartbeat(ctx context.Context, c *Conn) error {
	s.armHeartbeat(c)
	if err := c.Send(protocol.OpHeartbeatAck, nil); err != nil {
		return err
	}
	if c.session.Authenticated() {
		s.svc.Voice.Touch(ctx, c.UserID())
	}
	return nil
}

func (s *Server) handleIdentify(ctx context.Context, c *Conn, in *protocol.Inbound) error {
	if c.session.Authenticated() {
		s.l.Debugf(ctx, "gateway.Server.handleIdentify: already authenticated")
		return nil
	}

	var p protocol.Identify
	if err := in.Bind(&p); err != nil {
		return err
	}

	ss, err := s.svc.Sessions.Identify(ctx, p.Token)
	if err != nil {
		s.l.Infof(ctx, "gateway.Server.handleIdentify: %v", err)
		s.invalidate(c)
		return nil
	}

	c.session.authenticate(ss.ID, ss.UserID, ss.Sequence)
	c.session.disarmReady()
	if err := c.Dispatch(protocol.EventReady, protocol.Ready{
		SessionID: ss.ID,
		User:      protocol.ReadyUser{ID: ss.UserID},
	}); err != nil {
		return err
	}
	return s.activate(ctx, c)
}

func (s *Server) handleResume(ctx context.Context, c *Conn, in *protocol.Inbound) error {
	if c.session.Authenticated() {
		s.l.Debugf(ctx, "gateway.Server.handleResume: already authenticated")
		return nil
	}

	var p protocol.Resume
	if err := in.Bind(&p); err != nil {
		return err
	}

	ss, err := s.svc.Sessions.Resume(ctx, p.SessionID)
	if err != nil {
		s.l.Infof(ctx, "gateway.Server.handleResume: %v", err)
		s.invalidate(c)
		return nil
	}

	c.session.authenticate(ss.ID, ss.UserID, ss.Sequence)
	c.session.disarmReady()
	if err := c.Dispatch(protocol.EventResumed, protocol.Resumed{
		SessionID: ss.ID,
		Sequence:  ss.Sequence,
	}); err != nil {
		return err
	}
	return s.activate(ctx, c)
}

// activate registers an authenticated socket and publishes the user's
// presence.
func (s *Server) activate(ctx context.Context, c *Conn) error {
	s.registry.Add(c)
	return s.svc.Presence.OnAuthenticated(ctx, c)
}

func (s *Server) invalidate(c *Conn) {
	if err := c.Send(protocol.OpInvalidSession, false); err != nil {
		return
	}
	c.Close(protocol.CloseInvalidSession, "invalid session")
}

func (s *Server) handlePresenceUpdate(ctx context.Context, c *Conn, in *protocol.Inbound) error {
	var p service.PresenceUpdateInput
	if err := in.Bind(&p); err != nil {
		return err
	}
	return s.svc.Presence.HandleUpdate(ctx, c, p)
}

func (s *Server) handleScheduleSet(ctx context.Context, c *Conn, in *protocol.Inbound) error {
	var p protocol.PresenceScheduleSet
	if err := in.Bind(&p); err != nil {
		return err
	}
	return s.svc.Presence.SetScheduledStatus(ctx, c.UserID(), models.PresenceStatus(p.Status), p.DurationMs)
}

func (s *Server) handleLazyRequest(ctx context.Context, c *Conn, in *protocol.Inbound) error {
	var p protocol.LazyRequest
	if err := in.Bind(&p); err != nil {
		return err
	}
	return s.svc.Lists.HandleLazyRequest(ctx, c, p)
}

func (s *Server) handleVoiceStateUpdate(ctx context.Context, c *Conn, in *protocol.Inbound) error {
	var p protocol.VoiceStateUpdate
	if err := in.Bind(&p); err != nil {
		return err
	}

	err := s.svc.Voice.HandleStateUpdate(ctx, c, p)
	switch {
	case errors.Is(err, service.ErrVoicePermission),
		errors.Is(err, service.ErrNotVoiceChannel),
		errors.Is(err, service.ErrNotMember),
		errors.Is(err, service.ErrChannelNotFound):
		s.l.Debugf(ctx, "gateway.Server.handleVoiceStateUpdate: dropped: %v", err)
		return nil
	}
	return err
}
