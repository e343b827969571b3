package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
)

type Hello struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type Identify struct {
	Token string `json:"token"`
}

type Resume struct {
	SessionID string `json:"session_id"`
}

type Ready struct {
	SessionID string    `json:"session_id"`
	User      ReadyUser `json:"user"`
}

type ReadyUser struct {
	ID string `json:"id"`
}

type Resumed struct {
	SessionID string `json:"session_id"`
	Sequence  int64  `json:"seq"`
}

type PresenceScheduleSet struct {
	Status     string `json:"status"`
	DurationMs int64  `json:"duration_ms"`
}

type VoiceStateUpdate struct {
	SpaceID   string  `json:"space_id"`
	ChannelID *string `json:"channel_id"`
	SelfMute  bool    `json:"self_mute"`
	SelfDeaf  bool    `json:"self_deaf"`
}

type LazyRequest struct {
	SpaceID  string        `json:"space_id"`
	Channels ChannelRanges `json:"channels"`
}

// Range is an inclusive [start, end] index pair into a rendered member
// list.
type Range [2]int

func (r Range) Start() int { return r[0] }
func (r Range) End() int   { return r[1] }

// MaxRangeWidth caps how many list slots one range may cover.
const MaxRangeWidth = 100

// Valid reports whether the range is non-negative and not inverted.
func (r Range) Valid() bool { return r[0] >= 0 && r[1] >= r[0] }

// Clamp shortens a valid range to at most MaxRangeWidth slots.
func (r Range) Clamp() Range {
	if r[1]-r[0] >= MaxRangeWidth {
		r[1] = r[0] + MaxRangeWidth - 1
	}
	return r
}

// ChannelRanges maps channel ids to requested ranges, remembering the
// order the channels appeared in on the wire.
type ChannelRanges struct {
	order  []string
	ranges map[string][]Range
}

func (c *ChannelRanges) Set(channelID string, ranges []Range) {
	if c.ranges == nil {
		c.ranges = make(map[string][]Range)
	}
	if _, ok := c.ranges[channelID]; !ok {
		c.order = append(c.order, channelID)
	}
	c.ranges[channelID] = ranges
}

// First returns the first channel present in the request.
func (c ChannelRanges) First() (string, []Range, bool) {
	if len(c.order) == 0 {
		return "", nil, false
	}
	id := c.order[0]
	return id, c.ranges[id], true
}

func (c ChannelRanges) Len() int { return len(c.order) }

func (c ChannelRanges) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range c.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(c.ranges[id])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (c *ChannelRanges) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("channels: expected object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return errors.New("channels: expected string key")
		}
		var ranges []Range
		if err := dec.Decode(&ranges); err != nil {
			return err
		}
		c.Set(key, ranges)
	}
	_, err = dec.Token()
	return err
}

func (c ChannelRanges) MarshalCBOR() ([]byte, error) {
	m := make(map[string][]Range, len(c.ranges))
	for id, r := range c.ranges {
		m[id] = r
	}
	return cborEnc.Marshal(m)
}

// UnmarshalCBOR walks the map item by item so the wire order of keys is
// kept.
func (c *ChannelRanges) UnmarshalCBOR(data []byte) error {
	if len(data) == 0 || data[0] == 0xf6 {
		return nil
	}
	if data[0]>>5 != 5 {
		return errors.New("channels: expected map")
	}

	count, offset, indefinite, err := cborMapHeader(data)
	if err != nil {
		return err
	}

	body := data[offset:]
	dec := cborDec.NewDecoder(bytes.NewReader(body))
	for i := uint64(0); indefinite || i < count; i++ {
		if indefinite {
			read := dec.NumBytesRead()
			if read >= len(body) {
				return errors.New("channels: unterminated map")
			}
			if body[read] == 0xff {
				return nil
			}
		}
		var key string
		if err := dec.Decode(&key); err != nil {
			return err
		}
		var ranges []Range
		if err := dec.Decode(&ranges); err != nil {
			return err
		}
		c.Set(key, ranges)
	}
	return nil
}

func cborMapHeader(data []byte) (count uint64, offset int, indefinite bool, err error) {
	info := data[0] & 0x1f
	need := map[byte]int{24: 2, 25: 3, 26: 5, 27: 9}
	switch {
	case info < 24:
		return uint64(info), 1, false, nil
	case info == 31:
		return 0, 1, true, nil
	case need[info] > 0:
		n := need[info]
		if len(data) < n {
			return 0, 0, false, errors.New("channels: truncated map header")
		}
		var buf [8]byte
		copy(buf[8-(n-1):], data[1:n])
		return binary.BigEndian.Uint64(buf[:]), n, false, nil
	}
	return 0, 0, false, errors.New("channels: invalid map header")
}
