package permission

import (
	"encoding/json"
	"testing"
)

const everyoneID = "space-1"

func TestComputePrecedence(t *testing.T) {
	member := Actor{UserID: "u1", RoleIDs: []string{"mod"}, EveryoneID: everyoneID}

	tests := []struct {
		name    string
		base    Bitfield
		parent  []Overwrite
		channel []Overwrite
		actor   Actor
		want    bool
	}{
		{
			name: "base bits only",
			base: ViewChannel,
			want: true,
		},
		{
			name:    "channel everyone deny",
			base:    ViewChannel,
			channel: []Overwrite{{ID: everyoneID, Type: OverwriteRole, Deny: ViewChannel}},
			want:    false,
		},
		{
			name: "role allow beats everyone deny",
			base: ViewChannel,
			channel: []Overwrite{
				{ID: everyoneID, Type: OverwriteRole, Deny: ViewChannel},
				{ID: "mod", Type: OverwriteRole, Allow: ViewChannel},
			},
			want: true,
		},
		{
			name: "role deny beats role allow in the same tier",
			base: 0,
			channel: []Overwrite{
				{ID: "mod", Type: OverwriteRole, Allow: ViewChannel},
				{ID: "mod", Type: OverwriteRole, Deny: ViewChannel},
			},
			want: false,
		},
		{
			name: "member overwrite applies after roles",
			base: ViewChannel,
			channel: []Overwrite{
				{ID: "mod", Type: OverwriteRole, Deny: ViewChannel},
				{ID: "u1", Type: OverwriteMember, Allow: ViewChannel},
			},
			want: true,
		},
		{
			name:    "channel allow overrides parent deny",
			base:    ViewChannel,
			parent:  []Overwrite{{ID: everyoneID, Type: OverwriteRole, Deny: ViewChannel}},
			channel: []Overwrite{{ID: "u1", Type: OverwriteMember, Allow: ViewChannel}},
			want:    true,
		},
		{
			name:   "parent deny inherited",
			base:   ViewChannel,
			parent: []Overwrite{{ID: "mod", Type: OverwriteRole, Deny: ViewChannel}},
			want:   false,
		},
		{
			name:    "administrator bypasses overwrites",
			base:    Administrator,
			channel: []Overwrite{{ID: "u1", Type: OverwriteMember, Deny: ViewChannel}},
			want:    true,
		},
		{
			name:    "owner bypasses overwrites",
			channel: []Overwrite{{ID: "u1", Type: OverwriteMember, Deny: ViewChannel}},
			actor:   Actor{UserID: "u1", EveryoneID: everyoneID, Owner: true},
			want:    true,
		},
		{
			name:    "overwrite for another member ignored",
			base:    ViewChannel,
			channel: []Overwrite{{ID: "u2", Type: OverwriteMember, Deny: ViewChannel}},
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actor := tt.actor
			if actor.UserID == "" {
				actor = member
			}
			got := Compute(tt.base, tt.parent, tt.channel, actor).Has(ViewChannel)
			if got != tt.want {
				t.Fatalf("Compute(...).Has(ViewChannel) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPredicates(t *testing.T) {
	b := ViewChannel | Connect
	if !b.Has(ViewChannel) || b.Has(Speak) {
		t.Fatal("Has mismatch")
	}
	if !b.HasAny(Speak, Connect) || b.HasAny(Speak, Stream) {
		t.Fatal("HasAny mismatch")
	}
	if !b.HasAll(ViewChannel, Connect) || b.HasAll(ViewChannel, Speak) {
		t.Fatal("HasAll mismatch")
	}
	if b.Remove(Connect).Has(Connect) || !b.Add(Speak).Has(Speak) {
		t.Fatal("Add/Remove mismatch")
	}
}

func TestParse(t *testing.T) {
	got, err := Parse("view_channel | CONNECT")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != ViewChannel|Connect {
		t.Fatalf("Parse = %d", got)
	}

	got, err = Parse("1024")
	if err != nil || got != ViewChannel {
		t.Fatalf("Parse(1024) = %d, %v", got, err)
	}

	if _, err := Parse("FLY"); err == nil {
		t.Fatal("Parse(FLY) succeeded")
	}
}

func TestBitfieldJSONAcceptsStringAndNumber(t *testing.T) {
	var fromString, fromNumber Bitfield
	if err := json.Unmarshal([]byte(`"1048576"`), &fromString); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(`1048576`), &fromNumber); err != nil {
		t.Fatal(err)
	}
	if fromString != Connect || fromNumber != Connect {
		t.Fatalf("got %d and %d, want %d", fromString, fromNumber, Connect)
	}

	out, err := json.Marshal(Connect)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `"1048576"` {
		t.Fatalf("Marshal = %s", out)
	}
}
