package service

import (
	"encoding/hex"
	"sort"
	"strings"

	"github.com/vogiaan1904/realtime-gateway/internal/permission"
	"github.com/zeebo/blake3"
)

const everyoneListID = "everyone"

// ComputeListID fingerprints the overwrites that decide who can view a
// channel. Channels with equal fingerprints render identical lists.
func ComputeListID(channel, parent []permission.Overwrite) string {
	tiers := []struct {
		tag string
		ows []permission.Overwrite
	}{
		{"ch", channel},
		{"parent", parent},
	}

	// Entries carry their tier: the channel tier overrides the parent tier.
	seen := make(map[string]struct{})
	for _, tier := range tiers {
		for _, ow := range tier.ows {
			if ow.Allow.Has(permission.ViewChannel) {
				seen[tier.tag+":allow:"+ow.ID] = struct{}{}
			}
			if ow.Deny.Has(permission.ViewChannel) {
				seen[tier.tag+":deny:"+ow.ID] = struct{}{}
			}
		}
	}
	if len(seen) == 0 {
		return everyoneListID
	}

	entries := make([]string, 0, len(seen))
	for e := range seen {
		entries = append(entries, e)
	}
	sort.Strings(entries)

	sum := blake3.Sum256([]byte(strings.Join(entries, ",")))
	return hex.EncodeToString(sum[:8])
}
