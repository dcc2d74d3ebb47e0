package profile

import "sort"

// Merge combines a local and a cloud profile into one, conflict-free by
// construction.
//
// Facts are merged as a set keyed by QuestionID: the map is seeded from the
// cloud profile, then every local fact overlays it, replacing the existing
// entry only when its timestamp is strictly greater. Ties keep the seeded
// value, so the cloud wins exact-timestamp conflicts. Likes merge
// identically, keyed by ItemID. The result sequences are ordered ascending
// by timestamp.
//
// InitialFacts keeps the longer string when both sides have one (assumed
// more complete; the local value wins length ties), otherwise whichever is
// present. UserLocation prefers the local value.
//
// The per-key decision is a pure max-by-timestamp, so merging is idempotent
// and the winner per key is independent of argument grouping.
func Merge(local, cloud *Profile) *Profile {
	if local == nil {
		local = NewEmptyProfile()
	}
	if cloud == nil {
		cloud = NewEmptyProfile()
	}

	factMap := make(map[string]Fact, len(cloud.Facts)+len(local.Facts))
	factOrder := make([]string, 0, len(cloud.Facts)+len(local.Facts))
	for _, f := range cloud.Facts {
		if _, seen := factMap[f.QuestionID]; !seen {
			factOrder = append(factOrder, f.QuestionID)
		}
		factMap[f.QuestionID] = f
	}
	for _, f := range local.Facts {
		existing, ok := factMap[f.QuestionID]
		if !ok {
			factOrder = append(factOrder, f.QuestionID)
			factMap[f.QuestionID] = f
			continue
		}
		if f.Timestamp > existing.Timestamp {
			factMap[f.QuestionID] = f
		}
	}

	likeMap := make(map[string]Like, len(cloud.Likes)+len(local.Likes))
	likeOrder := make([]string, 0, len(cloud.Likes)+len(local.Likes))
	for _, l := range cloud.Likes {
		if _, seen := likeMap[l.ItemID]; !seen {
			likeOrder = append(likeOrder, l.ItemID)
		}
		likeMap[l.ItemID] = l
	}
	for _, l := range local.Likes {
		existing, ok := likeMap[l.ItemID]
		if !ok {
			likeOrder = append(likeOrder, l.ItemID)
			likeMap[l.ItemID] = l
			continue
		}
		if l.Timestamp > existing.Timestamp {
			likeMap[l.ItemID] = l
		}
	}

	merged := &Profile{
		Facts: make([]Fact, 0, len(factMap)),
		Likes: make([]Like, 0, len(likeMap)),
	}
	for _, id := range factOrder {
		merged.Facts = append(merged.Facts, factMap[id])
	}
	for _, id := range likeOrder {
		merged.Likes = append(merged.Likes, likeMap[id])
	}
	sort.SliceStable(merged.Facts, func(i, j int) bool {
		return merged.Facts[i].Timestamp < merged.Facts[j].Timestamp
	})
	sort.SliceStable(merged.Likes, func(i, j int) bool {
		return merged.Likes[i].Timestamp < merged.Likes[j].Timestamp
	})

	switch {
	case local.InitialFacts != "" && cloud.InitialFacts != "":
		if len(local.InitialFacts) >= len(cloud.InitialFacts) {
			merged.InitialFacts = local.InitialFacts
		} else {
			merged.InitialFacts = cloud.InitialFacts
		}
	case local.InitialFacts != "":
		merged.InitialFacts = local.InitialFacts
	default:
		merged.InitialFacts = cloud.InitialFacts
	}

	if local.UserLocation != nil {
		merged.UserLocation = local.UserLocation
	} else {
		merged.UserLocation = cloud.UserLocation
	}

	return merged
}
