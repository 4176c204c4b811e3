// Package membership reconciles persisted member/admin stores into their
// canonical id-keyed form and derives room roles.
package membership

import (
	"sort"

	"roomchat/internal/models"
)

// Result is the canonical form of a member store.
type Result struct {
	Map  map[string]models.Member
	List []models.Member
	// Mutated reports that the stored shape must be rewritten as Map.
	Mutated bool
}

// Normalize converts store into a map keyed by member id. Records without an
// id are dropped and records without a role get fallback.
//
// Mutated is true only for list-shaped input. Keyed input is reported as not
// mutated even when roles were defaulted or id-less records were dropped;
// legacy rooms depend on that and it must not change.
func Normalize(store models.MemberStore, fallback models.Role) Result {
	out := Result{Map: make(map[string]models.Member)}

	assign := func(m models.Member) {
		if m.ID == "" {
			return
		}
		if m.Role == "" {
			m.Role = fallback
		}
		out.Map[m.ID] = m
	}

	switch store.Shape {
	case models.ShapeList:
		for _, m := range store.List {
			assign(m)
		}
		out.Mutated = true
	case models.ShapeKeyed:
		for _, m := range store.Keyed {
			assign(m)
		}
	}

	out.List = listOf(out.Map)
	return out
}

func listOf(m map[string]models.Member) []models.Member {
	list := make([]models.Member, 0, len(m))
	for _, member := range m {
		list = append(list, member)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}
