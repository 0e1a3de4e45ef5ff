package crs

// Mapping is the bidirectional lookup between internal room-type/rate-plan
// identifiers and the external CRS vocabulary. It is built once from static
// configuration and read-only afterwards.
//
// Resolution order: explicit entry keyed by id, then entry keyed by the
// stable code/slug, then identity fallback (pass the internal value through).
// The fallback keeps unmapped deployments, notably the mock provider, working.
type Mapping struct {
	roomTypes map[string]string
	ratePlans map[string]string
}

func NewMapping(roomTypes, ratePlans map[string]string) *Mapping {
	m := &Mapping{
		roomTypes: make(map[string]string, len(roomTypes)),
		ratePlans: make(map[string]string, len(ratePlans)),
	}
	for k, v := range roomTypes {
		m.roomTypes[k] = v
	}
	for k, v := range ratePlans {
		m.ratePlans[k] = v
	}
	return m
}

func (m *Mapping) RoomTypeCode(id, code string) string {
	return resolve(m.roomTypes, id, code)
}

func (m *Mapping) RatePlanCode(id, code string) string {
	return resolve(m.ratePlans, id, code)
}

// MatchesRoomType reports whether an external code refers to the internal
// room type identified by id/code.
func (m *Mapping) MatchesRoomType(external, id, code string) bool {
	return external == resolve(m.roomTypes, id, code)
}

func (m *Mapping) MatchesRatePlan(external, id, code string) bool {
	return external == resolve(m.ratePlans, id, code)
}

func resolve(table map[string]string, id, code string) string {
	if v, ok := table[id]; ok {
		return v
	}
	if code != "" {
		if v, ok := table[code]; ok {
			return v
		}
		return code
	}
	return id
}
