package office

// zoneCatalog is the fixed set of office zones present in every room.
// Zones are created once at room startup and live for the room's
// lifetime; only their membership changes.
var zoneCatalog = []struct {
	ID   string
	Name string
}{
	{"conference-a", "Conference Room A"},
	{"brainstorm", "Brainstorm Zone"},
	{"collaboration", "Collaboration Area"},
	{"coffee", "Coffee Corner"},
	{"quiet-work", "Quiet Work Zone"},
	{"presentation", "Presentation Hall"},
}

// Zone is one office zone: a display name, the current membership
// (session id -> username) and, via the room's chat log, its own
// message scope keyed by the zone id.
type Zone struct {
	ID      string
	Name    string
	members map[string]string
}

// newZones builds the zone catalog for a fresh room. The returned slice
// preserves catalog order for deterministic scans; the map indexes the
// same Zone values by id.
func newZones() ([]*Zone, map[string]*Zone) {
	list := make([]*Zone, 0, len(zoneCatalog))
	byID := make(map[string]*Zone, len(zoneCatalog))
	for _, entry := range zoneCatalog {
		z := &Zone{
			ID:      entry.ID,
			Name:    entry.Name,
			members: make(map[string]string),
		}
		list = append(list, z)
		byID[z.ID] = z
	}
	return list, byID
}
