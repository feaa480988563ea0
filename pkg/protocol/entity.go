package protocol

// Vec3 carries a position or an euler rotation on the wire.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// EntityState describes a networked entity well enough to recreate it: the
// template it was spawned from, its owner, and its initial pose. It is the
// payload of an instantiate confirmation and, as a list, of the bulk sync a
// late joiner receives.
//
// A locally initiated instantiate request carries ID 0; the authoritative id
// is assigned by the server and arrives on the echoed confirmation.
type EntityState struct {
	ID         int    `json:"id"`
	PrefabName string `json:"prefabName"`
	CreatorID  string `json:"creatorId"`
	Position   Vec3   `json:"position"`
	Rotation   Vec3   `json:"rotation"`
}

// EntityRef identifies an entity and its owner without the spawn data. The
// room authority pushes a list of these so the server can seed late joiners.
type EntityRef struct {
	ID        int    `json:"id"`
	CreatorID string `json:"creatorId"`
}

// Destroy names the entity to remove everywhere.
type Destroy struct {
	ID int `json:"id"`
}
