package models

// Record is a single schemaless entity inside one of the database collections.
// Every field comes from the client except "id", which is assigned by the
// store at creation time and is never overwritten afterwards.
type Record map[string]any

// ID returns the record's identifier, or "" if none has been assigned yet.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// Clone returns a shallow copy of the record. Nested values are shared.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Database is the full contents of the primary JSON document. The key names
// are the on-disk format and must not change: existing installations and the
// embedded client both depend on them.
type Database struct {
	Operai        []Record `json:"operai"`        // workers
	Cantieri      []Record `json:"cantieri"`      // sites
	Giornate      []Record `json:"giornate"`      // attendance days
	Registrazioni []Record `json:"registrazioni"` // recordings
	Segnalazioni  []Record `json:"segnalazioni"`  // issue reports
	Diari         []Record `json:"diari"`         // site diary entries
}

// Normalize replaces nil collection slices with empty ones so that a loaded
// document always contains all six collections and marshals to arrays, not
// null.
func (d *Database) Normalize() {
	if d.Operai == nil {
		d.Operai = []Record{}
	}
	if d.Cantieri == nil {
		d.Cantieri = []Record{}
	}
	if d.Giornate == nil {
		d.Giornate = []Record{}
	}
	if d.Registrazioni == nil {
		d.Registrazioni = []Record{}
	}
	if d.Segnalazioni == nil {
		d.Segnalazioni = []Record{}
	}
	if d.Diari == nil {
		d.Diari = []Record{}
	}
}

// Account is one entry of the users file. The password field holds the
// digest computed by the client before the request reaches the server; the
// store never hashes anything itself.
type Account struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// DocumentMeta describes one uploaded file in a worker's document directory.
// Name is the physical on-disk filename (timestamp-prefixed); DisplayName is
// the human-facing name with the prefix stripped.
type DocumentMeta struct {
	Name        string `json:"nome"`
	DisplayName string `json:"nomeVisuale"`
	Size        int64  `json:"dimensione"`
	UploadedAt  string `json:"caricatoIl"` // RFC 3339
}
