// Package model holds the collection and record types shared by the store,
// the search index, services and the HTTP layer.
package model

import (
	"time"
)

const (
	DefaultTenant   = "default_tenant"
	DefaultDatabase = "default_database"

	// SpaceKey selects the distance function of a collection.
	SpaceKey = "hnsw:space"
)

// Space is a distance function.
type Space string

const (
	SpaceL2     Space = "l2"
	SpaceCosine Space = "cosine"
	SpaceIP     Space = "ip"
)

// Valid reports whether s is a supported distance function.
func (s Space) Valid() bool {
	switch s {
	case SpaceL2, SpaceCosine, SpaceIP:
		return true
	}
	return false
}

// Metadata values are string, float64 or bool.
type Metadata map[string]interface{}

// Clone returns a shallow copy; nil stays nil.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Merge applies patch onto a copy of m. A nil value in patch removes the key.
func (m Metadata) Merge(patch Metadata) Metadata {
	out := m.Clone()
	if out == nil {
		out = Metadata{}
	}
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Validate checks keys and value types. allowNull permits nil values, used by
// updates to delete keys.
func (m Metadata) Validate(field string, allowNull bool) error {
	for k, v := range m {
		if k == "" {
			return Invalidf(field, "metadata keys must be non-empty")
		}
		switch v.(type) {
		case string, bool, float64, float32, int, int32, int64:
		case nil:
			if !allowNull {
				return Invalidf(field, "value for %q must not be null", k)
			}
		default:
			return Invalidf(field, "value for %q must be a string, number or bool", k)
		}
	}
	return nil
}

// Collection is a named set of records sharing one embedding dimension and distance space.
type Collection struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Metadata     Metadata  `json:"metadata"`
	Tenant       string    `json:"tenant"`
	Database     string    `json:"database"`
	Dimension    *int      `json:"dimension"`
	CreationTime time.Time `json:"-"`
}

// Space returns the configured distance function; l2 when unset.
func (c *Collection) Space() Space {
	if c.Metadata != nil {
		if s, ok := c.Metadata[SpaceKey].(string); ok && Space(s).Valid() {
			return Space(s)
		}
	}
	return SpaceL2
}

// Record is a single embedding row.
type Record struct {
	ID        string
	Embedding []float32
	Document  *string
	URI       *string
	Metadata  Metadata
	// Seq is the insertion order; preserved by upsert and update.
	Seq int64
}

// Include names a column returned by get and query.
type Include string

const (
	IncludeEmbeddings Include = "embeddings"
	IncludeDocuments  Include = "documents"
	IncludeMetadatas  Include = "metadatas"
	IncludeDistances  Include = "distances"
	IncludeURIs       Include = "uris"
)

var (
	DefaultGetInclude   = []Include{IncludeMetadatas, IncludeDocuments}
	DefaultQueryInclude = []Include{IncludeMetadatas, IncludeDocuments, IncludeDistances}
)

// IncludeSet is the parsed form of an include list.
type IncludeSet map[Include]bool

// ParseInclude validates values. Distances are only valid for queries.
func ParseInclude(values []string, forQuery bool) (IncludeSet, error) {
	set := IncludeSet{}
	for _, v := range values {
		inc := Include(v)
		switch inc {
		case IncludeEmbeddings, IncludeDocuments, IncludeMetadatas, IncludeURIs:
		case IncludeDistances:
			if !forQuery {
				return nil, Invalidf("include", "%q is only valid for query", v)
			}
		default:
			return nil, Invalidf("include", "unknown value %q", v)
		}
		set[inc] = true
	}
	return set, nil
}

// List returns the included columns in canonical order.
func (s IncludeSet) List() []Include {
	order := []Include{IncludeMetadatas, IncludeDocuments, IncludeEmbeddings, IncludeDistances, IncludeURIs}
	out := make([]Include, 0, len(s))
	for _, inc := range order {
		if s[inc] {
			out = append(out, inc)
		}
	}
	return out
}

// GetResult is column oriented; columns that were not included stay nil.
type GetResult struct {
	IDs        []string    `json:"ids"`
	Embeddings [][]float32 `json:"embeddings"`
	Documents  []*string   `json:"documents"`
	Metadatas  []Metadata  `json:"metadatas"`
	URIs       []*string   `json:"uris"`
	Included   []Include   `json:"included"`
}

// QueryResult holds one inner list per query embedding.
type QueryResult struct {
	IDs        [][]string    `json:"ids"`
	Embeddings [][][]float32 `json:"embeddings"`
	Documents  [][]*string   `json:"documents"`
	Metadatas  [][]Metadata  `json:"metadatas"`
	URIs       [][]*string   `json:"uris"`
	Distances  [][]float32   `json:"distances"`
	Included   []Include     `json:"included"`
}
