package memory

import "time"

// Type is the closed set of memory kinds the extractor recognizes, per
// spec §4.8.
type Type string

const (
	TypePreference   Type = "preference"
	TypeDecision     Type = "decision"
	TypeFact         Type = "fact"
	TypeEntity       Type = "entity"
	TypeRelationship Type = "relationship"
)

// baseImportance is the starting importance assigned to a freshly
// extracted candidate before the surprise-weighted bump.
var baseImportance = map[Type]float64{
	TypePreference:   0.7,
	TypeDecision:     0.8,
	TypeFact:         0.6,
	TypeEntity:       0.4,
	TypeRelationship: 0.5,
}

// Record is a single long-term memory row. Readers of the store only ever
// see Record values (not *gorm.Model pointers), matching spec §4 "readers
// get immutable copies".
type Record struct {
	ID             string    `gorm:"column:id;primaryKey"`
	SessionID      string    `gorm:"column:session_id"`
	Content        string    `gorm:"column:content"`
	Type           Type      `gorm:"column:type"`
	Category       string    `gorm:"column:category"`
	Importance     float64   `gorm:"column:importance"`
	SurpriseScore  float64   `gorm:"column:surprise_score"`
	AccessCount    int       `gorm:"column:access_count"`
	DecayFactor    float64   `gorm:"column:decay_factor"`
	SourceTurnID   string    `gorm:"column:source_turn_id"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
	LastAccessedAt time.Time `gorm:"column:last_accessed_at"`
	Metadata       string    `gorm:"column:metadata"` // raw JSON
}

// TableName pins the GORM table name, since golang-migrate (not
// AutoMigrate) owns schema creation.
func (Record) TableName() string { return "memories" }
