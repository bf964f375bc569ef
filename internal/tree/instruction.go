package tree

import (
	"encoding/json"
)

// Level classifies a languoid node.
type Level string

const (
	LevelLanguage Level = "language"
	LevelFamily   Level = "family"
	LevelDialect  Level = "dialect"
)

// Status records how well a languoid is attested.
type Status string

const (
	StatusEstablished Status = "established"
	StatusUnattested  Status = "unattested"
	StatusSpurious    Status = "spurious"
	StatusRetired     Status = "retired"
	StatusProvisional Status = "provisional"
)

// WithRetired appends the " retired" qualifier used for groups that the
// new classification both flags and withdraws.
func (s Status) WithRetired() Status {
	return s + " retired"
}

// Instruction is one upsert/retire/reparent step of a migration plan.
// Instructions are created once by the compiler and consumed exactly once
// when applied to storage; they are never mutated afterwards.
//
// pk, level, active, status and father_pk are always serialized: a null
// father_pk is meaningful (it unparents the node). The remaining keys are
// emitted only when set.
type Instruction struct {
	PK          int      `json:"pk"`
	Level       Level    `json:"level"`
	Active      bool     `json:"active"`
	Status      Status   `json:"status"`
	FatherPK    *int     `json:"father_pk"`
	HID         string   `json:"hid,omitempty"`
	Name        string   `json:"name,omitempty"`
	HName       string   `json:"hname,omitempty"`
	Replacement *int     `json:"replacement,omitempty"`
	Comment     string   `json:"globalclassificationcomment,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
}

// NewInstruction returns an instruction with the defaults every plan entry
// starts from: active, established, no parent.
func NewInstruction(pk int, level Level) *Instruction {
	return &Instruction{
		PK:     pk,
		Level:  level,
		Active: true,
		Status: StatusEstablished,
	}
}

// SetFather assigns a parent id.
func (i *Instruction) SetFather(pk int) *Instruction {
	i.FatherPK = &pk
	return i
}

// SetReplacement points a retired node at its successor.
func (i *Instruction) SetReplacement(pk int) *Instruction {
	i.Replacement = &pk
	return i
}

// SetCoordinates records a leaf's location.
func (i *Instruction) SetCoordinates(lon, lat float64) *Instruction {
	i.Longitude = &lon
	i.Latitude = &lat
	return i
}

// MarshalPlan serializes an instruction stream as the JSON array consumed
// by the migration apply step.
func MarshalPlan(instructions []Instruction) ([]byte, error) {
	return json.MarshalIndent(instructions, "", "  ")
}
