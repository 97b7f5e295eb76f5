package models

// ConflictDefinition is a static rule describing two norms that are legally in tension
type ConflictDefinition struct {
	Type             string   `yaml:"type" json:"type"`
	Title            string   `yaml:"title" json:"title"`
	Keywords         []string `yaml:"keywords" json:"keywords"`
	Threshold        int      `yaml:"threshold" json:"threshold"` // active when matches > Threshold
	PositiveNorms    []string `yaml:"positive_norms" json:"positive_norms"`
	ConflictingNorms []string `yaml:"conflicting_norms" json:"conflicting_norms"`
	EvidenceChunkIDs []string `yaml:"evidence_chunk_ids" json:"evidence_chunk_ids"`
	Instruction      string   `yaml:"instruction" json:"instruction"`
}
