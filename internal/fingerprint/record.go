package fingerprint

import (
	"encoding/json"

	"github.com/jdarais/cobble/internal/script"
)

// AbsentHash marks a declared input file that did not exist when the record
// was written. Distinct from any real content hash, so a file appearing or
// disappearing always invalidates.
const AbsentHash = "absent"

// Record is the fingerprint written for a task after a fully successful
// run. Records are engine-private; the layout carries no stability
// guarantee across major versions.
type Record struct {
	FileHashes     map[string]string `json:"files"`
	TaskOutputs    map[string]string `json:"tasks"`
	VarHashes      map[string]string `json:"vars"`
	ArtifactHashes map[string]string `json:"artifacts"`

	// Output is the serialized task output (the final action's return
	// value); OutputDigest is its canonical digest. Consumers of a skipped
	// task read the value from here.
	Output       json.RawMessage `json:"output,omitempty"`
	OutputDigest string          `json:"output_digest"`

	ActionsDigest string `json:"actions_digest"`
	ProjectDigest string `json:"project_digest"`
}

// OutputValue deserializes the stored task output.
func (r *Record) OutputValue() (script.Value, error) {
	if len(r.Output) == 0 {
		return nil, nil
	}
	return script.UnmarshalValue(r.Output)
}

func (r *Record) encode() ([]byte, error) {
	return json.Marshal(r)
}

func decodeRecord(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
