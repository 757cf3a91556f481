// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package combiscope

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Waveform reply layout. Fields are separated by commas and located purely
// by comma ordinal; the binary sample block follows the 17th comma and the
// reply ends with a one byte terminator.
const (
	MetadataFieldCount = 14
	// ordinal of the comma preceding the declared acquisition length
	declaredLengthComma = 16
	// ordinal of the comma preceding the binary samples
	sampleBlockComma = 17
	// separator before the samples plus the trailing terminator
	sampleBlockOverhead = 2
)

// Metadata field indexes.
const (
	FieldTraceName = iota
	FieldYUnit
	FieldXUnit
	FieldYZero
	FieldXZero
	FieldYResolution
	FieldXResolution
	FieldYRange
	FieldDate
	FieldTime
	FieldDtCorrection
	FieldMinMax
	FieldMultiShotTotal
	FieldMultiShotNumber
)

// fieldRule locates one metadata field: it spans from the comma before it
// (plus skip bytes) up to its own comma.
type fieldRule struct {
	key  string
	skip int
}

// metadataLayout is indexed by field; field N ends at comma N+1.
var metadataLayout = [MetadataFieldCount]fieldRule{
	FieldTraceName:       {"trace_name", echoPrefixLen},
	FieldYUnit:           {"y_unit", 0},
	FieldXUnit:           {"x_unit", 0},
	FieldYZero:           {"y_zero", 0},
	FieldXZero:           {"x_zero", 0},
	FieldYResolution:     {"y_resolution", 0},
	FieldXResolution:     {"x_resolution", 0},
	FieldYRange:          {"y_range", 0},
	FieldDate:            {"date", 0},
	FieldTime:            {"time", 0},
	FieldDtCorrection:    {"dt_correction", 0},
	FieldMinMax:          {"min_max", 0},
	FieldMultiShotTotal:  {"multi_shot_total", 0},
	FieldMultiShotNumber: {"multi_shot_number", 0},
}

// Metadata is the ASCII header of a waveform reply, kept as raw bytes.
type Metadata struct {
	fields [MetadataFieldCount][]byte
}

// Field returns a copy of field i, or nil when i is out of range.
func (m Metadata) Field(i int) []byte {
	if i < 0 || i >= MetadataFieldCount || m.fields[i] == nil {
		return nil
	}
	return append([]byte(nil), m.fields[i]...)
}

func (m Metadata) str(i int) string { return decodeLatin1(m.fields[i]) }

func (m Metadata) TraceName() string       { return m.str(FieldTraceName) }
func (m Metadata) YUnit() string           { return m.str(FieldYUnit) }
func (m Metadata) XUnit() string           { return m.str(FieldXUnit) }
func (m Metadata) YZero() string           { return m.str(FieldYZero) }
func (m Metadata) XZero() string           { return m.str(FieldXZero) }
func (m Metadata) YResolution() string     { return m.str(FieldYResolution) }
func (m Metadata) XResolution() string     { return m.str(FieldXResolution) }
func (m Metadata) YRange() string          { return m.str(FieldYRange) }
func (m Metadata) Date() string            { return m.str(FieldDate) }
func (m Metadata) Time() string            { return m.str(FieldTime) }
func (m Metadata) DtCorrection() string    { return m.str(FieldDtCorrection) }
func (m Metadata) MinMax() string          { return m.str(FieldMinMax) }
func (m Metadata) MultiShotTotal() string  { return m.str(FieldMultiShotTotal) }
func (m Metadata) MultiShotNumber() string { return m.str(FieldMultiShotNumber) }

// IsZero reports whether no field has been decoded.
func (m Metadata) IsZero() bool {
	for _, f := range m.fields {
		if f != nil {
			return false
		}
	}
	return true
}

// Map returns the fields keyed by their snake_case names.
func (m Metadata) Map() map[string]string {
	out := make(map[string]string, MetadataFieldCount)
	for i, rule := range metadataLayout {
		out[rule.key] = m.str(i)
	}
	return out
}

// MarshalJSON encodes the metadata as an object of strings.
func (m Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Map())
}

// UnmarshalJSON restores metadata written by MarshalJSON. Unknown keys are ignored.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var kv map[string]string
	if err := json.Unmarshal(data, &kv); err != nil {
		return err
	}
	for i, rule := range metadataLayout {
		if v, ok := kv[rule.key]; ok {
			b := make([]byte, 0, len(v))
			for _, r := range v {
				b = append(b, byte(r))
			}
			m.fields[i] = b
		} else {
			m.fields[i] = nil
		}
	}
	return nil
}

// Waveform is one acquisition as returned by Client.Acquire.
type Waveform struct {
	Identity string   `json:"identity,omitempty"`
	Channel  int      `json:"channel"`
	Register int      `json:"register"`
	Samples  []int16  `json:"samples"`
	Metadata Metadata `json:"metadata"`
	// Stale is set when the reply was rejected and the previous good samples
	// were returned in its place.
	Stale      bool      `json:"stale"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// DecodeWaveform parses a QW reply into samples and metadata.
//
// Sample k is built from the two bytes after the sample separator as
// hi<<8 + lo with both bytes taken as signed, wrapped to 16 bits. The sign
// extension of the low byte is part of the format as shipped and must be kept
// for results to match existing captures.
//
// A reply that is malformed, or whose declared acquisition length differs
// from the number of sample pairs present, yields a *DecodeMismatchError.
func DecodeWaveform(raw []byte) ([]int16, Metadata, error) {
	var md Metadata

	commas := make([]int, 0, sampleBlockComma)
	for i, b := range raw {
		if b == Separator {
			commas = append(commas, i)
			if len(commas) == sampleBlockComma {
				break
			}
		}
	}
	if len(commas) < sampleBlockComma {
		return nil, md, &DecodeMismatchError{
			Declared: -1,
			Reason:   fmt.Sprintf("found %d of %d field separators", len(commas), sampleBlockComma),
		}
	}

	prev := -1
	for i, rule := range metadataLayout {
		start, end := prev+1+rule.skip, commas[i]
		if start > end {
			return nil, Metadata{}, &DecodeMismatchError{
				Declared: -1,
				Reason:   fmt.Sprintf("field %s is shorter than its %d byte prefix", rule.key, rule.skip),
			}
		}
		md.fields[i] = append([]byte{}, raw[start:end]...)
		prev = end
	}

	lengthText := string(raw[commas[declaredLengthComma-1]+1 : commas[sampleBlockComma-1]])
	declared, err := strconv.Atoi(lengthText)
	if err != nil {
		return nil, Metadata{}, &DecodeMismatchError{
			Declared: -1,
			Reason:   fmt.Sprintf("acquisition length %q is not a number", lengthText),
		}
	}

	startIndex := commas[sampleBlockComma-1]
	available := (len(raw) - startIndex - sampleBlockOverhead) / 2
	if available != declared {
		return nil, Metadata{}, &DecodeMismatchError{Declared: declared, Available: available}
	}

	samples := make([]int16, available)
	for k := range samples {
		i := startIndex + 1 + 2*k
		samples[k] = int16(raw[i])<<8 + int16(int8(raw[i+1]))
	}
	return samples, md, nil
}
