// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package combiscope

import (
	"encoding/json"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeWaveform(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    []int16
	}{
		{"plain big endian", []byte{0x01, 0x02, 0x00, 0x10}, []int16{0x0102, 0x0010}},
		{"low byte sign extended", []byte{0x00, 0xFF, 0x01, 0x80}, []int16{-1, 128}},
		{"negative high byte", []byte{0x80, 0x00, 0xFF, 0xFF}, []int16{-32768, -257}},
		{"top of range", []byte{0x7F, 0xFF, 0x7F, 0x7F}, []int16{32511, 32639}},
		{"empty", nil, []int16{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := waveformReply(strconv.Itoa(len(tt.payload)/2), tt.payload)
			samples, md, err := DecodeWaveform(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, samples)
			assert.Equal(t, "CH1", md.TraceName())
		})
	}
}

func TestDecodeWaveformMetadata(t *testing.T) {
	_, md, err := DecodeWaveform(waveformReply("1", []byte{0, 1}))
	require.NoError(t, err)

	assert.Equal(t, "CH1", md.TraceName())
	assert.Equal(t, "V", md.YUnit())
	assert.Equal(t, "s", md.XUnit())
	assert.Equal(t, "0.0E+00", md.YZero())
	assert.Equal(t, "-1.0E-03", md.XZero())
	assert.Equal(t, "3.9E-03", md.YResolution())
	assert.Equal(t, "2.0E-06", md.XResolution())
	assert.Equal(t, "2.5E+02", md.YRange())
	assert.Equal(t, "16-10-2026", md.Date())
	assert.Equal(t, "12:30:05", md.Time())
	assert.Equal(t, "0", md.DtCorrection())
	assert.Equal(t, "0", md.MinMax())
	assert.Equal(t, "1", md.MultiShotTotal())
	assert.Equal(t, "1", md.MultiShotNumber())
	assert.False(t, md.IsZero())

	assert.Nil(t, md.Field(-1))
	assert.Nil(t, md.Field(MetadataFieldCount))
	f := md.Field(FieldYUnit)
	f[0] = 'X'
	assert.Equal(t, "V", md.YUnit(), "Field must return a copy")
}

func TestDecodeWaveformMismatch(t *testing.T) {
	payload := []byte{0, 1, 0, 2, 0, 3, 0, 4}
	_, _, err := DecodeWaveform(waveformReply("5", payload))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecodeMismatch))

	var dm *DecodeMismatchError
	require.True(t, errors.As(err, &dm))
	assert.Equal(t, 5, dm.Declared)
	assert.Equal(t, 4, dm.Available)
}

func TestDecodeWaveformMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"too few separators", []byte("QWCH1,V,s,0,0\r")},
		{"length not a number", waveformReply("x4", []byte{0, 1})},
		{"trace name shorter than echo", append([]byte("Q,"), waveformReply("1", []byte{0, 1})[6:]...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples, md, err := DecodeWaveform(tt.raw)
			assert.ErrorIs(t, err, ErrDecodeMismatch)
			assert.Nil(t, samples)
			assert.True(t, md.IsZero())
		})
	}
}

// The reference capture: trace "01", declared length 4, eight sample bytes.
func TestDecodeWaveformReferenceCapture(t *testing.T) {
	head := "QW01,TRACE,V,s,0,0,1,1,255,DATE,TIME,0,0,1,1,0,"
	payload := []byte{0x00, 0x04, 0x01, 0x00, 0xFF, 0x9C, 0x00, 0x00}

	ok := append([]byte(head+"4,"), payload...)
	ok = append(ok, CR)
	samples, md, err := DecodeWaveform(ok)
	require.NoError(t, err)
	assert.Equal(t, []int16{4, 256, -356, 0}, samples)
	assert.Equal(t, "01", md.TraceName())
	assert.Equal(t, "TRACE", md.YUnit())

	bad := append([]byte(head+"5,"), payload...)
	bad = append(bad, CR)
	_, _, err = DecodeWaveform(bad)
	assert.ErrorIs(t, err, ErrDecodeMismatch)
}

func TestMetadataJSON(t *testing.T) {
	_, md, err := DecodeWaveform(waveformReply("1", []byte{0, 1}))
	require.NoError(t, err)

	data, err := json.Marshal(md)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"trace_name":"CH1"`)

	var back Metadata
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, md.Map(), back.Map())
}
