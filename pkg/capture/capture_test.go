// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecorderReader(t *testing.T) {
	require := require.New(t)

	var buf bytes.Buffer
	rec, err := NewRecorder(&buf, "tcp://otgw:25238")
	require.NoError(err)

	start := time.Unix(1700000000, 0)
	require.NoError(rec.RecordAt(start, Received, "T80000200"))
	require.NoError(rec.RecordAt(start.Add(time.Second), Sent, "PS=0"))
	require.NoError(rec.RecordAt(start.Add(2*time.Second), Received, "PS: 0"))
	require.Equal(3, rec.Count())

	rd, err := NewReader(&buf)
	require.NoError(err)
	require.Equal("tcp://otgw:25238", rd.Header().Source)

	r1, err := rd.Next()
	require.NoError(err)
	require.Equal(Received, r1.Direction)
	require.Equal("T80000200", r1.Line)
	require.True(start.Equal(r1.At()))

	r2, err := rd.Next()
	require.NoError(err)
	require.Equal(Sent, r2.Direction)
	require.Equal("PS=0", r2.Line)

	_, err = rd.Next()
	require.NoError(err)

	_, err = rd.Next()
	require.ErrorIs(err, io.EOF)
}

func TestReaderRejectsForeignData(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte("B401C0280\r\n")))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrBadHeader))

	_, err = NewReader(bytes.NewReader(nil))
	require.True(t, errors.Is(err, ErrBadHeader))
}

func TestCreateOpen(t *testing.T) {
	require := require.New(t)
	path := filepath.Join(t.TempDir(), "session.cbor")

	rec, err := Create(path, "serial:/dev/ttyUSB0")
	require.NoError(err)
	require.NoError(rec.Record(Received, "B401C0280"))
	require.NoError(rec.Close())
	require.NoError(rec.Close())

	rd, err := Open(path)
	require.NoError(err)
	defer rd.Close()

	r, err := rd.Next()
	require.NoError(err)
	require.Equal("B401C0280", r.Line)
}
