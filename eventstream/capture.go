// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package eventstream

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/bureau-foundation/lorachat/lib/codec"
)

// CaptureFormat identifies capture files in their header record.
const CaptureFormat = "lorachat-capture"

// CaptureVersion is the current capture layout.
const CaptureVersion = 1

// CaptureHeader is the first record of a capture.
type CaptureHeader struct {
	Format  string    `json:"format"`
	Version int       `json:"version"`
	Source  string    `json:"source,omitempty"`
	Started time.Time `json:"started"`
}

// Recorder writes events to a capture: a zstd stream of CBOR records,
// a header followed by one record per event. Each record is flushed
// as it is written, so a capture cut short by a crash still yields
// every event recorded before it.
type Recorder struct {
	mu      sync.Mutex
	zstd    *zstd.Encoder
	encoder *codec.Encoder
	count   int
	closed  bool
}

// NewRecorder writes a capture header to w and returns a Recorder for
// the events that follow. Closing the Recorder does not close w.
func NewRecorder(w io.Writer, source string, started time.Time) (*Recorder, error) {
	compressor, err := zstd.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("eventstream: creating capture compressor: %w", err)
	}
	recorder := &Recorder{zstd: compressor, encoder: codec.NewEncoder(compressor)}
	header := CaptureHeader{Format: CaptureFormat, Version: CaptureVersion, Source: source, Started: started}
	if err := recorder.write(header); err != nil {
		compressor.Close()
		return nil, err
	}
	return recorder, nil
}

// Record appends event to the capture.
func (r *Recorder) Record(event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("eventstream: recorder is closed")
	}
	if err := r.write(event); err != nil {
		return err
	}
	r.count++
	return nil
}

func (r *Recorder) write(record any) error {
	if err := r.encoder.Encode(record); err != nil {
		return fmt.Errorf("eventstream: encoding capture record: %w", err)
	}
	if err := r.zstd.Flush(); err != nil {
		return fmt.Errorf("eventstream: writing capture: %w", err)
	}
	return nil
}

// Count returns the number of events recorded.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Close finishes the compressed stream.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.zstd.Close()
}

// ReadCapture decodes a capture written by a [Recorder]. A capture
// that ends mid-stream returns the events read so far together with
// an error.
func ReadCapture(r io.Reader) (*CaptureHeader, []Event, error) {
	decompressor, err := zstd.NewReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("eventstream: opening capture: %w", err)
	}
	defer decompressor.Close()
	decoder := codec.NewDecoder(decompressor)

	var header CaptureHeader
	if err := decoder.Decode(&header); err != nil {
		return nil, nil, fmt.Errorf("eventstream: reading capture header: %w", err)
	}
	if header.Format != CaptureFormat {
		return nil, nil, fmt.Errorf("eventstream: not a capture file (format %q)", header.Format)
	}
	if header.Version != CaptureVersion {
		return nil, nil, fmt.Errorf("eventstream: unsupported capture version %d", header.Version)
	}

	var events []Event
	for {
		var event Event
		err := decoder.Decode(&event)
		if errors.Is(err, io.EOF) {
			return &header, events, nil
		}
		if err != nil {
			return &header, events, fmt.Errorf("eventstream: reading capture record %d: %w", len(events)+1, err)
		}
		events = append(events, event)
	}
}
