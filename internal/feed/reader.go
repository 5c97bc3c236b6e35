// Package feed turns the provider's XML event list into batches of raw
// records without loading the whole document.
//
// The document looks like
//
//	<eventList><output>
//	  <base_event base_event_id="100" sell_mode="online" title="Concert A" organizer_company_id="1">
//	    <event event_id="291" event_start_date="..." event_end_date="..." sell_from="..." sell_to="..." sold_out="false">
//	      <zone zone_id="1" capacity="100" price="20.00" name="Pista" numbered="true"/>
//	    </event>
//	  </base_event>
//	</output></eventList>
//
// Only one base_event subtree is decoded at a time, so memory is bounded by
// the batch size plus the largest group. A group that is not well-formed is
// counted and skipped; the reader picks up again at the next base_event.
package feed

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// DefaultBatchSize is used when a non-positive size is given.
const DefaultBatchSize = 50

// Fields holds the raw attributes of one element. Absent attributes are
// absent keys, empty attributes are empty values.
type Fields map[string]string

func (f Fields) Lookup(key string) (string, bool) {
	v, ok := f[key]
	return v, ok
}

// RawEventRecord is one nested event with its group fields. Base is shared
// by every record cut from the same base_event.
type RawEventRecord struct {
	Base  Fields
	Event Fields
	Zones []Fields
}

type xmlZone struct {
	Attrs []xml.Attr `xml:",any,attr"`
}

type xmlEvent struct {
	Attrs []xml.Attr `xml:",any,attr"`
	Zones []xmlZone  `xml:"zone"`
}

type xmlBaseEvent struct {
	Attrs  []xml.Attr `xml:",any,attr"`
	Events []xmlEvent `xml:"event"`
}

func attrFields(attrs []xml.Attr) Fields {
	f := make(Fields, len(attrs))
	for _, a := range attrs {
		f[a.Name.Local] = a.Value
	}
	return f
}

func (g *xmlBaseEvent) records() []RawEventRecord {
	base := attrFields(g.Attrs)
	out := make([]RawEventRecord, 0, len(g.Events))
	for _, ev := range g.Events {
		zones := make([]Fields, 0, len(ev.Zones))
		for _, z := range ev.Zones {
			zones = append(zones, attrFields(z.Attrs))
		}
		out = append(out, RawEventRecord{Base: base, Event: attrFields(ev.Attrs), Zones: zones})
	}
	return out
}

// BatchReader is a single-pass, pull-based batch sequence. Restart by
// building a new reader over the same document.
type BatchReader struct {
	scan    *groupScanner
	size    int
	pending []RawEventRecord
	err     error
	skipped int
}

func NewBatchReader(r io.Reader, size int) *BatchReader {
	if size <= 0 {
		size = DefaultBatchSize
	}
	src, err := utf8Source(r)
	if err != nil {
		return &BatchReader{size: size, err: err}
	}
	return &BatchReader{scan: &groupScanner{r: src}, size: size}
}

// Next returns the next batch, or io.EOF once the document is exhausted.
// All batches but the last have exactly the configured size. A document
// truncated inside a group ends the sequence with an error; records read
// before it are still returned first.
func (br *BatchReader) Next() ([]RawEventRecord, error) {
	for br.err == nil && len(br.pending) < br.size {
		recs, err := br.nextGroup()
		if err != nil {
			br.err = err
			break
		}
		br.pending = append(br.pending, recs...)
	}
	if len(br.pending) == 0 {
		return nil, br.err
	}

	n := br.size
	if len(br.pending) < n {
		n = len(br.pending)
	}
	batch := make([]RawEventRecord, n)
	copy(batch, br.pending)
	rest := copy(br.pending, br.pending[n:])
	for i := rest; i < len(br.pending); i++ {
		br.pending[i] = RawEventRecord{}
	}
	br.pending = br.pending[:rest]
	return batch, nil
}

// Skipped is the number of base_event groups that could not be decoded.
func (br *BatchReader) Skipped() int { return br.skipped }

func (br *BatchReader) nextGroup() ([]RawEventRecord, error) {
	for {
		raw, err := br.scan.next()
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return nil, io.EOF
		case errors.Is(err, errGroupCut):
			br.skipped++
			continue
		default:
			return nil, fmt.Errorf("read feed: %w", err)
		}
		var g xmlBaseEvent
		if err := xml.NewDecoder(bytes.NewReader(raw)).Decode(&g); err != nil {
			br.skipped++
			continue
		}
		return g.records(), nil
	}
}

// Stats are the counters returned by Read.
type Stats struct {
	TotalRecords  int `json:"total_records"`
	TotalBatches  int `json:"total_batches"`
	SkippedGroups int `json:"skipped_groups"`
}

// Read drives a BatchReader to completion, calling onBatch for every batch.
// It stops at the first error returned by onBatch or at ctx cancellation.
func Read(ctx context.Context, r io.Reader, size int, onBatch func([]RawEventRecord) error) (Stats, error) {
	br := NewBatchReader(r, size)
	var st Stats
	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		batch, err := br.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			st.SkippedGroups = br.Skipped()
			return st, err
		}
		if err := onBatch(batch); err != nil {
			st.SkippedGroups = br.Skipped()
			return st, err
		}
		st.TotalRecords += len(batch)
		st.TotalBatches++
	}
	st.SkippedGroups = br.Skipped()
	return st, nil
}
