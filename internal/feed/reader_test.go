package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const groupXML = `
        <base_event base_event_id="100" sell_mode="online" title="Concert A">
            <event event_id="%d" event_start_date="2025-01-01T10:00:00" event_end_date="2025-01-01T12:00:00"
                   sell_from="2024-01-01T00:00:00" sell_to="2025-01-01T09:00:00" sold_out="false">
                <zone zone_id="1" capacity="100" price="20.00" name="Pista" numbered="true" />
                <zone zone_id="2" capacity="50"  price="15.00" name="VIP"   numbered="false" />
            </event>
        </base_event>`

func feedWithEvents(n int) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><eventList version="1.0"><output>`)
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, groupXML, i)
	}
	b.WriteString(`</output></eventList>`)
	return b.String()
}

func collect(t *testing.T, doc string, size int) [][]RawEventRecord {
	t.Helper()
	br := NewBatchReader(strings.NewReader(doc), size)
	var out [][]RawEventRecord
	for {
		batch, err := br.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, batch)
	}
}

func TestBatchReader_ParsesRecords(t *testing.T) {
	batches := collect(t, feedWithEvents(3), 50)
	require.Len(t, batches, 1)
	recs := batches[0]
	require.Len(t, recs, 3)

	r := recs[0]
	assert.Equal(t, "1", r.Event["event_id"])
	assert.Equal(t, "100", r.Base["base_event_id"])
	assert.Equal(t, "online", r.Base["sell_mode"])
	assert.Equal(t, "Concert A", r.Base["title"])
	assert.Equal(t, "false", r.Event["sold_out"])
	require.Len(t, r.Zones, 2)
	assert.Equal(t, "Pista", r.Zones[0]["name"])
	assert.Equal(t, "20.00", r.Zones[0]["price"])
	assert.Equal(t, "true", r.Zones[0]["numbered"])

	_, ok := r.Base.Lookup("organizer_company_id")
	assert.False(t, ok)
}

func TestBatchReader_EmptyDocument(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?><eventList version="1.0"><output></output></eventList>`
	assert.Empty(t, collect(t, doc, 50))
	assert.Empty(t, collect(t, "", 50))
}

func TestBatchReader_BatchSizes(t *testing.T) {
	for _, tc := range []struct{ n, size int }{
		{55, 50}, {3, 50}, {50, 50}, {10, 3}, {1, 1}, {7, 7}, {0, 4},
	} {
		t.Run(fmt.Sprintf("n=%d/size=%d", tc.n, tc.size), func(t *testing.T) {
			batches := collect(t, feedWithEvents(tc.n), tc.size)
			assert.Len(t, batches, (tc.n+tc.size-1)/tc.size)
			total := 0
			for i, b := range batches {
				if i < len(batches)-1 {
					assert.Len(t, b, tc.size)
				}
				total += len(b)
			}
			assert.Equal(t, tc.n, total)
		})
	}
}

func TestBatchReader_GroupWithSeveralEventsSharesBase(t *testing.T) {
	doc := `<eventList><output>
<base_event base_event_id="1" sell_mode="offline" title="Theatre" organizer_company_id="9">
  <event event_id="10" event_start_date="2025-01-01T10:00:00" event_end_date="2025-01-01T12:00:00" sell_from="2024-01-01T00:00:00" sell_to="2025-01-01T09:00:00" sold_out="true"/>
  <event event_id="11" event_start_date="2025-01-02T10:00:00" event_end_date="2025-01-02T12:00:00" sell_from="2024-01-01T00:00:00" sell_to="2025-01-02T09:00:00" sold_out="false"/>
  <event event_id="12" event_start_date="2025-01-03T10:00:00" event_end_date="2025-01-03T12:00:00" sell_from="2024-01-01T00:00:00" sell_to="2025-01-03T09:00:00" sold_out="false"/>
</base_event>
</output></eventList>`

	batches := collect(t, doc, 2)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[1], 1)

	assert.Equal(t, "9", batches[0][0].Base["organizer_company_id"])
	assert.Equal(t, "12", batches[1][0].Event["event_id"])
	batches[0][0].Base["title"] = "changed"
	assert.Equal(t, "changed", batches[1][0].Base["title"], "group fields are shared by reference")
}

func TestBatchReader_SkipsMalformedGroups(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><eventList version="1.0"><output>`)
	b.WriteString(`<base_event base_event_id="1" sell_mode="online" title="B &nbsp; C"><event event_id="1"/></base_event>`)
	fmt.Fprintf(&b, groupXML, 2)
	b.WriteString(`<base_event base_event_id="3"><event event_id="3"></base_event>`)
	fmt.Fprintf(&b, groupXML, 4)
	b.WriteString(`<base_event base_event_id="5"><event event_id="5"/>`)
	fmt.Fprintf(&b, groupXML, 6)
	b.WriteString(`</output></eventList>`)

	br := NewBatchReader(strings.NewReader(b.String()), 50)
	batch, err := br.Next()
	require.NoError(t, err)
	var ids []string
	for _, r := range batch {
		ids = append(ids, r.Event["event_id"])
	}
	assert.Equal(t, []string{"2", "4", "6"}, ids)
	_, err = br.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 3, br.Skipped())
}

func TestBatchReader_TruncatedDocument(t *testing.T) {
	doc := strings.TrimSuffix(feedWithEvents(2), `</output></eventList>`) +
		`<base_event base_event_id="3"><event event_id="1">`

	br := NewBatchReader(strings.NewReader(doc), 50)
	batch, err := br.Next()
	require.NoError(t, err)
	assert.Len(t, batch, 2)

	_, err = br.Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Zero(t, br.Skipped())
}

func TestBatchReader_TagEdgeCases(t *testing.T) {
	doc := `<eventList><output>
<base_event base_event_id="1" title="empty"/>
<base_events note="not a group"/>
<base_event base_event_id="2" title="a > b &amp; c"><event event_id="7" note='x"y'/></base_event>
</output></eventList>`

	batches := collect(t, doc, 50)
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	assert.Equal(t, "a > b & c", batches[0][0].Base["title"])
	assert.Equal(t, `x"y`, batches[0][0].Event["note"])
}

func TestBatchReader_DeclaredCharset(t *testing.T) {
	doc := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><eventList><output>" +
		"<base_event base_event_id=\"1\" title=\"Caf\xe9\"><event event_id=\"1\"/></base_event>" +
		"</output></eventList>"
	batches := collect(t, doc, 50)
	require.Len(t, batches, 1)
	assert.Equal(t, "Café", batches[0][0].Base["title"])

	br := NewBatchReader(strings.NewReader(`<?xml version="1.0" encoding="no-such-charset"?><eventList/>`), 50)
	_, err := br.Next()
	require.Error(t, err)
	assert.False(t, errors.Is(err, io.EOF))
}

func TestRead_Stats(t *testing.T) {
	var got []RawEventRecord
	st, err := Read(context.Background(), strings.NewReader(feedWithEvents(7)), 3, func(b []RawEventRecord) error {
		got = append(got, b...)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, st.TotalRecords)
	assert.Equal(t, 3, st.TotalBatches)
	assert.Zero(t, st.SkippedGroups)
	assert.Len(t, got, 7)
}

func TestRead_CountsSkippedGroups(t *testing.T) {
	doc := strings.Replace(feedWithEvents(3), `title="Concert A"`, `title="<broken>"`, 1)
	st, err := Read(context.Background(), strings.NewReader(doc), 50, func([]RawEventRecord) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalRecords)
	assert.Equal(t, 1, st.SkippedGroups)
}

func TestRead_StopsOnCallbackError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	st, err := Read(context.Background(), strings.NewReader(feedWithEvents(7)), 3, func([]RawEventRecord) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, st.TotalBatches)
}

func TestRead_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Read(ctx, strings.NewReader(feedWithEvents(1)), 3, func([]RawEventRecord) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
