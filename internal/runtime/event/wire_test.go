package event

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/docflow/internal/runtime/errors"
	"github.com/drblury/docflow/internal/runtime/jsoncodec"
)

const envelope = `{
  "id": "5f0c6a4e-8d5b-4a53-9a51-8d1d7cde0a01",
  "type": "document-created",
  "time": "2024-03-01T12:00:00.000Z",
  "chainId": "0b4cf2ce-4d8e-4a4f-9c3c-0f3e1c7a5b22",
  "sequence": 0,
  "data": {
    "document": {"url": "s3://bucket/a.txt", "type": "text/plain", "size": 12, "etag": "e1"},
    "metadata": {"properties": {"kind": "text", "attrs": {"pages": [1, 2]}}}
  }
}`

func TestParseEnvelope(t *testing.T) {
	evt, err := Parse([]byte(envelope))
	require.NoError(t, err)

	assert.Equal(t, "5f0c6a4e-8d5b-4a53-9a51-8d1d7cde0a01", evt.ID.String())
	assert.Equal(t, DocumentCreated, evt.Type)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), evt.Time.UTC())
	assert.Equal(t, "s3://bucket/a.txt", evt.Document.URL)
	assert.Equal(t, int64(12), evt.Document.Size)
	assert.Equal(t, "e1", evt.Document.ETag)
	assert.Equal(t, KindText, evt.Metadata.Kind())
}

func TestSerializeRoundTrip(t *testing.T) {
	evt, err := Parse([]byte(envelope))
	require.NoError(t, err)

	data, err := Serialize(evt)
	require.NoError(t, err)

	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, evt.ID, again.ID)
	assert.Equal(t, evt.ChainID, again.ChainID)
	assert.Equal(t, evt.Document, again.Document)
	assert.Equal(t, evt.Metadata.Kind(), again.Metadata.Kind())
	assert.True(t, evt.Time.Equal(again.Time))

	tree, err := jsoncodec.Tree(data)
	require.NoError(t, err)
	root := tree.(map[string]any)
	assert.Equal(t, "2024-03-01T12:00:00.000Z", root["time"])
	assert.Contains(t, root, "data")
}

func TestParseOptionalDocumentFields(t *testing.T) {
	raw := strings.Replace(envelope, `, "size": 12, "etag": "e1"`, "", 1)
	evt, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Zero(t, evt.Document.Size)
	assert.Empty(t, evt.Document.ETag)
}

func TestParseFailures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"malformed json", `{"id":`},
		{"not an object", `[1,2,3]`},
		{"missing id", strings.Replace(envelope, `"id": "5f0c6a4e-8d5b-4a53-9a51-8d1d7cde0a01",`, "", 1)},
		{"bad id", strings.Replace(envelope, "5f0c6a4e-8d5b-4a53-9a51-8d1d7cde0a01", "nope", 1)},
		{"unknown type", strings.Replace(envelope, "document-created", "document-archived", 1)},
		{"bad time", strings.Replace(envelope, "2024-03-01T12:00:00.000Z", "yesterday", 1)},
		{"missing sequence", strings.Replace(envelope, `"sequence": 0,`, "", 1)},
		{"negative sequence", strings.Replace(envelope, `"sequence": 0`, `"sequence": -3`, 1)},
		{"missing document", `{"id":"5f0c6a4e-8d5b-4a53-9a51-8d1d7cde0a01","type":"document-created","time":"2024-03-01T12:00:00Z","chainId":"0b4cf2ce-4d8e-4a4f-9c3c-0f3e1c7a5b22","sequence":1,"data":{}}`},
		{"missing mime", strings.Replace(envelope, `"type": "text/plain", `, "", 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			require.Error(t, err)
			var verr *errspkg.ValidationError
			assert.ErrorAs(t, err, &verr)
			assert.True(t, errspkg.IsFatal(err))
		})
	}
}

func TestSerializeRejectsInvalidEvent(t *testing.T) {
	_, err := Serialize(Event{})
	assert.True(t, errspkg.IsFatal(err))
}

func TestEventJSONMethods(t *testing.T) {
	original := sampleEvent()
	data, err := jsoncodec.Marshal(original)
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, jsoncodec.Unmarshal(data, &decoded))
	assert.Equal(t, original.ID, decoded.ID)
	assert.Equal(t, "en", decoded.Metadata.Attrs()["language"])
}

func TestParseTime(t *testing.T) {
	for _, raw := range []string{"2024-03-01T12:00:00Z", "2024-03-01T12:00:00.123456Z", "2024-03-01T13:00:00+01:00"} {
		ts, err := ParseTime(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, 2024, ts.Year())
	}
	_, err := ParseTime("01/03/2024")
	assert.Error(t, err)
	assert.Empty(t, FormatTime(time.Time{}))
}
