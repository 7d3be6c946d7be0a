package stockfeed

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	raw, err := Encode(StockUpdate{ProductID: "p1", Stock: 3})
	require.NoError(t, err)

	u, ok, err := Decode(raw)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StockUpdate{ProductID: "p1", Stock: 3}, u)
}

func TestDecode_OtherEventType(t *testing.T) {
	raw, _ := json.Marshal(Envelope{EventType: "order-created", Payload: json.RawMessage(`{}`)})

	_, ok, err := Decode(raw)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecode_Malformed(t *testing.T) {
	_, _, err := Decode([]byte("not json"))
	assert.Error(t, err)

	_, _, err = Decode([]byte(`{"event_type":"stock-updated","payload":{"stock":1}}`))
	assert.Error(t, err)
}

func TestDispatch_SkipsBadMessages(t *testing.T) {
	var got []StockUpdate
	h := func(u StockUpdate) { got = append(got, u) }

	good, _ := Encode(StockUpdate{ProductID: "p2", Stock: 0})
	dispatch(testLogger(), []byte("{"), h)
	dispatch(testLogger(), []byte(`{"event_type":"ping"}`), h)
	dispatch(testLogger(), good, h)

	assert.Equal(t, []StockUpdate{{ProductID: "p2", Stock: 0}}, got)
}
