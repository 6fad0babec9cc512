package gateway

import (
	"fmt"

	"github.com/segmentio/encoding/json"
	"github.com/valyala/fastjson"
)

// Every wire message is one envelope: {"event": <name>, "data": {...}}.
type envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

func encodeEvent(event string, data interface{}) ([]byte, error) {
	return json.Marshal(envelope{Event: event, Data: data})
}

func parseEvent(v *fastjson.Value) (event string, data *fastjson.Value) {
	return string(v.GetStringBytes("event")), v.Get("data")
}

func parseQuote(v *fastjson.Value) (Quote, error) {
	var q Quote
	for _, f := range []struct {
		key string
		dst *string
	}{
		{"id", &q.ID},
		{"source_asset", &q.SourceAsset},
		{"destination_asset", &q.DestinationAsset},
		{"deposit_amount", &q.DepositAmount},
	} {
		b := v.GetStringBytes(f.key)
		if b == nil {
			return Quote{}, fmt.Errorf("%w: missing %s", ErrMalformedQuote, f.key)
		}
		*f.dst = string(b)
	}
	return q, nil
}
