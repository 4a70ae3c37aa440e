package model

import (
	"encoding/json"
	"strings"
)

// LineItem is one matched financial-statement line. The matched line carries
// its own snake_case key in the JSON form, next to the base fields, so callers
// can ask for arbitrary statement lines without the schema enumerating them.
type LineItem struct {
	Ticker       string
	ReportPeriod string
	Period       string
	Currency     string
	Name         string // snake_case key of the matched statement line
	Value        float64
}

// LineItemKey converts a statement display name to its snake_case field name.
func LineItemKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

func (li LineItem) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"ticker":        li.Ticker,
		"report_period": li.ReportPeriod,
		"period":        li.Period,
		"currency":      li.Currency,
	}
	if li.Name != "" {
		out[li.Name] = li.Value
	}
	return json.Marshal(out)
}

func (li *LineItem) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	take := func(key string, dst *string) error {
		v, ok := raw[key]
		if !ok {
			return nil
		}
		delete(raw, key)
		return json.Unmarshal(v, dst)
	}
	if err := take("ticker", &li.Ticker); err != nil {
		return err
	}
	if err := take("report_period", &li.ReportPeriod); err != nil {
		return err
	}
	if err := take("period", &li.Period); err != nil {
		return err
	}
	if err := take("currency", &li.Currency); err != nil {
		return err
	}
	for key, v := range raw {
		var f float64
		if err := json.Unmarshal(v, &f); err != nil {
			continue // not the numeric line, skip
		}
		li.Name = key
		li.Value = f
		break
	}
	return nil
}
