package acceptance

import (
	"bytes"
	"encoding/json"
	"log/slog"

	"github.com/myrjola/canonforge/internal/errors"
	"github.com/myrjola/canonforge/internal/models"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

func hasModifications(modifications json.RawMessage) bool {
	trimmed := bytes.TrimSpace(modifications)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) && !bytes.Equal(trimmed, []byte("{}"))
}

func compactOrNil(modifications json.RawMessage) json.RawMessage {
	if !hasModifications(modifications) {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, modifications); err != nil {
		return modifications
	}
	return buf.Bytes()
}

// merge applies the top-level fields of modifications onto data. A null field removes it. The result must still be
// a valid payload of the entity type.
func merge(entityType models.EntityType, data json.RawMessage, modifications json.RawMessage) (json.RawMessage, error) {
	if !gjson.ValidBytes(modifications) {
		return nil, errors.New("modifications are not valid JSON")
	}
	patch := gjson.ParseBytes(modifications)
	if !patch.IsObject() {
		return nil, errors.New("modifications must be a JSON object")
	}

	merged := bytes.Clone(data)
	var err error
	patch.ForEach(func(key, value gjson.Result) bool {
		path := gjson.Escape(key.String())
		if value.Type == gjson.Null {
			merged, err = sjson.DeleteBytes(merged, path)
		} else {
			merged, err = sjson.SetRawBytes(merged, path, []byte(value.Raw))
		}
		if err != nil {
			err = errors.Wrap(err, "apply modification", slog.String("field", key.String()))
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	if _, err = models.DecodePayload(entityType, merged); err != nil {
		return nil, errors.Wrap(err, "modified payload")
	}
	return merged, nil
}
