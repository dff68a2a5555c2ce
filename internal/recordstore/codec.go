package recordstore

import (
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/docwatch/internal/docs"
)

// Marshal encodes a record as the JSON payload every backend stores.
func Marshal(rec docs.PublishRecord) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal publish record: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a stored payload.
func Unmarshal(data []byte) (docs.PublishRecord, error) {
	var rec docs.PublishRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return docs.PublishRecord{}, fmt.Errorf("unmarshal publish record: %w", err)
	}
	return rec, nil
}

// ObjectPath is the relative path of a record under a directory-like
// namespace: documents/{host}/{hash}.
func ObjectPath(key docs.PublishKey) string {
	return "documents/" + key.String()
}
