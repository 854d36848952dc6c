package stream

import (
	"errors"

	"github.com/RishiKendai/textpair/internal/models"
	"github.com/redis/go-redis/v9"
)

var ErrMissingSourceCorpus = errors.New("run request has no sourceCorpus")

// StreamMessage is a stream entry with its string fields
type StreamMessage struct {
	ID     string
	Fields map[string]string
}

// NewStreamMessage keeps the string fields of a stream entry
func NewStreamMessage(entry *redis.XMessage) *StreamMessage {
	fields := make(map[string]string, len(entry.Values))
	for k, v := range entry.Values {
		if s, ok := v.(string); ok {
			fields[k] = s
		}
	}
	return &StreamMessage{ID: entry.ID, Fields: fields}
}

// Values returns the fields as stream entry values
func (m *StreamMessage) Values() map[string]interface{} {
	values := make(map[string]interface{}, len(m.Fields))
	for k, v := range m.Fields {
		values[k] = v
	}
	return values
}

// runIDOf returns the run id an entry executes under
func runIDOf(entry *redis.XMessage) string {
	if id, ok := entry.Values["runId"].(string); ok && id != "" {
		return id
	}
	return entry.ID
}

// ParseRunRequest reads a run request from the flat fields of a stream entry
func ParseRunRequest(msg *StreamMessage) (models.RunRequest, error) {
	req := models.RunRequest{
		RunID:        msg.Fields["runId"],
		SourceCorpus: msg.Fields["sourceCorpus"],
		TargetCorpus: msg.Fields["targetCorpus"],
		OutputPath:   msg.Fields["outputPath"],
	}
	if req.SourceCorpus == "" {
		return models.RunRequest{}, ErrMissingSourceCorpus
	}
	return req, nil
}

// Fields encodes req as stream entry values, omitting empty fields
func Fields(req models.RunRequest) map[string]interface{} {
	values := map[string]interface{}{"sourceCorpus": req.SourceCorpus}
	if req.RunID != "" {
		values["runId"] = req.RunID
	}
	if req.TargetCorpus != "" {
		values["targetCorpus"] = req.TargetCorpus
	}
	if req.OutputPath != "" {
		values["outputPath"] = req.OutputPath
	}
	return values
}
