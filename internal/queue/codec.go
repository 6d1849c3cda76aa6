package queue

import (
	"errors"
	"strconv"

	"github.com/cuongbtq/beanstalk-bridge/internal/entry"
	"github.com/goccy/go-json"
)

// JobIDField is the entry field that points back at the job an entry came from
const JobIDField = "queue_job_id"

var errNotObject = errors.New("payload is not a JSON object")

// Encode serializes an entry into a job payload. Map keys are written in sorted
// order so equal entries give equal payloads.
func Encode(e *entry.Entry) ([]byte, error) {
	body, err := json.Marshal(e.Serialize())
	if err != nil {
		return nil, &EncodingError{Title: e.Title(), Err: err}
	}
	return body, nil
}

// Decode parses a job payload into a new undecided entry. The job itself is
// left untouched.
func Decode(jobID uint64, payload []byte) (*entry.Entry, error) {
	var data map[string]any
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, &DecodingError{JobID: jobID, Err: err}
	}
	if data == nil {
		return nil, &DecodingError{JobID: jobID, Err: errNotObject}
	}
	return entry.Deserialize(data), nil
}

// JobID returns the job id an entry carries, if any. Entries that travelled
// through JSON hold the id as a number of another type, so those are accepted
// too.
func JobID(e *entry.Entry) (uint64, bool) {
	v, ok := e.Get(JobIDField)
	if !ok {
		return 0, false
	}

	switch id := v.(type) {
	case uint64:
		return id, true
	case int:
		if id < 0 {
			return 0, false
		}
		return uint64(id), true
	case int64:
		if id < 0 {
			return 0, false
		}
		return uint64(id), true
	case float64:
		if id < 0 || id != float64(uint64(id)) {
			return 0, false
		}
		return uint64(id), true
	case string:
		n, err := strconv.ParseUint(id, 10, 64)
		return n, err == nil
	case interface{ String() string }:
		n, err := strconv.ParseUint(id.String(), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
