package session

import (
	"encoding/json"
	"fmt"
)

// Frame is one decoded server message. Output is nil when the frame carried
// no text.
type Frame struct {
	Output *string
	Sample Sample
}

// FieldError reports a single field that could not be decoded. The rest of
// the frame is still usable.
type FieldError struct {
	Key string
	Err error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %v", e.Key, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// DecodeFrame parses a server message. A non-nil error means the frame is
// not a JSON object and must be discarded. Individual bad fields are returned
// as FieldErrors alongside a frame holding every field that did decode.
// Unknown keys are ignored; JSON null counts as absent.
func DecodeFrame(data []byte) (Frame, []error, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Frame{}, nil, fmt.Errorf("decode frame: %w", err)
	}
	if raw == nil {
		return Frame{}, nil, fmt.Errorf("decode frame: not an object")
	}

	var f Frame
	var errs []error
	field := func(key string, dst any) bool {
		v, ok := raw[key]
		if !ok || string(v) == "null" {
			return false
		}
		if err := json.Unmarshal(v, dst); err != nil {
			errs = append(errs, &FieldError{Key: key, Err: err})
			return false
		}
		return true
	}

	var output string
	if field("output", &output) {
		f.Output = &output
	}

	var rx, tx bool
	if field("rx", &rx) {
		f.Sample.RxActive = rx
	}
	if field("tx", &tx) {
		f.Sample.TxActive = tx
	}

	var rxBps, txBps float64
	if field("rx_bps", &rxBps) {
		f.Sample.RxBps = &rxBps
	}
	if field("tx_bps", &txBps) {
		f.Sample.TxBps = &txBps
	}

	var memAlloc, memFree int64
	if field("mem_alloc", &memAlloc) {
		if memAlloc < 0 {
			errs = append(errs, &FieldError{Key: "mem_alloc", Err: fmt.Errorf("negative value %d", memAlloc)})
		} else {
			f.Sample.MemAlloc = &memAlloc
		}
	}
	if field("mem_free", &memFree) {
		if memFree < 0 {
			errs = append(errs, &FieldError{Key: "mem_free", Err: fmt.Errorf("negative value %d", memFree)})
		} else {
			f.Sample.MemFree = &memFree
		}
	}

	return f, errs, nil
}

type inputFrame struct {
	Input string `json:"input"`
}

// EncodeInput builds the client->server frame for one submission.
func EncodeInput(text string) ([]byte, error) {
	return json.Marshal(inputFrame{Input: text})
}

// DecodeInput parses a client->server frame. ok is false when the frame has
// no "input" key.
func DecodeInput(data []byte) (text string, ok bool, err error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", false, err
	}
	v, ok := raw["input"]
	if !ok {
		return "", false, nil
	}
	if err := json.Unmarshal(v, &text); err != nil {
		return "", false, err
	}
	return text, true, nil
}
