package httr2

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// BodyCodec converts between structured payloads and wire bytes. Codecs are
// consumed at the request-build and response-read boundaries; the execution
// pipeline never inspects body content itself.
type BodyCodec interface {
	// Encode serializes a payload, returning the bytes and content type.
	Encode(payload interface{}) ([]byte, string, error)
	// Decode deserializes body bytes into v.
	Decode(data []byte, contentType string, v interface{}) error
}

// JSONCodec encodes and decodes application/json bodies.
type JSONCodec struct{}

func (JSONCodec) Encode(payload interface{}) ([]byte, string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

func (JSONCodec) Decode(data []byte, _ string, v interface{}) error {
	return json.Unmarshal(data, v)
}

// FormCodec encodes url.Values as application/x-www-form-urlencoded and
// decodes form bodies into *url.Values.
type FormCodec struct{}

func (FormCodec) Encode(payload interface{}) ([]byte, string, error) {
	values, ok := payload.(url.Values)
	if !ok {
		return nil, "", fmt.Errorf("httr2: form codec requires url.Values, got %T", payload)
	}
	return []byte(values.Encode()), "application/x-www-form-urlencoded", nil
}

func (FormCodec) Decode(data []byte, _ string, v interface{}) error {
	target, ok := v.(*url.Values)
	if !ok {
		return fmt.Errorf("httr2: form codec requires *url.Values, got %T", v)
	}
	values, err := url.ParseQuery(string(data))
	if err != nil {
		return err
	}
	*target = values
	return nil
}
