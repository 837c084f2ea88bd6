// response/success.go
/* Responsible for decoding successful API responses into the caller's expected type. */
package response

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"

	"github.com/deploymenttheory/go-api-auth-client/apierrors"
)

// contentHandler defines the signature for unmarshaling a response body.
type contentHandler func([]byte, any) error

// responseUnmarshallers maps MIME types to the corresponding contentHandler functions.
var responseUnmarshallers = map[string]contentHandler{
	"application/json": handlerUnmarshalJSON,
	"application/xml":  handlerUnmarshalXML,
	"text/xml":         handlerUnmarshalXML,
}

// Decode unmarshals a 2xx body into a new T. A missing Content-Type is treated as JSON.
// Every failure, including an empty body, is returned as *apierrors.DecodingError.
func Decode[T any](contentType string, body []byte) (T, error) {
	var out T
	if err := DecodeInto(contentType, body, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// DecodeInto unmarshals body into out according to contentType.
func DecodeInto(contentType string, body []byte, out any) error {
	mimeType, _ := parseHeader(contentType)
	if mimeType == "" {
		mimeType = "application/json"
	}

	handler, ok := responseUnmarshallers[mimeType]
	if !ok {
		return &apierrors.DecodingError{Err: fmt.Errorf("unexpected MIME type: %s", contentType)}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return &apierrors.DecodingError{Err: errors.New("empty response body")}
	}
	if err := handler(body, out); err != nil {
		return &apierrors.DecodingError{Err: err}
	}
	return nil
}

func handlerUnmarshalJSON(body []byte, out any) error {
	return json.Unmarshal(body, out)
}

func handlerUnmarshalXML(body []byte, out any) error {
	return xml.Unmarshal(body, out)
}
