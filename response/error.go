// response/error.go
// This package converts raw HTTP responses into decoded values or typed api errors.
package response

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/deploymenttheory/go-api-auth-client/apierrors"
	"golang.org/x/net/html"
)

// maxRawResponse caps how much of an error body is retained on the ServerError.
const maxRawResponse = 4096

// jsonErrorBody covers the common shapes of JSON error payloads.
type jsonErrorBody struct {
	Message          string `json:"message"`
	Error            any    `json:"error"`
	ErrorDescription string `json:"error_description"`
	Detail           string `json:"detail"`
}

// ParseErrorResponse builds a ServerError from a non-2xx response. The body has already been read
// by the caller. Message extraction depends on the Content-Type; when nothing useful is found the
// standard status text is used.
func ParseErrorResponse(method, url string, statusCode int, header http.Header, body []byte) *apierrors.ServerError {
	serverErr := &apierrors.ServerError{
		StatusCode:  statusCode,
		Method:      method,
		URL:         url,
		RawResponse: truncate(string(body)),
	}

	mimeType, _ := parseHeader(header.Get("Content-Type"))
	switch mimeType {
	case "application/json", "application/problem+json":
		serverErr.Message = parseJSONMessage(body)
	case "application/xml", "text/xml":
		serverErr.Message = parseXMLMessage(body)
	case "text/html":
		serverErr.Message = parseHTMLMessage(body)
	case "text/plain":
		serverErr.Message = strings.TrimSpace(string(body))
	}

	if serverErr.Message == "" {
		serverErr.Message = http.StatusText(statusCode)
	}
	return serverErr
}

// ErrorMessage extracts a human readable message from an error body without building a ServerError.
// Used for refresh exchanges, where the failure is reported as invalid credentials.
func ErrorMessage(header http.Header, body []byte) string {
	return ParseErrorResponse("", "", 0, header, body).Message
}

func parseJSONMessage(body []byte) string {
	var parsed jsonErrorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	switch {
	case parsed.Message != "":
		return parsed.Message
	case parsed.ErrorDescription != "":
		return parsed.ErrorDescription
	case parsed.Detail != "":
		return parsed.Detail
	}
	switch e := parsed.Error.(type) {
	case string:
		return e
	case map[string]any:
		if msg, ok := e["message"].(string); ok {
			return msg
		}
	}
	return ""
}

// parseXMLMessage accumulates every non-empty text node of the document.
func parseXMLMessage(body []byte) string {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var messages []string
	var traverse func(*xmlquery.Node)
	traverse = func(n *xmlquery.Node) {
		if n.Type == xmlquery.TextNode && strings.TrimSpace(n.Data) != "" {
			messages = append(messages, strings.TrimSpace(n.Data))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)

	return strings.Join(messages, "; ")
}

// parseHTMLMessage concatenates the text of the <title> and every <p> element, including link targets.
func parseHTMLMessage(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var messages []string
	var collect func(*html.Node, *strings.Builder)
	collect = func(c *html.Node, sb *strings.Builder) {
		if c.Type == html.TextNode {
			sb.WriteString(strings.TrimSpace(c.Data) + " ")
		} else if c.Type == html.ElementNode && c.Data == "a" {
			for _, attr := range c.Attr {
				if attr.Key == "href" {
					sb.WriteString("[Link: " + attr.Val + "] ")
					break
				}
			}
		}
		for child := c.FirstChild; child != nil; child = child.NextSibling {
			collect(child, sb)
		}
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "p" || n.Data == "title") {
			var sb strings.Builder
			for child := n.FirstChild; child != nil; child = child.NextSibling {
				collect(child, &sb)
			}
			if text := strings.Join(strings.Fields(sb.String()), " "); text != "" {
				messages = append(messages, text)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.Join(messages, "; ")
}

func truncate(s string) string {
	if len(s) <= maxRawResponse {
		return s
	}
	return s[:maxRawResponse]
}
