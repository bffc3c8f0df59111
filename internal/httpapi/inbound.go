package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/mymunastore/aretenvi/internal/intake"
	"github.com/mymunastore/aretenvi/internal/validate"
)

const whatsappPrefix = "whatsapp:"

var errBodyTooLarge = errors.New("request body too large")

type inbound struct {
	msg intake.Message
	// params holds the decoded form fields; signatures are computed over them.
	params url.Values
	json   bool
}

func readInbound(r *http.Request) (inbound, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxInboundBytes+1))
	if err != nil {
		return inbound{}, fmt.Errorf("read body failed: %w", err)
	}
	if int64(len(body)) > maxInboundBytes {
		return inbound{}, errBodyTooLarge
	}

	// Providers post forms; anything else is read as JSON.
	if isForm(r.Header.Get("Content-Type")) {
		params, err := url.ParseQuery(string(body))
		if err != nil {
			return inbound{}, fmt.Errorf("invalid form body: %w", err)
		}
		return inbound{msg: messageFrom(params), params: params}, nil
	}

	params, err := decodeJSONParams(body)
	if err != nil {
		return inbound{}, err
	}
	return inbound{msg: messageFrom(params), params: params, json: true}, nil
}

func isForm(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/x-www-form-urlencoded"
}

// decodeJSONParams flattens a JSON object into form-like values. Only scalar
// members are kept.
func decodeJSONParams(body []byte) (url.Values, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid json: %v", err)
	}
	if dec.More() {
		return nil, errors.New("invalid json: trailing content")
	}
	params := url.Values{}
	for key, value := range raw {
		switch v := value.(type) {
		case string:
			params.Set(key, v)
		case json.Number:
			params.Set(key, v.String())
		case bool:
			params.Set(key, fmt.Sprint(v))
		}
	}
	return params, nil
}

func messageFrom(params url.Values) intake.Message {
	return intake.Message{
		Sender:    normalizeSender(lookupParam(params, "From")),
		Text:      lookupParam(params, "Body"),
		MessageID: strings.TrimSpace(lookupParam(params, "MessageSid")),
	}
}

func lookupParam(params url.Values, name string) string {
	if v, ok := params[name]; ok && len(v) > 0 {
		return v[0]
	}
	for key, v := range params {
		if strings.EqualFold(key, name) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// normalizeSender turns a provider address such as "whatsapp:+2349152870616"
// into the correlation key used by the conversation store.
func normalizeSender(raw string) string {
	sender := strings.TrimSpace(raw)
	if len(sender) >= len(whatsappPrefix) && strings.EqualFold(sender[:len(whatsappPrefix)], whatsappPrefix) {
		sender = strings.TrimSpace(sender[len(whatsappPrefix):])
	}
	if validate.IsPhone(sender) {
		return validate.NormalizePhone(sender)
	}
	return sender
}
