package keyboard

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// CallbackDataSeparator splits the handler name from its payload.
	CallbackDataSeparator = ":"
	// CallbackDataLimitBytes is Telegram's limit on callback data.
	CallbackDataLimitBytes = 64
)

// EncodeCallback packs a handler name and payload as "unique:data". The payload may itself
// contain the separator; the name may not.
func EncodeCallback(unique, data string) (string, error) {
	if unique == "" || strings.Contains(unique, CallbackDataSeparator) {
		return "", fmt.Errorf("invalid callback name %q", unique)
	}

	payload := unique
	if data != "" {
		payload += CallbackDataSeparator + data
	}
	if len(payload) > CallbackDataLimitBytes {
		return "", fmt.Errorf("callback data exceeds %d byte limit: got %d", CallbackDataLimitBytes, len(payload))
	}
	return payload, nil
}

// DecodeCallback is the inverse of EncodeCallback.
func DecodeCallback(callbackData string) (unique, data string, err error) {
	if callbackData == "" {
		return "", "", errors.New("callback data is empty")
	}
	unique, data, _ = strings.Cut(callbackData, CallbackDataSeparator)
	return unique, data, nil
}
