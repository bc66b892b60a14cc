package speech

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Directive names the synthesizer recognizes.
const (
	SpeakDirectiveName = "Speak"
)

const attachmentScheme = "cid:"

// speakPayload is the JSON payload of a Speak directive. The url references
// the speech audio, either as an attachment content id or a remote location;
// only attachment references are playable by this client.
type speakPayload struct {
	Token  string `json:"token"`
	URL    string `json:"url"`
	Format string `json:"format"`
}

func parseSpeakPayload(raw string) (speakPayload, error) {
	var payload speakPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return speakPayload{}, fmt.Errorf("failed to parse speak payload: %w", err)
	}

	return payload, nil
}

// attachmentContentID extracts the content id from a cid: url. It reports
// false for any other url scheme.
func attachmentContentID(url string) (string, bool) {
	return strings.CutPrefix(url, attachmentScheme)
}
