package slack

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/slack-go/slack"
)

// ErrInvalidSignature covers every way a request can fail authentication:
// missing headers, a timestamp outside the five minute replay window, or an
// HMAC mismatch.
var ErrInvalidSignature = errors.New("invalid slack request signature")

// VerifyRequest checks the X-Slack-Signature header against the raw body.
func VerifyRequest(header http.Header, body []byte, signingSecret string) error {
	if signingSecret == "" {
		return fmt.Errorf("%w: signing secret not configured", ErrInvalidSignature)
	}

	sv, err := slack.NewSecretsVerifier(header, signingSecret)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if _, err := sv.Write(body); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if err := sv.Ensure(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	return nil
}
