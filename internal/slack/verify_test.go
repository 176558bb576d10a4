package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"
)

func sign(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + ts + ":"))
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func signedHeader(secret string, at time.Time, body []byte) http.Header {
	ts := strconv.FormatInt(at.Unix(), 10)
	h := http.Header{}
	h.Set("X-Slack-Request-Timestamp", ts)
	h.Set("X-Slack-Signature", sign(secret, ts, body))
	return h
}

func TestVerifyRequest(t *testing.T) {
	const secret = "8f742231b10e8888abcd99yyyzzz85a5"
	body := []byte("payload=%7B%22type%22%3A%22block_actions%22%7D")

	tests := []struct {
		name    string
		header  http.Header
		body    []byte
		secret  string
		wantErr bool
	}{
		{"valid", signedHeader(secret, time.Now(), body), body, secret, false},
		{"tampered body", signedHeader(secret, time.Now(), body), []byte("payload=other"), secret, true},
		{"wrong secret", signedHeader("not-the-secret", time.Now(), body), body, secret, true},
		{"stale timestamp", signedHeader(secret, time.Now().Add(-6*time.Minute), body), body, secret, true},
		{"future timestamp", signedHeader(secret, time.Now().Add(6*time.Minute), body), body, secret, true},
		{"missing headers", http.Header{}, body, secret, true},
		{"no secret configured", signedHeader("", time.Now(), body), body, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyRequest(tt.header, tt.body, tt.secret)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSignature) {
					t.Errorf("expected ErrInvalidSignature, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
