package commerce

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
)

const tokenBytes = 32

// tokenLength is the encoded length of a public token.
var tokenLength = base64.RawURLEncoding.EncodedLen(tokenBytes)

// NewPublicToken returns an opaque, URL safe token drawn from the system CSPRNG.
// It carries no information about the document it is attached to.
func NewPublicToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("commerce: generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// wellFormedToken rejects values that cannot be a token without touching storage.
func wellFormedToken(token string) bool {
	if len(token) != tokenLength {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(token)
	return err == nil
}

func tokensEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// PublicURL builds the recipient link of a document.
func PublicURL(portalBase string, kind Kind, token string) string {
	segment := "quote"
	if kind == KindInvoice {
		segment = "invoice"
	}
	return strings.TrimRight(portalBase, "/") + "/" + segment + "/" + token
}
