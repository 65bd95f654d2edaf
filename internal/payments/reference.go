package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReferenceGenerator produces unique payment references of the form
// PAY-20240115-3F9A2C81. The HMAC tag keeps references non-guessable even
// though they travel through gateway payloads and bank statements.
type ReferenceGenerator struct {
	secret string
}

func NewReferenceGenerator(secret string) *ReferenceGenerator {
	return &ReferenceGenerator{secret: secret}
}

func (g *ReferenceGenerator) Generate(memberID int64) string {
	nonce := uuid.NewString()

	mac := hmac.New(sha256.New, []byte(g.secret))
	mac.Write([]byte(fmt.Sprintf("mid:%d|nonce:%s", memberID, nonce)))

	sum := mac.Sum(nil)
	tag := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(sum)

	return fmt.Sprintf(
		"PAY-%s-%s%s",
		time.Now().Format("20060102"),
		strings.ToUpper(tag[:4]),
		strings.ToUpper(uuid.NewString()[:4]),
	)
}
