package payments

import (
	"fmt"
	"regexp"
	"strings"
)

// Daraja only accepts Safaricom subscriber numbers in 254XXXXXXXXX form.
var kenyanSubscriber = regexp.MustCompile(`^254(7|1)[0-9]{8}$`)

// NormalizePhone accepts the common ways Kenyan numbers are written
// (07XXXXXXXX, 01XXXXXXXX, +2547..., 2547...) and canonicalizes to the
// 254XXXXXXXXX form the gateway expects.
func NormalizePhone(phone string) (string, error) {
	p := strings.TrimSpace(phone)
	p = strings.ReplaceAll(p, " ", "")
	p = strings.ReplaceAll(p, "-", "")
	p = strings.TrimPrefix(p, "+")

	if strings.HasPrefix(p, "07") || strings.HasPrefix(p, "01") {
		p = "254" + p[1:]
	}

	if !kenyanSubscriber.MatchString(p) {
		return "", fmt.Errorf("%w: phone number %q is not a valid Kenyan subscriber number", ErrValidation, phone)
	}
	return p, nil
}
