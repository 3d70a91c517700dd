package idtoken

import (
	"encoding/json"
	"time"
)

// Claims is the decoded payload of a validated token: a mapping from claim
// name to value. A fresh Claims is produced on every successful Check and
// owned solely by the caller; the validator never caches it.
//
// After validation the authorized-party field is always present under both
// its names: "azp" (current) and "cid" (legacy) carry the same value.
type Claims map[string]any

// Issuer returns the iss claim, or "" if absent or not a string.
func (c Claims) Issuer() string {
	return c.stringClaim("iss")
}

// Subject returns the sub claim, or "" if absent or not a string.
func (c Claims) Subject() string {
	return c.stringClaim("sub")
}

// ClientID returns the normalized authorized-party claim, or "" if the token
// carried neither azp nor cid.
func (c Claims) ClientID() string {
	return c.stringClaim("cid")
}

// Audiences returns the aud claim as a list, whether the token carried a
// single string or a list of strings.
func (c Claims) Audiences() []string {
	switch aud := c["aud"].(type) {
	case string:
		return []string{aud}
	case []string:
		return aud
	case []any:
		values := make([]string, 0, len(aud))
		for _, v := range aud {
			if s, ok := v.(string); ok {
				values = append(values, s)
			}
		}
		return values
	}
	return nil
}

// Expiry returns the exp claim as a time, or the zero time if absent.
func (c Claims) Expiry() time.Time {
	switch exp := c["exp"].(type) {
	case float64:
		return time.Unix(int64(exp), 0)
	case int64:
		return time.Unix(exp, 0)
	case json.Number:
		if n, err := exp.Int64(); err == nil {
			return time.Unix(n, 0)
		}
	}
	return time.Time{}
}

func (c Claims) stringClaim(name string) string {
	if s, ok := c[name].(string); ok {
		return s
	}
	return ""
}

// normalizeAuthorizedParty copies the authorized-party value between its two
// historical claim names so callers can rely on either. Tokens from current
// providers carry azp; older ones carry cid.
func (c Claims) normalizeAuthorizedParty() {
	azp, hasAZP := c["azp"]
	cid, hasCID := c["cid"]

	switch {
	case hasAZP && !hasCID:
		c["cid"] = azp
	case hasCID && !hasAZP:
		c["azp"] = cid
	}
}
