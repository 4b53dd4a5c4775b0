package keys

import (
	"fmt"
	"net/url"
	"strings"
)

// Escape makes an identity safe to embed as one key segment.
func Escape(id string) string {
	return url.QueryEscape(strings.ToLower(strings.TrimSpace(id)))
}

func PadTS(ts int64) string {
	return fmt.Sprintf("%0*d", TSPadWidth, ts)
}

func GenUserKey(email string) string {
	return fmt.Sprintf(UserKey, Escape(email))
}

func GenUsernameKey(username string) string {
	return fmt.Sprintf(UsernameKey, Escape(username))
}

func GenMessageKey(id string) string {
	return fmt.Sprintf(MessageKey, id)
}

// Pair orders two identities so both directions share one conversation.
func Pair(a, b string) (string, string) {
	a, b = Escape(a), Escape(b)
	if a > b {
		return b, a
	}
	return a, b
}

func GenConvKey(a, b string, createdNS int64, msgID string) string {
	lo, hi := Pair(a, b)
	return fmt.Sprintf(ConvKey, lo, hi, PadTS(createdNS), msgID)
}

// GenConvPrefix returns the prefix shared by every index entry of a/b.
func GenConvPrefix(a, b string) string {
	lo, hi := Pair(a, b)
	return fmt.Sprintf("c:%s:%s:", lo, hi)
}

func GenPartnerKey(user, partner string) string {
	return fmt.Sprintf(PartnerKey, Escape(user), Escape(partner))
}

func GenPartnerPrefix(user string) string {
	return fmt.Sprintf("p:%s:", Escape(user))
}

// UpperBound returns the smallest key greater than every key with prefix.
func UpperBound(prefix string) []byte {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			out := make([]byte, i+1)
			copy(out, b)
			out[i]++
			return out
		}
	}
	return nil
}
