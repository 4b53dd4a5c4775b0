package keys

import (
	"fmt"
	"regexp"
)

// message ids are uuids; keep the check loose enough for any uuid version
var messageIDRegexp = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)

func ValidateMessageID(id string) error {
	if !messageIDRegexp.MatchString(id) {
		return fmt.Errorf("invalid message id: %q", id)
	}
	return nil
}
