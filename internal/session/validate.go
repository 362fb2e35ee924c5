package session

import (
	"fmt"
	"regexp"
)

var (
	nameRegexp    = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)
	channelRegexp = regexp.MustCompile(`^[A-Za-z0-9_.:/-]{1,255}$`)
)

// ValidateName checks that name conforms to session naming rules.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid session name %q: must match ^[a-z0-9_-]{1,64}$", name)
	}
	return nil
}

// ValidateChannel checks that url is usable as a channel URL.
func ValidateChannel(url string) error {
	if !channelRegexp.MatchString(url) {
		return fmt.Errorf("invalid channel url %q: must match ^[A-Za-z0-9_.:/-]{1,255}$", url)
	}
	return nil
}
