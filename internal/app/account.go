package app

import (
	"regexp"
	"strings"
)

var accountSpecials = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// accountNameFor derives the namespace service-account name from the
// organization and the owner's address local part.
func accountNameFor(organizationID, owner string) string {
	local := owner
	if i := strings.Index(owner, "@"); i >= 0 {
		local = owner[:i]
	}
	local = accountSpecials.ReplaceAllString(local, "")
	return strings.ToLower(organizationID+"-"+local) + "-admin"
}
