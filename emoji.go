package rolesbot

import (
	"regexp"
	"strings"
	"sync"

	"github.com/kyokomi/emoji/v2"
)

const variationSelector = "\ufe0f"

var (
	revCodes = sync.OnceValue(emoji.RevCodeMap)

	// bindableRE matches the shortcodes a role binding can hold.
	bindableRE = regexp.MustCompile(`(?i)^[a-z0-9_-]+$`)
)

// Shortcode returns the shortcode of a unicode emoji without colons, e.g.
// "wrench" for 🔧. Aliases which can't appear in a role binding, like "+1",
// are skipped. Custom emoji ids and unknown emoji are returned as is.
func Shortcode(key string) string {
	codes := revCodes()
	for _, k := range []string{key, strings.TrimSuffix(key, variationSelector), key + variationSelector} {
		for _, c := range codes[k] {
			c = strings.Trim(c, ":")
			if bindableRE.MatchString(c) {
				return c
			}
		}
	}
	return key
}
