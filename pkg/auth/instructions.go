package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowAPIKeyGuide writes how to obtain and store an upstream API key
func ShowAPIKeyGuide(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w, "TONSCRAPER API KEY")
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "The harvester works without a key, but the public rate limit is about")
	fmt.Fprintln(w, "one request per second. A key raises it considerably.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "1. Open https://t.me/tonapibot (or your provider's dashboard)")
	fmt.Fprintln(w, "2. Create a key for the mainnet endpoint")
	fmt.Fprintln(w, "3. Run: tonscraper auth login")
	fmt.Fprintln(w, "   or export "+APIKeyEnv+"=<key>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "The key is kept in the system keychain when one is available, otherwise")
	fmt.Fprintln(w, "in an encrypted file under the user config directory.")
	fmt.Fprintln(w, strings.Repeat("=", 72))
}
