// The oauth2-admin binary manages clients and tokens against the server's
// storage.
package main

import (
	"github.com/cawinkelmann/rack-oauth2-server/cmd/cli"
)

func main() {
	cli.Execute()
}
