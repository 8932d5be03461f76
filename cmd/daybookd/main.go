package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mvalente/daybook/internal/daemon"
	"github.com/mvalente/daybook/internal/profile"
	"go.uber.org/fx"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	remoteFlag := flag.String("remote", "", "remote backend base URL (overrides config)")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			ProfileName: profileName,
			RemoteURL:   *remoteFlag,
		}),
	)

	app.Run()
}
