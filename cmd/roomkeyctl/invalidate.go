package main

import "fmt"

type invalidateCommand struct {
	Session string `long:"session" description:"Session ID to discard records for" required:"true"`
}

func (cmd *invalidateCommand) Execute(args []string) error {
	reg := openRegistry()
	defer reg.Close()

	logf(verboseLogger(), "invalidating session %s", cmd.Session)
	if err := reg.InvalidateSession(cmd.Session); err != nil {
		return err
	}
	fmt.Printf("Discarded sharing records for session %s\n", cmd.Session)
	return nil
}
