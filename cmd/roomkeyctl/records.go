package main

import "fmt"

type recordsCommand struct {
	Session string `long:"session" description:"Session ID to list records for" required:"true"`
}

func (cmd *recordsCommand) Execute(args []string) error {
	reg := openRegistry()
	defer reg.Close()

	recs, err := reg.Records(cmd.Session)
	if err != nil {
		return err
	}

	fmt.Printf("Sharing records for session %s (%d):\n", cmd.Session, len(recs))
	for _, r := range recs {
		fmt.Printf("  %s/%s: shared_at_index=%d identity_key=%s\n",
			r.UserID, r.DeviceID, r.SharedAtIndex, r.IdentityKey)
	}
	return nil
}
