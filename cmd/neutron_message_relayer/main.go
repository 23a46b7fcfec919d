package main

import (
	"github.com/neutron-org/neutron-message-relayer/cmd/neutron_message_relayer/cmd"
)

func main() {
	cmd.Execute()
}
