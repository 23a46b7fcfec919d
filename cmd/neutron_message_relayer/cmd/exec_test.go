package cmd

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neutron-org/neutron-message-relayer/internal/relay"
)

func TestListElementFromFlags(t *testing.T) {
	cmd := &cobra.Command{}
	addFilterFlags(cmd)

	require.NoError(t, cmd.Flags().Set(OriginDomainFlagName, "1,2"))
	require.NoError(t, cmd.Flags().Set(SenderFlagName, "0xaa"))

	element, err := listElementFromFlags(cmd)
	require.NoError(t, err)
	assert.Equal(t, relay.Enumerated[uint32](1, 2), element.OriginDomain)
	assert.Equal(t, relay.Enumerated(common.HexToHash("0xaa")), element.SenderAddress)
	assert.Equal(t, relay.Wildcard[common.Hash](), element.MessageID)
	assert.Equal(t, relay.Wildcard[uint32](), element.DestinationDomain)
}

func TestListElementFromFlagsRejectsBadHash(t *testing.T) {
	cmd := &cobra.Command{}
	addFilterFlags(cmd)

	require.NoError(t, cmd.Flags().Set(RecipientFlagName, "not-hex"))
	_, err := listElementFromFlags(cmd)
	assert.Error(t, err)
}
