package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	relayerhttp "github.com/neutron-org/neutron-message-relayer/internal/http"
	"github.com/neutron-org/neutron-message-relayer/internal/relay"
)

const (
	MessageIDFlagName         = "message-id"
	OriginDomainFlagName      = "origin-domain"
	SenderFlagName            = "sender"
	DestinationDomainFlagName = "destination-domain"
	RecipientFlagName         = "recipient"
)

// ExecCmd represents the exec command
var ExecCmd = &cobra.Command{
	Use: "exec",
}

func init() {
	ExecCmd.PersistentFlags().StringVarP(&urlRelayer, UrlFlagName, "u", "http://localhost:9999", "server url")

	addFilterFlags(retryMessages)

	ExecCmd.AddCommand(retryMessages)
	RootCmd.AddCommand(ExecCmd)
}

// retryMessages represents the retry command
var retryMessages = &cobra.Command{
	Use:   "retry",
	Short: "Retry pending messages matching the given filters right away",
	RunE: func(cmd *cobra.Command, args []string) error {
		url, err := cmd.Flags().GetString(UrlFlagName)
		if err != nil {
			return err
		}

		element, err := listElementFromFlags(cmd)
		if err != nil {
			return err
		}

		client, err := relayerhttp.NewRelayerClient(url)
		if err != nil {
			return fmt.Errorf("failed to get new relayer client: %w", err)
		}

		res, err := client.RetryMessages(relay.MatchingList{element})
		if err != nil {
			return fmt.Errorf("failed to retry messages: %w", err)
		}

		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal retry response: %w", err)
		}
		fmt.Println(string(out))
		return nil
	},
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice(MessageIDFlagName, nil, "message ids to retry (any if empty)")
	cmd.Flags().UintSlice(OriginDomainFlagName, nil, "origin domains to retry (any if empty)")
	cmd.Flags().StringSlice(SenderFlagName, nil, "sender addresses to retry (any if empty)")
	cmd.Flags().UintSlice(DestinationDomainFlagName, nil, "destination domains to retry (any if empty)")
	cmd.Flags().StringSlice(RecipientFlagName, nil, "recipient addresses to retry (any if empty)")
}

func listElementFromFlags(cmd *cobra.Command) (relay.ListElement, error) {
	var element relay.ListElement

	ids, err := hashesFlag(cmd, MessageIDFlagName)
	if err != nil {
		return element, err
	}
	senders, err := hashesFlag(cmd, SenderFlagName)
	if err != nil {
		return element, err
	}
	recipients, err := hashesFlag(cmd, RecipientFlagName)
	if err != nil {
		return element, err
	}
	origins, err := domainsFlag(cmd, OriginDomainFlagName)
	if err != nil {
		return element, err
	}
	destinations, err := domainsFlag(cmd, DestinationDomainFlagName)
	if err != nil {
		return element, err
	}

	element.MessageID = filter(ids)
	element.SenderAddress = filter(senders)
	element.RecipientAddress = filter(recipients)
	element.OriginDomain = filter(origins)
	element.DestinationDomain = filter(destinations)
	return element, nil
}

func filter[T comparable](values []T) relay.Filter[T] {
	if len(values) == 0 {
		return relay.Wildcard[T]()
	}
	return relay.Enumerated(values...)
}

func hashesFlag(cmd *cobra.Command, name string) ([]common.Hash, error) {
	values, err := cmd.Flags().GetStringSlice(name)
	if err != nil {
		return nil, err
	}
	hashes := make([]common.Hash, 0, len(values))
	for _, v := range values {
		b, err := hexutil.Decode(v)
		if err != nil {
			return nil, fmt.Errorf("invalid --%s value %q: %w", name, v, err)
		}
		hashes = append(hashes, common.BytesToHash(b))
	}
	return hashes, nil
}

func domainsFlag(cmd *cobra.Command, name string) ([]uint32, error) {
	values, err := cmd.Flags().GetUintSlice(name)
	if err != nil {
		return nil, err
	}
	domains := make([]uint32, 0, len(values))
	for _, v := range values {
		if uint64(v) > uint64(^uint32(0)) {
			return nil, fmt.Errorf("invalid --%s value %d: out of range", name, v)
		}
		domains = append(domains, uint32(v))
	}
	return domains, nil
}
