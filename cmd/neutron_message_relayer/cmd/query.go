package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	relayerhttp "github.com/neutron-org/neutron-message-relayer/internal/http"
)

// QueryCmd represents the query command
var QueryCmd = &cobra.Command{
	Use: "query",
}

func init() {
	QueryCmd.PersistentFlags().StringVarP(&urlRelayer, UrlFlagName, "u", "http://localhost:9999", "server url")
	QueryCmd.AddCommand(payloadStatus)
	RootCmd.AddCommand(QueryCmd)
}

// payloadStatus represents the payload-status command
var payloadStatus = &cobra.Command{
	Use:   "payload-status <uuid>",
	Args:  cobra.ExactArgs(1),
	Short: "Query the status of a payload handed to the dispatcher",
	RunE: func(cmd *cobra.Command, args []string) error {
		url, err := cmd.Flags().GetString(UrlFlagName)
		if err != nil {
			return err
		}

		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("failed to parse payload uuid: %w", err)
		}

		client, err := relayerhttp.NewRelayerClient(url)
		if err != nil {
			return fmt.Errorf("failed to get new relayer client: %w", err)
		}

		res, err := client.PayloadStatus(id)
		if err != nil {
			return fmt.Errorf("failed to get payload status: %w", err)
		}

		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal payload status: %w", err)
		}
		fmt.Println(string(out))
		return nil
	},
}
