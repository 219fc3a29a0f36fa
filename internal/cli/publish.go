package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/ingestion/loader"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/resilience"
)

var (
	publishBrokers []string
	publishTimeout time.Duration
)

var publishCmd = &cobra.Command{
	Use:   "publish <file>...",
	Short: "Send collection files to the Kafka ingest topic",
	Long: `Validates each file as a collection and publishes it to
kafka.topics.collectionIngest, keyed by its collection name. A running
server with Kafka configured indexes the collections as they arrive.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringSliceVar(&publishBrokers, "brokers", nil, "override kafka.brokers")
	publishCmd.Flags().DurationVar(&publishTimeout, "timeout", 30*time.Second, "limit for publishing one file, retries included")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	kc := cfg.Kafka
	if len(publishBrokers) > 0 {
		kc.Brokers = publishBrokers
	}
	if len(kc.Brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}

	ctx := cmd.Context()
	collections, err := loader.ReadAll(ctx, args)
	if err != nil {
		return err
	}

	producer := kafka.NewProducer(kc, kc.Topics.CollectionIngest)
	defer producer.Close()
	pub := publisher.New(producer, resilience.RetryConfig{})

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COLLECTION\tDOCUMENTS\tSTATUS")
	for _, c := range collections {
		var receipt *publisher.Receipt
		err := resilience.WithTimeout(ctx, publishTimeout, "publish "+c.Name, func(ctx context.Context) error {
			var err error
			receipt, err = pub.Publish(ctx, c.Name, c.Content)
			return err
		})
		if err != nil {
			w.Flush()
			return fmt.Errorf("%s: %w", c.Path, err)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", receipt.Collection, receipt.Documents, receipt.Status)
	}
	return w.Flush()
}
