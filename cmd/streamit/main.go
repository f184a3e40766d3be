// Command streamit is the operator CLI: produce, consume, and admin
// subcommands talking to the broker, controller, and coordinator over
// their JSON-over-HTTP RPCs.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/sarihammad/streamit/pkg/rpc"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	var err error
	switch os.Args[1] {
	case "produce":
		err = runProduce(os.Args[2:])
	case "consume":
		err = runConsume(os.Args[2:])
	case "admin":
		err = runAdmin(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "streamit:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: streamit <produce|consume|admin> [flags]")
}

// runProduce is a rate-limited load generator: it sends --size-byte
// records to --topic/--partition at --rate messages/second for
// --duration seconds, then prints a throughput summary.
func runProduce(args []string) error {
	fs := flag.NewFlagSet("produce", flag.ExitOnError)
	brokerHost := fs.String("broker", "localhost", "broker hostname")
	brokerPort := fs.Int("port", 9092, "broker port")
	topic := fs.String("topic", "", "topic name")
	partition := fs.Int("partition", 0, "partition index")
	rate := fs.Int("rate", 1000, "messages per second")
	size := fs.Int("size", 1024, "message size in bytes")
	acks := fs.String("acks", "leader", "acknowledgment level: leader|quorum")
	duration := fs.Int("duration", 10, "duration in seconds")
	producerID := fs.String("producer-id", "", "idempotent producer id (default: auto-generated)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *topic == "" {
		return fmt.Errorf("produce: --topic is required")
	}
	if *rate <= 0 {
		return fmt.Errorf("produce: --rate must be positive")
	}

	id := *producerID
	if id == "" {
		id = fmt.Sprintf("producer-%d", time.Now().Unix())
	}

	client := rpc.NewClient(fmt.Sprintf("http://%s:%d", *brokerHost, *brokerPort), 10*time.Second)

	fmt.Printf("Starting producer for topic %q partition %d at %d msg/s for %d seconds...\n",
		*topic, *partition, *rate, *duration)

	randSrc := rand.New(rand.NewSource(time.Now().UnixNano()))
	targetInterval := time.Second / time.Duration(*rate)

	start := time.Now()
	deadline := start.Add(time.Duration(*duration) * time.Second)
	var sequence, totalMessages, totalBytes int64

	for time.Now().Before(deadline) {
		batchStart := time.Now()

		value := make([]byte, *size)
		randSrc.Read(value)
		key := fmt.Sprintf("key-%d", sequence)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		resp, err := client.Produce(ctx, rpc.ProduceRequest{
			Topic:      *topic,
			Partition:  int32(*partition),
			Records:    []rpc.Record{{Key: []byte(key), Value: value, TimestampMs: time.Now().UnixMilli()}},
			ProducerID: id,
			Sequence:   sequence,
			Ack:        *acks,
		})
		cancel()
		sequence++

		if err != nil {
			fmt.Fprintf(os.Stderr, "produce failed: %v\n", err)
		} else if resp.ErrorMessage != "" {
			fmt.Fprintf(os.Stderr, "produce failed: %s: %s\n", resp.ErrorCode, resp.ErrorMessage)
		} else {
			totalMessages++
			totalBytes += int64(*size)
		}

		if elapsed := time.Since(batchStart); elapsed < targetInterval {
			time.Sleep(targetInterval - elapsed)
		}
	}

	actualDuration := time.Since(start).Seconds()
	var actualRate, throughputMBps float64
	if actualDuration > 0 {
		actualRate = float64(totalMessages) / actualDuration
		throughputMBps = (float64(totalBytes) / (1024 * 1024)) / actualDuration
	}

	fmt.Println("\nProducer completed:")
	fmt.Printf("  Messages: %d\n", totalMessages)
	fmt.Printf("  Bytes: %d\n", totalBytes)
	fmt.Printf("  Duration: %.2f seconds\n", actualDuration)
	fmt.Printf("  Rate: %.2f msg/s\n", actualRate)
	fmt.Printf("  Throughput: %.4f MB/s\n", throughputMBps)
	return nil
}

// runConsume joins --group via the coordinator's consumer-group
// machinery, consumes whatever partitions of --topic it is assigned,
// and commits its offsets back to the coordinator after each round
// that returned records —
// the CLI counterpart of pkg/group's rebalance protocol.
func runConsume(args []string) error {
	fs := flag.NewFlagSet("consume", flag.ExitOnError)
	broker := fs.String("broker", "http://localhost:9092", "broker RPC address")
	coordinator := fs.String("coordinator", "http://localhost:9094", "coordinator RPC address")
	topic := fs.String("topic", "", "topic name")
	group := fs.String("group", "default-group", "consumer group")
	from := fs.Int64("from", 0, "starting offset for newly assigned partitions")
	maxBytes := fs.Int64("max-bytes", 1<<20, "max bytes per fetch")
	follow := fs.Bool("follow", false, "keep polling for new records after reaching the high watermark")
	pollInterval := fs.Duration("poll-interval", 100*time.Millisecond, "poll interval when --follow is set")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *topic == "" {
		return fmt.Errorf("consume: --topic is required")
	}

	brokerClient := rpc.NewClient(*broker, 10*time.Second)
	coordClient := rpc.NewClient(*coordinator, 10*time.Second)
	memberID := fmt.Sprintf("consumer-%d", time.Now().Unix())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	assignResp, err := coordClient.PollAssignment(ctx, rpc.PollAssignmentRequest{
		Group:    *group,
		MemberID: memberID,
		Topics:   []string{*topic},
	})
	cancel()
	if err != nil {
		return fmt.Errorf("consume: join group: %w", err)
	}
	if assignResp.ErrorMessage != "" {
		return fmt.Errorf("consume: join group: %s", assignResp.ErrorMessage)
	}

	var partitions []int32
	for _, a := range assignResp.Assignments {
		if a.Topic == *topic {
			partitions = append(partitions, a.Partition)
		}
	}
	fmt.Printf("Joined consumer group %q as member %q\n", *group, memberID)
	fmt.Printf("Assigned partitions: %v\n", partitions)
	if len(partitions) == 0 {
		fmt.Println("no partitions assigned; nothing to consume")
		return nil
	}

	offsets := make(map[int32]int64, len(partitions))
	for _, p := range partitions {
		offsets[p] = *from
	}

	fmt.Printf("Starting consumer for topic %q from offset %d...\n", *topic, *from)
	var totalMessages, totalBytes int64

	for {
		roundMessages := int64(0)
		for _, p := range partitions {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			resp, err := brokerClient.Fetch(ctx, rpc.FetchRequest{
				Topic:     *topic,
				Partition: p,
				Offset:    offsets[p],
				MaxBytes:  *maxBytes,
			})
			cancel()
			if err != nil {
				fmt.Fprintf(os.Stderr, "fetch failed: %v\n", err)
				continue
			}
			if resp.ErrorMessage != "" {
				fmt.Fprintf(os.Stderr, "fetch failed: %s: %s\n", resp.ErrorCode, resp.ErrorMessage)
				continue
			}
			for _, batch := range resp.Batches {
				for _, rec := range batch.Records {
					value := rec.Value
					if len(value) > 50 {
						value = append(append([]byte{}, value[:50]...), []byte("...")...)
					}
					fmt.Printf("[%d] partition=%d key=%q value=%q\n", rec.TimestampMs, p, rec.Key, value)
					totalMessages++
					roundMessages++
					totalBytes += int64(len(rec.Value))
				}
				offsets[p] = batch.BaseOffset + int64(len(batch.Records))
			}
		}

		if roundMessages > 0 {
			for _, p := range partitions {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				commitResp, err := coordClient.CommitOffset(ctx, rpc.CommitOffsetRequest{
					Group:     *group,
					Topic:     *topic,
					Partition: p,
					Offset:    offsets[p],
				})
				cancel()
				if err != nil {
					fmt.Fprintf(os.Stderr, "commit offset failed: %v\n", err)
				} else if commitResp.ErrorMessage != "" {
					fmt.Fprintf(os.Stderr, "commit offset failed: %s\n", commitResp.ErrorMessage)
				}
			}
		}

		if !*follow {
			break
		}
		time.Sleep(*pollInterval)
	}

	fmt.Println("\nConsumer completed:")
	fmt.Printf("  Messages: %d\n", totalMessages)
	fmt.Printf("  Bytes: %d\n", totalBytes)
	fmt.Printf("  Last offsets: %v\n", offsets)
	return nil
}

func runAdmin(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("admin: usage: streamit admin <create-topic|describe-topic|list-topics> [flags]")
	}
	switch args[0] {
	case "create-topic":
		return runCreateTopic(args[1:])
	case "describe-topic":
		return runDescribeTopic(args[1:])
	case "list-topics":
		return runListTopics(args[1:])
	default:
		return fmt.Errorf("admin: unknown subcommand %q", args[0])
	}
}

func runCreateTopic(args []string) error {
	fs := flag.NewFlagSet("create-topic", flag.ExitOnError)
	controller := fs.String("controller", "http://localhost:9093", "controller RPC address")
	topic := fs.String("topic", "", "topic name")
	partitions := fs.Int("partitions", 1, "partition count")
	replicationFactor := fs.Int("replication-factor", 1, "replication factor (must be 1)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *topic == "" {
		return fmt.Errorf("create-topic: --topic is required")
	}

	client := rpc.NewClient(*controller, 10*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	resp, err := client.CreateTopic(ctx, rpc.CreateTopicRequest{
		Topic:             *topic,
		Partitions:        int32(*partitions),
		ReplicationFactor: int32(*replicationFactor),
	})
	if err != nil {
		return fmt.Errorf("create-topic: %w", err)
	}
	if resp.ErrorMessage != "" {
		return fmt.Errorf("create-topic: %s", resp.ErrorMessage)
	}
	fmt.Printf("created topic %q with %d partitions\n", *topic, *partitions)
	return nil
}

func runDescribeTopic(args []string) error {
	fs := flag.NewFlagSet("describe-topic", flag.ExitOnError)
	controller := fs.String("controller", "http://localhost:9093", "controller RPC address")
	topic := fs.String("topic", "", "topic name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *topic == "" {
		return fmt.Errorf("describe-topic: --topic is required")
	}

	client := rpc.NewClient(*controller, 10*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	resp, err := client.DescribeTopic(ctx, rpc.DescribeTopicRequest{Topic: *topic})
	if err != nil {
		return fmt.Errorf("describe-topic: %w", err)
	}
	if resp.ErrorMessage != "" {
		return fmt.Errorf("describe-topic: %s", resp.ErrorMessage)
	}
	fmt.Printf("topic=%s partitions=%d leader=%d replicas=%v\n",
		*topic, len(resp.Metadata.Partitions), resp.Metadata.Leader, resp.Metadata.Replicas)
	fmt.Println("note: replication is single-replica only; replicas and leader are always the same broker")
	return nil
}

func runListTopics(args []string) error {
	fs := flag.NewFlagSet("list-topics", flag.ExitOnError)
	controller := fs.String("controller", "http://localhost:9093", "controller RPC address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client := rpc.NewClient(*controller, 10*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	resp, err := client.ListTopics(ctx, rpc.ListTopicsRequest{})
	if err != nil {
		return fmt.Errorf("list-topics: %w", err)
	}
	if resp.ErrorMessage != "" {
		return fmt.Errorf("list-topics: %s", resp.ErrorMessage)
	}
	for _, topic := range resp.Topics {
		fmt.Println(topic)
	}
	return nil
}
